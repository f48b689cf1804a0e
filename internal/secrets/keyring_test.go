// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/autoir-dev/autoir/internal/secrets"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

func init() {
	keyring.MockInit()
}

var _ secrets.Store = (*secrets.KeyringStore)(nil)

func TestKeyringStore_Lifecycle(t *testing.T) {
	ks := secrets.NewKeyringStore()
	const svc = "autoir-lifecycle"

	keys, err := ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, ks.Store(svc, "telegram-token", "123:abc"))
	require.NoError(t, ks.Store(svc, "anthropic-api-key", "sk-ant-1"))
	require.NoError(t, ks.Store(svc, "anthropic-api-key", "sk-ant-2"))

	val, err := ks.Retrieve(svc, "anthropic-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-2", val)

	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic-api-key", "telegram-token"}, keys)

	require.NoError(t, ks.Delete(svc, "telegram-token"))
	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic-api-key"}, keys)

	require.NoError(t, ks.Delete(svc, "anthropic-api-key"))
	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestKeyringStore_MissingSecrets(t *testing.T) {
	ks := secrets.NewKeyringStore()

	_, err := ks.Retrieve("autoir-missing", "webhook-url")
	require.Error(t, err)
	assert.True(t, autoirerr.IsNotFound(err), "got: %v", err)

	err = ks.Delete("autoir-missing", "webhook-url")
	require.Error(t, err)
	assert.True(t, autoirerr.HasCode(err, autoirerr.CodeSecretNotFound), "got: %v", err)
}

func TestKeyringStore_InvalidInputs(t *testing.T) {
	ks := secrets.NewKeyringStore()

	tests := []struct {
		name    string
		service string
		key     string
	}{
		{"empty service", "", "key"},
		{"empty key", "autoir", ""},
		{"reserved index key", "autoir", "autoir::keys-index"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ks.Store(tt.service, tt.key, "val")
			require.Error(t, err)
			assert.True(t, autoirerr.HasCode(err, autoirerr.CodeSecretInvalidInput))

			_, err = ks.Retrieve(tt.service, tt.key)
			assert.True(t, autoirerr.IsInvalidInput(err))

			assert.True(t, autoirerr.IsInvalidInput(ks.Delete(tt.service, tt.key)))
		})
	}

	_, err := ks.List("")
	assert.True(t, autoirerr.IsInvalidInput(err))
}

func TestKeyringStore_EmptyValueAllowed(t *testing.T) {
	ks := secrets.NewKeyringStore()

	require.NoError(t, ks.Store("autoir-empty", "key", ""))
	val, err := ks.Retrieve("autoir-empty", "key")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestKeyringStore_ServicesAreIsolated(t *testing.T) {
	ks := secrets.NewKeyringStore()

	require.NoError(t, ks.Store("autoir-prod", "webhook-url", "https://prod"))
	require.NoError(t, ks.Store("autoir-staging", "webhook-url", "https://staging"))

	prod, err := ks.Retrieve("autoir-prod", "webhook-url")
	require.NoError(t, err)
	assert.Equal(t, "https://prod", prod)

	require.NoError(t, ks.Delete("autoir-staging", "webhook-url"))

	keys, err := ks.List("autoir-prod")
	require.NoError(t, err)
	assert.Equal(t, []string{"webhook-url"}, keys)
}
