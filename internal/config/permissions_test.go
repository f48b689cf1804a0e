// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

//go:build !windows

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoir-dev/autoir/internal/config"
)

func TestWarnInsecurePermissions(t *testing.T) {
	tests := []struct {
		name     string
		perm     os.FileMode
		wantWarn bool
	}{
		{name: "owner only", perm: 0o600},
		{name: "owner read only", perm: 0o400},
		{name: "group readable", perm: 0o640, wantWarn: true},
		{name: "world readable", perm: 0o644, wantWarn: true},
		{name: "other read only", perm: 0o604, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "autoir.yaml")
			require.NoError(t, os.WriteFile(path, []byte("storage: {}\n"), 0o600))
			require.NoError(t, os.Chmod(path, tt.perm))

			assert.Equal(t, tt.wantWarn, config.WarnInsecurePermissions(path))
		})
	}
}

func TestWarnInsecurePermissions_NoFile(t *testing.T) {
	assert.False(t, config.WarnInsecurePermissions(""))
	assert.False(t, config.WarnInsecurePermissions(filepath.Join(t.TempDir(), "missing.yaml")))
}
