// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package google_test

import (
	"context"
	"testing"

	"github.com/autoir-dev/autoir/internal/provider"
	"github.com/autoir-dev/autoir/internal/provider/google"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*google.Provider)(nil)

func TestGoogleProvider_MissingAPIKey(t *testing.T) {
	_, err := google.New(google.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, autoirerr.HasCode(err, autoirerr.CodeProviderRequestInvalid))
}

func TestGoogleProvider_NameAndStatus(t *testing.T) {
	p, err := google.New(google.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)

	assert.Equal(t, "google", p.Name())
	status, err := p.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Available)
	assert.NoError(t, p.Close())
}

func TestGoogleProvider_ChatRequiresModel(t *testing.T) {
	p, err := google.New(google.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), provider.ChatRequest{})
	assert.True(t, autoirerr.HasCode(err, autoirerr.CodeProviderRequestInvalid))
}

func TestBuildConfig(t *testing.T) {
	temp := float32(0.2)
	cfg := google.BuildConfig(provider.ChatRequest{
		SystemPrompt: "sys",
		Options:      provider.ChatOptions{Temperature: &temp, MaxTokens: 256, JSONMode: true},
	})

	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-6)
	assert.Equal(t, int32(256), cfg.MaxOutputTokens)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "sys", cfg.SystemInstruction.Parts[0].Text)
}

func TestConvertMessages(t *testing.T) {
	contents, err := google.ConvertMessages([]provider.Message{
		{Role: provider.MessageRoleUser, Content: "q"},
		{Role: provider.MessageRoleAssistant, Content: "a"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)

	_, err = google.ConvertMessages([]provider.Message{{Role: "tool"}})
	assert.True(t, autoirerr.HasCode(err, autoirerr.CodeProviderRequestInvalid))
}
