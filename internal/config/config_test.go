// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoir-dev/autoir/internal/config"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autoir.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *config.Config {
	return &config.Config{
		Storage:  config.StorageConfig{Backend: "sqlite", DataDir: "./data", EmbeddingDim: 384},
		Server:   config.ServerConfig{Listen: "127.0.0.1:18790"},
		Analyzer: config.AnalyzerConfig{Kind: config.AnalyzerRules, Model: "anthropic/claude-haiku-4-5", Timeout: time.Second, MaxTokens: 512},
		Notify:   config.NotifyConfig{Timeout: time.Second},
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 384, cfg.Storage.EmbeddingDim)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
	assert.Equal(t, config.AnalyzerRules, cfg.Analyzer.Kind)
	assert.Equal(t, "anthropic/claude-haiku-4-5", cfg.Analyzer.Model)
	assert.Equal(t, 30*time.Second, cfg.Analyzer.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Notify.Timeout)
	assert.True(t, cfg.Notify.Log)
	assert.Empty(t, cfg.Pipelines)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "0.0.0.0:9999"
providers:
  openai:
    api_key: "test-key"
  openrouter:
    api_key: "or-key"
    endpoint: "https://openrouter.ai/api/v1"
analyzer:
  kind: llm
  model: "openai/gpt-4.1-mini"
  failover: ["openrouter/meta-llama/llama-3.1-8b-instruct"]
  timeout: 45s
notify:
  webhook:
    url: "https://hooks.example.com/x"
  telegram:
    token: "123:abc"
    chat_id: -100200
pipelines:
  - id: prod-errors
    table: app_logs
    window: 10m
    schedule: "*/30 * * * * *"
    min_severity: high
    min_confidence: 0.75
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, config.AnalyzerLLM, cfg.Analyzer.Kind)
	assert.Equal(t, 45*time.Second, cfg.Analyzer.Timeout)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Providers["openrouter"].Endpoint)
	assert.Equal(t, int64(-100200), cfg.Notify.Telegram.ChatID)

	require.Len(t, cfg.Pipelines, 1)
	p := cfg.Pipelines[0]
	assert.Equal(t, "prod-errors", p.ID)
	assert.Equal(t, 10*time.Minute, p.Window)
	assert.Equal(t, "*/30 * * * * *", p.Schedule)
	require.NotNil(t, p.MinConfidence)
	assert.InDelta(t, 0.75, *p.MinConfidence, 1e-9)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AUTOIR_SERVER_LISTEN", "10.0.0.1:8080")
	t.Setenv("AUTOIR_STORAGE_EMBEDDING_DIM", "768")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 768, cfg.Storage.EmbeddingDim)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, autoirerr.HasCode(err, autoirerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: "postgres"
`)

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestLoad_BootstrappedDefaultIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoir", "autoir.yaml")
	require.Equal(t, path, config.BootstrapConfig(path))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Pipelines, 1)
	assert.Equal(t, "app_logs", cfg.Pipelines[0].Table)

	// A second bootstrap leaves the file alone.
	assert.Empty(t, config.BootstrapConfig(path))
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("storage.data_dir", "/var/lib/autoir")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/autoir", cfg.Storage.DataDir)
}

func TestValidate_Valid(t *testing.T) {
	assert.Empty(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "zero embedding dim",
			mutate:  func(c *config.Config) { c.Storage.EmbeddingDim = 0 },
			wantErr: "storage.embedding_dim",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *config.Config) { c.Server.Listen = "localhost" },
			wantErr: "server.listen",
		},
		{
			name:    "rate without burst",
			mutate:  func(c *config.Config) { c.Server.RateLimit.RequestsPerSecond = 5 },
			wantErr: "server.rate_limit.burst",
		},
		{
			name:    "unknown analyzer kind",
			mutate:  func(c *config.Config) { c.Analyzer.Kind = "magic" },
			wantErr: "analyzer.kind",
		},
		{
			name:    "llm without providers",
			mutate:  func(c *config.Config) { c.Analyzer.Kind = config.AnalyzerLLM },
			wantErr: "requires at least one entry under providers",
		},
		{
			name: "llm model references missing provider",
			mutate: func(c *config.Config) {
				c.Analyzer.Kind = config.AnalyzerLLM
				c.Providers = map[string]config.ProviderConfig{"openai": {APIKey: "k"}}
			},
			wantErr: "references provider \"anthropic\"",
		},
		{
			name: "failover without slash",
			mutate: func(c *config.Config) {
				c.Analyzer.Kind = config.AnalyzerLLM
				c.Analyzer.Failover = []string{"gpt"}
				c.Providers = map[string]config.ProviderConfig{"anthropic": {APIKey: "k"}}
			},
			wantErr: "analyzer.failover[0]",
		},
		{
			name:    "compatible provider without endpoint",
			mutate:  func(c *config.Config) { c.Providers = map[string]config.ProviderConfig{"kimi": {APIKey: "k"}} },
			wantErr: "providers.kimi.endpoint",
		},
		{
			name:    "telegram without chat",
			mutate:  func(c *config.Config) { c.Notify.Telegram.Token = "123:abc" },
			wantErr: "notify.telegram.chat_id",
		},
		{
			name: "duplicate pipeline id",
			mutate: func(c *config.Config) {
				c.Pipelines = []config.PipelineConfig{{ID: "a", Table: "t"}, {ID: "a", Table: "u"}}
			},
			wantErr: "pipelines[1].id",
		},
		{
			name: "interval and schedule",
			mutate: func(c *config.Config) {
				c.Pipelines = []config.PipelineConfig{{ID: "a", Table: "t", Interval: time.Minute, Schedule: "@every 1m"}}
			},
			wantErr: "both interval and schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
			assert.True(t, autoirerr.HasCode(errs[0], autoirerr.CodeConfigValidateInvalid))
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = ""
	cfg.Server.Listen = ""
	cfg.Notify.Timeout = 0

	assert.Len(t, cfg.Validate(), 3)
}
