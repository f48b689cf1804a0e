// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// Config is the top-level AutoIR configuration.
type Config struct {
	Storage   StorageConfig             `mapstructure:"storage"`
	Server    ServerConfig              `mapstructure:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Analyzer  AnalyzerConfig            `mapstructure:"analyzer"`
	Notify    NotifyConfig              `mapstructure:"notify"`
	Pipelines []PipelineConfig          `mapstructure:"pipelines"`
}

// StorageConfig selects the storage backend and where it keeps data.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	DataDir      string `mapstructure:"data_dir"`
	EmbeddingDim int    `mapstructure:"embedding_dim"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen      string          `mapstructure:"listen"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig sets the per-IP request budget. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// AnalyzerConfig selects how candidate incidents are produced.
type AnalyzerConfig struct {
	Kind      string        `mapstructure:"kind"`
	Model     string        `mapstructure:"model"`
	Failover  []string      `mapstructure:"failover"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
	RulesFile string        `mapstructure:"rules_file"`
}

// NotifyConfig configures where newly opened incidents are announced.
type NotifyConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout"`
	Log      bool           `mapstructure:"log"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig enables the webhook notifier when URL is set.
type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// TelegramConfig enables the Telegram notifier when Token is set.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// PipelineConfig defines one detection loop. Zero values, and a nil
// MinConfidence, fall back to the detection defaults.
type PipelineConfig struct {
	ID                 string        `mapstructure:"id"`
	Table              string        `mapstructure:"table"`
	Window             time.Duration `mapstructure:"window"`
	Interval           time.Duration `mapstructure:"interval"`
	Schedule           string        `mapstructure:"schedule"`
	MaxEvents          int           `mapstructure:"max_events"`
	MaxSamplesPerIssue int           `mapstructure:"max_samples_per_issue"`
	MinSeverity        string        `mapstructure:"min_severity"`
	MinConfidence      *float64      `mapstructure:"min_confidence"`
	ErrorPattern       string        `mapstructure:"error_pattern"`
}

// Analyzer kinds.
const (
	AnalyzerLLM   = "llm"
	AnalyzerRules = "rules"
)

// Providers with a dedicated client. Any other provider name is treated as
// OpenAI-compatible and needs an endpoint.
var nativeProviders = map[string]bool{"anthropic": true, "openai": true, "google": true}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.embedding_dim", 384)
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.rate_limit.requests_per_second", 0)
	v.SetDefault("server.rate_limit.burst", 0)
	v.SetDefault("analyzer.kind", AnalyzerRules)
	v.SetDefault("analyzer.model", "anthropic/claude-haiku-4-5")
	v.SetDefault("analyzer.timeout", 30*time.Second)
	v.SetDefault("analyzer.max_tokens", 1024)
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.log", true)
}

// SetupEnv binds AUTOIR_* environment variables, with dots mapped to
// underscores (AUTOIR_SERVER_LISTEN overrides server.listen).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("AUTOIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, autoirerr.Errorf(autoirerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, autoirerr.Errorf(autoirerr.CodeConfigValidateInvalid, "validating config: %w", autoirerr.Join(errs...))
	}

	return &cfg, nil
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix AUTOIR_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, autoirerr.Errorf(autoirerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// Validate checks the configuration for logical errors.
// It returns every problem found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateAnalyzer()...)
	errs = append(errs, c.validateNotify()...)
	errs = append(errs, c.validatePipelines()...)

	return errs
}

func invalid(format string, args ...any) error {
	return autoirerr.Errorf(autoirerr.CodeConfigValidateInvalid, "config: "+format, args...)
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, invalid("storage.backend must be one of [sqlite], got %q", c.Storage.Backend))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, invalid("storage.data_dir must not be empty"))
	}
	if c.Storage.EmbeddingDim <= 0 {
		errs = append(errs, invalid("storage.embedding_dim must be greater than 0, got %d", c.Storage.EmbeddingDim))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
		} else if port, err := strconv.Atoi(portStr); err != nil {
			errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
		} else if port < 0 || port > 65535 {
			errs = append(errs, invalid("server.listen port must be between 0 and 65535, got %d", port))
		}
	}

	rl := c.Server.RateLimit
	if rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be greater than 0 when a rate is set, got %d", rl.Burst))
	}

	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error

	for name, p := range c.Providers {
		if p.APIKey == "" {
			errs = append(errs, invalid("providers.%s.api_key must not be empty", name))
		}
		if !nativeProviders[name] && p.Endpoint == "" {
			errs = append(errs, invalid("providers.%s.endpoint is required for OpenAI-compatible providers", name))
		}
	}

	return errs
}

func (c *Config) validateAnalyzer() []error {
	var errs []error

	switch c.Analyzer.Kind {
	case AnalyzerRules:
	case AnalyzerLLM:
		if len(c.Providers) == 0 {
			errs = append(errs, invalid("analyzer.kind %q requires at least one entry under providers", AnalyzerLLM))
		}
		errs = append(errs, c.checkModelRef("analyzer.model", c.Analyzer.Model)...)
		for i, ref := range c.Analyzer.Failover {
			errs = append(errs, c.checkModelRef("analyzer.failover["+strconv.Itoa(i)+"]", ref)...)
		}
	default:
		errs = append(errs, invalid("analyzer.kind must be one of [llm, rules], got %q", c.Analyzer.Kind))
	}

	if c.Analyzer.Timeout <= 0 {
		errs = append(errs, invalid("analyzer.timeout must be greater than 0, got %s", c.Analyzer.Timeout))
	}
	if c.Analyzer.MaxTokens <= 0 {
		errs = append(errs, invalid("analyzer.max_tokens must be greater than 0, got %d", c.Analyzer.MaxTokens))
	}

	return errs
}

func (c *Config) checkModelRef(key, ref string) []error {
	if !strings.Contains(ref, "/") {
		return []error{invalid("%s must be in \"provider/model\" format, got %q", key, ref)}
	}
	// An empty providers section is reported once by validateAnalyzer.
	if len(c.Providers) == 0 {
		return nil
	}
	name := providerFromModel(ref)
	if _, ok := c.Providers[name]; !ok {
		return []error{invalid("%s %q references provider %q which is not configured", key, ref, name)}
	}
	return nil
}

func (c *Config) validateNotify() []error {
	var errs []error

	if c.Notify.Timeout <= 0 {
		errs = append(errs, invalid("notify.timeout must be greater than 0, got %s", c.Notify.Timeout))
	}
	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID == 0 {
		errs = append(errs, invalid("notify.telegram.chat_id is required when a token is set"))
	}

	return errs
}

func (c *Config) validatePipelines() []error {
	var errs []error

	seen := make(map[string]bool, len(c.Pipelines))
	for i, p := range c.Pipelines {
		key := "pipelines[" + strconv.Itoa(i) + "]"
		if p.ID == "" {
			errs = append(errs, invalid("%s.id must not be empty", key))
		} else if seen[p.ID] {
			errs = append(errs, invalid("%s.id %q is used by another pipeline", key, p.ID))
		}
		seen[p.ID] = true

		if p.Table == "" {
			errs = append(errs, invalid("%s.table must not be empty", key))
		}
		if p.Interval != 0 && p.Schedule != "" {
			errs = append(errs, invalid("%s sets both interval and schedule", key))
		}
		if p.Window < 0 || p.Interval < 0 || p.MaxEvents < 0 || p.MaxSamplesPerIssue < 0 {
			errs = append(errs, invalid("%s durations and limits must not be negative", key))
		}
	}

	return errs
}

// providerFromModel extracts the provider prefix from a "provider/model" string.
func providerFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
