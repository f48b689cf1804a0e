// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/autoir-dev/autoir/internal/analyzer"
	"github.com/autoir-dev/autoir/internal/config"
	"github.com/autoir-dev/autoir/internal/detect"
	"github.com/autoir-dev/autoir/internal/notify"
	"github.com/autoir-dev/autoir/internal/provider"
	anthropicprov "github.com/autoir-dev/autoir/internal/provider/anthropic"
	googleprov "github.com/autoir-dev/autoir/internal/provider/google"
	openaiprov "github.com/autoir-dev/autoir/internal/provider/openai"
	"github.com/autoir-dev/autoir/internal/query"
	"github.com/autoir-dev/autoir/internal/server"
	"github.com/autoir-dev/autoir/internal/store"
	_ "github.com/autoir-dev/autoir/internal/store/sqlite" // register sqlite backend
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Stores     *store.Stores
	Dispatcher *query.Dispatcher
	Providers  *provider.Registry
	Analyzer   analyzer.Analyzer
	Notifier   notify.Notifier
	Pipelines  detect.Pipelines
	Server     *server.Server
	Metrics    *prometheus.Registry
}

// WireApp creates all subsystems and wires them together. Nothing runs
// until Run is called.
func WireApp(cfg *config.Config) (_ *App, err error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o750); err != nil {
		return nil, autoirerr.Errorf(autoirerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	app := &App{Metrics: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()
	app.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 1. Stores and the dispatcher in front of them.
	app.Stores, err = store.Open(&store.StorageConfig{
		Backend:      cfg.Storage.Backend,
		EmbeddingDim: cfg.Storage.EmbeddingDim,
	}, cfg.Storage.DataDir)
	if err != nil {
		return nil, autoirerr.Errorf(autoirerr.CodeCLISetupFailure, "opening stores: %w", err)
	}
	app.Dispatcher = query.NewFromStores(app.Stores)

	// 2. Provider registry.
	app.Providers = provider.NewRegistry()
	if err := registerProviders(cfg, app.Providers); err != nil {
		return nil, err
	}

	// 3. Analyzer.
	app.Analyzer, err = newAnalyzer(cfg, app.Providers)
	if err != nil {
		return nil, err
	}

	// 4. Notifiers.
	app.Notifier, err = newNotifier(cfg)
	if err != nil {
		return nil, err
	}

	// 5. Detection loops. Each pipeline owns its cursor.
	metrics := detect.NewMetrics(app.Metrics)
	for _, pc := range cfg.Pipelines {
		loop, err := detect.NewLoop(pipelineConfig(cfg, pc), app.Dispatcher, app.Analyzer, app.Notifier,
			detect.WithMetrics(metrics),
			detect.WithLogger(slog.Default()),
		)
		if err != nil {
			return nil, autoirerr.Errorf(autoirerr.CodeCLISetupFailure, "pipeline %q: %w", pc.ID, err)
		}
		app.Pipelines = append(app.Pipelines, loop)
	}
	if len(app.Pipelines) == 0 {
		slog.Warn("no pipelines configured; serving the API only")
	}

	// 6. HTTP server.
	services, err := server.NewServices(app.Dispatcher, app.Pipelines, app.Providers)
	if err != nil {
		return nil, err
	}
	app.Server, err = server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		Version:  version,
		Gatherer: app.Metrics,
		Services: services,
	})
	if err != nil {
		return nil, autoirerr.Errorf(autoirerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return app, nil
}

// Run serves the API and runs every pipeline until ctx is cancelled or the
// server fails. A pipeline that cannot start stops alone; the others and
// the API keep running.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Server.Start(ctx)
	})
	g.Go(func() error {
		for _, err := range a.Pipelines.Run(ctx) {
			slog.Error("pipeline stopped", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// Close releases every subsystem. It is safe on a partially wired App.
func (a *App) Close() error {
	var errs []error
	if a.Server != nil {
		errs = append(errs, a.Server.Close())
	}
	if a.Providers != nil {
		errs = append(errs, a.Providers.Close())
	}
	if a.Stores != nil {
		errs = append(errs, a.Stores.Close())
	}
	return autoirerr.Join(errs...)
}

// registerProviders builds a client per configured provider. Names other
// than the native three are OpenAI-compatible endpoints.
func registerProviders(cfg *config.Config, reg *provider.Registry) error {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]

		var (
			p   provider.Provider
			err error
		)
		switch name {
		case "anthropic":
			p, err = anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
		case "google":
			p, err = googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
		default:
			p, err = openaiprov.New(openaiprov.Config{Name: name, APIKey: pc.APIKey, BaseURL: pc.Endpoint})
		}
		if err != nil {
			return autoirerr.Errorf(autoirerr.CodeCLISetupFailure, "provider %q: %w", name, err)
		}
		reg.Register(name, p)
		slog.Debug("registered provider", "provider", name)
	}
	return nil
}

func newAnalyzer(cfg *config.Config, reg *provider.Registry) (analyzer.Analyzer, error) {
	if cfg.Analyzer.Kind == config.AnalyzerLLM {
		if err := reg.SetDefault(cfg.Analyzer.Model); err != nil {
			return nil, autoirerr.Errorf(autoirerr.CodeCLISetupFailure, "setting analyzer model %s: %w", cfg.Analyzer.Model, err)
		}
		if len(cfg.Analyzer.Failover) > 0 {
			if err := reg.SetFailover(cfg.Analyzer.Failover); err != nil {
				return nil, autoirerr.Errorf(autoirerr.CodeCLISetupFailure, "setting analyzer failover: %w", err)
			}
		}
		return analyzer.NewLLM(reg, analyzer.WithMaxTokens(cfg.Analyzer.MaxTokens)), nil
	}

	rules := analyzer.DefaultRules()
	if cfg.Analyzer.RulesFile != "" {
		var err error
		if rules, err = analyzer.LoadRules(cfg.Analyzer.RulesFile); err != nil {
			return nil, err
		}
	}
	return analyzer.NewRules(rules)
}

// newNotifier returns nil when no notifier is enabled.
func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	var out notify.Multi
	if cfg.Notify.Log {
		out = append(out, notify.NewLog(slog.Default()))
	}
	if cfg.Notify.Webhook.URL != "" {
		wh, err := notify.NewWebhook(cfg.Notify.Webhook.URL,
			notify.WithWebhookTimeout(cfg.Notify.Timeout),
			notify.WithWebhookHeaders(cfg.Notify.Webhook.Headers),
		)
		if err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

func pipelineConfig(cfg *config.Config, pc config.PipelineConfig) detect.PipelineConfig {
	severity := store.Severity(pc.MinSeverity)
	if s, ok := store.ParseSeverity(pc.MinSeverity); ok {
		severity = s
	}
	confidence := detect.DefaultMinConfidence
	if pc.MinConfidence != nil {
		confidence = *pc.MinConfidence
	}
	return detect.PipelineConfig{
		ID:                 pc.ID,
		Table:              pc.Table,
		Window:             pc.Window,
		Interval:           pc.Interval,
		Schedule:           pc.Schedule,
		MaxEvents:          pc.MaxEvents,
		MaxSamplesPerIssue: pc.MaxSamplesPerIssue,
		MinSeverity:        severity,
		MinConfidence:      confidence,
		ErrorPattern:       pc.ErrorPattern,
		EmbeddingDim:       cfg.Storage.EmbeddingDim,
		AnalyzerTimeout:    cfg.Analyzer.Timeout,
		NotifyTimeout:      cfg.Notify.Timeout,
	}
}
