// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/autoir-dev/autoir/internal/store"
)

// Log writes alerts to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log notifier. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Notify(ctx context.Context, inc *store.Incident) error {
	l.logger.LogAttrs(ctx, slog.LevelWarn, "incident opened",
		slog.String("id", inc.ID),
		slog.String("severity", string(inc.Severity)),
		slog.String("title", inc.Title),
		slog.String("group", inc.AffectedGroup),
		slog.Int64("event_count", inc.EventCount),
		slog.String("dedupe_key", inc.DedupeKey),
	)
	return nil
}
