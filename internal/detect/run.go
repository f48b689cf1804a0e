// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package detect

import (
	"context"
	"time"

	rcron "github.com/robfig/cron/v3"

	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// Run starts the pipeline and cycles until ctx is cancelled. It returns an
// error only when the pipeline cannot start; single cycle failures are
// logged and the loop continues.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	defer l.setState(StateStopped)

	if l.cfg.Schedule != "" {
		return l.runCron(ctx)
	}
	return l.runInterval(ctx)
}

func (l *Loop) runInterval(ctx context.Context) error {
	l.logger.Info("detection loop started", "table", l.cfg.Table, "interval", l.cfg.Interval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("detection loop stopped")
			return nil
		case <-timer.C:
		}
		l.runOnce(ctx)
		timer.Reset(l.cfg.Interval)
	}
}

// runCron fires cycles on the cron schedule. A trigger that arrives while
// the previous cycle is still running is skipped.
func (l *Loop) runCron(ctx context.Context) error {
	c := rcron.New(
		rcron.WithParser(scheduleParser),
		rcron.WithChain(rcron.SkipIfStillRunning(cronLogger{l})),
	)
	if _, err := c.AddFunc(l.cfg.Schedule, func() { l.runOnce(ctx) }); err != nil {
		return autoirerr.Errorf(autoirerr.CodeDetectConfigInvalid, "pipeline %q: schedule: %s", l.cfg.ID, err)
	}

	l.logger.Info("detection loop started", "table", l.cfg.Table, "schedule", l.cfg.Schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	l.logger.Info("detection loop stopped")
	return nil
}

func (l *Loop) runOnce(ctx context.Context) {
	report, err := l.RunCycle(ctx)
	switch {
	case err == nil:
		l.logger.Debug("cycle complete",
			"events", report.EventsScanned,
			"matched", report.EventsMatched,
			"created", report.Created,
			"merged", report.Merged,
			"cursor", report.CursorMs,
		)
	case ctx.Err() != nil:
	default:
		l.logger.Warn("cycle failed", "code", autoirerr.CodeOf(err), "error", err)
	}
}

// cronLogger adapts the loop logger to rcron.Logger.
type cronLogger struct{ l *Loop }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
