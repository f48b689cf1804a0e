// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package detect

import (
	"regexp"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

const (
	DefaultWindow             = 15 * time.Minute
	DefaultInterval           = 60 * time.Second
	DefaultMaxEvents          = 500
	DefaultMaxSamplesPerIssue = 20
	DefaultMinSeverity        = store.SeverityMedium
	DefaultMinConfidence      = 0.6
	DefaultAnalyzerTimeout    = 30 * time.Second
	DefaultNotifyTimeout      = 10 * time.Second
)

// DefaultErrorPattern selects error-like log lines for analysis.
const DefaultErrorPattern = `(?i)\b(error|err|exception|fatal|panic|fail(ed|ure)?|timed? ?out|refused|denied|oom\w*|killed|critical|unavailable|5\d\d)\b`

// scheduleParser accepts standard five-field expressions, an optional
// leading seconds field, and descriptors such as @every 30s.
var scheduleParser = rcron.NewParser(
	rcron.SecondOptional | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor,
)

// PipelineConfig describes one detection pipeline. Exactly one Loop may
// run per pipeline ID.
type PipelineConfig struct {
	ID                 string
	Table              string
	Window             time.Duration
	Interval           time.Duration
	Schedule           string // cron expression; overrides Interval when set
	MaxEvents          int
	MaxSamplesPerIssue int
	MinSeverity        store.Severity
	MinConfidence      float64
	ErrorPattern       string
	EmbeddingDim       int
	AnalyzerTimeout    time.Duration
	NotifyTimeout      time.Duration
}

// withDefaults fills zero fields.
func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	if c.MaxSamplesPerIssue <= 0 {
		c.MaxSamplesPerIssue = DefaultMaxSamplesPerIssue
	}
	if c.MinSeverity == "" {
		c.MinSeverity = DefaultMinSeverity
	}
	if c.ErrorPattern == "" {
		c.ErrorPattern = DefaultErrorPattern
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = store.DefaultEmbeddingDim
	}
	if c.AnalyzerTimeout <= 0 {
		c.AnalyzerTimeout = DefaultAnalyzerTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
	return c
}

// Validate checks a pipeline after defaults are applied and returns every
// problem found.
func (c PipelineConfig) Validate() []error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, autoirerr.Errorf(autoirerr.CodeDetectConfigInvalid, "pipeline %q: "+format, append([]any{c.ID}, args...)...))
	}

	if c.ID == "" {
		invalid("id must not be empty")
	}
	if err := store.ValidateTableName(c.Table); err != nil {
		invalid("table %q is not a valid table name", c.Table)
	}
	if !c.MinSeverity.Valid() {
		invalid("unknown min_severity %q", c.MinSeverity)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		invalid("min_confidence must be in [0,1], got %v", c.MinConfidence)
	}
	if _, err := regexp.Compile(c.ErrorPattern); err != nil {
		invalid("error_pattern: %s", err)
	}
	if c.Schedule != "" {
		if _, err := ParseSchedule(c.Schedule); err != nil {
			invalid("schedule: %s", err)
		}
	}
	return errs
}

// ParseSchedule parses a cron expression the way pipelines interpret it.
func ParseSchedule(expr string) (rcron.Schedule, error) {
	return scheduleParser.Parse(expr)
}
