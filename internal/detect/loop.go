// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

// Package detect runs the windowed detection cycle: scan new events, filter
// locally, analyze, threshold, merge into incidents, notify on first
// occurrence and advance the pipeline cursor.
//
// Exactly one Loop owns a pipeline ID. The cursor store does no optimistic
// locking and the incident upsert is a lookup followed by insert-or-merge,
// both of which are only safe under that single-writer invariant.
package detect

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autoir-dev/autoir/internal/analyzer"
	"github.com/autoir-dev/autoir/internal/notify"
	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// Store is the slice of the query dispatcher a Loop uses.
// *query.Dispatcher satisfies it.
type Store interface {
	EnsureSchema(ctx context.Context, table string, dim int) error
	ResumeScan(ctx context.Context, table string, fromMs, afterSeq, toMs int64, limit int) ([]*store.LogEvent, error)
	LoadCursor(ctx context.Context, pipelineID string) (*store.Cursor, error)
	SaveCursor(ctx context.Context, c store.Cursor) error
	UpsertIncident(ctx context.Context, inc *store.Incident) (store.UpsertResult, error)
	LookupIncident(ctx context.Context, dedupeKey string) (*store.Incident, error)
}

// CycleReport summarizes one detection cycle.
type CycleReport struct {
	PipelineID    string        `json:"pipeline_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	WindowStartMs int64         `json:"window_start_ms"`
	WindowEndMs   int64         `json:"window_end_ms"`
	EventsScanned int           `json:"events_scanned"`
	EventsMatched int           `json:"events_matched"`
	Candidates    int           `json:"candidates"`
	Dropped       int           `json:"dropped"`
	Created       int           `json:"created"`
	Merged        int           `json:"merged"`
	CursorMs      int64         `json:"cursor_ms"`
	Error         string        `json:"error,omitempty"`
}

// Status is a point-in-time view of a Loop.
type Status struct {
	PipelineID string       `json:"pipeline_id"`
	Table      string       `json:"table"`
	State      string       `json:"state"`
	Cycles     int64        `json:"cycles"`
	Failures   int64        `json:"failures"`
	LastCycle  *CycleReport `json:"last_cycle,omitempty"`
}

// Option configures a Loop.
type Option func(*Loop)

// WithNowFunc overrides the clock.
func WithNowFunc(fn func() time.Time) Option {
	return func(l *Loop) { l.now = fn }
}

// WithMetrics records cycle metrics.
func WithMetrics(m *Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default() with a pipeline attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// Loop is the detection state machine for one pipeline.
type Loop struct {
	cfg      PipelineConfig
	store    Store
	analyzer analyzer.Analyzer
	notifier notify.Notifier
	filter   *Filter
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	state    atomic.Int32
	cycleMu  sync.Mutex
	cycles   atomic.Int64
	failures atomic.Int64

	mu   sync.RWMutex
	last *CycleReport
}

// NewLoop validates cfg and builds a Loop. A nil notifier disables
// notifications.
func NewLoop(cfg PipelineConfig, st Store, an analyzer.Analyzer, nt notify.Notifier, opts ...Option) (*Loop, error) {
	cfg = cfg.withDefaults()
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, autoirerr.JoinCode(autoirerr.CodeDetectConfigInvalid, errs...)
	}
	if st == nil || an == nil {
		return nil, autoirerr.Errorf(autoirerr.CodeDetectConfigInvalid, "pipeline %q: store and analyzer are required", cfg.ID)
	}

	filter, err := NewFilter(cfg.ErrorPattern, cfg.MaxSamplesPerIssue)
	if err != nil {
		return nil, autoirerr.Errorf(autoirerr.CodeDetectConfigInvalid, "pipeline %q: %s", cfg.ID, err)
	}

	l := &Loop{
		cfg:      cfg,
		store:    st,
		analyzer: an,
		notifier: nt,
		filter:   filter,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("pipeline", cfg.ID)
	return l, nil
}

// Config returns the effective pipeline configuration.
func (l *Loop) Config() PipelineConfig { return l.cfg }

// State returns the current state.
func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

// Status reports counters and the last cycle.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Status{
		PipelineID: l.cfg.ID,
		Table:      l.cfg.Table,
		State:      l.State().String(),
		Cycles:     l.cycles.Load(),
		Failures:   l.failures.Load(),
	}
	if l.last != nil {
		last := *l.last
		st.LastCycle = &last
	}
	return st
}

// Start ensures the pipeline's table exists with the configured embedding
// dimension. A schema mismatch is fatal for the pipeline.
func (l *Loop) Start(ctx context.Context) error {
	if err := l.store.EnsureSchema(ctx, l.cfg.Table, l.cfg.EmbeddingDim); err != nil {
		l.setState(StateStopped)
		if autoirerr.IsSchemaMismatch(err) {
			l.logger.Error("schema mismatch, pipeline stopped", "table", l.cfg.Table, "error", err)
		}
		return err
	}
	l.setState(StateIdle)
	return nil
}

// RunCycle runs one full cycle. Cancellation is only observed before
// Scanning; once a cycle starts it runs to completion, with the analyzer
// and notifier calls bounded by their own timeouts.
func (l *Loop) RunCycle(ctx context.Context) (CycleReport, error) {
	if err := ctx.Err(); err != nil {
		return CycleReport{PipelineID: l.cfg.ID}, err
	}

	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	started := time.Now()
	report, err := l.cycle(context.WithoutCancel(ctx))
	report.Duration = time.Since(started)
	if err != nil {
		report.Error = err.Error()
		l.failures.Add(1)
	}
	l.cycles.Add(1)
	l.setState(StateIdle)
	l.metrics.observeCycle(report, err)

	l.mu.Lock()
	l.last = &report
	l.mu.Unlock()
	return report, err
}

func (l *Loop) cycle(ctx context.Context) (CycleReport, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	report := CycleReport{PipelineID: l.cfg.ID, StartedAt: now, WindowEndMs: nowMs}

	// Scanning
	l.setState(StateScanning)
	floor := nowMs - l.cfg.Window.Milliseconds()
	cursor, err := l.store.LoadCursor(ctx, l.cfg.ID)
	if err != nil {
		return report, err
	}
	// The scan resumes strictly after (start, afterSeq), so events sharing
	// the last consumed timestamp are not skipped after a truncated scan.
	start, afterSeq := floor, int64(0)
	if cursor != nil && cursor.LastPosition >= floor {
		start, afterSeq = cursor.LastPosition, cursor.LastSeq
	}
	report.WindowStartMs = start

	var events []*store.LogEvent
	if start < nowMs || (start == nowMs && afterSeq > 0) {
		events, err = l.store.ResumeScan(ctx, l.cfg.Table, start, afterSeq, nowMs, l.cfg.MaxEvents)
		if err != nil {
			return report, err
		}
	}
	report.EventsScanned = len(events)

	if len(events) > 0 {
		if err := l.detect(ctx, start, nowMs, events, &report); err != nil {
			return report, err
		}
	}

	// Advancing
	l.setState(StateAdvancing)
	next := store.Cursor{PipelineID: l.cfg.ID, LastPosition: nowMs}
	switch {
	case len(events) > 0:
		last := events[len(events)-1]
		next.LastPosition, next.LastID, next.LastSeq = last.TimestampMs, last.ID, last.Seq
	case start >= nowMs && cursor != nil:
		// Nothing new at the resume point; keep its sequence.
		next.LastPosition, next.LastID, next.LastSeq = start, cursor.LastID, afterSeq
	}
	if err := l.store.SaveCursor(ctx, next); err != nil {
		return report, err
	}
	report.CursorMs = next.LastPosition
	return report, nil
}

// detect runs Filtering through Notifying for a non-empty window. A failed
// upsert does not stop the remaining candidates, and incidents created in
// this cycle are notified before the upsert errors are returned.
func (l *Loop) detect(ctx context.Context, startMs, endMs int64, events []*store.LogEvent, report *CycleReport) error {
	// Filtering
	l.setState(StateFiltering)
	fr := l.filter.Apply(events)
	report.EventsMatched = len(fr.Matched)
	if len(fr.Matched) == 0 {
		return nil
	}

	// Analyzing
	l.setState(StateAnalyzing)
	candidates := l.analyze(ctx, analyzer.Input{
		Window:     analyzer.Window{StartMs: startMs, EndMs: endMs},
		Aggregates: fr.Aggregates,
		Samples:    fr.Samples,
	})
	report.Candidates = len(candidates)

	// Thresholding
	l.setState(StateThresholding)
	var kept []analyzer.Candidate
	for _, c := range candidates {
		if !c.Severity.AtLeast(l.cfg.MinSeverity) || c.Confidence < l.cfg.MinConfidence {
			report.Dropped++
			l.logger.Debug("candidate below threshold", "title", c.Title, "severity", c.Severity, "confidence", c.Confidence)
			continue
		}
		kept = append(kept, c)
	}

	// Merging
	l.setState(StateMerging)
	var (
		created []*store.Incident
		errs    []error
	)
	for _, c := range kept {
		inc := l.buildIncident(c, startMs, endMs, fr)
		res, err := l.store.UpsertIncident(ctx, inc)
		if err != nil {
			l.logger.Warn("incident upsert failed", "dedupe_key", inc.DedupeKey, "error", err)
			errs = append(errs, err)
			continue
		}
		if !res.Created {
			report.Merged++
			continue
		}
		report.Created++
		inc.ID = res.ID
		if stored, err := l.store.LookupIncident(ctx, inc.DedupeKey); err == nil && stored != nil {
			inc = stored
		}
		created = append(created, inc)
	}

	// Notifying
	l.setState(StateNotifying)
	for _, inc := range created {
		l.notify(ctx, inc)
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return autoirerr.JoinCode(autoirerr.CodeDetectLoopFailure, errs...)
	}
}

// analyze calls the analyzer under a timeout. Any failure is logged and
// yields zero candidates.
func (l *Loop) analyze(ctx context.Context, in analyzer.Input) []analyzer.Candidate {
	actx, cancel := context.WithTimeout(ctx, l.cfg.AnalyzerTimeout)
	defer cancel()

	candidates, err := l.analyzer.Analyze(actx, in)
	if err == nil && actx.Err() != nil {
		err = autoirerr.New(autoirerr.CodeAnalyzerTimeout, "analyzer exceeded "+l.cfg.AnalyzerTimeout.String())
	}
	if err != nil {
		l.logger.Warn("analyzer failed, treating as zero candidates",
			"analyzer", l.analyzer.Name(),
			"code", autoirerr.CodeOf(err),
			"error", err,
		)
		return nil
	}
	return candidates
}

func (l *Loop) notify(ctx context.Context, inc *store.Incident) {
	if l.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, l.cfg.NotifyTimeout)
	defer cancel()

	if err := l.notifier.Notify(nctx, inc); err != nil {
		l.logger.Warn("notification failed", "notifier", l.notifier.Name(), "incident", inc.ID, "error", err)
		return
	}
	l.logger.Info("incident notified", "incident", inc.ID, "severity", inc.Severity, "title", inc.Title)
}

// buildIncident turns a candidate into the record upserted by dedupe key.
// Counts and timestamps come from the matched events of the candidate's
// group, or from every matched event when the group is unknown.
func (l *Loop) buildIncident(c analyzer.Candidate, startMs, endMs int64, fr FilterResult) *store.Incident {
	group := c.Group
	if group == "" && len(fr.Aggregates) == 1 {
		group = fr.Aggregates[0].Group
	}

	related := fr.Matched
	if group != "" {
		var inGroup []*store.LogEvent
		for _, e := range fr.Matched {
			if e.Group == group {
				inGroup = append(inGroup, e)
			}
		}
		if len(inGroup) > 0 {
			related = inGroup
		}
	}

	inc := &store.Incident{
		Severity:      c.Severity,
		Title:         c.Title,
		Summary:       c.Summary,
		AffectedGroup: group,
		EventCount:    int64(len(related)),
		DedupeKey:     c.DedupeKey,
		Context: map[string]any{
			"pipeline":        l.cfg.ID,
			"window_start_ms": startMs,
			"window_end_ms":   endMs,
			"confidence":      c.Confidence,
			"analyzer":        l.analyzer.Name(),
		},
	}
	if len(c.Tags) > 0 {
		inc.Context["tags"] = c.Tags
	}
	if inc.DedupeKey == "" {
		inc.DedupeKey = DedupeKey(c.Title, group)
	}

	stream := related[0].Stream
	for i, e := range related {
		if i == 0 || e.TimestampMs < inc.FirstSeenMs {
			inc.FirstSeenMs = e.TimestampMs
		}
		if e.TimestampMs > inc.LastSeenMs {
			inc.LastSeenMs = e.TimestampMs
		}
		if e.Stream != stream {
			stream = ""
		}
		if len(inc.SampleEventIDs) < l.cfg.MaxSamplesPerIssue {
			inc.SampleEventIDs = append(inc.SampleEventIDs, e.ID)
		}
	}
	inc.AffectedStream = stream
	return inc
}
