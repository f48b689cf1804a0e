// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package detect_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/autoir-dev/autoir/internal/analyzer"
	"github.com/autoir-dev/autoir/internal/detect"
	"github.com/autoir-dev/autoir/internal/query"
	"github.com/autoir-dev/autoir/internal/store"
	_ "github.com/autoir-dev/autoir/internal/store/sqlite" // register sqlite backend
	"github.com/stretchr/testify/require"
)

const testTable = "app_logs"

var baseTime = time.UnixMilli(1_700_000_000_000)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedAnalyzer returns fixed candidates, an error, or blocks until its
// context ends.
type scriptedAnalyzer struct {
	mu         sync.Mutex
	candidates []analyzer.Candidate
	err        error
	block      bool
	inputs     []analyzer.Input
}

func (a *scriptedAnalyzer) Name() string { return "scripted" }

func (a *scriptedAnalyzer) Analyze(ctx context.Context, in analyzer.Input) ([]analyzer.Candidate, error) {
	a.mu.Lock()
	a.inputs = append(a.inputs, in)
	a.mu.Unlock()
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return a.candidates, a.err
}

func (a *scriptedAnalyzer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inputs)
}

type recordingNotifier struct {
	mu       sync.Mutex
	incident []*store.Incident
	err      error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(_ context.Context, inc *store.Incident) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incident = append(n.incident, inc)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.incident)
}

func newDispatcher(t *testing.T) *query.Dispatcher {
	t.Helper()
	stores, err := store.Open(&store.StorageConfig{Backend: "sqlite", EmbeddingDim: 3}, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })
	return query.NewFromStores(stores)
}

// insertEvents writes n events into testTable, one second apart, ending
// at end.
func insertEvents(t *testing.T, d *query.Dispatcher, end time.Time, n int, group, msg string) []*store.LogEvent {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, d.EnsureSchema(ctx, testTable, 3))

	events := make([]*store.LogEvent, 0, n)
	for i := range n {
		e := &store.LogEvent{
			ID:          fmt.Sprintf("%s-%d-%d", group, end.UnixMilli(), i),
			Group:       group,
			Stream:      group + "-stream",
			TimestampMs: end.Add(-time.Duration(n-1-i) * time.Second).UnixMilli(),
			Message:     msg,
			Embedding:   []float32{1, float32(i), 0},
		}
		require.NoError(t, d.InsertEvent(ctx, testTable, e))
		events = append(events, e)
	}
	return events
}

func pipelineConfig() detect.PipelineConfig {
	return detect.PipelineConfig{
		ID:           "prod-errors",
		Table:        testTable,
		Window:       15 * time.Minute,
		Interval:     10 * time.Millisecond,
		EmbeddingDim: 3,
	}
}
