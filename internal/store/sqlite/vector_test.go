// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package sqlite_test

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/autoir-dev/autoir/internal/store"
	"github.com/autoir-dev/autoir/internal/store/sqlite"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVectorStore(t *testing.T) *sqlite.VectorStore {
	t.Helper()
	vs, err := sqlite.NewVectorStore(testDir(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

// unitAt returns a 2-d unit vector whose cosine distance to (1, 0) is d.
func unitAt(d float64) []float32 {
	c := 1 - d
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func TestVectorStore_EnsureSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)

	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 384))
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 384))

	tables, err := vs.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "app_logs", tables[0].Name)
	assert.Equal(t, 384, tables[0].EmbeddingDim)
	assert.Equal(t, int64(0), tables[0].EventCount)
}

func TestVectorStore_EnsureSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)

	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 384))

	err := vs.EnsureSchema(ctx, "app_logs", 256)
	require.Error(t, err)
	assert.True(t, autoirerr.IsSchemaMismatch(err))
	assert.ErrorIs(t, err, store.ErrSchemaMismatch)
}

func TestVectorStore_EnsureSchemaMismatchAfterReopen(t *testing.T) {
	ctx := context.Background()
	dir := testDir(t)

	vs, err := sqlite.NewVectorStore(dir)
	require.NoError(t, err)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 384))
	require.NoError(t, vs.Close())

	reopened, err := sqlite.NewVectorStore(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	err = reopened.EnsureSchema(ctx, "app_logs", 256)
	assert.True(t, autoirerr.IsSchemaMismatch(err))
}

func TestVectorStore_EnsureSchemaRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)

	err := vs.EnsureSchema(ctx, "app_logs", 0)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	err = vs.EnsureSchema(ctx, "../escape", 4)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestVectorStore_InsertRequiresSchema(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)

	err := vs.Insert(ctx, "missing", event(1, 1000, 1, 0))
	require.Error(t, err)
	assert.True(t, autoirerr.IsNotFound(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestVectorStore_InsertRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 3))

	err := vs.Insert(ctx, "app_logs", event(1, 1000, 1, 0))
	require.Error(t, err)
	assert.True(t, autoirerr.IsSchemaMismatch(err))

	err = vs.Insert(ctx, "app_logs", &store.LogEvent{ID: "x", TimestampMs: 1})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestVectorStore_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))

	// Inserted farthest first so ordering cannot come from insertion order.
	require.NoError(t, vs.Insert(ctx, "app_logs", event(1, 1000, unitAt(0.9)...)))
	require.NoError(t, vs.Insert(ctx, "app_logs", event(2, 1001, unitAt(0.4)...)))
	require.NoError(t, vs.Insert(ctx, "app_logs", event(3, 1002, unitAt(0.1)...)))

	results, err := vs.Search(ctx, "app_logs", []float32{1, 0}, 3, store.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "evt-003", results[0].Event.ID)
	assert.Equal(t, "evt-002", results[1].Event.ID)
	assert.Equal(t, "evt-001", results[2].Event.ID)
	assert.InDelta(t, 0.1, results[0].Distance, 1e-5)
	assert.InDelta(t, 0.4, results[1].Distance, 1e-5)
	assert.InDelta(t, 0.9, results[2].Distance, 1e-5)
	assert.Len(t, results[0].Event.Embedding, 2)
}

func TestVectorStore_SearchTiesBrokenByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))

	for i := 1; i <= 3; i++ {
		require.NoError(t, vs.Insert(ctx, "app_logs", event(i, int64(1000-i), 0, 1)))
	}

	results, err := vs.Search(ctx, "app_logs", []float32{0, 2}, 2, store.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "evt-001", results[0].Event.ID)
	assert.Equal(t, "evt-002", results[1].Event.ID)
}

func TestVectorStore_SearchFilters(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))

	events := []*store.LogEvent{
		{ID: "a", Group: "api", TimestampMs: 100, Message: "short", Embedding: []float32{1, 0}},
		{ID: "b", Group: "api", TimestampMs: 200, Message: "a much longer message", Embedding: []float32{1, 0.1}},
		{ID: "c", Group: "worker", TimestampMs: 300, Message: "a much longer message", Embedding: []float32{1, 0.2}},
	}
	for _, e := range events {
		require.NoError(t, vs.Insert(ctx, "app_logs", e))
	}

	minTS := int64(150)
	minLen := 10

	tests := []struct {
		name    string
		filters store.SearchFilters
		wantIDs []string
	}{
		{name: "no filters", filters: store.SearchFilters{}, wantIDs: []string{"a", "b", "c"}},
		{name: "group", filters: store.SearchFilters{Group: "api"}, wantIDs: []string{"a", "b"}},
		{name: "min timestamp", filters: store.SearchFilters{MinTimestampMs: &minTS}, wantIDs: []string{"b", "c"}},
		{name: "min message length", filters: store.SearchFilters{MinMessageLength: &minLen}, wantIDs: []string{"b", "c"}},
		{name: "combined", filters: store.SearchFilters{Group: "worker", MinTimestampMs: &minTS, MinMessageLength: &minLen}, wantIDs: []string{"c"}},
		{name: "nothing matches", filters: store.SearchFilters{Group: "db"}, wantIDs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := vs.Search(ctx, "app_logs", []float32{1, 0}, 10, tt.filters)
			require.NoError(t, err)

			var ids []string
			for _, r := range results {
				ids = append(ids, r.Event.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestVectorStore_SearchEmptyCases(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))

	results, err := vs.Search(ctx, "app_logs", []float32{1, 0}, 5, store.SearchFilters{})
	require.NoError(t, err, "empty table")
	assert.Empty(t, results)

	require.NoError(t, vs.Insert(ctx, "app_logs", event(1, 1000, 1, 0)))

	results, err = vs.Search(ctx, "app_logs", nil, 5, store.SearchFilters{})
	require.NoError(t, err, "empty query")
	assert.Empty(t, results)

	results, err = vs.Search(ctx, "app_logs", []float32{0, 0}, 5, store.SearchFilters{})
	require.NoError(t, err, "zero query")
	assert.Empty(t, results)

	results, err = vs.Search(ctx, "app_logs", []float32{1, 0}, 0, store.SearchFilters{})
	require.NoError(t, err, "k=0")
	assert.Empty(t, results)

	results, err = vs.Search(ctx, "never_created", []float32{1, 0}, 5, store.SearchFilters{})
	require.NoError(t, err, "missing table")
	assert.Empty(t, results)
}

func TestVectorStore_SearchQueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))
	require.NoError(t, vs.Insert(ctx, "app_logs", event(1, 1000, 1, 0)))

	_, err := vs.Search(ctx, "app_logs", []float32{1, 0, 0}, 5, store.SearchFilters{})
	assert.True(t, autoirerr.IsSchemaMismatch(err))
}

func TestVectorStore_RangeScanBound(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))

	// 150 events at ts 1001..1150, inserted in shuffled order.
	order := rand.Perm(150)
	for _, i := range order {
		require.NoError(t, vs.Insert(ctx, "app_logs", event(i, int64(1001+i), 1, 0)))
	}

	events, err := vs.RangeScan(ctx, "app_logs", 1000, 2000, 100)
	require.NoError(t, err)
	require.Len(t, events, 100)

	for i, e := range events {
		assert.Equal(t, int64(1001+i), e.TimestampMs)
	}
}

func TestVectorStore_RangeScanBoundaries(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))

	for i, ts := range []int64{100, 200, 300} {
		require.NoError(t, vs.Insert(ctx, "app_logs", event(i, ts, 1, 0)))
	}

	events, err := vs.RangeScan(ctx, "app_logs", 100, 300, 10)
	require.NoError(t, err)
	require.Len(t, events, 2, "from is exclusive, to is inclusive")
	assert.Equal(t, int64(200), events[0].TimestampMs)
	assert.Equal(t, int64(300), events[1].TimestampMs)

	events, err = vs.RangeScan(ctx, "app_logs", 300, 400, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = vs.RangeScan(ctx, "never_created", 0, 400, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestVectorStore_RangeScanAfterResumesWithinTimestamp(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))

	for i, ts := range []int64{500, 500, 500, 600} {
		require.NoError(t, vs.Insert(ctx, "app_logs", event(i, ts, 1, 0)))
	}

	first, err := vs.RangeScan(ctx, "app_logs", 0, 1000, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "evt-000", first[0].ID)
	assert.Equal(t, "evt-001", first[1].ID)
	assert.Less(t, first[0].Seq, first[1].Seq)

	rest, err := vs.RangeScanAfter(ctx, "app_logs", 500, first[1].Seq, 1000, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "evt-002", rest[0].ID)
	assert.Equal(t, "evt-003", rest[1].ID)

	tie, err := vs.RangeScanAfter(ctx, "app_logs", 500, first[1].Seq, 500, 10)
	require.NoError(t, err)
	require.Len(t, tie, 1, "upper bound equal to the resume timestamp still yields the tie")
	assert.Equal(t, "evt-002", tie[0].ID)

	noSeq, err := vs.RangeScanAfter(ctx, "app_logs", 500, 0, 1000, 10)
	require.NoError(t, err)
	require.Len(t, noSeq, 1, "without a sequence the lower bound is exclusive")
	assert.Equal(t, "evt-003", noSeq[0].ID)
}

func TestVectorStore_ReinsertAppends(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))

	e := event(1, 1000, 1, 0)
	require.NoError(t, vs.Insert(ctx, "app_logs", e))
	require.NoError(t, vs.Insert(ctx, "app_logs", e))

	events, err := vs.RangeScan(ctx, "app_logs", 0, 2000, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestVectorStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := testDir(t)

	vs, err := sqlite.NewVectorStore(dir)
	require.NoError(t, err)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))
	require.NoError(t, vs.Insert(ctx, "app_logs", event(1, 1000, 0.5, 0.25)))
	require.NoError(t, vs.Close())

	reopened, err := sqlite.NewVectorStore(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	events, err := reopened.RangeScan(ctx, "app_logs", 0, 2000, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []float32{0.5, 0.25}, events[0].Embedding)
	assert.Equal(t, "/aws/lambda/api", events[0].Group)
}

func TestVectorStore_ConcurrentInsertAndScan(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)
	require.NoError(t, vs.EnsureSchema(ctx, "app_logs", 2))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 50 {
			assert.NoError(t, vs.Insert(ctx, "app_logs", event(i, int64(1000+i), 1, 0)))
		}
	}()
	go func() {
		defer wg.Done()
		for range 20 {
			events, err := vs.RangeScan(ctx, "app_logs", 0, 5000, 100)
			assert.NoError(t, err)
			for _, e := range events {
				assert.Len(t, e.Embedding, 2)
			}
		}
	}()
	wg.Wait()

	events, err := vs.RangeScan(ctx, "app_logs", 0, 5000, 100)
	require.NoError(t, err)
	assert.Len(t, events, 50)
}
