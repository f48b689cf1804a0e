// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/autoir-dev/autoir/internal/store"
	"github.com/autoir-dev/autoir/internal/store/sqlite"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIncidentStore(t *testing.T) *sqlite.IncidentStore {
	t.Helper()
	is, err := sqlite.NewIncidentStore(testDBPath(t, "incidents"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = is.Close() })
	return is
}

// fixedClock returns a clock that advances by one second per call.
func fixedClock(startMs int64) func() time.Time {
	var mu sync.Mutex
	now := startMs
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := time.UnixMilli(now)
		now += 1000
		return t
	}
}

func newIncident(key string) *store.Incident {
	return &store.Incident{
		Severity:       store.SeverityHigh,
		Title:          "Database timeouts",
		Summary:        "connection pool exhausted",
		AffectedGroup:  "/aws/lambda/api",
		FirstSeenMs:    1000,
		LastSeenMs:     2000,
		EventCount:     3,
		SampleEventIDs: []string{"e1", "e2"},
		Context:        map[string]any{"pipeline": "alerts"},
		DedupeKey:      key,
	}
}

func TestIncidentStore_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)
	is.SetNowFunc(fixedClock(10_000))

	id, err := is.Insert(ctx, newIncident("db-timeouts"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := is.FindByDedupeKey(ctx, "db-timeouts")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, id, got.ID)
	assert.Equal(t, store.IncidentStatusOpen, got.Status)
	assert.Equal(t, store.SeverityHigh, got.Severity)
	assert.Equal(t, int64(10_000), got.CreatedAtMs)
	assert.Equal(t, got.CreatedAtMs, got.UpdatedAtMs)
	assert.Equal(t, "connection pool exhausted", got.Summary)
	assert.Equal(t, int64(3), got.EventCount)
	assert.Equal(t, []string{"e1", "e2"}, got.SampleEventIDs)
	assert.Equal(t, "alerts", got.Context["pipeline"])
	assert.Empty(t, got.AffectedStream)

	byID, err := is.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, got, byID)
}

func TestIncidentStore_ZeroSeenTimesReadBackAsZero(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)

	inc := newIncident("no-times")
	inc.FirstSeenMs, inc.LastSeenMs = 0, 0
	id, err := is.Insert(ctx, inc)
	require.NoError(t, err)

	got, err := is.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, got.FirstSeenMs)
	assert.Zero(t, got.LastSeenMs)

	require.NoError(t, is.Merge(ctx, id, store.IncidentDelta{AdditionalEventCount: 1, LastSeenMs: 5000}))
	got, err = is.Get(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, got.FirstSeenMs)
	assert.Equal(t, int64(5000), got.LastSeenMs)
}

func TestIncidentStore_FindAbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)

	got, err := is.FindByDedupeKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = is.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIncidentStore_InsertDuplicateKeyConflicts(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)

	_, err := is.Insert(ctx, newIncident("db-timeouts"))
	require.NoError(t, err)

	_, err = is.Insert(ctx, newIncident("db-timeouts"))
	require.Error(t, err)
	assert.True(t, autoirerr.IsConflict(err))
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestIncidentStore_InsertValidates(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)

	inc := newIncident("k")
	inc.Severity = "urgent"
	_, err := is.Insert(ctx, inc)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	inc = newIncident("")
	_, err = is.Insert(ctx, inc)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestIncidentStore_MergeRules(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)
	is.SetNowFunc(fixedClock(10_000))

	id, err := is.Insert(ctx, newIncident("db-timeouts"))
	require.NoError(t, err)

	// Older last_seen never regresses; nil fields leave values alone.
	require.NoError(t, is.Merge(ctx, id, store.IncidentDelta{LastSeenMs: 1500, AdditionalEventCount: 2}))

	got, err := is.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.LastSeenMs)
	assert.Equal(t, int64(5), got.EventCount)
	assert.Equal(t, "connection pool exhausted", got.Summary)
	assert.Equal(t, "/aws/lambda/api", got.AffectedGroup)
	assert.Equal(t, "alerts", got.Context["pipeline"])
	assert.Equal(t, int64(11_000), got.UpdatedAtMs)

	summary := "x"
	stream := "stream-7"
	require.NoError(t, is.Merge(ctx, id, store.IncidentDelta{
		LastSeenMs:           9000,
		AdditionalEventCount: 1,
		Summary:              &summary,
		AffectedStream:       &stream,
		Context:              map[string]any{"pipeline": "other"},
	}))

	got, err = is.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), got.LastSeenMs)
	assert.Equal(t, int64(6), got.EventCount)
	assert.Equal(t, "x", got.Summary)
	assert.Equal(t, "stream-7", got.AffectedStream)
	assert.Equal(t, "other", got.Context["pipeline"])

	// Immutable fields.
	assert.Equal(t, store.IncidentStatusOpen, got.Status)
	assert.Equal(t, store.SeverityHigh, got.Severity)
	assert.Equal(t, "Database timeouts", got.Title)
	assert.Equal(t, int64(1000), got.FirstSeenMs)
	assert.Equal(t, int64(10_000), got.CreatedAtMs)
	assert.Equal(t, "db-timeouts", got.DedupeKey)
}

func TestIncidentStore_MergeZeroLastSeenKeepsValue(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)

	id, err := is.Insert(ctx, newIncident("k"))
	require.NoError(t, err)
	require.NoError(t, is.Merge(ctx, id, store.IncidentDelta{AdditionalEventCount: 1}))

	got, err := is.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.LastSeenMs)
}

func TestIncidentStore_MergeMissingID(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)

	err := is.Merge(ctx, "missing", store.IncidentDelta{AdditionalEventCount: 1})
	require.Error(t, err)
	assert.True(t, autoirerr.IsNotFound(err))

	err = is.Merge(ctx, "missing", store.IncidentDelta{AdditionalEventCount: -1})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestIncidentStore_UpsertDedupeInvariant(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)

	counts := []int64{3, 1, 4, 1, 5}
	var want int64
	var firstID string
	for i, n := range counts {
		inc := newIncident("db-timeouts")
		inc.EventCount = n
		inc.LastSeenMs = int64(2000 + i)
		want += n

		res, err := is.Upsert(ctx, inc)
		require.NoError(t, err)
		if i == 0 {
			assert.True(t, res.Created)
			firstID = res.ID
		} else {
			assert.False(t, res.Created)
			assert.Equal(t, firstID, res.ID)
		}
	}

	all, err := is.List(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, want, all[0].EventCount)
	assert.Equal(t, int64(2004), all[0].LastSeenMs)
}

func TestIncidentStore_ConcurrentUpsertsCreateOnce(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inc := newIncident("shared")
			inc.EventCount = 1
			res, err := is.Upsert(ctx, inc)
			assert.NoError(t, err)
			if res.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	got, err := is.FindByDedupeKey(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got.EventCount)
}

func TestIncidentStore_ListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	is := newIncidentStore(t)
	is.SetNowFunc(fixedClock(1000))

	for _, key := range []string{"a", "b", "c"} {
		_, err := is.Insert(ctx, newIncident(key))
		require.NoError(t, err)
	}

	open, err := is.List(ctx, store.ListOpts{Status: store.IncidentStatusOpen, Limit: 2})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "c", open[0].DedupeKey, "newest first")

	resolved, err := is.List(ctx, store.ListOpts{Status: store.IncidentStatusResolved})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
