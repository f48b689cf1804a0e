// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package store

import "context"

// CursorStore persists one progress watermark per pipeline.
//
// Set overwrites unconditionally. Exactly one detection loop owns a given
// pipeline ID at a time, so no optimistic concurrency check is made; callers
// must never regress a cursor.
type CursorStore interface {
	// Get returns the stored last position, or def if the pipeline has none.
	Get(ctx context.Context, pipelineID string, def int64) (int64, error)
	// Load returns the full cursor, or nil if the pipeline has none.
	Load(ctx context.Context, pipelineID string) (*Cursor, error)
	Set(ctx context.Context, pipelineID string, position int64, lastID string) error
	// Save overwrites the cursor with c, including LastSeq.
	Save(ctx context.Context, c Cursor) error
	Close() error
}

// IncidentStore persists incidents keyed by dedupe key. For a fixed dedupe
// key at most one record ever exists.
type IncidentStore interface {
	// FindByDedupeKey returns the incident with key, or nil if none exists.
	FindByDedupeKey(ctx context.Context, key string) (*Incident, error)
	Get(ctx context.Context, id string) (*Incident, error)
	// Insert assigns a fresh ID, status open and created/updated timestamps.
	// Returns a conflict error if the dedupe key already exists.
	Insert(ctx context.Context, inc *Incident) (string, error)
	// Merge applies delta to an existing incident atomically. Status,
	// severity, title, dedupe key, first seen and created at never change.
	Merge(ctx context.Context, id string, delta IncidentDelta) error
	// Upsert inserts inc if its dedupe key is new, otherwise merges
	// DeltaFrom(inc) into the existing record, in one transaction.
	Upsert(ctx context.Context, inc *Incident) (UpsertResult, error)
	List(ctx context.Context, opts ListOpts) ([]*Incident, error)
	Close() error
}
