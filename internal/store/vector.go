// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package store

import "context"

// VectorStore persists log events with their embeddings, one logical table
// per event source, and serves range scans and nearest-neighbor search.
type VectorStore interface {
	// EnsureSchema creates table if absent. It fails with a schema mismatch
	// if the table exists with a different embedding dimension.
	EnsureSchema(ctx context.Context, table string, embeddingDim int) error
	// Insert appends one event. Re-inserting an existing ID appends again.
	Insert(ctx context.Context, table string, event *LogEvent) error
	// RangeScan returns at most limit events with fromMs < timestamp <= toMs,
	// ascending by timestamp then insertion order.
	RangeScan(ctx context.Context, table string, fromMs, toMs int64, limit int) ([]*LogEvent, error)
	// RangeScanAfter is RangeScan that also returns events at exactly fromMs
	// whose Seq is greater than afterSeq. It resumes a scan that stopped
	// inside a run of equal timestamps. afterSeq <= 0 behaves as RangeScan.
	RangeScanAfter(ctx context.Context, table string, fromMs, afterSeq, toMs int64, limit int) ([]*LogEvent, error)
	// Search ranks the filtered events by cosine distance to query,
	// ascending, ties broken by insertion order.
	Search(ctx context.Context, table string, query []float32, k int, filters SearchFilters) ([]SearchResult, error)
	Tables(ctx context.Context) ([]TableInfo, error)
	Close() error
}
