// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package query

import "github.com/autoir-dev/autoir/internal/store"

// Kind names a request variant.
type Kind string

const (
	KindEnsureSchema   Kind = "ensure_schema"
	KindInsertEvent    Kind = "insert_event"
	KindRangeScan      Kind = "range_scan"
	KindVectorSearch   Kind = "vector_search"
	KindListTables     Kind = "list_tables"
	KindGetCursor      Kind = "get_cursor"
	KindSetCursor      Kind = "set_cursor"
	KindLookupIncident Kind = "lookup_incident"
	KindInsertIncident Kind = "insert_incident"
	KindMergeIncident  Kind = "merge_incident"
	KindUpsertIncident Kind = "upsert_incident"
	KindListIncidents  Kind = "list_incidents"
)

// Request is the closed set of operations the Dispatcher understands. The
// unexported marker method keeps the set sealed to this package.
type Request interface {
	Kind() Kind
	request()
}

// EnsureSchema creates a table or verifies its embedding dimension.
type EnsureSchema struct {
	Table        string
	EmbeddingDim int
}

// InsertEvent appends one event to a table.
type InsertEvent struct {
	Table string
	Event *store.LogEvent
}

// RangeScan reads events with FromMs < timestamp <= ToMs, oldest first.
// A positive AfterSeq also includes events at exactly FromMs with a
// greater Seq.
type RangeScan struct {
	Table    string
	FromMs   int64
	AfterSeq int64
	ToMs     int64
	Limit    int
}

// VectorSearch ranks a table's events by cosine distance to Query.
type VectorSearch struct {
	Table   string
	Query   []float32
	K       int
	Filters store.SearchFilters
}

// ListTables describes every event table.
type ListTables struct{}

// GetCursor reads a pipeline cursor, falling back to Default.
type GetCursor struct {
	PipelineID string
	Default    int64
}

// SetCursor overwrites a pipeline cursor.
type SetCursor struct {
	PipelineID string
	Position   int64
	LastID     string
	LastSeq    int64
}

// LookupIncident finds an incident by dedupe key.
type LookupIncident struct {
	DedupeKey string
}

// InsertIncident creates a new incident. The dedupe key must be unused.
type InsertIncident struct {
	Incident *store.Incident
}

// MergeIncident applies a delta to an existing incident.
type MergeIncident struct {
	ID    string
	Delta store.IncidentDelta
}

// UpsertIncident inserts or merges by dedupe key.
type UpsertIncident struct {
	Incident *store.Incident
}

// ListIncidents pages through incidents, newest update first.
type ListIncidents struct {
	Opts store.ListOpts
}

func (EnsureSchema) Kind() Kind   { return KindEnsureSchema }
func (InsertEvent) Kind() Kind    { return KindInsertEvent }
func (RangeScan) Kind() Kind      { return KindRangeScan }
func (VectorSearch) Kind() Kind   { return KindVectorSearch }
func (ListTables) Kind() Kind     { return KindListTables }
func (GetCursor) Kind() Kind      { return KindGetCursor }
func (SetCursor) Kind() Kind      { return KindSetCursor }
func (LookupIncident) Kind() Kind { return KindLookupIncident }
func (InsertIncident) Kind() Kind { return KindInsertIncident }
func (MergeIncident) Kind() Kind  { return KindMergeIncident }
func (UpsertIncident) Kind() Kind { return KindUpsertIncident }
func (ListIncidents) Kind() Kind  { return KindListIncidents }

func (EnsureSchema) request()   {}
func (InsertEvent) request()    {}
func (RangeScan) request()      {}
func (VectorSearch) request()   {}
func (ListTables) request()     {}
func (GetCursor) request()      {}
func (SetCursor) request()      {}
func (LookupIncident) request() {}
func (InsertIncident) request() {}
func (MergeIncident) request()  {}
func (UpsertIncident) request() {}
func (ListIncidents) request()  {}

// Response carries the result of a dispatched request. Only the fields
// relevant to the request's kind are set.
type Response struct {
	Kind Kind

	Events    []*store.LogEvent    // RangeScan
	Results   []store.SearchResult // VectorSearch
	Tables    []store.TableInfo    // ListTables
	Position  int64                // GetCursor, SetCursor
	Cursor    *store.Cursor        // GetCursor; nil when absent
	Incident  *store.Incident      // LookupIncident; nil when absent
	Incidents []*store.Incident    // ListIncidents
	ID        string               // InsertIncident, UpsertIncident
	Created   bool                 // UpsertIncident
}
