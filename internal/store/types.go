// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package store

// --- Log event types ---

// LogEvent is a single ingested log line with its embedding. Events are
// immutable once written.
type LogEvent struct {
	ID          string    `json:"id"`
	Group       string    `json:"group"`
	Stream      string    `json:"stream"`
	TimestampMs int64     `json:"timestamp_ms"`
	Message     string    `json:"message"`
	Embedding   []float32 `json:"embedding,omitempty"`
	// Seq is the insertion sequence within the table. It is assigned by the
	// store and set on events it returns.
	Seq int64 `json:"seq,omitempty"`
}

// SearchFilters narrows the candidate set of a vector search. Nil or empty
// fields do not filter.
type SearchFilters struct {
	Group            string
	MinTimestampMs   *int64
	MinMessageLength *int
}

// SearchResult is one ranked hit of a vector search. Distance is the cosine
// distance (1 - cosine similarity) between the query and the event.
type SearchResult struct {
	Event    *LogEvent `json:"event"`
	Distance float64   `json:"distance"`
}

// TableInfo describes one logical event table.
type TableInfo struct {
	Name         string `json:"name"`
	EmbeddingDim int    `json:"embedding_dim"`
	EventCount   int64  `json:"event_count"`
}

// --- Cursor types ---

// Cursor is a pipeline's progress watermark.
type Cursor struct {
	PipelineID   string `json:"pipeline_id"`
	LastPosition int64  `json:"last_position"`
	LastID       string `json:"last_id,omitempty"`
	LastSeq      int64  `json:"last_seq,omitempty"` // Seq of the last event consumed at LastPosition
	UpdatedAtMs  int64  `json:"updated_at_ms"`
}

// --- Incident types ---

// Severity ranks how bad an incident is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentStatusOpen         IncidentStatus = "open"
	IncidentStatusAcknowledged IncidentStatus = "acknowledged"
	IncidentStatusResolved     IncidentStatus = "resolved"
)

// Incident is a deduplicated incident record. Empty strings and zero
// timestamps mean the optional field is absent.
type Incident struct {
	ID             string         `json:"id"`
	CreatedAtMs    int64          `json:"created_at_ms"`
	UpdatedAtMs    int64          `json:"updated_at_ms"`
	Status         IncidentStatus `json:"status"`
	Severity       Severity       `json:"severity"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary,omitempty"`
	AffectedGroup  string         `json:"affected_group,omitempty"`
	AffectedStream string         `json:"affected_stream,omitempty"`
	// FirstSeenMs and LastSeenMs are unix milliseconds; 0 means unknown and
	// is stored as NULL.
	FirstSeenMs    int64          `json:"first_seen_ms,omitempty"`
	LastSeenMs     int64          `json:"last_seen_ms,omitempty"`
	EventCount     int64          `json:"event_count"`
	SampleEventIDs []string       `json:"sample_event_ids,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	DedupeKey      string         `json:"dedupe_key"`
}

// IncidentDelta is the change applied when an existing incident is seen
// again. Nil pointer fields and a nil Context leave the stored value alone.
type IncidentDelta struct {
	LastSeenMs           int64
	AdditionalEventCount int64
	Summary              *string
	AffectedGroup        *string
	AffectedStream       *string
	Context              map[string]any
}

// DeltaFrom builds the merge delta an occurrence of inc contributes to an
// existing record with the same dedupe key.
func DeltaFrom(inc *Incident) IncidentDelta {
	d := IncidentDelta{
		LastSeenMs:           inc.LastSeenMs,
		AdditionalEventCount: inc.EventCount,
		Context:              inc.Context,
	}
	if inc.Summary != "" {
		d.Summary = &inc.Summary
	}
	if inc.AffectedGroup != "" {
		d.AffectedGroup = &inc.AffectedGroup
	}
	if inc.AffectedStream != "" {
		d.AffectedStream = &inc.AffectedStream
	}
	return d
}

// UpsertResult reports the outcome of an upsert by dedupe key.
type UpsertResult struct {
	ID      string
	Created bool
}

// ListOpts controls pagination and filtering for incident listings.
type ListOpts struct {
	Status IncidentStatus
	Limit  int
	Offset int
}
