// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package query

import (
	"context"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// Dispatcher routes typed requests to the vector, cursor and incident
// stores. It is the only path from the detection loop and the HTTP API to
// persisted state.
type Dispatcher struct {
	vectors   store.VectorStore
	cursors   store.CursorStore
	incidents store.IncidentStore
}

// New creates a Dispatcher over explicitly constructed stores.
func New(vectors store.VectorStore, cursors store.CursorStore, incidents store.IncidentStore) *Dispatcher {
	return &Dispatcher{vectors: vectors, cursors: cursors, incidents: incidents}
}

// NewFromStores creates a Dispatcher over an opened store handle.
func NewFromStores(s *store.Stores) *Dispatcher {
	return New(s.Vectors, s.Cursors, s.Incidents)
}

// Dispatch executes req. Store errors are returned unchanged so callers can
// classify them with pkg/errors.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Response, error) {
	if req == nil {
		return Response{}, autoirerr.New(autoirerr.CodeQueryRequestUnsupported, "nil request")
	}
	resp := Response{Kind: req.Kind()}

	switch r := req.(type) {
	case EnsureSchema:
		return resp, d.vectors.EnsureSchema(ctx, r.Table, r.EmbeddingDim)

	case InsertEvent:
		if r.Event == nil {
			return resp, invalid(req, "event is required")
		}
		return resp, d.vectors.Insert(ctx, r.Table, r.Event)

	case RangeScan:
		events, err := d.vectors.RangeScanAfter(ctx, r.Table, r.FromMs, r.AfterSeq, r.ToMs, r.Limit)
		resp.Events = events
		return resp, err

	case VectorSearch:
		results, err := d.vectors.Search(ctx, r.Table, r.Query, r.K, r.Filters)
		resp.Results = results
		return resp, err

	case ListTables:
		tables, err := d.vectors.Tables(ctx)
		resp.Tables = tables
		return resp, err

	case GetCursor:
		if r.PipelineID == "" {
			return resp, invalid(req, "pipeline id is required")
		}
		c, err := d.cursors.Load(ctx, r.PipelineID)
		if err != nil {
			return resp, err
		}
		resp.Cursor = c
		resp.Position = r.Default
		if c != nil {
			resp.Position = c.LastPosition
		}
		return resp, nil

	case SetCursor:
		if r.PipelineID == "" {
			return resp, invalid(req, "pipeline id is required")
		}
		resp.Position = r.Position
		return resp, d.cursors.Save(ctx, store.Cursor{
			PipelineID:   r.PipelineID,
			LastPosition: r.Position,
			LastID:       r.LastID,
			LastSeq:      r.LastSeq,
		})

	case LookupIncident:
		if r.DedupeKey == "" {
			return resp, invalid(req, "dedupe key is required")
		}
		inc, err := d.incidents.FindByDedupeKey(ctx, r.DedupeKey)
		resp.Incident = inc
		return resp, err

	case InsertIncident:
		if r.Incident == nil {
			return resp, invalid(req, "incident is required")
		}
		id, err := d.incidents.Insert(ctx, r.Incident)
		resp.ID = id
		return resp, err

	case MergeIncident:
		if r.ID == "" {
			return resp, invalid(req, "incident id is required")
		}
		return resp, d.incidents.Merge(ctx, r.ID, r.Delta)

	case UpsertIncident:
		if r.Incident == nil {
			return resp, invalid(req, "incident is required")
		}
		res, err := d.incidents.Upsert(ctx, r.Incident)
		resp.ID = res.ID
		resp.Created = res.Created
		return resp, err

	case ListIncidents:
		incs, err := d.incidents.List(ctx, r.Opts)
		resp.Incidents = incs
		return resp, err

	default:
		return resp, autoirerr.Errorf(autoirerr.CodeQueryRequestUnsupported, "unsupported request %T", req)
	}
}

func invalid(req Request, msg string) error {
	return autoirerr.New(autoirerr.CodeQueryRequestInvalid, string(req.Kind())+": "+msg)
}

// --- Typed helpers over Dispatch ---

func (d *Dispatcher) EnsureSchema(ctx context.Context, table string, dim int) error {
	_, err := d.Dispatch(ctx, EnsureSchema{Table: table, EmbeddingDim: dim})
	return err
}

func (d *Dispatcher) InsertEvent(ctx context.Context, table string, event *store.LogEvent) error {
	_, err := d.Dispatch(ctx, InsertEvent{Table: table, Event: event})
	return err
}

func (d *Dispatcher) RangeScan(ctx context.Context, table string, fromMs, toMs int64, limit int) ([]*store.LogEvent, error) {
	resp, err := d.Dispatch(ctx, RangeScan{Table: table, FromMs: fromMs, ToMs: toMs, Limit: limit})
	return resp.Events, err
}

// ResumeScan continues a range scan from the position (fromMs, afterSeq).
func (d *Dispatcher) ResumeScan(ctx context.Context, table string, fromMs, afterSeq, toMs int64, limit int) ([]*store.LogEvent, error) {
	resp, err := d.Dispatch(ctx, RangeScan{Table: table, FromMs: fromMs, AfterSeq: afterSeq, ToMs: toMs, Limit: limit})
	return resp.Events, err
}

func (d *Dispatcher) Search(ctx context.Context, table string, q []float32, k int, filters store.SearchFilters) ([]store.SearchResult, error) {
	resp, err := d.Dispatch(ctx, VectorSearch{Table: table, Query: q, K: k, Filters: filters})
	return resp.Results, err
}

func (d *Dispatcher) Tables(ctx context.Context) ([]store.TableInfo, error) {
	resp, err := d.Dispatch(ctx, ListTables{})
	return resp.Tables, err
}

func (d *Dispatcher) GetCursor(ctx context.Context, pipelineID string, def int64) (int64, error) {
	resp, err := d.Dispatch(ctx, GetCursor{PipelineID: pipelineID, Default: def})
	return resp.Position, err
}

func (d *Dispatcher) SetCursor(ctx context.Context, pipelineID string, position int64, lastID string) error {
	_, err := d.Dispatch(ctx, SetCursor{PipelineID: pipelineID, Position: position, LastID: lastID})
	return err
}

// SaveCursor overwrites a pipeline cursor including its sequence.
func (d *Dispatcher) SaveCursor(ctx context.Context, c store.Cursor) error {
	_, err := d.Dispatch(ctx, SetCursor{PipelineID: c.PipelineID, Position: c.LastPosition, LastID: c.LastID, LastSeq: c.LastSeq})
	return err
}

// LoadCursor returns the full cursor record, or nil if the pipeline has none.
func (d *Dispatcher) LoadCursor(ctx context.Context, pipelineID string) (*store.Cursor, error) {
	resp, err := d.Dispatch(ctx, GetCursor{PipelineID: pipelineID})
	return resp.Cursor, err
}

func (d *Dispatcher) LookupIncident(ctx context.Context, dedupeKey string) (*store.Incident, error) {
	resp, err := d.Dispatch(ctx, LookupIncident{DedupeKey: dedupeKey})
	return resp.Incident, err
}

func (d *Dispatcher) InsertIncident(ctx context.Context, inc *store.Incident) (string, error) {
	resp, err := d.Dispatch(ctx, InsertIncident{Incident: inc})
	return resp.ID, err
}

func (d *Dispatcher) MergeIncident(ctx context.Context, id string, delta store.IncidentDelta) error {
	_, err := d.Dispatch(ctx, MergeIncident{ID: id, Delta: delta})
	return err
}

func (d *Dispatcher) UpsertIncident(ctx context.Context, inc *store.Incident) (store.UpsertResult, error) {
	resp, err := d.Dispatch(ctx, UpsertIncident{Incident: inc})
	return store.UpsertResult{ID: resp.ID, Created: resp.Created}, err
}

func (d *Dispatcher) ListIncidents(ctx context.Context, opts store.ListOpts) ([]*store.Incident, error) {
	resp, err := d.Dispatch(ctx, ListIncidents{Opts: opts})
	return resp.Incidents, err
}
