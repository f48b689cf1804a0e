// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/autoir-dev/autoir/internal/detect"
	"github.com/autoir-dev/autoir/internal/provider"
	"github.com/autoir-dev/autoir/internal/query"
	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Pipeline, provider and table status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	// Tables and events
	huma.Register(s.api, huma.Operation{
		OperationID: "list-tables",
		Method:      http.MethodGet,
		Path:        "/api/v1/tables",
		Summary:     "List event tables",
		Tags:        []string{"events"},
	}, s.handleListTables)

	huma.Register(s.api, huma.Operation{
		OperationID: "ensure-table",
		Method:      http.MethodPut,
		Path:        "/api/v1/tables/{table}",
		Summary:     "Create a table or verify its embedding dimension",
		Tags:        []string{"events"},
	}, s.handleEnsureTable)

	huma.Register(s.api, huma.Operation{
		OperationID:   "insert-events",
		Method:        http.MethodPost,
		Path:          "/api/v1/tables/{table}/events",
		Summary:       "Append log events",
		Tags:          []string{"events"},
		DefaultStatus: http.StatusCreated,
	}, s.handleInsertEvents)

	huma.Register(s.api, huma.Operation{
		OperationID: "scan-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/tables/{table}/events",
		Summary:     "Read events in a time range, oldest first",
		Tags:        []string{"events"},
	}, s.handleScanEvents)

	huma.Register(s.api, huma.Operation{
		OperationID: "search-events",
		Method:      http.MethodPost,
		Path:        "/api/v1/tables/{table}/search",
		Summary:     "Nearest-neighbour search over event embeddings",
		Tags:        []string{"events"},
	}, s.handleSearchEvents)

	// Incidents
	huma.Register(s.api, huma.Operation{
		OperationID: "list-incidents",
		Method:      http.MethodGet,
		Path:        "/api/v1/incidents",
		Summary:     "List incidents, most recently updated first",
		Tags:        []string{"incidents"},
	}, s.handleListIncidents)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-incident",
		Method:      http.MethodGet,
		Path:        "/api/v1/incidents/{dedupeKey}",
		Summary:     "Get an incident by dedupe key",
		Tags:        []string{"incidents"},
	}, s.handleGetIncident)

	// Cursors
	huma.Register(s.api, huma.Operation{
		OperationID: "get-cursor",
		Method:      http.MethodGet,
		Path:        "/api/v1/cursors/{pipeline}",
		Summary:     "Get a pipeline cursor",
		Tags:        []string{"pipelines"},
	}, s.handleGetCursor)
}

// --- Request/Response types for huma ---

// StatusBody is the JSON body of the status endpoint.
type StatusBody struct {
	Status    string                    `json:"status" example:"ok" doc:"Overall status"`
	Version   string                    `json:"version" doc:"Server version"`
	Pipelines []detect.Status           `json:"pipelines" doc:"Detection loops"`
	Providers []provider.ProviderStatus `json:"providers" doc:"LLM providers"`
	Tables    []store.TableInfo         `json:"tables" doc:"Event tables"`
}

type statusOutput struct {
	Body StatusBody
}

type listTablesOutput struct {
	Body struct {
		Tables []store.TableInfo `json:"tables"`
	}
}

type tableInput struct {
	Table string `path:"table" doc:"Table name"`
}

type ensureTableInput struct {
	Table string `path:"table" doc:"Table name"`
	Body  struct {
		EmbeddingDim int `json:"embedding_dim" minimum:"1" maximum:"8192" doc:"Embedding dimension"`
	}
}

type ensureTableOutput struct {
	Body struct {
		Table        string `json:"table"`
		EmbeddingDim int    `json:"embedding_dim"`
	}
}

// EventInput is one event in an ingestion request. A missing ID is
// assigned by the server.
type EventInput struct {
	ID          string    `json:"id,omitempty" doc:"Event ID; generated when empty"`
	Group       string    `json:"group" doc:"Log group"`
	Stream      string    `json:"stream,omitempty" doc:"Log stream"`
	TimestampMs int64     `json:"timestamp_ms" minimum:"0" doc:"Event time in Unix milliseconds"`
	Message     string    `json:"message" doc:"Log line"`
	Embedding   []float32 `json:"embedding" minItems:"1" doc:"Message embedding"`
}

type insertEventsInput struct {
	Table string `path:"table" doc:"Table name"`
	Body  struct {
		Events []EventInput `json:"events" minItems:"1" maxItems:"1000"`
	}
}

type insertEventsOutput struct {
	Body struct {
		Inserted int      `json:"inserted"`
		IDs      []string `json:"ids"`
	}
}

type scanEventsInput struct {
	Table  string `path:"table" doc:"Table name"`
	FromMs int64  `query:"from_ms" minimum:"0" doc:"Exclusive lower bound"`
	ToMs   int64  `query:"to_ms" minimum:"0" doc:"Inclusive upper bound; defaults to now"`
	Limit  int    `query:"limit" default:"100" minimum:"1" maximum:"10000"`
}

type eventsOutput struct {
	Body struct {
		Events []*store.LogEvent `json:"events"`
	}
}

type searchEventsInput struct {
	Table string `path:"table" doc:"Table name"`
	Body  struct {
		Query            []float32 `json:"query" minItems:"1" doc:"Query embedding"`
		K                int       `json:"k,omitempty" default:"10" minimum:"1" maximum:"1000"`
		Group            string    `json:"group,omitempty" doc:"Restrict to one log group"`
		MinTimestampMs   *int64    `json:"min_timestamp_ms,omitempty"`
		MinMessageLength *int      `json:"min_message_length,omitempty"`
	}
}

type searchEventsOutput struct {
	Body struct {
		Results []store.SearchResult `json:"results"`
	}
}

type listIncidentsInput struct {
	Status string `query:"status" doc:"open, acknowledged or resolved"`
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"1000"`
	Offset int    `query:"offset" minimum:"0"`
}

type listIncidentsOutput struct {
	Body struct {
		Incidents []*store.Incident `json:"incidents"`
	}
}

type incidentInput struct {
	DedupeKey string `path:"dedupeKey" doc:"Incident dedupe key"`
}

type incidentOutput struct {
	Body *store.Incident
}

type cursorInput struct {
	Pipeline string `path:"pipeline" doc:"Pipeline ID"`
}

type cursorOutput struct {
	Body *store.Cursor
}

// --- Handlers ---

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	resp, err := s.services.Query().Dispatch(ctx, query.ListTables{})
	if err != nil {
		return nil, apiError(err)
	}

	out := &statusOutput{Body: StatusBody{
		Status:    "ok",
		Version:   s.cfg.Version,
		Pipelines: []detect.Status{},
		Providers: []provider.ProviderStatus{},
		Tables:    nonNil(resp.Tables),
	}}
	if p := s.services.Pipelines(); p != nil {
		out.Body.Pipelines = nonNil(p.Statuses())
	}
	if p := s.services.Providers(); p != nil {
		out.Body.Providers = nonNil(p.Statuses(ctx))
	}
	for _, st := range out.Body.Pipelines {
		if st.State == detect.StateStopped.String() {
			out.Body.Status = "degraded"
		}
	}
	return out, nil
}

func (s *Server) handleListTables(ctx context.Context, _ *struct{}) (*listTablesOutput, error) {
	resp, err := s.services.Query().Dispatch(ctx, query.ListTables{})
	if err != nil {
		return nil, apiError(err)
	}
	out := &listTablesOutput{}
	out.Body.Tables = nonNil(resp.Tables)
	return out, nil
}

func (s *Server) handleEnsureTable(ctx context.Context, input *ensureTableInput) (*ensureTableOutput, error) {
	_, err := s.services.Query().Dispatch(ctx, query.EnsureSchema{Table: input.Table, EmbeddingDim: input.Body.EmbeddingDim})
	if err != nil {
		return nil, apiError(err)
	}
	out := &ensureTableOutput{}
	out.Body.Table = input.Table
	out.Body.EmbeddingDim = input.Body.EmbeddingDim
	return out, nil
}

func (s *Server) handleInsertEvents(ctx context.Context, input *insertEventsInput) (*insertEventsOutput, error) {
	out := &insertEventsOutput{}
	out.Body.IDs = make([]string, 0, len(input.Body.Events))

	for i, in := range input.Body.Events {
		ev := &store.LogEvent{
			ID:          in.ID,
			Group:       in.Group,
			Stream:      in.Stream,
			TimestampMs: in.TimestampMs,
			Message:     in.Message,
			Embedding:   in.Embedding,
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if _, err := s.services.Query().Dispatch(ctx, query.InsertEvent{Table: input.Table, Event: ev}); err != nil {
			// Events before i stay committed; the caller retries from i.
			return nil, huma.NewError(autoirerr.HTTPStatus(err),
				fmt.Sprintf("event %d: %s (%d inserted)", i, err, i))
		}
		out.Body.IDs = append(out.Body.IDs, ev.ID)
	}
	out.Body.Inserted = len(out.Body.IDs)
	return out, nil
}

func (s *Server) handleScanEvents(ctx context.Context, input *scanEventsInput) (*eventsOutput, error) {
	to := input.ToMs
	if to == 0 {
		to = time.Now().UnixMilli()
	}
	resp, err := s.services.Query().Dispatch(ctx, query.RangeScan{
		Table:  input.Table,
		FromMs: input.FromMs,
		ToMs:   to,
		Limit:  input.Limit,
	})
	if err != nil {
		return nil, apiError(err)
	}
	out := &eventsOutput{}
	out.Body.Events = nonNil(resp.Events)
	return out, nil
}

func (s *Server) handleSearchEvents(ctx context.Context, input *searchEventsInput) (*searchEventsOutput, error) {
	k := input.Body.K
	if k == 0 {
		k = 10
	}
	resp, err := s.services.Query().Dispatch(ctx, query.VectorSearch{
		Table: input.Table,
		Query: input.Body.Query,
		K:     k,
		Filters: store.SearchFilters{
			Group:            input.Body.Group,
			MinTimestampMs:   input.Body.MinTimestampMs,
			MinMessageLength: input.Body.MinMessageLength,
		},
	})
	if err != nil {
		return nil, apiError(err)
	}
	out := &searchEventsOutput{}
	out.Body.Results = nonNil(resp.Results)
	return out, nil
}

func (s *Server) handleListIncidents(ctx context.Context, input *listIncidentsInput) (*listIncidentsOutput, error) {
	status := store.IncidentStatus(input.Status)
	if status != "" && !status.Valid() {
		return nil, huma.Error400BadRequest(fmt.Sprintf("unknown incident status %q", input.Status))
	}
	resp, err := s.services.Query().Dispatch(ctx, query.ListIncidents{Opts: store.ListOpts{
		Status: status,
		Limit:  input.Limit,
		Offset: input.Offset,
	}})
	if err != nil {
		return nil, apiError(err)
	}
	out := &listIncidentsOutput{}
	out.Body.Incidents = nonNil(resp.Incidents)
	return out, nil
}

func (s *Server) handleGetIncident(ctx context.Context, input *incidentInput) (*incidentOutput, error) {
	resp, err := s.services.Query().Dispatch(ctx, query.LookupIncident{DedupeKey: input.DedupeKey})
	if err != nil {
		return nil, apiError(err)
	}
	if resp.Incident == nil {
		return nil, apiError(autoirerr.New(autoirerr.CodeStoreIncidentNotFound,
			fmt.Sprintf("incident with dedupe key %q not found", input.DedupeKey)))
	}
	return &incidentOutput{Body: resp.Incident}, nil
}

func (s *Server) handleGetCursor(ctx context.Context, input *cursorInput) (*cursorOutput, error) {
	resp, err := s.services.Query().Dispatch(ctx, query.GetCursor{PipelineID: input.Pipeline})
	if err != nil {
		return nil, apiError(err)
	}
	if resp.Cursor == nil {
		return nil, apiError(autoirerr.New(autoirerr.CodeStoreCursorNotFound,
			fmt.Sprintf("pipeline %q has no cursor", input.Pipeline)))
	}
	return &cursorOutput{Body: resp.Cursor}, nil
}

// apiError maps a coded error onto an HTTP status.
func apiError(err error) error {
	status := autoirerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("api request failed", "error", err, "status", status)
	}
	return huma.NewError(status, err.Error())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
