// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package server

import (
	"context"

	"github.com/autoir-dev/autoir/internal/detect"
	"github.com/autoir-dev/autoir/internal/provider"
	"github.com/autoir-dev/autoir/internal/query"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// QueryService executes typed store requests. *query.Dispatcher satisfies it.
type QueryService interface {
	Dispatch(ctx context.Context, req query.Request) (query.Response, error)
}

// PipelineService reports detection loop state. detect.Pipelines satisfies it.
type PipelineService interface {
	Statuses() []detect.Status
}

// ProviderService reports LLM provider health. *provider.Registry satisfies it.
type ProviderService interface {
	Statuses(ctx context.Context) []provider.ProviderStatus
}

// Services holds dependencies injected into route handlers.
// Use NewServices to ensure the required ones are present.
type Services struct {
	query     QueryService
	pipelines PipelineService // optional
	providers ProviderService // optional
}

// NewServices creates a Services instance. The query service is required;
// pipelines and providers may be nil when the process runs without them.
func NewServices(q QueryService, pipelines PipelineService, providers ProviderService) (*Services, error) {
	if q == nil {
		return nil, autoirerr.New(autoirerr.CodeServerConfigInvalid, "query service is required")
	}
	return &Services{query: q, pipelines: pipelines, providers: providers}, nil
}

// Query returns the query service.
func (s *Services) Query() QueryService {
	return s.query
}

// Pipelines returns the pipeline service, or nil.
func (s *Services) Pipelines() PipelineService {
	return s.pipelines
}

// Providers returns the provider service, or nil.
func (s *Services) Providers() ProviderService {
	return s.providers
}
