// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

// Package analyzer turns a window of suspicious log samples into candidate
// incidents. The detection loop treats every implementation as a black box:
// a failed or malformed analysis yields zero candidates, never a crash.
package analyzer

import (
	"context"

	"github.com/autoir-dev/autoir/internal/store"
)

// Window is the time range one detection cycle covers, start exclusive.
type Window struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// Aggregate counts matching events for one log group.
type Aggregate struct {
	Group string `json:"group"`
	Count int    `json:"count"`
}

// Sample is one log excerpt sent for analysis.
type Sample struct {
	EventID     string `json:"-"`
	TimestampMs int64  `json:"timestamp_ms"`
	Group       string `json:"group"`
	Stream      string `json:"stream"`
	Message     string `json:"message"`
}

// Input is everything an analyzer sees for one cycle.
type Input struct {
	Window     Window
	Aggregates []Aggregate
	Samples    []Sample
}

// Candidate is a proposed incident. DedupeKey and Group may be empty; the
// detection loop derives a key when the analyzer does not supply one.
type Candidate struct {
	Title      string         `json:"title"`
	Severity   store.Severity `json:"severity"`
	Confidence float64        `json:"confidence"`
	DedupeKey  string         `json:"dedupe_key,omitempty"`
	Summary    string         `json:"summary,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Group      string         `json:"affected_group,omitempty"`
}

// Analyzer classifies log samples into candidate incidents.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, in Input) ([]Candidate, error)
}
