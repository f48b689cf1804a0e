// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package store

import (
	"regexp"
	"strings"

	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// tableNamePattern keeps table names safe to use as file names.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]{0,127}$`)

// ValidateTableName checks that name can be used as a logical table name.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return autoirerr.Wrapf(ErrInvalidInput, autoirerr.CodeStoreInvalidInput,
			"table name %q must match %s", name, tableNamePattern.String())
	}
	return nil
}

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// Rank orders severities: info < low < medium < high < critical. Unknown
// severities rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return -1
	}
}

// AtLeast reports whether s is at or above floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Valid() && s.Rank() >= floor.Rank()
}

// ParseSeverity normalizes free-form severity text. Common synonyms used by
// analyzers ("warning", "error", "fatal") are mapped onto the fixed scale.
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "info", "informational", "debug":
		return SeverityInfo, true
	case "low", "minor", "warning", "warn":
		return SeverityLow, true
	case "medium", "moderate", "error":
		return SeverityMedium, true
	case "high", "major", "severe":
		return SeverityHigh, true
	case "critical", "fatal", "emergency":
		return SeverityCritical, true
	default:
		return "", false
	}
}

// Valid reports whether the status is a known incident lifecycle state.
func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusAcknowledged, IncidentStatusResolved:
		return true
	default:
		return false
	}
}

// Validate checks that the LogEvent has all required fields set correctly.
func (e LogEvent) Validate() error {
	if e.ID == "" {
		return autoirerr.Wrapf(ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "log event: ID is required")
	}
	if e.TimestampMs < 0 {
		return autoirerr.Wrapf(ErrInvalidInput, autoirerr.CodeStoreInvalidInput,
			"log event %s: timestamp must be >= 0, got %d", e.ID, e.TimestampMs)
	}
	if len(e.Embedding) == 0 {
		return autoirerr.Wrapf(ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "log event %s: embedding is required", e.ID)
	}
	return nil
}

// Validate checks that an incident is ready to be inserted. ID, status and
// timestamps are assigned by the store.
func (i Incident) Validate() error {
	if i.DedupeKey == "" {
		return autoirerr.Wrapf(ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "incident: DedupeKey is required")
	}
	if i.Title == "" {
		return autoirerr.Wrapf(ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "incident %s: Title is required", i.DedupeKey)
	}
	if !i.Severity.Valid() {
		return autoirerr.Wrapf(ErrInvalidInput, autoirerr.CodeStoreInvalidInput,
			"incident %s: invalid severity %q", i.DedupeKey, i.Severity)
	}
	if i.EventCount < 0 {
		return autoirerr.Wrapf(ErrInvalidInput, autoirerr.CodeStoreInvalidInput,
			"incident %s: EventCount must be >= 0, got %d", i.DedupeKey, i.EventCount)
	}
	return nil
}

// Validate checks that a merge delta is self-consistent.
func (d IncidentDelta) Validate() error {
	if d.AdditionalEventCount < 0 {
		return autoirerr.Wrapf(ErrInvalidInput, autoirerr.CodeStoreInvalidInput,
			"incident delta: AdditionalEventCount must be >= 0, got %d", d.AdditionalEventCount)
	}
	return nil
}
