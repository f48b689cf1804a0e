// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

// Package health holds serializable health snapshots shared by analyzer
// providers, notifiers and the status endpoint.
package health

import "time"

// Metrics is a point-in-time health snapshot of an upstream dependency.
type Metrics struct {
	Available     bool       `json:"available"`
	FailureCount  int64      `json:"failure_count"`
	SuccessCount  int64      `json:"success_count"`
	LastError     string     `json:"last_error,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

