// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package provider

import (
	"sync"
	"time"

	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
	"github.com/autoir-dev/autoir/pkg/health"
)

// DefaultHealthCooldown is how long a failed provider is skipped by the
// registry before it is tried again.
const DefaultHealthCooldown = 30 * time.Second

// HealthTracker records call outcomes for one provider. A failure marks the
// provider unavailable until the cooldown elapses or a call succeeds.
type HealthTracker struct {
	mu        sync.RWMutex
	cooldown  time.Duration
	failing   bool
	failedAt  time.Time
	lastError string
	failures  int64
	successes int64
	now       func() time.Time
}

// NewHealthTracker creates a HealthTracker that starts healthy.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, autoirerr.Errorf(autoirerr.CodeConfigValidateInvalid,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{cooldown: cooldown, now: time.Now}, nil
}

// availableLocked requires h.mu to be held.
func (h *HealthTracker) availableLocked() bool {
	return !h.failing || h.now().Sub(h.failedAt) >= h.cooldown
}

// IsHealthy reports whether the provider may be called.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.availableLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failing = false
	h.successes++
}

// RecordFailure starts a new cooldown window.
func (h *HealthTracker) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failing = true
	h.failedAt = h.now()
	h.failures++
	if err != nil {
		h.lastError = err.Error()
	}
}

// SetNowFunc overrides the time source. Intended for tests.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = fn
}

// Snapshot returns the tracker state for status reporting.
func (h *HealthTracker) Snapshot() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		Available:    h.availableLocked(),
		FailureCount: h.failures,
		SuccessCount: h.successes,
		LastError:    h.lastError,
	}
	if h.failures > 0 {
		at := h.failedAt
		m.LastFailureAt = &at
	}
	if h.failing {
		until := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}
