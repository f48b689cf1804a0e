// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

// Package notify delivers first-occurrence incident alerts. Delivery is
// fire-and-forget from the detection loop's side: errors are logged by the
// caller and never retried within a cycle.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// Notifier delivers one incident alert.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, inc *store.Incident) error
}

// FormatIncident renders an incident as a short plain-text alert.
func FormatIncident(inc *store.Incident) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", strings.ToUpper(string(inc.Severity)), inc.Title)
	if inc.AffectedGroup != "" {
		fmt.Fprintf(&sb, "\ngroup: %s", inc.AffectedGroup)
		if inc.AffectedStream != "" {
			fmt.Fprintf(&sb, " (%s)", inc.AffectedStream)
		}
	}
	fmt.Fprintf(&sb, "\nevents: %d", inc.EventCount)
	if inc.FirstSeenMs > 0 {
		fmt.Fprintf(&sb, "\nfirst seen: %s", time.UnixMilli(inc.FirstSeenMs).UTC().Format(time.RFC3339))
	}
	if inc.Summary != "" {
		sb.WriteString("\n\n")
		sb.WriteString(inc.Summary)
	}
	fmt.Fprintf(&sb, "\n\nincident %s (key %s)", inc.ID, inc.DedupeKey)
	return sb.String()
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m Multi) Notify(ctx context.Context, inc *store.Incident) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, inc); err != nil {
			errs = append(errs, autoirerr.New(autoirerr.CodeNotifyDeliveryFailure, n.Name()+": "+err.Error()))
		}
	}
	return autoirerr.Join(errs...)
}
