// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/autoir-dev/autoir/internal/notify"
	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIncident() *store.Incident {
	return &store.Incident{
		ID:             "inc-1",
		Severity:       store.SeverityHigh,
		Title:          "Connection failures in api",
		Summary:        "db refused 12 connections",
		AffectedGroup:  "api",
		AffectedStream: "pod-7",
		FirstSeenMs:    1_700_000_000_000,
		EventCount:     12,
		DedupeKey:      "rule:connection:api",
	}
}

type recordingNotifier struct {
	name  string
	err   error
	calls int
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(context.Context, *store.Incident) error {
	r.calls++
	return r.err
}

func TestFormatIncident(t *testing.T) {
	text := notify.FormatIncident(testIncident())
	assert.Contains(t, text, "[HIGH] Connection failures in api")
	assert.Contains(t, text, "group: api (pod-7)")
	assert.Contains(t, text, "events: 12")
	assert.Contains(t, text, "first seen: 2023-11-14T22:13:20Z")
	assert.Contains(t, text, "db refused 12 connections")
	assert.Contains(t, text, "key rule:connection:api")
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	bad := &recordingNotifier{name: "bad", err: errors.New("boom")}
	m := notify.Multi{ok, bad}

	err := m.Notify(context.Background(), testIncident())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.True(t, autoirerr.HasCode(err, autoirerr.CodeNotifyDeliveryFailure))
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, "multi(ok,bad)", m.Name())
}

func TestMulti_AllSucceed(t *testing.T) {
	assert.NoError(t, notify.Multi{&recordingNotifier{name: "a"}}.Notify(context.Background(), testIncident()))
}

func TestLog_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLog(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.Notify(context.Background(), testIncident()))
	assert.Contains(t, buf.String(), "incident opened")
	assert.Contains(t, buf.String(), "dedupe_key=rule:connection:api")
}
