// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package provider_test

import (
	"context"

	"github.com/autoir-dev/autoir/internal/provider"
)

// mockProvider is a scripted provider.Provider for tests.
type mockProvider struct {
	name      string
	available bool
	events    []provider.ChatEvent
	chatErr   error
	lastReq   provider.ChatRequest
}

func newMockProvider(name string, available bool, events ...provider.ChatEvent) *mockProvider {
	return &mockProvider{name: name, available: available, events: events}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Available(context.Context) bool { return m.available }

func (m *mockProvider) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	m.lastReq = req
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	ch := make(chan provider.ChatEvent, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: m.available, Provider: m.name, Message: "ok"}, nil
}

func (m *mockProvider) Close() error { return nil }
