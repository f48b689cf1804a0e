// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package provider

import (
	"context"

	"github.com/autoir-dev/autoir/pkg/health"
)

// Provider is a streaming text-completion backend used by the LLM analyzer.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// ChatRequest is a single-turn or few-turn completion request.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Options      ChatOptions
}

// ChatOptions contains model configuration. A nil Temperature uses the
// provider default. JSONMode asks providers that support it to constrain the
// output to a JSON object.
type ChatOptions struct {
	Temperature *float32
	MaxTokens   int
	JSONMode    bool
}

// Message is one conversation turn.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatEvent is a streaming response event.
type ChatEvent struct {
	Type  EventType
	Text  string
	Usage *Usage
	Error string
}

// EventType defines the type of chat event.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Available bool            `json:"available"`
	Provider  string          `json:"provider"`
	Message   string          `json:"message"`
	Health    *health.Metrics `json:"health,omitempty"`
}

// Send delivers ev on ch unless ctx is done first. Streaming adapters use it
// so an abandoned stream never blocks its producer goroutine.
func Send(ctx context.Context, ch chan<- ChatEvent, ev ChatEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
