// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/autoir-dev/autoir/internal/provider"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

const (
	defaultMaxTokens    = 1024
	maxSampleMessageLen = 500
	llmAnalyzerName     = "llm"
)

const systemPrompt = `You are an SRE incident triage assistant. You receive aggregated counts and
sample log lines from one time window. Group related failures into incidents.
Reply with a single JSON object and nothing else:
{"incidents":[{"title":string,"severity":"info|low|medium|high|critical",
"confidence":number between 0 and 1,"dedupe_key":string,"summary":string,
"tags":[string],"affected_group":string}]}
Use a stable dedupe_key for the same underlying problem across windows.
Reply {"incidents":[]} when nothing looks like an incident.`

// Router picks the provider and model for one call. *provider.Registry
// satisfies it.
type Router interface {
	Route(ctx context.Context) (provider.Provider, string, error)
}

// LLMOption configures an LLM analyzer.
type LLMOption func(*LLM)

// WithMaxTokens caps the response length. Default: 1024.
func WithMaxTokens(n int) LLMOption {
	return func(a *LLM) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// LLM asks a chat model to classify samples, in JSON mode.
type LLM struct {
	router    Router
	maxTokens int
}

// NewLLM creates an LLM analyzer routing through r.
func NewLLM(r Router, opts ...LLMOption) *LLM {
	a := &LLM{router: r, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *LLM) Name() string { return llmAnalyzerName }

// Analyze returns no candidates without calling the model when there are
// no samples.
func (a *LLM) Analyze(ctx context.Context, in Input) ([]Candidate, error) {
	if len(in.Samples) == 0 {
		return nil, nil
	}

	p, model, err := a.router.Route(ctx)
	if err != nil {
		return nil, autoirerr.New(autoirerr.CodeAnalyzerUpstreamFailure, "routing analyzer request: "+err.Error())
	}

	temp := float32(0)
	comp, err := provider.Complete(ctx, p, provider.ChatRequest{
		Model:        model,
		SystemPrompt: systemPrompt,
		Messages:     []provider.Message{{Role: provider.MessageRoleUser, Content: BuildPrompt(in)}},
		Options:      provider.ChatOptions{Temperature: &temp, MaxTokens: a.maxTokens, JSONMode: true},
	})
	// Provider errors carry their own codes; analyzer failures are
	// reclassified with fresh errors so the loop sees analyzer codes.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, autoirerr.New(autoirerr.CodeAnalyzerTimeout, "analyzer call timed out",
			autoirerr.FieldProvider(p.Name()))
	}
	if err != nil {
		return nil, autoirerr.New(autoirerr.CodeAnalyzerUpstreamFailure, "analyzer call failed: "+err.Error(),
			autoirerr.FieldProvider(p.Name()))
	}

	slog.Debug("analyzer completion",
		"provider", p.Name(),
		"model", model,
		"input_tokens", comp.Usage.InputTokens,
		"output_tokens", comp.Usage.OutputTokens,
	)
	return ParseCandidates(comp.Text)
}

// BuildPrompt renders the user message for one window.
func BuildPrompt(in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Window: %d < timestamp_ms <= %d\n\n", in.Window.StartMs, in.Window.EndMs)

	sb.WriteString("Matching events per group:\n")
	for _, agg := range in.Aggregates {
		fmt.Fprintf(&sb, "- %s: %d\n", agg.Group, agg.Count)
	}

	sb.WriteString("\nSamples:\n")
	for _, s := range in.Samples {
		fmt.Fprintf(&sb, "[%d] %s/%s: %s\n", s.TimestampMs, s.Group, s.Stream, truncate(s.Message, maxSampleMessageLen))
	}
	return sb.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
