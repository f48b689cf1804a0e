// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package analyzer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autoir-dev/autoir/internal/analyzer"
	"github.com/autoir-dev/autoir/internal/provider"
	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider replies with a fixed text, or blocks until ctx ends.
type fakeProvider struct {
	reply   string
	block   bool
	lastReq provider.ChatRequest
}

func (f *fakeProvider) Name() string                   { return "fake" }
func (f *fakeProvider) Available(context.Context) bool { return true }
func (f *fakeProvider) Close() error                   { return nil }

func (f *fakeProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: "fake"}, nil
}

func (f *fakeProvider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	f.lastReq = req
	ch := make(chan provider.ChatEvent, 2)
	if f.block {
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch, nil
	}
	ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: f.reply}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

type fakeRouter struct {
	p   provider.Provider
	err error
}

func (r fakeRouter) Route(context.Context) (provider.Provider, string, error) {
	return r.p, "test-model", r.err
}

func sampleInput() analyzer.Input {
	return analyzer.Input{
		Window:     analyzer.Window{StartMs: 1000, EndMs: 2000},
		Aggregates: []analyzer.Aggregate{{Group: "api", Count: 3}},
		Samples: []analyzer.Sample{
			{EventID: "e1", TimestampMs: 1500, Group: "api", Stream: "pod-1", Message: "ERROR connection refused to db:5432"},
		},
	}
}

func TestLLM_Analyze(t *testing.T) {
	p := &fakeProvider{reply: `{"incidents":[{"title":"DB unreachable","severity":"high","confidence":0.8,"dedupe_key":"db-conn"}]}`}
	a := analyzer.NewLLM(fakeRouter{p: p}, analyzer.WithMaxTokens(512))

	got, err := a.Analyze(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "db-conn", got[0].DedupeKey)
	assert.Equal(t, store.SeverityHigh, got[0].Severity)

	assert.Equal(t, "test-model", p.lastReq.Model)
	assert.True(t, p.lastReq.Options.JSONMode)
	assert.Equal(t, 512, p.lastReq.Options.MaxTokens)
	require.Len(t, p.lastReq.Messages, 1)
	assert.Contains(t, p.lastReq.Messages[0].Content, "connection refused")
	assert.Contains(t, p.lastReq.Messages[0].Content, "- api: 3")
}

func TestLLM_NoSamplesSkipsCall(t *testing.T) {
	p := &fakeProvider{}
	got, err := analyzer.NewLLM(fakeRouter{p: p}).Analyze(context.Background(), analyzer.Input{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, p.lastReq.Model)
}

func TestLLM_MalformedResponse(t *testing.T) {
	a := analyzer.NewLLM(fakeRouter{p: &fakeProvider{reply: "I cannot help with that."}})
	_, err := a.Analyze(context.Background(), sampleInput())
	assert.True(t, autoirerr.HasCode(err, autoirerr.CodeAnalyzerResponseInvalid))
}

func TestLLM_RouteFailure(t *testing.T) {
	a := analyzer.NewLLM(fakeRouter{err: errors.New("no providers")})
	_, err := a.Analyze(context.Background(), sampleInput())
	assert.True(t, autoirerr.HasCode(err, autoirerr.CodeAnalyzerUpstreamFailure))
}

func TestLLM_Timeout(t *testing.T) {
	a := analyzer.NewLLM(fakeRouter{p: &fakeProvider{block: true}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Analyze(ctx, sampleInput())
	assert.True(t, autoirerr.HasCode(err, autoirerr.CodeAnalyzerTimeout))
	assert.True(t, autoirerr.IsMalformedUpstream(err))
}

func TestBuildPrompt_TruncatesLongMessages(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	in := sampleInput()
	in.Samples[0].Message = string(long)

	prompt := analyzer.BuildPrompt(in)
	assert.Contains(t, prompt, "Window: 1000 < timestamp_ms <= 2000")
	assert.Less(t, len(prompt), 1000)
}
