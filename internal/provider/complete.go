// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package provider

import (
	"context"
	"strings"

	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// Completion is the accumulated result of a chat stream.
type Completion struct {
	Text  string
	Usage Usage
}

// Complete sends req to p and drains the stream into a single Completion.
// A stream error event or a context cancellation fails the call.
func Complete(ctx context.Context, p Provider, req ChatRequest) (Completion, error) {
	events, err := p.Chat(ctx, req)
	if err != nil {
		return Completion{}, autoirerr.Wrap(err, autoirerr.CodeProviderUpstreamFailure,
			"starting chat", autoirerr.FieldProvider(p.Name()))
	}

	var (
		out Completion
		sb  strings.Builder
	)
	for {
		select {
		case <-ctx.Done():
			return Completion{}, autoirerr.Wrap(ctx.Err(), autoirerr.CodeProviderUpstreamFailure,
				"waiting for completion", autoirerr.FieldProvider(p.Name()))
		case ev, ok := <-events:
			if !ok {
				out.Text = sb.String()
				return out, nil
			}
			switch ev.Type {
			case EventTypeTextDelta:
				sb.WriteString(ev.Text)
			case EventTypeUsage:
				if ev.Usage != nil {
					out.Usage.InputTokens = max(out.Usage.InputTokens, ev.Usage.InputTokens)
					out.Usage.OutputTokens = max(out.Usage.OutputTokens, ev.Usage.OutputTokens)
				}
			case EventTypeError:
				return Completion{}, autoirerr.New(autoirerr.CodeProviderUpstreamFailure,
					"provider stream failed: "+ev.Error, autoirerr.FieldProvider(p.Name()))
			case EventTypeDone:
				out.Text = sb.String()
				return out, nil
			}
		}
	}
}
