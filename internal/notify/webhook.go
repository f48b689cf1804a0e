// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithWebhookTimeout sets the HTTP client timeout. Default: 10s.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.client.Timeout = d
		}
	}
}

// WithWebhookHeaders sets custom HTTP headers sent with every POST.
func WithWebhookHeaders(h map[string]string) WebhookOption {
	return func(w *Webhook) { w.headers = h }
}

// Webhook POSTs a Slack-compatible {"text": ...} body.
type Webhook struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// NewWebhook creates a webhook notifier targeting url.
func NewWebhook(url string, opts ...WebhookOption) (*Webhook, error) {
	if url == "" {
		return nil, autoirerr.New(autoirerr.CodeNotifyConfigInvalid, "webhook: url is required")
	}
	w := &Webhook{client: &http.Client{Timeout: DefaultTimeout}, url: url}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Notify(ctx context.Context, inc *store.Incident) error {
	body, err := json.Marshal(map[string]string{"text": FormatIncident(inc)})
	if err != nil {
		return autoirerr.Errorf(autoirerr.CodeNotifyDeliveryFailure, "webhook: marshal: %s", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return autoirerr.Errorf(autoirerr.CodeNotifyDeliveryFailure, "webhook: building request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return autoirerr.Errorf(autoirerr.CodeNotifyDeliveryFailure, "webhook: request failed: %s", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return autoirerr.Errorf(autoirerr.CodeNotifyDeliveryFailure, "webhook: HTTP %d", resp.StatusCode)
	}
	return nil
}
