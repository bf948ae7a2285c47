// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/ordertrack/internal/config"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/ManuGH/ordertrack/internal/platform/httpx"
	"github.com/ManuGH/ordertrack/internal/resilience"
	"github.com/rs/zerolog"
)

// ErrRejected marks a 4xx answer from the relay. It does not count against
// the circuit breaker.
var ErrRejected = errors.New("notify: webhook rejected notification")

// webhookPayload follows the Expo push message shape so the sink can post
// straight to a push relay.
type webhookPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

// WebhookSink POSTs notifications as JSON.
type WebhookSink struct {
	url     string
	token   string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewWebhookSink builds a sink from config. The HTTP client is traced.
func NewWebhookSink(cfg config.WebhookConfig) *WebhookSink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url:    cfg.URL,
		token:  cfg.Token,
		client: httpx.NewTracedClient(timeout, "notify.webhook"),
		breaker: resilience.NewCircuitBreaker(metrics.BreakerWebhook, cfg.BreakerThreshold, cfg.BreakerReset,
			resilience.WithFailureClassifier(func(err error) bool {
				return !errors.Is(err, ErrRejected) && !errors.Is(err, context.Canceled)
			})),
		logger: log.WithComponent("notify.webhook"),
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Notify(ctx context.Context, title, body string, metadata map[string]string) error {
	payload, err := json.Marshal(webhookPayload{Title: title, Body: body, Data: metadata, Sound: "default"})
	if err != nil {
		return fmt.Errorf("notify: encode webhook payload: %w", err)
	}

	err = s.breaker.Execute(func() error { return s.post(ctx, payload) })
	if err != nil {
		logger := log.WithContext(ctx, s.logger)
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "notify.failed").
			Str(log.FieldEndpoint, s.url).
			Msg("webhook delivery failed")
		return fmt.Errorf("notify: webhook: %w", err)
	}
	return nil
}

func (s *WebhookSink) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		return fmt.Errorf("notify: webhook status %d", resp.StatusCode)
	}
}

// BreakerState exposes the circuit breaker state for health reporting.
func (s *WebhookSink) BreakerState() resilience.State {
	return s.breaker.State()
}
