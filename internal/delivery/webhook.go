package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrRejected is returned when the webhook answers with a non-2xx status.
var ErrRejected = errors.New("webhook rejected message")

// WebhookSender POSTs messages as JSON to a URL, throttled to a steady rate so a burst of
// accepted submissions cannot flood the receiver.
type WebhookSender struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookSender builds a sender allowing perSecond messages with the given burst.
// A nil client gets one with a 10s timeout.
func NewWebhookSender(url string, perSecond float64, burst int, client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &WebhookSender{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (s *WebhookSender) Send(ctx context.Context, m Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for delivery slot: %w", err)
	}

	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", m.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}
