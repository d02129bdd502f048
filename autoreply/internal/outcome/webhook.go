package outcome

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Webhook POSTs enveloped JSON to a URL with retry and exponential backoff.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
	retry      retrypolicy.RetryPolicy[any]
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay. Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.baseDelay = d }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// WithWebhookClient sets the HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	w.retry = retrypolicy.NewBuilder[any]().
		WithBackoff(w.baseDelay, 8*w.baseDelay).
		WithMaxRetries(w.maxRetries).
		WithJitterFactor(0.1).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			w.logger.Warn("webhook: retrying", "attempt", e.Attempts(), "error", e.LastError())
		}).
		Build()
	return w
}

func (w *Webhook) Decision(ctx context.Context, d Decision) error {
	return w.post(ctx, "decision", d)
}

func (w *Webhook) Cycle(ctx context.Context, c CycleSummary) error {
	return w.post(ctx, "cycle", c)
}

func (w *Webhook) Close() error { return nil }

func (w *Webhook) post(ctx context.Context, typ string, data any) error {
	body, err := json.Marshal(envelope{Type: typ, Data: data})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	err = failsafe.With[any](w.retry).WithContext(ctx).Run(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook: status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("webhook: all retries exhausted: %w", err)
	}
	return nil
}
