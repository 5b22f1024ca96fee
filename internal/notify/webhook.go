// Package notify pushes stored notification events to an external webhook.
// Delivery is best-effort: the events are already durable in the store, so a
// failed push loses nothing.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/crewbase/lifecycle-engine/internal/model"
	"github.com/crewbase/lifecycle-engine/internal/resilience"
)

// Config controls the webhook notifier. An empty WebhookURL disables
// delivery entirely.
type Config struct {
	WebhookURL    string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Retry         resilience.RetryConfig
}

// Notifier posts notification events as JSON to a configured webhook,
// rate-limited and retried on transient failures.
type Notifier struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

func New(cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Notifier{
		url:     cfg.WebhookURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		retry:   cfg.Retry,
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Deliver posts each event in order. The first hard failure stops the batch;
// events already in the store can be re-delivered later.
func (n *Notifier) Deliver(ctx context.Context, events []model.NotificationEvent) error {
	if !n.Enabled() || len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		if err := n.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "notify: rate limit wait")
		}
		if err := n.post(ctx, ev); err != nil {
			return err
		}
		zap.L().Debug("notification delivered",
			zap.String("notification_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.String("contractor_id", ev.ContractorID))
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, ev model.NotificationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrapf(err, "notify: marshal event %s", ev.ID)
	}

	retry := n.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("webhook", string(ev.Type))
	}

	return resilience.Do(ctx, retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "notify: build request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck
		io.Copy(io.Discard, resp.Body) //nolint:errcheck

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		err = eris.Errorf("notify: webhook returned %d for event %s", resp.StatusCode, ev.ID)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	})
}
