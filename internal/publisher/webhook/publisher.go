// Package webhook delivers article notices to an HTTP endpoint.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// Config controls webhook delivery.
type Config struct {
	URL     string
	Timeout time.Duration
	Retries int
}

// Publisher posts JSON payloads with resty.
type Publisher struct {
	client *resty.Client
	url    string
}

// New builds a webhook publisher. 5xx and 429 responses are retried.
func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, ingest.Configf("notify.webhook.url is required")
	}
	if _, err := ingest.ParseHTTPURL(cfg.URL); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(res *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return res.StatusCode() == http.StatusTooManyRequests || res.StatusCode() >= http.StatusInternalServerError
		})
	return &Publisher{client: client, url: cfg.URL}, nil
}

// Publish posts the payload and returns the receiver's request id when given.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	req := p.client.R().
		SetContext(ctx).
		SetHeader("X-Topic", topic).
		SetBody(payload)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := req.Post(p.url)
	if err != nil {
		return "", fmt.Errorf("post webhook: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("post webhook: unexpected status %d", res.StatusCode())
	}
	if id := res.Header().Get("X-Request-Id"); id != "" {
		return id, nil
	}
	return fmt.Sprintf("%s-%d", topic, res.StatusCode()), nil
}
