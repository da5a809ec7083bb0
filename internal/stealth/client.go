// Package stealth issues outbound requests with rotating identities, randomized
// pacing and bounded retries.
package stealth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/metrics"
)

// Waiter paces requests per host on top of the randomized delay.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Options configures a Client.
type Options struct {
	SourceID     string
	Identities   []Identity
	RequestDelay DelayRange
	Retry        RetryPolicy
	Random       *Random
	Clock        ingest.Clock
	Sleeper      ingest.Sleeper
	Limiter      Waiter
	// Headless and Detector are both required for promotion.
	Headless ingest.Requester
	Detector ingest.HeadlessDetector
	Logger   *zap.Logger
}

// OptionsFromConfig fills the per-source request discipline from configuration.
// The caller supplies clock, sleeper and optional collaborators.
func OptionsFromConfig(sourceID string, src config.SourceConfig, random *Random) Options {
	if random == nil {
		random = NewRandomFromRuntime()
	}
	return Options{
		SourceID:     sourceID,
		Identities:   IdentitiesFromConfig(src.Identities),
		RequestDelay: DelayFromConfig(src.RequestDelay),
		Retry:        RetryPolicyFromConfig(src.Retry, random.Duration),
		Random:       random,
	}
}

// Client implements ingest.Fetcher.
type Client struct {
	transport ingest.Requester
	opts      Options
	pool      *IdentityPool
	logger    *zap.Logger
}

// New builds a Client around a single-exchange transport.
func New(transport ingest.Requester, opts Options) (*Client, error) {
	if transport == nil {
		return nil, ingest.Configf("stealth client requires a transport")
	}
	if opts.Clock == nil || opts.Sleeper == nil {
		return nil, ingest.Configf("stealth client requires a clock and sleeper")
	}
	if opts.Retry.MaxAttempts <= 0 {
		return nil, ingest.Configf("retry max attempts must be > 0")
	}
	if opts.RequestDelay.Max < opts.RequestDelay.Min {
		return nil, ingest.Configf("request delay max must be >= min")
	}
	if opts.Random == nil {
		opts.Random = NewRandomFromRuntime()
	}
	if opts.Retry.Jitter == nil {
		opts.Retry.Jitter = opts.Random.Duration
	}
	pool, err := NewIdentityPool(opts.Identities, opts.Random)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		transport: transport,
		opts:      opts,
		pool:      pool,
		logger:    logger.With(zap.String("source", opts.SourceID)),
	}, nil
}

// Fetch retrieves rawURL. Ordinary network failures are reported through
// FetchResult.Err with a nil Body; only a malformed URL returns an error.
func (c *Client) Fetch(ctx context.Context, rawURL string) (ingest.FetchResult, error) {
	if _, err := ingest.ParseHTTPURL(rawURL); err != nil {
		return ingest.FetchResult{URL: rawURL}, err
	}

	start := c.opts.Clock.Now()
	result := ingest.FetchResult{URL: rawURL}
	defer func() {
		metrics.ObserveFetch(c.opts.SourceID, result.Elapsed)
	}()

	for attempt := 1; ; attempt++ {
		if err := c.pace(ctx, rawURL); err != nil {
			result.Err = err
			break
		}

		identity := c.pool.Next()
		request := ingest.FetchRequest{URL: rawURL, Headers: identity.Header()}
		result.Attempts = attempt
		resp, err := c.transport.Do(ctx, request)

		var wait time.Duration
		switch {
		case err != nil:
			metrics.ObserveFetchAttempt(c.opts.SourceID, "error", 0)
			result.StatusCode = 0
			result.Err = fmt.Errorf("%w: attempt %d: %w", ingest.ErrTransport, attempt, err)
			if ctx.Err() != nil {
				result.Err = fmt.Errorf("%w: %w", ingest.ErrTransport, ctx.Err())
				result.Elapsed = c.opts.Clock.Now().Sub(start)
				return result, nil
			}
			wait = c.opts.Retry.Backoff(attempt)
		case resp.StatusCode == http.StatusTooManyRequests:
			// A 429 always waits the fixed rate-limit pause, but still spends
			// an attempt; the final attempt returns without waiting.
			metrics.ObserveFetchAttempt(c.opts.SourceID, "rate_limited", len(resp.Body))
			metrics.ObserveRateLimited(c.opts.SourceID)
			result.StatusCode = resp.StatusCode
			result.Err = fmt.Errorf("%w: rate limited (429)", ingest.ErrTransport)
			wait = c.opts.Retry.RateLimitWait()
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			metrics.ObserveFetchAttempt(c.opts.SourceID, "ok", len(resp.Body))
			resp = c.maybePromote(ctx, request, resp)
			result.StatusCode = resp.StatusCode
			result.FinalURL = resp.URL
			result.Header = resp.Headers
			result.Body = resp.Body
			if result.Body == nil {
				result.Body = []byte{}
			}
			result.UsedHeadless = resp.UsedHeadless
			result.Err = nil
			result.Elapsed = c.opts.Clock.Now().Sub(start)
			return result, nil
		default:
			metrics.ObserveFetchAttempt(c.opts.SourceID, "status", len(resp.Body))
			result.StatusCode = resp.StatusCode
			result.Err = fmt.Errorf("%w: http status %d", ingest.ErrTransport, resp.StatusCode)
			wait = c.opts.Retry.Backoff(attempt)
		}

		c.logger.Debug("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Int("status", result.StatusCode),
			zap.Duration("wait", wait),
			zap.Error(result.Err),
		)
		if !c.opts.Retry.ShouldRetry(attempt) {
			break
		}
		if err := c.opts.Sleeper.Sleep(ctx, wait); err != nil {
			result.Err = fmt.Errorf("%w: %w", ingest.ErrTransport, err)
			break
		}
	}

	result.Elapsed = c.opts.Clock.Now().Sub(start)
	c.logger.Warn("fetch gave up",
		zap.String("url", rawURL),
		zap.Int("attempts", result.Attempts),
		zap.Int("status", result.StatusCode),
		zap.Duration("elapsed", result.Elapsed),
		zap.Error(result.Err),
	)
	return result, nil
}

// pace waits the randomized pre-request delay and then the host token bucket.
func (c *Client) pace(ctx context.Context, rawURL string) error {
	if err := c.opts.Sleeper.Sleep(ctx, c.opts.RequestDelay.Draw(c.opts.Random.Duration)); err != nil {
		return fmt.Errorf("%w: %w", ingest.ErrTransport, err)
	}
	if c.opts.Limiter == nil {
		return nil
	}
	if err := c.opts.Limiter.Wait(ctx, rawURL); err != nil {
		return fmt.Errorf("%w: %w", ingest.ErrTransport, err)
	}
	return nil
}

// maybePromote re-renders a script shell in the browser, keeping the plain body on failure.
func (c *Client) maybePromote(ctx context.Context, request ingest.FetchRequest, resp ingest.FetchResponse) ingest.FetchResponse {
	if c.opts.Headless == nil || c.opts.Detector == nil || !c.opts.Detector.ShouldPromote(resp) {
		return resp
	}
	rendered, err := c.opts.Headless.Do(ctx, request)
	if err != nil || rendered.StatusCode < 200 || rendered.StatusCode >= 300 {
		metrics.ObserveHeadlessPromotion(c.opts.SourceID, "failed")
		if err == nil {
			err = errors.New("headless render returned non-2xx")
		}
		c.logger.Info("headless promotion failed, keeping plain body",
			zap.String("url", request.URL), zap.Error(err))
		return resp
	}
	metrics.ObserveHeadlessPromotion(c.opts.SourceID, "ok")
	rendered.UsedHeadless = true
	return rendered
}
