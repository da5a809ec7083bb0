package stealth

import (
	"time"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
)

// JitterFunc returns a random duration in [0, limit].
type JitterFunc func(limit time.Duration) time.Duration

// DelayRange bounds a uniformly drawn wait.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Draw returns a duration in [Min, Max].
func (d DelayRange) Draw(jitter JitterFunc) time.Duration {
	if d.Max <= d.Min || jitter == nil {
		return d.Min
	}
	return d.Min + jitter(d.Max-d.Min)
}

// DelayFromConfig converts a configured millisecond range.
func DelayFromConfig(cfg config.DelayConfig) DelayRange {
	return DelayRange{Min: cfg.Min(), Max: cfg.Max()}
}

// RetryPolicy decides how many attempts a fetch gets and how long to wait between them.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// RateLimit is the longer wait applied after a 429.
	RateLimit DelayRange
	Jitter    JitterFunc
}

// RetryPolicyFromConfig builds a policy from a source's retry block.
func RetryPolicyFromConfig(cfg config.RetryConfig, jitter JitterFunc) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		RateLimit: DelayRange{
			Min: time.Duration(cfg.RateLimitMinMs) * time.Millisecond,
			Max: time.Duration(cfg.RateLimitMaxMs) * time.Millisecond,
		},
		Jitter: jitter,
	}
}

// ShouldRetry reports whether another attempt follows attempt (1-based).
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Backoff returns the wait after failed attempt n (1-based): half of
// base*2^(n-1), capped at MaxDelay, plus jitter over the other half.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	half := delay / 2
	if p.Jitter == nil {
		return half
	}
	return half + p.Jitter(delay-half)
}

// RateLimitWait returns the wait after a 429 response.
func (p RetryPolicy) RateLimitWait() time.Duration {
	return p.RateLimit.Draw(p.Jitter)
}
