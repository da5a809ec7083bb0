package stealth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
)

func TestRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	noJitter := func(time.Duration) time.Duration { return 0 }
	fullJitter := func(limit time.Duration) time.Duration { return limit }
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	tests := []struct {
		attempt int
		low     time.Duration
		high    time.Duration
	}{
		{1, 500 * time.Millisecond, time.Second},
		{2, time.Second, 2 * time.Second},
		{3, 2 * time.Second, 4 * time.Second},
		{4, 2500 * time.Millisecond, 5 * time.Second},
		{12, 2500 * time.Millisecond, 5 * time.Second},
	}
	for _, tt := range tests {
		p := policy
		p.Jitter = noJitter
		require.Equal(t, tt.low, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
		p.Jitter = fullJitter
		require.Equal(t, tt.high, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 3}
	require.True(t, p.ShouldRetry(1))
	require.True(t, p.ShouldRetry(2))
	require.False(t, p.ShouldRetry(3))
}

func TestRetryPolicyFromConfig(t *testing.T) {
	t.Parallel()

	p := RetryPolicyFromConfig(config.RetryConfig{
		MaxAttempts: 4, BaseDelayMs: 250, MaxDelayMs: 2000, RateLimitMinMs: 30000, RateLimitMaxMs: 45000,
	}, func(time.Duration) time.Duration { return 0 })
	require.Equal(t, 4, p.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, p.BaseDelay)
	require.Equal(t, 30*time.Second, p.RateLimitWait())
}

func TestDelayRangeDraw(t *testing.T) {
	t.Parallel()

	r := NewRandom(1, 2)
	d := DelayRange{Min: time.Second, Max: 3 * time.Second}
	for i := 0; i < 200; i++ {
		got := d.Draw(r.Duration)
		require.GreaterOrEqual(t, got, time.Second)
		require.LessOrEqual(t, got, 3*time.Second)
	}
	require.Equal(t, time.Second, DelayRange{Min: time.Second}.Draw(r.Duration))
}
