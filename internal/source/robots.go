package source

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// RobotsPolicy decides whether a discovered link may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// AllowAll permits every URL.
type AllowAll struct{}

// Allowed implements RobotsPolicy.
func (AllowAll) Allowed(context.Context, string) bool { return true }

const (
	// robotsTTL bounds how long a parsed robots file is trusted.
	robotsTTL = 24 * time.Hour
	// robotsRetryTTL bounds how long an unreachable or 5xx robots file is
	// remembered before the host is asked again.
	robotsRetryTTL = 10 * time.Minute
)

// RobotsEnforcer loads robots.txt through the source's fetcher and caches it per host.
type RobotsEnforcer struct {
	fetcher ingest.Fetcher
	agent   string
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]robotsEntry
}

// robotsEntry holds a host's rules. A nil data allows everything.
type robotsEntry struct {
	data    *robotstxt.RobotsData
	expires time.Time
}

// NewRobotsEnforcer builds an enforcer that evaluates rules for agent.
func NewRobotsEnforcer(fetcher ingest.Fetcher, agent string, logger *zap.Logger) *RobotsEnforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsEnforcer{
		fetcher: fetcher,
		agent:   agent,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]robotsEntry),
	}
}

// Allowed implements RobotsPolicy. Unreachable robots files allow access.
func (r *RobotsEnforcer) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data := r.load(ctx, parsed)
	if data == nil {
		return true
	}
	return data.TestAgent(parsed.EscapedPath(), r.agent)
}

// load fetches robots.txt at most once per host per TTL. Hosts are loaded one
// at a time so links from one listing page never race on the same file.
func (r *RobotsEnforcer) load(ctx context.Context, parsed *url.URL) *robotstxt.RobotsData {
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if entry, ok := r.cache[key]; ok && now.Before(entry.expires) {
		return entry.data
	}
	res, err := r.fetcher.Fetch(ctx, key+"/robots.txt")
	if err != nil {
		r.logger.Warn("robots url rejected; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return nil
	}
	if res.StatusCode == 0 {
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(res.Err))
		r.cache[key] = robotsEntry{expires: now.Add(robotsRetryTTL)}
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil {
		r.logger.Warn("robots parse failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		r.cache[key] = robotsEntry{expires: now.Add(robotsRetryTTL)}
		return nil
	}
	ttl := robotsTTL
	if res.StatusCode >= 500 {
		r.logger.Warn("robots server error; disallowing host until retry",
			zap.String("host", parsed.Host),
			zap.Int("status", res.StatusCode),
			zap.Duration("retry_after", robotsRetryTTL),
		)
		ttl = robotsRetryTTL
	}
	r.cache[key] = robotsEntry{data: data, expires: now.Add(ttl)}
	return data
}
