package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// Strategy yields up to limit candidates for one source.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, limit int) ([]ingest.Candidate, error)
}

// FeedStrategy turns RSS, Atom or JSON feed entries into candidates with hints.
type FeedStrategy struct {
	SourceID string
	FeedURL  string
	Fetcher  ingest.Fetcher
	Logger   *zap.Logger
}

// Name implements Strategy.
func (s *FeedStrategy) Name() string { return config.StrategyFeed }

// Candidates implements Strategy.
func (s *FeedStrategy) Candidates(ctx context.Context, limit int) ([]ingest.Candidate, error) {
	res, err := s.Fetcher.Fetch(ctx, s.FeedURL)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("%w: feed %s: %w", ingest.ErrTransport, s.FeedURL, res.Err)
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", s.FeedURL, err)
	}
	base, err := ingest.ParseHTTPURL(firstNonEmpty(res.FinalURL, s.FeedURL))
	if err != nil {
		return nil, err
	}

	out := make([]ingest.Candidate, 0, min(limit, len(feed.Items)))
	for _, item := range feed.Items {
		if len(out) >= limit {
			break
		}
		link := item.Link
		if link == "" && len(item.Links) > 0 {
			link = item.Links[0]
		}
		if link == "" {
			continue
		}
		resolved, err := ingest.ResolveURL(base, link)
		if err != nil {
			s.logger().Debug("skipping feed entry", zap.String("link", link), zap.Error(err))
			continue
		}
		hints := ingest.Hints{Title: ingest.CollapseSpace(item.Title)}
		if len(item.Categories) > 0 {
			hints.Category = strings.TrimSpace(item.Categories[0])
		}
		switch {
		case item.PublishedParsed != nil:
			hints.PublishedAt = item.PublishedParsed.UTC()
		case item.UpdatedParsed != nil:
			hints.PublishedAt = item.UpdatedParsed.UTC()
		}
		out = append(out, ingest.Candidate{
			SourceID: s.SourceID,
			URL:      resolved,
			Strategy: s.Name(),
			Hints:    hints,
		})
	}
	return out, nil
}

func (s *FeedStrategy) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// ListingStrategy discovers in-domain article links on section pages.
type ListingStrategy struct {
	SourceID      string
	ListingURLs   []string
	MinPathDepth  int
	DenyFragments []string
	AllowHosts    []string
	Fetcher       ingest.Fetcher
	Robots        RobotsPolicy
	Logger        *zap.Logger
}

// Name implements Strategy.
func (s *ListingStrategy) Name() string { return config.StrategyListing }

// Candidates implements Strategy. Listing pages that fail to load are skipped
// as long as another page produced links.
func (s *ListingStrategy) Candidates(ctx context.Context, limit int) ([]ingest.Candidate, error) {
	var (
		out     []ingest.Candidate
		seen    = make(map[string]struct{})
		lastErr error
	)
	for _, listingURL := range s.ListingURLs {
		if len(out) >= limit || ctx.Err() != nil {
			break
		}
		links, err := s.discover(ctx, listingURL)
		if err != nil {
			lastErr = err
			continue
		}
		for _, link := range links {
			if len(out) >= limit {
				break
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			out = append(out, ingest.Candidate{SourceID: s.SourceID, URL: link, Strategy: s.Name()})
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// discover returns article-looking links on one listing page in document order.
func (s *ListingStrategy) discover(ctx context.Context, listingURL string) ([]string, error) {
	res, err := s.Fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("%w: listing %s: %w", ingest.ErrTransport, listingURL, res.Err)
	}
	pageURL := firstNonEmpty(res.FinalURL, listingURL)
	base, err := ingest.ParseHTTPURL(pageURL)
	if err != nil {
		return nil, err
	}
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", listingURL, err)
	}
	self, _ := ingest.NormalizeURL(pageURL)
	hosts := newHostMatcher(append([]string{base.Hostname()}, s.AllowHosts...)...)

	var links []string
	dom.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link, ok := s.articleLink(base, hosts, href)
		if !ok || link == self {
			return
		}
		links = append(links, link)
	})

	allowed := links[:0]
	for _, link := range links {
		if s.Robots != nil && !s.Robots.Allowed(ctx, link) {
			s.logger().Debug("robots disallows link", zap.String("url", link))
			continue
		}
		allowed = append(allowed, link)
	}
	return allowed, nil
}

func (s *ListingStrategy) articleLink(base *url.URL, hosts *hostMatcher, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	resolved, err := ingest.ResolveURL(base, href)
	if err != nil {
		return "", false
	}
	u, err := ingest.ParseHTTPURL(resolved)
	if err != nil || !hosts.Match(u.Hostname()) {
		return "", false
	}
	if pathDepth(u.Path) < s.MinPathDepth {
		return "", false
	}
	lowerPath := strings.ToLower(u.Path)
	if !strings.HasSuffix(lowerPath, "/") {
		lowerPath += "/"
	}
	probe := lowerPath + "?" + strings.ToLower(u.RawQuery)
	for _, fragment := range s.DenyFragments {
		if fragment = strings.ToLower(strings.TrimSpace(fragment)); fragment != "" && strings.Contains(probe, fragment) {
			return "", false
		}
	}
	return resolved, true
}

func (s *ListingStrategy) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// DirectStrategy returns a curated URL list.
type DirectStrategy struct {
	SourceID string
	URLs     []string
}

// Name implements Strategy.
func (s *DirectStrategy) Name() string { return config.StrategyDirect }

// Candidates implements Strategy.
func (s *DirectStrategy) Candidates(_ context.Context, limit int) ([]ingest.Candidate, error) {
	out := make([]ingest.Candidate, 0, min(limit, len(s.URLs)))
	for _, u := range s.URLs {
		if len(out) >= limit {
			break
		}
		out = append(out, ingest.Candidate{SourceID: s.SourceID, URL: u, Strategy: s.Name()})
	}
	return out, nil
}

func pathDepth(p string) int {
	depth := 0
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			depth++
		}
	}
	return depth
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
