// Package source builds per-site adapters: ordered acquisition strategies plus
// the site's classifier, extraction cascade and naming data.
package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/authenticity"
	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/extract"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// Adapter is one external site.
type Adapter struct {
	ID              string
	Name            string
	DefaultCategory string
	CategoryAliases map[string]string
	Target          int
	MaxTarget       int
	CandidateDelay  config.DelayConfig
	Strategies      []Strategy
	Classifier      ingest.Classifier
	Extractor       ingest.Extractor

	logger *zap.Logger
}

// Deps are the runtime collaborators an adapter needs.
type Deps struct {
	Fetcher ingest.Fetcher
	Clock   ingest.Clock
	Logger  *zap.Logger
}

// Build validates a source block and assembles its Adapter. Every failure wraps
// ingest.ErrConfiguration.
func Build(id string, src config.SourceConfig, deps Deps) (*Adapter, error) {
	if deps.Fetcher == nil || deps.Clock == nil {
		return nil, ingest.Configf("source %s: fetcher and clock are required", id)
	}
	if err := src.Validate(id); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("source", id))

	strategies, err := buildStrategies(id, src, deps.Fetcher, logger)
	if err != nil {
		return nil, err
	}
	classifier, err := authenticity.New(authenticity.FromSource(src))
	if err != nil {
		return nil, fmt.Errorf("source %s authenticity: %w", id, err)
	}
	cascade, err := extract.FromSource(src.Extraction, deps.Clock)
	if err != nil {
		return nil, fmt.Errorf("sources.%s.%w", id, err)
	}

	return &Adapter{
		ID:              id,
		Name:            src.Name,
		DefaultCategory: src.DefaultCategory,
		CategoryAliases: src.CategoryAliases,
		Target:          src.Target,
		MaxTarget:       src.MaxTarget,
		CandidateDelay:  src.CandidateDelay,
		Strategies:      strategies,
		Classifier:      classifier,
		Extractor:       cascade,
		logger:          logger,
	}, nil
}

func buildStrategies(id string, src config.SourceConfig, fetcher ingest.Fetcher, logger *zap.Logger) ([]Strategy, error) {
	var robots RobotsPolicy = AllowAll{}
	if config.Enabled(src.RespectRobots) {
		agent := "*"
		if len(src.Identities) > 0 {
			agent = src.Identities[0].UserAgent
		}
		robots = NewRobotsEnforcer(fetcher, agent, logger)
	}

	strategies := make([]Strategy, 0, len(src.Strategies))
	for i, sc := range src.Strategies {
		prefix := fmt.Sprintf("sources.%s.strategies[%d]", id, i)
		switch sc.Type {
		case config.StrategyFeed:
			if err := checkURLs(prefix, sc.URL); err != nil {
				return nil, err
			}
			strategies = append(strategies, &FeedStrategy{SourceID: id, FeedURL: sc.URL, Fetcher: fetcher, Logger: logger})
		case config.StrategyListing:
			urls := sc.URLs
			if sc.URL != "" {
				urls = append([]string{sc.URL}, urls...)
			}
			if err := checkURLs(prefix, urls...); err != nil {
				return nil, err
			}
			strategies = append(strategies, &ListingStrategy{
				SourceID:      id,
				ListingURLs:   urls,
				MinPathDepth:  sc.MinPathDepth,
				DenyFragments: sc.DenyFragments,
				AllowHosts:    sc.AllowHosts,
				Fetcher:       fetcher,
				Robots:        robots,
				Logger:        logger,
			})
		case config.StrategyDirect:
			if err := checkURLs(prefix, sc.URLs...); err != nil {
				return nil, err
			}
			strategies = append(strategies, &DirectStrategy{SourceID: id, URLs: sc.URLs})
		default:
			return nil, ingest.Configf("%s.type %q is not supported", prefix, sc.Type)
		}
	}
	return strategies, nil
}

func checkURLs(prefix string, urls ...string) error {
	for _, raw := range urls {
		if _, err := ingest.ParseHTTPURL(raw); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}

// Select gathers up to limit candidates, consulting strategies in order only
// while fewer than limit have been found. Candidates are de-duplicated by
// normalized URL; strategy failures are collected and never stop selection.
func (a *Adapter) Select(ctx context.Context, limit int) ([]ingest.Candidate, []error) {
	var (
		out  []ingest.Candidate
		errs []error
		seen = make(map[string]struct{})
	)
	for _, strategy := range a.Strategies {
		if len(out) >= limit || ctx.Err() != nil {
			break
		}
		// Ask for the full limit; overlap with earlier strategies is dropped below.
		found, err := strategy.Candidates(ctx, limit)
		if err != nil {
			a.logger.Warn("strategy failed", zap.String("strategy", strategy.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("strategy %s: %w", strategy.Name(), err))
		}
		added := 0
		for _, c := range found {
			if len(out) >= limit {
				break
			}
			key, err := ingest.NormalizeURL(c.URL)
			if err != nil {
				errs = append(errs, fmt.Errorf("strategy %s: %w", strategy.Name(), err))
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
			added++
		}
		a.logger.Debug("strategy consulted",
			zap.String("strategy", strategy.Name()),
			zap.Int("found", len(found)),
			zap.Int("added", added),
			zap.Int("total", len(out)),
		)
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("selection interrupted: %w", err))
	}
	return out, errs
}
