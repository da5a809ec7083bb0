package server

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	collyfetcher "github.com/JakeFAU/realtime-news-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/logging"
	"github.com/JakeFAU/realtime-news-ingest/internal/normalize"
	"github.com/JakeFAU/realtime-news-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-news-ingest/internal/run"
	"github.com/JakeFAU/realtime-news-ingest/internal/source"
	"github.com/JakeFAU/realtime-news-ingest/internal/stealth"
)

// PipelineDeps carries the collaborators shared by every source pipeline.
type PipelineDeps struct {
	Clock  ingest.Clock
	Sleep  ingest.Sleeper
	Random *stealth.Random
	// Headless and Detector are used only for sources with headless enabled.
	Headless ingest.Requester
	Detector ingest.HeadlessDetector
	// Transport overrides the colly transport, mainly for tests.
	Transport func(id string, src config.SourceConfig) ingest.Requester
	Logger    *zap.Logger
}

// BuildPipelines assembles one stealth client, adapter and normalizer per
// configured source. The first invalid source aborts the build.
func BuildPipelines(cfg *config.Config, deps PipelineDeps) (map[string]run.Pipeline, error) {
	if deps.Clock == nil || deps.Sleep == nil {
		return nil, ingest.Configf("pipelines require a clock and sleeper")
	}
	if deps.Random == nil {
		deps.Random = stealth.NewRandomFromRuntime()
	}
	if deps.Transport == nil {
		deps.Transport = collyTransport
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pipelines := make(map[string]run.Pipeline, len(cfg.Sources))
	for _, id := range cfg.SourceIDs() {
		src := cfg.Sources[id]
		client, err := buildClient(id, src, deps, logger)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", id, err)
		}
		adapter, err := source.Build(id, src, source.Deps{
			Fetcher: client,
			Clock:   deps.Clock,
			Logger:  logging.ForSource(logger, "source", id),
		})
		if err != nil {
			return nil, err
		}
		pipelines[id] = run.Pipeline{
			Adapter:    adapter,
			Fetcher:    client,
			Normalizer: normalize.New(normalizerConfig(cfg.Vocabulary, src), deps.Clock, logging.ForSource(logger, "normalize", id)),
		}
		logger.Debug("source pipeline ready",
			zap.String("source", id),
			zap.Int("strategies", len(src.Strategies)),
			zap.Bool("headless", config.Enabled(src.Headless) && deps.Headless != nil),
		)
	}
	return pipelines, nil
}

func buildClient(id string, src config.SourceConfig, deps PipelineDeps, logger *zap.Logger) (*stealth.Client, error) {
	opts := stealth.OptionsFromConfig(id, src, deps.Random)
	opts.Clock = deps.Clock
	opts.Sleeper = deps.Sleep
	opts.Logger = logging.ForSource(logger, "stealth", id)
	if src.MaxRPS > 0 {
		opts.Limiter = ratelimit.New(ratelimit.Config{RPS: src.MaxRPS, Burst: 1})
	}
	if config.Enabled(src.Headless) && deps.Headless != nil && deps.Detector != nil {
		opts.Headless = deps.Headless
		opts.Detector = deps.Detector
	}
	return stealth.New(deps.Transport(id, src), opts)
}

func collyTransport(_ string, src config.SourceConfig) ingest.Requester {
	return collyfetcher.New(collyfetcher.Config{
		Timeout:            src.Timeout(),
		InsecureSkipVerify: config.Enabled(src.InsecureSkipVerify),
		CloudflareBypass:   config.Enabled(src.CloudflareBypass),
		MaxBodyBytes:       src.MaxBodyBytes,
	})
}

// normalizerConfig layers a source's aliases over the shared vocabulary.
func normalizerConfig(vocab config.VocabularyConfig, src config.SourceConfig) normalize.Config {
	sources := make(map[string]string, len(vocab.SourceAliases)+len(src.Aliases))
	for alias, canonical := range vocab.SourceAliases {
		sources[alias] = canonical
	}
	for _, alias := range src.Aliases {
		sources[alias] = src.Name
	}
	categories := make(map[string]string, len(vocab.CategoryAliases)+len(src.CategoryAliases))
	for alias, canonical := range vocab.CategoryAliases {
		categories[alias] = canonical
	}
	for alias, canonical := range src.CategoryAliases {
		categories[alias] = canonical
	}
	return normalize.Config{
		SourceAliases:   sources,
		CategoryAliases: categories,
		Categories:      vocab.Categories,
		DefaultCategory: src.DefaultCategory,
		FuzzyThreshold:  vocab.FuzzyThreshold,
	}
}
