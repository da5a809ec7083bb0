// Package normalize maps extracted fields onto the canonical article shape and
// the canonical source and category vocabularies.
package normalize

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/metrics"
)

// Config holds the vocabularies for one source.
type Config struct {
	// SourceAliases maps name variants to the canonical source name.
	SourceAliases map[string]string
	// CategoryAliases maps category variants to canonical categories.
	CategoryAliases map[string]string
	// Categories is the canonical category vocabulary.
	Categories      []string
	DefaultCategory string
	// FuzzyThreshold enables Jaro-Winkler matching onto Categories when > 0.
	FuzzyThreshold float64
}

// Normalizer implements ingest.Normalizer.
type Normalizer struct {
	sources    map[string]string
	categories map[string]string
	vocabulary []vocabEntry
	fallback   string
	threshold  float64
	clock      ingest.Clock
	logger     *zap.Logger
}

type vocabEntry struct {
	key       string
	canonical string
}

// New builds a Normalizer. Lookup keys are folded with Key.
func New(cfg Config, clock ingest.Clock, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Normalizer{
		sources:    make(map[string]string, len(cfg.SourceAliases)),
		categories: make(map[string]string, len(cfg.CategoryAliases)+len(cfg.Categories)),
		threshold:  cfg.FuzzyThreshold,
		clock:      clock,
		logger:     logger,
	}
	for alias, canonical := range cfg.SourceAliases {
		n.sources[Key(alias)] = canonical
		n.sources[Key(canonical)] = canonical
	}
	for _, canonical := range cfg.Categories {
		k := Key(canonical)
		n.categories[k] = canonical
		n.vocabulary = append(n.vocabulary, vocabEntry{key: k, canonical: canonical})
	}
	for alias, canonical := range cfg.CategoryAliases {
		n.categories[Key(alias)] = canonical
	}
	n.fallback = cfg.DefaultCategory
	if mapped, ok := n.lookupCategory(cfg.DefaultCategory); ok {
		n.fallback = mapped
	}
	return n
}

// Normalize builds the canonical article. Extractor values beat feed hints,
// hints beat fallbacks; a missing timestamp becomes the ingestion time.
func (n *Normalizer) Normalize(source string, fields ingest.Fields, candidate ingest.Candidate) ingest.Article {
	now := n.clock.Now().UTC()

	title := fields.Title
	if title == "" {
		title = candidate.Hints.Title
	}

	published := fields.PublishedAt
	if published.IsZero() {
		published = candidate.Hints.PublishedAt
	}
	if published.IsZero() {
		published = now
	}

	raw := fields.RawCategory
	if strings.TrimSpace(raw) == "" {
		raw = candidate.Hints.Category
	}
	category := n.fallback
	if strings.TrimSpace(raw) != "" {
		category = n.CanonicalCategory(raw)
	}

	return ingest.Article{
		Source:      n.CanonicalSource(source),
		Category:    category,
		RawCategory: strings.TrimSpace(raw),
		Title:       title,
		URL:         candidate.URL,
		Content:     fields.Body,
		PublishedAt: published.UTC(),
		InsertedAt:  now,
	}
}

// CanonicalSource maps a source name variant; unmapped names pass through.
func (n *Normalizer) CanonicalSource(name string) string {
	if canonical, ok := n.sources[Key(name)]; ok {
		return canonical
	}
	name = strings.TrimSpace(name)
	if len(n.sources) > 0 {
		n.logger.Info("unmapped source name", zap.String("value", name))
		metrics.ObserveUnmapped("source")
	}
	return name
}

// CanonicalCategory maps a raw category; unmapped values pass through lower-cased.
func (n *Normalizer) CanonicalCategory(raw string) string {
	if canonical, ok := n.lookupCategory(raw); ok {
		return canonical
	}
	if canonical, score, ok := n.fuzzyCategory(raw); ok {
		n.logger.Debug("fuzzy category match",
			zap.String("value", raw), zap.String("canonical", canonical), zap.Float64("score", score))
		return canonical
	}
	passthrough := strings.ToLower(ingest.CollapseSpace(raw))
	if len(n.categories) > 0 {
		n.logger.Info("unmapped category", zap.String("value", raw))
		metrics.ObserveUnmapped("category")
	}
	return passthrough
}

func (n *Normalizer) lookupCategory(raw string) (string, bool) {
	k := Key(raw)
	if k == "" {
		return "", false
	}
	canonical, ok := n.categories[k]
	return canonical, ok
}

func (n *Normalizer) fuzzyCategory(raw string) (string, float64, bool) {
	if n.threshold <= 0 || len(n.vocabulary) == 0 {
		return "", 0, false
	}
	k := Key(raw)
	best, bestScore := "", 0.0
	for _, entry := range n.vocabulary {
		if score := matchr.JaroWinkler(k, entry.key, false); score > bestScore {
			best, bestScore = entry.canonical, score
		}
	}
	if bestScore < n.threshold {
		return "", bestScore, false
	}
	return best, bestScore, true
}

// Key folds case and separators so "World-News", "world_news" and " World  News " share one key.
func Key(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_' || r == '/' || r == '.' || r == '&' || r == ','
	})
	return strings.Join(fields, " ")
}
