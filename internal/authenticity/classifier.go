// Package authenticity decides whether a fetched page is a genuine article by
// looking for positive signals, never by guessing that a page is a homepage.
package authenticity

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"dario.cat/mergo"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// Config tunes the classifier for one source.
type Config struct {
	BrandNames           []string
	TitleDelimiters      []string
	MinTitleLength       int
	MinDescriptionLength int
	BoilerplatePhrases   []string
	// MetadataMarkers are meta keys (name, property, itemprop) that only article pages carry.
	MetadataMarkers []string
}

// DefaultConfig returns markers and thresholds that suit most news sites.
func DefaultConfig() Config {
	return Config{
		TitleDelimiters:      []string{" - ", " | ", " – ", " — ", " :: "},
		MinTitleLength:       25,
		MinDescriptionLength: 80,
		BoilerplatePhrases: []string{
			"explore our official website",
			"official website of",
			"welcome to the official",
			"latest news, breaking news",
			"breaking news and latest headlines",
			"all rights reserved",
		},
		MetadataMarkers: []string{
			"article:published_time",
			"article:modified_time",
			"article:author",
			"article:id",
			"article_id",
			"articleid",
			"author",
			"datepublished",
			"pubdate",
			"publishdate",
			"parsely-pub-date",
			"sailthru.date",
			"dc.date.issued",
		},
	}
}

// jsonLDMarkers are JSON-LD fields that identify a single article.
var jsonLDMarkers = []string{"datePublished", "articleId", "identifier"}

// FromSource builds a classifier config from a source block. Brand names
// default to the canonical source name and its aliases.
func FromSource(src config.SourceConfig) Config {
	cfg := Config{
		BrandNames:           src.Authenticity.BrandNames,
		TitleDelimiters:      src.Authenticity.TitleDelimiters,
		MinTitleLength:       src.Authenticity.MinTitleLength,
		MinDescriptionLength: src.Authenticity.MinDescriptionLength,
		BoilerplatePhrases:   src.Authenticity.BoilerplatePhrases,
		MetadataMarkers:      src.Authenticity.MetadataMarkers,
	}
	if len(cfg.BrandNames) == 0 {
		cfg.BrandNames = append([]string{src.Name}, src.Aliases...)
	}
	return cfg
}

// Classifier implements ingest.Classifier.
type Classifier struct {
	cfg    Config
	brands []string
	phrase []string
}

// New merges cfg over DefaultConfig and builds a Classifier.
func New(cfg Config) (*Classifier, error) {
	if err := mergo.Merge(&cfg, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("merge authenticity defaults: %w", err)
	}
	if cfg.MinTitleLength < 0 || cfg.MinDescriptionLength < 0 {
		return nil, ingest.Configf("authenticity minimum lengths must be >= 0")
	}
	return &Classifier{
		cfg:    cfg,
		brands: lowerAll(cfg.BrandNames),
		phrase: lowerAll(cfg.BoilerplatePhrases),
	}, nil
}

// Classify evaluates the signals in order; the first match wins.
func (c *Classifier) Classify(doc *ingest.Document) ingest.Verdict {
	if doc == nil {
		return ingest.Verdict{Signal: ingest.SignalNone}
	}
	if key, ok := c.metadataMarker(doc); ok {
		return ingest.Verdict{Accepted: true, Signal: ingest.SignalArticleMetadata, Detail: key}
	}
	if brand, ok := c.brandedTitle(doc.Title()); ok {
		return ingest.Verdict{Accepted: true, Signal: ingest.SignalBrandedTitle, Detail: brand}
	}
	desc := doc.Meta("description", "og:description", "twitter:description")
	if utf8.RuneCountInString(desc) >= c.cfg.MinDescriptionLength && desc != "" {
		if phrase, generic := c.boilerplate(desc); generic {
			return ingest.Verdict{Signal: ingest.SignalGenericDescription, Detail: phrase}
		}
		return ingest.Verdict{Accepted: true, Signal: ingest.SignalDescription}
	}
	return ingest.Verdict{Signal: ingest.SignalNone}
}

func (c *Classifier) metadataMarker(doc *ingest.Document) (string, bool) {
	if key, ok := doc.HasMeta(c.cfg.MetadataMarkers...); ok {
		return key, true
	}
	for _, key := range jsonLDMarkers {
		if doc.JSONLD(key) != "" {
			return "ld+json:" + key, true
		}
	}
	return "", false
}

func (c *Classifier) brandedTitle(title string) (string, bool) {
	if title == "" || utf8.RuneCountInString(title) < c.cfg.MinTitleLength {
		return "", false
	}
	lower := strings.ToLower(title)
	for _, brand := range c.brands {
		if brand == "" {
			continue
		}
		for _, delim := range c.cfg.TitleDelimiters {
			if strings.HasSuffix(lower, delim+brand) || strings.HasPrefix(lower, brand+delim) {
				return brand, true
			}
		}
	}
	return "", false
}

func (c *Classifier) boilerplate(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range c.phrase {
		if phrase != "" && strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
