package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"dario.cat/mergo"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// Field names recorded in Fields.Rules.
const (
	FieldTitle     = "title"
	FieldBody      = "body"
	FieldCategory  = "category"
	FieldTimestamp = "timestamp"
)

const maxCategoryLength = 64

// earliestTimestamp bounds plausible publication dates.
var earliestTimestamp = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// Rules holds the ordered rule list per field.
type Rules struct {
	Title     []Rule
	Body      []Rule
	Category  []Rule
	Timestamp []Rule
}

// Options bounds field validation.
type Options struct {
	MinTitleLength      int
	MinBodyLength       int
	MaxBodyLength       int
	BoilerplatePhrases  []string
	TitleRejectPatterns []string
	TitleStripSuffixes  []string
}

// DefaultOptions returns thresholds and boilerplate that suit most news sites.
func DefaultOptions() Options {
	return Options{
		MinTitleLength: 10,
		MinBodyLength:  200,
		MaxBodyLength:  20000,
		BoilerplatePhrases: []string{
			"sign up for our newsletter",
			"subscribe to our newsletter",
			"share this article",
			"share on facebook",
			"click here to subscribe",
			"follow us on",
			"all rights reserved",
			"advertisement",
		},
		TitleRejectPatterns: []string{`(?i)^(home|homepage|page not found|404)\b`},
	}
}

// DefaultRules returns the generic cascade used when a source configures none.
func DefaultRules() config.ExtractionConfig {
	return config.ExtractionConfig{
		Title: []config.RuleConfig{
			{Kind: KindMeta, Name: "og:title"},
			{Kind: KindMeta, Name: "twitter:title"},
			{Kind: KindJSONLD, Name: "headline"},
			{Kind: KindSelector, Selector: "h1"},
			{Kind: KindTitle},
			{Kind: KindURLSlug},
		},
		Body: []config.RuleConfig{
			{Kind: KindSelector, Selector: "[itemprop=articleBody] p"},
			{Kind: KindSelector, Selector: "article p"},
			{Kind: KindSelector, Selector: "main p"},
			{Kind: KindSelector, Selector: "p"},
		},
		Category: []config.RuleConfig{
			{Kind: KindMeta, Name: "article:section"},
			{Kind: KindJSONLD, Name: "articleSection"},
			{Kind: KindMeta, Name: "section"},
		},
		Timestamp: []config.RuleConfig{
			{Kind: KindMeta, Name: "article:published_time"},
			{Kind: KindJSONLD, Name: "datePublished"},
			{Kind: KindTime},
			{Kind: KindMeta, Name: "pubdate"},
			{Kind: KindMeta, Name: "date"},
		},
	}
}

// Cascade implements ingest.Extractor.
type Cascade struct {
	rules       Rules
	opts        Options
	boilerplate []string
	rejects     []*regexp.Regexp
	clock       ingest.Clock
}

// New builds a Cascade. Options are merged over DefaultOptions.
func New(rules Rules, opts Options, clock ingest.Clock) (*Cascade, error) {
	if err := mergo.Merge(&opts, DefaultOptions()); err != nil {
		return nil, fmt.Errorf("merge extraction defaults: %w", err)
	}
	if clock == nil {
		return nil, ingest.Configf("extraction cascade requires a clock")
	}
	if len(rules.Title) == 0 || len(rules.Body) == 0 {
		return nil, ingest.Configf("extraction requires title and body rules")
	}
	if opts.MaxBodyLength < opts.MinBodyLength {
		return nil, ingest.Configf("extraction max_body_length must be >= min_body_length")
	}
	c := &Cascade{rules: rules, opts: opts, clock: clock}
	for _, phrase := range opts.BoilerplatePhrases {
		if phrase = strings.ToLower(strings.TrimSpace(phrase)); phrase != "" {
			c.boilerplate = append(c.boilerplate, phrase)
		}
	}
	for _, pattern := range opts.TitleRejectPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, ingest.Configf("title reject pattern %q: %v", pattern, err)
		}
		c.rejects = append(c.rejects, re)
	}
	return c, nil
}

// FromSource compiles a source's extraction block, falling back to DefaultRules per field.
func FromSource(src config.ExtractionConfig, clock ingest.Clock) (*Cascade, error) {
	defaults := DefaultRules()
	pick := func(configured, fallback []config.RuleConfig) []config.RuleConfig {
		if len(configured) > 0 {
			return configured
		}
		return fallback
	}
	var (
		rules Rules
		err   error
	)
	if rules.Title, err = CompileAll("extraction.title", pick(src.Title, defaults.Title)); err != nil {
		return nil, err
	}
	if rules.Body, err = CompileAll("extraction.body", pick(src.Body, defaults.Body)); err != nil {
		return nil, err
	}
	if rules.Category, err = CompileAll("extraction.category", pick(src.Category, defaults.Category)); err != nil {
		return nil, err
	}
	if rules.Timestamp, err = CompileAll("extraction.timestamp", pick(src.Timestamp, defaults.Timestamp)); err != nil {
		return nil, err
	}
	return New(rules, Options{
		MinTitleLength:      src.MinTitleLength,
		MinBodyLength:       src.MinBodyLength,
		MaxBodyLength:       src.MaxBodyLength,
		BoilerplatePhrases:  src.BoilerplatePhrases,
		TitleRejectPatterns: src.TitleRejectPatterns,
		TitleStripSuffixes:  src.TitleStripSuffixes,
	}, clock)
}

// Extract resolves every field. A missing title or short body fails the whole document.
func (c *Cascade) Extract(doc *ingest.Document) (ingest.Fields, error) {
	fields := ingest.Fields{Rules: map[string]string{}}

	title, rule, ok := fold(doc, c.rules.Title, c.validTitle)
	if !ok {
		return ingest.Fields{}, fmt.Errorf("%w: no rule produced a valid title", ingest.ErrExtraction)
	}
	fields.Title = title
	fields.Rules[FieldTitle] = rule

	body, rule, ok := fold(doc, c.rules.Body, c.validBody)
	if !ok {
		return ingest.Fields{}, fmt.Errorf("%w: body shorter than %d characters", ingest.ErrExtraction, c.opts.MinBodyLength)
	}
	fields.Body = body
	fields.Rules[FieldBody] = rule

	if raw, rule, ok := fold(doc, c.rules.Category, validCategory); ok {
		fields.RawCategory = raw
		fields.Category = strings.ToLower(raw)
		fields.Rules[FieldCategory] = rule
	}

	if ts, rule, ok := fold(doc, c.rules.Timestamp, c.validTimestamp); ok {
		parsed, _ := parseTimestamp(ts)
		fields.PublishedAt = parsed
		fields.Rules[FieldTimestamp] = rule
	}
	return fields, nil
}

// fold evaluates rules in order and stops at the first one whose values validate.
func fold(doc *ingest.Document, rules []Rule, validate func([]string) (string, bool)) (string, string, bool) {
	for _, rule := range rules {
		values := rule.Extract(doc)
		if len(values) == 0 {
			continue
		}
		if v, ok := validate(values); ok {
			return v, rule.Name(), true
		}
	}
	return "", "", false
}

func (c *Cascade) validTitle(values []string) (string, bool) {
	for _, raw := range values {
		title := ingest.CollapseSpace(raw)
		for stripped := true; stripped; {
			stripped = false
			for _, suffix := range c.opts.TitleStripSuffixes {
				if suffix != "" && len(title) > len(suffix) && strings.EqualFold(title[len(title)-len(suffix):], suffix) {
					title = strings.TrimSpace(title[:len(title)-len(suffix)])
					stripped = true
				}
			}
		}
		if utf8.RuneCountInString(title) < c.opts.MinTitleLength || c.rejected(title) {
			continue
		}
		return title, true
	}
	return "", false
}

func (c *Cascade) rejected(title string) bool {
	for _, re := range c.rejects {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

func (c *Cascade) validBody(paragraphs []string) (string, bool) {
	kept := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = ingest.CollapseSpace(p)
		if p == "" || c.isBoilerplate(p) {
			continue
		}
		kept = append(kept, p)
	}
	body := strings.Join(kept, "\n\n")
	if utf8.RuneCountInString(body) < c.opts.MinBodyLength {
		return "", false
	}
	return truncate(body, c.opts.MaxBodyLength), true
}

func (c *Cascade) isBoilerplate(paragraph string) bool {
	lower := strings.ToLower(paragraph)
	for _, phrase := range c.boilerplate {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func validCategory(values []string) (string, bool) {
	for _, v := range values {
		v = ingest.CollapseSpace(v)
		if v != "" && utf8.RuneCountInString(v) <= maxCategoryLength {
			return v, true
		}
	}
	return "", false
}

func (c *Cascade) validTimestamp(values []string) (string, bool) {
	latest := c.clock.Now().Add(24 * time.Hour)
	for _, v := range values {
		ts, ok := parseTimestamp(v)
		if !ok || ts.Before(earliestTimestamp) || ts.After(latest) {
			continue
		}
		return v, true
	}
	return "", false
}

// truncate cuts s to at most limit runes, preferring the last word boundary in the final fifth.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)[:limit]
	cut := string(runes)
	if i := strings.LastIndexAny(cut, " \n"); i > 0 && utf8.RuneCountInString(cut[:i]) >= limit*4/5 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
