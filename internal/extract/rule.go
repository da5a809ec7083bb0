package extract

import (
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// Rule kinds accepted in configuration.
const (
	KindMeta       = "meta"
	KindSelector   = "selector"
	KindTitle      = "title"
	KindJSONLD     = "jsonld"
	KindTime       = "time"
	KindURLSegment = "url_segment"
	KindURLSlug    = "url_slug"
)

// Rule yields raw candidate values for one field. It must not mutate the document.
type Rule interface {
	Name() string
	Extract(doc *ingest.Document) []string
}

type funcRule struct {
	name string
	fn   func(doc *ingest.Document) []string
}

func (r funcRule) Name() string { return r.name }

func (r funcRule) Extract(doc *ingest.Document) []string { return r.fn(doc) }

// NewRule wraps a function as a Rule.
func NewRule(name string, fn func(doc *ingest.Document) []string) Rule {
	return funcRule{name: name, fn: fn}
}

// Compile turns one configured rule into a Rule.
func Compile(cfg config.RuleConfig) (Rule, error) {
	switch cfg.Kind {
	case KindMeta:
		if cfg.Name == "" {
			return nil, ingest.Configf("meta rule requires name")
		}
		return NewRule("meta:"+cfg.Name, func(doc *ingest.Document) []string {
			return nonEmpty(doc.Meta(cfg.Name))
		}), nil
	case KindSelector:
		if cfg.Selector == "" {
			return nil, ingest.Configf("selector rule requires selector")
		}
		if err := checkSelector(cfg.Selector); err != nil {
			return nil, err
		}
		return NewRule("selector:"+cfg.Selector, func(doc *ingest.Document) []string {
			return selectAll(doc, cfg.Selector, cfg.Attr)
		}), nil
	case KindTitle:
		return NewRule("title", func(doc *ingest.Document) []string {
			return nonEmpty(doc.Title())
		}), nil
	case KindJSONLD:
		if cfg.Name == "" {
			return nil, ingest.Configf("jsonld rule requires name")
		}
		return NewRule("jsonld:"+cfg.Name, func(doc *ingest.Document) []string {
			return nonEmpty(doc.JSONLD(cfg.Name))
		}), nil
	case KindTime:
		selector := cfg.Selector
		if selector == "" {
			selector = "time[datetime]"
		}
		if err := checkSelector(selector); err != nil {
			return nil, err
		}
		attr := cfg.Attr
		if attr == "" {
			attr = "datetime"
		}
		return NewRule("time:"+selector, func(doc *ingest.Document) []string {
			return selectAll(doc, selector, attr)
		}), nil
	case KindURLSegment:
		if cfg.Segment == 0 {
			return nil, ingest.Configf("url_segment rule requires a non-zero segment")
		}
		return NewRule("url_segment", func(doc *ingest.Document) []string {
			return nonEmpty(urlSegment(doc, cfg.Segment))
		}), nil
	case KindURLSlug:
		return NewRule("url_slug", func(doc *ingest.Document) []string {
			return nonEmpty(urlSlug(doc))
		}), nil
	default:
		return nil, ingest.Configf("unknown rule kind %q", cfg.Kind)
	}
}

// checkSelector rejects CSS that goquery would otherwise treat as matching nothing.
func checkSelector(selector string) error {
	if _, err := cascadia.Compile(selector); err != nil {
		return ingest.Configf("selector rule %q: %v", selector, err)
	}
	return nil
}

// CompileAll compiles an ordered rule list for one field.
func CompileAll(field string, cfgs []config.RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfgs))
	for i, cfg := range cfgs {
		rule, err := Compile(cfg)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func selectAll(doc *ingest.Document, selector, attr string) []string {
	var out []string
	doc.DOM.Find(selector).Each(func(_ int, s *goquery.Selection) {
		var v string
		if attr != "" {
			v, _ = s.Attr(attr)
		} else {
			v = s.Text()
		}
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	})
	return out
}

func pathSegments(doc *ingest.Document) []string {
	if doc.URL == nil {
		return nil
	}
	var segs []string
	for _, s := range strings.Split(doc.URL.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// urlSegment returns the 1-based path segment n; negative n counts from the end.
func urlSegment(doc *ingest.Document, n int) string {
	segs := pathSegments(doc)
	idx := n - 1
	if n < 0 {
		idx = len(segs) + n
	}
	if idx < 0 || idx >= len(segs) {
		return ""
	}
	return strings.ReplaceAll(segs[idx], "-", " ")
}

// urlSlug turns the last path segment into words: "council-budget-vote.html" -> "council budget vote".
func urlSlug(doc *ingest.Document) string {
	segs := pathSegments(doc)
	if len(segs) == 0 {
		return ""
	}
	slug := segs[len(segs)-1]
	slug = strings.TrimSuffix(slug, path.Ext(slug))
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' || r == '+' })
	// Drop trailing numeric ids.
	for len(words) > 0 && isDigits(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}
