package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a fetched page parsed once and shared by the classifier and the cascade.
type Document struct {
	URL *url.URL
	Raw []byte
	DOM *goquery.Document

	meta   map[string]string
	jsonld []map[string]any
}

// ParseDocument parses body as HTML and indexes its metadata.
func ParseDocument(rawURL string, body []byte) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse document url: %w", err)
	}
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc := &Document{URL: u, Raw: body, DOM: dom}
	doc.indexMeta()
	doc.indexJSONLD()
	return doc, nil
}

// Meta returns the first non-empty meta content for the given keys, in key order.
// Keys match name, property, itemprop or http-equiv, case-insensitively.
func (d *Document) Meta(keys ...string) string {
	for _, key := range keys {
		if v := d.meta[strings.ToLower(key)]; v != "" {
			return v
		}
	}
	return ""
}

// HasMeta reports whether any of keys carries non-empty content.
func (d *Document) HasMeta(keys ...string) (string, bool) {
	for _, key := range keys {
		if v := d.meta[strings.ToLower(key)]; v != "" {
			return key, true
		}
	}
	return "", false
}

// Title returns the trimmed text of the first <title> element.
func (d *Document) Title() string {
	return CollapseSpace(d.DOM.Find("title").First().Text())
}

// JSONLD returns the first scalar value for key across embedded JSON-LD objects.
// Objects with a "name" field and arrays resolve to their first usable value.
func (d *Document) JSONLD(key string) string {
	for _, obj := range d.jsonld {
		if v, ok := obj[key]; ok {
			if s := scalar(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func (d *Document) indexMeta() {
	d.meta = make(map[string]string)
	d.DOM.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		content = strings.TrimSpace(content)
		if !ok || content == "" {
			return
		}
		for _, attr := range []string{"name", "property", "itemprop", "http-equiv"} {
			key, ok := s.Attr(attr)
			if !ok {
				continue
			}
			key = strings.ToLower(strings.TrimSpace(key))
			if key == "" {
				continue
			}
			if _, seen := d.meta[key]; !seen {
				d.meta[key] = content
			}
		}
	})
}

func (d *Document) indexJSONLD() {
	d.DOM.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return
		}
		d.jsonld = append(d.jsonld, flattenJSONLD(payload)...)
	})
}

func flattenJSONLD(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		out := []map[string]any{t}
		if graph, ok := t["@graph"]; ok {
			out = append(out, flattenJSONLD(graph)...)
		}
		return out
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, flattenJSONLD(item)...)
		}
		return out
	default:
		return nil
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		return scalar(t["name"])
	case []any:
		for _, item := range t {
			if s := scalar(item); s != "" {
				return s
			}
		}
	}
	return ""
}

// CollapseSpace trims s and folds internal whitespace runs into single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
