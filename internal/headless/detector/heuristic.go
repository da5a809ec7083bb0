// Package detector decides when a plain fetch is a JavaScript shell that needs a browser render.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

const defaultThreshold = 2048

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	// TextThreshold is the visible text length below which a script-heavy page is promoted.
	TextThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{TextThreshold: threshold}
}

var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("data-reactroot"),
	[]byte("please enable javascript"),
	[]byte("you need to enable javascript"),
}

// ShouldPromote reports whether resp looks like a client-rendered shell.
func (h *Heuristic) ShouldPromote(resp ingest.FetchResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	lower := bytes.ToLower(resp.Body)
	for _, marker := range shellMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}
	return h.scriptHeavy(doc)
}

// scriptHeavy flags pages whose visible text is short while inline scripts dominate.
func (h *Heuristic) scriptHeavy(doc *goquery.Document) bool {
	scripts := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts += len(s.Text())
	})
	doc.Find("script, style, noscript").Remove()
	text := len(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
	if text >= h.TextThreshold {
		return false
	}
	return scripts > 0 && scripts >= text
}
