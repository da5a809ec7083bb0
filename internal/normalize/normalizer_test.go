package normalize

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var (
	ingestedAt  = time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	extractedAt = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	hintedAt    = time.Date(2024, 2, 29, 7, 0, 0, 0, time.UTC)
)

func newNormalizer() *Normalizer {
	return New(Config{
		SourceAliases:   map[string]string{"The Daily Ledger": "Daily Ledger", "ledger": "Daily Ledger"},
		CategoryAliases: map[string]string{"pol": "politics", "biz": "business"},
		Categories:      []string{"politics", "business", "world news", "general"},
		DefaultCategory: "General",
		FuzzyThreshold:  0.92,
	}, fixedClock{ingestedAt}, nil)
}

func TestNormalizePrecedence(t *testing.T) {
	t.Parallel()

	n := newNormalizer()
	candidate := ingest.Candidate{
		URL:   "https://ledger.example/news/a",
		Hints: ingest.Hints{Title: "Hint title", Category: "Biz", PublishedAt: hintedAt},
	}

	tests := []struct {
		name   string
		fields ingest.Fields
		want   ingest.Article
	}{
		{
			name:   "extractor wins",
			fields: ingest.Fields{Title: "Extracted title", Body: "body", RawCategory: "POL", Category: "pol", PublishedAt: extractedAt},
			want: ingest.Article{
				Source: "Daily Ledger", Category: "politics", RawCategory: "POL", Title: "Extracted title",
				URL: candidate.URL, Content: "body", PublishedAt: extractedAt, InsertedAt: ingestedAt,
			},
		},
		{
			name:   "hints fill gaps",
			fields: ingest.Fields{Title: "Extracted title", Body: "body"},
			want: ingest.Article{
				Source: "Daily Ledger", Category: "business", RawCategory: "Biz", Title: "Extracted title",
				URL: candidate.URL, Content: "body", PublishedAt: hintedAt, InsertedAt: ingestedAt,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := n.Normalize("the-daily ledger", tt.fields, candidate)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("article mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	t.Parallel()

	got := newNormalizer().Normalize("Ledger", ingest.Fields{Title: "T", Body: "b"}, ingest.Candidate{URL: "https://ledger.example/x"})
	require.Equal(t, ingestedAt, got.PublishedAt)
	require.Equal(t, "general", got.Category)
	require.Empty(t, got.RawCategory)
	require.Equal(t, "Daily Ledger", got.Source)
}

func TestCanonicalCategory(t *testing.T) {
	t.Parallel()

	n := newNormalizer()
	tests := map[string]string{
		"World-News":    "world news",
		" world_news ":  "world news",
		"Politcs":       "politics",
		"Arts & Crafts": "arts & crafts",
		"PoL":           "politics",
	}
	for in, want := range tests {
		require.Equal(t, want, n.CanonicalCategory(in), in)
	}
}

func TestCanonicalSourcePassthrough(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Harbour Gazette", newNormalizer().CanonicalSource("  Harbour Gazette "))
	require.Equal(t, "Daily Ledger", newNormalizer().CanonicalSource("DAILY_LEDGER"))
}

func TestFuzzyDisabled(t *testing.T) {
	t.Parallel()

	n := New(Config{Categories: []string{"politics"}}, fixedClock{ingestedAt}, nil)
	require.Equal(t, "politcs", n.CanonicalCategory("Politcs"))
}

func TestKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "world news", Key("  World--News "))
	require.Equal(t, "a b c", Key("A/b.C"))
	require.Empty(t, Key(" - "))
}
