package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head>
<title>  Budget vote delayed again |  Daily Ledger </title>
<meta property="og:title" content="Budget vote delayed again">
<meta name="Author" content="Jane Roe">
<meta name="empty" content="  ">
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[{"@type":"WebSite","name":"Daily Ledger"},
 {"@type":"NewsArticle","datePublished":"2024-05-01T10:00:00Z","author":[{"@type":"Person","name":"Jane Roe"}],"articleId":1234}]}
</script>
</head><body><p>hello</p></body></html>`

func TestParseDocumentIndexesMeta(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument("https://ledger.example/politics/budget-vote", []byte(samplePage))
	require.NoError(t, err)

	require.Equal(t, "Budget vote delayed again | Daily Ledger", doc.Title())
	require.Equal(t, "Jane Roe", doc.Meta("author"))
	require.Equal(t, "Budget vote delayed again", doc.Meta("twitter:title", "OG:TITLE"))
	require.Empty(t, doc.Meta("empty"))

	key, ok := doc.HasMeta("article:published_time", "author")
	require.True(t, ok)
	require.Equal(t, "author", key)
}

func TestDocumentJSONLD(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument("https://ledger.example/a", []byte(samplePage))
	require.NoError(t, err)

	require.Equal(t, "2024-05-01T10:00:00Z", doc.JSONLD("datePublished"))
	require.Equal(t, "Jane Roe", doc.JSONLD("author"))
	require.Equal(t, "1234", doc.JSONLD("articleId"))
	require.Empty(t, doc.JSONLD("missing"))
}

func TestDocumentIgnoresBrokenJSONLD(t *testing.T) {
	t.Parallel()

	body := `<html><head><script type="application/ld+json">{broken</script></head></html>`
	doc, err := ParseDocument("https://ledger.example/a", []byte(body))
	require.NoError(t, err)
	require.Empty(t, doc.JSONLD("datePublished"))
}

func TestParseDocumentRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := ParseDocument("http://%zz", []byte("<html></html>"))
	require.Error(t, err)
}
