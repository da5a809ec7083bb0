package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	r, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	require.Equal(t, 2, cap(r.slots))
	require.Equal(t, defaultNavTimeout, r.cfg.NavigationTimeout)
}

func TestAllocatorOptionsCertificateFlag(t *testing.T) {
	t.Parallel()

	base := len(allocatorOptions(Config{}))
	require.Len(t, allocatorOptions(Config{InsecureSkipVerify: true}), base+1)
	require.GreaterOrEqual(t, base, len(chromedp.DefaultExecAllocatorOptions))
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	r := &Requester{slots: make(chan struct{}, 1)}
	require.NoError(t, r.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.acquire(ctx), context.DeadlineExceeded)

	r.release()
	require.NoError(t, r.acquire(context.Background()))
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{"X-Multi": {"a", "b"}, "Referer": {"https://news.example/"}, "Empty": {}})
	require.Equal(t, "https://news.example/", got["Referer"])
	require.Equal(t, []string{"a", "b"}, got["X-Multi"])
	require.NotContains(t, got, "Empty")
}

func TestDocumentResponseObserveAndFallbacks(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeImage,
		Response: &network.Response{
			Status: 404,
			URL:    "https://ledger.example/logo.png",
		},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  203,
			URL:     "https://ledger.example/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	status, headers, url := doc.result("https://req", "")
	require.Equal(t, 203, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://ledger.example/rendered", url)

	empty := &documentResponse{}
	status, headers, url = empty.result("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, headers)
	require.Equal(t, "https://final", url)
}

func TestNoopRequester(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Do(context.Background(), ingest.FetchRequest{URL: "https://ledger.example"})
	require.ErrorIs(t, err, ErrDisabled)
}
