// Package collyfetcher implements ingest.Requester using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior for one source.
type Config struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	CloudflareBypass   bool
	MaxBodyBytes       int
}

// Requester performs single GET exchanges through a Colly collector.
type Requester struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Requester. Clones share the base collector's HTTP backend,
// so transport and timeout are fixed here once.
func New(cfg Config) *Requester {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	}
	if cfg.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodyBytes))
	}
	c := colly.NewCollector(opts...)
	c.WithTransport(newRoundTripper(cfg))
	c.SetRequestTimeout(cfg.Timeout)

	return &Requester{cfg: cfg, baseCollector: c}
}

// Do executes a single HTTP GET. Non-2xx statuses are returned as responses, not errors.
func (r *Requester) Do(ctx context.Context, request ingest.FetchRequest) (ingest.FetchResponse, error) {
	var (
		result   ingest.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := r.buildCollector(request, start, &result, &fetchErr)
	if err := r.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return ingest.FetchResponse{}, err
	}
	return result, nil
}

func (r *Requester) buildCollector(
	request ingest.FetchRequest,
	start time.Time,
	result *ingest.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := r.baseCollector.Clone()
	if ua := request.Headers.Get("User-Agent"); ua != "" {
		collector.UserAgent = ua
	}
	r.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (r *Requester) configureCollectorHooks(
	hooks collectorHooks,
	request ingest.FetchRequest,
	start time.Time,
	result *ingest.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(cr *colly.Request) {
		copyHeaders(request.Headers, cr)
	})

	hooks.OnResponse(func(resp *colly.Response) {
		finalURL := request.URL
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL = resp.Request.URL.String()
		}
		var headers http.Header
		if resp.Headers != nil {
			headers = resp.Headers.Clone()
		}
		*result = ingest.FetchResponse{
			URL:        finalURL,
			StatusCode: resp.StatusCode,
			Headers:    headers,
			Body:       append([]byte{}, resp.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (r *Requester) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func copyHeaders(headers http.Header, cr *colly.Request) {
	for key, values := range headers {
		cr.Headers.Del(key)
		for _, v := range values {
			cr.Headers.Add(key, v)
		}
	}
}

func newRoundTripper(cfg Config) http.RoundTripper {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	var rt http.RoundTripper = transport
	if cfg.CloudflareBypass {
		rt = cloudflarebp.AddCloudFlareByPass(transport)
	}
	// Applied after the bypass, which may install its own TLS config.
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	transport.TLSClientConfig.InsecureSkipVerify = cfg.InsecureSkipVerify //nolint:gosec // per-source opt-in
	return rt
}
