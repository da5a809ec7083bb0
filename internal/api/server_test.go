package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/dispatcher"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	queueMemory "github.com/JakeFAU/realtime-news-ingest/internal/queue/memory"
	"github.com/JakeFAU/realtime-news-ingest/internal/run"
	"github.com/JakeFAU/realtime-news-ingest/internal/storage/memory"
)

func TestServer_SubmitRun_Succeeds(t *testing.T) {
	t.Parallel()

	q := queueMemory.NewQueue(10)
	runs := memory.NewRunStore()
	dispatch := dispatcher.New(dispatcher.Config{
		Queue: q,
		Runs:  runs,
		IDs:   &fakeIDGen{ids: []string{"run-1"}},
		Clock: &fakeClock{now: time.Unix(100, 0)},
	})
	server := NewServer(dispatch, runs, fakeCatalog{}, config.AuthConfig{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{"source":"ledger","target":3}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "run-1")
	queued, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, ingest.RunRequest{RunID: "run-1", SourceID: "ledger", Target: 3, Submitted: time.Unix(100, 0).UTC()}, queued)

	record, err := runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, ingest.RunStatusQueued, record.Status)
}

func TestServer_SubmitRun_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"invalid json", "{invalid", http.StatusBadRequest, "invalid JSON"},
		{"missing source", `{"target":3}`, http.StatusBadRequest, "source required"},
		{"negative target", `{"source":"ledger","target":-1}`, http.StatusBadRequest, "target"},
		{"unknown source", `{"source":"courier"}`, http.StatusNotFound, "source not found"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(tt.body))
			newTestServer(memory.NewRunStore()).Handler().ServeHTTP(rec, req)
			require.Equal(t, tt.code, rec.Code)
			require.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestServer_SubmitRun_QueueFailure(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeSubmitter{err: fmt.Errorf("queue enqueue: %w", ingest.ErrQueueClosed)},
		memory.NewRunStore(), fakeCatalog{}, config.AuthConfig{}, zap.NewNop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{"source":"ledger"}`))
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_GetRun(t *testing.T) {
	t.Parallel()

	runs := memory.NewRunStore()
	report := ingest.NewRunReport("run-9", "ledger", 3, time.Unix(100, 0), 0)
	report.Inserted = 2
	require.NoError(t, runs.CreateRun(context.Background(), ingest.RunRecord{
		Request: ingest.RunRequest{RunID: "run-9", SourceID: "ledger", Target: 3},
		Status:  ingest.RunStatusQueued,
	}))
	require.NoError(t, runs.UpdateRun(context.Background(), "run-9", ingest.RunStatusSucceeded, "inserted 2, skipped 0", report))
	server := newTestServer(runs)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-9", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Run ingest.RunRecord `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, ingest.RunStatusSucceeded, body.Run.Status)
	require.NotNil(t, body.Run.Report)
	require.Equal(t, 2, body.Run.Report.Inserted)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetRun_StoreError(t *testing.T) {
	t.Parallel()

	server := newTestServer(&errRunStore{err: errors.New("db down")})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ListRuns(t *testing.T) {
	t.Parallel()

	runs := memory.NewRunStore()
	for i := 1; i <= 3; i++ {
		require.NoError(t, runs.CreateRun(context.Background(), ingest.RunRecord{
			Request: ingest.RunRequest{
				RunID:     fmt.Sprintf("run-%d", i),
				SourceID:  "ledger",
				Submitted: time.Unix(int64(100*i), 0),
			},
			Status: ingest.RunStatusQueued,
		}))
	}
	server := newTestServer(runs)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?source=ledger&limit=2&offset=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []ingest.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=zero", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?offset=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestServer_ListSources(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(memory.NewRunStore()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sources", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"ledger"`)
	require.Contains(t, rec.Body.String(), "Daily Ledger")
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	healthy := NewServer(nil, nil, nil, config.AuthConfig{}, nil, func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	healthy.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	broken := NewServer(nil, nil, nil, config.AuthConfig{}, nil, func(context.Context) error { return errors.New("pool closed") })
	rec = httptest.NewRecorder()
	broken.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(memory.NewRunStore())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, memory.NewRunStore(), fakeCatalog{}, config.AuthConfig{Enabled: true, APIKey: "secret"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sources?api_key=secret", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open for the orchestrator platform.
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(memory.NewRunStore()).Handler().ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	newTestServer(memory.NewRunStore()).Handler().ServeHTTP(rec, req)
	require.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "", errors.New("no ids left")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeCatalog struct{}

func (fakeCatalog) Sources() []run.SourceInfo {
	return []run.SourceInfo{{ID: "ledger", Name: "Daily Ledger", DefaultCategory: "general", Target: 5, Strategies: 2}}
}

func (fakeCatalog) HasSource(id string) bool { return id == "ledger" }

type fakeSubmitter struct {
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, sourceID string, target int) (ingest.RunRequest, error) {
	if f.err != nil {
		return ingest.RunRequest{}, f.err
	}
	return ingest.RunRequest{RunID: "run-x", SourceID: sourceID, Target: target}, nil
}

type errRunStore struct {
	err error
}

func (s *errRunStore) CreateRun(context.Context, ingest.RunRecord) error { return s.err }

func (s *errRunStore) UpdateRun(context.Context, string, ingest.RunStatus, string, *ingest.RunReport) error {
	return s.err
}

func (s *errRunStore) GetRun(context.Context, string) (ingest.RunRecord, error) {
	return ingest.RunRecord{}, s.err
}

func (s *errRunStore) ListRuns(context.Context, string) ([]ingest.RunRecord, error) {
	return nil, s.err
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(runs ingest.RunStore) *Server {
	return NewServer(&fakeSubmitter{}, runs, fakeCatalog{}, config.AuthConfig{}, zap.NewNop())
}
