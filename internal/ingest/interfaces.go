package ingest

import (
	"context"
	"io"
	"time"
)

// Requester performs a single transport exchange without retries.
type Requester interface {
	Do(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Fetcher fetches a URL with the full request discipline applied.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// HeadlessDetector decides whether a plain response needs a browser render.
type HeadlessDetector interface {
	ShouldPromote(resp FetchResponse) bool
}

// Classifier decides whether a document is a genuine article.
type Classifier interface {
	Classify(doc *Document) Verdict
}

// Extractor resolves article fields from a document.
type Extractor interface {
	Extract(doc *Document) (Fields, error)
}

// Normalizer maps extracted fields into the canonical article shape.
type Normalizer interface {
	Normalize(source string, fields Fields, candidate Candidate) Article
}

// Persister writes a batch of articles with URL deduplication.
type Persister interface {
	Persist(ctx context.Context, articles []Article) (PersistResult, error)
}

// Publisher pushes notices to a downstream topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Sleeper waits for a duration or until ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// RunQueue provides enqueue/dequeue semantics for run requests.
type RunQueue interface {
	Enqueue(ctx context.Context, req RunRequest) error
	Dequeue(ctx context.Context) (RunRequest, error)
}

// RunStore keeps scheduled runs and their reports.
type RunStore interface {
	CreateRun(ctx context.Context, record RunRecord) error
	UpdateRun(ctx context.Context, runID string, status RunStatus, note string, report *RunReport) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	ListRuns(ctx context.Context, sourceID string) ([]RunRecord, error)
}
