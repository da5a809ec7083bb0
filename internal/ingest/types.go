package ingest

import (
	"net/http"
	"time"
)

// Hints carries advisory fields known before a page is fetched (usually from a feed entry).
type Hints struct {
	Title       string    `json:"title,omitempty"`
	Category    string    `json:"category,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Candidate is a URL considered for acquisition during one run.
type Candidate struct {
	SourceID string `json:"source_id"`
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
	Hints    Hints  `json:"hints"`
}

// FetchRequest captures everything a transport needs to issue one request.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the raw outcome of one transport exchange.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// FetchResult is the outcome of a full fetch including retries.
// Body is nil when every attempt failed; StatusCode holds the last status seen.
type FetchResult struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Header       http.Header
	Body         []byte
	Elapsed      time.Duration
	Attempts     int
	UsedHeadless bool
	Err          error
}

// OK reports whether the fetch produced a body.
func (r FetchResult) OK() bool {
	return r.Body != nil
}

// Signal names the evidence behind an authenticity verdict.
type Signal string

// Authenticity signals in evaluation order.
const (
	SignalArticleMetadata    Signal = "structured metadata present"
	SignalBrandedTitle       Signal = "branded title"
	SignalDescription        Signal = "descriptive metadata"
	SignalGenericDescription Signal = "generic description detected"
	SignalNone               Signal = "no authenticity signal"
)

// Verdict is the authenticity decision for one document.
type Verdict struct {
	Accepted bool
	Signal   Signal
	Detail   string
}

// Fields are the values resolved by the extraction cascade.
// PublishedAt is zero when no rule produced a valid timestamp.
type Fields struct {
	Title       string
	Body        string
	Category    string
	RawCategory string
	PublishedAt time.Time
	// Rules maps each field to the rule that produced it.
	Rules map[string]string
}

// Article is the canonical, persisted unit. An empty URL is stored as NULL.
type Article struct {
	ID          string    `json:"id,omitempty"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	RawCategory string    `json:"raw_category"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
	InsertedAt  time.Time `json:"inserted_at"`
}

// InsertedRow identifies one row written by a repository.
type InsertedRow struct {
	ID  string
	URL string
}

// PersistResult summarizes one dedup gateway call.
type PersistResult struct {
	Checked     int      `json:"checked"`
	Skipped     int      `json:"skipped"`
	Inserted    int      `json:"inserted"`
	InsertedIDs []string `json:"inserted_ids"`
	// Rows pairs each inserted id with its url, in insertion order.
	Rows []InsertedRow `json:"-"`
}

// ArticleNotice is published to the downstream analysis collaborator after insertion.
type ArticleNotice struct {
	ArticleID  string    `json:"article_id"`
	URL        string    `json:"url"`
	Source     string    `json:"source"`
	Title      string    `json:"title"`
	InsertedAt time.Time `json:"inserted_at"`
}

// RunStatus is the lifecycle state of a scheduled run.
type RunStatus string

// Run status values tracked by the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped"
)

// RunRequest asks the orchestrator to run one source.
type RunRequest struct {
	RunID     string    `json:"run_id"`
	SourceID  string    `json:"source_id"`
	Target    int       `json:"target"`
	Submitted time.Time `json:"submitted_at"`
}

// RunRecord tracks a scheduled run and its report once finished.
type RunRecord struct {
	Request RunRequest `json:"request"`
	Status  RunStatus  `json:"status"`
	Report  *RunReport `json:"report,omitempty"`
	Note    string     `json:"note,omitempty"`
	Updated time.Time  `json:"updated_at"`
}
