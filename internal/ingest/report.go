package ingest

import (
	"fmt"
	"time"
)

// DefaultMaxReportErrors bounds RunReport.Errors when no limit is set.
const DefaultMaxReportErrors = 50

// RunReport aggregates the counters of one orchestrator run.
type RunReport struct {
	RunID            string        `json:"run_id"`
	SourceID         string        `json:"source_id"`
	Target           int           `json:"target"`
	StartedAt        time.Time     `json:"started_at"`
	Selected         int           `json:"selected"`
	Attempted        int           `json:"attempted"`
	Accepted         int           `json:"accepted"`
	Rejected         int           `json:"rejected"`
	FailedFetch      int           `json:"failed_fetch"`
	FailedExtraction int           `json:"failed_extraction"`
	Inserted         int           `json:"inserted"`
	Skipped          int           `json:"skipped"`
	InsertedIDs      []string      `json:"inserted_ids,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
	Errors           []string      `json:"errors"`
	DroppedErrors    int           `json:"dropped_errors,omitempty"`
	Failed           bool          `json:"failed"`
	FailureReason    string        `json:"failure_reason,omitempty"`

	maxErrors int
}

// NewRunReport starts a report for the given run.
func NewRunReport(runID, sourceID string, target int, started time.Time, maxErrors int) *RunReport {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxReportErrors
	}
	return &RunReport{
		RunID:     runID,
		SourceID:  sourceID,
		Target:    target,
		StartedAt: started,
		Errors:    []string{},
		maxErrors: maxErrors,
	}
}

// AddError appends a formatted error, counting overflow instead of growing.
func (r *RunReport) AddError(format string, args ...any) {
	limit := r.maxErrors
	if limit <= 0 {
		limit = DefaultMaxReportErrors
	}
	if len(r.Errors) >= limit {
		r.DroppedErrors++
		return
	}
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Fail marks the report failed and records the reason. The reason always
// lands in Errors; a full list gives up its last entry for it.
func (r *RunReport) Fail(err error) {
	r.Failed = true
	r.FailureReason = err.Error()
	limit := r.maxErrors
	if limit <= 0 {
		limit = DefaultMaxReportErrors
	}
	if n := len(r.Errors); n >= limit && n > 0 {
		r.Errors[n-1] = r.FailureReason
		r.DroppedErrors++
		return
	}
	r.Errors = append(r.Errors, r.FailureReason)
}
