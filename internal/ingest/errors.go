package ingest

import (
	"errors"
	"fmt"
)

// Error taxonomy. Candidate-level kinds never abort a run; persistence
// failures fail the run; configuration errors surface at construction.
var (
	ErrTransport     = errors.New("transport failure")
	ErrRejected      = errors.New("authenticity rejection")
	ErrExtraction    = errors.New("extraction failure")
	ErrPersistence   = errors.New("persistence failure")
	ErrConfiguration = errors.New("configuration error")
)

// ErrQueueClosed is returned by a RunQueue after shutdown.
var ErrQueueClosed = errors.New("queue closed")

// CandidateError records why a single candidate was dropped.
type CandidateError struct {
	Kind error
	URL  string
	Err  error
}

// Error implements error.
func (e *CandidateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *CandidateError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewCandidateError builds a CandidateError of the given kind.
func NewCandidateError(kind error, url string, err error) *CandidateError {
	return &CandidateError{Kind: kind, URL: url, Err: err}
}

// Configf returns an error wrapping ErrConfiguration.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
