package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("headless rendering disabled")

// Noop stands in for the browser when headless rendering is turned off.
type Noop struct{}

// NewNoop creates a new Noop requester.
func NewNoop() *Noop {
	return &Noop{}
}

// Do always fails with ErrDisabled.
func (Noop) Do(_ context.Context, _ ingest.FetchRequest) (ingest.FetchResponse, error) {
	return ingest.FetchResponse{}, ErrDisabled
}
