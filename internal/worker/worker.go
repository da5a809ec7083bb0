// Package worker executes queued run requests against the orchestrator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// Runner executes one run and always returns a report.
type Runner interface {
	Execute(ctx context.Context, req ingest.RunRequest) *ingest.RunReport
}

// Flight is a per-source single-flight lock shared by every worker.
type Flight struct {
	mu       sync.Mutex
	inFlight map[string]string
}

// NewFlight constructs an empty Flight.
func NewFlight() *Flight {
	return &Flight{inFlight: make(map[string]string)}
}

// Acquire claims sourceID for runID. It returns the holder's run id and false
// when another run of the source is in flight.
func (f *Flight) Acquire(sourceID, runID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if holder, busy := f.inFlight[sourceID]; busy {
		return holder, false
	}
	f.inFlight[sourceID] = runID
	return runID, true
}

// Release frees sourceID.
func (f *Flight) Release(sourceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, sourceID)
}

// Busy reports whether sourceID has a run in flight.
func (f *Flight) Busy(sourceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.inFlight[sourceID]
	return busy
}

// Worker consumes run requests and records their lifecycle in the run store.
type Worker struct {
	queue  ingest.RunQueue
	runs   ingest.RunStore
	runner Runner
	flight *Flight
	logger *zap.Logger
}

// New constructs a Worker. Workers that share flight never run one source twice at once.
func New(queue ingest.RunQueue, runs ingest.RunStore, runner Runner, flight *Flight, logger *zap.Logger) *Worker {
	if flight == nil {
		flight = NewFlight()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		runs:   runs,
		runner: runner,
		flight: flight,
		logger: logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ingest.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", req.RunID), zap.String("source", req.SourceID))
		w.Process(ctx, req)
	}
}

// Process executes one request under the source's single-flight lock.
func (w *Worker) Process(ctx context.Context, req ingest.RunRequest) {
	logger := w.logger.With(zap.String("run_id", req.RunID), zap.String("source", req.SourceID))
	if w.runner == nil {
		logger.Error("no runner configured")
		w.update(ctx, logger, req.RunID, ingest.RunStatusFailed, "no runner configured", nil)
		return
	}

	holder, ok := w.flight.Acquire(req.SourceID, req.RunID)
	if !ok {
		note := fmt.Sprintf("run %s already in flight for source %s", holder, req.SourceID)
		logger.Info("run skipped", zap.String("holder", holder))
		w.update(ctx, logger, req.RunID, ingest.RunStatusSkipped, note, nil)
		return
	}
	defer w.flight.Release(req.SourceID)

	w.update(ctx, logger, req.RunID, ingest.RunStatusRunning, "", nil)
	report := w.runner.Execute(ctx, req)
	status, note := deriveFinalStatus(ctx, report)
	// The final status is recorded even when shutdown canceled the run.
	w.update(context.WithoutCancel(ctx), logger, req.RunID, status, note, report)
}

func (w *Worker) update(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	status ingest.RunStatus,
	note string,
	report *ingest.RunReport,
) {
	if w.runs == nil {
		return
	}
	if err := w.runs.UpdateRun(ctx, runID, status, note, report); err != nil {
		logger.Error("update run status failed", zap.String("status", string(status)), zap.Error(err))
	}
}

func deriveFinalStatus(ctx context.Context, report *ingest.RunReport) (ingest.RunStatus, string) {
	switch {
	case report == nil:
		return ingest.RunStatusFailed, "runner returned no report"
	case ctx.Err() != nil:
		return ingest.RunStatusFailed, "run canceled"
	case report.Failed:
		switch {
		case report.FailureReason != "":
			return ingest.RunStatusFailed, report.FailureReason
		case len(report.Errors) > 0:
			return ingest.RunStatusFailed, report.Errors[len(report.Errors)-1]
		}
		return ingest.RunStatusFailed, "run failed"
	default:
		return ingest.RunStatusSucceeded, fmt.Sprintf("inserted %d, skipped %d", report.Inserted, report.Skipped)
	}
}
