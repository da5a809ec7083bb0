// Package dispatcher manages worker fan-out over the run queue and the
// optional per-source interval schedule.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/worker"
)

// Schedule submits a run of SourceID every Interval.
type Schedule struct {
	SourceID string
	Interval time.Duration
	Target   int
}

// Config wires a Dispatcher. Runs and IDs are required for Submit.
type Config struct {
	Queue     ingest.RunQueue
	Runs      ingest.RunStore
	IDs       ingest.IDGenerator
	Clock     ingest.Clock
	Workers   []*worker.Worker
	Schedules []Schedule
	Logger    *zap.Logger
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue     ingest.RunQueue
	runs      ingest.RunStore
	ids       ingest.IDGenerator
	clock     ingest.Clock
	workers   []*worker.Worker
	schedules []Schedule
	logger    *zap.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:     cfg.Queue,
		runs:      cfg.Runs,
		ids:       cfg.IDs,
		clock:     cfg.Clock,
		workers:   cfg.Workers,
		schedules: cfg.Schedules,
		logger:    logger,
	}
}

// Run starts all workers and schedules and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	for _, s := range d.schedules {
		if s.Interval <= 0 {
			continue
		}
		wg.Add(1)
		go func(s Schedule) {
			defer wg.Done()
			d.tick(ctx, s)
		}(s)
	}
	<-ctx.Done()
	wg.Wait()
}

func (d *Dispatcher) tick(ctx context.Context, s Schedule) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	d.logger.Info("source scheduled", zap.String("source", s.SourceID), zap.Duration("interval", s.Interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := d.Submit(ctx, s.SourceID, s.Target)
			if err != nil {
				d.logger.Warn("scheduled submit failed", zap.String("source", s.SourceID), zap.Error(err))
				continue
			}
			d.logger.Debug("scheduled run submitted", zap.String("source", s.SourceID), zap.String("run_id", req.RunID))
		}
	}
}

// Submit records a queued run and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, sourceID string, target int) (ingest.RunRequest, error) {
	if d.ids == nil || d.runs == nil || d.clock == nil {
		return ingest.RunRequest{}, ingest.Configf("dispatcher submit requires ids, runs and clock")
	}
	runID, err := d.ids.NewID()
	if err != nil {
		return ingest.RunRequest{}, fmt.Errorf("generate run id: %w", err)
	}
	now := d.clock.Now().UTC()
	req := ingest.RunRequest{RunID: runID, SourceID: sourceID, Target: target, Submitted: now}
	if err := d.runs.CreateRun(ctx, ingest.RunRecord{Request: req, Status: ingest.RunStatusQueued, Updated: now}); err != nil {
		return ingest.RunRequest{}, fmt.Errorf("create run: %w", err)
	}
	if err := d.Enqueue(ctx, req); err != nil {
		if uerr := d.runs.UpdateRun(context.WithoutCancel(ctx), runID, ingest.RunStatusFailed, err.Error(), nil); uerr != nil {
			d.logger.Error("mark unqueued run failed", zap.String("run_id", runID), zap.Error(uerr))
		}
		return ingest.RunRequest{}, err
	}
	return req, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, req ingest.RunRequest) error {
	if err := d.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
