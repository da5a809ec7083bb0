package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/realtime-news-ingest/internal/progress"
)

// PrometheusSink exports run progress metrics.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	candidates       *prometheus.CounterVec
	candidateBytes   *prometheus.CounterVec
	articlesInserted *prometheus.CounterVec
	articlesSkipped  *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_runs_started_total",
			Help: "Runs started, by source.",
		}, []string{"source"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_runs_completed_total",
			Help: "Runs completed, by source and result.",
		}, []string{"source", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_runs_running",
			Help: "Runs currently in flight.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"source", "result"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_candidates_total",
			Help: "Processed candidates, by source and outcome.",
		}, []string{"source", "outcome"}),
		candidateBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_candidate_bytes_total",
			Help: "Body bytes of processed candidates, by source.",
		}, []string{"source"}),
		articlesInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_run_articles_inserted_total",
			Help: "Articles inserted by completed runs, by source.",
		}, []string{"source"}),
		articlesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_run_articles_skipped_total",
			Help: "Articles skipped as duplicates by completed runs, by source.",
		}, []string{"source"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.candidates,
		s.candidateBytes,
		s.articlesInserted,
		s.articlesSkipped,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register run collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.WithLabelValues(evt.SourceID).Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone:
			s.complete(evt, "success")
			s.articlesInserted.WithLabelValues(evt.SourceID).Add(float64(evt.Inserted))
			s.articlesSkipped.WithLabelValues(evt.SourceID).Add(float64(evt.Skipped))
		case progress.StageRunError:
			s.complete(evt, "error")
		case progress.StageCandidateDone:
			s.candidates.WithLabelValues(evt.SourceID, string(evt.Outcome)).Inc()
			if evt.Bytes > 0 {
				s.candidateBytes.WithLabelValues(evt.SourceID).Add(float64(evt.Bytes))
			}
		}
	}
	return nil
}

func (s *PrometheusSink) complete(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(evt.SourceID, result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(evt.SourceID, result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
