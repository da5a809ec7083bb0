package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-ingest/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{RunID: "run-1", SourceID: "ledger", TS: now, Stage: progress.StageRunStart},
		{RunID: "run-1", SourceID: "ledger", TS: now, Stage: progress.StageCandidateDone,
			URL: "https://ledger.example/a", Outcome: progress.OutcomeAccepted, Bytes: 2048},
		{RunID: "run-1", SourceID: "ledger", TS: now, Stage: progress.StageCandidateDone,
			URL: "https://ledger.example/b", Outcome: progress.OutcomeRejected, Bytes: 1024},
		{RunID: "run-1", SourceID: "ledger", TS: now, Stage: progress.StageRunDone,
			Dur: 45 * time.Second, Inserted: 1, Skipped: 0},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("ledger")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("ledger", "success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.candidates.WithLabelValues("ledger", "accepted")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.candidates.WithLabelValues("ledger", "rejected")))
	require.InDelta(t, 3072.0, testutil.ToFloat64(sink.candidateBytes.WithLabelValues("ledger")), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(sink.articlesInserted.WithLabelValues("ledger")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "ingest_run_duration_seconds"))
}

func TestPrometheusSinkRunningGauge(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", SourceID: "ledger", TS: now, Stage: progress.StageRunStart},
		{RunID: "run-1", SourceID: "ledger", TS: now, Stage: progress.StageRunStart},
		{RunID: "run-2", SourceID: "courier", TS: now, Stage: progress.StageRunStart},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-2", SourceID: "courier", TS: now, Stage: progress.StageRunError, Note: "persist failed"},
		{RunID: "run-2", SourceID: "courier", TS: now, Stage: progress.StageRunError},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("courier", "error")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
