package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/store"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

func TestArticleRepositoryUniqueURL(t *testing.T) {
	t.Parallel()

	repo := NewArticleRepository(&seqIDs{})
	ctx := context.Background()
	batch := []ingest.Article{
		{Title: "One", URL: "https://a.example/1"},
		{Title: "Dup", URL: "https://a.example/1"},
		{Title: "Null"},
	}
	rows, err := repo.InsertBatch(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, []ingest.InsertedRow{{ID: "id-1", URL: "https://a.example/1"}, {ID: "id-2"}}, rows)

	found, err := repo.LookupByURLs(ctx, []string{"https://a.example/1", "https://a.example/2"})
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example/1"}, found)

	stored := repo.Articles()
	require.Len(t, stored, 2)
	require.Equal(t, "id-1", stored[0].ID)
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	runs := NewRunStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	first := ingest.RunRecord{Request: ingest.RunRequest{RunID: "run-1", SourceID: "ledger", Submitted: base}, Status: ingest.RunStatusQueued}
	second := ingest.RunRecord{Request: ingest.RunRequest{RunID: "run-2", SourceID: "ledger", Submitted: base.Add(time.Minute)}, Status: ingest.RunStatusQueued}
	other := ingest.RunRecord{Request: ingest.RunRequest{RunID: "run-3", SourceID: "courier", Submitted: base}, Status: ingest.RunStatusQueued}
	for _, r := range []ingest.RunRecord{first, second, other} {
		require.NoError(t, runs.CreateRun(ctx, r))
	}
	require.Error(t, runs.CreateRun(ctx, first), "duplicate run ids are rejected")

	report := ingest.NewRunReport("run-1", "ledger", 5, base, 0)
	report.Inserted = 2
	require.NoError(t, runs.UpdateRun(ctx, "run-1", ingest.RunStatusSucceeded, "", report))
	report.Inserted = 99

	got, err := runs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, ingest.RunStatusSucceeded, got.Status)
	require.Equal(t, 2, got.Report.Inserted, "stored report must be a snapshot")

	list, err := runs.ListRuns(ctx, "ledger")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "run-2", list[0].Request.RunID)

	all, err := runs.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	_, err = runs.GetRun(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, runs.UpdateRun(ctx, "missing", ingest.RunStatusFailed, "", nil), store.ErrNotFound)
}
