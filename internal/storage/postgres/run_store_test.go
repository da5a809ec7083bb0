package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/store"
)

func TestRunStoreCreateAndUpdate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock, "")
	require.NoError(t, err)

	submitted := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	record := ingest.RunRecord{
		Request: ingest.RunRequest{RunID: "run-1", SourceID: "ledger", Target: 5, Submitted: submitted},
		Status:  ingest.RunStatusQueued,
		Updated: submitted,
	}

	mock.ExpectExec("INSERT INTO ingest_runs").
		WithArgs("run-1", "ledger", 5, submitted, "queued", "", pgxmock.AnyArg(), submitted).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ingest_runs SET status = $1, note = $2, report = $3, updated_at = now() WHERE run_id = $4")).
		WithArgs("succeeded", "", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE ingest_runs").
		WithArgs("failed", "", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ctx := context.Background()
	require.NoError(t, runs.CreateRun(ctx, record))
	report := ingest.NewRunReport("run-1", "ledger", 5, submitted, 0)
	require.NoError(t, runs.UpdateRun(ctx, "run-1", ingest.RunStatusSucceeded, "", report))
	require.ErrorIs(t, runs.UpdateRun(ctx, "missing", ingest.RunStatusFailed, "", nil), store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock, "ingest_runs")
	require.NoError(t, err)

	submitted := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT run_id, source_id, target, submitted_at, status, note, report, updated_at FROM ingest_runs WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			"run-1", "ledger", 5, submitted, "succeeded", "", []byte(`{"run_id":"run-1","inserted":2}`), submitted,
		))
	mock.ExpectQuery("SELECT run_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, ingest.RunStatusSucceeded, got.Status)
	require.NotNil(t, got.Report)
	require.Equal(t, 2, got.Report.Inserted)

	_, err = runs.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runs, err := NewRunStore(mock, "ingest_runs")
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ingest_runs WHERE source_id = $1 ORDER BY submitted_at DESC LIMIT 100")).
		WithArgs("ledger").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-2", "ledger", 5, at.Add(time.Hour), "running", "", []byte(`{}`), at).
			AddRow("run-1", "ledger", 5, at, "skipped", "run already in flight", []byte(`{}`), at))

	got, err := runs.ListRuns(context.Background(), "ledger")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "run-2", got[0].Request.RunID)
	require.Equal(t, "run already in flight", got[1].Note)
	require.NoError(t, mock.ExpectationsWereMet())
}
