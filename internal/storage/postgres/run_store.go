package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/store"
)

const listRunsLimit = 100

var runColumns = []string{"run_id", "source_id", "target", "submitted_at", "status", "note", "report", "updated_at"}

// RunStore implements ingest.RunStore using Postgres.
type RunStore struct {
	db    DB
	table string
}

// NewRunStore constructs a RunStore over an existing pool.
func NewRunStore(db DB, table string) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "ingest_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{db: db, table: table}, nil
}

// EnsureSchema creates the runs table.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	target INTEGER NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	report JSONB,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure runs schema: %w", err)
	}
	return nil
}

// CreateRun inserts a new run row.
func (s *RunStore) CreateRun(ctx context.Context, record ingest.RunRecord) error {
	report, err := marshalReport(record.Report)
	if err != nil {
		return err
	}
	req := record.Request
	query, args, err := psql.Insert(s.table).Columns(runColumns...).
		Values(req.RunID, req.SourceID, req.Target, req.Submitted, string(record.Status), record.Note, report, record.Updated).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert run: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun sets status, note and report of an existing run.
func (s *RunStore) UpdateRun(
	ctx context.Context,
	runID string,
	status ingest.RunStatus,
	note string,
	report *ingest.RunReport,
) error {
	payload, err := marshalReport(report)
	if err != nil {
		return err
	}
	query, args, err := psql.Update(s.table).
		Set("status", string(status)).
		Set("note", note).
		Set("report", payload).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update run: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun loads a single run or returns store.ErrNotFound.
func (s *RunStore) GetRun(ctx context.Context, runID string) (ingest.RunRecord, error) {
	query, args, err := psql.Select(runColumns...).From(s.table).Where(sq.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return ingest.RunRecord{}, fmt.Errorf("build get run: %w", err)
	}
	record, err := scanRun(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.RunRecord{}, store.ErrNotFound
		}
		return ingest.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return record, nil
}

// ListRuns returns the newest runs, optionally filtered by source.
func (s *RunStore) ListRuns(ctx context.Context, sourceID string) ([]ingest.RunRecord, error) {
	builder := psql.Select(runColumns...).From(s.table).OrderBy("submitted_at DESC").Limit(listRunsLimit)
	if sourceID != "" {
		builder = builder.Where(sq.Eq{"source_id": sourceID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list runs: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []ingest.RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (ingest.RunRecord, error) {
	var (
		record ingest.RunRecord
		status string
		report []byte
	)
	err := row.Scan(
		&record.Request.RunID,
		&record.Request.SourceID,
		&record.Request.Target,
		&record.Request.Submitted,
		&status,
		&record.Note,
		&report,
		&record.Updated,
	)
	if err != nil {
		return ingest.RunRecord{}, err
	}
	record.Status = ingest.RunStatus(status)
	if len(report) > 0 {
		var decoded ingest.RunReport
		if err := json.Unmarshal(report, &decoded); err != nil {
			return ingest.RunRecord{}, fmt.Errorf("decode report: %w", err)
		}
		record.Report = &decoded
	}
	return record, nil
}

func marshalReport(report *ingest.RunReport) ([]byte, error) {
	if report == nil {
		return nil, nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return payload, nil
}
