package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/store"
)

// RunStore keeps scheduled runs in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]ingest.RunRecord
	now  func() time.Time
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]ingest.RunRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, record ingest.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[record.Request.RunID]; exists {
		return fmt.Errorf("run %s already exists", record.Request.RunID)
	}
	if record.Updated.IsZero() {
		record.Updated = s.now()
	}
	s.runs[record.Request.RunID] = record
	return nil
}

// UpdateRun records a status transition and, once finished, the report.
func (s *RunStore) UpdateRun(
	_ context.Context,
	runID string,
	status ingest.RunStatus,
	note string,
	report *ingest.RunReport,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	record.Status = status
	record.Note = note
	if report != nil {
		snapshot := *report
		snapshot.Errors = append([]string(nil), report.Errors...)
		snapshot.InsertedIDs = append([]string(nil), report.InsertedIDs...)
		record.Report = &snapshot
	}
	record.Updated = s.now()
	s.runs[runID] = record
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (ingest.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.runs[runID]
	if !ok {
		return ingest.RunRecord{}, store.ErrNotFound
	}
	return record, nil
}

// ListRuns returns runs newest first, optionally filtered by source.
func (s *RunStore) ListRuns(_ context.Context, sourceID string) ([]ingest.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.RunRecord, 0, len(s.runs))
	for _, record := range s.runs {
		if sourceID != "" && record.Request.SourceID != sourceID {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Request.Submitted.After(out[j].Request.Submitted)
	})
	return out, nil
}
