package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunReportBoundsErrors(t *testing.T) {
	t.Parallel()

	report := NewRunReport("run-1", "ledger", 5, time.Unix(0, 0), 2)
	report.AddError("first %d", 1)
	report.AddError("second")
	report.AddError("third")

	require.Equal(t, []string{"first 1", "second"}, report.Errors)
	require.Equal(t, 1, report.DroppedErrors)
}

func TestRunReportFail(t *testing.T) {
	t.Parallel()

	report := NewRunReport("run-1", "ledger", 5, time.Unix(0, 0), 0)
	report.Fail(errors.New("insert batch: boom"))

	require.True(t, report.Failed)
	require.Equal(t, []string{"insert batch: boom"}, report.Errors)
	require.Equal(t, "insert batch: boom", report.FailureReason)
}

func TestRunReportFailKeepsReasonWhenErrorsFull(t *testing.T) {
	t.Parallel()

	report := NewRunReport("run-1", "ledger", 5, time.Unix(0, 0), 2)
	report.AddError("fetch a")
	report.AddError("fetch b")
	report.AddError("fetch c")
	report.Fail(errors.New("persistence failure: connection reset"))

	require.True(t, report.Failed)
	require.Equal(t, "persistence failure: connection reset", report.FailureReason)
	require.Equal(t, []string{"fetch a", "persistence failure: connection reset"}, report.Errors)
	require.Equal(t, 2, report.DroppedErrors)
}

func TestCandidateErrorUnwrapsKindAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("status 503")
	err := NewCandidateError(ErrTransport, "https://example.com/a", cause)

	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrExtraction)
	require.Equal(t, "transport failure: https://example.com/a: status 503", err.Error())
}
