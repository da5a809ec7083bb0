package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

const cliConfig = `
sources:
  ledger:
    name: Daily Ledger
    default_category: politics
    schedule_minutes: 30
    strategies:
      - type: feed
        url: https://ledger.example/rss
      - type: direct
        urls: ["https://ledger.example/news/2024/a"]
`

type fakeApp struct {
	report *ingest.RunReport
	source string
	target int
	closed bool
	served bool
	runErr error
}

func (f *fakeApp) Run(context.Context) error {
	f.served = true
	return f.runErr
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeApp) RunSource(_ context.Context, sourceID string, target int) *ingest.RunReport {
	f.source = sourceID
	f.target = target
	return f.report
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cliConfig), 0o600))
	return path
}

// These tests replace the package-level factory, so they do not run in parallel.
func withFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	prev := newApp
	newApp = func(context.Context, *config.Config) (Application, error) { return app, nil }
	t.Cleanup(func() { newApp = prev })
}

func TestRunCommandPrintsReport(t *testing.T) {
	report := ingest.NewRunReport("run-1", "ledger", 3, time.Now(), 0)
	report.Attempted = 3
	report.Accepted = 2
	report.Inserted = 2
	app := &fakeApp{report: report}
	withFakeApp(t, app)

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--config", writeConfig(t), "run", "ledger", "--target", "3"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "ledger", app.source)
	assert.Equal(t, 3, app.target)
	assert.True(t, app.closed)
	assert.Contains(t, stdout.String(), "run-1")
	assert.Contains(t, stdout.String(), "inserted")
}

func TestRunCommandFailedRunExitsNonZero(t *testing.T) {
	report := ingest.NewRunReport("run-2", "ledger", 5, time.Now(), 0)
	report.Fail(ingest.ErrPersistence)
	withFakeApp(t, &fakeApp{report: report})

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--config", writeConfig(t), "run", "ledger", "--json"}, &stdout, &stderr)

	require.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "run failed")

	var decoded ingest.RunReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.True(t, decoded.Failed)
	assert.Equal(t, "run-2", decoded.RunID)
}

func TestRunCommandUnknownSource(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--config", writeConfig(t), "run", "courier"}, &stdout, &stderr)

	require.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `unknown source "courier"`)
	assert.Empty(t, app.source)
}

func TestSourcesCommandListsConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--config", writeConfig(t), "sources"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "Daily Ledger")
	assert.Contains(t, out, "feed,direct")
	assert.Contains(t, out, "30m0s")
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{runErr: context.Canceled}
	withFakeApp(t, app)

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--config", writeConfig(t), "serve"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.True(t, app.served)
}

func TestBadConfigFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "sources"}, &stdout, &stderr)

	require.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "load config")
}
