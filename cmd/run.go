package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// errRunFailed signals a completed run that reported failure.
var errRunFailed = errors.New("run failed")

func newRunCmd() *cobra.Command {
	var (
		target  int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Runs one source once and prints the report",
		Long: `Executes a single ingest run for the named source in the foreground and
prints its report. The exit status is non-zero when the run failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if _, ok := cfg.Sources[args[0]]; !ok {
				return fmt.Errorf("unknown source %q (known: %s)", args[0], strings.Join(cfg.SourceIDs(), ", "))
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer func() { _ = app.Close(context.WithoutCancel(cmd.Context())) }()

			report := app.RunSource(cmd.Context(), args[0], target)
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
			} else {
				renderReport(cmd.OutOrStdout(), report)
			}
			if report.Failed {
				return fmt.Errorf("%w: %s", errRunFailed, report.RunID)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&target, "target", 0, "number of articles to accept (0 uses the source default)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON")
	return cmd
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderReport(w io.Writer, report *ingest.RunReport) {
	t := newTable(w)
	t.SetTitle("run %s (%s)", report.RunID, report.SourceID)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"target", report.Target},
		{"selected", report.Selected},
		{"attempted", report.Attempted},
		{"accepted", report.Accepted},
		{"rejected", report.Rejected},
		{"failed fetch", report.FailedFetch},
		{"failed extraction", report.FailedExtraction},
		{"inserted", report.Inserted},
		{"skipped", report.Skipped},
		{"elapsed", report.Elapsed.Round(time.Millisecond).String()},
		{"failed", report.Failed},
	})
	t.Render()

	if len(report.Errors) == 0 {
		return
	}
	errs := newTable(w)
	errs.AppendHeader(table.Row{"#", "Error"})
	for i, e := range report.Errors {
		errs.AppendRow(table.Row{i + 1, e})
	}
	if report.DroppedErrors > 0 {
		errs.AppendFooter(table.Row{"", fmt.Sprintf("%d more not shown", report.DroppedErrors)})
	}
	errs.Render()
}
