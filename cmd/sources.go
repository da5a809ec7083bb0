package cmd

import (
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Lists configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Name", "Category", "Target", "Strategies", "Schedule"})
			for _, id := range cfg.SourceIDs() {
				src := cfg.Sources[id]
				kinds := make([]string, 0, len(src.Strategies))
				for _, s := range src.Strategies {
					kinds = append(kinds, s.Type)
				}
				schedule := "-"
				if src.ScheduleMinutes > 0 {
					schedule = (time.Duration(src.ScheduleMinutes) * time.Minute).String()
				}
				t.AppendRow(table.Row{id, src.Name, src.DefaultCategory, src.Target, strings.Join(kinds, ","), schedule})
			}
			t.Render()
			return nil
		},
	}
}
