// Package cmd defines the CLI commands for the newsingest executable.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/server"
)

// Application is the surface of server.App the commands use. Tests swap in fakes.
type Application interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	RunSource(ctx context.Context, sourceID string, target int) *ingest.RunReport
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (Application, error) {
	return server.Build(ctx, cfg)
}

type cfgKeyType struct{}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "newsingest",
		Short: "Collects news articles from configured sources into a deduplicated store.",
		Long: `newsingest discovers candidate articles on configured news sites, keeps
the ones that look like genuine articles, extracts and normalizes their
fields, and stores them once per URL.

Run a single source with "run", or start the HTTP API and scheduler with "serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Configuration is loaded once before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKeyType{}, &cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env INGEST_* overrides)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSourcesCmd())
	return cmd
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(cfgKeyType{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
