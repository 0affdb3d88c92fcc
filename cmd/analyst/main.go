// Command analyst runs marketing analyses over per-client platform metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/easeaico/marketing-analyst/internal/config"
	"github.com/easeaico/marketing-analyst/internal/logging"
)

// Set by ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "analyst",
		Short: "Marketing analyst over Google Analytics, Facebook and Instagram metrics",
		Long: `analyst answers analytical questions about a client's marketing metrics.

Each (client, platform) pair gets its own analyst bound to the client's rows
and to a semantic memory of earlier analyses. Configuration comes from
analyst.yaml and the environment (DATABASE_URL, GOOGLE_API_KEY, ...).`,
		SilenceUsage: true,
	}
	root.AddCommand(newAnalyzeCmd(), newServeCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "analyst %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}

// setup loads the configuration, builds the logger and wires the app.
func setup(ctx context.Context) (*app, config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, cfg, zerolog.Nop(), err
	}
	a, err := wire(ctx, cfg, logger)
	if err != nil {
		return nil, cfg, logger, err
	}
	return a, cfg, logger, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the agent cache and storage tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, logger, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			logger.Info().Msg("migration complete")
			return nil
		},
	}
}

var errAnalysisFailed = errors.New("analysis failed")
