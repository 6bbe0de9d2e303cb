// Package main provides the treasury CLI:
// - serve: scheduled ingestion plus /metrics and /healthz
// - ingest: one-shot full or single-wallet run
// - stats, budget, export: read-only views of the ledger
// - migrate: apply storage migrations
// - verify: recompute balances and checkpoints from stored rows
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "treasury",
		Short:         "DAO treasury ledger",
		Long:          "Ingests multisig wallet transfers into a categorised ledger and reports spend against budgets.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "treasury.yaml", "Path to the YAML configuration")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "console", "Log format (console|json)")

	root.AddCommand(
		serveCmd(flags),
		ingestCmd(flags),
		statsCmd(flags),
		budgetCmd(flags),
		exportCmd(flags),
		migrateCmd(flags),
		verifyCmd(flags),
	)
	return root
}

// newLogger builds the process logger from the root flags.
func newLogger(flags *rootFlags) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(flags.logLevel))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid --log-level %q: %w", flags.logLevel, err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	var logger zerolog.Logger
	switch flags.logFormat {
	case "json":
		logger = zerolog.New(os.Stderr)
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	default:
		return zerolog.Nop(), fmt.Errorf("invalid --log-format %q (console|json)", flags.logFormat)
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}
