package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utafrali/catalogsearch/internal/app"
	"github.com/utafrali/catalogsearch/internal/config"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts app.SeedOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the record store with a demo catalog",
		Long: `seed inserts a deterministic demo catalog into the record store selected by
RECORD_STORE, using the same environment configuration as the server.

Re-running with the same --count inserts nothing new.

Example usage:
  seed --count 10000            # Insert 10k products
  seed --count 500 --reindex    # Insert and rebuild the search index now`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 10000, "number of products to generate")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 1, "random seed for the generated catalog")
	cmd.Flags().BoolVar(&opts.Reindex, "reindex", false, "bootstrap and rebuild the search index after seeding")
	return cmd
}

func runSeed(ctx context.Context, opts app.SeedOptions) error {
	if opts.Count < 1 {
		return fmt.Errorf("--count must be positive, got %d", opts.Count)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Seeding talks to the stores only.
	cfg.KafkaEnabled = false

	log := logger.New("catalog-seed", cfg.LogLevel)
	log.Info("seeding catalog",
		slog.String("record_store", cfg.RecordStore),
		slog.Int("count", opts.Count),
	)

	a, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Seed(ctx, opts)
}
