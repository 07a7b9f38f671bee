package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/catalogsearch/internal/seed"
)

// SeedOptions controls a demo catalog seed.
type SeedOptions struct {
	Count   int
	Seed    int64
	Reindex bool
}

// Seed writes a deterministic demo catalog into the configured record store.
// With Reindex set, the search index is bootstrapped and rebuilt afterwards;
// otherwise the next service start picks the products up.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	products := seed.Generate(opts.Count, opts.Seed, time.Now())

	res, err := seed.Run(ctx, a.repo, products, a.logger)
	if err != nil {
		return fmt.Errorf("seed record store: %w", err)
	}
	a.logger.Info("record store seeded",
		slog.Int("inserted", res.Inserted),
		slog.Int("skipped", res.Skipped),
	)

	if !opts.Reindex {
		return nil
	}

	if _, err := a.catalog.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap search index: %w", err)
	}
	report, err := a.catalog.RebuildAll(ctx)
	if err != nil {
		return fmt.Errorf("rebuild search index: %w", err)
	}
	a.logger.Info("search index rebuilt",
		slog.Int("indexed", report.Indexed),
		slog.Int("failed", len(report.Failed)),
	)
	return nil
}
