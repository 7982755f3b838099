// Command stock-import adds gzipped stock deliveries to inventory.
//
//	stock-import -database-url postgres://... deliveries/*.gz
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/restock"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		skipUnknown bool
		dryRun      bool
		timeout     time.Duration
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&skipUnknown, "skip-unknown", false, "skip products missing from the catalog instead of failing")
	flag.BoolVar(&dryRun, "dry-run", false, "parse files and print totals without touching the database")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "maximum duration of the import transaction")
	flag.Parse()

	if flag.NArg() == 0 {
		slog.Error("no delivery files given")
		os.Exit(2)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args(), skipUnknown, dryRun, timeout); err != nil {
		slog.Error("stock import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("stock import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, skipUnknown, dryRun bool, timeout time.Duration) error {
	deltas, err := restock.ReadFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "read delivery files")
	}
	slog.Info("deliveries parsed", slog.Int("files", len(files)), slog.Int("products", len(deltas)))

	if dryRun {
		for id, q := range deltas {
			slog.Info("delivery", slog.String("product_id", id), slog.Int("quantity", q))
		}
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	res, err := restock.Apply(ctx, postgres.NewTransactor(pool), store.TxOptions{
		LockTimeout: 10 * time.Second,
		Timeout:     timeout,
	}, deltas, skipUnknown)
	if err != nil {
		return errors.Wrap(err, "apply deliveries")
	}
	for _, id := range res.Unknown {
		slog.Warn("skipped unknown product", slog.String("product_id", id), slog.Int("quantity", deltas[id]))
	}
	slog.Info("stock updated", slog.Int("products", res.Updated), slog.Int("units", res.Units))
	return nil
}
