// Command catalog-ingest replaces the stored catalog with the rows of one or
// more catalog files ("Name, Price, Stock" per line, optionally gzipped).
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/order-agent/internal/domain/catalog"
	"github.com/xenking/order-agent/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		template    bool
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&template, "template", false, "install the built-in template catalog instead of reading files")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and report without writing to the database")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] FILE [FILE...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env", slog.String("error", err.Error()))
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if !template && flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, template, dryRun, flag.Args()); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, template, dryRun bool, files []string) error {
	var items []catalog.Item
	if template {
		items = catalog.Template()
		slog.Info("using template catalog", slog.Int("items", len(items)))
	} else {
		var err error
		items, err = readCatalogs(ctx, files)
		if err != nil {
			return err
		}
	}

	for _, d := range findDuplicates(items) {
		slog.Warn("duplicate item name, orders will resolve to the first row",
			slog.String("name", d.Name),
			slog.Any("ids", d.IDs),
		)
	}

	if dryRun {
		slog.Info("dry run, database untouched", slog.Int("items", len(items)))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("replacing catalog", slog.Int("items", len(items)))
	if err := postgres.NewCatalogRepository(pool).ReplaceAll(ctx, items); err != nil {
		return errors.Wrap(err, "replace catalog")
	}
	return nil
}
