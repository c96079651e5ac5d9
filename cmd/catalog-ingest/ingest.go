package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-agent/internal/domain/catalog"
)

const bloomFPR = 0.001

// readCatalogs parses every file concurrently and concatenates the results
// in argument order. Item IDs are renumbered 1..N across the merged catalog.
func readCatalogs(ctx context.Context, files []string) ([]catalog.Item, error) {
	parsed := make([][]catalog.Item, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			items, err := readCatalogFile(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "%s", path)
			}
			slog.Info("parsed catalog file",
				slog.String("path", path),
				slog.Int("items", len(items)),
			)
			parsed[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []catalog.Item
	for _, items := range parsed {
		merged = append(merged, items...)
	}
	for i := range merged {
		merged[i].ID = strconv.Itoa(i + 1)
	}
	return merged, nil
}

// readCatalogFile parses one catalog file, decompressing .gz files.
func readCatalogFile(ctx context.Context, path string) ([]catalog.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	return catalog.Parse(&ctxReader{ctx: ctx, r: r})
}

// ctxReader stops reading once ctx is done, so a failing file cancels the
// others.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// duplicate is a display name shared by several items.
type duplicate struct {
	Name string
	IDs  []string
}

// findDuplicates reports names that occur more than once, ignoring case and
// surrounding space. A bloom filter picks candidates in the first pass so
// only those are counted exactly in the second.
func findDuplicates(items []catalog.Item) []duplicate {
	if len(items) == 0 {
		return nil
	}

	filter := bloom.NewWithEstimates(uint(len(items)), bloomFPR)
	candidates := make(map[string]struct{})
	for _, it := range items {
		key := nameKey(it.Name)
		if filter.TestAndAddString(key) {
			candidates[key] = struct{}{}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	ids := make(map[string][]string, len(candidates))
	var order []string
	for _, it := range items {
		key := nameKey(it.Name)
		if _, ok := candidates[key]; !ok {
			continue
		}
		if _, seen := ids[key]; !seen {
			order = append(order, key)
		}
		ids[key] = append(ids[key], it.ID)
	}

	var out []duplicate
	for _, key := range order {
		if len(ids[key]) > 1 {
			out = append(out, duplicate{Name: key, IDs: ids[key]})
		}
	}
	return out
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
