package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-agent/internal/domain/catalog"
)

var _ catalog.Repository = (*CatalogRepository)(nil)

var catalogColumns = []string{"position", "id", "name", "price", "stock"}

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// List returns the stored catalog in its original order.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price, stock FROM catalog_items ORDER BY position`)
	if err != nil {
		return nil, errors.Wrap(err, "query catalog items")
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Item, error) {
		var (
			item  catalog.Item
			stock int32
		)
		if err := row.Scan(&item.ID, &item.Name, &item.Price, &stock); err != nil {
			return catalog.Item{}, err
		}
		item.Stock = int(stock)
		return item, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan catalog items")
	}
	return items, nil
}

// ReplaceAll swaps the stored catalog for items in one transaction. Readers
// see either the old or the new catalog, never a mix.
func (r *CatalogRepository) ReplaceAll(ctx context.Context, items []catalog.Item) (rerr error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_items`); err != nil {
		return errors.Wrap(err, "clear catalog")
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"catalog_items"},
		catalogColumns,
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{int32(i), it.ID, it.Name, it.Price, int32(it.Stock)}, nil
		}),
	)
	if err != nil {
		return errors.Wrap(err, "copy catalog items")
	}
	if int(n) != len(items) {
		return errors.Errorf("copied %d of %d catalog items", n, len(items))
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
