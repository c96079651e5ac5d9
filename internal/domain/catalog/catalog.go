package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrEmpty is returned when catalog text contains no item rows.
var ErrEmpty = errors.New("catalog data is empty")

// Item is a single purchasable catalog entry.
type Item struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Stock int
}

// Repository persists the catalog. The catalog is only ever replaced as a
// whole, so there is no per-item mutation.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	ReplaceAll(ctx context.Context, items []Item) error
}

// Template returns the catalog installed when nothing else has been loaded.
func Template() []Item {
	return []Item{
		{ID: "1", Name: "Sonic Screwdriver", Price: decimal.RequireFromString("950.00"), Stock: 15},
		{ID: "2", Name: "Flux Capacitor", Price: decimal.RequireFromString("4500.00"), Stock: 3},
		{ID: "3", Name: "Lightsaber", Price: decimal.RequireFromString("12000.00"), Stock: 0},
		{ID: "4", Name: "Quantum Processor", Price: decimal.RequireFromString("1299.99"), Stock: 50},
		{ID: "5", Name: "Holographic Display", Price: decimal.RequireFromString("499.50"), Stock: 12},
	}
}
