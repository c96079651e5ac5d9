// Package inventory resolves free-text item names against the catalog.
//
// Matching is deliberately forgiving: case, punctuation, a trailing plural
// "s" and partial words are all tolerated. Candidates are checked in catalog
// order and the first match wins; there is no similarity scoring.
package inventory

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-agent/internal/domain/catalog"
)

// Source provides the catalog snapshot to match against.
type Source interface {
	Items() []catalog.Item
}

// Decision is the outcome of resolving a query. ItemID, ItemName and
// StockRemaining are only meaningful when Found is true.
type Decision struct {
	Found          bool
	Available      bool
	UnitPrice      decimal.Decimal
	StockRemaining int
	ItemID         string
	ItemName       string
}

// Resolver matches item queries against a catalog Source.
type Resolver struct {
	source Source
}

// NewResolver creates a Resolver reading from source on every call.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve finds the first catalog item matching query and reports whether
// quantity units can be supplied. A query that matches nothing yields a
// Decision with Found and Available false and a zero price.
func (r *Resolver) Resolve(query string, quantity int) Decision {
	item, ok := Match(r.source.Items(), query)
	if !ok {
		return Decision{UnitPrice: decimal.Zero}
	}
	return Decision{
		Found:          true,
		Available:      item.Stock >= quantity,
		UnitPrice:      item.Price,
		StockRemaining: item.Stock,
		ItemID:         item.ID,
		ItemName:       item.Name,
	}
}

// Match returns the first item in items that matches query. A query with no
// word characters normalizes to "" and is contained in every name, so it
// matches the first item.
func Match(items []catalog.Item, query string) (catalog.Item, bool) {
	q := newTerm(query)
	for _, item := range items {
		if q.matches(newTerm(item.Name)) {
			return item, true
		}
	}
	return catalog.Item{}, false
}

// term is a name prepared for comparison.
type term struct {
	norm   string
	single string
	tokens []string
}

func newTerm(s string) term {
	norm := normalize(s)
	return term{
		norm:   norm,
		single: singular(norm),
		tokens: tokens(norm),
	}
}

// matches applies the rules in order: whole-string containment, then
// containment of the singular forms, then token-set containment.
func (q term) matches(item term) bool {
	if containsEither(item.norm, q.norm) {
		return true
	}
	if containsEither(item.single, q.single) {
		return true
	}
	return tokensContained(q.tokens, item.tokens)
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// tokensContained reports whether every token of the shorter list (the query
// on ties) equals, contains or is contained in some token of the other list.
func tokensContained(query, item []string) bool {
	src, dst := query, item
	if len(query) > len(item) {
		src, dst = item, query
	}
	if len(src) == 0 {
		return false
	}
	for _, s := range src {
		found := false
		for _, t := range dst {
			if s == t || strings.Contains(s, t) || strings.Contains(t, s) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
