package catalog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// RowError describes a single rejected catalog line. Line is 1-based.
type RowError struct {
	Line   int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// RowErrors collects every rejected line of one ingestion. Its message is the
// message of the first rejected line.
type RowErrors []*RowError

func (e RowErrors) Error() string {
	if len(e) == 0 {
		return "no row errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}

// Unwrap exposes each row error to errors.Is and errors.As.
func (e RowErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, re := range e {
		errs[i] = re
	}
	return errs
}

const (
	reasonFormat = `format must be "Name, Price, Stock"`
	reasonName   = "item name is required"
	reasonNumber = "invalid number format for price or stock"
)

// Parse reads catalog text, one "Name, Price, Stock" row per line. Blank lines
// are skipped. The last two comma separated fields are price and stock, so
// names may contain commas. Non numeric characters are stripped from price
// and stock before parsing, so "$950.00" is accepted. Item IDs are the 1-based
// line numbers.
//
// Parsing is all-or-nothing: if any row is rejected, no items are returned
// and the error is a RowErrors listing every rejected row.
func Parse(r io.Reader) ([]Item, error) {
	var (
		items []Item
		rows  RowErrors
		seen  bool
		line  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		seen = true

		item, rowErr := parseRow(line, text)
		if rowErr != nil {
			rows = append(rows, rowErr)
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}

	if !seen {
		return nil, ErrEmpty
	}
	if len(rows) > 0 {
		return nil, rows
	}
	return items, nil
}

// ParseString is Parse over an in-memory string.
func ParseString(text string) ([]Item, error) {
	return Parse(strings.NewReader(text))
}

func parseRow(line int, text string) (Item, *RowError) {
	parts := strings.Split(text, ",")
	if len(parts) < 3 {
		return Item{}, &RowError{Line: line, Reason: reasonFormat}
	}

	n := len(parts)
	stockRaw := strings.TrimSpace(parts[n-1])
	priceRaw := strings.TrimSpace(parts[n-2])
	name := strings.TrimSpace(strings.Join(parts[:n-2], ","))
	if name == "" {
		return Item{}, &RowError{Line: line, Reason: reasonName}
	}

	price, err := decimal.NewFromString(keep(priceRaw, "0123456789."))
	if err != nil {
		return Item{}, &RowError{Line: line, Reason: reasonNumber}
	}
	stock, err := strconv.Atoi(keep(stockRaw, "0123456789"))
	if err != nil {
		return Item{}, &RowError{Line: line, Reason: reasonNumber}
	}

	return Item{
		ID:    strconv.Itoa(line),
		Name:  name,
		Price: price,
		Stock: stock,
	}, nil
}

// keep drops every byte of s not present in allowed.
func keep(s, allowed string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := range len(s) {
		if strings.IndexByte(allowed, s[i]) >= 0 {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
