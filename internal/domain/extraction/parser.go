// Package extraction reads structured orders out of free-form text such as
// "need 3 sonic screwdrivers to 221B Baker Street".
package extraction

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/order-agent/internal/domain/fulfillment"
)

var _ fulfillment.Extractor = (*Parser)(nil)

// itemAndAddress follows the quantity: an optional "x" or "units of", the
// item, an optional shipping verb, then "to" and the address.
const itemAndAddress = `\s*(?:(?:x|units?\s+of|pieces?\s+of|of)\s+)?(.+?)\s+(?:(?:shipped|delivered|sent|ship|deliver|send|mail)\s+)?(?:to|address:?)\s+(.+)$`

// Order shapes tried in turn. Group 1 is the quantity, group 2 the item and
// group 3 the address. Digit quantities win over number words so that "a" in
// "A customer wants 4 lightsabers" is not read as a quantity.
var (
	digitOrder = regexp.MustCompile(`(?i)^(?:.*?\s)?(\d+)` + itemAndAddress)
	wordOrder  = regexp.MustCompile(`(?i)^(?:.*?\s)?(` + numberWordAlternation() + `)\s` + itemAndAddress)

	anyQuantity   = regexp.MustCompile(`(?i)(?:^|\s)(?:\d+|` + numberWordAlternation() + `)\s`)
	addressMarker = regexp.MustCompile(`(?i)\s(?:to|address:?)\s+\S`)
)

// numberWords maps spelled-out quantities. Longer phrases come first in the
// alternation so "a dozen" is preferred over "a".
var numberWords = []struct {
	word  string
	value int
}{
	{"a dozen", 12}, {"dozen", 12},
	{"eleven", 11}, {"twelve", 12}, {"three", 3}, {"seven", 7}, {"eight", 8},
	{"four", 4}, {"five", 5}, {"nine", 9}, {"one", 1}, {"two", 2}, {"six", 6}, {"ten", 10},
	{"an", 1}, {"a", 1},
}

func numberWordAlternation() string {
	words := make([]string, len(numberWords))
	for i, w := range numberWords {
		words[i] = strings.ReplaceAll(w.word, " ", `\s+`)
	}
	return strings.Join(words, "|")
}

func wordValue(s string) (int, bool) {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	for _, w := range numberWords {
		if w.word == s {
			return w.value, true
		}
	}
	return 0, false
}

// Parser is a rule based fulfillment.Extractor. It needs no external service
// and recognizes "<quantity> <item> [shipped|delivered|sent] to <address>"
// anywhere in the text.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Extract returns the order found in text or a *fulfillment.ParseError
// naming the part that could not be read.
func (p *Parser) Extract(_ context.Context, text string) (fulfillment.ExtractedOrder, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return fulfillment.ExtractedOrder{}, &fulfillment.ParseError{Field: "order text"}
	}

	if m := digitOrder.FindStringSubmatch(text); m != nil {
		qty, err := strconv.Atoi(m[1])
		if err != nil {
			return fulfillment.ExtractedOrder{}, &fulfillment.ParseError{Field: "quantity", Cause: err}
		}
		return build(qty, m[2], m[3])
	}
	if m := wordOrder.FindStringSubmatch(text); m != nil {
		qty, ok := wordValue(m[1])
		if !ok {
			return fulfillment.ExtractedOrder{}, &fulfillment.ParseError{
				Field: "quantity",
				Cause: errors.Errorf("unknown quantity %q", m[1]),
			}
		}
		return build(qty, m[2], m[3])
	}

	return fulfillment.ExtractedOrder{}, diagnose(text)
}

func build(qty int, item, address string) (fulfillment.ExtractedOrder, error) {
	item = strings.TrimRight(strings.TrimSpace(item), ",;:")
	address = strings.TrimRight(strings.TrimSpace(address), ".!?")

	switch {
	case qty <= 0:
		return fulfillment.ExtractedOrder{}, &fulfillment.ParseError{Field: "quantity"}
	case item == "":
		return fulfillment.ExtractedOrder{}, &fulfillment.ParseError{Field: "item"}
	case address == "":
		return fulfillment.ExtractedOrder{}, &fulfillment.ParseError{Field: "address"}
	}

	return fulfillment.ExtractedOrder{
		Item:     item,
		Quantity: qty,
		Address:  address,
	}, nil
}

// diagnose names the first missing part of an order that matched no shape.
func diagnose(text string) error {
	switch {
	case !anyQuantity.MatchString(text + " "):
		return &fulfillment.ParseError{Field: "quantity"}
	case !addressMarker.MatchString(text):
		return &fulfillment.ParseError{Field: "address"}
	default:
		return &fulfillment.ParseError{Field: "item"}
	}
}
