package fulfillment

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrBusy is returned when an operation arrives while a run is being
// processed.
var ErrBusy = errors.New("order run in progress")

// ValidationError indicates rejected user input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseError indicates the order text could not be turned into a complete
// order. Field names the missing or malformed part when known.
type ParseError struct {
	Field string
	Cause error
}

func (e *ParseError) Error() string {
	switch {
	case e.Cause != nil && e.Field != "":
		return fmt.Sprintf("could not understand the order %s: %v", e.Field, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("could not understand the order: %v", e.Cause)
	case e.Field != "":
		return fmt.Sprintf("could not understand the order: missing or invalid %s", e.Field)
	default:
		return "could not understand the order"
	}
}

func (e *ParseError) Unwrap() error { return e.Cause }

// NotFoundError indicates no catalog item matches the requested item.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item %q is not in the catalog", e.Query)
}

// InsufficientStockError indicates the matched item cannot cover the
// requested quantity.
type InsufficientStockError struct {
	Item      string
	Stock     int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d %q in stock, requested %d", e.Stock, e.Item, e.Requested)
}

// CalculationError indicates shipping and total calculation failed or
// produced an invalid result.
type CalculationError struct {
	Cause error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("shipping calculation failed: %v", e.Cause)
}

func (e *CalculationError) Unwrap() error { return e.Cause }

// ShipmentError indicates the shipment could not be completed.
type ShipmentError struct {
	Cause error
}

func (e *ShipmentError) Error() string {
	return fmt.Sprintf("shipment failed: %v", e.Cause)
}

func (e *ShipmentError) Unwrap() error { return e.Cause }

// TransitionError indicates an operation that the current stage does not
// allow.
type TransitionError struct {
	Op   string
	From Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while order is %s", e.Op, e.From)
}
