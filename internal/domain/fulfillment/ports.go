package fulfillment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-agent/internal/domain/inventory"
)

// Extractor turns free-form order text into a structured order.
type Extractor interface {
	Extract(ctx context.Context, text string) (ExtractedOrder, error)
}

// Resolver decides whether a requested item can be supplied.
type Resolver interface {
	Resolve(query string, quantity int) inventory.Decision
}

// Pricer computes the shipping fee and total for quantity units at unitPrice.
type Pricer interface {
	Price(ctx context.Context, quantity int, unitPrice decimal.Decimal) (PricingDecision, error)
}

// Shipper dispatches an order, reporting human-readable progress along the
// way. Reports must be made synchronously from within Ship.
type Shipper interface {
	Ship(ctx context.Context, req ShipmentRequest, progress ProgressReporter) (ShipmentReceipt, error)
}

// ProgressReporter receives shipment progress messages.
type ProgressReporter interface {
	Report(message string)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(message string)

func (f ProgressFunc) Report(message string) { f(message) }

// ApprovalPolicy decides which orders need a human decision before shipping.
type ApprovalPolicy struct {
	// Threshold is the largest quantity shipped without approval.
	Threshold int
}

// DefaultApprovalPolicy requires approval above three units.
func DefaultApprovalPolicy() ApprovalPolicy {
	return ApprovalPolicy{Threshold: 3}
}

// RequiresApproval reports whether an order of quantity units must wait for
// approval.
func (p ApprovalPolicy) RequiresApproval(quantity int) bool {
	return quantity > p.Threshold
}
