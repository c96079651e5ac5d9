package fulfillment

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-agent/internal/domain/inventory"
)

// ExtractedOrder is the structured order read from free text.
type ExtractedOrder struct {
	Item     string
	Quantity int
	Address  string
}

// PricingDecision holds the shipping fee and grand total for an order.
type PricingDecision struct {
	ShippingFee decimal.Decimal
	TotalCost   decimal.Decimal
}

// ShipmentReceipt confirms a dispatched order.
type ShipmentReceipt struct {
	TrackingID string
	ETA        string
}

// ShipmentRequest is what the shipper needs to dispatch an order.
type ShipmentRequest struct {
	RunID    string
	Item     string
	ItemID   string
	Quantity int
	Address  string
}

// Run is one submission's journey through the pipeline. Artifacts are set
// once, in stage order, and a Run value handed out by the Agent is a snapshot
// that never changes afterwards.
type Run struct {
	ID        string
	Text      string
	Stage     Stage
	Order     *ExtractedOrder
	Inventory *inventory.Decision
	Pricing   *PricingDecision
	Receipt   *ShipmentReceipt
	Err       error
	StartedAt time.Time
	UpdatedAt time.Time
}

// ErrorMessage returns the failure message of a run in the error stage.
func (r Run) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func errArtifactSet(name string) error {
	return errors.Errorf("%s already recorded", name)
}

func (r *Run) setOrder(o ExtractedOrder) error {
	if r.Order != nil {
		return errArtifactSet("order")
	}
	r.Order = &o
	return nil
}

func (r *Run) setInventory(d inventory.Decision) error {
	if r.Inventory != nil {
		return errArtifactSet("inventory decision")
	}
	r.Inventory = &d
	return nil
}

func (r *Run) setPricing(p PricingDecision) error {
	if r.Pricing != nil {
		return errArtifactSet("pricing decision")
	}
	r.Pricing = &p
	return nil
}

func (r *Run) setReceipt(s ShipmentReceipt) error {
	if r.Receipt != nil {
		return errArtifactSet("shipment receipt")
	}
	r.Receipt = &s
	return nil
}

func (r *Run) setErr(err error) error {
	if r.Err != nil {
		return errArtifactSet("error")
	}
	r.Err = err
	return nil
}
