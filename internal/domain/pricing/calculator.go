// Package pricing computes shipping fees and order totals.
package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-agent/internal/domain/fulfillment"
)

var _ fulfillment.Pricer = (*Calculator)(nil)

// Formula is a flat base fee plus a per-unit handling fee.
type Formula struct {
	BaseFee    decimal.Decimal
	PerUnitFee decimal.Decimal
}

// DefaultFormula charges 5.99 plus 1.50 per unit.
func DefaultFormula() Formula {
	return Formula{
		BaseFee:    decimal.RequireFromString("5.99"),
		PerUnitFee: decimal.RequireFromString("1.50"),
	}
}

// Calculator implements fulfillment.Pricer with a fixed Formula.
type Calculator struct {
	formula Formula
}

// NewCalculator returns a Calculator for f. Negative fees are rejected.
func NewCalculator(f Formula) (*Calculator, error) {
	if f.BaseFee.IsNegative() || f.PerUnitFee.IsNegative() {
		return nil, errors.Errorf("fees must not be negative: base %s, per unit %s", f.BaseFee, f.PerUnitFee)
	}
	return &Calculator{formula: f}, nil
}

// Price returns fee = base + perUnit*quantity and total = quantity*unitPrice + fee,
// both rounded to cents.
func (c *Calculator) Price(_ context.Context, quantity int, unitPrice decimal.Decimal) (fulfillment.PricingDecision, error) {
	if quantity <= 0 {
		return fulfillment.PricingDecision{}, errors.Errorf("quantity must be positive, got %d", quantity)
	}
	if unitPrice.IsNegative() {
		return fulfillment.PricingDecision{}, errors.Errorf("unit price must not be negative, got %s", unitPrice)
	}

	qty := decimal.NewFromInt(int64(quantity))
	fee := c.formula.BaseFee.Add(c.formula.PerUnitFee.Mul(qty))
	subtotal := unitPrice.Mul(qty)

	return fulfillment.PricingDecision{
		ShippingFee: fee.Round(2),
		TotalCost:   subtotal.Add(fee).Round(2),
	}, nil
}
