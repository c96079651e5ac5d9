// Package codec renders domain values as JSON with jx.
package codec

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/order-agent/internal/domain/catalog"
	"github.com/xenking/order-agent/internal/domain/fulfillment"
)

// Money amounts are rendered as strings with two decimals so that clients do
// not round through floating point.
const moneyPlaces = 2

// RunFields writes the fields of r into the currently open object. Artifacts
// that have not been recorded are omitted.
func RunFields(e *jx.Encoder, r fulfillment.Run) {
	e.FieldStart("run_id")
	e.Str(r.ID)
	e.FieldStart("stage")
	e.Str(r.Stage.String())
	if r.Text != "" {
		e.FieldStart("text")
		e.Str(r.Text)
	}

	if o := r.Order; o != nil {
		e.FieldStart("order")
		e.ObjStart()
		e.FieldStart("item")
		e.Str(o.Item)
		e.FieldStart("quantity")
		e.Int(o.Quantity)
		e.FieldStart("address")
		e.Str(o.Address)
		e.ObjEnd()
	}
	if d := r.Inventory; d != nil {
		e.FieldStart("inventory")
		e.ObjStart()
		e.FieldStart("found")
		e.Bool(d.Found)
		e.FieldStart("available")
		e.Bool(d.Available)
		if d.Found {
			e.FieldStart("item_id")
			e.Str(d.ItemID)
			e.FieldStart("item_name")
			e.Str(d.ItemName)
			e.FieldStart("unit_price")
			e.Str(d.UnitPrice.StringFixed(moneyPlaces))
			e.FieldStart("stock_remaining")
			e.Int(d.StockRemaining)
		}
		e.ObjEnd()
	}
	if p := r.Pricing; p != nil {
		e.FieldStart("pricing")
		e.ObjStart()
		e.FieldStart("shipping_fee")
		e.Str(p.ShippingFee.StringFixed(moneyPlaces))
		e.FieldStart("total_cost")
		e.Str(p.TotalCost.StringFixed(moneyPlaces))
		e.ObjEnd()
	}
	if rc := r.Receipt; rc != nil {
		e.FieldStart("receipt")
		e.ObjStart()
		e.FieldStart("tracking_id")
		e.Str(rc.TrackingID)
		e.FieldStart("eta")
		e.Str(rc.ETA)
		e.ObjEnd()
	}
	if r.Err != nil {
		e.FieldStart("error")
		e.Str(r.ErrorMessage())
	}

	Time(e, "started_at", r.StartedAt)
	Time(e, "updated_at", r.UpdatedAt)
}

// Time writes a timestamp field in RFC 3339, skipping the zero time.
func Time(e *jx.Encoder, name string, t time.Time) {
	if t.IsZero() {
		return
	}
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

// Items writes items as an array.
func Items(e *jx.Encoder, items []catalog.Item) {
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		e.Str(it.Price.String())
		e.FieldStart("stock")
		e.Int(it.Stock)
		e.ObjEnd()
	}
	e.ArrEnd()
}
