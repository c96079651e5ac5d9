package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/order-agent/internal/domain/fulfillment"
	"github.com/xenking/order-agent/internal/domain/inventory"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func completeEvent() fulfillment.Event {
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	return fulfillment.Event{
		Kind:     fulfillment.EventStageChanged,
		Previous: fulfillment.StageShipping,
		At:       at,
		Run: fulfillment.Run{
			ID:    "run-1",
			Stage: fulfillment.StageComplete,
			Order: &fulfillment.ExtractedOrder{Item: "Sonic Screwdriver", Quantity: 3, Address: "221B Baker St"},
			Inventory: &inventory.Decision{
				Found: true, Available: true,
				ItemID: "1", ItemName: "Sonic Screwdriver",
				UnitPrice: decimal.RequireFromString("950"), StockRemaining: 12,
			},
			Pricing: &fulfillment.PricingDecision{
				ShippingFee: decimal.RequireFromString("10.49"),
				TotalCost:   decimal.RequireFromString("2860.49"),
			},
			Receipt: &fulfillment.ShipmentReceipt{TrackingID: "1ZABCDEF012345", ETA: "Tuesday, October 20, 2026"},
		},
	}
}

func TestEncodeEvent(t *testing.T) {
	var got map[string]any
	require.NoError(t, json.Unmarshal(EncodeEvent(completeEvent()), &got))

	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "stage_changed", got["kind"])
	assert.Equal(t, "COMPLETE", got["stage"])
	assert.Equal(t, "SHIPPING", got["previous"])
	assert.Equal(t, "2026-10-15T12:00:00Z", got["at"])

	order := got["order"].(map[string]any)
	assert.Equal(t, "Sonic Screwdriver", order["item"])
	assert.EqualValues(t, 3, order["quantity"])

	inv := got["inventory"].(map[string]any)
	assert.Equal(t, "950.00", inv["unit_price"])
	assert.EqualValues(t, 12, inv["stock_remaining"])

	pricing := got["pricing"].(map[string]any)
	assert.Equal(t, "2860.49", pricing["total_cost"])

	receipt := got["receipt"].(map[string]any)
	assert.Equal(t, "1ZABCDEF012345", receipt["tracking_id"])
	assert.NotContains(t, got, "error")
}

func TestEncodeEvent_Failure(t *testing.T) {
	ev := fulfillment.Event{
		Kind:     fulfillment.EventStageChanged,
		Previous: fulfillment.StageCheckingInventory,
		Run: fulfillment.Run{
			ID:        "run-2",
			Stage:     fulfillment.StageError,
			Order:     &fulfillment.ExtractedOrder{Item: "tardis", Quantity: 1, Address: "Gallifrey"},
			Inventory: &inventory.Decision{},
			Err:       &fulfillment.NotFoundError{Query: "tardis"},
		},
	}

	var got map[string]any
	require.NoError(t, json.Unmarshal(EncodeEvent(ev), &got))

	assert.Equal(t, "ERROR", got["stage"])
	assert.Equal(t, `item "tardis" is not in the catalog`, got["error"])
	inv := got["inventory"].(map[string]any)
	assert.Equal(t, false, inv["found"])
	assert.NotContains(t, inv, "unit_price")
	assert.NotContains(t, got, "pricing")
}

func TestKafkaPublisher_Observe(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)
	p.propagator = propagation.TraceContext{}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	p.Observe(ctx, completeEvent())
	p.Observe(ctx, fulfillment.Event{Kind: fulfillment.EventProgress, Message: "Label printed"})

	require.Len(t, w.msgs, 1, "progress events are not published")
	msg := w.msgs[0]
	assert.Equal(t, "run-1", string(msg.Key))

	headers := make(map[string]string)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "stage_changed", headers["event"])
	assert.Contains(t, headers["traceparent"], sc.TraceID().String())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_ErrorDoesNotPanic(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := NewKafkaPublisher(w)

	err := p.Publish(context.Background(), completeEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")

	assert.NotPanics(t, func() {
		p.Observe(context.Background(), completeEvent())
	})
}

func TestNewWriter_Async(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "order-runs", zap.NewNop())

	assert.True(t, w.Async)
	assert.Equal(t, "order-runs", w.Topic)
	assert.NotNil(t, w.Completion)
}

func TestLogFailedDeliveries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	complete := logFailedDeliveries(zap.New(core))

	msgs := []kafka.Message{{Key: []byte("run-1")}, {Key: []byte("run-2")}}
	complete(msgs, nil)
	assert.Zero(t, logs.Len())

	complete(msgs, errors.New("broker unreachable"))
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "Deliver run events", entry.Message)
	fields := entry.ContextMap()
	assert.EqualValues(t, 2, fields["messages"])
	assert.Equal(t, []any{"run-1", "run-2"}, fields["run_ids"])
	assert.Equal(t, "broker unreachable", fields["error"])
}
