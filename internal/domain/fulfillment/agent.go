// Package fulfillment drives a free-text order through extraction, inventory,
// pricing, optional approval and shipment.
//
// The Agent owns exactly one current Run. Stages run sequentially on the
// caller's goroutine, one collaborator call per stage; any failure moves the
// run to StageError and only a reset or a new submission leaves it.
package fulfillment

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-agent/internal/domain/inventory"
)

const instrumentationName = "github.com/xenking/order-agent/internal/domain/fulfillment"

// Option configures an Agent.
type Option func(*Agent)

// WithApprovalPolicy overrides the default approval policy.
func WithApprovalPolicy(p ApprovalPolicy) Option {
	return func(a *Agent) { a.policy = p }
}

// WithObserver adds observers notified of every run event.
func WithObserver(obs ...Observer) Option {
	return func(a *Agent) { a.observers = append(a.observers, obs...) }
}

// WithTracerProvider sets the tracer provider used for stage spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Agent) { a.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for run metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *Agent) { a.meterProvider = mp }
}

// Agent orchestrates order runs.
type Agent struct {
	extractor Extractor
	resolver  Resolver
	pricer    Pricer
	shipper   Shipper
	policy    ApprovalPolicy
	observers Observers

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	runs           metric.Int64Counter
	stageDuration  metric.Float64Histogram

	busy atomic.Bool

	mu  sync.Mutex
	run *Run // replaced on every change, never mutated in place
}

// NewAgent creates an Agent with an empty run in StageInitial.
func NewAgent(
	extractor Extractor,
	resolver Resolver,
	pricer Pricer,
	shipper Shipper,
	opts ...Option,
) (*Agent, error) {
	a := &Agent{
		extractor:      extractor,
		resolver:       resolver,
		pricer:         pricer,
		shipper:        shipper,
		policy:         DefaultApprovalPolicy(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.tracer = a.tracerProvider.Tracer(instrumentationName)
	meter := a.meterProvider.Meter(instrumentationName)

	var err error
	a.runs, err = meter.Int64Counter("order_agent.runs",
		metric.WithDescription("Order runs that reached a resting stage"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create runs counter")
	}
	a.stageDuration, err = meter.Float64Histogram("order_agent.stage.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent in collaborator calls per stage"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create stage duration histogram")
	}

	a.run = newRun("")
	return a, nil
}

func newRun(text string) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		Text:      text,
		Stage:     StageInitial,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Current returns a snapshot of the current run.
func (a *Agent) Current() Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.run
}

// Policy returns the approval policy in effect.
func (a *Agent) Policy() ApprovalPolicy {
	return a.policy
}

// Busy reports whether a submission or approval is being processed.
func (a *Agent) Busy() bool {
	return a.busy.Load()
}

// Submit starts a new run for text, discarding the previous run, including one
// parked at StageAwaitingApproval. It returns
// once the run parks at StageAwaitingApproval or finishes. Stage failures are
// recorded on the run rather than returned; the error is reserved for
// rejected calls (ValidationError, ErrBusy, TransitionError).
func (a *Agent) Submit(ctx context.Context, text string) (Run, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return a.Current(), &ValidationError{Field: "order text", Reason: "must not be empty"}
	}
	if !a.busy.CompareAndSwap(false, true) {
		return a.Current(), ErrBusy
	}
	defer a.busy.Store(false)

	// Stages run to completion once started.
	ctx = context.WithoutCancel(ctx)
	ctx, span := a.tracer.Start(ctx, "fulfillment.Submit")
	defer span.End()

	run := newRun(text)
	span.SetAttributes(attribute.String("order.run_id", run.ID))
	a.replace(ctx, run)
	a.process(ctx, text)

	return a.Current(), nil
}

// Approve ships an order waiting for approval using its recorded order and
// pricing.
func (a *Agent) Approve(ctx context.Context) (Run, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return a.Current(), ErrBusy
	}
	defer a.busy.Store(false)

	if cur := a.Current(); cur.Stage != StageAwaitingApproval {
		return cur, &TransitionError{Op: "approve", From: cur.Stage}
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := a.tracer.Start(ctx, "fulfillment.Approve")
	defer span.End()

	if err := a.advance(ctx, StageShipping, nil); err != nil {
		return a.Current(), err
	}
	a.ship(ctx)

	return a.Current(), nil
}

// Cancel abandons an order waiting for approval and returns to StageInitial.
func (a *Agent) Cancel(ctx context.Context) (Run, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return a.Current(), ErrBusy
	}
	defer a.busy.Store(false)

	if cur := a.Current(); !cur.Stage.CanTransitionTo(StageInitial) {
		return cur, &TransitionError{Op: "cancel", From: cur.Stage}
	}
	a.replace(ctx, newRun(""))
	return a.Current(), nil
}

// Reset discards the current run from any stage.
func (a *Agent) Reset(ctx context.Context) (Run, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return a.Current(), ErrBusy
	}
	defer a.busy.Store(false)

	a.replace(ctx, newRun(""))
	return a.Current(), nil
}

func (a *Agent) process(ctx context.Context, text string) {
	if err := a.advance(ctx, StageExtracting, nil); err != nil {
		a.fail(ctx, err)
		return
	}

	order, err := a.extract(ctx, text)
	if err != nil {
		a.fail(ctx, err)
		return
	}
	if err := a.advance(ctx, StageCheckingInventory, func(r *Run) error {
		return r.setOrder(order)
	}); err != nil {
		a.fail(ctx, err)
		return
	}

	decision, err := a.checkInventory(ctx, order)
	if err != nil {
		a.fail(ctx, err)
		return
	}
	if err := a.advance(ctx, StageCalculatingShipping, func(r *Run) error {
		return r.setInventory(decision)
	}); err != nil {
		a.fail(ctx, err)
		return
	}

	pricing, err := a.price(ctx, order.Quantity, decision)
	if err != nil {
		a.fail(ctx, err)
		return
	}

	next := StageShipping
	if a.policy.RequiresApproval(order.Quantity) {
		next = StageAwaitingApproval
	}
	if err := a.advance(ctx, next, func(r *Run) error {
		return r.setPricing(pricing)
	}); err != nil {
		a.fail(ctx, err)
		return
	}
	if next == StageShipping {
		a.ship(ctx)
	}
}

func (a *Agent) extract(ctx context.Context, text string) (ExtractedOrder, error) {
	var order ExtractedOrder
	err := a.instrument(ctx, StageExtracting, func(ctx context.Context) error {
		o, err := a.extractor.Extract(ctx, text)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				return err
			}
			return &ParseError{Cause: err}
		}
		if err := validateOrder(o); err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

func validateOrder(o ExtractedOrder) error {
	switch {
	case strings.TrimSpace(o.Item) == "":
		return &ParseError{Field: "item"}
	case o.Quantity <= 0:
		return &ParseError{Field: "quantity"}
	case strings.TrimSpace(o.Address) == "":
		return &ParseError{Field: "address"}
	}
	return nil
}

func (a *Agent) checkInventory(ctx context.Context, order ExtractedOrder) (d inventory.Decision, err error) {
	err = a.instrument(ctx, StageCheckingInventory, func(ctx context.Context) error {
		d = a.resolver.Resolve(order.Item, order.Quantity)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("inventory.query", order.Item),
			attribute.Bool("inventory.found", d.Found),
			attribute.Bool("inventory.available", d.Available),
		)
		switch {
		case !d.Found:
			return &NotFoundError{Query: order.Item}
		case !d.Available:
			return &InsufficientStockError{
				Item:      d.ItemName,
				Stock:     d.StockRemaining,
				Requested: order.Quantity,
			}
		}
		return nil
	})
	return d, err
}

func (a *Agent) price(ctx context.Context, quantity int, d inventory.Decision) (PricingDecision, error) {
	var pricing PricingDecision
	err := a.instrument(ctx, StageCalculatingShipping, func(ctx context.Context) error {
		p, err := a.pricer.Price(ctx, quantity, d.UnitPrice)
		if err != nil {
			var ce *CalculationError
			if errors.As(err, &ce) {
				return err
			}
			return &CalculationError{Cause: err}
		}
		if p.ShippingFee.IsNegative() || p.TotalCost.IsNegative() {
			return &CalculationError{
				Cause: errors.Errorf("negative amount: fee %s, total %s", p.ShippingFee, p.TotalCost),
			}
		}
		pricing = p
		return nil
	})
	return pricing, err
}

func (a *Agent) ship(ctx context.Context) {
	run := a.Current()
	req := ShipmentRequest{
		RunID:    run.ID,
		Item:     run.Order.Item,
		ItemID:   run.Inventory.ItemID,
		Quantity: run.Order.Quantity,
		Address:  run.Order.Address,
	}

	var receipt ShipmentReceipt
	err := a.instrument(ctx, StageShipping, func(ctx context.Context) error {
		progress := ProgressFunc(func(message string) {
			a.emit(ctx, Event{Kind: EventProgress, Message: message, Run: a.Current()})
		})
		r, err := a.shipper.Ship(ctx, req, progress)
		if err != nil {
			var se *ShipmentError
			if errors.As(err, &se) {
				return err
			}
			return &ShipmentError{Cause: err}
		}
		if r.TrackingID == "" {
			return &ShipmentError{Cause: errors.New("carrier returned no tracking id")}
		}
		receipt = r
		return nil
	})
	if err != nil {
		a.fail(ctx, err)
		return
	}
	if err := a.advance(ctx, StageComplete, func(r *Run) error {
		return r.setReceipt(receipt)
	}); err != nil {
		a.fail(ctx, err)
	}
}

// advance moves the run to stage to, applying apply to a copy of the run
// first. The run is left untouched if the move is not allowed or apply fails.
func (a *Agent) advance(ctx context.Context, to Stage, apply func(*Run) error) error {
	a.mu.Lock()
	from := a.run.Stage
	if !from.CanTransitionTo(to) {
		a.mu.Unlock()
		return &TransitionError{Op: "move to " + to.String(), From: from}
	}
	next := *a.run
	if apply != nil {
		if err := apply(&next); err != nil {
			a.mu.Unlock()
			return err
		}
	}
	next.Stage = to
	next.UpdatedAt = time.Now()
	a.run = &next
	a.mu.Unlock()

	a.record(ctx, to)
	a.emit(ctx, Event{Kind: EventStageChanged, Previous: from, Run: next})
	return nil
}

func (a *Agent) replace(ctx context.Context, run *Run) {
	a.mu.Lock()
	from := a.run.Stage
	a.run = run
	a.mu.Unlock()

	a.emit(ctx, Event{Kind: EventStageChanged, Previous: from, Run: *run})
}

func (a *Agent) fail(ctx context.Context, cause error) {
	err := a.advance(ctx, StageError, func(r *Run) error {
		return r.setErr(cause)
	})
	if err != nil {
		zctx.From(ctx).Error("Record run failure",
			zap.Error(err),
			zap.NamedError("cause", cause),
		)
	}
}

func (a *Agent) record(ctx context.Context, stage Stage) {
	if stage.Terminal() || stage == StageAwaitingApproval {
		a.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage.String())))
	}
}

func (a *Agent) emit(ctx context.Context, ev Event) {
	ev.At = time.Now()
	a.observers.Observe(ctx, ev)
}

// instrument wraps one collaborator call in a span and records its duration.
func (a *Agent) instrument(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, span := a.tracer.Start(ctx, "fulfillment."+strings.ToLower(stage.String()))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	a.stageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", stage.String())),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
