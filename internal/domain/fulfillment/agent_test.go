package fulfillment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-agent/internal/domain/catalog"
	"github.com/xenking/order-agent/internal/domain/inventory"
)

// --- Mock implementations ---

type mockExtractor struct {
	order ExtractedOrder
	err   error
	calls int
}

func (m *mockExtractor) Extract(_ context.Context, _ string) (ExtractedOrder, error) {
	m.calls++
	return m.order, m.err
}

// formulaPricer applies fee = 5.99 + 1.50 x quantity.
type formulaPricer struct {
	override *PricingDecision
	err      error
}

func (m *formulaPricer) Price(_ context.Context, quantity int, unitPrice decimal.Decimal) (PricingDecision, error) {
	if m.err != nil {
		return PricingDecision{}, m.err
	}
	if m.override != nil {
		return *m.override, nil
	}
	qty := decimal.NewFromInt(int64(quantity))
	fee := d("5.99").Add(d("1.50").Mul(qty))
	return PricingDecision{
		ShippingFee: fee.Round(2),
		TotalCost:   unitPrice.Mul(qty).Add(fee).Round(2),
	}, nil
}

type mockShipper struct {
	messages []string
	receipt  ShipmentReceipt
	err      error
	requests []ShipmentRequest

	started chan struct{}
	release chan struct{}
}

func (m *mockShipper) Ship(_ context.Context, req ShipmentRequest, progress ProgressReporter) (ShipmentReceipt, error) {
	m.requests = append(m.requests, req)
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	for _, msg := range m.messages {
		progress.Report(msg)
	}
	if m.err != nil {
		return ShipmentReceipt{}, m.err
	}
	return m.receipt, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) Observe(_ context.Context, ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) stages() []Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Stage
	for _, ev := range o.events {
		if ev.Kind == EventStageChanged {
			out = append(out, ev.Run.Stage)
		}
	}
	return out
}

func (o *recordingObserver) progress() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, ev := range o.events {
		if ev.Kind == EventProgress {
			out = append(out, ev.Message)
		}
	}
	return out
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testCatalog() *catalog.Store {
	return catalog.NewStore([]catalog.Item{
		{ID: "1", Name: "Sonic Screwdriver", Price: d("950.00"), Stock: 15},
		{ID: "2", Name: "Flux Capacitor", Price: d("4500.00"), Stock: 3},
		{ID: "3", Name: "Lightsaber", Price: d("12000.00"), Stock: 0},
	})
}

type fixture struct {
	agent     *Agent
	extractor *mockExtractor
	pricer    *formulaPricer
	shipper   *mockShipper
	observer  *recordingObserver
}

func newFixture(t *testing.T, order ExtractedOrder, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		extractor: &mockExtractor{order: order},
		pricer:    &formulaPricer{},
		shipper: &mockShipper{
			messages: []string{"step one", "step two", "step three"},
			receipt:  ShipmentReceipt{TrackingID: "1ZTEST", ETA: "Friday, January 1, 2027"},
		},
		observer: &recordingObserver{},
	}

	opts = append([]Option{WithObserver(f.observer)}, opts...)
	agent, err := NewAgent(f.extractor, inventory.NewResolver(testCatalog()), f.pricer, f.shipper, opts...)
	require.NoError(t, err)
	f.agent = agent
	return f
}

// --- Tests ---

func TestSubmit_ShipsSmallOrder(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "sonic screwdrivers", Quantity: 3, Address: "X"})

	run, err := f.agent.Submit(context.Background(), "need 3 sonic screwdrivers to X")
	require.NoError(t, err)

	assert.Equal(t, StageComplete, run.Stage)
	assert.Equal(t, "need 3 sonic screwdrivers to X", run.Text)
	require.NotNil(t, run.Order)
	require.NotNil(t, run.Inventory)
	require.NotNil(t, run.Pricing)
	require.NotNil(t, run.Receipt)
	assert.NoError(t, run.Err)
	assert.Empty(t, run.ErrorMessage())

	assert.True(t, run.Inventory.Available)
	assert.Equal(t, "Sonic Screwdriver", run.Inventory.ItemName)
	assert.True(t, d("950.00").Equal(run.Inventory.UnitPrice))
	assert.True(t, d("10.49").Equal(run.Pricing.ShippingFee), "fee: %s", run.Pricing.ShippingFee)
	assert.True(t, d("2860.49").Equal(run.Pricing.TotalCost), "total: %s", run.Pricing.TotalCost)
	assert.Equal(t, "1ZTEST", run.Receipt.TrackingID)

	assert.Equal(t, []Stage{
		StageInitial,
		StageExtracting,
		StageCheckingInventory,
		StageCalculatingShipping,
		StageShipping,
		StageComplete,
	}, f.observer.stages())
	assert.Equal(t, []string{"step one", "step two", "step three"}, f.observer.progress())

	require.Len(t, f.shipper.requests, 1)
	req := f.shipper.requests[0]
	assert.Equal(t, run.ID, req.RunID)
	assert.Equal(t, "1", req.ItemID)
	assert.Equal(t, 3, req.Quantity)
	assert.Equal(t, "X", req.Address)
}

func TestSubmit_ProgressDeliveredWhileShipping(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "flux capacitor", Quantity: 1, Address: "Hill Valley"})

	_, err := f.agent.Submit(context.Background(), "one flux capacitor to Hill Valley")
	require.NoError(t, err)

	for _, ev := range f.observer.events {
		if ev.Kind == EventProgress {
			assert.Equal(t, StageShipping, ev.Run.Stage)
		}
	}
}

func TestSubmit_InsufficientStock(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "sonic screwdriver", Quantity: 20, Address: "X"})

	run, err := f.agent.Submit(context.Background(), "need 20 sonic screwdrivers to X")
	require.NoError(t, err)

	assert.Equal(t, StageError, run.Stage)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, run.Err, &stockErr)
	assert.Equal(t, 15, stockErr.Stock)
	assert.Equal(t, 20, stockErr.Requested)
	assert.Equal(t, "Sonic Screwdriver", stockErr.Item)
	assert.Contains(t, run.ErrorMessage(), "15")
	assert.Contains(t, run.ErrorMessage(), "20")

	assert.NotNil(t, run.Order)
	assert.Nil(t, run.Inventory)
	assert.Nil(t, run.Pricing)
	assert.Nil(t, run.Receipt)
	assert.Empty(t, f.shipper.requests)
}

func TestSubmit_OutOfStockPlural(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "lightsabers", Quantity: 1, Address: "Tatooine"})

	run, err := f.agent.Submit(context.Background(), "a lightsaber to Tatooine")
	require.NoError(t, err)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, run.Err, &stockErr)
	assert.Equal(t, 0, stockErr.Stock)
	assert.Equal(t, "Lightsaber", stockErr.Item)
}

func TestSubmit_NotFound(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "tardis", Quantity: 1, Address: "Gallifrey"})

	run, err := f.agent.Submit(context.Background(), "one tardis to Gallifrey")
	require.NoError(t, err)

	assert.Equal(t, StageError, run.Stage)
	var nfErr *NotFoundError
	require.ErrorAs(t, run.Err, &nfErr)
	assert.Equal(t, "tardis", nfErr.Query)
	assert.Contains(t, run.ErrorMessage(), "tardis")
}

func TestSubmit_ExtractionFailures(t *testing.T) {
	tests := []struct {
		name  string
		order ExtractedOrder
		err   error
		field string
	}{
		{name: "collaborator error", err: errors.New("model unavailable")},
		{name: "missing item", order: ExtractedOrder{Quantity: 1, Address: "X"}, field: "item"},
		{name: "zero quantity", order: ExtractedOrder{Item: "flux", Address: "X"}, field: "quantity"},
		{name: "negative quantity", order: ExtractedOrder{Item: "flux", Quantity: -2, Address: "X"}, field: "quantity"},
		{name: "missing address", order: ExtractedOrder{Item: "flux", Quantity: 1, Address: "  "}, field: "address"},
		{name: "typed parse error", err: &ParseError{Field: "quantity"}, field: "quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.order)
			f.extractor.err = tt.err

			run, err := f.agent.Submit(context.Background(), "something")
			require.NoError(t, err)

			assert.Equal(t, StageError, run.Stage)
			var pe *ParseError
			require.ErrorAs(t, run.Err, &pe)
			assert.Equal(t, tt.field, pe.Field)
			assert.Nil(t, run.Order)
			assert.Equal(t, []Stage{StageInitial, StageExtracting, StageError}, f.observer.stages())
		})
	}
}

func TestSubmit_PricingFailures(t *testing.T) {
	tests := []struct {
		name   string
		pricer *formulaPricer
	}{
		{name: "collaborator error", pricer: &formulaPricer{err: errors.New("rate service down")}},
		{name: "negative total", pricer: &formulaPricer{override: &PricingDecision{
			ShippingFee: d("5.99"),
			TotalCost:   d("-1"),
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ExtractedOrder{Item: "flux capacitor", Quantity: 1, Address: "X"})
			f.agent.pricer = tt.pricer

			run, err := f.agent.Submit(context.Background(), "one flux capacitor to X")
			require.NoError(t, err)

			assert.Equal(t, StageError, run.Stage)
			var ce *CalculationError
			require.ErrorAs(t, run.Err, &ce)
			assert.NotNil(t, run.Inventory)
			assert.Nil(t, run.Pricing)
		})
	}
}

func TestSubmit_ShipmentFailure(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "flux capacitor", Quantity: 2, Address: "X"})
	f.shipper.err = errors.New("carrier rejected label")

	run, err := f.agent.Submit(context.Background(), "two flux capacitors to X")
	require.NoError(t, err)

	assert.Equal(t, StageError, run.Stage)
	var se *ShipmentError
	require.ErrorAs(t, run.Err, &se)
	assert.Contains(t, run.ErrorMessage(), "carrier rejected label")
	assert.NotNil(t, run.Pricing)
	assert.Nil(t, run.Receipt)
	assert.Len(t, f.observer.progress(), 3)
}

func TestSubmit_MissingTrackingID(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "flux capacitor", Quantity: 1, Address: "X"})
	f.shipper.receipt = ShipmentReceipt{ETA: "soon"}

	run, err := f.agent.Submit(context.Background(), "one flux capacitor to X")
	require.NoError(t, err)

	var se *ShipmentError
	require.ErrorAs(t, run.Err, &se)
}

func TestSubmit_EmptyText(t *testing.T) {
	f := newFixture(t, ExtractedOrder{})
	before := f.agent.Current()

	run, err := f.agent.Submit(context.Background(), "   ")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, before, run)
	assert.Equal(t, 0, f.extractor.calls)
	assert.Empty(t, f.observer.events)
}

func TestApproval_LargeOrderWaits(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "sonic screwdriver", Quantity: 4, Address: "X"})

	run, err := f.agent.Submit(context.Background(), "4 sonic screwdrivers to X")
	require.NoError(t, err)

	assert.Equal(t, StageAwaitingApproval, run.Stage)
	require.NotNil(t, run.Pricing)
	assert.Nil(t, run.Receipt)
	assert.Empty(t, f.shipper.requests)

	approved, err := f.agent.Approve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageComplete, approved.Stage)
	assert.Equal(t, run.ID, approved.ID)
	assert.Same(t, run.Order, approved.Order)
	assert.Same(t, run.Pricing, approved.Pricing)
	require.NotNil(t, approved.Receipt)

	// The earlier snapshot is unaffected by later progress.
	assert.Equal(t, StageAwaitingApproval, run.Stage)
	assert.Nil(t, run.Receipt)
}

func TestApproval_Cancel(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "sonic screwdriver", Quantity: 10, Address: "X"})

	_, err := f.agent.Submit(context.Background(), "10 sonic screwdrivers to X")
	require.NoError(t, err)

	run, err := f.agent.Cancel(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageInitial, run.Stage)
	assert.Nil(t, run.Order)
	assert.Nil(t, run.Inventory)
	assert.Nil(t, run.Pricing)
	assert.Nil(t, run.Receipt)
	assert.NoError(t, run.Err)
	assert.Empty(t, f.shipper.requests)
}

func TestApproval_CustomThreshold(t *testing.T) {
	f := newFixture(t,
		ExtractedOrder{Item: "sonic screwdriver", Quantity: 2, Address: "X"},
		WithApprovalPolicy(ApprovalPolicy{Threshold: 1}),
	)

	run, err := f.agent.Submit(context.Background(), "2 sonic screwdrivers to X")
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingApproval, run.Stage)
	assert.Equal(t, 1, f.agent.Policy().Threshold)
}

func TestApprovalPolicy(t *testing.T) {
	p := DefaultApprovalPolicy()
	assert.False(t, p.RequiresApproval(1))
	assert.False(t, p.RequiresApproval(3))
	assert.True(t, p.RequiresApproval(4))
}

func TestOperations_RejectedOutsideTheirStage(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "sonic screwdriver", Quantity: 4, Address: "X"})
	ctx := context.Background()

	_, err := f.agent.Approve(ctx)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StageInitial, te.From)

	_, err = f.agent.Cancel(ctx)
	require.ErrorAs(t, err, &te)

	_, err = f.agent.Submit(ctx, "4 sonic screwdrivers to X")
	require.NoError(t, err)
	_, err = f.agent.Approve(ctx)
	require.NoError(t, err)

	_, err = f.agent.Approve(ctx)
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StageComplete, te.From)
}

func TestSubmit_ReplacesRunAwaitingApproval(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "sonic screwdriver", Quantity: 4, Address: "X"})
	ctx := context.Background()

	parked, err := f.agent.Submit(ctx, "4 sonic screwdrivers to X")
	require.NoError(t, err)
	require.Equal(t, StageAwaitingApproval, parked.Stage)

	f.extractor.order = ExtractedOrder{Item: "sonic screwdriver", Quantity: 2, Address: "Y"}
	run, err := f.agent.Submit(ctx, "2 sonic screwdrivers to Y")
	require.NoError(t, err)

	assert.NotEqual(t, parked.ID, run.ID)
	assert.Equal(t, StageComplete, run.Stage)
	assert.Equal(t, "2 sonic screwdrivers to Y", run.Text)
	require.NotNil(t, run.Order)
	assert.Equal(t, 2, run.Order.Quantity)
	assert.Equal(t, "Y", run.Order.Address)
	require.NotNil(t, run.Pricing)
	assert.True(t, d("1908.99").Equal(run.Pricing.TotalCost))
	require.NotNil(t, run.Receipt)

	require.Len(t, f.shipper.requests, 1)
	assert.Equal(t, 2, f.shipper.requests[0].Quantity)
}

func TestReset_FromAnyStage(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "tardis", Quantity: 1, Address: "X"})
	ctx := context.Background()

	failed, err := f.agent.Submit(ctx, "a tardis to X")
	require.NoError(t, err)
	require.Equal(t, StageError, failed.Stage)

	run, err := f.agent.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, StageInitial, run.Stage)
	assert.NotEqual(t, failed.ID, run.ID)
	assert.NoError(t, run.Err)
}

func TestSubmit_ClearsPreviousRun(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "sonic screwdriver", Quantity: 1, Address: "X"})
	ctx := context.Background()

	first, err := f.agent.Submit(ctx, "1 sonic screwdriver to X")
	require.NoError(t, err)
	require.Equal(t, StageComplete, first.Stage)

	f.extractor.order = ExtractedOrder{Item: "tardis", Quantity: 1, Address: "X"}
	second, err := f.agent.Submit(ctx, "1 tardis to X")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, StageError, second.Stage)
	assert.Nil(t, second.Pricing)
	assert.Nil(t, second.Receipt)
}

func TestBusy_RejectsConcurrentOperations(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "sonic screwdriver", Quantity: 1, Address: "X"})
	f.shipper.started = make(chan struct{})
	f.shipper.release = make(chan struct{})
	ctx := context.Background()

	done := make(chan Run)
	go func() {
		run, _ := f.agent.Submit(ctx, "1 sonic screwdriver to X")
		done <- run
	}()

	select {
	case <-f.shipper.started:
	case <-time.After(5 * time.Second):
		t.Fatal("shipment did not start")
	}

	assert.True(t, f.agent.Busy())
	assert.Equal(t, StageShipping, f.agent.Current().Stage)

	_, err := f.agent.Submit(ctx, "1 sonic screwdriver to Y")
	require.ErrorIs(t, err, ErrBusy)
	_, err = f.agent.Reset(ctx)
	require.ErrorIs(t, err, ErrBusy)
	_, err = f.agent.Approve(ctx)
	require.ErrorIs(t, err, ErrBusy)

	close(f.shipper.release)
	run := <-done
	assert.Equal(t, StageComplete, run.Stage)
	assert.False(t, f.agent.Busy())
}

func TestSubmit_IgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t, ExtractedOrder{Item: "sonic screwdriver", Quantity: 1, Address: "X"})
	f.shipper.started = make(chan struct{})
	f.shipper.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Run)
	go func() {
		run, _ := f.agent.Submit(ctx, "1 sonic screwdriver to X")
		done <- run
	}()

	<-f.shipper.started
	cancel()
	close(f.shipper.release)

	run := <-done
	assert.Equal(t, StageComplete, run.Stage)
}
