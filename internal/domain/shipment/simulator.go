// Package shipment provides a carrier stand-in that walks an order through
// the usual dispatch steps and issues a tracking number.
package shipment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/order-agent/internal/domain/fulfillment"
)

var _ fulfillment.Shipper = (*Simulator)(nil)

// ETALayout renders delivery dates as "Monday, January 2, 2006".
const ETALayout = "Monday, January 2, 2006"

// Config controls the simulator.
type Config struct {
	// StepDelay is the pause before each progress step.
	StepDelay time.Duration
	// MinTransitDays and MaxTransitDays bound the estimated delivery date.
	MinTransitDays int
	MaxTransitDays int
}

// DefaultConfig matches a typical ground service: 3 to 6 days in transit.
func DefaultConfig() Config {
	return Config{
		StepDelay:      800 * time.Millisecond,
		MinTransitDays: 3,
		MaxTransitDays: 6,
	}
}

// Simulator implements fulfillment.Shipper without contacting a carrier.
type Simulator struct {
	cfg  Config
	now  func() time.Time
	days func(n int) int
}

// NewSimulator creates a Simulator.
func NewSimulator(cfg Config) *Simulator {
	if cfg.MaxTransitDays < cfg.MinTransitDays {
		cfg.MaxTransitDays = cfg.MinTransitDays
	}
	return &Simulator{cfg: cfg, now: time.Now, days: rand.IntN}
}

// Steps lists the progress messages reported for req, in order.
func Steps(req fulfillment.ShipmentRequest) []string {
	return []string{
		"Validating shipping address...",
		"Processing secure payment...",
		fmt.Sprintf("Allocating inventory: %d x %s...", req.Quantity, req.Item),
		"Picking and packing items...",
		"Generating shipping label...",
		"Package handed over to carrier.",
	}
}

// Ship reports each step after StepDelay and returns a receipt. It stops
// early if ctx is done.
func (s *Simulator) Ship(ctx context.Context, req fulfillment.ShipmentRequest, progress fulfillment.ProgressReporter) (fulfillment.ShipmentReceipt, error) {
	if strings.TrimSpace(req.Address) == "" {
		return fulfillment.ShipmentReceipt{}, errors.New("shipping address is empty")
	}
	if req.Quantity <= 0 {
		return fulfillment.ShipmentReceipt{}, errors.Errorf("invalid quantity %d", req.Quantity)
	}

	for _, step := range Steps(req) {
		if err := s.wait(ctx); err != nil {
			return fulfillment.ShipmentReceipt{}, errors.Wrap(err, "shipment interrupted")
		}
		progress.Report(step)
	}

	return fulfillment.ShipmentReceipt{
		TrackingID: NewTrackingID(),
		ETA:        s.eta(),
	}, nil
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.cfg.StepDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.cfg.StepDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Simulator) eta() string {
	transit := s.cfg.MinTransitDays + s.days(s.cfg.MaxTransitDays-s.cfg.MinTransitDays+1)
	return s.now().AddDate(0, 0, transit).Format(ETALayout)
}

// NewTrackingID returns a carrier style tracking number: "1Z" followed by 12
// uppercase alphanumerics.
func NewTrackingID() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "1Z" + id[:12]
}
