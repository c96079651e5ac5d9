package handler

import (
	"context"
	"sync"

	"github.com/xenking/order-agent/internal/domain/fulfillment"
)

var _ fulfillment.Observer = (*ProgressTracker)(nil)

// ProgressTracker remembers the latest shipment progress message so that
// clients polling the order can show it.
type ProgressTracker struct {
	mu      sync.RWMutex
	runID   string
	message string
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{}
}

// Observe implements fulfillment.Observer.
func (p *ProgressTracker) Observe(_ context.Context, ev fulfillment.Event) {
	if ev.Kind != fulfillment.EventProgress {
		return
	}
	p.mu.Lock()
	p.runID = ev.Run.ID
	p.message = ev.Message
	p.mu.Unlock()
}

// Latest returns the last progress message reported for runID.
func (p *ProgressTracker) Latest(runID string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.runID != runID {
		return ""
	}
	return p.message
}
