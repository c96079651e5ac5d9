package fulfillment

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// EventKind distinguishes stage changes from shipment progress.
type EventKind string

const (
	EventStageChanged EventKind = "stage_changed"
	EventProgress     EventKind = "progress"
)

// Event is delivered to observers as a run advances. For stage changes Run
// is the snapshot after the change; for progress events Message carries the
// shipment update and Run is the snapshot at the time of the report.
type Event struct {
	Kind     EventKind
	Previous Stage
	Message  string
	Run      Run
	At       time.Time
}

// Observer receives run events in the order they happen. Observe is called
// synchronously on the goroutine driving the run.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans an event out to every observer in order.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, ev Event) {
	for _, obs := range o {
		obs.Observe(ctx, ev)
	}
}

// LogObserver logs run events through the context logger.
type LogObserver struct{}

func (LogObserver) Observe(ctx context.Context, ev Event) {
	lg := zctx.From(ctx).With(
		zap.String("run_id", ev.Run.ID),
		zap.String("stage", ev.Run.Stage.String()),
	)
	switch ev.Kind {
	case EventProgress:
		lg.Debug("Shipment progress", zap.String("message", ev.Message))
	case EventStageChanged:
		if ev.Run.Stage == StageError {
			lg.Warn("Order run failed",
				zap.String("previous", ev.Previous.String()),
				zap.Error(ev.Run.Err),
			)
			return
		}
		lg.Info("Order stage changed", zap.String("previous", ev.Previous.String()))
	}
}
