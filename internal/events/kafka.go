// Package events publishes order run events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/xenking/order-agent/internal/codec"
	"github.com/xenking/order-agent/internal/domain/fulfillment"
)

var _ fulfillment.Observer = (*KafkaPublisher)(nil)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter creates an asynchronous kafka writer for the given brokers and
// topic. WriteMessages only enqueues, so an unreachable broker never stalls a
// run; delivery failures are logged to lg.
func NewWriter(brokers []string, topic string, lg *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             logFailedDeliveries(lg),
	}
}

func logFailedDeliveries(lg *zap.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		runIDs := make([]string, 0, len(msgs))
		for _, m := range msgs {
			runIDs = append(runIDs, string(m.Key))
		}
		lg.Warn("Deliver run events",
			zap.Int("messages", len(msgs)),
			zap.Strings("run_ids", runIDs),
			zap.Error(err),
		)
	}
}

// KafkaPublisher publishes stage changes of order runs, keyed by run ID so
// that every event of a run lands on the same partition in order.
type KafkaPublisher struct {
	w          MessageWriter
	propagator propagation.TextMapPropagator
	timeout    time.Duration
}

// NewKafkaPublisher wraps w. Progress events are not published.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		w:          w,
		propagator: otel.GetTextMapPropagator(),
		timeout:    5 * time.Second,
	}
}

// Observe implements fulfillment.Observer. Publish failures are logged and
// never affect the run.
func (p *KafkaPublisher) Observe(ctx context.Context, ev fulfillment.Event) {
	if ev.Kind != fulfillment.EventStageChanged {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		zctx.From(ctx).Warn("Publish run event",
			zap.String("run_id", ev.Run.ID),
			zap.String("stage", ev.Run.Stage.String()),
			zap.Error(err),
		)
	}
}

// Publish writes a single event.
func (p *KafkaPublisher) Publish(ctx context.Context, ev fulfillment.Event) error {
	carrier := propagation.MapCarrier{}
	p.propagator.Inject(ctx, carrier)

	headers := make([]kafka.Header, 0, len(carrier)+1)
	headers = append(headers, kafka.Header{Key: "event", Value: []byte(ev.Kind)})
	for _, k := range carrier.Keys() {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(carrier.Get(k))})
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:     []byte(ev.Run.ID),
		Value:   EncodeEvent(ev),
		Headers: headers,
		Time:    ev.At,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// EncodeEvent renders an event as a JSON object carrying the run snapshot.
func EncodeEvent(ev fulfillment.Event) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("kind")
	e.Str(string(ev.Kind))
	e.FieldStart("previous")
	e.Str(ev.Previous.String())
	codec.Time(&e, "at", ev.At)
	codec.RunFields(&e, ev.Run)
	e.ObjEnd()
	return e.Bytes()
}
