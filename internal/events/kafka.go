package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
)

// Envelope is the wire format for reservation events. Payloads are keyed by
// order ID so all events of one order land on the same partition.
type Envelope struct {
	Type       string           `json:"type"`
	OrderID    string           `json:"order_id"`
	RetailerID string           `json:"retailer_id"`
	CustomerID string           `json:"customer_id"`
	Lines      []inventory.Line `json:"lines,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// Publisher writes messages to a Kafka topic through a buffered inbox so
// publishing never blocks the request path. Dropped messages are logged.
type Publisher struct {
	w      *kafka.Writer
	inbox  chan kafka.Message
	done   chan struct{}
	logger *zap.Logger
}

// NewPublisher creates a Publisher for the given brokers and topic. Start must
// be called before Publish.
func NewPublisher(brokers []string, topic string, buf int, logger *zap.Logger) *Publisher {
	if buf <= 0 {
		buf = 256
	}
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		inbox:  make(chan kafka.Message, buf),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start runs the delivery loop until ctx is cancelled, then drains the inbox
// and closes the writer.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case m := <-p.inbox:
				if err := p.w.WriteMessages(context.Background(), m); err != nil {
					p.logger.Warn("publishing event", zap.Error(err))
				}
			}
		}
	}()
}

func (p *Publisher) drain() {
	for {
		select {
		case m := <-p.inbox:
			_ = p.w.WriteMessages(context.Background(), m)
		default:
			_ = p.w.Close()
			return
		}
	}
}

// WaitClosed blocks until the delivery loop has exited.
func (p *Publisher) WaitClosed() {
	<-p.done
}

func (p *Publisher) publish(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("encoding event", zap.Error(err))
		return
	}
	select {
	case p.inbox <- kafka.Message{Key: []byte(key), Value: b, Time: time.Now()}:
	default:
		p.logger.Warn("event inbox full, dropping", zap.String("key", key))
	}
}

var _ fulfillment.EventSink = (*KafkaSink)(nil)

// KafkaSink publishes reservation lifecycle events as JSON envelopes.
type KafkaSink struct {
	pub *Publisher
	now func() time.Time
}

func NewKafkaSink(pub *Publisher) *KafkaSink {
	return &KafkaSink{pub: pub, now: time.Now}
}

func (s *KafkaSink) ReservationAttempted(ctx context.Context, e fulfillment.ReservationEvent) {
	s.emit(ctx, "reservation.attempted", e, "", nil)
}

func (s *KafkaSink) ReservationSucceeded(ctx context.Context, e fulfillment.ReservationEvent) {
	s.emit(ctx, "reservation.succeeded", e, "", nil)
}

func (s *KafkaSink) ReservationFailed(ctx context.Context, e fulfillment.ReservationEvent, err error) {
	s.emit(ctx, "reservation.failed", e, "", err)
}

func (s *KafkaSink) ReservationReleased(ctx context.Context, e fulfillment.ReservationEvent, reason string) {
	s.emit(ctx, "reservation.released", e, reason, nil)
}

func (s *KafkaSink) DeliveryConfirmed(ctx context.Context, e fulfillment.ReservationEvent) {
	s.emit(ctx, "delivery.confirmed", e, "", nil)
}

func (s *KafkaSink) emit(ctx context.Context, typ string, e fulfillment.ReservationEvent, reason string, cause error) {
	env := Envelope{
		Type:       typ,
		OrderID:    e.OrderID,
		RetailerID: e.RetailerID,
		CustomerID: e.CustomerID,
		Lines:      e.Lines,
		Reason:     reason,
		At:         s.now().UTC(),
	}
	if cause != nil {
		env.Error = cause.Error()
	}
	zctx.From(ctx).Debug("publishing event", zap.String("type", typ), zap.String("order_id", e.OrderID))
	s.pub.publish(e.OrderID, env)
}
