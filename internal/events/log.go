// Package events provides fulfillment.EventSink implementations: structured
// logging, Kafka publishing and a fan-out combinator.
package events

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
)

var _ fulfillment.EventSink = LogSink{}

// LogSink writes reservation lifecycle events to the request-scoped logger.
type LogSink struct{}

func (LogSink) ReservationAttempted(ctx context.Context, e fulfillment.ReservationEvent) {
	zctx.From(ctx).Info("reservation attempted", fields(e)...)
}

func (LogSink) ReservationSucceeded(ctx context.Context, e fulfillment.ReservationEvent) {
	zctx.From(ctx).Info("reservation succeeded", fields(e)...)
}

func (LogSink) ReservationFailed(ctx context.Context, e fulfillment.ReservationEvent, err error) {
	zctx.From(ctx).Warn("reservation failed", append(fields(e), zap.Error(err))...)
}

func (LogSink) ReservationReleased(ctx context.Context, e fulfillment.ReservationEvent, reason string) {
	zctx.From(ctx).Info("reservation released", append(fields(e), zap.String("reason", reason))...)
}

func (LogSink) DeliveryConfirmed(ctx context.Context, e fulfillment.ReservationEvent) {
	zctx.From(ctx).Info("delivery confirmed", fields(e)...)
}

func fields(e fulfillment.ReservationEvent) []zap.Field {
	return []zap.Field{
		zap.String("order_id", e.OrderID),
		zap.String("retailer_id", e.RetailerID),
		zap.String("customer_id", e.CustomerID),
		zap.Int("items", len(e.Lines)),
	}
}
