package events

import (
	"context"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
)

var _ fulfillment.EventSink = MultiSink{}

// MultiSink fans each event out to every wrapped sink in order.
type MultiSink []fulfillment.EventSink

func (m MultiSink) ReservationAttempted(ctx context.Context, e fulfillment.ReservationEvent) {
	for _, s := range m {
		s.ReservationAttempted(ctx, e)
	}
}

func (m MultiSink) ReservationSucceeded(ctx context.Context, e fulfillment.ReservationEvent) {
	for _, s := range m {
		s.ReservationSucceeded(ctx, e)
	}
}

func (m MultiSink) ReservationFailed(ctx context.Context, e fulfillment.ReservationEvent, err error) {
	for _, s := range m {
		s.ReservationFailed(ctx, e, err)
	}
}

func (m MultiSink) ReservationReleased(ctx context.Context, e fulfillment.ReservationEvent, reason string) {
	for _, s := range m {
		s.ReservationReleased(ctx, e, reason)
	}
}

func (m MultiSink) DeliveryConfirmed(ctx context.Context, e fulfillment.ReservationEvent) {
	for _, s := range m {
		s.DeliveryConfirmed(ctx, e)
	}
}
