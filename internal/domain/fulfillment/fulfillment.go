// Package fulfillment orchestrates order placement, reservation, release and
// delivery confirmation across the order store and the inventory ledger.
//
// All multi-row mutations go through UnitOfWork so the core stays agnostic of
// the storage engine: the postgres implementation maps it onto one database
// transaction, the in-memory implementation onto a mutex plus snapshot
// rollback.
package fulfillment

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/order"
)

// Sentinel errors for reservation state guards.
var (
	// ErrNotReserved is returned when a release or confirm is attempted on an
	// order that never reached the reserved state.
	ErrNotReserved = errors.New("order has no active reservation")

	// ErrReservationAlreadyTerminal is returned when a reservation mutation is
	// attempted after the reservation reached delivered or released.
	ErrReservationAlreadyTerminal = errors.New("reservation already in a terminal state")
)

// Tx exposes the repositories scoped to one atomic unit of work. Everything
// obtained from a Tx shares the same transaction; mutations become visible
// only if the enclosing Do call returns nil.
type Tx interface {
	Orders() order.Repository
	Ledger() inventory.Ledger
}

// UnitOfWork runs a function inside a single atomic unit. If fn returns an
// error the unit is aborted and none of its mutations survive.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ReservationEvent carries the identifying data of a reservation-side event.
type ReservationEvent struct {
	OrderID    string
	RetailerID string
	CustomerID string
	Lines      []inventory.Line
}

// EventSink receives structured reservation lifecycle events. Implementations
// must be safe for concurrent use and must not block the caller for long;
// the core emits and moves on.
type EventSink interface {
	ReservationAttempted(ctx context.Context, e ReservationEvent)
	ReservationSucceeded(ctx context.Context, e ReservationEvent)
	ReservationFailed(ctx context.Context, e ReservationEvent, err error)
	ReservationReleased(ctx context.Context, e ReservationEvent, reason string)
	DeliveryConfirmed(ctx context.Context, e ReservationEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) ReservationAttempted(context.Context, ReservationEvent)        {}
func (NopSink) ReservationSucceeded(context.Context, ReservationEvent)        {}
func (NopSink) ReservationFailed(context.Context, ReservationEvent, error)    {}
func (NopSink) ReservationReleased(context.Context, ReservationEvent, string) {}
func (NopSink) DeliveryConfirmed(context.Context, ReservationEvent)           {}

func eventFor(o *order.Order) ReservationEvent {
	return ReservationEvent{
		OrderID:    o.ID,
		RetailerID: o.RetailerID,
		CustomerID: o.CustomerID,
		Lines:      o.Lines(),
	}
}
