package fulfillment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/order"
)

// CoordinatorConfig bounds the internal retry behaviour on lock conflicts.
type CoordinatorConfig struct {
	// MaxRetries is the number of additional attempts after the first one
	// when a unit of work fails with inventory.ErrConcurrencyConflict.
	MaxRetries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

func (c *CoordinatorConfig) setDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 25 * time.Millisecond
	}
}

// Coordinator ties an order's lifecycle to the inventory ledger. It owns the
// three reservation transitions: reserve at creation, release on
// cancellation, confirm (deduct) on delivery.
type Coordinator struct {
	uow    UnitOfWork
	ledger inventory.Ledger
	events EventSink
	cfg    CoordinatorConfig
	tracer trace.Tracer
	now    func() time.Time

	reservations metric.Int64Counter
	releases     metric.Int64Counter
	deliveries   metric.Int64Counter
}

// NewCoordinator creates a Coordinator. The ledger is used only for advisory
// non-locking pre-checks; all mutations go through the unit of work.
func NewCoordinator(cfg CoordinatorConfig, uow UnitOfWork, ledger inventory.Ledger, events EventSink) *Coordinator {
	cfg.setDefaults()
	if events == nil {
		events = NopSink{}
	}
	meter := otel.Meter("fulfillment")
	reservations, _ := meter.Int64Counter("fulfillment.reservations",
		metric.WithDescription("Stock reservation attempts at order creation"))
	releases, _ := meter.Int64Counter("fulfillment.releases",
		metric.WithDescription("Reservations returned to the available pool"))
	deliveries, _ := meter.Int64Counter("fulfillment.deliveries",
		metric.WithDescription("Reservations confirmed as delivered"))

	return &Coordinator{
		uow:          uow,
		ledger:       ledger,
		events:       events,
		cfg:          cfg,
		tracer:       otel.Tracer("fulfillment"),
		now:          time.Now,
		reservations: reservations,
		releases:     releases,
		deliveries:   deliveries,
	}
}

func outcome(err error) attribute.KeyValue {
	switch {
	case err == nil:
		return attribute.String("outcome", "ok")
	case errors.As(err, new(*inventory.InsufficientStockError)):
		return attribute.String("outcome", "insufficient_stock")
	case errors.Is(err, inventory.ErrConcurrencyConflict):
		return attribute.String("outcome", "conflict")
	default:
		return attribute.String("outcome", "error")
	}
}

// ReserveForOrder persists o and reserves its stock in one atomic unit. The
// order enters storage as pending/not_reserved and leaves the transaction as
// reserved; if the reservation fails the whole unit aborts and no order row
// survives. Lock conflicts are retried a bounded number of times.
func (c *Coordinator) ReserveForOrder(ctx context.Context, o *order.Order, actor string) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.ReserveForOrder",
		trace.WithAttributes(
			attribute.String("order.id", o.ID),
			attribute.String("retailer.id", o.RetailerID),
		))
	defer span.End()

	ev := eventFor(o)
	c.events.ReservationAttempted(ctx, ev)

	// Advisory pre-check: fail fast with shortfall detail before opening a
	// transaction. Reserve re-checks under lock.
	avail, err := c.ledger.CheckAvailable(ctx, o.RetailerID, o.Lines())
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "pre-check stock")
	}
	if insufficient := shortfalls(avail); len(insufficient) > 0 {
		err := &inventory.InsufficientStockError{RetailerID: o.RetailerID, Shortfalls: insufficient}
		c.events.ReservationFailed(ctx, ev, err)
		c.reservations.Add(ctx, 1, metric.WithAttributes(outcome(err)))
		span.RecordError(err)
		return err
	}

	err = c.retryOnConflict(ctx, func() error {
		return c.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			o.Status = order.StatusPending
			o.ReservationStatus = order.ReservationNotReserved
			if o.CreatedAt.IsZero() {
				o.CreatedAt = c.now()
			}
			if err := tx.Orders().Create(ctx, o); err != nil {
				return errors.Wrap(err, "create order")
			}
			if err := tx.Ledger().Reserve(ctx, o.RetailerID, o.Lines(), o.ID, actor); err != nil {
				return err
			}

			reservedAt := c.now()
			o.ReservationStatus = order.ReservationReserved
			o.ReservedAt = &reservedAt
			for i := range o.Items {
				o.Items[i].ReservedQuantity = o.Items[i].Quantity
				o.Items[i].Reserved = true
			}
			if err := tx.Orders().Update(ctx, o); err != nil {
				return errors.Wrap(err, "mark reserved")
			}
			return nil
		})
	})
	c.reservations.Add(ctx, 1, metric.WithAttributes(outcome(err)))
	if err != nil {
		c.events.ReservationFailed(ctx, ev, err)
		span.RecordError(err)
		return err
	}

	c.events.ReservationSucceeded(ctx, ev)
	return nil
}

// ReleaseForOrder returns the order's reserved stock to the available pool
// and marks the reservation released. It refuses to act unless the current
// reservation status is reserved.
//
// This entry point mutates the reservation without touching the order
// status; it is for callers outside the status machine, such as ops tooling
// reclaiming stock from a stuck order. Cancellation goes through
// Service.CancelOrder, which runs the same releaseTx core in one transaction
// with the status write.
func (c *Coordinator) ReleaseForOrder(ctx context.Context, orderID, actor, reason string) (*order.Order, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.ReleaseForOrder",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	var released *order.Order
	err := c.retryOnConflict(ctx, func() error {
		return c.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			o, err := tx.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if err := c.releaseTx(ctx, tx, o, actor, reason); err != nil {
				return err
			}
			if err := tx.Orders().Update(ctx, o); err != nil {
				return errors.Wrap(err, "update order")
			}
			released = o
			return nil
		})
	})
	c.releases.Add(ctx, 1, metric.WithAttributes(outcome(err)))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.events.ReservationReleased(ctx, eventFor(released), reason)
	return released, nil
}

// ConfirmDeliveryForOrder permanently deducts the order's reserved stock and
// marks the reservation delivered. It refuses to act unless the current
// reservation status is reserved.
//
// Like ReleaseForOrder, this mutates the reservation alone. The delivered
// status transition goes through Service.UpdateOrderStatus, which runs the
// same confirmTx core in one transaction with the status write.
func (c *Coordinator) ConfirmDeliveryForOrder(ctx context.Context, orderID, actor string) (*order.Order, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.ConfirmDeliveryForOrder",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	var confirmed *order.Order
	err := c.retryOnConflict(ctx, func() error {
		return c.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			o, err := tx.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if err := c.confirmTx(ctx, tx, o, actor); err != nil {
				return err
			}
			if err := tx.Orders().Update(ctx, o); err != nil {
				return errors.Wrap(err, "update order")
			}
			confirmed = o
			return nil
		})
	})
	c.deliveries.Add(ctx, 1, metric.WithAttributes(outcome(err)))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.events.DeliveryConfirmed(ctx, eventFor(confirmed))
	return confirmed, nil
}

// releaseTx performs the ledger release and mutates o accordingly. The caller
// persists o and owns the enclosing transaction.
func (c *Coordinator) releaseTx(ctx context.Context, tx Tx, o *order.Order, actor, reason string) error {
	if err := guardReserved(o); err != nil {
		return err
	}
	if err := tx.Ledger().Release(ctx, o.RetailerID, o.ReservedLines(), o.ID, actor, reason); err != nil {
		return err
	}

	releasedAt := c.now()
	o.ReservationStatus = order.ReservationReleased
	o.ReleasedAt = &releasedAt
	clearReserved(o)
	return nil
}

// confirmTx performs the ledger deduction and mutates o accordingly. The
// caller persists o and owns the enclosing transaction.
func (c *Coordinator) confirmTx(ctx context.Context, tx Tx, o *order.Order, actor string) error {
	if err := guardReserved(o); err != nil {
		return err
	}
	if err := tx.Ledger().Confirm(ctx, o.RetailerID, o.ReservedLines(), o.ID, actor); err != nil {
		return err
	}

	deliveredAt := c.now()
	o.ReservationStatus = order.ReservationDelivered
	o.DeliveredAt = &deliveredAt
	clearReserved(o)
	return nil
}

func guardReserved(o *order.Order) error {
	switch {
	case o.ReservationStatus == order.ReservationReserved:
		return nil
	case o.ReservationStatus.Terminal():
		return errors.Wrapf(ErrReservationAlreadyTerminal, "order %s is %s", o.ID, o.ReservationStatus)
	default:
		return errors.Wrapf(ErrNotReserved, "order %s", o.ID)
	}
}

func clearReserved(o *order.Order) {
	for i := range o.Items {
		o.Items[i].Reserved = false
		o.Items[i].ReservedQuantity = 0
	}
}

// retryOnConflict runs fn, repeating a bounded number of times when it fails
// with inventory.ErrConcurrencyConflict. Any other error stops immediately.
func (c *Coordinator) retryOnConflict(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}
		err = fn()
		if err == nil || !errors.Is(err, inventory.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

func shortfalls(avail []inventory.Availability) []inventory.Availability {
	var out []inventory.Availability
	for _, a := range avail {
		if !a.Sufficient() {
			out = append(out, a)
		}
	}
	return out
}
