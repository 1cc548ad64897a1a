package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, customer_id, retailer_id, items, delivery_latitude, delivery_longitude,
		 status, reservation_status, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateOrderSQL = `UPDATE orders SET
		items = $2, status = $3, reservation_status = $4,
		reserved_at = $5, delivered_at = $6, released_at = $7
		WHERE id = $1`

	orderColumns = `id, customer_id, retailer_id, items, delivery_latitude, delivery_longitude,
		status, reservation_status, total, created_at, reserved_at, delivered_at, released_at`
)

var (
	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	listOrdersSQL        = `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1
		ORDER BY created_at DESC LIMIT $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items are serialized to JSON for storage in the JSONB column.
type OrderRepository struct {
	db querier
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.db.Exec(ctx, createOrderSQL,
		o.ID, o.CustomerID, o.RetailerID, itemsJSON,
		o.DeliveryLocation.Latitude, o.DeliveryLocation.Longitude,
		string(o.Status), string(o.ReservationStatus), o.Total, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Update persists the mutable fields of an existing order.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tag, err := r.db.Exec(ctx, updateOrderSQL,
		o.ID, itemsJSON, string(o.Status), string(o.ReservationStatus),
		o.ReservedAt, o.DeliveredAt, o.ReleasedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetForUpdate returns an order with its row locked for the duration of the
// enclosing transaction.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUpdateSQL, id)
}

// ListByCustomer returns a customer's most recent orders.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]order.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, listOrdersSQL, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, id string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		status    string
		resStatus string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.RetailerID, &itemsJSON,
		&o.DeliveryLocation.Latitude, &o.DeliveryLocation.Longitude,
		&status, &resStatus, &o.Total,
		&o.CreatedAt, &o.ReservedAt, &o.DeliveredAt, &o.ReleasedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling items for order %q: %w", o.ID, err)
	}
	o.Status = order.Status(status)
	o.ReservationStatus = order.ReservationStatus(resStatus)
	return o, nil
}
