// Package order defines the customer order aggregate and its status machine.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/geo"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Item is a single line item of an order. ReservedQuantity and Reserved are
// maintained by the reservation coordinator, never by callers.
type Item struct {
	ProductID        string          `json:"product_id"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ReservedQuantity int             `json:"reserved_quantity"`
	Reserved         bool            `json:"reserved"`
}

// Order is the unit of customer-facing lifecycle. It is created once, mutated
// only through defined transitions, and never deleted: cancellation is a
// terminal status, not removal.
type Order struct {
	ID                string
	CustomerID        string
	RetailerID        string
	Items             []Item
	DeliveryLocation  geo.Coordinate
	Status            Status
	ReservationStatus ReservationStatus
	Total             decimal.Decimal
	CreatedAt         time.Time
	ReservedAt        *time.Time
	DeliveredAt       *time.Time
	ReleasedAt        *time.Time
}

// Lines returns the ledger lines for the originally requested quantities.
func (o *Order) Lines() []inventory.Line {
	lines := make([]inventory.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return lines
}

// ReservedLines returns the lines actually held by the reservation, used for
// release and confirm.
func (o *Order) ReservedLines() []inventory.Line {
	lines := make([]inventory.Line, 0, len(o.Items))
	for _, it := range o.Items {
		if it.Reserved && it.ReservedQuantity > 0 {
			lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.ReservedQuantity})
		}
	}
	return lines
}

// Repository defines persistence operations for orders. GetForUpdate must be
// called inside a unit of work; it locks the order row for the duration of
// the enclosing transaction.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
}
