// Package inventory defines the per-(retailer, product) stock ledger: current
// stock levels plus an append-only transaction log that is the authoritative
// record for reconciling them.
package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for ledger operations.
var (
	// ErrItemNotFound is returned when a (retailer, product) stock record
	// does not exist.
	ErrItemNotFound = errors.New("inventory item not found")

	// ErrConcurrencyConflict is returned when a stock row could not be locked
	// within the bounded wait. The operation is safe to retry.
	ErrConcurrencyConflict = errors.New("inventory row locked by another transaction")

	// ErrAdjustBelowReserved is returned when a manual adjustment would set
	// total stock below the quantity currently reserved.
	ErrAdjustBelowReserved = errors.New("adjustment below reserved stock")
)

// Item is the stock record for one product at one retailer.
// Invariant: 0 <= ReservedStock <= TotalStock.
type Item struct {
	RetailerID    string
	ProductID     string
	TotalStock    int
	ReservedStock int
	UpdatedAt     time.Time
}

// AvailableStock is the portion of total stock not held by reservations.
func (i Item) AvailableStock() int {
	return i.TotalStock - i.ReservedStock
}

// TransactionType enumerates the ledger mutation kinds.
type TransactionType string

const (
	TxReserve    TransactionType = "reserve"
	TxRelease    TransactionType = "release"
	TxConfirm    TransactionType = "confirm"
	TxStockIn    TransactionType = "stock_in"
	TxAdjustment TransactionType = "adjustment"
)

// Transaction is an immutable audit record of a single item mutation.
// Entries are append-only; they are never updated or deleted.
type Transaction struct {
	ID           string
	RetailerID   string
	ProductID    string
	Type         TransactionType
	Quantity     int
	PrevTotal    int
	NewTotal     int
	PrevReserved int
	NewReserved  int
	OrderID      string
	Actor        string
	Reason       string
	CreatedAt    time.Time
}

// Line is a requested (product, quantity) pair within a batch operation.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Availability is the per-item result of a stock check.
type Availability struct {
	ProductID string
	Requested int
	Available int
}

// Sufficient reports whether the available stock covers the request.
func (a Availability) Sufficient() bool {
	return a.Available >= a.Requested
}

// InsufficientStockError reports which items of a batch could not be covered.
type InsufficientStockError struct {
	RetailerID string
	Shortfalls []Availability
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("%s: requested %d, available %d", s.ProductID, s.Requested, s.Available)
	}
	return fmt.Sprintf("insufficient stock at retailer %s: %s", e.RetailerID, strings.Join(parts, "; "))
}
