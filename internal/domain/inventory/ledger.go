package inventory

import "context"

// Ledger is the stock ledger for all retailers. Every mutating call is a
// single atomic unit spanning the affected items and their transaction
// entries: either the whole batch commits or none of it does.
//
// Reserve is all-or-nothing across the lines of one order. Release and
// Confirm are idempotent per order: once the ledger holds a release or
// confirm entry for an order, repeated calls are no-ops.
type Ledger interface {
	// CheckAvailable reports requested vs. available stock per line without
	// taking locks. It is advisory only; Reserve re-checks under lock.
	CheckAvailable(ctx context.Context, retailerID string, lines []Line) ([]Availability, error)

	// Reserve increments reserved stock for every line, or fails with
	// *InsufficientStockError listing each shortfall. A missing item record
	// counts as zero available.
	Reserve(ctx context.Context, retailerID string, lines []Line, orderID, actor string) error

	// Release returns previously reserved quantities to the available pool.
	Release(ctx context.Context, retailerID string, lines []Line, orderID, actor, reason string) error

	// Confirm permanently deducts reserved quantities from total stock.
	Confirm(ctx context.Context, retailerID string, lines []Line, orderID, actor string) error

	// StockIn adds received quantities to total stock, creating item records
	// as needed.
	StockIn(ctx context.Context, retailerID string, lines []Line, actor, reason string) error

	// Adjust sets an item's total stock to newTotal. Fails with
	// ErrAdjustBelowReserved when newTotal is less than the reserved quantity.
	Adjust(ctx context.Context, retailerID, productID string, newTotal int, actor, reason string) error

	// Stock returns the current items for a retailer.
	Stock(ctx context.Context, retailerID string) ([]Item, error)

	// Transactions returns the most recent transaction entries for an item,
	// newest first. A non-positive limit applies a default.
	Transactions(ctx context.Context, retailerID, productID string, limit int) ([]Transaction, error)
}
