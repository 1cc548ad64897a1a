package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
)

const (
	lockItemSQL = `SELECT total_stock, reserved_stock FROM inventory_items
		WHERE retailer_id = $1 AND product_id = $2 FOR UPDATE NOWAIT`

	checkItemsSQL = `SELECT product_id, total_stock, reserved_stock FROM inventory_items
		WHERE retailer_id = $1 AND product_id = ANY($2)`

	updateReservedSQL = `UPDATE inventory_items
		SET reserved_stock = reserved_stock + $3, updated_at = now()
		WHERE retailer_id = $1 AND product_id = $2`

	confirmItemSQL = `UPDATE inventory_items
		SET total_stock = total_stock - $3, reserved_stock = reserved_stock - $3, updated_at = now()
		WHERE retailer_id = $1 AND product_id = $2`

	stockInSQL = `INSERT INTO inventory_items (retailer_id, product_id, total_stock, reserved_stock)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (retailer_id, product_id)
		DO UPDATE SET total_stock = inventory_items.total_stock + EXCLUDED.total_stock, updated_at = now()`

	adjustItemSQL = `INSERT INTO inventory_items (retailer_id, product_id, total_stock, reserved_stock)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (retailer_id, product_id)
		DO UPDATE SET total_stock = EXCLUDED.total_stock, updated_at = now()`

	hasTerminalEntrySQL = `SELECT EXISTS (
		SELECT 1 FROM inventory_transactions
		WHERE order_id = $1 AND type IN ('release', 'confirm'))`

	insertTransactionSQL = `INSERT INTO inventory_transactions
		(id, retailer_id, product_id, type, quantity,
		 prev_total, new_total, prev_reserved, new_reserved,
		 order_id, actor, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	stockByRetailerSQL = `SELECT retailer_id, product_id, total_stock, reserved_stock, updated_at
		FROM inventory_items WHERE retailer_id = $1 ORDER BY product_id`

	transactionsSQL = `SELECT id, retailer_id, product_id, type, quantity,
			prev_total, new_total, prev_reserved, new_reserved,
			order_id, actor, reason, created_at
		FROM inventory_transactions
		WHERE retailer_id = $1 AND product_id = $2
		ORDER BY created_at DESC LIMIT $3`
)

var _ inventory.Ledger = (*Ledger)(nil)

// Ledger implements inventory.Ledger backed by PostgreSQL. Mutating
// operations must run inside a unit of work; the pool-backed instance
// returned by NewLedger serves reads and advisory checks only.
type Ledger struct {
	db   querier
	inTx bool
}

// NewLedger returns a read-only Ledger that uses the given pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{db: pool}
}

// CheckAvailable reports requested vs. available stock without locking.
func (l *Ledger) CheckAvailable(ctx context.Context, retailerID string, lines []inventory.Line) ([]inventory.Availability, error) {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	rows, err := l.db.Query(ctx, checkItemsSQL, retailerID, ids)
	if err != nil {
		return nil, fmt.Errorf("checking stock for retailer %q: %w", retailerID, err)
	}

	type stockRow struct {
		productID string
		total     int
		reserved  int
	}
	found, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stockRow, error) {
		var r stockRow
		err := row.Scan(&r.productID, &r.total, &r.reserved)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("checking stock for retailer %q: %w", retailerID, err)
	}

	available := make(map[string]int, len(found))
	for _, r := range found {
		available[r.productID] = r.total - r.reserved
	}

	out := make([]inventory.Availability, len(lines))
	for i, line := range lines {
		out[i] = inventory.Availability{
			ProductID: line.ProductID,
			Requested: line.Quantity,
			Available: available[line.ProductID],
		}
	}
	return out, nil
}

// Reserve locks each item row in deterministic order, verifies availability
// for the whole batch, then increments reserved stock and appends one
// transaction entry per item.
func (l *Ledger) Reserve(ctx context.Context, retailerID string, lines []inventory.Line, orderID, actor string) error {
	if err := l.requireTx(); err != nil {
		return err
	}
	lines = sortedLines(lines)

	type locked struct {
		line     inventory.Line
		total    int
		reserved int
	}
	var (
		held  []locked
		short []inventory.Availability
	)
	for _, line := range lines {
		total, reserved, err := l.lockItem(ctx, retailerID, line.ProductID)
		if err != nil {
			if errors.Is(err, inventory.ErrItemNotFound) {
				short = append(short, inventory.Availability{
					ProductID: line.ProductID,
					Requested: line.Quantity,
				})
				continue
			}
			return err
		}
		if total-reserved < line.Quantity {
			short = append(short, inventory.Availability{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: total - reserved,
			})
			continue
		}
		held = append(held, locked{line: line, total: total, reserved: reserved})
	}
	if len(short) > 0 {
		return &inventory.InsufficientStockError{RetailerID: retailerID, Shortfalls: short}
	}

	for _, h := range held {
		if _, err := l.db.Exec(ctx, updateReservedSQL, retailerID, h.line.ProductID, h.line.Quantity); err != nil {
			return fmt.Errorf("reserving %q for order %q: %w", h.line.ProductID, orderID, err)
		}
		err := l.appendTransaction(ctx, transactionRow{
			retailerID:   retailerID,
			productID:    h.line.ProductID,
			typ:          inventory.TxReserve,
			quantity:     h.line.Quantity,
			prevTotal:    h.total,
			newTotal:     h.total,
			prevReserved: h.reserved,
			newReserved:  h.reserved + h.line.Quantity,
			orderID:      orderID,
			actor:        actor,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Release returns reserved quantities to the available pool. A second release
// or a release after confirm is a no-op.
func (l *Ledger) Release(ctx context.Context, retailerID string, lines []inventory.Line, orderID, actor, reason string) error {
	if err := l.requireTx(); err != nil {
		return err
	}
	done, err := l.hasTerminalEntry(ctx, orderID)
	if err != nil || done {
		return err
	}

	for _, line := range sortedLines(lines) {
		total, reserved, err := l.lockItem(ctx, retailerID, line.ProductID)
		if err != nil {
			return err
		}
		if _, err := l.db.Exec(ctx, updateReservedSQL, retailerID, line.ProductID, -line.Quantity); err != nil {
			return fmt.Errorf("releasing %q for order %q: %w", line.ProductID, orderID, err)
		}
		err = l.appendTransaction(ctx, transactionRow{
			retailerID:   retailerID,
			productID:    line.ProductID,
			typ:          inventory.TxRelease,
			quantity:     line.Quantity,
			prevTotal:    total,
			newTotal:     total,
			prevReserved: reserved,
			newReserved:  reserved - line.Quantity,
			orderID:      orderID,
			actor:        actor,
			reason:       reason,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Confirm permanently deducts reserved quantities from total stock. A second
// confirm or a confirm after release is a no-op.
func (l *Ledger) Confirm(ctx context.Context, retailerID string, lines []inventory.Line, orderID, actor string) error {
	if err := l.requireTx(); err != nil {
		return err
	}
	done, err := l.hasTerminalEntry(ctx, orderID)
	if err != nil || done {
		return err
	}

	for _, line := range sortedLines(lines) {
		total, reserved, err := l.lockItem(ctx, retailerID, line.ProductID)
		if err != nil {
			return err
		}
		if _, err := l.db.Exec(ctx, confirmItemSQL, retailerID, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("confirming %q for order %q: %w", line.ProductID, orderID, err)
		}
		err = l.appendTransaction(ctx, transactionRow{
			retailerID:   retailerID,
			productID:    line.ProductID,
			typ:          inventory.TxConfirm,
			quantity:     line.Quantity,
			prevTotal:    total,
			newTotal:     total - line.Quantity,
			prevReserved: reserved,
			newReserved:  reserved - line.Quantity,
			orderID:      orderID,
			actor:        actor,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// StockIn adds received quantities, creating item rows as needed.
func (l *Ledger) StockIn(ctx context.Context, retailerID string, lines []inventory.Line, actor, reason string) error {
	if err := l.requireTx(); err != nil {
		return err
	}
	for _, line := range sortedLines(lines) {
		total, reserved, err := l.lockItem(ctx, retailerID, line.ProductID)
		if err != nil && !errors.Is(err, inventory.ErrItemNotFound) {
			return err
		}
		if _, err := l.db.Exec(ctx, stockInSQL, retailerID, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("stocking in %q at retailer %q: %w", line.ProductID, retailerID, err)
		}
		err = l.appendTransaction(ctx, transactionRow{
			retailerID:   retailerID,
			productID:    line.ProductID,
			typ:          inventory.TxStockIn,
			quantity:     line.Quantity,
			prevTotal:    total,
			newTotal:     total + line.Quantity,
			prevReserved: reserved,
			newReserved:  reserved,
			actor:        actor,
			reason:       reason,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Adjust sets an item's total stock to newTotal.
func (l *Ledger) Adjust(ctx context.Context, retailerID, productID string, newTotal int, actor, reason string) error {
	if err := l.requireTx(); err != nil {
		return err
	}
	total, reserved, err := l.lockItem(ctx, retailerID, productID)
	if err != nil && !errors.Is(err, inventory.ErrItemNotFound) {
		return err
	}
	if newTotal < reserved {
		return inventory.ErrAdjustBelowReserved
	}
	if _, err := l.db.Exec(ctx, adjustItemSQL, retailerID, productID, newTotal); err != nil {
		return fmt.Errorf("adjusting %q at retailer %q: %w", productID, retailerID, err)
	}
	return l.appendTransaction(ctx, transactionRow{
		retailerID:   retailerID,
		productID:    productID,
		typ:          inventory.TxAdjustment,
		quantity:     newTotal - total,
		prevTotal:    total,
		newTotal:     newTotal,
		prevReserved: reserved,
		newReserved:  reserved,
		actor:        actor,
		reason:       reason,
	})
}

// Stock returns the current items for a retailer.
func (l *Ledger) Stock(ctx context.Context, retailerID string) ([]inventory.Item, error) {
	rows, err := l.db.Query(ctx, stockByRetailerSQL, retailerID)
	if err != nil {
		return nil, fmt.Errorf("listing stock for retailer %q: %w", retailerID, err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// Transactions returns the newest transaction entries for an item.
func (l *Ledger) Transactions(ctx context.Context, retailerID, productID string, limit int) ([]inventory.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, transactionsSQL, retailerID, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for %q/%q: %w", retailerID, productID, err)
	}
	return pgx.CollectRows(rows, scanTransaction)
}

func (l *Ledger) requireTx() error {
	if !l.inTx {
		return errors.New("ledger mutation outside a unit of work")
	}
	return nil
}

// lockItem acquires the row lock for one item and returns its current stock.
// Returns inventory.ErrItemNotFound when no row exists; a lock conflict
// surfaces as a pg error that the unit of work maps to ErrConcurrencyConflict.
func (l *Ledger) lockItem(ctx context.Context, retailerID, productID string) (total, reserved int, err error) {
	err = l.db.QueryRow(ctx, lockItemSQL, retailerID, productID).Scan(&total, &reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, inventory.ErrItemNotFound
		}
		return 0, 0, fmt.Errorf("locking item %q/%q: %w", retailerID, productID, err)
	}
	return total, reserved, nil
}

func (l *Ledger) hasTerminalEntry(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	if err := l.db.QueryRow(ctx, hasTerminalEntrySQL, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking terminal entry for order %q: %w", orderID, err)
	}
	return exists, nil
}

type transactionRow struct {
	retailerID   string
	productID    string
	typ          inventory.TransactionType
	quantity     int
	prevTotal    int
	newTotal     int
	prevReserved int
	newReserved  int
	orderID      string
	actor        string
	reason       string
}

func (l *Ledger) appendTransaction(ctx context.Context, r transactionRow) error {
	_, err := l.db.Exec(ctx, insertTransactionSQL,
		uuid.New().String(), r.retailerID, r.productID, string(r.typ), r.quantity,
		r.prevTotal, r.newTotal, r.prevReserved, r.newReserved,
		r.orderID, r.actor, r.reason,
	)
	if err != nil {
		return fmt.Errorf("appending %s transaction for %q: %w", r.typ, r.productID, err)
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (inventory.Item, error) {
	var it inventory.Item
	err := row.Scan(&it.RetailerID, &it.ProductID, &it.TotalStock, &it.ReservedStock, &it.UpdatedAt)
	return it, err
}

func scanTransaction(row pgx.CollectableRow) (inventory.Transaction, error) {
	var (
		tx  inventory.Transaction
		typ string
	)
	err := row.Scan(
		&tx.ID, &tx.RetailerID, &tx.ProductID, &typ, &tx.Quantity,
		&tx.PrevTotal, &tx.NewTotal, &tx.PrevReserved, &tx.NewReserved,
		&tx.OrderID, &tx.Actor, &tx.Reason, &tx.CreatedAt,
	)
	tx.Type = inventory.TransactionType(typ)
	return tx, err
}

// sortedLines returns the lines ordered by product ID so every transaction
// acquires row locks in the same order, preventing lock-order deadlocks.
func sortedLines(lines []inventory.Line) []inventory.Line {
	out := make([]inventory.Line, len(lines))
	copy(out, lines)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
