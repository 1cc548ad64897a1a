// Package memory provides an in-memory implementation of the fulfillment
// storage contracts: unit of work, order repository, inventory ledger, and the
// retailer and product directories. It backs unit tests and local runs
// without PostgreSQL.
//
// Concurrency model: one store-wide mutex held for the duration of a unit of
// work. Atomicity is provided by snapshotting mutable state before fn runs
// and restoring it when fn fails, mirroring a transaction rollback.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/order"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/product"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/retailer"
)

type itemKey struct {
	retailerID string
	productID  string
}

// Store holds all in-memory state.
type Store struct {
	mu        sync.Mutex
	items     map[itemKey]inventory.Item
	txLog     []inventory.Transaction
	orders    map[string]order.Order
	retailers map[string]retailer.Profile
	products  map[string]product.Product
	now       func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		items:     make(map[itemKey]inventory.Item),
		orders:    make(map[string]order.Order),
		retailers: make(map[string]retailer.Profile),
		products:  make(map[string]product.Product),
		now:       time.Now,
	}
}

// snapshot copies the mutable state touched by units of work.
type snapshot struct {
	items  map[itemKey]inventory.Item
	txLog  []inventory.Transaction
	orders map[string]order.Order
}

func (s *Store) snapshot() snapshot {
	items := make(map[itemKey]inventory.Item, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	orders := make(map[string]order.Order, len(s.orders))
	for k, v := range s.orders {
		orders[k] = cloneOrder(v)
	}
	txLog := make([]inventory.Transaction, len(s.txLog))
	copy(txLog, s.txLog)
	return snapshot{items: items, txLog: txLog, orders: orders}
}

func (s *Store) restore(snap snapshot) {
	s.items = snap.items
	s.txLog = snap.txLog
	s.orders = snap.orders
}

func cloneOrder(o order.Order) order.Order {
	items := make([]order.Item, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

// Do implements fulfillment.UnitOfWork.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx fulfillment.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &txView{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// txView exposes tx-scoped repositories over the locked store.
type txView struct {
	store *Store
}

func (t *txView) Orders() order.Repository { return &orderRepo{store: t.store, locked: true} }
func (t *txView) Ledger() inventory.Ledger { return &ledger{store: t.store, locked: true} }

// Orders returns an order repository for reads outside units of work.
func (s *Store) Orders() order.Repository { return &orderRepo{store: s} }

// Ledger returns a ledger whose mutations each run as their own atomic unit.
func (s *Store) Ledger() inventory.Ledger { return &ledger{store: s} }

// Retailers returns the retailer directory view.
func (s *Store) Retailers() retailer.Repository { return &retailerRepo{store: s} }

// Products returns the product catalog view.
func (s *Store) Products() product.Repository { return &productRepo{store: s} }

// AddRetailer seeds a retailer profile.
func (s *Store) AddRetailer(p retailer.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retailers[p.ID] = p
}

// AddProduct seeds a catalog product.
func (s *Store) AddProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// SetStock seeds an inventory item directly, bypassing the transaction log.
func (s *Store) SetStock(retailerID, productID string, total, reserved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemKey{retailerID, productID}] = inventory.Item{
		RetailerID:    retailerID,
		ProductID:     productID,
		TotalStock:    total,
		ReservedStock: reserved,
		UpdatedAt:     s.now(),
	}
}

// Item returns a copy of the stock record, for assertions in tests.
func (s *Store) Item(retailerID, productID string) (inventory.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemKey{retailerID, productID}]
	return it, ok
}

// lockIfNeeded locks the store mutex unless the caller already runs inside a
// unit of work.
func lockIfNeeded(s *Store, locked bool) func() {
	if locked {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- order repository ---

type orderRepo struct {
	store  *Store
	locked bool
}

func (r *orderRepo) Create(_ context.Context, o *order.Order) error {
	defer lockIfNeeded(r.store, r.locked)()
	r.store.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *orderRepo) Update(_ context.Context, o *order.Order) error {
	defer lockIfNeeded(r.store, r.locked)()
	if _, ok := r.store.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	r.store.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	defer lockIfNeeded(r.store, r.locked)()
	o, ok := r.store.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepo) ListByCustomer(_ context.Context, customerID string, limit int) ([]order.Order, error) {
	defer lockIfNeeded(r.store, r.locked)()
	var out []order.Order
	for _, o := range r.store.orders {
		if o.CustomerID == customerID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- retailer and product directories ---

type retailerRepo struct {
	store *Store
}

func (r *retailerRepo) GetByID(_ context.Context, id string) (*retailer.Profile, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.retailers[id]
	if !ok {
		return nil, retailer.ErrNotFound
	}
	return &p, nil
}

func (r *retailerRepo) ListActive(_ context.Context) ([]retailer.Profile, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []retailer.Profile
	for _, p := range r.store.retailers {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type productRepo struct {
	store *Store
}

func (r *productRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.store.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *productRepo) List(_ context.Context) ([]product.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]product.Product, 0, len(r.store.products))
	for _, p := range r.store.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- inventory ledger ---

type ledger struct {
	store  *Store
	locked bool
}

func (l *ledger) CheckAvailable(_ context.Context, retailerID string, lines []inventory.Line) ([]inventory.Availability, error) {
	defer lockIfNeeded(l.store, l.locked)()
	out := make([]inventory.Availability, len(lines))
	for i, line := range lines {
		it := l.store.items[itemKey{retailerID, line.ProductID}]
		out[i] = inventory.Availability{
			ProductID: line.ProductID,
			Requested: line.Quantity,
			Available: it.AvailableStock(),
		}
	}
	return out, nil
}

func (l *ledger) Reserve(_ context.Context, retailerID string, lines []inventory.Line, orderID, actor string) error {
	defer lockIfNeeded(l.store, l.locked)()

	var short []inventory.Availability
	for _, line := range lines {
		it := l.store.items[itemKey{retailerID, line.ProductID}]
		if it.AvailableStock() < line.Quantity {
			short = append(short, inventory.Availability{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: it.AvailableStock(),
			})
		}
	}
	if len(short) > 0 {
		return &inventory.InsufficientStockError{RetailerID: retailerID, Shortfalls: short}
	}

	for _, line := range lines {
		l.store.mutate(retailerID, line.ProductID, inventory.TxReserve, line.Quantity, orderID, actor, "",
			func(it *inventory.Item) {
				it.ReservedStock += line.Quantity
			})
	}
	return nil
}

func (l *ledger) Release(_ context.Context, retailerID string, lines []inventory.Line, orderID, actor, reason string) error {
	defer lockIfNeeded(l.store, l.locked)()

	if l.store.hasTerminalEntry(orderID) {
		return nil
	}
	for _, line := range lines {
		l.store.mutate(retailerID, line.ProductID, inventory.TxRelease, line.Quantity, orderID, actor, reason,
			func(it *inventory.Item) {
				it.ReservedStock -= line.Quantity
			})
	}
	return nil
}

func (l *ledger) Confirm(_ context.Context, retailerID string, lines []inventory.Line, orderID, actor string) error {
	defer lockIfNeeded(l.store, l.locked)()

	if l.store.hasTerminalEntry(orderID) {
		return nil
	}
	for _, line := range lines {
		l.store.mutate(retailerID, line.ProductID, inventory.TxConfirm, line.Quantity, orderID, actor, "",
			func(it *inventory.Item) {
				it.ReservedStock -= line.Quantity
				it.TotalStock -= line.Quantity
			})
	}
	return nil
}

func (l *ledger) StockIn(_ context.Context, retailerID string, lines []inventory.Line, actor, reason string) error {
	defer lockIfNeeded(l.store, l.locked)()
	for _, line := range lines {
		l.store.mutate(retailerID, line.ProductID, inventory.TxStockIn, line.Quantity, "", actor, reason,
			func(it *inventory.Item) {
				it.TotalStock += line.Quantity
			})
	}
	return nil
}

func (l *ledger) Adjust(_ context.Context, retailerID, productID string, newTotal int, actor, reason string) error {
	defer lockIfNeeded(l.store, l.locked)()

	it := l.store.items[itemKey{retailerID, productID}]
	if newTotal < it.ReservedStock {
		return inventory.ErrAdjustBelowReserved
	}
	delta := newTotal - it.TotalStock
	l.store.mutate(retailerID, productID, inventory.TxAdjustment, delta, "", actor, reason,
		func(it *inventory.Item) {
			it.TotalStock = newTotal
		})
	return nil
}

func (l *ledger) Stock(_ context.Context, retailerID string) ([]inventory.Item, error) {
	defer lockIfNeeded(l.store, l.locked)()
	var out []inventory.Item
	for k, it := range l.store.items {
		if k.retailerID == retailerID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (l *ledger) Transactions(_ context.Context, retailerID, productID string, limit int) ([]inventory.Transaction, error) {
	defer lockIfNeeded(l.store, l.locked)()
	if limit <= 0 {
		limit = 50
	}
	var out []inventory.Transaction
	for i := len(l.store.txLog) - 1; i >= 0 && len(out) < limit; i-- {
		tx := l.store.txLog[i]
		if tx.RetailerID == retailerID && tx.ProductID == productID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// hasTerminalEntry reports whether the log already holds a release or confirm
// entry for the order, making further release/confirm calls no-ops.
func (s *Store) hasTerminalEntry(orderID string) bool {
	if orderID == "" {
		return false
	}
	for _, tx := range s.txLog {
		if tx.OrderID == orderID && (tx.Type == inventory.TxRelease || tx.Type == inventory.TxConfirm) {
			return true
		}
	}
	return false
}

// mutate applies apply to the item and appends the paired transaction entry.
// The caller holds the store mutex.
func (s *Store) mutate(retailerID, productID string, typ inventory.TransactionType, qty int, orderID, actor, reason string, apply func(*inventory.Item)) {
	key := itemKey{retailerID, productID}
	it, ok := s.items[key]
	if !ok {
		it = inventory.Item{RetailerID: retailerID, ProductID: productID}
	}

	prevTotal, prevReserved := it.TotalStock, it.ReservedStock
	apply(&it)
	it.UpdatedAt = s.now()
	s.items[key] = it

	s.txLog = append(s.txLog, inventory.Transaction{
		ID:           uuid.New().String(),
		RetailerID:   retailerID,
		ProductID:    productID,
		Type:         typ,
		Quantity:     qty,
		PrevTotal:    prevTotal,
		NewTotal:     it.TotalStock,
		PrevReserved: prevReserved,
		NewReserved:  it.ReservedStock,
		OrderID:      orderID,
		Actor:        actor,
		Reason:       reason,
		CreatedAt:    it.UpdatedAt,
	})
}
