package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/geo"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/order"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/product"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/retailer"
)

// Sentinel errors for order composition.
var ErrEmptyItems = errors.New("items required")

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductUnavailableError indicates a product exists but is not orderable.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// ServiceConfig holds non-dependency configuration for the Service.
type ServiceConfig struct {
	// MaxSearchRadiusKm caps the retailer search regardless of individual
	// service radii.
	MaxSearchRadiusKm float64
}

func (c *ServiceConfig) setDefaults() {
	if c.MaxSearchRadiusKm <= 0 {
		c.MaxSearchRadiusKm = 50
	}
}

// Service is the transport-agnostic entry point of the fulfillment core:
// order placement, status transitions, cancellation and the ledger read and
// stock management operations.
type Service struct {
	cfg       ServiceConfig
	uow       UnitOfWork
	coord     *Coordinator
	orders    order.Repository
	retailers retailer.Repository
	products  product.Repository
	ledger    inventory.Ledger
	events    EventSink
	now       func() time.Time
}

// NewService constructs a Service with the required dependencies. The orders
// repository and ledger are used for reads outside units of work.
func NewService(
	cfg ServiceConfig,
	uow UnitOfWork,
	coord *Coordinator,
	orders order.Repository,
	retailers retailer.Repository,
	products product.Repository,
	ledger inventory.Ledger,
	events EventSink,
) *Service {
	cfg.setDefaults()
	if events == nil {
		events = NopSink{}
	}
	return &Service{
		cfg:       cfg,
		uow:       uow,
		coord:     coord,
		orders:    orders,
		retailers: retailers,
		products:  products,
		ledger:    ledger,
		events:    events,
		now:       time.Now,
	}
}

// LineRequest is a requested line item at order composition time.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order. The delivery
// coordinate arrives pre-resolved; the core only validates bounds.
type PlaceOrderRequest struct {
	CustomerID string
	Items      []LineRequest
	Delivery   geo.Coordinate
}

// PlaceOrderResult holds the outcome of a successfully placed order.
type PlaceOrderResult struct {
	Order      *order.Order
	Retailer   retailer.Profile
	DistanceKm float64
}

// PlaceOrder validates the request, matches the nearest capable retailer,
// prices the items from the catalog, and reserves stock atomically with order
// persistence. A failed reservation leaves no order behind.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	if err := req.Delivery.Validate(); err != nil {
		return nil, err
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	items := make([]order.Item, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !p.Active {
			return nil, &ProductUnavailableError{ProductID: item.ProductID}
		}
		items[i] = order.Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	candidates, err := s.retailers.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list retailers")
	}
	match, err := retailer.FindBestRetailer(req.Delivery, candidates, s.cfg.MaxSearchRadiusKm)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		ID:               uuid.New().String(),
		CustomerID:       req.CustomerID,
		RetailerID:       match.Retailer.ID,
		Items:            items,
		DeliveryLocation: req.Delivery,
		Total:            total.Round(2),
		CreatedAt:        s.now(),
	}

	if err := s.coord.ReserveForOrder(ctx, o, req.CustomerID); err != nil {
		return nil, err
	}

	return &PlaceOrderResult{
		Order:      o,
		Retailer:   match.Retailer,
		DistanceKm: match.DistanceKm,
	}, nil
}

// UpdateOrderStatus advances the order status machine. Entering delivered
// confirms the stock deduction and entering cancelled releases the
// reservation, both in the same atomic unit as the status write; if the
// inventory side fails the status transition fails with it.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, newStatus order.Status, actor string) (*order.Order, error) {
	if !newStatus.Valid() {
		return nil, &order.InvalidTransitionError{OrderID: orderID, To: newStatus}
	}
	if newStatus == order.StatusCancelled {
		return s.CancelOrder(ctx, orderID, actor, "status update")
	}

	var updated *order.Order
	var delivered bool
	err := s.coord.retryOnConflict(ctx, func() error {
		delivered = false
		return s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			o, err := tx.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if !order.CanTransition(o.Status, newStatus) {
				return &order.InvalidTransitionError{OrderID: o.ID, From: o.Status, To: newStatus}
			}
			if newStatus == order.StatusDelivered {
				if err := s.coord.confirmTx(ctx, tx, o, actor); err != nil {
					return err
				}
				delivered = true
			}
			o.Status = newStatus
			if err := tx.Orders().Update(ctx, o); err != nil {
				return errors.Wrap(err, "update order")
			}
			updated = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if delivered {
		s.events.DeliveryConfirmed(ctx, eventFor(updated))
	}
	return updated, nil
}

// CancelOrder cancels an order and releases its reservation in one atomic
// unit. Cancellation is only reachable from pending and confirmed.
func (s *Service) CancelOrder(ctx context.Context, orderID, actor, reason string) (*order.Order, error) {
	var cancelled *order.Order
	err := s.coord.retryOnConflict(ctx, func() error {
		return s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			o, err := tx.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if !order.CanTransition(o.Status, order.StatusCancelled) {
				return &order.InvalidTransitionError{OrderID: o.ID, From: o.Status, To: order.StatusCancelled}
			}
			if err := s.coord.releaseTx(ctx, tx, o, actor, reason); err != nil {
				return err
			}
			o.Status = order.StatusCancelled
			if err := tx.Orders().Update(ctx, o); err != nil {
				return errors.Wrap(err, "update order")
			}
			cancelled = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.events.ReservationReleased(ctx, eventFor(cancelled), reason)
	return cancelled, nil
}

// GetOrder returns an order by ID.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// ListOrders returns a customer's most recent orders.
func (s *Service) ListOrders(ctx context.Context, customerID string, limit int) ([]order.Order, error) {
	return s.orders.ListByCustomer(ctx, customerID, limit)
}

// NearestRetailer previews the retailer that would serve a delivery
// coordinate, without touching any order or stock state.
func (s *Service) NearestRetailer(ctx context.Context, delivery geo.Coordinate) (*retailer.Match, error) {
	candidates, err := s.retailers.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list retailers")
	}
	return retailer.FindBestRetailer(delivery, candidates, s.cfg.MaxSearchRadiusKm)
}

// RetailerStock returns the current inventory items for a retailer.
func (s *Service) RetailerStock(ctx context.Context, retailerID string) ([]inventory.Item, error) {
	if _, err := s.retailers.GetByID(ctx, retailerID); err != nil {
		return nil, err
	}
	return s.ledger.Stock(ctx, retailerID)
}

// ItemTransactions returns the transaction history for one inventory item,
// newest first.
func (s *Service) ItemTransactions(ctx context.Context, retailerID, productID string, limit int) ([]inventory.Transaction, error) {
	if _, err := s.retailers.GetByID(ctx, retailerID); err != nil {
		return nil, err
	}
	return s.ledger.Transactions(ctx, retailerID, productID, limit)
}

// StockIn records received stock for a retailer in one atomic unit.
func (s *Service) StockIn(ctx context.Context, retailerID string, lines []inventory.Line, actor, reason string) error {
	if len(lines) == 0 {
		return ErrEmptyItems
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: l.ProductID}
		}
	}
	if _, err := s.retailers.GetByID(ctx, retailerID); err != nil {
		return err
	}
	return s.coord.retryOnConflict(ctx, func() error {
		return s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Ledger().StockIn(ctx, retailerID, lines, actor, reason)
		})
	})
}

// AdjustStock sets an item's total stock to newTotal in one atomic unit.
func (s *Service) AdjustStock(ctx context.Context, retailerID, productID string, newTotal int, actor, reason string) error {
	if _, err := s.retailers.GetByID(ctx, retailerID); err != nil {
		return err
	}
	return s.coord.retryOnConflict(ctx, func() error {
		return s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Ledger().Adjust(ctx, retailerID, productID, newTotal, actor, reason)
		})
	})
}
