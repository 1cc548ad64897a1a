package fulfillment_test

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/geo"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/order"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/product"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/retailer"
	"github.com/Shubhambn/dairy9-fulfillment/internal/storage/memory"
)

// --- Helpers ---

const (
	testRetailer = "ret-central"
	testMilk     = "milk-1l"
	testCurd     = "curd-400g"
)

// nearDelivery is ~1.1 km from the test retailer, well inside its radius.
var nearDelivery = geo.Coordinate{Latitude: 28.64, Longitude: 77.2167}

func newTestEnv(t *testing.T) (*memory.Store, *fulfillment.Service) {
	t.Helper()

	store := memory.NewStore()
	store.AddRetailer(retailer.Profile{
		ID:              testRetailer,
		Name:            "Central Store",
		Active:          true,
		Location:        geo.Coordinate{Latitude: 28.63, Longitude: 77.2167},
		ServiceRadiusKm: 8,
	})
	store.AddProduct(product.Product{
		ID: testMilk, Name: "Milk 1L", Price: decimal.RequireFromString("62.00"), Active: true,
	})
	store.AddProduct(product.Product{
		ID: testCurd, Name: "Curd 400g", Price: decimal.RequireFromString("35.00"), Active: true,
	})
	store.SetStock(testRetailer, testMilk, 10, 0)
	store.SetStock(testRetailer, testCurd, 5, 0)

	coord := fulfillment.NewCoordinator(fulfillment.CoordinatorConfig{}, store, store.Ledger(), nil)
	svc := fulfillment.NewService(fulfillment.ServiceConfig{MaxSearchRadiusKm: 50},
		store, coord, store.Orders(), store.Retailers(), store.Products(), store.Ledger(), nil)
	return store, svc
}

func placeTestOrder(t *testing.T, svc *fulfillment.Service, items ...fulfillment.LineRequest) *order.Order {
	t.Helper()

	result, err := svc.PlaceOrder(context.Background(), fulfillment.PlaceOrderRequest{
		CustomerID: "cust-1",
		Items:      items,
		Delivery:   nearDelivery,
	})
	require.NoError(t, err)
	return result.Order
}

// --- Placement ---

func TestPlaceOrder_ReservesStock(t *testing.T) {
	store, svc := newTestEnv(t)

	result, err := svc.PlaceOrder(context.Background(), fulfillment.PlaceOrderRequest{
		CustomerID: "cust-1",
		Items: []fulfillment.LineRequest{
			{ProductID: testMilk, Quantity: 3},
			{ProductID: testCurd, Quantity: 2},
		},
		Delivery: nearDelivery,
	})
	require.NoError(t, err)

	o := result.Order
	assert.Equal(t, testRetailer, o.RetailerID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.ReservationReserved, o.ReservationStatus)
	require.NotNil(t, o.ReservedAt)
	assert.Equal(t, "256.00", o.Total.StringFixed(2))
	for _, it := range o.Items {
		assert.True(t, it.Reserved)
		assert.Equal(t, it.Quantity, it.ReservedQuantity)
	}

	milk, ok := store.Item(testRetailer, testMilk)
	require.True(t, ok)
	assert.Equal(t, 10, milk.TotalStock)
	assert.Equal(t, 3, milk.ReservedStock)
	assert.Equal(t, 7, milk.AvailableStock())

	// A reserve entry lands in the transaction log for each line.
	txs, err := store.Ledger().Transactions(context.Background(), testRetailer, testMilk, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, inventory.TxReserve, txs[0].Type)
	assert.Equal(t, o.ID, txs[0].OrderID)
}

func TestPlaceOrder_InsufficientStock_NoOrderSurvives(t *testing.T) {
	store, svc := newTestEnv(t)

	_, err := svc.PlaceOrder(context.Background(), fulfillment.PlaceOrderRequest{
		CustomerID: "cust-1",
		Items: []fulfillment.LineRequest{
			{ProductID: testMilk, Quantity: 2},
			{ProductID: testCurd, Quantity: 6},
		},
		Delivery: nearDelivery,
	})

	var isErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	require.Len(t, isErr.Shortfalls, 1)
	assert.Equal(t, testCurd, isErr.Shortfalls[0].ProductID)
	assert.Equal(t, 6, isErr.Shortfalls[0].Requested)
	assert.Equal(t, 5, isErr.Shortfalls[0].Available)

	// Nothing was reserved and no order row exists.
	milk, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 0, milk.ReservedStock)
	list, err := svc.ListOrders(context.Background(), "cust-1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPlaceOrder_ValidationErrors(t *testing.T) {
	_, svc := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     fulfillment.PlaceOrderRequest
		errIs   error
		errAs   any
		errText string
	}{
		{
			name:  "empty items",
			req:   fulfillment.PlaceOrderRequest{CustomerID: "c", Delivery: nearDelivery},
			errIs: fulfillment.ErrEmptyItems,
		},
		{
			name: "zero quantity",
			req: fulfillment.PlaceOrderRequest{
				CustomerID: "c",
				Items:      []fulfillment.LineRequest{{ProductID: testMilk, Quantity: 0}},
				Delivery:   nearDelivery,
			},
			errAs: new(*fulfillment.InvalidQuantityError),
		},
		{
			name: "unknown product",
			req: fulfillment.PlaceOrderRequest{
				CustomerID: "c",
				Items:      []fulfillment.LineRequest{{ProductID: "nope", Quantity: 1}},
				Delivery:   nearDelivery,
			},
			errAs: new(*fulfillment.ProductNotFoundError),
		},
		{
			name: "invalid coordinates",
			req: fulfillment.PlaceOrderRequest{
				CustomerID: "c",
				Items:      []fulfillment.LineRequest{{ProductID: testMilk, Quantity: 1}},
				Delivery:   geo.Coordinate{Latitude: 91, Longitude: 0},
			},
			errIs: geo.ErrInvalidCoordinates,
		},
		{
			name: "out of range delivery",
			req: fulfillment.PlaceOrderRequest{
				CustomerID: "c",
				Items:      []fulfillment.LineRequest{{ProductID: testMilk, Quantity: 1}},
				Delivery:   geo.Coordinate{Latitude: 19.076, Longitude: 72.8777},
			},
			errIs: retailer.ErrNoRetailerInRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(ctx, tt.req)
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
			if tt.errAs != nil {
				assert.ErrorAs(t, err, tt.errAs)
			}
		})
	}
}

func TestPlaceOrder_InactiveProductRejected(t *testing.T) {
	store, svc := newTestEnv(t)
	store.AddProduct(product.Product{
		ID: "ghee", Name: "Ghee", Price: decimal.RequireFromString("340.00"), Active: false,
	})
	store.SetStock(testRetailer, "ghee", 10, 0)

	_, err := svc.PlaceOrder(context.Background(), fulfillment.PlaceOrderRequest{
		CustomerID: "c",
		Items:      []fulfillment.LineRequest{{ProductID: "ghee", Quantity: 1}},
		Delivery:   nearDelivery,
	})
	var puErr *fulfillment.ProductUnavailableError
	require.ErrorAs(t, err, &puErr)
	assert.Equal(t, "ghee", puErr.ProductID)
}

// --- Cancellation ---

func TestCancelOrder_ReleasesReservation(t *testing.T) {
	store, svc := newTestEnv(t)
	o := placeTestOrder(t, svc, fulfillment.LineRequest{ProductID: testMilk, Quantity: 4})

	cancelled, err := svc.CancelOrder(context.Background(), o.ID, "cust-1", "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, order.ReservationReleased, cancelled.ReservationStatus)
	require.NotNil(t, cancelled.ReleasedAt)

	milk, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 10, milk.TotalStock)
	assert.Equal(t, 0, milk.ReservedStock)

	txs, err := store.Ledger().Transactions(context.Background(), testRetailer, testMilk, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, inventory.TxRelease, txs[0].Type)
	assert.Equal(t, "changed my mind", txs[0].Reason)
}

func TestCancelOrder_TwiceRejected(t *testing.T) {
	store, svc := newTestEnv(t)
	o := placeTestOrder(t, svc, fulfillment.LineRequest{ProductID: testMilk, Quantity: 4})

	_, err := svc.CancelOrder(context.Background(), o.ID, "cust-1", "first")
	require.NoError(t, err)

	_, err = svc.CancelOrder(context.Background(), o.ID, "cust-1", "second")
	var itErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, order.StatusCancelled, itErr.From)

	// Stock released exactly once.
	milk, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 0, milk.ReservedStock)
}

func TestCancelOrder_NotFound(t *testing.T) {
	_, svc := newTestEnv(t)
	_, err := svc.CancelOrder(context.Background(), "missing", "x", "y")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

// --- Status machine + delivery ---

func advanceTo(t *testing.T, svc *fulfillment.Service, orderID string, statuses ...order.Status) *order.Order {
	t.Helper()

	var o *order.Order
	var err error
	for _, st := range statuses {
		o, err = svc.UpdateOrderStatus(context.Background(), orderID, st, "ops")
		require.NoError(t, err)
	}
	return o
}

func TestUpdateOrderStatus_DeliveredDeductsStockOnce(t *testing.T) {
	store, svc := newTestEnv(t)
	o := placeTestOrder(t, svc, fulfillment.LineRequest{ProductID: testMilk, Quantity: 4})

	delivered := advanceTo(t, svc, o.ID,
		order.StatusConfirmed, order.StatusPreparing, order.StatusOutForDelivery, order.StatusDelivered)

	assert.Equal(t, order.StatusDelivered, delivered.Status)
	assert.Equal(t, order.ReservationDelivered, delivered.ReservationStatus)
	require.NotNil(t, delivered.DeliveredAt)

	milk, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 6, milk.TotalStock)
	assert.Equal(t, 0, milk.ReservedStock)

	// Delivered is terminal: repeating the transition is rejected and stock is
	// not deducted a second time.
	_, err := svc.UpdateOrderStatus(context.Background(), o.ID, order.StatusDelivered, "ops")
	var itErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &itErr)

	milk, _ = store.Item(testRetailer, testMilk)
	assert.Equal(t, 6, milk.TotalStock)
}

func TestUpdateOrderStatus_SkippingStatesRejected(t *testing.T) {
	store, svc := newTestEnv(t)
	o := placeTestOrder(t, svc, fulfillment.LineRequest{ProductID: testMilk, Quantity: 2})

	_, err := svc.UpdateOrderStatus(context.Background(), o.ID, order.StatusDelivered, "ops")
	var itErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, order.StatusPending, itErr.From)
	assert.Equal(t, order.StatusDelivered, itErr.To)

	// The failed transition must not touch the reservation.
	milk, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 2, milk.ReservedStock)
	current, err := svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ReservationReserved, current.ReservationStatus)
}

func TestUpdateOrderStatus_CancelledReleasesStock(t *testing.T) {
	store, svc := newTestEnv(t)
	o := placeTestOrder(t, svc, fulfillment.LineRequest{ProductID: testMilk, Quantity: 2})

	updated, err := svc.UpdateOrderStatus(context.Background(), o.ID, order.StatusCancelled, "ops")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, updated.Status)
	assert.Equal(t, order.ReservationReleased, updated.ReservationStatus)

	milk, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 0, milk.ReservedStock)
}

func TestUpdateOrderStatus_CancellationWindowCloses(t *testing.T) {
	_, svc := newTestEnv(t)
	o := placeTestOrder(t, svc, fulfillment.LineRequest{ProductID: testMilk, Quantity: 1})
	advanceTo(t, svc, o.ID, order.StatusConfirmed, order.StatusPreparing)

	_, err := svc.UpdateOrderStatus(context.Background(), o.ID, order.StatusCancelled, "ops")
	var itErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, order.StatusPreparing, itErr.From)
}

// --- Coordinator guards ---

func TestCoordinator_ReserveForOrderSucceeds(t *testing.T) {
	store, _ := newTestEnv(t)
	coord := fulfillment.NewCoordinator(fulfillment.CoordinatorConfig{}, store, store.Ledger(), nil)

	o := &order.Order{
		ID:         "manual-reserve-1",
		CustomerID: "cust-1",
		RetailerID: testRetailer,
		Items:      []order.Item{{ProductID: testMilk, Quantity: 3}},
	}
	require.NoError(t, coord.ReserveForOrder(context.Background(), o, "api"))

	assert.Equal(t, order.ReservationReserved, o.ReservationStatus)
	require.NotNil(t, o.ReservedAt)

	// The reserved state is persisted, not just mutated in memory.
	stored, err := store.Orders().GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ReservationReserved, stored.ReservationStatus)

	milk, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 10, milk.TotalStock)
	assert.Equal(t, 3, milk.ReservedStock)
}

func TestCoordinator_ReleaseAfterDeliveryRejected(t *testing.T) {
	store, svc := newTestEnv(t)
	o := placeTestOrder(t, svc, fulfillment.LineRequest{ProductID: testMilk, Quantity: 2})
	advanceTo(t, svc, o.ID,
		order.StatusConfirmed, order.StatusPreparing, order.StatusOutForDelivery, order.StatusDelivered)

	coord := fulfillment.NewCoordinator(fulfillment.CoordinatorConfig{}, store, store.Ledger(), nil)
	_, err := coord.ReleaseForOrder(context.Background(), o.ID, "ops", "late cancel")
	assert.ErrorIs(t, err, fulfillment.ErrReservationAlreadyTerminal)

	// The delivered deduction stands.
	milk, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 8, milk.TotalStock)
	assert.Equal(t, 0, milk.ReservedStock)
}

func TestCoordinator_ConfirmWithoutReservationRejected(t *testing.T) {
	store, _ := newTestEnv(t)
	coord := fulfillment.NewCoordinator(fulfillment.CoordinatorConfig{}, store, store.Ledger(), nil)

	o := &order.Order{
		ID:         "manual-1",
		CustomerID: "cust-1",
		RetailerID: testRetailer,
		Items:      []order.Item{{ProductID: testMilk, Quantity: 1}},
	}
	require.NoError(t, store.Orders().Create(context.Background(), o))

	_, err := coord.ConfirmDeliveryForOrder(context.Background(), o.ID, "ops")
	assert.ErrorIs(t, err, fulfillment.ErrNotReserved)
}

// --- Concurrency ---

func TestPlaceOrder_ConcurrentReservationsNeverOversell(t *testing.T) {
	const (
		stock   = 5
		orders  = 20
		perItem = 1
	)

	store, svc := newTestEnv(t)
	store.SetStock(testRetailer, testMilk, stock, 0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		shortages int
	)
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), fulfillment.PlaceOrderRequest{
				CustomerID: "cust-racing",
				Items:      []fulfillment.LineRequest{{ProductID: testMilk, Quantity: perItem}},
				Delivery:   nearDelivery,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			default:
				var isErr *inventory.InsufficientStockError
				require.True(t, errors.As(err, &isErr), "unexpected error: %v", err)
				shortages++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, succeeded)
	assert.Equal(t, orders-stock, shortages)

	milk, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, stock, milk.ReservedStock)
	assert.LessOrEqual(t, milk.ReservedStock, milk.TotalStock)

	list, err := svc.ListOrders(context.Background(), "cust-racing", orders)
	require.NoError(t, err)
	assert.Len(t, list, stock)
}
