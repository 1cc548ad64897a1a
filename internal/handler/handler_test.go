package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/auth"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/geo"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/product"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/retailer"
	"github.com/Shubhambn/dairy9-fulfillment/internal/storage/memory"
)

// --- Helpers ---

const (
	testRetailer = "ret-central"
	testMilk     = "milk-1l"
)

func newTestHandler(t *testing.T) (*memory.Store, http.Handler) {
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
	store.SetStock(testRetailer, testMilk, 10, 0)

	coord := fulfillment.NewCoordinator(fulfillment.CoordinatorConfig{}, store, store.Ledger(), nil)
	svc := fulfillment.NewService(fulfillment.ServiceConfig{MaxSearchRadiusKm: 50},
		store, coord, store.Orders(), store.Retailers(), store.Products(), store.Ledger(), nil)

	return store, NewHandler(svc, nil, nil).Router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func placeOrderBody(qty int) map[string]any {
	return map[string]any{
		"customer_id": "cust-1",
		"items": []map[string]any{
			{"product_id": testMilk, "quantity": qty},
		},
		"delivery_location": map[string]any{
			"latitude":  28.64,
			"longitude": 77.2167,
		},
	}
}

// --- Orders ---

func TestPlaceOrder_Created(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/orders", placeOrderBody(3))
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeBody[placeOrderResponse](t, rec)
	assert.Equal(t, testRetailer, resp.RetailerID)
	assert.Equal(t, "Central Store", resp.Retailer)
	assert.InDelta(t, 1.11, resp.DistanceKm, 0.05)
	assert.NotEmpty(t, resp.Order.ID)
	assert.Equal(t, "pending", resp.Order.Status)
	assert.Equal(t, "reserved", resp.Order.ReservationStatus)
}

func TestPlaceOrder_InsufficientStockConflict(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/orders", placeOrderBody(11))
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeBody[errorResponse](t, rec)
	require.Len(t, resp.Shortfalls, 1)
	assert.Equal(t, testMilk, resp.Shortfalls[0].ProductID)
	assert.Equal(t, 11, resp.Shortfalls[0].Requested)
	assert.Equal(t, 10, resp.Shortfalls[0].Available)
}

func TestPlaceOrder_BadRequests(t *testing.T) {
	_, h := newTestHandler(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"no items", map[string]any{
			"customer_id":       "c",
			"delivery_location": map[string]any{"latitude": 28.64, "longitude": 77.2167},
		}},
		{"zero quantity", placeOrderBody(0)},
		{"invalid latitude", map[string]any{
			"customer_id":       "c",
			"items":             []map[string]any{{"product_id": testMilk, "quantity": 1}},
			"delivery_location": map[string]any{"latitude": 95.0, "longitude": 77.2167},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPlaceOrder_NoRetailerInRange(t *testing.T) {
	_, h := newTestHandler(t)

	body := placeOrderBody(1)
	body["delivery_location"] = map[string]any{"latitude": 19.076, "longitude": 72.8777}

	rec := doJSON(t, h, http.MethodPost, "/api/orders", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	store, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/orders", placeOrderBody(4))
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decodeBody[placeOrderResponse](t, rec).Order.ID

	for _, status := range []string{"confirmed", "preparing", "out_for_delivery", "delivered"} {
		rec = doJSON(t, h, http.MethodPatch, "/api/orders/"+orderID+"/status",
			map[string]any{"status": status})
		require.Equal(t, http.StatusOK, rec.Code, "transition to %s", status)
	}

	final := decodeBody[orderResponse](t, rec)
	assert.Equal(t, "delivered", final.Status)
	assert.Equal(t, "delivered", final.ReservationStatus)

	it, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 6, it.TotalStock)
	assert.Equal(t, 0, it.ReservedStock)

	// Repeating the terminal transition conflicts.
	rec = doJSON(t, h, http.MethodPatch, "/api/orders/"+orderID+"/status",
		map[string]any{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelOrder_ReleasesOverHTTP(t *testing.T) {
	store, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/orders", placeOrderBody(2))
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decodeBody[placeOrderResponse](t, rec).Order.ID

	rec = doJSON(t, h, http.MethodPost, "/api/orders/"+orderID+"/cancel",
		map[string]any{"reason": "test cancel"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[orderResponse](t, rec)
	assert.Equal(t, "cancelled", resp.Status)
	assert.Equal(t, "released", resp.ReservationStatus)

	it, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 0, it.ReservedStock)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPatch, "/api/orders/any/status",
		map[string]any{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrders_RequiresCustomerID(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Retailers and inventory ---

func TestNearestRetailer_Preview(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/retailers/nearest?latitude=28.64&longitude=77.2167", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[nearestRetailerResponse](t, rec)
	assert.Equal(t, testRetailer, resp.RetailerID)
	assert.InDelta(t, 1.11, resp.DistanceKm, 0.05)
}

func TestNearestRetailer_BadCoordinates(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/retailers/nearest?latitude=abc&longitude=77", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetailerStock_ListsItems(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/retailers/"+testRetailer+"/inventory", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	items := decodeBody[[]stockItemResponse](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, testMilk, items[0].ProductID)
	assert.Equal(t, 10, items[0].AvailableStock)
}

func TestRetailerStock_UnknownRetailer(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/retailers/nope/inventory", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStockInAndTransactions(t *testing.T) {
	store, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/retailers/"+testRetailer+"/inventory/stock-in",
		map[string]any{
			"items":  []map[string]any{{"product_id": testMilk, "quantity": 15}},
			"reason": "morning delivery",
		})
	require.Equal(t, http.StatusNoContent, rec.Code)

	it, _ := store.Item(testRetailer, testMilk)
	assert.Equal(t, 25, it.TotalStock)

	rec = doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/api/retailers/%s/inventory/%s/transactions", testRetailer, testMilk), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	txs := decodeBody[[]transactionResponse](t, rec)
	require.Len(t, txs, 1)
	assert.Equal(t, "stock_in", txs[0].Type)
	assert.Equal(t, "morning delivery", txs[0].Reason)
}

func TestAdjustStock_ConflictBelowReserved(t *testing.T) {
	_, h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/orders", placeOrderBody(6))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/retailers/"+testRetailer+"/inventory/adjustments",
		map[string]any{"product_id": testMilk, "new_total": 3, "reason": "shrinkage"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// --- Security ---

type staticKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (s *staticKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := s.keys[hash]
	if !ok {
		return nil, errors.New("key not found")
	}
	return info, nil
}

func hashKey(pepper, key string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSecurity_ProtectsManagementEndpoints(t *testing.T) {
	store := memory.NewStore()
	store.AddRetailer(retailer.Profile{
		ID: testRetailer, Name: "Central", Active: true,
		Location:        geo.Coordinate{Latitude: 28.63, Longitude: 77.2167},
		ServiceRadiusKm: 8,
	})
	store.AddProduct(product.Product{
		ID: testMilk, Name: "Milk 1L", Price: decimal.RequireFromString("62.00"), Active: true,
	})

	const (
		pepper = "test-pepper"
		apiKey = "ops-key-123"
	)
	keyHash := hashKey(pepper, apiKey)
	repo := &staticKeyRepo{keys: map[string]*auth.APIKeyInfo{
		keyHash: {ID: "k1", KeyHash: keyHash, Name: "ops", Scopes: []string{"manage_stock"}},
	}}

	coord := fulfillment.NewCoordinator(fulfillment.CoordinatorConfig{}, store, store.Ledger(), nil)
	svc := fulfillment.NewService(fulfillment.ServiceConfig{},
		store, coord, store.Orders(), store.Retailers(), store.Products(), store.Ledger(), nil)
	h := NewHandler(svc, nil, NewSecurity(repo, []byte(pepper))).Router()

	body := map[string]any{
		"items": []map[string]any{{"product_id": testMilk, "quantity": 5}},
	}

	// No key.
	rec := doJSON(t, h, http.MethodPost, "/api/retailers/"+testRetailer+"/inventory/stock-in", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key.
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/retailers/"+testRetailer+"/inventory/stock-in", &buf)
	req.Header.Set("X-API-Key", "wrong-key")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct key.
	buf.Reset()
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req = httptest.NewRequest(http.MethodPost, "/api/retailers/"+testRetailer+"/inventory/stock-in", &buf)
	req.Header.Set("X-API-Key", apiKey)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Customer-facing endpoints stay open.
	rec = doJSON(t, h, http.MethodGet, "/api/retailers/"+testRetailer+"/inventory", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
