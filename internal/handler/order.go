package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/geo"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/order"
)

type coordinatePayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type placeOrderRequest struct {
	CustomerID string            `json:"customer_id"`
	Items      []orderLineReq    `json:"items"`
	Delivery   coordinatePayload `json:"delivery_location"`
}

type orderLineReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderResponse struct {
	ID                string            `json:"id"`
	CustomerID        string            `json:"customer_id"`
	RetailerID        string            `json:"retailer_id"`
	Items             []order.Item      `json:"items"`
	DeliveryLocation  coordinatePayload `json:"delivery_location"`
	Status            string            `json:"status"`
	ReservationStatus string            `json:"reservation_status"`
	Total             decimal.Decimal   `json:"total"`
	CreatedAt         time.Time         `json:"created_at"`
	ReservedAt        *time.Time        `json:"reserved_at,omitempty"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
	ReleasedAt        *time.Time        `json:"released_at,omitempty"`
}

type placeOrderResponse struct {
	Order      orderResponse `json:"order"`
	RetailerID string        `json:"retailer_id"`
	Retailer   string        `json:"retailer_name"`
	DistanceKm float64       `json:"distance_km"`
	Idempotent bool          `json:"idempotent,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		RetailerID: o.RetailerID,
		Items:      o.Items,
		DeliveryLocation: coordinatePayload{
			Latitude:  o.DeliveryLocation.Latitude,
			Longitude: o.DeliveryLocation.Longitude,
		},
		Status:            string(o.Status),
		ReservationStatus: string(o.ReservationStatus),
		Total:             o.Total,
		CreatedAt:         o.CreatedAt,
		ReservedAt:        o.ReservedAt,
		DeliveredAt:       o.DeliveredAt,
		ReleasedAt:        o.ReleasedAt,
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// A replayed Idempotency-Key returns the original order without touching
	// stock again.
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		orderID, err := h.idem.Lookup(ctx, idemKey)
		if err != nil {
			zctx.From(ctx).Warn("idempotency lookup failed", zap.Error(err))
		} else if orderID != "" {
			existing, err := h.service.GetOrder(ctx, orderID)
			if err != nil {
				writeDomainError(ctx, w, err)
				return
			}
			writeJSON(w, http.StatusOK, placeOrderResponse{
				Order:      toOrderResponse(existing),
				RetailerID: existing.RetailerID,
				Idempotent: true,
			})
			return
		}
	}

	items := make([]fulfillment.LineRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = fulfillment.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	result, err := h.service.PlaceOrder(ctx, fulfillment.PlaceOrderRequest{
		CustomerID: req.CustomerID,
		Items:      items,
		Delivery: geo.Coordinate{
			Latitude:  req.Delivery.Latitude,
			Longitude: req.Delivery.Longitude,
		},
	})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	if idemKey != "" && h.idem != nil {
		if err := h.idem.Record(ctx, idemKey, result.Order.ID); err != nil {
			zctx.From(ctx).Warn("idempotency record failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, placeOrderResponse{
		Order:      toOrderResponse(result.Order),
		RetailerID: result.Retailer.ID,
		Retailer:   result.Retailer.Name,
		DistanceKm: result.DistanceKm,
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.service.ListOrders(r.Context(), customerID, limit)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	out := make([]orderResponse, len(list))
	for i := range list {
		out[i] = toOrderResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newStatus := order.Status(req.Status)
	if !newStatus.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(req.Status))
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), newStatus, actor)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type cancelOrderRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	// Body is optional for cancellation.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Actor == "" {
		req.Actor = "api"
	}
	if req.Reason == "" {
		req.Reason = "customer cancellation"
	}

	o, err := h.service.CancelOrder(r.Context(), chi.URLParam(r, "orderID"), req.Actor, req.Reason)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
