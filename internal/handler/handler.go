// Package handler exposes the fulfillment service over HTTP using chi.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
	"github.com/Shubhambn/dairy9-fulfillment/internal/idempotency"
)

// Handler translates HTTP requests to fulfillment service calls. All business
// rules live in the service; the handler only decodes, delegates and encodes.
type Handler struct {
	service *fulfillment.Service
	idem    *idempotency.Store
	sec     *Security
}

// NewHandler constructs a Handler. idem may be nil, in which case the
// Idempotency-Key header is ignored. sec may be nil, which leaves the
// management endpoints open; only suitable for tests.
func NewHandler(service *fulfillment.Service, idem *idempotency.Store, sec *Security) *Handler {
	return &Handler{service: service, idem: idem, sec: sec}
}

// Routes registers all API routes on r. Stock management endpoints sit behind
// the API key middleware; customer-facing order endpoints do not.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
			r.Get("/{orderID}", h.getOrder)
			r.Patch("/{orderID}/status", h.updateOrderStatus)
			r.Post("/{orderID}/cancel", h.cancelOrder)
		})
		r.Route("/retailers", func(r chi.Router) {
			r.Get("/nearest", h.nearestRetailer)
			r.Route("/{retailerID}/inventory", func(r chi.Router) {
				r.Get("/", h.retailerStock)
				r.Group(func(r chi.Router) {
					if h.sec != nil {
						r.Use(h.sec.Middleware)
					}
					r.Post("/stock-in", h.stockIn)
					r.Post("/adjustments", h.adjustStock)
					r.Get("/{productID}/transactions", h.itemTransactions)
				})
			})
		})
	})
}

// Router builds a standalone router with the API routes, for tests.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}
