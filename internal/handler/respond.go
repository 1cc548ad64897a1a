package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/geo"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/order"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/retailer"
)

// errorResponse is the uniform error body for all endpoints.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// Shortfalls is populated for insufficient-stock rejections.
	Shortfalls []shortfall `json:"shortfalls,omitempty"`
}

type shortfall struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps domain errors onto HTTP statuses. Unknown errors are
// logged and reported as 500 without leaking internals.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fulfillment.ErrEmptyItems),
		errors.Is(err, geo.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, retailer.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, retailer.ErrNoRetailerInRange):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, fulfillment.ErrNotReserved),
		errors.Is(err, fulfillment.ErrReservationAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, inventory.ErrConcurrencyConflict):
		writeError(w, http.StatusServiceUnavailable, "inventory busy, retry later")
		return
	case errors.Is(err, inventory.ErrAdjustBelowReserved):
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	var (
		iqErr  *fulfillment.InvalidQuantityError
		pnfErr *fulfillment.ProductNotFoundError
		puErr  *fulfillment.ProductUnavailableError
		itErr  *order.InvalidTransitionError
		isErr  *inventory.InsufficientStockError
	)
	switch {
	case errors.As(err, &iqErr):
		writeError(w, http.StatusBadRequest, iqErr.Error())
	case errors.As(err, &pnfErr):
		writeError(w, http.StatusUnprocessableEntity, pnfErr.Error())
	case errors.As(err, &puErr):
		writeError(w, http.StatusUnprocessableEntity, puErr.Error())
	case errors.As(err, &itErr):
		writeError(w, http.StatusConflict, itErr.Error())
	case errors.As(err, &isErr):
		resp := errorResponse{
			Code:       http.StatusConflict,
			Message:    "insufficient stock",
			Shortfalls: make([]shortfall, len(isErr.Shortfalls)),
		}
		for i, s := range isErr.Shortfalls {
			resp.Shortfalls[i] = shortfall{
				ProductID: s.ProductID,
				Requested: s.Requested,
				Available: s.Available,
			}
		}
		writeJSON(w, http.StatusConflict, resp)
	default:
		zctx.From(ctx).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
