package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
)

type stockItemResponse struct {
	ProductID      string    `json:"product_id"`
	TotalStock     int       `json:"total_stock"`
	ReservedStock  int       `json:"reserved_stock"`
	AvailableStock int       `json:"available_stock"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (h *Handler) retailerStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.RetailerStock(r.Context(), chi.URLParam(r, "retailerID"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	out := make([]stockItemResponse, len(items))
	for i, it := range items {
		out[i] = stockItemResponse{
			ProductID:      it.ProductID,
			TotalStock:     it.TotalStock,
			ReservedStock:  it.ReservedStock,
			AvailableStock: it.AvailableStock(),
			UpdatedAt:      it.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type transactionResponse struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	Type         string    `json:"type"`
	Quantity     int       `json:"quantity"`
	PrevTotal    int       `json:"prev_total"`
	NewTotal     int       `json:"new_total"`
	PrevReserved int       `json:"prev_reserved"`
	NewReserved  int       `json:"new_reserved"`
	OrderID      string    `json:"order_id,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *Handler) itemTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	txs, err := h.service.ItemTransactions(r.Context(),
		chi.URLParam(r, "retailerID"), chi.URLParam(r, "productID"), limit)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	out := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		out[i] = transactionResponse{
			ID:           tx.ID,
			ProductID:    tx.ProductID,
			Type:         string(tx.Type),
			Quantity:     tx.Quantity,
			PrevTotal:    tx.PrevTotal,
			NewTotal:     tx.NewTotal,
			PrevReserved: tx.PrevReserved,
			NewReserved:  tx.NewReserved,
			OrderID:      tx.OrderID,
			Actor:        tx.Actor,
			Reason:       tx.Reason,
			CreatedAt:    tx.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type stockInRequest struct {
	Items  []orderLineReq `json:"items"`
	Actor  string         `json:"actor"`
	Reason string         `json:"reason"`
}

func (h *Handler) stockIn(w http.ResponseWriter, r *http.Request) {
	var req stockInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lines := make([]inventory.Line, len(req.Items))
	for i, it := range req.Items {
		lines[i] = inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	retailerID := chi.URLParam(r, "retailerID")
	if err := h.service.StockIn(r.Context(), retailerID, lines, req.Actor, req.Reason); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adjustStockRequest struct {
	ProductID string `json:"product_id"`
	NewTotal  int    `json:"new_total"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	if req.NewTotal < 0 {
		writeError(w, http.StatusBadRequest, "new_total must not be negative")
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	retailerID := chi.URLParam(r, "retailerID")
	if err := h.service.AdjustStock(r.Context(), retailerID, req.ProductID, req.NewTotal, req.Actor, req.Reason); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
