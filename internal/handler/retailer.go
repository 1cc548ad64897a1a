package handler

import (
	"net/http"
	"strconv"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/geo"
)

type nearestRetailerResponse struct {
	RetailerID      string  `json:"retailer_id"`
	Name            string  `json:"name"`
	DistanceKm      float64 `json:"distance_km"`
	ServiceRadiusKm float64 `json:"service_radius_km"`
}

// nearestRetailer previews the retailer matching without placing an order.
func (h *Handler) nearestRetailer(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("latitude"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "latitude must be a number")
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("longitude"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "longitude must be a number")
		return
	}

	match, err := h.service.NearestRetailer(r.Context(), geo.Coordinate{Latitude: lat, Longitude: lon})
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, nearestRetailerResponse{
		RetailerID:      match.Retailer.ID,
		Name:            match.Retailer.Name,
		DistanceKm:      match.DistanceKm,
		ServiceRadiusKm: match.Retailer.ServiceRadiusKm,
	})
}
