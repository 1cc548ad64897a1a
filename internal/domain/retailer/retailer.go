// Package retailer holds the retailer directory types and the nearest-retailer
// matcher used during order placement.
package retailer

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/geo"
)

// Sentinel errors for retailer lookups and matching.
var (
	ErrNotFound          = errors.New("retailer not found")
	ErrNoRetailerInRange = errors.New("no retailer in range")
)

// Profile describes a retailer as supplied by the retailer directory.
// It is read-only to the fulfillment core.
type Profile struct {
	ID              string
	Name            string
	Active          bool
	Location        geo.Coordinate
	ServiceRadiusKm float64
}

// Repository defines read operations against the retailer directory.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	ListActive(ctx context.Context) ([]Profile, error)
}
