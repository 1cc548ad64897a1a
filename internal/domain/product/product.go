// Package product exposes the read-only catalog view consumed at order
// composition time. Catalog management itself lives outside the core.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item with its current unit price and availability flag.
type Product struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Active bool
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	List(ctx context.Context) ([]Product, error)
}
