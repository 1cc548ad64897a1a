package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/retailer"
)

const (
	getRetailerSQL = `SELECT id, name, active, latitude, longitude, service_radius_km
		FROM retailers WHERE id = $1`

	listActiveRetailersSQL = `SELECT id, name, active, latitude, longitude, service_radius_km
		FROM retailers WHERE active ORDER BY id`
)

var _ retailer.Repository = (*RetailerRepository)(nil)

// RetailerRepository implements retailer.Repository backed by PostgreSQL.
type RetailerRepository struct {
	pool *pgxpool.Pool
}

// NewRetailerRepository returns a RetailerRepository that uses the given pool.
func NewRetailerRepository(pool *pgxpool.Pool) *RetailerRepository {
	return &RetailerRepository{pool: pool}
}

// GetByID returns a single retailer profile.
func (r *RetailerRepository) GetByID(ctx context.Context, id string) (*retailer.Profile, error) {
	rows, err := r.pool.Query(ctx, getRetailerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting retailer %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanRetailer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, retailer.ErrNotFound
		}
		return nil, fmt.Errorf("getting retailer %q: %w", id, err)
	}
	return &p, nil
}

// ListActive returns the active retailer set for matching.
func (r *RetailerRepository) ListActive(ctx context.Context) ([]retailer.Profile, error) {
	rows, err := r.pool.Query(ctx, listActiveRetailersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active retailers: %w", err)
	}
	return pgx.CollectRows(rows, scanRetailer)
}

func scanRetailer(row pgx.CollectableRow) (retailer.Profile, error) {
	var p retailer.Profile
	err := row.Scan(
		&p.ID, &p.Name, &p.Active,
		&p.Location.Latitude, &p.Location.Longitude, &p.ServiceRadiusKm,
	)
	return p, err
}
