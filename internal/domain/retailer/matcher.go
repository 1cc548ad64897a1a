package retailer

import (
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/geo"
)

// distanceToleranceKm is the window within which two candidate distances are
// considered equal; ties are then broken by service radius and ID so matching
// stays deterministic.
const distanceToleranceKm = 1e-6

// Match is the result of a successful retailer search.
type Match struct {
	Retailer   Profile
	DistanceKm float64
}

// FindBestRetailer selects the closest active retailer that can serve the
// delivery coordinate. A candidate qualifies when its distance to the delivery
// point is within both its own service radius and maxSearchRadiusKm.
//
// Equidistant candidates are ordered by larger service radius, then by
// lexicographically smaller ID. The function is side-effect free.
func FindBestRetailer(delivery geo.Coordinate, candidates []Profile, maxSearchRadiusKm float64) (*Match, error) {
	if err := delivery.Validate(); err != nil {
		return nil, err
	}

	var best *Match
	for _, r := range candidates {
		if !r.Active {
			continue
		}
		if r.Location.Validate() != nil {
			continue
		}

		d := geo.Distance(delivery, r.Location)
		if d > r.ServiceRadiusKm || d > maxSearchRadiusKm {
			continue
		}

		m := Match{Retailer: r, DistanceKm: d}
		if best == nil || closerThan(m, *best) {
			best = &m
		}
	}

	if best == nil {
		return nil, ErrNoRetailerInRange
	}
	return best, nil
}

// closerThan reports whether a should be preferred over b.
func closerThan(a, b Match) bool {
	if a.DistanceKm < b.DistanceKm-distanceToleranceKm {
		return true
	}
	if a.DistanceKm > b.DistanceKm+distanceToleranceKm {
		return false
	}
	// Equidistant within tolerance.
	if a.Retailer.ServiceRadiusKm != b.Retailer.ServiceRadiusKm {
		return a.Retailer.ServiceRadiusKm > b.Retailer.ServiceRadiusKm
	}
	return a.Retailer.ID < b.Retailer.ID
}
