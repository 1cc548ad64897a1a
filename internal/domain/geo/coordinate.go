// Package geo provides the coordinate value type and great-circle distance
// used for retailer matching.
package geo

import (
	"math"

	"github.com/go-faster/errors"
)

// ErrInvalidCoordinates is returned when a latitude/longitude pair is outside
// standard geographic bounds.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Coordinate is an immutable latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// NewCoordinate validates the pair and returns it as a Coordinate.
func NewCoordinate(lat, lng float64) (Coordinate, error) {
	c := Coordinate{Latitude: lat, Longitude: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate checks the coordinate against standard geographic bounds:
// latitude in [-90, 90], longitude in [-180, 180].
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return ErrInvalidCoordinates
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return ErrInvalidCoordinates
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// earthRadiusKm is the mean spherical Earth radius used by Distance.
const earthRadiusKm = 6371.0

// Distance returns the great-circle distance between a and b in kilometers,
// computed with the haversine formula on a spherical Earth. It is pure and
// symmetric; callers are responsible for validating inputs.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
