package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lng     float64
		wantErr bool
	}{
		{name: "valid", lat: 28.6139, lng: 77.2090},
		{name: "extremes", lat: -90, lng: 180},
		{name: "latitude too high", lat: 90.001, lng: 0, wantErr: true},
		{name: "latitude too low", lat: -90.001, lng: 0, wantErr: true},
		{name: "longitude too high", lat: 0, lng: 180.001, wantErr: true},
		{name: "longitude too low", lat: 0, lng: -180.001, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCoordinate(tt.lat, tt.lng)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCoordinates)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lat, c.Latitude)
			assert.Equal(t, tt.lng, c.Longitude)
		})
	}
}

func TestDistance_Identity(t *testing.T) {
	c := Coordinate{Latitude: 28.6139, Longitude: 77.2090}
	assert.Zero(t, Distance(c, c))
}

func TestDistance_Symmetry(t *testing.T) {
	a := Coordinate{Latitude: 28.6139, Longitude: 77.2090}
	b := Coordinate{Latitude: 19.0760, Longitude: 72.8777}
	assert.Equal(t, Distance(a, b), Distance(b, a))
}

func TestDistance_KnownFixtures(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Coordinate
		want  float64
		delta float64
	}{
		{
			// 0.01 degree of latitude at the equator: 6371 * 0.01 * pi/180.
			name:  "hundredth degree latitude at equator",
			a:     Coordinate{Latitude: 0, Longitude: 0},
			b:     Coordinate{Latitude: 0.01, Longitude: 0},
			want:  1.11195,
			delta: 0.01,
		},
		{
			name:  "hundredth degree longitude at equator",
			a:     Coordinate{Latitude: 0, Longitude: 0},
			b:     Coordinate{Latitude: 0, Longitude: 0.01},
			want:  1.11195,
			delta: 0.01,
		},
		{
			name:  "delhi to mumbai",
			a:     Coordinate{Latitude: 28.6139, Longitude: 77.2090},
			b:     Coordinate{Latitude: 19.0760, Longitude: 72.8777},
			want:  1148.1,
			delta: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), tt.delta)
		})
	}
}
