package geo

import (
	"context"
	"fmt"

	"github.com/kelvins/geocoder"
)

// Geocoder resolves a city/country pair to coordinates so that
// location-only providers can serve city queries.
type Geocoder interface {
	Geocode(ctx context.Context, city, country string) (lat, lon float64, err error)
}

// GoogleGeocoder geocodes through the Google Maps API. Requires an API
// key; construct only when one is configured.
type GoogleGeocoder struct{}

// NewGoogleGeocoder sets the package-level API key the underlying
// client expects and returns a ready geocoder.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{}
}

// Geocode resolves city/country to coordinates.
func (g *GoogleGeocoder) Geocode(_ context.Context, city, country string) (float64, float64, error) {
	loc, err := geocoder.Geocoding(geocoder.Address{
		City:    city,
		Country: country,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding %q, %q: %w", city, country, err)
	}
	return loc.Latitude, loc.Longitude, nil
}
