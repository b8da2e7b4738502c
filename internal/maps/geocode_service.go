package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"glide/internal/types"
)

// GeocodeCandidate is one ranked resolution of a free-form address.
type GeocodeCandidate struct {
	Address  string
	Position types.Point
	PlaceID  string
	// Partial marks an inexact match; the UI asks the rider to confirm.
	Partial bool
}

// GeocodeService resolves free-form pickup/dropoff text into coordinates via
// the Google Geocoding API.
type GeocodeService struct {
	client *maps.Client
}

// NewGeocodeService creates a new GeocodeService with the given API key.
func NewGeocodeService(apiKey string) (*GeocodeService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client}, nil
}

// Geocode returns candidates in API ranking order, capped at five. An empty
// result means the address did not resolve; the caller surfaces that to the
// rider rather than guessing.
func (s *GeocodeService) Geocode(ctx context.Context, address string) ([]GeocodeCandidate, error) {
	if address == "" {
		return nil, fmt.Errorf("empty address")
	}
	results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return nil, fmt.Errorf("geocoding api error: %w", err)
	}

	out := make([]GeocodeCandidate, 0, len(results))
	for _, r := range results {
		out = append(out, GeocodeCandidate{
			Address: r.FormattedAddress,
			Position: types.Point{
				Lat: r.Geometry.Location.Lat,
				Lng: r.Geometry.Location.Lng,
			},
			PlaceID: r.PlaceID,
			Partial: r.PartialMatch,
		})
		if len(out) >= 5 {
			break
		}
	}
	return out, nil
}
