package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"glide/internal/types"
)

// RouteService wraps the Google Maps Directions API behind the route
// provider contract the ride service consumes.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Estimate returns driving distance and duration between two points. It
// satisfies ride.RouteProvider; callers fall back to straight-line distance
// when it errors.
func (s *RouteService) Estimate(ctx context.Context, origin, dest types.Point) (float64, int, error) {
	route, err := s.route(ctx, origin, dest)
	if err != nil {
		return 0, 0, err
	}
	leg := route.Legs[0]
	return float64(leg.Distance.Meters) / 1000.0, int(leg.Duration.Minutes()), nil
}

// Polyline returns the encoded overview polyline for map rendering.
func (s *RouteService) Polyline(ctx context.Context, origin, dest types.Point) (string, error) {
	route, err := s.route(ctx, origin, dest)
	if err != nil {
		return "", err
	}
	return route.OverviewPolyline.Points, nil
}

func (s *RouteService) route(ctx context.Context, origin, dest types.Point) (*maps.Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", dest.Lat, dest.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, fmt.Errorf("no route found")
	}
	return &routes[0], nil
}
