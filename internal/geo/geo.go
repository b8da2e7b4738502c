// Package geo contains pure geographic computation helpers: great-circle
// distance and radius filtering for dispatch candidate sets.
package geo

import (
	"math"

	"glide/internal/types"
)

const earthRadiusM = 6371000.0

// DistanceM returns the great-circle distance in metres between two points
// specified in decimal degrees (haversine, spherical-earth approximation —
// adequate for urban-scale matching).
func DistanceM(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// DistanceKm returns the great-circle distance in kilometres.
func DistanceKm(a, b types.Point) float64 {
	return DistanceM(a, b) / 1000.0
}

// Candidate pairs an arbitrary item with its position for radius filtering.
type Candidate[T any] struct {
	Item      T
	Position  types.Point
	DistanceM float64
}

// WithinRadius returns the candidates whose position lies within radiusM
// metres of origin, each annotated with its distance, sorted ascending.
// Candidates with out-of-range coordinates are skipped, not errors; a
// candidate exactly at the origin has distance 0 and is included. Inclusion
// at the boundary is <= radiusM.
func WithinRadius[T any](origin types.Point, radiusM float64, cands []Candidate[T]) []Candidate[T] {
	var result []Candidate[T]
	for _, c := range cands {
		if !c.Position.Valid() {
			continue
		}
		d := DistanceM(origin, c.Position)
		if d <= radiusM {
			c.DistanceM = d
			result = append(result, c)
		}
	}
	SortByDistance(result, func(c Candidate[T]) float64 { return c.DistanceM })
	return result
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
