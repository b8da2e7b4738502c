// README: Common identifier and coordinate value types shared across modules.
package types

// ID is an opaque entity identifier (rides, riders, drivers).
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point is inside the WGS84 coordinate range.
// Missing coordinates are represented by absence at the document layer,
// not by a sentinel value, so (0, 0) is a legitimate point.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
