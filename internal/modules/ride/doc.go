// README: Ride document normalization at the ingestion boundary.
//
// Historical clients wrote trip endpoints in two shapes: a flattened object
// ("pickup": {latitude, longitude, address}) and a nested one
// ("pickupLocation": {latitude, longitude}). Everything past this file works
// with the normalized Endpoint type; the shape ambiguity stops here.
package ride

import (
	"glide/internal/types"
)

const (
	docKeyPickup        = "pickup"
	docKeyPickupNested  = "pickupLocation"
	docKeyDropoff       = "dropoff"
	docKeyDropoffNested = "dropoffLocation"
)

// PickupFromDoc extracts the normalized pickup endpoint from a raw ride
// document, preferring the flattened shape when both are present. The second
// return value is false when neither shape yields usable coordinates; the
// caller excludes the candidate rather than failing the whole scan.
func PickupFromDoc(doc map[string]any) (Endpoint, bool) {
	return endpointFromDoc(doc, docKeyPickup, docKeyPickupNested)
}

// DropoffFromDoc is the dropoff counterpart of PickupFromDoc.
func DropoffFromDoc(doc map[string]any) (Endpoint, bool) {
	return endpointFromDoc(doc, docKeyDropoff, docKeyDropoffNested)
}

func endpointFromDoc(doc map[string]any, flatKey, nestedKey string) (Endpoint, bool) {
	if m, ok := doc[flatKey].(map[string]any); ok {
		if e, ok := endpointFromMap(m); ok {
			return e, true
		}
	}
	if m, ok := doc[nestedKey].(map[string]any); ok {
		if e, ok := endpointFromMap(m); ok {
			return e, true
		}
	}
	return Endpoint{}, false
}

// endpointFromMap reads latitude/longitude (and optional address) from one
// endpoint object. Some legacy rows nest the coordinates one level deeper
// under "location"; that shape is tolerated too.
func endpointFromMap(m map[string]any) (Endpoint, bool) {
	lat, latOK := floatField(m, "latitude")
	lng, lngOK := floatField(m, "longitude")
	if !latOK || !lngOK {
		if inner, ok := m["location"].(map[string]any); ok {
			lat, latOK = floatField(inner, "latitude")
			lng, lngOK = floatField(inner, "longitude")
		}
	}
	if !latOK || !lngOK {
		return Endpoint{}, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return Endpoint{}, false
	}
	e := Endpoint{Point: p}
	if addr, ok := m["address"].(string); ok {
		e.Address = addr
	}
	return e, true
}

func floatField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Doc renders the ride as a flattened document, the shape current clients
// write and the live feed carries.
func (r *Ride) Doc() map[string]any {
	doc := map[string]any{
		"rideId":  string(r.ID),
		"riderId": string(r.RiderID),
		"status":  string(r.Status),
		docKeyPickup: map[string]any{
			"latitude":  r.Pickup.Point.Lat,
			"longitude": r.Pickup.Point.Lng,
			"address":   r.Pickup.Address,
		},
		docKeyDropoff: map[string]any{
			"latitude":  r.Dropoff.Point.Lat,
			"longitude": r.Dropoff.Point.Lng,
			"address":   r.Dropoff.Address,
		},
	}
	if r.DriverID != nil {
		doc["driverId"] = string(*r.DriverID)
	}
	if len(r.PreviousDrivers) > 0 {
		prev := make([]any, len(r.PreviousDrivers))
		for i, p := range r.PreviousDrivers {
			prev[i] = string(p)
		}
		doc["previousDrivers"] = prev
	}
	return doc
}

// FromDoc builds a partial ride from a raw document as delivered by the live
// feed. Only the fields the matcher needs are decoded; missing endpoints
// leave the candidate excludable via PickupFromDoc's ok flag.
func FromDoc(doc map[string]any) (*Ride, bool) {
	id, ok := doc["rideId"].(string)
	if !ok || id == "" {
		return nil, false
	}
	r := &Ride{ID: types.ID(id)}
	if v, ok := doc["riderId"].(string); ok {
		r.RiderID = types.ID(v)
	}
	if v, ok := doc["driverId"].(string); ok && v != "" {
		d := types.ID(v)
		r.DriverID = &d
	}
	if v, ok := doc["status"].(string); ok {
		r.Status = Status(v)
	}
	if prev, ok := doc["previousDrivers"].([]any); ok {
		for _, p := range prev {
			if s, ok := p.(string); ok {
				r.PreviousDrivers = append(r.PreviousDrivers, types.ID(s))
			}
		}
	}
	if e, ok := PickupFromDoc(doc); ok {
		r.Pickup = e
	}
	if e, ok := DropoffFromDoc(doc); ok {
		r.Dropoff = e
	}
	return r, true
}
