// README: Rider-facing handlers: request a ride, track it, cancel it, pick a
// replacement driver after a drop-out.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"glide/internal/http/middleware"
	"glide/internal/maps"
	"glide/internal/modules/dispatch"
	"glide/internal/modules/ride"
	"glide/internal/types"
)

// RideAPI is the slice of the ride service rider handlers use.
type RideAPI interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	Events(ctx context.Context, id types.ID) ([]ride.Event, error)
	Cancel(ctx context.Context, cmd ride.CancelCommand) error
	Rebind(ctx context.Context, cmd ride.RebindCommand) error
}

// MatchAPI is the rider-side slice of the dispatch matcher.
type MatchAPI interface {
	NearbyDriversForRider(ctx context.Context, pos types.Point, rideID types.ID) (dispatch.DriverMatches, error)
}

// Geocoder resolves free-form addresses; nil disables the endpoint.
type Geocoder interface {
	Geocode(ctx context.Context, address string) ([]maps.GeocodeCandidate, error)
}

type RiderHandler struct {
	rides    RideAPI
	matches  MatchAPI
	geocoder Geocoder
}

func NewRiderHandler(rides RideAPI, matches MatchAPI, geocoder Geocoder) *RiderHandler {
	return &RiderHandler{rides: rides, matches: matches, geocoder: geocoder}
}

// caller returns the authenticated rider id, enforcing the rider role.
// Get and Events stay role-neutral so an assigned driver can track the ride.
func (h *RiderHandler) caller(c *gin.Context) (types.ID, bool) {
	if role := middleware.CallerRole(c); role != "" && role != "rider" {
		writeError(c, http.StatusForbidden, "rider role required")
		return "", false
	}
	uid := middleware.CallerUID(c)
	if uid == "" {
		writeError(c, http.StatusUnauthorized, "unauthenticated")
		return "", false
	}
	return types.ID(uid), true
}

type createRideReq struct {
	Pickup         pointPayload `json:"pickup"`
	Dropoff        pointPayload `json:"dropoff"`
	TransportClass string       `json:"transportClass"`
	PaymentMethod  string       `json:"paymentMethod"`
	// DriverID binds the request to a driver the rider already selected.
	DriverID string `json:"driverId,omitempty"`
}

func (h *RiderHandler) Create(c *gin.Context) {
	riderID, ok := h.caller(c)
	if !ok {
		return
	}
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	cmd := ride.CreateCommand{
		RiderID:        riderID,
		Pickup:         ride.Endpoint{Point: types.Point{Lat: req.Pickup.Latitude, Lng: req.Pickup.Longitude}, Address: req.Pickup.Address},
		Dropoff:        ride.Endpoint{Point: types.Point{Lat: req.Dropoff.Latitude, Lng: req.Dropoff.Longitude}, Address: req.Dropoff.Address},
		TransportClass: req.TransportClass,
		PaymentMethod:  req.PaymentMethod,
	}
	if req.DriverID != "" {
		if !isValidID(req.DriverID) {
			writeError(c, http.StatusBadRequest, "invalid driver id")
			return
		}
		d := types.ID(req.DriverID)
		cmd.DriverID = &d
	}

	r, err := h.rides.Create(c.Request.Context(), cmd)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, rideView(r))
}

func (h *RiderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	r, err := h.rides.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rideView(r))
}

func (h *RiderHandler) Events(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	events, err := h.rides.Events(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	out := make([]gin.H, len(events))
	for i, e := range events {
		out[i] = gin.H{
			"from":      string(e.FromStatus),
			"to":        string(e.ToStatus),
			"actorType": e.ActorType,
			"at":        e.CreatedAt,
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"events": out})
}

func (h *RiderHandler) Cancel(c *gin.Context) {
	riderID, ok := h.caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID:  types.ID(id),
		RiderID: riderID,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": string(ride.StatusCancelled)})
}

type rebindReq struct {
	DriverID string `json:"driverId"`
}

// Rebind hands a needs_reassignment ride to the replacement driver the rider
// picked.
func (h *RiderHandler) Rebind(c *gin.Context) {
	riderID, ok := h.caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	var req rebindReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	err := h.rides.Rebind(c.Request.Context(), ride.RebindCommand{
		RideID:   types.ID(id),
		RiderID:  riderID,
		DriverID: types.ID(req.DriverID),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": string(ride.StatusPending)})
}

// NearbyDrivers lists available drivers around the rider. An empty list with
// 200 is the "no drivers right now" answer.
func (h *RiderHandler) NearbyDrivers(c *gin.Context) {
	if _, ok := h.caller(c); !ok {
		return
	}
	pos, ok := queryPoint(c)
	if !ok {
		return
	}
	rideID := c.Query("rideId")
	if rideID != "" && !isValidID(rideID) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}

	matches, err := h.matches.NearbyDriversForRider(c.Request.Context(), pos, types.ID(rideID))
	if err != nil {
		writeRideError(c, err)
		return
	}
	out := make([]gin.H, len(matches.Drivers))
	for i, d := range matches.Drivers {
		out[i] = gin.H{
			"driverId":    string(d.Driver.ID),
			"name":        d.Driver.Name,
			"plateNumber": d.Driver.PlateNumber,
			"vehicleType": d.Driver.VehicleType,
			"position":    pointPayload{Latitude: d.Position.Lat, Longitude: d.Position.Lng},
			"distanceKm":  d.DistanceKm,
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out, "empty": matches.Empty()})
}

func (h *RiderHandler) Geocode(c *gin.Context) {
	if h.geocoder == nil {
		writeError(c, http.StatusNotImplemented, "geocoding not configured")
		return
	}
	address := c.Query("address")
	if address == "" {
		writeError(c, http.StatusBadRequest, "missing address")
		return
	}
	candidates, err := h.geocoder.Geocode(c.Request.Context(), address)
	if err != nil {
		writeError(c, http.StatusBadGateway, "geocoding failed")
		return
	}
	out := make([]gin.H, len(candidates))
	for i, cand := range candidates {
		out[i] = gin.H{
			"address":  cand.Address,
			"position": pointPayload{Latitude: cand.Position.Lat, Longitude: cand.Position.Lng},
			"partial":  cand.Partial,
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"candidates": out})
}

// queryPoint parses lat/lng query params, writing the error response itself.
func queryPoint(c *gin.Context) (types.Point, bool) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return types.Point{}, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		writeError(c, http.StatusBadRequest, "position out of range")
		return types.Point{}, false
	}
	return p, true
}
