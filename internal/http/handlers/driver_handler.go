// README: Driver-facing handlers: browse open rides, accept/decline,
// start/complete trips, availability and location pings.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"glide/internal/http/middleware"
	"glide/internal/modules/dispatch"
	"glide/internal/modules/location"
	"glide/internal/modules/ride"
	"glide/internal/types"
)

// DriverRideAPI is the slice of the ride service driver handlers use.
type DriverRideAPI interface {
	Accept(ctx context.Context, cmd ride.AcceptCommand) error
	Decline(ctx context.Context, cmd ride.DeclineCommand) error
	Start(ctx context.Context, cmd ride.StartCommand) error
	Complete(ctx context.Context, cmd ride.CompleteCommand) error
}

// DriverMatchAPI is the driver-side slice of the dispatch matcher.
type DriverMatchAPI interface {
	NearbyRidesForDriver(ctx context.Context, driverID types.ID, pos types.Point) ([]dispatch.RideCandidate, error)
	OpenSetVersion() uint64
}

// LocationAPI covers availability flips and position pings.
type LocationAPI interface {
	UpdateDriverLocation(ctx context.Context, u location.Update) (location.UpdateResult, error)
	SetAvailability(ctx context.Context, driverID types.ID, available bool) error
}

type DriverHandler struct {
	rides    DriverRideAPI
	matches  DriverMatchAPI
	location LocationAPI
}

func NewDriverHandler(rides DriverRideAPI, matches DriverMatchAPI, loc LocationAPI) *DriverHandler {
	return &DriverHandler{rides: rides, matches: matches, location: loc}
}

// caller returns the authenticated driver id, enforcing the driver role.
func (h *DriverHandler) caller(c *gin.Context) (types.ID, bool) {
	if role := middleware.CallerRole(c); role != "" && role != "driver" {
		writeError(c, http.StatusForbidden, "driver role required")
		return "", false
	}
	uid := middleware.CallerUID(c)
	if uid == "" {
		writeError(c, http.StatusUnauthorized, "unauthenticated")
		return "", false
	}
	return types.ID(uid), true
}

func (h *DriverHandler) NearbyRides(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}
	pos, ok := queryPoint(c)
	if !ok {
		return
	}

	candidates, err := h.matches.NearbyRidesForDriver(c.Request.Context(), driverID, pos)
	if err != nil {
		writeRideError(c, err)
		return
	}
	out := make([]gin.H, len(candidates))
	for i, cand := range candidates {
		view := rideView(cand.Ride)
		view["pickupDistanceKm"] = cand.DistanceKm
		out[i] = view
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": out, "openSetVersion": h.matches.OpenSetVersion()})
}

func (h *DriverHandler) Accept(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	err := h.rides.Accept(c.Request.Context(), ride.AcceptCommand{
		RideID:   types.ID(id),
		DriverID: driverID,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": string(ride.StatusAccepted)})
}

func (h *DriverHandler) Decline(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	err := h.rides.Decline(c.Request.Context(), ride.DeclineCommand{
		RideID:   types.ID(id),
		DriverID: driverID,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "declined"})
}

type tripPositionReq struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	TraveledKm float64 `json:"traveledKm,omitempty"`
}

func (h *DriverHandler) Start(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	var req tripPositionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.rides.Start(c.Request.Context(), ride.StartCommand{
		RideID:   types.ID(id),
		DriverID: driverID,
		Position: types.Point{Lat: req.Latitude, Lng: req.Longitude},
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": string(ride.StatusInProgress)})
}

func (h *DriverHandler) Complete(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	var req tripPositionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.rides.Complete(c.Request.Context(), ride.CompleteCommand{
		RideID:     types.ID(id),
		DriverID:   driverID,
		Position:   types.Point{Lat: req.Latitude, Lng: req.Longitude},
		TraveledKm: req.TraveledKm,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": string(ride.StatusCompleted)})
}

type availabilityReq struct {
	Available *bool `json:"available"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		writeError(c, http.StatusBadRequest, "available is required")
		return
	}
	if err := h.location.SetAvailability(c.Request.Context(), driverID, *req.Available); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"available": *req.Available})
}

type locationPingReq struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}
	var req locationPingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := h.location.UpdateDriverLocation(c.Request.Context(), location.Update{
		DriverID: driverID,
		Position: types.Point{Lat: req.Latitude, Lng: req.Longitude},
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"accepted": res.Accepted, "movedM": res.MovedM})
}
