// README: Shared handler utilities: JSON rendering and the error-to-status
// mapping. Every service error surfaces with a specific reason string so
// clients can distinguish "taken by someone else" from "you were excluded".
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"glide/internal/modules/location"
	"glide/internal/modules/pricing"
	"glide/internal/modules/ride"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID ensures IDs are alphanumeric and at most 64 chars before they
// reach a query.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest), errors.Is(err, pricing.ErrUnknownClass), errors.Is(err, location.ErrBadPosition):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrRideUnavailable),
		errors.Is(err, ride.ErrActiveRide),
		errors.Is(err, ride.ErrInvalidState):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ride.ErrNotAssigned),
		errors.Is(err, ride.ErrNotRideOwner),
		errors.Is(err, ride.ErrDriverExcluded):
		writeError(c, http.StatusForbidden, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

type pointPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

func rideView(r *ride.Ride) gin.H {
	v := gin.H{
		"rideId":            string(r.ID),
		"riderId":           string(r.RiderID),
		"status":            string(r.Status),
		"transportClass":    r.TransportClass,
		"paymentMethod":     r.PaymentMethod,
		"pickup":            pointPayload{Latitude: r.Pickup.Point.Lat, Longitude: r.Pickup.Point.Lng, Address: r.Pickup.Address},
		"dropoff":           pointPayload{Latitude: r.Dropoff.Point.Lat, Longitude: r.Dropoff.Point.Lng, Address: r.Dropoff.Address},
		"price":             r.Price.Amount,
		"currency":          r.Price.Currency,
		"distanceKm":        r.DistanceKm,
		"estimatedMinutes":  r.EstimatedMinutes,
		"reassignmentCount": r.ReassignmentCount,
		"createdAt":         r.CreatedAt,
		"updatedAt":         r.UpdatedAt,
	}
	if r.DriverID != nil {
		v["driverId"] = string(*r.DriverID)
	}
	if len(r.PreviousDrivers) > 0 {
		prev := make([]string, len(r.PreviousDrivers))
		for i, p := range r.PreviousDrivers {
			prev[i] = string(p)
		}
		v["previousDrivers"] = prev
	}
	if r.FinalFare != nil {
		v["finalFare"] = r.FinalFare.Amount
	}
	if r.FinalDistance != nil {
		v["finalDistanceKm"] = *r.FinalDistance
	}
	if r.CancelledBy != "" {
		v["cancelledBy"] = r.CancelledBy
	}
	return v
}
