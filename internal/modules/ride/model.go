// README: Ride aggregate, status definitions, and the transition table.
package ride

import (
	"time"

	"glide/internal/types"
)

type Status string

const (
	StatusNone              Status = "none"
	StatusPending           Status = "pending"
	StatusAccepted          Status = "accepted"
	StatusInProgress        Status = "in_progress"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusCancelledByDriver Status = "cancelled_by_driver"
	StatusDeclined          Status = "declined"
	StatusNeedsReassignment Status = "needs_reassignment"
)

// Transport classes form a small closed set; quotes are priced per class.
const (
	ClassTaxi = "taxi"
	ClassBus  = "bus"
	ClassVan  = "van"
)

// ValidTransportClass reports membership in the closed transport-class set.
func ValidTransportClass(c string) bool {
	return c == ClassTaxi || c == ClassBus || c == ClassVan
}

// Actor labels recorded on state events and cancellations.
const (
	ActorUser   = "user"
	ActorDriver = "driver"
	ActorSystem = "system"
)

// Endpoint is a normalized trip endpoint: coordinates plus display address.
type Endpoint struct {
	Point   types.Point
	Address string
}

type Ride struct {
	ID              types.ID
	RiderID         types.ID
	DriverID        *types.ID
	PreviousDrivers []types.ID

	Pickup  Endpoint
	Dropoff Endpoint

	Price            types.Money
	DistanceKm       float64
	EstimatedMinutes int
	TransportClass   string
	PaymentMethod    string

	Status        Status
	StatusVersion int

	ReassignmentCount int
	CancelledBy       string

	StartLocation *types.Point
	EndLocation   *types.Point
	FinalFare     *types.Money
	FinalDistance *float64

	CreatedAt    time.Time
	AcceptedAt   *time.Time
	StartTime    *time.Time
	EndTime      *time.Time
	CancelledAt  *time.Time
	DeclinedAt   *time.Time
	ReassignedAt *time.Time
	UpdatedAt    time.Time
}

// Event is one row of the transition audit trail.
type Event struct {
	ID         int64
	RideID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the ride state flow (diagram) as code.
// completed and cancelled are terminal and have no entries.
var AllowedTransitions = map[Status][]Status{
	StatusPending:           {StatusAccepted, StatusDeclined, StatusCancelled},
	StatusAccepted:          {StatusInProgress, StatusCancelled, StatusCancelledByDriver},
	StatusInProgress:        {StatusCompleted, StatusCancelled},
	StatusDeclined:          {StatusNeedsReassignment, StatusCancelled},
	StatusCancelledByDriver: {StatusNeedsReassignment, StatusCancelled},
	StatusNeedsReassignment: {StatusPending, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ExcludesDriver reports whether the driver has previously dropped out of
// this ride and must not be matched to it again.
func (r *Ride) ExcludesDriver(id types.ID) bool {
	for _, d := range r.PreviousDrivers {
		if d == id {
			return true
		}
	}
	return false
}

// BoundTo reports whether the ride is currently bound to the given driver.
func (r *Ride) BoundTo(id types.ID) bool {
	return r.DriverID != nil && *r.DriverID == id
}
