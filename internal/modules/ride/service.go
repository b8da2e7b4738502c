// README: Ride service implements the dispatch state machine and its
// at-most-once transition semantics.
package ride

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"time"

	"glide/internal/geo"
	"glide/internal/observability"
	"glide/internal/types"
)

var (
	ErrNotFound        = errors.New("ride not found")
	ErrBadRequest      = errors.New("bad request")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrRideUnavailable = errors.New("ride is no longer available")
	ErrActiveRide      = errors.New("driver already has an active ride")
	ErrNotAssigned     = errors.New("ride is not assigned to this driver")
	ErrNotRideOwner    = errors.New("ride does not belong to this rider")
	ErrDriverExcluded  = errors.New("driver previously dropped out of this ride")
)

// Storage is the persistence contract the service needs. *Store satisfies
// it; tests substitute an in-memory implementation.
type Storage interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	ListByStatus(ctx context.Context, status Status) ([]*Ride, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, upd StatusUpdate) (bool, error)
	MarkNeedsReassignment(ctx context.Context, id types.ID, departing types.ID, from Status) (bool, error)
	Rebind(ctx context.Context, id types.ID, newDriver types.ID, version int) (bool, error)
	HasActiveByDriver(ctx context.Context, driverID types.ID) (bool, error)
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListEventsByRide(ctx context.Context, rideID types.ID) ([]Event, error)
}

// Pricing quotes a fare for a distance and transport class.
type Pricing interface {
	Estimate(ctx context.Context, distanceKm float64, transportClass string) (types.Money, error)
}

// RouteProvider is the external distance/ETA collaborator.
type RouteProvider interface {
	Estimate(ctx context.Context, origin, dest types.Point) (distanceKm float64, minutes int, err error)
}

// Publisher pushes ride changes onto the live-update channel.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

type Service struct {
	store   Storage
	pricing Pricing
	routes  RouteProvider
	feed    Publisher
	log     *slog.Logger

	// pendingExpiry > 0 enables the auto-expiry ticker for stuck pending
	// rides. The observed product behavior is no expiry.
	pendingExpiry time.Duration
}

func NewService(store Storage, pricing Pricing, routes RouteProvider, feed Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, pricing: pricing, routes: routes, feed: feed, log: log}
}

// SetPendingExpiry configures the pending auto-expiry window; zero disables.
func (s *Service) SetPendingExpiry(d time.Duration) {
	s.pendingExpiry = d
}

type CreateCommand struct {
	RiderID        types.ID
	Pickup         Endpoint
	Dropoff        Endpoint
	TransportClass string
	PaymentMethod  string
	// DriverID binds the pending ride to a specific driver chosen by the
	// rider; nil means a general broadcast.
	DriverID *types.ID
}

type AcceptCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type DeclineCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type StartCommand struct {
	RideID   types.ID
	DriverID types.ID
	// Position is the driver's live position at call time.
	Position types.Point
}

type CompleteCommand struct {
	RideID   types.ID
	DriverID types.ID
	Position types.Point
	// TraveledKm is the trip distance reported by the routing collaborator;
	// zero falls back to the quoted distance.
	TraveledKm float64
}

type CancelCommand struct {
	RideID  types.ID
	RiderID types.ID
}

type RebindCommand struct {
	RideID   types.ID
	RiderID  types.ID
	DriverID types.ID
}

// Create validates the request, quotes it, and persists the ride as pending.
// Validation failures reject before any store write.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if cmd.RiderID == "" || !cmd.Pickup.Point.Valid() || !cmd.Dropoff.Point.Valid() {
		return nil, ErrBadRequest
	}
	if !ValidTransportClass(cmd.TransportClass) {
		return nil, ErrBadRequest
	}
	if cmd.PaymentMethod == "" {
		// Payment selection must have happened before confirmation.
		return nil, ErrBadRequest
	}

	distanceKm, minutes := s.estimateRoute(ctx, cmd.Pickup.Point, cmd.Dropoff.Point)
	price := types.Money{Currency: "USD"}
	if s.pricing != nil {
		if m, err := s.pricing.Estimate(ctx, distanceKm, cmd.TransportClass); err == nil {
			price = m
		}
	}

	now := time.Now()
	r := &Ride{
		ID:               newID(),
		RiderID:          cmd.RiderID,
		DriverID:         cmd.DriverID,
		Pickup:           cmd.Pickup,
		Dropoff:          cmd.Dropoff,
		Price:            price,
		DistanceKm:       distanceKm,
		EstimatedMinutes: minutes,
		TransportClass:   cmd.TransportClass,
		PaymentMethod:    cmd.PaymentMethod,
		Status:           StatusPending,
		StatusVersion:    0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.recordTransition(ctx, r, StatusNone, StatusPending, ActorUser, &cmd.RiderID)
	return r, nil
}

// Accept is the critical at-most-one-acceptance path. The per-driver
// active-ride rule is a fresh pre-check (best effort: two simultaneous
// accepts by one driver on two rides can both pass it; closing that gap
// would need a per-driver marker row written in the same transaction).
// The per-ride guarantee IS hard: the conditional write fails for every
// caller but the first once the ride leaves pending.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) error {
	observability.AcceptAttempts.Inc()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.Status != StatusPending {
		observability.AcceptConflicts.Inc()
		return ErrRideUnavailable
	}
	if r.DriverID != nil && !r.BoundTo(cmd.DriverID) {
		// Bound-pending rides are visible only to their bound driver.
		return ErrRideUnavailable
	}
	if r.ExcludesDriver(cmd.DriverID) {
		return ErrDriverExcluded
	}

	active, err := s.store.HasActiveByDriver(ctx, cmd.DriverID)
	if err != nil {
		return err
	}
	if active {
		return ErrActiveRide
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, StatusPending, StatusAccepted, r.StatusVersion, StatusUpdate{
		DriverID: &cmd.DriverID,
	})
	if err != nil {
		return err
	}
	if !ok {
		// Raced by another driver or a rider cancel. Never retried against
		// a different ride on the caller's behalf.
		observability.AcceptConflicts.Inc()
		return ErrRideUnavailable
	}
	r.DriverID = &cmd.DriverID
	s.recordTransition(ctx, r, StatusPending, StatusAccepted, ActorDriver, &cmd.DriverID)
	return nil
}

// Decline drops a driver out of a ride they are bound to. From pending the
// ride becomes declined; from accepted it becomes cancelled_by_driver, which
// is distinct from a rider cancel because it triggers reassignment.
func (s *Service) Decline(ctx context.Context, cmd DeclineCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if !r.BoundTo(cmd.DriverID) {
		return ErrNotAssigned
	}

	var to Status
	switch r.Status {
	case StatusPending:
		to = StatusDeclined
	case StatusAccepted:
		to = StatusCancelledByDriver
	default:
		return ErrInvalidState
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, to, r.StatusVersion, StatusUpdate{
		CancelledBy: ActorDriver,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrRideUnavailable
	}
	s.recordTransition(ctx, r, r.Status, to, ActorDriver, &cmd.DriverID)
	return nil
}

func (s *Service) Start(ctx context.Context, cmd StartCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if !r.BoundTo(cmd.DriverID) {
		return ErrNotAssigned
	}
	if r.Status != StatusAccepted {
		return ErrInvalidState
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, StatusAccepted, StatusInProgress, r.StatusVersion, StatusUpdate{
		StartLocation: &cmd.Position,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrRideUnavailable
	}
	s.recordTransition(ctx, r, StatusAccepted, StatusInProgress, ActorDriver, &cmd.DriverID)
	return nil
}

// Complete finishes the trip and stamps the final fare and distance. The
// completed record is the source of truth for billing; nothing recomputes it
// later.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if !r.BoundTo(cmd.DriverID) {
		return ErrNotAssigned
	}
	if r.Status != StatusInProgress {
		return ErrInvalidState
	}

	traveled := cmd.TraveledKm
	if traveled <= 0 {
		traveled = r.DistanceKm
	}
	finalFare := r.Price
	if s.pricing != nil {
		if m, err := s.pricing.Estimate(ctx, traveled, r.TransportClass); err == nil {
			finalFare = m
		}
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, StatusInProgress, StatusCompleted, r.StatusVersion, StatusUpdate{
		EndLocation:   &cmd.Position,
		FinalFare:     &finalFare,
		FinalDistance: &traveled,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrRideUnavailable
	}
	s.recordTransition(ctx, r, StatusInProgress, StatusCompleted, ActorDriver, &cmd.DriverID)
	return nil
}

// Cancel is rider-initiated and legal from any non-terminal status.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.RiderID != cmd.RiderID {
		return ErrNotRideOwner
	}
	if r.Status.Terminal() {
		return ErrInvalidState
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusCancelled, r.StatusVersion, StatusUpdate{
		CancelledBy: ActorUser,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrRideUnavailable
	}
	s.recordTransition(ctx, r, r.Status, StatusCancelled, ActorUser, &cmd.RiderID)
	return nil
}

// Reopen moves a declined/cancelled_by_driver ride into needs_reassignment
// and excludes the departing driver from all future matching for this ride.
// Safe under redundant delivery: the conditional write applies at most once.
func (s *Service) Reopen(ctx context.Context, rideID, departing types.ID, from Status) error {
	if from != StatusDeclined && from != StatusCancelledByDriver {
		return ErrInvalidState
	}
	ok, err := s.store.MarkNeedsReassignment(ctx, rideID, departing, from)
	if err != nil {
		return err
	}
	if !ok {
		// Already reopened (redundant feed delivery) or moved on.
		return nil
	}
	observability.Reassignments.Inc()
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return err
	}
	s.recordTransition(ctx, r, from, StatusNeedsReassignment, ActorSystem, &departing)
	return nil
}

// Rebind re-enters a needs_reassignment ride into pending, bound to the new
// driver the rider selected.
func (s *Service) Rebind(ctx context.Context, cmd RebindCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.RiderID != cmd.RiderID {
		return ErrNotRideOwner
	}
	if r.Status != StatusNeedsReassignment {
		return ErrInvalidState
	}
	if r.ExcludesDriver(cmd.DriverID) {
		return ErrDriverExcluded
	}

	ok, err := s.store.Rebind(ctx, r.ID, cmd.DriverID, r.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRideUnavailable
	}
	r.DriverID = &cmd.DriverID
	s.recordTransition(ctx, r, StatusNeedsReassignment, StatusPending, ActorUser, &cmd.RiderID)
	return nil
}

// ListByStatus returns all rides currently in the given status.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*Ride, error) {
	return s.store.ListByStatus(ctx, status)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	return s.store.ListEventsByRide(ctx, id)
}

// RunExpireTicker cancels stuck pending rides when an expiry window is
// configured. With the default zero window this returns immediately.
func (s *Service) RunExpireTicker(ctx context.Context) {
	if s.pendingExpiry <= 0 {
		return
	}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.ExpirePendingBefore(ctx, time.Now().Add(-s.pendingExpiry))
			if err != nil {
				s.log.Error("expire pending rides", "err", err)
				continue
			}
			if n > 0 {
				s.log.Info("expired pending rides", "count", n)
			}
		}
	}
}

// recordTransition appends the audit event and pushes the change onto the
// live feed. Both are best-effort relative to the already-committed write.
func (s *Service) recordTransition(ctx context.Context, r *Ride, from, to Status, actorType string, actorID *types.ID) {
	r.Status = to
	if err := s.store.AppendEvent(ctx, &Event{
		RideID:     r.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	}); err != nil {
		s.log.Warn("append ride event", "ride_id", r.ID, "err", err)
	}
	if s.feed != nil {
		c := Change{RideID: r.ID, RiderID: r.RiderID, From: from, Status: to, Doc: r.Doc()}
		if r.DriverID != nil {
			c.DriverID = *r.DriverID
		}
		if err := s.feed.Publish(ctx, c); err != nil {
			s.log.Warn("publish ride change", "ride_id", r.ID, "err", err)
		}
	}
	s.log.Info("ride transition", "ride_id", r.ID, "from", from, "to", to, "actor", actorType)
}

func (s *Service) estimateRoute(ctx context.Context, origin, dest types.Point) (float64, int) {
	if s.routes != nil {
		if km, minutes, err := s.routes.Estimate(ctx, origin, dest); err == nil {
			return km, minutes
		}
	}
	// Fallback: straight-line distance at an urban average speed.
	km := geo.DistanceKm(origin, dest)
	return km, int(math.Ceil(km / 30.0 * 60.0))
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
