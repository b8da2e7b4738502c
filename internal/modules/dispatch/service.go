// README: Dispatch matcher. Driver-side filtering of open rides and
// rider-side filtering of available drivers, both through the shared
// geospatial cutoff.
package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"glide/internal/geo"
	"glide/internal/modules/location"
	"glide/internal/modules/ride"
	"glide/internal/observability"
	"glide/internal/types"
)

// RideSource is the slice of the ride store the matcher reads. *ride.Store
// satisfies it.
type RideSource interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	ListByStatus(ctx context.Context, status ride.Status) ([]*ride.Ride, error)
	ActiveDriverIDs(ctx context.Context) ([]types.ID, error)
}

// DriverIndex lists drivers currently marked available with a known position.
type DriverIndex interface {
	ListAvailable(ctx context.Context) ([]location.Driver, error)
}

// ProfileSource joins driver display data onto match results.
type ProfileSource interface {
	ProfilesByIDs(ctx context.Context, ids []types.ID) (map[types.ID]Profile, error)
}

type Config struct {
	// RideRadiusKm is the driver-side cutoff on pickup distance.
	RideRadiusKm float64
	// DriverRadiusKm is the rider-side cutoff on driver distance.
	DriverRadiusKm float64
}

type Service struct {
	rides    RideSource
	drivers  DriverIndex
	profiles ProfileSource
	cfg      Config
	log      *slog.Logger

	// openSetVersion increments when the debounced feed reports the open-ride
	// set changed. Clients compare it across polls to skip redundant refetches.
	openSetVersion atomic.Uint64
}

func NewService(rides RideSource, drivers DriverIndex, profiles ProfileSource, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{rides: rides, drivers: drivers, profiles: profiles, cfg: cfg, log: log}
}

// NoteOpenSetChange records that the set of open rides changed. The feed
// refresher is the caller.
func (s *Service) NoteOpenSetChange() {
	s.openSetVersion.Add(1)
}

// OpenSetVersion returns the current open-ride set version.
func (s *Service) OpenSetVersion() uint64 {
	return s.openSetVersion.Load()
}

// RideCandidate is one open ride a driver may accept, annotated with the
// pickup distance from the driver's position.
type RideCandidate struct {
	Ride       *ride.Ride
	DistanceKm float64
}

// NearbyRidesForDriver returns open rides this driver may accept, nearest
// pickup first. A ride is visible when it is pending, within the cutoff,
// either unbound or bound to this driver, and the driver is not on its
// exclusion list. Rides without usable pickup coordinates are skipped, not
// errors.
func (s *Service) NearbyRidesForDriver(ctx context.Context, driverID types.ID, pos types.Point) ([]RideCandidate, error) {
	start := time.Now()
	defer func() {
		observability.DispatchScans.Observe(time.Since(start).Seconds())
	}()

	pending, err := s.rides.ListByStatus(ctx, ride.StatusPending)
	if err != nil {
		return nil, err
	}

	seen := make(map[types.ID]bool, len(pending))
	candidates := make([]geo.Candidate[*ride.Ride], 0, len(pending))
	for _, r := range pending {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		if r.DriverID != nil && !r.BoundTo(driverID) {
			// Bound-pending rides are visible only to their bound driver.
			continue
		}
		if r.ExcludesDriver(driverID) {
			continue
		}
		candidates = append(candidates, geo.Candidate[*ride.Ride]{
			Item:     r,
			Position: r.Pickup.Point,
		})
	}

	within := geo.WithinRadius(pos, s.cfg.RideRadiusKm*1000, candidates)
	out := make([]RideCandidate, len(within))
	for i, c := range within {
		out[i] = RideCandidate{Ride: c.Item, DistanceKm: c.DistanceM / 1000}
	}
	return out, nil
}

// Profile is driver display data joined onto rider-side results.
type Profile struct {
	ID          types.ID
	Name        string
	PlateNumber string
	VehicleType string
}

// DriverCandidate is one available driver a rider may select.
type DriverCandidate struct {
	Driver     Profile
	Position   types.Point
	DistanceKm float64
}

// DriverMatches is the rider-side result. Empty is a legitimate outcome —
// no drivers nearby right now — and is distinct from an error.
type DriverMatches struct {
	Drivers []DriverCandidate
}

func (m DriverMatches) Empty() bool { return len(m.Drivers) == 0 }

// NearbyDriversForRider returns available drivers within the cutoff of the
// given position, nearest first. When rideID is non-empty the ride's
// exclusion list is applied, so a reassigning rider is never shown a driver
// who already dropped out. Drivers bound to an active ride are filtered out
// regardless of their advertised availability.
func (s *Service) NearbyDriversForRider(ctx context.Context, pos types.Point, rideID types.ID) (DriverMatches, error) {
	available, err := s.drivers.ListAvailable(ctx)
	if err != nil {
		return DriverMatches{}, err
	}

	excluded := make(map[types.ID]bool)
	if rideID != "" {
		r, err := s.rides.Get(ctx, rideID)
		if err != nil {
			return DriverMatches{}, err
		}
		for _, d := range r.PreviousDrivers {
			excluded[d] = true
		}
	}
	busy, err := s.rides.ActiveDriverIDs(ctx)
	if err != nil {
		return DriverMatches{}, err
	}
	for _, d := range busy {
		excluded[d] = true
	}

	candidates := make([]geo.Candidate[location.Driver], 0, len(available))
	for _, d := range available {
		if excluded[d.ID] {
			continue
		}
		candidates = append(candidates, geo.Candidate[location.Driver]{
			Item:     d,
			Position: d.Position,
		})
	}

	within := geo.WithinRadius(pos, s.cfg.DriverRadiusKm*1000, candidates)
	if len(within) == 0 {
		return DriverMatches{}, nil
	}

	ids := make([]types.ID, len(within))
	for i, c := range within {
		ids[i] = c.Item.ID
	}
	profiles := map[types.ID]Profile{}
	if s.profiles != nil {
		if profiles, err = s.profiles.ProfilesByIDs(ctx, ids); err != nil {
			// Display data is optional; matching still works without it.
			s.log.Warn("driver profile join", "err", err)
			profiles = map[types.ID]Profile{}
		}
	}

	out := make([]DriverCandidate, len(within))
	for i, c := range within {
		p, ok := profiles[c.Item.ID]
		if !ok {
			p = Profile{ID: c.Item.ID}
		}
		out[i] = DriverCandidate{
			Driver:     p,
			Position:   c.Item.Position,
			DistanceKm: c.DistanceM / 1000,
		}
	}
	return DriverMatches{Drivers: out}, nil
}
