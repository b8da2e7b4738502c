// README: Location service handles high-frequency driver position updates.
// Sub-threshold movement is dropped before it reaches the index so idle
// drivers parked at a stand do not churn the matcher.
package location

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"glide/internal/geo"
	"glide/internal/types"
)

var ErrBadPosition = errors.New("position out of range")

// Storage is what the service needs from the backing index. *Store satisfies
// it; tests substitute an in-memory implementation.
type Storage interface {
	SetPosition(ctx context.Context, id types.ID, pos types.Point) error
	Position(ctx context.Context, id types.ID) (types.Point, bool, error)
	SetAvailability(ctx context.Context, id types.ID, available bool) error
	ListAvailable(ctx context.Context) ([]Driver, error)
	AppendSnapshot(ctx context.Context, snap Snapshot) error
}

type Service struct {
	store Storage
	log   *slog.Logger

	// minMoveM is the movement threshold below which an update is a no-op.
	minMoveM float64
}

func NewService(store Storage, minMoveM float64, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, minMoveM: minMoveM, log: log}
}

type Update struct {
	DriverID types.ID
	Position types.Point
}

type UpdateResult struct {
	// Accepted is false when the movement was below the threshold and the
	// index was left untouched.
	Accepted bool
	MovedM   float64
}

// UpdateDriverLocation indexes a new driver position. Movement under the
// threshold since the last indexed point is dropped without touching the
// index or the snapshot table.
func (s *Service) UpdateDriverLocation(ctx context.Context, u Update) (UpdateResult, error) {
	if u.DriverID == "" || !u.Position.Valid() {
		return UpdateResult{}, ErrBadPosition
	}

	prev, known, err := s.store.Position(ctx, u.DriverID)
	if err != nil {
		return UpdateResult{}, err
	}
	var moved float64
	if known {
		moved = geo.DistanceM(prev, u.Position)
		if moved < s.minMoveM {
			return UpdateResult{Accepted: false, MovedM: moved}, nil
		}
	}

	if err := s.store.SetPosition(ctx, u.DriverID, u.Position); err != nil {
		return UpdateResult{}, err
	}
	if err := s.store.AppendSnapshot(ctx, Snapshot{
		DriverID:   u.DriverID,
		Position:   u.Position,
		RecordedAt: time.Now(),
	}); err != nil {
		// Snapshots are best-effort relative to the live index.
		s.log.Warn("append location snapshot", "driver_id", u.DriverID, "err", err)
	}
	return UpdateResult{Accepted: true, MovedM: moved}, nil
}

func (s *Service) SetAvailability(ctx context.Context, driverID types.ID, available bool) error {
	if driverID == "" {
		return ErrBadPosition
	}
	return s.store.SetAvailability(ctx, driverID, available)
}

func (s *Service) ListAvailable(ctx context.Context) ([]Driver, error) {
	return s.store.ListAvailable(ctx)
}
