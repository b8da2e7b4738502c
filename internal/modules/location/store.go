// README: Location store backed by Redis GEO and Postgres snapshots.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"glide/internal/types"
)

const (
	geoKey       = "geo:drivers"
	availableKey = "drivers:available"
)

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, rdb *redis.Client) *Store {
	return &Store{db: db, redis: rdb}
}

func (s *Store) SetPosition(ctx context.Context, id types.ID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(id),
		Latitude:  pos.Lat,
		Longitude: pos.Lng,
	}).Err()
}

// Position returns the driver's last indexed position; ok is false when the
// driver has never reported one.
func (s *Store) Position(ctx context.Context, id types.ID) (types.Point, bool, error) {
	res, err := s.redis.GeoPos(ctx, geoKey, string(id)).Result()
	if err != nil {
		return types.Point{}, false, err
	}
	if len(res) == 0 || res[0] == nil {
		return types.Point{}, false, nil
	}
	return types.Point{Lat: res[0].Latitude, Lng: res[0].Longitude}, true, nil
}

func (s *Store) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	if available {
		return s.redis.SAdd(ctx, availableKey, string(id)).Err()
	}
	return s.redis.SRem(ctx, availableKey, string(id)).Err()
}

// ListAvailable returns every available driver that has a known position.
// Drivers on the availability set with no GEO entry yet are skipped.
func (s *Store) ListAvailable(ctx context.Context) ([]Driver, error) {
	ids, err := s.redis.SMembers(ctx, availableKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	positions, err := s.redis.GeoPos(ctx, geoKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	drivers := make([]Driver, 0, len(ids))
	for i, id := range ids {
		if i >= len(positions) || positions[i] == nil {
			continue
		}
		drivers = append(drivers, Driver{
			ID:        types.ID(id),
			Position:  types.Point{Lat: positions[i].Latitude, Lng: positions[i].Longitude},
			Available: true,
		})
	}
	return drivers, nil
}

// AppendSnapshot persists a position sample for replay. A nil pool makes this
// a no-op so redis-only deployments still work.
func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO location_snapshots (driver_id, latitude, longitude, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(snap.DriverID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	)
	return err
}
