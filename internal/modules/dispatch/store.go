// README: Driver profile lookup for the rider-side match results.
package dispatch

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"glide/internal/types"
)

type ProfileStore struct {
	db *pgxpool.Pool
}

func NewProfileStore(db *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) ProfilesByIDs(ctx context.Context, ids []types.ID) (map[types.ID]Profile, error) {
	if len(ids) == 0 {
		return map[types.ID]Profile{}, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, name, plate_number, vehicle_type
		FROM users
		WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID]Profile, len(ids))
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.PlateNumber, &p.VehicleType); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
