// README: Pricing store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnknownClass = errors.New("no rate for transport class")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, transportClass string) (Rate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT transport_class, base_fare, per_km, currency
		FROM pricing_rates
		WHERE transport_class = $1`, transportClass)

	var r Rate
	err := row.Scan(&r.TransportClass, &r.BaseFare, &r.PerKm, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrUnknownClass
	}
	if err != nil {
		return Rate{}, err
	}
	return r, nil
}
