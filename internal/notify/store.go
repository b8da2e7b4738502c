// README: Device-token lookup backed by the users table.
package notify

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"glide/internal/types"
)

type TokenStore struct {
	db *pgxpool.Pool
}

func NewTokenStore(db *pgxpool.Pool) *TokenStore {
	return &TokenStore{db: db}
}

// DeviceToken returns the user's registered token, or empty when the user is
// unknown or has no device. Neither is an error.
func (s *TokenStore) DeviceToken(ctx context.Context, userID types.ID) (string, error) {
	row := s.db.QueryRow(ctx, `SELECT device_token FROM users WHERE id = $1`, string(userID))
	var token string
	err := row.Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}
