// README: Pricing service computes fare quotes from per-class rates.
package pricing

import (
	"context"
	"math"
	"sync"
	"time"

	"glide/internal/types"
)

// RateSource is the rate lookup contract. *Store satisfies it; tests use a
// fixed table.
type RateSource interface {
	GetRate(ctx context.Context, transportClass string) (Rate, error)
}

type Service struct {
	rates RateSource

	// Rates change rarely; cache them briefly so every quote is not a
	// round-trip.
	mu     sync.Mutex
	cache  map[string]cachedRate
	maxAge time.Duration
}

type cachedRate struct {
	rate      Rate
	fetchedAt time.Time
}

func NewService(rates RateSource) *Service {
	return &Service{
		rates:  rates,
		cache:  make(map[string]cachedRate),
		maxAge: 5 * time.Minute,
	}
}

// Estimate quotes base fare plus per-km distance charge, rounded up to whole
// kilometres the way meters bill partial distance.
func (s *Service) Estimate(ctx context.Context, distanceKm float64, transportClass string) (types.Money, error) {
	rate, err := s.rate(ctx, transportClass)
	if err != nil {
		return types.Money{}, err
	}
	billableKm := int64(math.Ceil(distanceKm))
	if billableKm < 0 {
		billableKm = 0
	}
	return types.Money{
		Amount:   rate.BaseFare + rate.PerKm*billableKm,
		Currency: rate.Currency,
	}, nil
}

func (s *Service) rate(ctx context.Context, transportClass string) (Rate, error) {
	s.mu.Lock()
	if c, ok := s.cache[transportClass]; ok && time.Since(c.fetchedAt) < s.maxAge {
		s.mu.Unlock()
		return c.rate, nil
	}
	s.mu.Unlock()

	rate, err := s.rates.GetRate(ctx, transportClass)
	if err != nil {
		return Rate{}, err
	}

	s.mu.Lock()
	s.cache[transportClass] = cachedRate{rate: rate, fetchedAt: time.Now()}
	s.mu.Unlock()
	return rate, nil
}
