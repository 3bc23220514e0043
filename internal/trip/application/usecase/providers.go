package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

const (
	defaultGeohashPrecision = 7
	defaultProvidersTTL     = 30 * time.Second
)

type providerCell struct {
	providers []domain.Provider
	fetchedAt time.Time
}

// ProviderLocator кэширует список провайдеров рядом по ячейке geohash
type ProviderLocator struct {
	api       out.LocationAPI
	precision uint
	ttl       time.Duration
	now       func() time.Time
	log       *logger.Logger

	mu    sync.Mutex
	cells map[string]providerCell
}

func NewProviderLocator(api out.LocationAPI, precision uint, ttl time.Duration, log *logger.Logger) *ProviderLocator {
	if precision == 0 || precision > 12 {
		precision = defaultGeohashPrecision
	}
	if ttl <= 0 {
		ttl = defaultProvidersTTL
	}
	return &ProviderLocator{
		api:       api,
		precision: precision,
		ttl:       ttl,
		now:       time.Now,
		log:       log,
		cells:     make(map[string]providerCell),
	}
}

// Nearby возвращает провайдеров рядом с позицией
func (l *ProviderLocator) Nearby(ctx context.Context, pos domain.Position) ([]domain.Provider, error) {
	if err := domain.ValidateCoordinates(pos.Latitude, pos.Longitude); err != nil {
		return nil, err
	}
	cell := geohash.EncodeWithPrecision(pos.Latitude, pos.Longitude, l.precision)

	l.mu.Lock()
	cached, ok := l.cells[cell]
	l.mu.Unlock()
	if ok && l.now().Sub(cached.fetchedAt) < l.ttl {
		l.log.Debug(logger.Entry{Action: "providers_cache_hit", Message: cell})
		return append([]domain.Provider(nil), cached.providers...), nil
	}

	providers, err := l.api.NearbyProviders(ctx, pos.Latitude, pos.Longitude)
	if err != nil {
		l.log.Error(logger.Entry{Action: "providers_lookup_failed", Message: err.Error(), Error: logger.Err(err)})
		return nil, err
	}

	l.mu.Lock()
	l.cells[cell] = providerCell{providers: providers, fetchedAt: l.now()}
	l.mu.Unlock()

	l.log.Info(logger.Entry{
		Action:     "providers_loaded",
		Message:    cell,
		Additional: map[string]any{"count": len(providers)},
	})
	return append([]domain.Provider(nil), providers...), nil
}
