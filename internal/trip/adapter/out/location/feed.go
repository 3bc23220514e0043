package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

const defaultMinInterval = 5 * time.Second

// ErrTrackEnded: источник больше не отдаёт позиции
var ErrTrackEnded = errors.New("location track ended")

// Source: платформенный источник геолокации
type Source interface {
	// Authorize возвращает ошибку, если доступ к геолокации не выдан
	Authorize(ctx context.Context) error
	Current(ctx context.Context) (domain.Position, error)
}

// Feed: LocationFeed поверх Source. nil source означает отказ в доступе.
type Feed struct {
	source Source
	log    *logger.Logger
}

var _ out.LocationFeed = (*Feed)(nil)

func NewFeed(source Source, log *logger.Logger) *Feed {
	return &Feed{source: source, log: log}
}

func (f *Feed) authorize(ctx context.Context) error {
	if f.source == nil {
		return fmt.Errorf("%w: no location source", domain.ErrPermissionDenied)
	}
	if err := f.source.Authorize(ctx); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	return nil
}

// Current возвращает одну позицию
func (f *Feed) Current(ctx context.Context) (domain.Position, error) {
	if err := f.authorize(ctx); err != nil {
		return domain.Position{}, err
	}
	pos, err := f.source.Current(ctx)
	if err != nil {
		return domain.Position{}, err
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now()
	}
	return pos, nil
}

// subscription: одна активная подписка
type subscription struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	mu      sync.Mutex // держится на время вызова onPosition
	once    sync.Once
}

// Unsubscribe идемпотентен. После возврата onPosition больше не вызывается.
// Нельзя вызывать синхронно из самого onPosition.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		// ждём доставку, которая уже идёт
		s.mu.Lock()
		s.stopped.Store(true)
		s.mu.Unlock()
		s.cancel()
	})
}

func (s *subscription) deliver(pos domain.Position, onPosition func(domain.Position)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return false
	}
	onPosition(pos)
	return true
}

// Subscribe запускает опрос источника с шагом minInterval и отдаёт позиции,
// сместившиеся хотя бы на minDistanceMeters. Первая позиция отдаётся всегда.
func (f *Feed) Subscribe(ctx context.Context, minInterval time.Duration, minDistanceMeters float64, onPosition func(domain.Position)) (out.Subscription, error) {
	if err := f.authorize(ctx); err != nil {
		f.log.Warn(logger.Entry{Action: "location_permission_denied", Message: err.Error()})
		return nil, err
	}
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}

	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel}

	f.log.Debug(logger.Entry{
		Action:  "location_subscribed",
		Message: "subscribed",
		Additional: map[string]any{
			"min_interval": minInterval.String(),
			"min_distance": minDistanceMeters,
		},
	})

	go f.run(sctx, sub, minInterval, minDistanceMeters, onPosition)
	return sub, nil
}

func (f *Feed) run(ctx context.Context, sub *subscription, interval time.Duration, minDistance float64, onPosition func(domain.Position)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *domain.Position
	for {
		pos, err := f.source.Current(ctx)
		switch {
		case errors.Is(err, ErrTrackEnded):
			f.log.Info(logger.Entry{Action: "location_track_ended", Message: "track replay finished"})
			return
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			f.log.Warn(logger.Entry{Action: "location_read_failed", Message: err.Error(), Error: logger.Err(err)})
		case last == nil || DistanceMeters(*last, pos) >= minDistance:
			if pos.Timestamp.IsZero() {
				pos.Timestamp = time.Now()
			}
			if !sub.deliver(pos, onPosition) {
				return
			}
			p := pos
			last = &p
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DistanceMeters: расстояние между точками по формуле Haversine
func DistanceMeters(a, b domain.Position) float64 {
	const earthRadius = 6371000.0 // м

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
