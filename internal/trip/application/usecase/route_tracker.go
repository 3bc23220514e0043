package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

const (
	defaultTrackInterval = 5 * time.Second
	defaultTrackDistance = 1.0
)

// RouteTracker пересчитывает маршрут от текущей позиции до точки назначения.
// Одновременно выполняется не больше одного запроса маршрута; отсчёты,
// пришедшие во время запроса, схлопываются до последнего.
type RouteTracker struct {
	feed        out.LocationFeed
	directions  out.DirectionsResolver
	minInterval time.Duration
	minDistance float64
	log         *logger.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sub      out.Subscription
	dest     domain.Position
	last     *domain.Position
	pending  *domain.Position
	inFlight bool
	onRoute  func(domain.Route)
	onError  func(error)

	deliverMu sync.Mutex // держится на время вызова onRoute/onError
	stopped   atomic.Bool
}

// NewRouteTracker создает трекер; один трекер на одну поездку
func NewRouteTracker(feed out.LocationFeed, directions out.DirectionsResolver, minInterval time.Duration, minDistance float64, log *logger.Logger) *RouteTracker {
	if minInterval <= 0 {
		minInterval = defaultTrackInterval
	}
	if minDistance <= 0 {
		minDistance = defaultTrackDistance
	}
	return &RouteTracker{
		feed:        feed,
		directions:  directions,
		minInterval: minInterval,
		minDistance: minDistance,
		log:         log,
	}
}

// Start подписывается на поток позиций. domain.ErrPermissionDenied
// возвращается синхронно.
func (t *RouteTracker) Start(ctx context.Context, destination domain.Position, onRoute func(domain.Route), onError func(error)) error {
	if !destination.Valid() {
		return domain.ErrValidationFailed
	}

	tctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.ctx, t.cancel = tctx, cancel
	t.dest = destination
	t.onRoute, t.onError = onRoute, onError
	t.mu.Unlock()

	sub, err := t.feed.Subscribe(tctx, t.minInterval, t.minDistance, t.Update)
	if err != nil {
		cancel()
		t.log.Warn(logger.Entry{Action: "route_tracking_denied", Message: err.Error(), Error: logger.Err(err)})
		return err
	}

	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	if t.stopped.Load() {
		sub.Unsubscribe()
	}

	t.log.Info(logger.Entry{
		Action:  "route_tracking_started",
		Message: "tracking route to destination",
		Additional: map[string]any{
			"destination_lat": destination.Latitude,
			"destination_lng": destination.Longitude,
		},
	})
	return nil
}

// SetDestination меняет точку назначения и пересчитывает маршрут
// от последней известной позиции.
func (t *RouteTracker) SetDestination(destination domain.Position) {
	t.mu.Lock()
	t.dest = destination
	last := t.last
	t.mu.Unlock()
	if last != nil {
		t.Update(*last)
	}
}

// Update принимает новый отсчёт позиции
func (t *RouteTracker) Update(pos domain.Position) {
	if t.stopped.Load() {
		return
	}
	t.mu.Lock()
	p := pos
	t.last = &p
	if t.inFlight {
		t.pending = &p
		t.mu.Unlock()
		return
	}
	t.inFlight = true
	t.mu.Unlock()

	go t.resolve(pos)
}

func (t *RouteTracker) resolve(pos domain.Position) {
	for {
		t.mu.Lock()
		ctx, dest := t.ctx, t.dest
		t.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}

		route, err := t.directions.GetRoute(ctx, pos, dest)

		t.mu.Lock()
		if t.stopped.Load() {
			t.inFlight = false
			t.pending = nil
			t.mu.Unlock()
			return
		}
		if next := t.pending; next != nil {
			// результат уже устарел
			t.pending = nil
			pos = *next
			t.mu.Unlock()
			continue
		}
		onRoute, onError := t.onRoute, t.onError
		t.mu.Unlock()

		t.deliver(route, err, onRoute, onError)

		t.mu.Lock()
		if next := t.pending; next != nil && !t.stopped.Load() {
			t.pending = nil
			pos = *next
			t.mu.Unlock()
			continue
		}
		t.inFlight = false
		t.mu.Unlock()
		return
	}
}

func (t *RouteTracker) deliver(route *domain.Route, err error, onRoute func(domain.Route), onError func(error)) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	if t.stopped.Load() {
		return
	}
	if err != nil {
		t.log.Warn(logger.Entry{Action: "route_recompute_failed", Message: err.Error(), Error: logger.Err(err)})
		if onError != nil {
			onError(err)
		}
		return
	}
	t.log.Debug(logger.Entry{
		Action:  "route_recomputed",
		Message: route.DistanceText,
		Additional: map[string]any{
			"duration": route.DurationText,
			"points":   len(route.Points),
		},
	})
	if onRoute != nil {
		onRoute(*route)
	}
}

// Stop идемпотентен; после возврата новые маршруты не доставляются.
// Ждёт уже идущий onRoute, поэтому из самого onRoute не вызывается.
func (t *RouteTracker) Stop() {
	t.deliverMu.Lock()
	already := t.stopped.Swap(true)
	t.deliverMu.Unlock()
	if already {
		return
	}
	t.mu.Lock()
	sub, cancel := t.sub, t.cancel
	t.pending = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	t.log.Info(logger.Entry{Action: "route_tracking_stopped", Message: "tracking stopped"})
}
