package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/in"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

// Hooks: побочные эффекты при входе в статусы
type Hooks struct {
	// OnAccepted: вызывающий прекращает опрос и начинает трекинг маршрута
	OnAccepted func(domain.TripRequest)
	// OnEnded срабатывает не более одного раза на поездку
	OnEnded func(domain.TripRequest)
}

// tripState: всё, что контроллер знает об одной поездке
type tripState struct {
	fetchMu sync.Mutex // запросы снимков по одной поездке не перекрываются
	applyMu sync.Mutex // применение снимка и запись в кэш
	status  domain.Status
	ended   sync.Once
	poll    *poll
}

// SessionController ведёт клиентский жизненный цикл поездки и держит
// локальный кэш согласованным с подтверждённым backend'ом статусом.
// Контроллер: единственный writer ключей активной поездки.
type SessionController struct {
	api   out.TripAPI
	cache out.TripCache
	hooks Hooks
	log   *logger.Logger

	mu     sync.Mutex
	trips  map[string]*tripState
	closed map[string]domain.Status // завершённые поездки: остаётся только финальный статус
}

var _ in.TripSession = (*SessionController)(nil)

// NewSessionController создает контроллер сессии поездки
func NewSessionController(api out.TripAPI, cache out.TripCache, hooks Hooks, log *logger.Logger) *SessionController {
	return &SessionController{
		api:   api,
		cache: cache,
		hooks: hooks,
		log:   log,
		trips:  make(map[string]*tripState),
		closed: make(map[string]domain.Status),
	}
}

func (c *SessionController) state(tripID string) *tripState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.trips[tripID]
	if ok {
		return st
	}
	// финальный статус не меняется, состояние не хранится повторно
	if final, done := c.closed[tripID]; done {
		return &tripState{status: final}
	}
	st = &tripState{}
	c.trips[tripID] = st
	return st
}

// pruneLocked убирает состояние завершённой поездки без активного опроса.
// c.mu должен быть захвачен.
func (c *SessionController) pruneLocked(tripID string) {
	st, ok := c.trips[tripID]
	if !ok || st.poll != nil || !st.status.Terminal() {
		return
	}
	delete(c.trips, tripID)
	c.closed[tripID] = st.status
}

func (c *SessionController) prune(tripID string) {
	c.mu.Lock()
	c.pruneLocked(tripID)
	c.mu.Unlock()
}

// Status возвращает последний применённый статус ("" если поездка неизвестна)
func (c *SessionController) Status(tripID string) domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.trips[tripID]; ok {
		return st.status
	}
	return c.closed[tripID]
}

// SubmitRequest валидирует запрос локально и отправляет его на backend.
func (c *SessionController) SubmitRequest(ctx context.Context, input in.SubmitRequestInput) (*domain.TripRequest, error) {
	if err := validateSubmit(input); err != nil {
		c.log.Warn(logger.Entry{Action: "trip_request_invalid", Message: err.Error()})
		return nil, err
	}

	req := domain.TripRequest{
		RequesterID: input.RequesterID,
		Pickup:      *input.Pickup,
		Dropoff:     *input.Dropoff,
		Preferences: input.Preferences,
	}

	created, err := c.api.CreateTripRequest(ctx, req)
	if err != nil {
		c.log.Error(logger.Entry{
			Action:  "trip_request_failed",
			Message: err.Error(),
			Error:   logger.Err(err),
			Additional: map[string]any{
				"requester_id":      input.RequesterID,
				"no_provider_found": errors.Is(err, domain.ErrNoProviderAvailable),
			},
		})
		return nil, err
	}
	if created.Status == "" {
		created.Status = domain.StatusPending
	}

	// Новый запрос заменяет ранее закэшированный
	var previous domain.TripRequest
	if ok, err := c.cache.Load(ctx, out.CacheKeyTripRequest, &previous); err == nil && ok &&
		previous.ID != "" && previous.ID != created.ID {
		c.stopPoll(previous.ID)
		c.log.Info(logger.Entry{
			Action:  "trip_request_replaced",
			Message: previous.ID,
			TripID:  created.ID,
		})
	}

	if err := c.apply(ctx, *created); err != nil {
		return nil, err
	}

	c.log.Info(logger.Entry{
		Action:  "trip_requested",
		Message: "trip request created",
		TripID:  created.ID,
		Additional: map[string]any{
			"requester_id": created.RequesterID,
			"pickup":       created.Pickup.Name,
			"dropoff":      created.Dropoff.Name,
		},
	})
	return created, nil
}

func validateSubmit(input in.SubmitRequestInput) error {
	if input.RequesterID == "" {
		return fmt.Errorf("%w: requester id is required", domain.ErrValidationFailed)
	}
	if err := input.Pickup.Validate("pickup"); err != nil {
		return err
	}
	if err := input.Dropoff.Validate("dropoff"); err != nil {
		return err
	}
	if len(input.Preferences) == 0 {
		return fmt.Errorf("%w: preferences are required", domain.ErrValidationFailed)
	}
	for _, p := range input.Preferences {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Transition запрашивает переход статуса. Решение принимает backend,
// отказ возвращается вызывающему и не повторяется автоматически.
func (c *SessionController) Transition(ctx context.Context, tripID string, status domain.Status, actorID string) (*domain.TripRequest, error) {
	log := c.log.WithTrip(tripID)

	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidationFailed, status)
	}
	if cur := c.Status(tripID); cur != "" && !domain.CanTransition(cur, status) {
		log.Warn(logger.Entry{
			Action:     "transition_rejected_locally",
			Message:    fmt.Sprintf("%s -> %s", cur, status),
			Additional: map[string]any{"actor_id": actorID},
		})
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, status)
	}

	providerID := ""
	if status != domain.StatusCancelled {
		providerID = actorID
	}

	snap, err := c.api.UpdateStatus(ctx, tripID, status, providerID)
	if err != nil {
		log.Error(logger.Entry{
			Action:  "transition_failed",
			Message: err.Error(),
			Error:   logger.Err(err),
			Additional: map[string]any{
				"status":   status,
				"actor_id": actorID,
			},
		})
		return nil, err
	}

	// Ответ без тела: перечитываем снимок
	confirmed := true
	if snap == nil || snap.ID == "" {
		fresh, ferr := c.fetch(ctx, tripID)
		if ferr != nil {
			// переход принят, но снимка нет: кэш остаётся прежним до следующего чтения
			log.Warn(logger.Entry{
				Action:     "transition_snapshot_unavailable",
				Message:    ferr.Error(),
				Error:      logger.Err(ferr),
				Additional: map[string]any{"status": status},
			})
			fresh = &domain.TripRequest{ID: tripID}
			confirmed = false
		}
		snap = fresh
	}
	if snap.Status == "" || domain.IsStale(status, snap.Status) {
		snap.Status = status
	}

	if err := c.applySnapshot(ctx, *snap, confirmed); err != nil && !errors.Is(err, domain.ErrStaleRead) {
		return nil, err
	}

	log.Info(logger.Entry{
		Action:     "trip_transitioned",
		Message:    string(status),
		Additional: map[string]any{"actor_id": actorID},
	})
	return snap, nil
}

// Cancel отменяет поездку и останавливает её опрос. Кэш очищается только
// после подтверждения backend'ом. Повторная отмена: no-op.
func (c *SessionController) Cancel(ctx context.Context, tripID, actorID string) error {
	if c.Status(tripID) == domain.StatusCancelled {
		c.stopPoll(tripID)
		return nil
	}
	if _, err := c.Transition(ctx, tripID, domain.StatusCancelled, actorID); err != nil {
		return err
	}
	c.stopPoll(tripID)
	return nil
}

// Refresh перечитывает снимок и применяет его. Устаревший снимок
// отбрасывается с domain.ErrStaleRead.
func (c *SessionController) Refresh(ctx context.Context, tripID string) (*domain.TripRequest, error) {
	snap, err := c.fetch(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := c.apply(ctx, *snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// HandleEvent: push лишь повод перечитать поездку, данные события не применяются.
func (c *SessionController) HandleEvent(ctx context.Context, ev domain.Event) {
	if ev.TripID == "" {
		c.log.Warn(logger.Entry{Action: "push_event_without_trip", Message: ev.Type})
		return
	}
	log := c.log.WithTrip(ev.TripID)
	log.Debug(logger.Entry{Action: "push_event_received", Message: ev.Type})

	if _, err := c.Refresh(ctx, ev.TripID); err != nil {
		if errors.Is(err, domain.ErrStaleRead) {
			return
		}
		log.Error(logger.Entry{
			Action:  "push_refresh_failed",
			Message: err.Error(),
			Error:   logger.Err(err),
		})
	}
}

func (c *SessionController) fetch(ctx context.Context, tripID string) (*domain.TripRequest, error) {
	st := c.state(tripID)
	st.fetchMu.Lock()
	defer st.fetchMu.Unlock()

	snap, err := c.api.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if snap.ID == "" {
		snap.ID = tripID
	}
	if snap.ID != tripID {
		return nil, fmt.Errorf("%w: asked for %s, got %s", domain.ErrTripNotFound, tripID, snap.ID)
	}
	return snap, nil
}

// apply применяет подтверждённый снимок: статус не откатывается назад,
// кэш перезаписывается целиком, хуки срабатывают при входе в статус.
func (c *SessionController) apply(ctx context.Context, snap domain.TripRequest) error {
	return c.applySnapshot(ctx, snap, true)
}

// applySnapshot: при complete=false снимок содержит только статус,
// и кэш трогается лишь для очистки в финальном статусе.
func (c *SessionController) applySnapshot(ctx context.Context, snap domain.TripRequest, complete bool) error {
	if !snap.Status.Valid() {
		return fmt.Errorf("%w: snapshot status %q", domain.ErrValidationFailed, snap.Status)
	}
	st := c.state(snap.ID)
	log := c.log.WithTrip(snap.ID)

	st.applyMu.Lock()

	c.mu.Lock()
	last := st.status
	if domain.IsStale(last, snap.Status) {
		c.mu.Unlock()
		st.applyMu.Unlock()
		log.Debug(logger.Entry{
			Action:     "stale_snapshot_discarded",
			Message:    fmt.Sprintf("last=%s got=%s", last, snap.Status),
			Additional: map[string]any{"last": last, "got": snap.Status},
		})
		return fmt.Errorf("%w: last=%s got=%s", domain.ErrStaleRead, last, snap.Status)
	}
	st.status = snap.Status
	c.mu.Unlock()

	// повтор финального статуса не чистит кэш ещё раз: там может быть уже новый запрос
	repeat := last == snap.Status && last.Terminal()
	if (complete || snap.Status.Terminal()) && !repeat {
		if err := c.persist(ctx, snap); err != nil {
			log.Error(logger.Entry{
				Action:  "trip_cache_write_failed",
				Message: err.Error(),
				Error:   logger.Err(err),
			})
		}
	}
	st.applyMu.Unlock()

	if snap.Status.Terminal() {
		defer c.prune(snap.ID)
	}
	if last == snap.Status {
		return nil
	}

	log.Info(logger.Entry{
		Action:     "trip_status_applied",
		Message:    fmt.Sprintf("%s -> %s", last, snap.Status),
		Additional: map[string]any{"from": last, "to": snap.Status},
	})

	switch snap.Status {
	case domain.StatusAccepted:
		if c.hooks.OnAccepted != nil {
			c.hooks.OnAccepted(snap)
		}
	case domain.StatusEnded:
		st.ended.Do(func() {
			if c.hooks.OnEnded != nil {
				c.hooks.OnEnded(snap)
			}
		})
	}
	return nil
}

func (c *SessionController) persist(ctx context.Context, snap domain.TripRequest) error {
	switch snap.Status {
	case domain.StatusPending:
		return c.cache.Save(ctx, out.CacheKeyTripRequest, snap)
	case domain.StatusAccepted:
		return c.cache.Save(ctx, out.CacheKeyTripDetails, snap)
	case domain.StatusStarted:
		return c.cache.Save(ctx, out.CacheKeyStartedTrip, snap)
	case domain.StatusEnded, domain.StatusCancelled, domain.StatusRejected:
		return c.cache.Clear(ctx, out.ActiveTripKeys...)
	}
	return nil
}

func (c *SessionController) stopPoll(tripID string) {
	c.mu.Lock()
	var p *poll
	if st, ok := c.trips[tripID]; ok {
		p = st.poll
		st.poll = nil
		c.pruneLocked(tripID)
	}
	c.mu.Unlock()
	if p != nil {
		p.Cancel()
	}
}
