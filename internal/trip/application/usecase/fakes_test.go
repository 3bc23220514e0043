package usecase

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

func testLogger() *logger.Logger {
	return logger.NewWithWriter("beside-test", logger.LevelError, io.Discard)
}

func snapshot(id string, st domain.Status) domain.TripRequest {
	return domain.TripRequest{
		ID:          id,
		RequesterID: "user-1",
		Pickup:      domain.Place{Name: "Home", Latitude: 6.9271, Longitude: 79.8612},
		Dropoff:     domain.Place{Name: "Office", Latitude: 6.9147, Longitude: 79.9733},
		Status:      st,
	}
}

// fakeTripAPI: управляемый backend
type fakeTripAPI struct {
	mu sync.Mutex

	createFn    func(req domain.TripRequest) (*domain.TripRequest, error)
	createCalls int

	getFn    func(call int) (*domain.TripRequest, error)
	getCalls int

	updateFn    func(call int, status domain.Status, providerID string) (*domain.TripRequest, error)
	updateCalls int

	records  []domain.TripRecord
	recordFn func(rec domain.TripRecord) (*domain.TripRecord, error)

	history []domain.TripRecord
}

func (f *fakeTripAPI) CreateTripRequest(_ context.Context, req domain.TripRequest) (*domain.TripRequest, error) {
	f.mu.Lock()
	f.createCalls++
	fn := f.createFn
	f.mu.Unlock()
	if fn == nil {
		created := req
		created.ID = "trip-1"
		created.Status = domain.StatusPending
		return &created, nil
	}
	return fn(req)
}

func (f *fakeTripAPI) GetTrip(_ context.Context, tripID string) (*domain.TripRequest, error) {
	f.mu.Lock()
	f.getCalls++
	call := f.getCalls
	fn := f.getFn
	f.mu.Unlock()
	if fn == nil {
		return nil, domain.ErrTripNotFound
	}
	return fn(call)
}

func (f *fakeTripAPI) UpdateStatus(_ context.Context, tripID string, status domain.Status, providerID string) (*domain.TripRequest, error) {
	f.mu.Lock()
	f.updateCalls++
	call := f.updateCalls
	fn := f.updateFn
	f.mu.Unlock()
	if fn == nil {
		snap := snapshot(tripID, status)
		return &snap, nil
	}
	return fn(call, status, providerID)
}

func (f *fakeTripAPI) CreateTripRecord(_ context.Context, rec domain.TripRecord) (*domain.TripRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordFn != nil {
		return f.recordFn(rec)
	}
	rec.ID = "record-1"
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeTripAPI) ListTrips(_ context.Context, _ domain.Role, _ string) ([]domain.TripRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeTripAPI) calls() (create, get, update int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.getCalls, f.updateCalls
}

// script возвращает снимки по порядку, последний повторяется
func script(id string, statuses ...domain.Status) func(int) (*domain.TripRequest, error) {
	return func(call int) (*domain.TripRequest, error) {
		i := call - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		snap := snapshot(id, statuses[i])
		return &snap, nil
	}
}

// memCache: TripCache в памяти
type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemCache() *memCache { return &memCache{data: make(map[string]string)} }

func (c *memCache) Save(_ context.Context, key string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = string(raw)
	c.mu.Unlock()
	return nil
}

func (c *memCache) Load(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	raw, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), dst)
}

func (c *memCache) Clear(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

var _ out.TripCache = (*memCache)(nil)

// fakeFeed отдаёт позиции вручную через emit
type fakeFeed struct {
	mu           sync.Mutex
	deny         bool
	onPosition   func(domain.Position)
	interval     time.Duration
	unsubscribed int
}

type fakeSub struct {
	feed *fakeFeed
	once sync.Once
}

func (s *fakeSub) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		s.feed.onPosition = nil
		s.feed.unsubscribed++
		s.feed.mu.Unlock()
	})
}

func (f *fakeFeed) Subscribe(_ context.Context, minInterval time.Duration, _ float64, onPosition func(domain.Position)) (out.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny {
		return nil, domain.ErrPermissionDenied
	}
	f.onPosition = onPosition
	f.interval = minInterval
	return &fakeSub{feed: f}, nil
}

func (f *fakeFeed) Current(context.Context) (domain.Position, error) {
	return domain.Position{Latitude: 6.9271, Longitude: 79.8612}, nil
}

func (f *fakeFeed) emit(pos domain.Position) {
	f.mu.Lock()
	cb := f.onPosition
	f.mu.Unlock()
	if cb != nil {
		cb(pos)
	}
}

// fakeLocationAPI считает обращения к backend позиций
type fakeLocationAPI struct {
	mu           sync.Mutex
	nearbyCalls  int
	providers    []domain.Provider
	saved        []domain.Position
	saveErr      error
	availability []bool
}

func (f *fakeLocationAPI) NearbyProviders(_ context.Context, lat, lng float64) ([]domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nearbyCalls++
	return f.providers, nil
}

func (f *fakeLocationAPI) SaveLocation(_ context.Context, _ string, lat, lng float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, domain.Position{Latitude: lat, Longitude: lng})
	return f.saveErr
}

func (f *fakeLocationAPI) CurrentUser(context.Context) (*domain.User, error) {
	return &domain.User{ID: "provider-1", Role: string(domain.RoleProvider)}, nil
}

func (f *fakeLocationAPI) GetUser(_ context.Context, id string) (*domain.User, error) {
	return &domain.User{ID: id}, nil
}

func (f *fakeLocationAPI) SetAvailability(_ context.Context, _ string, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availability = append(f.availability, available)
	return nil
}
