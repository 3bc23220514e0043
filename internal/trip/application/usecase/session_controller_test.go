package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beside/internal/trip/application/ports/in"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

func validInput() in.SubmitRequestInput {
	yes, no, dist := true, false, 5
	return in.SubmitRequestInput{
		RequesterID: "user-1",
		Pickup:      &domain.Place{Name: "Home", Latitude: 6.9271, Longitude: 79.8612},
		Dropoff:     &domain.Place{Name: "Office", Latitude: 6.9147, Longitude: 79.9733},
		Preferences: []domain.Preference{{
			Type: "female", Communication: &yes, Physical: &no, Identity: &yes, KeepDistance: &dist, Safety: "High",
		}},
	}
}

// drain читает снимки до закрытия канала
func drain(t *testing.T, p in.Poll) []domain.TripRequest {
	t.Helper()
	var got []domain.TripRequest
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-p.Snapshots():
			if !ok {
				return got
			}
			got = append(got, snap)
		case <-timeout:
			t.Fatal("poll did not finish")
			return got
		}
	}
}

func statuses(snaps []domain.TripRequest) []domain.Status {
	res := make([]domain.Status, 0, len(snaps))
	for _, s := range snaps {
		res = append(res, s.Status)
	}
	return res
}

var fastPoll = in.PollOptions{Interval: time.Millisecond, Timeout: time.Second, MaxFailures: 3}

func TestSubmitRequestValidationMakesNoCalls(t *testing.T) {
	api := &fakeTripAPI{}
	c := NewSessionController(api, newMemCache(), Hooks{}, testLogger())

	noDropoff := validInput()
	noDropoff.Dropoff = nil
	_, err := c.SubmitRequest(context.Background(), noDropoff)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	noSafety := validInput()
	noSafety.Preferences[0].Safety = ""
	_, err = c.SubmitRequest(context.Background(), noSafety)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	noPrefs := validInput()
	noPrefs.Preferences = nil
	_, err = c.SubmitRequest(context.Background(), noPrefs)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	create, get, update := api.calls()
	assert.Zero(t, create+get+update)
}

func TestSubmitRequestCachesPendingRequest(t *testing.T) {
	api := &fakeTripAPI{}
	cache := newMemCache()
	c := NewSessionController(api, cache, Hooks{}, testLogger())

	trip, err := c.SubmitRequest(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "trip-1", trip.ID)
	assert.Equal(t, domain.StatusPending, c.Status("trip-1"))

	var cached domain.TripRequest
	ok, err := cache.Load(context.Background(), out.CacheKeyTripRequest, &cached)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "trip-1", cached.ID)
	assert.Equal(t, "Office", cached.Dropoff.Name)
}

func TestSubmitRequestNoProvider(t *testing.T) {
	api := &fakeTripAPI{createFn: func(domain.TripRequest) (*domain.TripRequest, error) {
		return nil, domain.ErrNoProviderAvailable
	}}
	cache := newMemCache()
	c := NewSessionController(api, cache, Hooks{}, testLogger())

	_, err := c.SubmitRequest(context.Background(), validInput())
	assert.ErrorIs(t, err, domain.ErrNoProviderAvailable)
	assert.False(t, cache.has(out.CacheKeyTripRequest))
}

func TestSubmitRequestReplacesPreviousPoll(t *testing.T) {
	api := &fakeTripAPI{getFn: script("trip-0", domain.StatusPending)}
	cache := newMemCache()
	c := NewSessionController(api, cache, Hooks{}, testLogger())

	old := snapshot("trip-0", domain.StatusPending)
	require.NoError(t, cache.Save(context.Background(), out.CacheKeyTripRequest, old))

	p := c.PollUntil(context.Background(), "trip-0", []domain.Status{domain.StatusAccepted}, in.PollOptions{Interval: time.Millisecond})
	go func() {
		for range p.Snapshots() {
		}
	}()

	_, err := c.SubmitRequest(context.Background(), validInput())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return errors.Is(p.Err(), context.Canceled) }, time.Second, 5*time.Millisecond)
}

func TestPollStopsWhenAccepted(t *testing.T) {
	api := &fakeTripAPI{getFn: script("trip-1", domain.StatusPending, domain.StatusPending, domain.StatusAccepted)}
	cache := newMemCache()
	var accepted atomic.Int32
	c := NewSessionController(api, cache, Hooks{OnAccepted: func(domain.TripRequest) { accepted.Add(1) }}, testLogger())

	p := c.PollUntil(context.Background(), "trip-1", []domain.Status{domain.StatusAccepted}, fastPoll)
	got := drain(t, p)

	require.NoError(t, p.Err())
	assert.Equal(t, []domain.Status{domain.StatusPending, domain.StatusPending, domain.StatusAccepted}, statuses(got))
	assert.Equal(t, int32(1), accepted.Load())
	assert.True(t, cache.has(out.CacheKeyTripDetails))

	time.Sleep(20 * time.Millisecond)
	_, get, _ := api.calls()
	assert.Equal(t, 3, get)
}

func TestPollDiscardsStaleSnapshot(t *testing.T) {
	api := &fakeTripAPI{getFn: script("trip-1", domain.StatusAccepted, domain.StatusPending, domain.StatusStarted)}
	c := NewSessionController(api, newMemCache(), Hooks{}, testLogger())

	p := c.PollUntil(context.Background(), "trip-1", []domain.Status{domain.StatusStarted}, fastPoll)
	got := drain(t, p)

	require.NoError(t, p.Err())
	assert.Equal(t, []domain.Status{domain.StatusAccepted, domain.StatusStarted}, statuses(got))
	assert.Equal(t, domain.StatusStarted, c.Status("trip-1"))
}

func TestPollSurfacesNetworkAfterBudget(t *testing.T) {
	api := &fakeTripAPI{getFn: func(int) (*domain.TripRequest, error) { return nil, domain.ErrNetwork }}
	c := NewSessionController(api, newMemCache(), Hooks{}, testLogger())

	p := c.PollUntil(context.Background(), "trip-1", []domain.Status{domain.StatusAccepted},
		in.PollOptions{Interval: time.Millisecond, Timeout: time.Second, MaxFailures: 2})
	assert.Empty(t, drain(t, p))

	assert.ErrorIs(t, p.Err(), domain.ErrNetwork)
	_, get, _ := api.calls()
	assert.Equal(t, 3, get)
}

func TestPollTimesOut(t *testing.T) {
	api := &fakeTripAPI{getFn: script("trip-1", domain.StatusPending)}
	c := NewSessionController(api, newMemCache(), Hooks{}, testLogger())

	p := c.PollUntil(context.Background(), "trip-1", []domain.Status{domain.StatusAccepted},
		in.PollOptions{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond})
	drain(t, p)

	assert.ErrorIs(t, p.Err(), domain.ErrPollTimeout)
}

func TestPollRejectedMeansNoProvider(t *testing.T) {
	api := &fakeTripAPI{getFn: script("trip-1", domain.StatusPending, domain.StatusRejected)}
	cache := newMemCache()
	c := NewSessionController(api, cache, Hooks{}, testLogger())

	p := c.PollUntil(context.Background(), "trip-1", []domain.Status{domain.StatusAccepted}, fastPoll)
	drain(t, p)

	assert.ErrorIs(t, p.Err(), domain.ErrNoProviderAvailable)
	assert.False(t, cache.has(out.CacheKeyTripRequest))
}

func TestPollCancelIsIdempotent(t *testing.T) {
	api := &fakeTripAPI{getFn: script("trip-1", domain.StatusPending)}
	c := NewSessionController(api, newMemCache(), Hooks{}, testLogger())

	p := c.PollUntil(context.Background(), "trip-1", []domain.Status{domain.StatusAccepted}, in.PollOptions{Interval: time.Millisecond})
	<-p.Snapshots()
	p.Cancel()
	p.Cancel()
	drain(t, p)

	assert.ErrorIs(t, p.Err(), context.Canceled)
}

func TestTransitionRejectedLocally(t *testing.T) {
	api := &fakeTripAPI{}
	c := NewSessionController(api, newMemCache(), Hooks{}, testLogger())
	_, err := c.SubmitRequest(context.Background(), validInput())
	require.NoError(t, err)

	_, err = c.Transition(context.Background(), "trip-1", domain.StatusStarted, "provider-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, _, update := api.calls()
	assert.Zero(t, update)
}

func TestConcurrentStartSurfacesOneRejection(t *testing.T) {
	api := &fakeTripAPI{
		getFn: script("trip-1", domain.StatusAccepted),
		updateFn: func(call int, status domain.Status, _ string) (*domain.TripRequest, error) {
			if call == 1 {
				time.Sleep(10 * time.Millisecond)
				snap := snapshot("trip-1", status)
				return &snap, nil
			}
			return nil, domain.ErrInvalidTransition
		},
	}
	c := NewSessionController(api, newMemCache(), Hooks{}, testLogger())
	_, err := c.Refresh(context.Background(), "trip-1")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Transition(context.Background(), "trip-1", domain.StatusStarted, "provider-1")
		}(i)
	}
	wg.Wait()

	rejected := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			rejected++
		}
	}
	assert.Equal(t, 1, rejected)
	assert.Equal(t, domain.StatusStarted, c.Status("trip-1"))
}

func TestEndedFiresOnceForPollAndPush(t *testing.T) {
	api := &fakeTripAPI{getFn: script("trip-1", domain.StatusEnded)}
	cache := newMemCache()
	var ended atomic.Int32
	c := NewSessionController(api, cache, Hooks{OnEnded: func(domain.TripRequest) { ended.Add(1) }}, testLogger())

	require.NoError(t, cache.Save(context.Background(), out.CacheKeyStartedTrip, snapshot("trip-1", domain.StatusStarted)))

	p := c.PollUntil(context.Background(), "trip-1", []domain.Status{domain.StatusEnded}, fastPoll)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.HandleEvent(context.Background(), domain.Event{TripID: "trip-1", Type: "trip_ended"})
		}()
	}
	drain(t, p)
	wg.Wait()

	require.NoError(t, p.Err())
	assert.Equal(t, int32(1), ended.Load())
	for _, key := range out.ActiveTripKeys {
		assert.False(t, cache.has(key), key)
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	api := &fakeTripAPI{getFn: script("trip-1", domain.StatusStarted, domain.StatusAccepted, domain.StatusPending)}
	c := NewSessionController(api, newMemCache(), Hooks{}, testLogger())

	_, err := c.Refresh(context.Background(), "trip-1")
	require.NoError(t, err)
	_, err = c.Refresh(context.Background(), "trip-1")
	assert.ErrorIs(t, err, domain.ErrStaleRead)
	c.HandleEvent(context.Background(), domain.Event{TripID: "trip-1"})

	assert.Equal(t, domain.StatusStarted, c.Status("trip-1"))
}

func TestCancelClearsCacheOnlyAfterSuccess(t *testing.T) {
	api := &fakeTripAPI{
		getFn: script("trip-1", domain.StatusPending),
		updateFn: func(call int, status domain.Status, _ string) (*domain.TripRequest, error) {
			if call == 1 {
				return nil, domain.ErrNetwork
			}
			snap := snapshot("trip-1", status)
			return &snap, nil
		},
	}
	cache := newMemCache()
	c := NewSessionController(api, cache, Hooks{}, testLogger())
	_, err := c.SubmitRequest(context.Background(), validInput())
	require.NoError(t, err)

	p := c.PollUntil(context.Background(), "trip-1", []domain.Status{domain.StatusAccepted}, in.PollOptions{Interval: time.Millisecond})
	go func() {
		for range p.Snapshots() {
		}
	}()

	err = c.Cancel(context.Background(), "trip-1", "user-1")
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.True(t, cache.has(out.CacheKeyTripRequest))
	assert.NoError(t, p.Err())

	require.NoError(t, c.Cancel(context.Background(), "trip-1", "user-1"))
	assert.False(t, cache.has(out.CacheKeyTripRequest))
	assert.Equal(t, domain.StatusCancelled, c.Status("trip-1"))
	require.Eventually(t, func() bool { return p.Err() != nil }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Cancel(context.Background(), "trip-1", "user-1"))
	_, _, update := api.calls()
	assert.Equal(t, 2, update)
}

func TestTransitionWithoutSnapshotKeepsCachedTrip(t *testing.T) {
	api := &fakeTripAPI{
		getFn: func(call int) (*domain.TripRequest, error) {
			if call == 1 {
				snap := snapshot("trip-1", domain.StatusAccepted)
				return &snap, nil
			}
			return nil, domain.ErrNetwork
		},
		updateFn: func(int, domain.Status, string) (*domain.TripRequest, error) {
			return nil, nil
		},
	}
	cache := newMemCache()
	c := NewSessionController(api, cache, Hooks{}, testLogger())
	_, err := c.Refresh(context.Background(), "trip-1")
	require.NoError(t, err)

	snap, err := c.Transition(context.Background(), "trip-1", domain.StatusStarted, "provider-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarted, snap.Status)
	assert.Equal(t, domain.StatusStarted, c.Status("trip-1"))

	assert.False(t, cache.has(out.CacheKeyStartedTrip))
	var details domain.TripRequest
	ok, err := cache.Load(context.Background(), out.CacheKeyTripDetails, &details)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Home", details.Pickup.Name)
	assert.Equal(t, "user-1", details.RequesterID)
}

func TestTransitionWithoutSnapshotStillClearsOnEnd(t *testing.T) {
	api := &fakeTripAPI{
		getFn: func(call int) (*domain.TripRequest, error) {
			if call == 1 {
				snap := snapshot("trip-1", domain.StatusStarted)
				return &snap, nil
			}
			return nil, domain.ErrNetwork
		},
		updateFn: func(int, domain.Status, string) (*domain.TripRequest, error) {
			return nil, nil
		},
	}
	cache := newMemCache()
	c := NewSessionController(api, cache, Hooks{}, testLogger())
	_, err := c.Refresh(context.Background(), "trip-1")
	require.NoError(t, err)
	require.True(t, cache.has(out.CacheKeyStartedTrip))

	_, err = c.Transition(context.Background(), "trip-1", domain.StatusEnded, "provider-1")
	require.NoError(t, err)
	for _, key := range out.ActiveTripKeys {
		assert.False(t, cache.has(key), key)
	}
}

func TestFinishedTripStateIsPruned(t *testing.T) {
	api := &fakeTripAPI{getFn: script("trip-1", domain.StatusEnded, domain.StatusEnded, domain.StatusPending)}
	cache := newMemCache()
	var ended atomic.Int32
	c := NewSessionController(api, cache, Hooks{OnEnded: func(domain.TripRequest) { ended.Add(1) }}, testLogger())

	_, err := c.Refresh(context.Background(), "trip-1")
	require.NoError(t, err)

	c.mu.Lock()
	assert.Empty(t, c.trips)
	c.mu.Unlock()
	assert.Equal(t, domain.StatusEnded, c.Status("trip-1"))

	// новый запрос уже в кэше: повтор ended его не стирает
	require.NoError(t, cache.Save(context.Background(), out.CacheKeyTripRequest, snapshot("trip-2", domain.StatusPending)))
	_, err = c.Refresh(context.Background(), "trip-1")
	require.NoError(t, err)
	_, err = c.Refresh(context.Background(), "trip-1")
	assert.ErrorIs(t, err, domain.ErrStaleRead)

	assert.True(t, cache.has(out.CacheKeyTripRequest))
	assert.Equal(t, int32(1), ended.Load())
	c.mu.Lock()
	assert.Empty(t, c.trips)
	c.mu.Unlock()

	_, err = c.Transition(context.Background(), "trip-1", domain.StatusStarted, "provider-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
