package location

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beside/internal/shared/logger"
	"beside/internal/trip/domain"
)

func testFeed(src Source) *Feed {
	return NewFeed(src, logger.NewWithWriter("beside-test", logger.LevelError, io.Discard))
}

type collector struct {
	mu  sync.Mutex
	got []domain.Position
}

func (c *collector) add(p domain.Position) {
	c.mu.Lock()
	c.got = append(c.got, p)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestSubscribeWithoutSourceIsDenied(t *testing.T) {
	_, err := testFeed(nil).Subscribe(context.Background(), time.Millisecond, 1, func(domain.Position) {})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = testFeed(NewReplaySource(nil, false)).Subscribe(context.Background(), time.Millisecond, 1, func(domain.Position) {})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestStaticSourceDeliversOnceWhenNotMoving(t *testing.T) {
	src := StaticSource{Position: domain.Position{Latitude: 6.9271, Longitude: 79.8612}}
	c := &collector{}
	sub, err := testFeed(src).Subscribe(context.Background(), time.Millisecond, 1, c.add)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return c.len() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.len())
}

func TestReplayFiltersByDistance(t *testing.T) {
	track := []domain.Position{
		{Latitude: 6.92710, Longitude: 79.86120},
		{Latitude: 6.92710, Longitude: 79.86120}, // на месте
		{Latitude: 6.92800, Longitude: 79.86120}, // ~100 м
		{Latitude: 6.92801, Longitude: 79.86120}, // ~1 м
		{Latitude: 6.93000, Longitude: 79.86120},
	}
	c := &collector{}
	_, err := testFeed(NewReplaySource(track, false)).Subscribe(context.Background(), time.Millisecond, 50, c.add)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.len() == 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.got, 3)
	assert.InDelta(t, 6.928, c.got[1].Latitude, 1e-9)
	assert.False(t, c.got[0].Timestamp.IsZero())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	track := make([]domain.Position, 0, 100)
	for i := 0; i < 100; i++ {
		track = append(track, domain.Position{Latitude: 6.9 + float64(i)*0.01, Longitude: 79.86})
	}
	c := &collector{}
	sub, err := testFeed(NewReplaySource(track, true)).Subscribe(context.Background(), time.Millisecond, 1, c.add)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.len() >= 2 }, time.Second, time.Millisecond)
	sub.Unsubscribe()
	sub.Unsubscribe()
	n := c.len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, c.len())
}

func TestLoadTrack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"latitude":6.9271,"longitude":79.8612},{"latitude":6.9147,"longitude":79.9733}]`), 0o600))

	src, err := LoadTrack(path, false)
	require.NoError(t, err)
	p, err := src.Current(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 6.9271, p.Latitude, 1e-9)
	_, err = src.Current(context.Background())
	require.NoError(t, err)
	_, err = src.Current(context.Background())
	assert.ErrorIs(t, err, ErrTrackEnded)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"latitude":200,"longitude":0}]`), 0o600))
	_, err = LoadTrack(bad, false)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestDistanceMeters(t *testing.T) {
	a := domain.Position{Latitude: 0, Longitude: 0}
	b := domain.Position{Latitude: 0, Longitude: 1}
	assert.InDelta(t, 111195, DistanceMeters(a, b), 10)
	assert.Zero(t, DistanceMeters(a, a))
}
