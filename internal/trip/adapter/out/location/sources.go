package location

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"beside/internal/trip/domain"
)

// StaticSource всегда возвращает одну и ту же точку
type StaticSource struct {
	Position domain.Position
}

func (s StaticSource) Authorize(context.Context) error {
	if !s.Position.Valid() {
		return fmt.Errorf("%w: invalid static position", domain.ErrPermissionDenied)
	}
	return nil
}

func (s StaticSource) Current(context.Context) (domain.Position, error) {
	return s.Position, nil
}

// ReplaySource проигрывает записанный трек: каждый вызов Current
// возвращает следующую точку.
type ReplaySource struct {
	mu     sync.Mutex
	points []domain.Position
	next   int
	loop   bool
}

func NewReplaySource(points []domain.Position, loop bool) *ReplaySource {
	return &ReplaySource{points: points, loop: loop}
}

// LoadTrack читает JSON-массив [{"latitude":..,"longitude":..}]
func LoadTrack(path string, loop bool) (*ReplaySource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track %s: %w", path, err)
	}
	var points []domain.Position
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, fmt.Errorf("parse track %s: %w", path, err)
	}
	for i, p := range points {
		if !p.Valid() {
			return nil, fmt.Errorf("track %s: point %d: %w", path, i, domain.ErrValidationFailed)
		}
	}
	return NewReplaySource(points, loop), nil
}

func (r *ReplaySource) Authorize(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.points) == 0 {
		return fmt.Errorf("%w: empty track", domain.ErrPermissionDenied)
	}
	return nil
}

func (r *ReplaySource) Current(context.Context) (domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.points) {
		if !r.loop || len(r.points) == 0 {
			return domain.Position{}, ErrTrackEnded
		}
		r.next = 0
	}
	p := r.points[r.next]
	r.next++
	return p, nil
}
