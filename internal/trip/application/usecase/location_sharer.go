package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

const defaultShareInterval = 8 * time.Second

// LocationSharer публикует позицию провайдера на backend, пока он доступен
type LocationSharer struct {
	feed     out.LocationFeed
	api      out.LocationAPI
	accounts out.AccountAPI
	interval time.Duration
	log      *logger.Logger

	mu     sync.Mutex
	sub    out.Subscription
	userID string
}

func NewLocationSharer(feed out.LocationFeed, api out.LocationAPI, accounts out.AccountAPI, interval time.Duration, log *logger.Logger) *LocationSharer {
	if interval <= 0 {
		interval = defaultShareInterval
	}
	return &LocationSharer{feed: feed, api: api, accounts: accounts, interval: interval, log: log}
}

// Start отмечает провайдера доступным и начинает отправлять позиции.
// Ошибки отправки логируются и не прерывают обмен.
func (s *LocationSharer) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidationFailed)
	}
	s.mu.Lock()
	if s.sub != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.accounts.SetAvailability(ctx, userID, true); err != nil {
		return err
	}

	sub, err := s.feed.Subscribe(ctx, s.interval, 0, func(pos domain.Position) {
		if err := s.api.SaveLocation(ctx, userID, pos.Latitude, pos.Longitude); err != nil {
			s.log.Warn(logger.Entry{
				Action:     "location_share_failed",
				Message:    err.Error(),
				Error:      logger.Err(err),
				Additional: map[string]any{"user_id": userID},
			})
			return
		}
		s.log.Debug(logger.Entry{
			Action:     "location_shared",
			Message:    userID,
			Additional: map[string]any{"lat": pos.Latitude, "lng": pos.Longitude},
		})
	})
	if err != nil {
		if aerr := s.accounts.SetAvailability(ctx, userID, false); aerr != nil {
			s.log.Warn(logger.Entry{Action: "availability_reset_failed", Message: aerr.Error()})
		}
		return err
	}

	s.mu.Lock()
	s.sub, s.userID = sub, userID
	s.mu.Unlock()

	s.log.Info(logger.Entry{
		Action:     "location_sharing_started",
		Message:    userID,
		Additional: map[string]any{"interval": s.interval.String()},
	})
	return nil
}

// Stop прекращает отправку и снимает флаг доступности
func (s *LocationSharer) Stop(ctx context.Context) error {
	s.mu.Lock()
	sub, userID := s.sub, s.userID
	s.sub, s.userID = nil, ""
	s.mu.Unlock()
	if sub == nil {
		return nil
	}
	sub.Unsubscribe()
	s.log.Info(logger.Entry{Action: "location_sharing_stopped", Message: userID})
	return s.accounts.SetAvailability(ctx, userID, false)
}
