package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/in"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

const maxRating = 5

// FeedbackService создаёт запись истории по завершённой поездке
type FeedbackService struct {
	api   out.TripAPI
	cache out.TripCache
	log   *logger.Logger
	now   func() time.Time

	mu        sync.Mutex
	submitted map[string]bool
}

var _ in.SubmitFeedbackUseCase = (*FeedbackService)(nil)

func NewFeedbackService(api out.TripAPI, cache out.TripCache, log *logger.Logger) *FeedbackService {
	return &FeedbackService{
		api:       api,
		cache:     cache,
		log:       log,
		now:       time.Now,
		submitted: make(map[string]bool),
	}
}

// Submit проверяет, что поездка завершена, и отправляет оценку.
// Повторная отправка по той же поездке: domain.ErrFeedbackSubmitted.
func (s *FeedbackService) Submit(ctx context.Context, input in.FeedbackInput) (*domain.TripRecord, error) {
	if input.TripID == "" || input.UserID == "" {
		return nil, fmt.Errorf("%w: trip id and user id are required", domain.ErrValidationFailed)
	}
	if input.Rating < 0 || input.Rating > maxRating {
		return nil, fmt.Errorf("%w: rating must be between 0 and %d", domain.ErrValidationFailed, maxRating)
	}

	s.mu.Lock()
	if s.submitted[input.TripID] {
		s.mu.Unlock()
		return nil, domain.ErrFeedbackSubmitted
	}
	s.submitted[input.TripID] = true
	s.mu.Unlock()

	rec, err := s.submit(ctx, input)
	if err != nil {
		s.mu.Lock()
		delete(s.submitted, input.TripID)
		s.mu.Unlock()
		s.log.Error(logger.Entry{
			Action:  "feedback_failed",
			Message: err.Error(),
			TripID:  input.TripID,
			Error:   logger.Err(err),
		})
		return nil, err
	}

	if err := s.cache.Clear(ctx, out.ActiveTripKeys...); err != nil {
		s.log.Warn(logger.Entry{Action: "trip_cache_clear_failed", Message: err.Error(), TripID: input.TripID})
	}

	s.log.Info(logger.Entry{
		Action:     "feedback_submitted",
		Message:    "trip record created",
		TripID:     input.TripID,
		Additional: map[string]any{"rating": rec.Rating, "provider_id": rec.ProviderID},
	})
	return rec, nil
}

func (s *FeedbackService) submit(ctx context.Context, input in.FeedbackInput) (*domain.TripRecord, error) {
	trip, err := s.api.GetTrip(ctx, input.TripID)
	if err != nil {
		return nil, err
	}
	if trip.Status != domain.StatusEnded {
		return nil, fmt.Errorf("%w: trip is %s, feedback needs ended", domain.ErrInvalidTransition, trip.Status)
	}

	rec := domain.TripRecord{
		TripID:      input.TripID,
		ProviderID:  trip.ProviderIDOrEmpty(),
		UserID:      input.UserID,
		Rating:      input.Rating,
		Feedback:    input.Feedback,
		TripStart:   trip.Pickup.Name,
		TripEnd:     trip.Dropoff.Name,
		CreatedDate: s.now().UTC(),
	}
	return s.api.CreateTripRecord(ctx, rec)
}

// HistoryService: история поездок пользователя или провайдера
type HistoryService struct {
	api out.TripAPI
	log *logger.Logger
}

func NewHistoryService(api out.TripAPI, log *logger.Logger) *HistoryService {
	return &HistoryService{api: api, log: log}
}

func (s *HistoryService) List(ctx context.Context, role domain.Role, userID string) ([]domain.TripRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidationFailed)
	}
	if role != domain.RoleRequester && role != domain.RoleProvider {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrValidationFailed, role)
	}
	trips, err := s.api.ListTrips(ctx, role, userID)
	if err != nil {
		s.log.Error(logger.Entry{Action: "trip_history_failed", Message: err.Error(), Error: logger.Err(err)})
		return nil, err
	}
	s.log.Debug(logger.Entry{
		Action:     "trip_history_loaded",
		Message:    string(role),
		Additional: map[string]any{"user_id": userID, "count": len(trips)},
	})
	return trips, nil
}

// AverageRating: средняя оценка по записям; 0 для пустой истории
func AverageRating(trips []domain.TripRecord) float64 {
	if len(trips) == 0 {
		return 0
	}
	sum := 0
	for _, t := range trips {
		sum += t.Rating
	}
	return float64(sum) / float64(len(trips))
}
