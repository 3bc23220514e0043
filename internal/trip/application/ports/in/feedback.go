package in

import (
	"context"

	"beside/internal/trip/domain"
)

// FeedbackInput: оценка и отзыв после завершения поездки
type FeedbackInput struct {
	TripID   string
	UserID   string
	Rating   int
	Feedback string
}

// SubmitFeedbackUseCase создаёт TripRecord ровно один раз на поездку
type SubmitFeedbackUseCase interface {
	Submit(ctx context.Context, input FeedbackInput) (*domain.TripRecord, error)
}
