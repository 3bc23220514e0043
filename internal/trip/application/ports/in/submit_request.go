package in

import (
	"context"

	"beside/internal/trip/domain"
)

// SubmitRequestInput: входные данные для создания запроса поездки
type SubmitRequestInput struct {
	RequesterID string
	Pickup      *domain.Place
	Dropoff     *domain.Place
	Preferences []domain.Preference
}

// SubmitRequestUseCase: создание запроса поездки
type SubmitRequestUseCase interface {
	SubmitRequest(ctx context.Context, input SubmitRequestInput) (*domain.TripRequest, error)
}
