package out

import (
	"context"

	"beside/internal/trip/domain"
)

// TripAPI: REST backend, единственный источник истины о поездке
type TripAPI interface {
	// CreateTripRequest создает запрос поездки (POST trip-request)
	CreateTripRequest(ctx context.Context, req domain.TripRequest) (*domain.TripRequest, error)

	// GetTrip возвращает текущий снимок (GET trip-request/get-trip/{id})
	GetTrip(ctx context.Context, tripID string) (*domain.TripRequest, error)

	// UpdateStatus запрашивает переход (PUT trip-request/{id}/status)
	UpdateStatus(ctx context.Context, tripID string, status domain.Status, providerID string) (*domain.TripRequest, error)

	// CreateTripRecord сохраняет завершённую поездку с отзывом (POST trip)
	CreateTripRecord(ctx context.Context, rec domain.TripRecord) (*domain.TripRecord, error)

	// ListTrips возвращает историю поездок пользователя или провайдера
	ListTrips(ctx context.Context, role domain.Role, userID string) ([]domain.TripRecord, error)
}

// AccountAPI: идентичность и профиль
type AccountAPI interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	SetAvailability(ctx context.Context, userID string, available bool) error
}

// LocationAPI: позиции провайдеров на backend
type LocationAPI interface {
	NearbyProviders(ctx context.Context, lat, lng float64) ([]domain.Provider, error)
	SaveLocation(ctx context.Context, userID string, lat, lng float64) error
}
