package out

import (
	"context"
	"time"

	"beside/internal/trip/domain"
)

// Subscription: подписка на поток позиций
type Subscription interface {
	// Unsubscribe идемпотентен; после возврата новые колбэки не начинаются
	Unsubscribe()
}

// LocationFeed: отменяемый поток позиций устройства
type LocationFeed interface {
	// Subscribe возвращает domain.ErrPermissionDenied синхронно, до подписки
	Subscribe(ctx context.Context, minInterval time.Duration, minDistanceMeters float64, onPosition func(domain.Position)) (Subscription, error)

	// Current возвращает одну позицию (для запроса и поиска провайдеров)
	Current(ctx context.Context) (domain.Position, error)
}

// DirectionsResolver строит маршрут между двумя точками
type DirectionsResolver interface {
	GetRoute(ctx context.Context, origin, destination domain.Position) (*domain.Route, error)
}
