package in

import (
	"context"
	"time"

	"beside/internal/trip/domain"
)

// PollOptions: параметры опроса статуса
type PollOptions struct {
	Interval    time.Duration // пауза между запросами
	Timeout     time.Duration // общий лимит; 0: только ручная отмена
	MaxFailures int           // подряд идущих сетевых ошибок до отказа
}

// Poll: ленивая отменяемая последовательность применённых снимков
type Poll interface {
	// Snapshots закрывается по завершении опроса
	Snapshots() <-chan domain.TripRequest
	// Err валиден после закрытия Snapshots
	Err() error
	// Cancel идемпотентен
	Cancel()
}

// TripSession: жизненный цикл одной активной поездки на клиенте
type TripSession interface {
	SubmitRequestUseCase

	PollUntil(ctx context.Context, tripID string, targets []domain.Status, opts PollOptions) Poll
	Transition(ctx context.Context, tripID string, status domain.Status, actorID string) (*domain.TripRequest, error)
	Cancel(ctx context.Context, tripID, actorID string) error
	Refresh(ctx context.Context, tripID string) (*domain.TripRequest, error)
	HandleEvent(ctx context.Context, ev domain.Event)
	Status(tripID string) domain.Status
}
