package out

import (
	"context"

	"beside/internal/trip/domain"
)

// PushListener: источник входящих push-событий.
// Listen блокируется до отмены ctx или обрыва соединения.
type PushListener interface {
	Listen(ctx context.Context, handle func(domain.Event)) error
}
