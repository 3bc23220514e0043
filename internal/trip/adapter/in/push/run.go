package push

import (
	"context"
	"errors"
	"time"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

const (
	reconnectInitial = 1 * time.Second
	reconnectMax     = 30 * time.Second
)

// Run держит слушателя подключённым: после сетевого обрыва переподключается
// с растущей задержкой. Ошибки авторизации не повторяются.
func Run(ctx context.Context, l out.PushListener, handle func(domain.Event), log *logger.Logger) error {
	delay := reconnectInitial
	for {
		start := time.Now()
		err := l.Listen(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, domain.ErrNetwork) {
			log.Error(logger.Entry{Action: "push_listener_stopped", Message: err.Error(), Error: logger.Err(err)})
			return err
		}

		// долгое соединение сбрасывает задержку
		if time.Since(start) > reconnectMax {
			delay = reconnectInitial
		}
		log.Warn(logger.Entry{
			Action:     "push_reconnect",
			Message:    "push connection lost",
			Error:      logger.Err(err),
			Additional: map[string]any{"retry_in_sec": delay.Seconds()},
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * 1.5)
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}
