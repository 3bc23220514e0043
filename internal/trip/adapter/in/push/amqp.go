package push

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

// broker: то, что нужно от *mq.RabbitMQ
type broker interface {
	BindTripQueue(ctx context.Context, exchange, userID string) (string, error)
	Consume(ctx context.Context, queue, consumer string, handler func(amqp.Delivery)) error
}

var _ out.PushListener = (*AMQPListener)(nil)

// AMQPListener читает события поездок пользователя из topic exchange
type AMQPListener struct {
	broker   broker
	exchange string
	userID   string
	log      *logger.Logger
}

func NewAMQPListener(b broker, exchange, userID string, log *logger.Logger) *AMQPListener {
	return &AMQPListener{broker: b, exchange: exchange, userID: userID, log: log}
}

func (l *AMQPListener) Listen(ctx context.Context, handle func(domain.Event)) error {
	queue, err := l.broker.BindTripQueue(ctx, l.exchange, l.userID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}

	consumer := "beside-" + uuid.NewString()
	err = l.broker.Consume(ctx, queue, consumer, func(d amqp.Delivery) {
		l.deliver(d, handle)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	return nil
}

// deliver подтверждает сообщение после обработки; битые не возвращаются в очередь
func (l *AMQPListener) deliver(d amqp.Delivery, handle func(domain.Event)) {
	ev, err := decodeEvent(d.Body)
	if err != nil {
		l.log.Warn(logger.Entry{
			Action:  "amqp_parse_message_error",
			Message: err.Error(),
			Error:   logger.Err(err),
			Additional: map[string]any{
				"routing_key": d.RoutingKey,
				"raw":         string(d.Body),
			},
		})
		_ = d.Nack(false, false)
		return
	}
	if ev.Type == "" {
		ev.Type = typeFromRoutingKey(d.RoutingKey)
	}

	handle(ev)
	if err := d.Ack(false); err != nil {
		l.log.Warn(logger.Entry{Action: "amqp_ack_failed", Message: err.Error(), TripID: ev.TripID, Error: logger.Err(err)})
	}
}
