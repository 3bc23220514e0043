package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// topologyChannel: часть *amqp.Channel, нужная для объявления очереди
type topologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// TripRoutingKey покрывает события поездок одного пользователя (trip.<userId>.<type>)
func TripRoutingKey(userID string) string {
	return "trip." + userID + ".#"
}

// DeclareTripQueue объявляет topic exchange и эксклюзивную очередь клиента.
// Очередь живёт столько же, сколько соединение.
func DeclareTripQueue(ch topologyChannel, exchange, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("declare trip queue: empty user id")
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // args
	); err != nil {
		return "", fmt.Errorf("declare %s: %w", exchange, err)
	}

	q, err := ch.QueueDeclare(
		"",    // имя назначит брокер
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("declare trip queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, TripRoutingKey(userID), exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	return q.Name, nil
}

// BindTripQueue объявляет очередь событий пользователя. Закрытый брокером
// канал открывается заново, эксклюзивная очередь при этом создаётся новая.
func (mq *RabbitMQ) BindTripQueue(ctx context.Context, exchange, userID string) (string, error) {
	ch, err := mq.ensureChannel(ctx)
	if err != nil {
		return "", err
	}
	return DeclareTripQueue(ch, exchange, userID)
}
