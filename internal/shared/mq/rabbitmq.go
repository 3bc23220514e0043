package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"beside/internal/shared/config"
	"beside/internal/shared/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	maxRetries   = 10
	initialDelay = 1 * time.Second
	maxDelay     = 30 * time.Second
)

// ErrClosed: клиент закрыт через Close, переподключения не будет
var ErrClosed = errors.New("rabbitmq client closed")

// channel: часть *amqp.Channel, которой пользуется клиент
type channel interface {
	topologyChannel
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	IsClosed() bool
	Close() error
}

// dialFunc открывает соединение и канал с настроенным prefetch
type dialFunc func(ctx context.Context, url string) (io.Closer, channel, error)

// RabbitMQ: подключение к брокеру push-событий
type RabbitMQ struct {
	url    string
	dial   dialFunc
	conn   io.Closer
	ch     channel
	log    *logger.Logger
	mu     sync.RWMutex
	closed bool
}

// nextDelay: задержка перед следующей попыткой (×1.5, не больше maxDelay)
func nextDelay(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * 1.5)
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// NewRabbitMQ создает подключение к RabbitMQ с retry
func NewRabbitMQ(ctx context.Context, cfg config.MQConfig, log *logger.Logger) (*RabbitMQ, error) {
	mq := &RabbitMQ{
		url:  cfg.AMQPURL(),
		dial: dialAMQP,
		log:  log,
	}

	retryDelay := initialDelay
	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Info(logger.Entry{
			Action:  "rabbitmq_connection_attempt",
			Message: fmt.Sprintf("attempt %d/%d", attempt, maxRetries),
			Additional: map[string]any{
				"host": cfg.Host,
				"port": cfg.Port,
			},
		})

		err := mq.connect(ctx)
		if err == nil {
			log.Info(logger.Entry{
				Action:     "rabbitmq_connected",
				Message:    fmt.Sprintf("connected to %s:%d", cfg.Host, cfg.Port),
				Additional: map[string]any{"attempt": attempt},
			})
			return mq, nil
		}

		log.Warn(logger.Entry{
			Action:  "rabbitmq_connection_attempt_failed",
			Message: err.Error(),
			Error:   logger.Err(err),
			Additional: map[string]any{
				"attempt":      attempt,
				"max_retries":  maxRetries,
				"retry_in_sec": retryDelay.Seconds(),
			},
		})
		if attempt == maxRetries {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
			retryDelay = nextDelay(retryDelay)
		}
	}

	return nil, fmt.Errorf("unexpected error: retry loop completed without success")
}

// dialAMQP: TCP-подключение прерывается вместе с ctx
func dialAMQP(ctx context.Context, url string) (io.Closer, channel, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: 30 * time.Second}
			return d.DialContext(ctx, network, addr)
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	// событий мало, prefetch небольшой
	if err := ch.Qos(4, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}
	return conn, ch, nil
}

func (mq *RabbitMQ) connect(ctx context.Context) error {
	conn, ch, err := mq.dial(ctx, mq.url)
	if err != nil {
		return err
	}

	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.closed {
		// Close успел раньше, чем закончился dial
		_ = ch.Close()
		_ = conn.Close()
		return ErrClosed
	}
	mq.conn = conn
	mq.ch = ch
	return nil
}

// ensureChannel возвращает живой канал, при необходимости переподключаясь.
// После обрыва соединения брокером старый канал уже закрыт.
func (mq *RabbitMQ) ensureChannel(ctx context.Context) (channel, error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil, ErrClosed
	}
	if mq.ch != nil && !mq.ch.IsClosed() {
		return mq.ch, nil
	}

	if mq.conn != nil {
		_ = mq.conn.Close()
	}
	mq.conn, mq.ch = nil, nil

	conn, ch, err := mq.dial(ctx, mq.url)
	if err != nil {
		return nil, err
	}
	mq.conn, mq.ch = conn, ch

	mq.log.Info(logger.Entry{Action: "rabbitmq_reconnected", Message: "channel reopened"})
	return ch, nil
}

func (mq *RabbitMQ) channel() channel {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.ch
}

// Consume читает очередь до отмены ctx или закрытия канала брокером.
// handler сам делает Ack/Nack.
func (mq *RabbitMQ) Consume(ctx context.Context, queue, consumer string, handler func(amqp.Delivery)) error {
	ch := mq.channel()
	if ch == nil {
		return fmt.Errorf("rabbitmq channel not available")
	}

	msgs, err := ch.Consume(
		queue,
		consumer,
		false, // auto-ack = false
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	mq.log.Info(logger.Entry{
		Action:  "consumer_started",
		Message: fmt.Sprintf("consuming from queue: %s", queue),
	})

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(consumer, false)
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				mq.log.Info(logger.Entry{Action: "consumer_stopped", Message: queue})
				return fmt.Errorf("consumer %s: delivery channel closed", consumer)
			}
			handler(msg)
		}
	}
}

// Close закрывает подключение к RabbitMQ
func (mq *RabbitMQ) Close() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return
	}
	mq.closed = true

	if mq.ch != nil {
		_ = mq.ch.Close()
	}
	if mq.conn != nil {
		_ = mq.conn.Close()
	}

	mq.log.Info(logger.Entry{Action: "rabbitmq_closed", Message: "connection closed"})
}
