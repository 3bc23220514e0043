package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"beside/internal/shared/auth"
	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/domain"
)

const (
	// authTimeout: сервер рвёт соединение, если токен не пришёл за 5 секунд
	authTimeout = 5 * time.Second

	// pingInterval: как часто клиент пингует сервер
	pingInterval = 30 * time.Second

	// pongWait: без входящих кадров дольше этого соединение считается мёртвым
	pongWait = 60 * time.Second

	// writeWait: таймаут на отправку кадра
	writeWait = 10 * time.Second

	maxMessageSize = 8192
)

var _ out.PushListener = (*WSListener)(nil)

// WSListener получает события поездок по WebSocket
type WSListener struct {
	url     string
	session auth.Store
	dialer  *websocket.Dialer
	log     *logger.Logger
}

func NewWSListener(url string, session auth.Store, log *logger.Logger) *WSListener {
	return &WSListener{
		url:     url,
		session: session,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		log: log,
	}
}

type authReply struct {
	Status string `json:"status"`
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// Listen блокируется до отмены ctx или обрыва соединения
func (l *WSListener) Listen(ctx context.Context, handle func(domain.Event)) error {
	s, err := auth.LoadSession(ctx, l.session)
	if err != nil {
		return fmt.Errorf("%w: ws push: %v", domain.ErrUnauthorized, err)
	}

	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", domain.ErrNetwork, l.url, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(map[string]string{"token": s.Token}); err != nil {
		return fmt.Errorf("%w: send auth: %v", domain.ErrNetwork, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))
	var reply authReply
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("%w: auth reply: %v", domain.ErrNetwork, err)
	}
	if reply.Status != "authenticated" {
		return fmt.Errorf("%w: ws push: %s", domain.ErrUnauthorized, reply.Error)
	}

	l.log.Info(logger.Entry{
		Action:     "ws_push_connected",
		Message:    l.url,
		Additional: map[string]any{"user_id": reply.UserID},
	})

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	done := make(chan struct{})
	defer close(done)
	go l.keepalive(ctx, conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: ws read: %v", domain.ErrNetwork, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := decodeEvent(message)
		if err != nil {
			l.log.Warn(logger.Entry{
				Action:     "ws_parse_message_error",
				Message:    err.Error(),
				Error:      logger.Err(err),
				Additional: map[string]any{"raw": string(message)},
			})
			continue
		}
		handle(ev)
	}
}

// keepalive пингует сервер и закрывает соединение при отмене ctx
func (l *WSListener) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				l.log.Debug(logger.Entry{Action: "ws_ping_failed", Message: err.Error(), Error: logger.Err(err)})
				return
			}
		}
	}
}
