package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionKey: ключ защищённого хранилища с ответом логина
const SessionKey = "user"

var ErrNoSession = errors.New("no stored session")

// Session: то, что backend вернул при логине
type Session struct {
	Token    string `json:"token"`
	Role     string `json:"role,omitempty"` // User | Provider | Admin
	Approved bool   `json:"approved,omitempty"`
}

// Claims: поля токена, которые читает клиент. Подпись проверяет только backend.
type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Store: минимальный интерфейс хранилища сессии
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// LoadSession читает сессию; ErrNoSession, если её нет или в ней нет токена
func LoadSession(ctx context.Context, store Store) (*Session, error) {
	raw, ok, err := store.Get(ctx, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !ok {
		return nil, ErrNoSession
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if strings.TrimSpace(s.Token) == "" {
		return nil, ErrNoSession
	}
	return &s, nil
}

// SaveSession перезаписывает сессию целиком
func SaveSession(ctx context.Context, store Store, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return store.Set(ctx, SessionKey, string(raw))
}

// Inspect разбирает токен без проверки подписи
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// Expired сообщает, что срок токена истёк к моменту now. Токен без exp не истекает.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}
