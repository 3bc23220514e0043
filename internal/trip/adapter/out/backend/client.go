package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"beside/internal/shared/auth"
	"beside/internal/shared/config"
	"beside/internal/shared/logger"
	"beside/internal/trip/domain"
)

const maxErrorBody = 4 << 10

// envelope: общий формат ответов backend
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// operation определяет, как трактовать HTTP-статус ответа
type operation int

const (
	opRead operation = iota
	opCreateTrip
	opGetTrip
	opUpdateStatus
	opWrite
)

// Client: REST-клиент backend. Токен читается из хранилища на каждый запрос.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	session auth.Store
	log     *logger.Logger
	now     func() time.Time
}

func New(cfg config.APIConfig, session auth.Store, log *logger.Logger) (*Client, error) {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		session: session,
		log:     log,
		now:     time.Now,
	}, nil
}

// token возвращает bearer-токен или "" для анонимного запроса
func (c *Client) token(ctx context.Context) string {
	if c.session == nil {
		return ""
	}
	s, err := auth.LoadSession(ctx, c.session)
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) {
			c.log.Warn(logger.Entry{Action: "session_read_failed", Message: err.Error(), Error: logger.Err(err)})
		}
		return ""
	}
	if claims, err := auth.Inspect(s.Token); err == nil && claims.Expired(c.now()) {
		c.log.Warn(logger.Entry{
			Action:     "session_token_expired",
			Message:    "stored token is past its expiry",
			Additional: map[string]any{"user_id": claims.UserID},
		})
	}
	return s.Token
}

// do выполняет запрос и возвращает поле data разобранного конверта
func (c *Client) do(ctx context.Context, op operation, method, path string, query url.Values, body any) (*envelope, error) {
	ref := &url.URL{Path: strings.TrimPrefix(path, "/")}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode request: %v", domain.ErrValidationFailed, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrNetwork, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if tok := c.token(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn(logger.Entry{
			Action:    "backend_request_failed",
			Message:   err.Error(),
			RequestID: requestID,
			Error:     logger.Err(err),
			Additional: map[string]any{
				"method": method,
				"path":   path,
			},
		})
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetwork, err)
	}

	c.log.Debug(logger.Entry{
		Action:    "backend_request",
		Message:   fmt.Sprintf("%s %s -> %d", method, path, resp.StatusCode),
		RequestID: requestID,
		Additional: map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if msg == "" {
			msg = truncate(string(raw), maxErrorBody)
		}
		return nil, mapStatus(op, resp.StatusCode, msg)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &envelope{}, nil
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrNetwork, decodeErr)
	}
	return &env, nil
}

// mapStatus переводит HTTP-статус в доменную ошибку
func mapStatus(op operation, code int, msg string) error {
	var base error
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		base = domain.ErrUnauthorized
	case code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		base = domain.ErrNetwork
	case op == opCreateTrip && (code == http.StatusNotFound || code == http.StatusConflict || code == http.StatusUnprocessableEntity):
		base = domain.ErrNoProviderAvailable
	case op == opUpdateStatus && (code == http.StatusBadRequest || code == http.StatusConflict || code == http.StatusUnprocessableEntity):
		base = domain.ErrInvalidTransition
	case (op == opGetTrip || op == opUpdateStatus) && code == http.StatusNotFound:
		base = domain.ErrTripNotFound
	default:
		base = domain.ErrValidationFailed
	}
	return fmt.Errorf("%w: status %d: %s", base, code, msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func decodeData(env *envelope, dst any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: empty response data", domain.ErrNetwork)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: decode data: %v", domain.ErrNetwork, err)
	}
	return nil
}
