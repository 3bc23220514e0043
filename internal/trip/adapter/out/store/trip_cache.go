package store

import (
	"context"
	"encoding/json"
	"fmt"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/out"
)

// TripCache хранит записи активной поездки как JSON
type TripCache struct {
	kv  out.KVStore
	log *logger.Logger
}

var _ out.TripCache = (*TripCache)(nil)

func NewTripCache(kv out.KVStore, log *logger.Logger) *TripCache {
	return &TripCache{kv: kv, log: log}
}

// Save перезаписывает значение целиком
func (c *TripCache) Save(ctx context.Context, key string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, key, string(raw)); err != nil {
		return err
	}
	c.log.Debug(logger.Entry{Action: "trip_cache_saved", Message: key})
	return nil
}

// Load возвращает false, если ключа нет
func (c *TripCache) Load(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *TripCache) Clear(ctx context.Context, keys ...string) error {
	if err := c.kv.Delete(ctx, keys...); err != nil {
		return err
	}
	c.log.Debug(logger.Entry{Action: "trip_cache_cleared", Additional: map[string]any{"keys": keys}})
	return nil
}
