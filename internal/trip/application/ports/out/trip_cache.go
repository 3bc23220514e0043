package out

import "context"

// Ключи локального кэша активной поездки
const (
	CacheKeyTripRequest = "tripRequest" // pending-запрос (пишет экран запроса)
	CacheKeyTripDetails = "tripDetails" // принятая поездка для трекинга
	CacheKeyStartedTrip = "startedTrip" // поездка в процессе
)

// ActiveTripKeys: всё, что очищается при завершении поездки
var ActiveTripKeys = []string{CacheKeyTripRequest, CacheKeyTripDetails, CacheKeyStartedTrip}

// KVStore: защищённое key-value хранилище устройства
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// TripCache: JSON-записи поверх KVStore. Значение перезаписывается целиком.
type TripCache interface {
	Save(ctx context.Context, key string, record any) error
	Load(ctx context.Context, key string, dst any) (bool, error)
	Clear(ctx context.Context, keys ...string) error
}
