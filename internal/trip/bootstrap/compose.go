// Package bootstrap собирает клиент поездок из конфигурации:
// хранилище → backend → геолокация/маршруты → use cases → push.
package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"beside/internal/shared/config"
	"beside/internal/shared/db"
	"beside/internal/shared/logger"
	"beside/internal/shared/mq"
	"beside/internal/trip/adapter/in/push"
	"beside/internal/trip/adapter/out/backend"
	"beside/internal/trip/adapter/out/directions"
	"beside/internal/trip/adapter/out/location"
	"beside/internal/trip/adapter/out/store"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/application/usecase"
	"beside/internal/trip/domain"
)

// App: собранный клиент. Close освобождает соединения хранилища и брокера.
type App struct {
	Config config.Config
	Log    *logger.Logger

	Store      out.KVStore
	Cache      *store.TripCache
	API        *backend.Client
	Feed       *location.Feed
	Directions *directions.GoogleResolver

	Session   *usecase.SessionController
	Feedback  *usecase.FeedbackService
	History   *usecase.HistoryService
	Providers *usecase.ProviderLocator
	Sharer    *usecase.LocationSharer

	mu      sync.Mutex
	closers []func()
	closed  bool
}

// New создает все зависимости. hooks передаются контроллеру сессии как есть.
func New(ctx context.Context, cfg config.Config, log *logger.Logger, hooks usecase.Hooks) (*App, error) {
	app := &App{Config: cfg, Log: log}

	// 1. Хранилище устройства: сессия и кэш активной поездки
	kv, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}
	app.Store = kv
	app.addCloser(closeStore)
	app.Cache = store.NewTripCache(kv, log)

	// 2. Backend REST, токен читается из того же хранилища
	api, err := backend.New(cfg.API, kv, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.API = api

	// 3. Геолокация и маршруты
	source, err := openSource(cfg.Location)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Feed = location.NewFeed(source, log)
	app.Directions = directions.NewGoogleResolver(cfg.Routing, log)

	// 4. Use cases
	app.Session = usecase.NewSessionController(api, app.Cache, hooks, log)
	app.Feedback = usecase.NewFeedbackService(api, app.Cache, log)
	app.History = usecase.NewHistoryService(api, log)
	app.Providers = usecase.NewProviderLocator(api, cfg.Providers.GeohashPrecision, cfg.Providers.CacheTTL, log)
	app.Sharer = usecase.NewLocationSharer(app.Feed, api, api, cfg.Location.ShareInterval, log)

	log.Info(logger.Entry{
		Action:  "client_composed",
		Message: "trip client ready",
		Additional: map[string]any{
			"store":  cfg.Store.Driver,
			"push":   cfg.Push.Driver,
			"source": sourceKind(cfg.Location),
		},
	})
	return app, nil
}

// NewRouteTracker: новый трекер на каждый экран трекинга
func (a *App) NewRouteTracker() *usecase.RouteTracker {
	return usecase.NewRouteTracker(a.Feed, a.Directions, a.Config.Location.MinInterval, a.Config.Location.MinDistance, a.Log)
}

// PushListener возвращает nil, если push отключён
func (a *App) PushListener(ctx context.Context, userID string) (out.PushListener, error) {
	switch a.Config.Push.Driver {
	case "", "none":
		return nil, nil
	case "ws":
		if a.Config.Push.WSURL == "" {
			return nil, fmt.Errorf("push.ws_url is required for ws push")
		}
		return push.NewWSListener(a.Config.Push.WSURL, a.Store, a.Log), nil
	case "amqp":
		conn, err := mq.NewRabbitMQ(ctx, a.Config.Push.AMQP, a.Log)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
		}
		if !a.addCloser(conn.Close) {
			return nil, fmt.Errorf("push listener: client already closed")
		}
		return push.NewAMQPListener(conn, a.Config.Push.AMQP.Exchange, userID, a.Log), nil
	default:
		return nil, fmt.Errorf("unknown push driver %q", a.Config.Push.Driver)
	}
}

// addCloser регистрирует освобождение ресурса. После Close ресурс
// закрывается сразу и возвращается false.
func (a *App) addCloser(fn func()) bool {
	a.mu.Lock()
	if !a.closed {
		a.closers = append(a.closers, fn)
		a.mu.Unlock()
		return true
	}
	a.mu.Unlock()
	fn()
	return false
}

// Close идёт в обратном порядке создания
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.closed = true
	a.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (out.KVStore, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		return store.NewMemoryStore(), func() {}, nil

	case "redis":
		s, err := store.NewRedisStore(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case "postgres":
		pool, err := db.NewPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			db.Close(pool, log)
			return nil, nil, err
		}
		return store.NewPostgresStore(pool), func() { db.Close(pool, log) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// openSource: трек из файла, фиксированная точка или nil (нет доступа к геолокации)
func openSource(cfg config.LocationConfig) (location.Source, error) {
	switch sourceKind(cfg) {
	case "track":
		src, err := location.LoadTrack(cfg.TrackFile, cfg.Loop)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "static":
		return location.StaticSource{Position: domain.Position{Latitude: cfg.Latitude, Longitude: cfg.Longitude}}, nil
	default:
		return nil, nil
	}
}

func sourceKind(cfg config.LocationConfig) string {
	switch {
	case cfg.TrackFile != "":
		return "track"
	case cfg.Latitude != 0 || cfg.Longitude != 0:
		return "static"
	default:
		return "none"
	}
}
