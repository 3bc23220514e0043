package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config: полная конфигурация клиента
type Config struct {
	API       APIConfig
	Routing   RoutingConfig
	Push      PushConfig
	Store     StoreConfig
	Polling   PollingConfig
	Location  LocationConfig
	Providers ProvidersConfig
	Log       LogConfig
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type RoutingConfig struct {
	BaseURL    string
	APIKey     string
	TravelMode string
	Timeout    time.Duration
}

// PushConfig: driver = none | ws | amqp
type PushConfig struct {
	Driver string
	WSURL  string
	AMQP   MQConfig
}

type MQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Exchange string
}

// StoreConfig: driver = memory | redis | postgres
type StoreConfig struct {
	Driver   string
	RedisURL string
	Postgres DBConfig
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type PollingConfig struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures int
}

// LocationConfig: track_file проигрывает трек, иначе latitude/longitude задают фиксированную точку
type LocationConfig struct {
	TrackFile     string
	Loop          bool
	Latitude      float64
	Longitude     float64
	MinInterval   time.Duration
	MinDistance   float64
	ShareInterval time.Duration
}

type ProvidersConfig struct {
	CacheTTL         time.Duration
	GeohashPrecision uint
}

type LogConfig struct {
	Level string
	Dir   string
}

// Load: CONFIG_DIR/beside.yaml (по умолчанию ./config) + .env + ENV перекрывает.
// Ключ api.base_url перекрывается переменной API_BASE_URL и т.д.
func Load() (Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("beside")
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnv("CONFIG_DIR", "./config"))

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v), nil
}

// LoadFile читает конкретный файл (используется в тестах и -config флаге)
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filepath.Clean(path))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://beside-backend-y20k.onrender.com/api/v1/")
	v.SetDefault("api.timeout", 15*time.Second)

	v.SetDefault("routing.base_url", "https://maps.googleapis.com/maps/api")
	v.SetDefault("routing.api_key", "")
	v.SetDefault("routing.travel_mode", "driving")
	v.SetDefault("routing.timeout", 10*time.Second)

	v.SetDefault("push.driver", "none")
	v.SetDefault("push.ws_url", "")
	v.SetDefault("push.amqp.host", "localhost")
	v.SetDefault("push.amqp.port", 5672)
	v.SetDefault("push.amqp.user", "guest")
	v.SetDefault("push.amqp.password", "guest")
	v.SetDefault("push.amqp.vhost", "/")
	v.SetDefault("push.amqp.exchange", "trip_topic")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis_url", "redis://localhost:6379/0")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "beside")
	v.SetDefault("store.postgres.password", "beside")
	v.SetDefault("store.postgres.database", "beside")
	v.SetDefault("store.postgres.sslmode", "disable")

	v.SetDefault("polling.interval", 5*time.Second)
	v.SetDefault("polling.timeout", 5*time.Minute)
	v.SetDefault("polling.max_failures", 3)

	v.SetDefault("location.track_file", "")
	v.SetDefault("location.loop", false)
	v.SetDefault("location.latitude", 0.0)
	v.SetDefault("location.longitude", 0.0)
	v.SetDefault("location.min_interval", 5*time.Second)
	v.SetDefault("location.min_distance", 1.0)
	v.SetDefault("location.share_interval", 8*time.Second)

	v.SetDefault("providers.cache_ttl", 30*time.Second)
	v.SetDefault("providers.geohash_precision", 7)

	v.SetDefault("log.level", "WARN") // stdout занят выводом команд
	v.SetDefault("log.dir", "")
}

func fromViper(v *viper.Viper) Config {
	return Config{
		API: APIConfig{
			BaseURL: v.GetString("api.base_url"),
			Timeout: v.GetDuration("api.timeout"),
		},
		Routing: RoutingConfig{
			BaseURL:    v.GetString("routing.base_url"),
			APIKey:     v.GetString("routing.api_key"),
			TravelMode: v.GetString("routing.travel_mode"),
			Timeout:    v.GetDuration("routing.timeout"),
		},
		Push: PushConfig{
			Driver: strings.ToLower(v.GetString("push.driver")),
			WSURL:  v.GetString("push.ws_url"),
			AMQP: MQConfig{
				Host:     v.GetString("push.amqp.host"),
				Port:     v.GetInt("push.amqp.port"),
				User:     v.GetString("push.amqp.user"),
				Password: v.GetString("push.amqp.password"),
				VHost:    v.GetString("push.amqp.vhost"),
				Exchange: v.GetString("push.amqp.exchange"),
			},
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(v.GetString("store.driver")),
			RedisURL: v.GetString("store.redis_url"),
			Postgres: DBConfig{
				Host:     v.GetString("store.postgres.host"),
				Port:     v.GetInt("store.postgres.port"),
				User:     v.GetString("store.postgres.user"),
				Password: v.GetString("store.postgres.password"),
				Database: v.GetString("store.postgres.database"),
				SSLMode:  v.GetString("store.postgres.sslmode"),
			},
		},
		Polling: PollingConfig{
			Interval:    v.GetDuration("polling.interval"),
			Timeout:     v.GetDuration("polling.timeout"),
			MaxFailures: v.GetInt("polling.max_failures"),
		},
		Location: LocationConfig{
			TrackFile:     v.GetString("location.track_file"),
			Loop:          v.GetBool("location.loop"),
			Latitude:      v.GetFloat64("location.latitude"),
			Longitude:     v.GetFloat64("location.longitude"),
			MinInterval:   v.GetDuration("location.min_interval"),
			MinDistance:   v.GetFloat64("location.min_distance"),
			ShareInterval: v.GetDuration("location.share_interval"),
		},
		Providers: ProvidersConfig{
			CacheTTL:         v.GetDuration("providers.cache_ttl"),
			GeohashPrecision: v.GetUint("providers.geohash_precision"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			Dir:   v.GetString("log.dir"),
		},
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// DSN возвращает строку подключения к БД
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// AMQPURL возвращает URL подключения к RabbitMQ
func (c MQConfig) AMQPURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}
