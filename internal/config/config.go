// Package config reads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/thereayou/roomchat/internal/rooms"
)

const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port                int           `env:"PORT,default=8080"`
	StoreDriver         string        `env:"STORE_DRIVER,default=badger"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	BadgerPath          string        `env:"BADGER_PATH,default=./data/badger"`
	RedisURL            string        `env:"REDIS_URL"`
	JWTSecret           string        `env:"JWT_SECRET,required=true"`
	TokenDuration       time.Duration `env:"TOKEN_DURATION,default=720h"`
	Rooms               string        `env:"ROOMS"`
	OutboundBuffer      int           `env:"OUTBOUND_BUFFER,default=256"`
	MaxMessageLength    int           `env:"MAX_MESSAGE_LENGTH,default=2000"`
	HistoryDefaultLimit int           `env:"HISTORY_DEFAULT_LIMIT,default=100"`
	HistoryMaxLimit     int           `env:"HISTORY_MAX_LIMIT,default=500"`
	LogLevel            string        `env:"LOG_LEVEL,default=INFO"`
	AllowedOrigins      string        `env:"ALLOWED_ORIGINS,default=*"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads .env.local, then .env, then the process environment. Variables
// already set in the environment win over the files.
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Rooms == "" {
		cfg.Rooms = rooms.DefaultCatalog
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required with the postgres driver", ErrInvalidConfig)
		}
	case DriverBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("%w: BADGER_PATH is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: PORT %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.OutboundBuffer <= 0 {
		return fmt.Errorf("%w: OUTBOUND_BUFFER must be positive", ErrInvalidConfig)
	}
	if c.TokenDuration <= 0 {
		return fmt.Errorf("%w: TOKEN_DURATION must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
