package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv        string `envconfig:"APP_ENV" default:"development"`
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL    string `envconfig:"DATABASE_URL"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`

	TxMaxAttempts   int           `envconfig:"TX_MAX_ATTEMPTS" default:"3"`
	LockTimeout     time.Duration `envconfig:"LOCK_TIMEOUT" default:"2s"`
	DocumentLockTTL time.Duration `envconfig:"DOCUMENT_LOCK_TTL" default:"15s"`
	DocumentLockTry int           `envconfig:"DOCUMENT_LOCK_RETRIES" default:"5"`
	ReportCacheTTL  time.Duration `envconfig:"REPORT_CACHE_TTL" default:"30s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.TxMaxAttempts < 1 {
		cfg.TxMaxAttempts = 1
	}
	if cfg.DocumentLockTry < 0 {
		cfg.DocumentLockTry = 0
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}
