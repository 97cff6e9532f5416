package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

// Config holds the settings for the payment API (Service A).
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"3m"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PreAuthorizerConfig holds the settings for the pre-authorizer (Service B).
// Queue naming is environment-driven so the same binary can be bound to the
// auth leg instead of the pre-auth leg.
type PreAuthorizerConfig struct {
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Port     int    `env:"PORT" envDefault:"8081"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	RequestPattern    string `env:"REQUEST_PATTERN" envDefault:"payment.stub.pre.auth.req.*"`
	ResponseKeyPrefix string `env:"RESPONSE_KEY_PREFIX" envDefault:"payment.stub.pre.auth.resp"`
}

func LoadPreAuthorizer() (*PreAuthorizerConfig, error) {
	cfg, err := env.ParseAs[PreAuthorizerConfig]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadPreAuthorizer: %w", err)
	}
	return &cfg, nil
}
