package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string        `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string        `env:"JWT_SECRET"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	Port        int           `env:"PORT" envDefault:"8080"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string        `env:"APP_ENV" envDefault:"production"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	IdempotencyTTL           time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencySweepInterval time.Duration `env:"IDEMPOTENCY_SWEEP_INTERVAL" envDefault:"1h"`
	BcryptCost     int  `env:"BCRYPT_COST" envDefault:"12"`

	// Bootstrap administrator created on startup when both are set.
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	DBConnectAttempts  int `env:"DB_CONNECT_ATTEMPTS" envDefault:"30"`
	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
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

// RequireJWTSecret is checked by the HTTP API only; the console binary does
// not issue tokens.
func (c *Config) RequireJWTSecret() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	return nil
}

func (c *Config) BootstrapAdmin() (username, password string, ok bool) {
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return "", "", false
	}
	return c.AdminUsername, c.AdminPassword, true
}
