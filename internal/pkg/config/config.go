package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/99minutos/identity-service/internal/core/domain"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT, default=3s"`
	TaskWorkers  int           `env:"TASK_WORKERS,  default=4"`
	BcryptCost   int           `env:"BCRYPT_COST,   default=10"`

	JWT     JWTConfig
	Lockout LockoutConfig
	Refresh RefreshConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Admin   AdminConfig
}

type JWTConfig struct {
	Secret   string `env:"JWT_SECRET, required"`
	Issuer   string `env:"JWT_ISSUER,   default=identity-service"`
	Audience string `env:"JWT_AUDIENCE, default=identity-clients"`
	// ExpiryMinutes of zero falls back to the issuer default.
	ExpiryMinutes int `env:"JWT_EXPIRY_MINUTES"`
}

type LockoutConfig struct {
	MaxFailedAttempts             int `env:"LOCKOUT_MAX_FAILED_ATTEMPTS,      default=5"`
	LockoutDurationMinutes        int `env:"LOCKOUT_DURATION_MINUTES,         default=15"`
	PermanentLockoutAfterAttempts int `env:"LOCKOUT_PERMANENT_AFTER_ATTEMPTS, default=10"`
}

type RefreshConfig struct {
	TTL time.Duration `env:"REFRESH_TOKEN_TTL, default=4h"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=identity"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

// AdminConfig seeds an administrator account at startup when Email is set.
type AdminConfig struct {
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
}

// LockoutPolicy satisfies ports.LockoutPolicyProvider.
func (c LockoutConfig) LockoutPolicy(_ context.Context) domain.LockoutPolicy {
	return domain.LockoutPolicy{
		MaxFailedAttempts:             c.MaxFailedAttempts,
		LockoutDuration:               time.Duration(c.LockoutDurationMinutes) * time.Minute,
		PermanentLockoutAfterAttempts: c.PermanentLockoutAfterAttempts,
	}
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through the given lookuper.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	l := c.Lockout
	if l.MaxFailedAttempts < 0 || l.PermanentLockoutAfterAttempts < 0 || l.LockoutDurationMinutes < 0 {
		return fmt.Errorf("config: %w: lockout thresholds must not be negative", domain.ErrConfiguration)
	}
	if l.MaxFailedAttempts > 0 && l.PermanentLockoutAfterAttempts > 0 && l.PermanentLockoutAfterAttempts < l.MaxFailedAttempts {
		return fmt.Errorf("config: %w: permanent lockout threshold below temporary threshold", domain.ErrConfiguration)
	}
	if c.Refresh.TTL <= 0 {
		return fmt.Errorf("config: %w: refresh token ttl must be positive", domain.ErrConfiguration)
	}
	if c.Admin.Email != "" && c.Admin.Password == "" {
		return fmt.Errorf("config: %w: ADMIN_PASSWORD is required with ADMIN_EMAIL", domain.ErrConfiguration)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("config: %w: store timeout must be positive", domain.ErrConfiguration)
	}
	return nil
}
