// Package config loads server configuration from INKWELL_-prefixed
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full server configuration.
type Config struct {
	HTTPAddr string `env:"ADDR" envDefault:":8080"`
	// GRPCAddr enables the gRPC health listener when set.
	GRPCAddr string `env:"GRPC_ADDR"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/inkwell?sslmode=disable"`

	JWTSecret string `env:"JWT_SECRET,required"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"inkwell-api"`
	// EncryptionKey protects refresh tokens at rest; exactly 32 bytes.
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"336h"`
	ActivationTokenTTL time.Duration `env:"ACTIVATION_TOKEN_TTL" envDefault:"1h"`

	// ServiceURL is the public base URL used in activation links.
	ServiceURL string `env:"SERVICE_URL" envDefault:"http://localhost:8080"`

	SMTPAddr     string `env:"SMTP_ADDR"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"noreply@inkwell.org"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	CORSOrigin     string  `env:"CORS_ORIGIN" envDefault:"*"`
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
	MaxBodyBytes   int64   `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	SeedsDir      string `env:"SEEDS_DIR" envDefault:"seeds"`
}

// Load parses the environment and validates cross-field constraints.
func Load() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "INKWELL_"})
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.EncryptionKey) != 32 {
		return fmt.Errorf("config: INKWELL_ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("config: INKWELL_JWT_SECRET must be at least 16 bytes")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: rate limit values must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: INKWELL_MAX_BODY_BYTES must be positive")
	}
	return nil
}
