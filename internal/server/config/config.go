// Package config builds the server configuration from defaults, the
// environment (and a .env file), an optional JSON or YAML file and
// command-line flags, in that order.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/flagx"
	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime settings for the eventhub server.
//
// An empty DatabaseDSN selects the in-memory user store. An empty GRPCAddr
// disables the gRPC listener. Google sign-in is enabled only when both
// client ID and secret are set.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR, overwrite"`
	GRPCAddr    string `env:"GRPC_ADDR, overwrite"`
	DatabaseDSN string `env:"DATABASE_URL, overwrite"`

	SecretKey                    string        `env:"JWT_SECRET, overwrite"`
	TokenIssuer                  string        `env:"JWT_ISSUER, overwrite"`
	AccessTokenValidityDuration  time.Duration `env:"ACCESS_TOKEN_TTL, overwrite"`
	RefreshTokenValidityDuration time.Duration `env:"REFRESH_TOKEN_TTL, overwrite"`

	CORSOrigins       []string      `env:"CORS_ORIGINS, overwrite"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS, overwrite"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW, overwrite"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID, overwrite"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET, overwrite"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL, overwrite"`

	NatsURL      string `env:"NATS_URL, overwrite"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT, overwrite"`
	LogFormat    string `env:"LOG_FORMAT, overwrite"`
}

// LoadDefaults sets development defaults. There is deliberately no default
// signing secret.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":3000"
	c.GRPCAddr = ""
	c.DatabaseDSN = ""
	c.SecretKey = ""
	c.TokenIssuer = "eventhub"
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.RefreshTokenValidityDuration = 7 * 24 * time.Hour
	c.CORSOrigins = []string{"http://localhost:5173"}
	c.RateLimitRequests = 100
	c.RateLimitWindow = 15 * time.Minute
	c.GoogleRedirectURL = "http://localhost:3000/api/auth/google/callback"
	c.LogFormat = "json"
}

// Validate refuses configurations the server must not start with.
func (c *Config) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, fmt.Errorf("%w: set JWT_SECRET or -s", common.ErrMissingSecret))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is empty"))
	}
	if c.AccessTokenValidityDuration <= 0 || c.RefreshTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	return errors.Join(errs...)
}

// OAuthEnabled reports whether Google sign-in is configured.
func (c *Config) OAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// LoadConfig applies every layer against the process environment and
// os.Args and validates the result.
func LoadConfig(ctx context.Context) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf(".env: %w", err)
	}
	return Load(ctx, os.Args[1:], envconfig.OsLookuper())
}

// Load is LoadConfig with explicit inputs.
func Load(ctx context.Context, args []string, env envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseEnv(ctx, cfg, env); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if path := flagx.ConfigFileFlag(args); path != "" {
		if err := parseFile(cfg, path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
