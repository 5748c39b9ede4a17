package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/eventhub/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the config file. Durations accept
// strings such as "15m". Zero values leave the current setting alone.
type FileConfig struct {
	HTTPAddr                     string         `json:"http_addr" yaml:"http_addr"`
	GRPCAddr                     string         `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	TokenIssuer                  string         `json:"token_issuer" yaml:"token_issuer"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	CORSOrigins                  []string       `json:"cors_origins" yaml:"cors_origins"`
	RateLimitRequests            int            `json:"rate_limit_requests" yaml:"rate_limit_requests"`
	RateLimitWindow              timex.Duration `json:"rate_limit_window" yaml:"rate_limit_window"`
	GoogleClientID               string         `json:"google_client_id" yaml:"google_client_id"`
	GoogleClientSecret           string         `json:"google_client_secret" yaml:"google_client_secret"`
	GoogleRedirectURL            string         `json:"google_redirect_url" yaml:"google_redirect_url"`
	NatsURL                      string         `json:"nats_url" yaml:"nats_url"`
	OTLPEndpoint                 string         `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	LogFormat                    string         `json:"log_format" yaml:"log_format"`
}

// parseFile decodes path as YAML when it ends in .yaml or .yml and as JSON
// otherwise, then merges it into cfg.
func parseFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return err
	}

	fc.mergeInto(cfg)
	return nil
}

func (fc *FileConfig) mergeInto(cfg *Config) {
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.GRPCAddr, fc.GRPCAddr)
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	setString(&cfg.SecretKey, fc.SecretKey)
	setString(&cfg.TokenIssuer, fc.TokenIssuer)
	setString(&cfg.GoogleClientID, fc.GoogleClientID)
	setString(&cfg.GoogleClientSecret, fc.GoogleClientSecret)
	setString(&cfg.GoogleRedirectURL, fc.GoogleRedirectURL)
	setString(&cfg.NatsURL, fc.NatsURL)
	setString(&cfg.OTLPEndpoint, fc.OTLPEndpoint)
	setString(&cfg.LogFormat, fc.LogFormat)

	if fc.AccessTokenValidityDuration.Duration > 0 {
		cfg.AccessTokenValidityDuration = fc.AccessTokenValidityDuration.Duration
	}
	if fc.RefreshTokenValidityDuration.Duration > 0 {
		cfg.RefreshTokenValidityDuration = fc.RefreshTokenValidityDuration.Duration
	}
	if fc.RateLimitWindow.Duration > 0 {
		cfg.RateLimitWindow = fc.RateLimitWindow.Duration
	}
	if fc.RateLimitRequests > 0 {
		cfg.RateLimitRequests = fc.RateLimitRequests
	}
	if len(fc.CORSOrigins) > 0 {
		cfg.CORSOrigins = fc.CORSOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
