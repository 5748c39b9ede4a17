package config

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// loadDotEnv copies variables from path into the process environment
// without overriding ones already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// parseEnv overlays variables present in l. PORT is honoured for
// compatibility when HTTP_ADDR is not set.
func parseEnv(ctx context.Context, cfg *Config, l envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: l}); err != nil {
		return err
	}

	if _, ok := l.Lookup("HTTP_ADDR"); !ok {
		if port, ok := l.Lookup("PORT"); ok && port != "" {
			cfg.HTTPAddr = ":" + port
		}
	}
	return nil
}
