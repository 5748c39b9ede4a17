package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/timex"
	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the eventhub CLI.
type Config struct {
	ServerURL string
	SessionDB string
	Timeout   time.Duration
}

// LoadDefaults populates c with development defaults. The session database
// lives next to the user's other config files when that directory is known.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:3000"
	c.SessionDB = "eventhub-session.db"
	if dir, err := os.UserConfigDir(); err == nil {
		c.SessionDB = filepath.Join(dir, "eventhub", "session.db")
	}
	c.Timeout = 15 * time.Second
}

// FileConfig is the on-disk shape of the CLI config.
type FileConfig struct {
	ServerURL string         `json:"server_url" yaml:"server_url"`
	SessionDB string         `json:"session_db" yaml:"session_db"`
	Timeout   timex.Duration `json:"timeout" yaml:"timeout"`
}

// Load returns defaults overlaid with the file at path, if path is set.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if fc.SessionDB != "" {
		cfg.SessionDB = fc.SessionDB
	}
	if fc.Timeout.Duration > 0 {
		cfg.Timeout = fc.Timeout.Duration
	}
	return cfg, nil
}
