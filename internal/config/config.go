// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the server reads at startup. All fields
// have working defaults so a bare `opal serve` just runs.
type Config struct {
	// DataDir holds the SQLite database. Empty means ~/.opal.
	DataDir string `env:"OPAL_DATA_DIR"`

	// NATSURL enables event publishing when set (e.g. nats://localhost:4222).
	NATSURL string `env:"OPAL_NATS_URL"`

	// MaxTraversalDepth caps slice and trace walks.
	MaxTraversalDepth int `env:"OPAL_MAX_DEPTH" envDefault:"5"`

	// MaxTraversalNodes caps how many nodes one walk may collect.
	MaxTraversalNodes int `env:"OPAL_MAX_NODES" envDefault:"500"`
}

// Load parses the environment into a Config, filling in the default data
// directory when unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".opal")
	}
	return cfg, nil
}
