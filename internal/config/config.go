// internal/config/config.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"

	"wit/internal/validation"
)

const (
	DefaultBranch   = "master"
	DefaultLogLevel = "warn"
)

type Config struct {
	Core struct {
		DefaultBranch string `toml:"default_branch"`
	} `toml:"core"`

	Log struct {
		Level string `toml:"level"` // debug, info, warn, error
	} `toml:"log"`
}

// Default returns the configuration written by `wit init`.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Core.DefaultBranch == "" {
		c.Core.DefaultBranch = DefaultBranch
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Load decodes path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &config, nil
}

// Validate checks the values that are written into repository files.
func (c *Config) Validate() error {
	if err := validation.BranchName(c.Core.DefaultBranch); err != nil {
		return fmt.Errorf("core.default_branch %q: %w", c.Core.DefaultBranch, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
