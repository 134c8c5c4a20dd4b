// Package config reads ~/.config/ferry/config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvCacheDir = "FERRY_CACHE_DIR"
	EnvToken    = "HF_TOKEN"
	EnvEndpoint = "HF_ENDPOINT"
)

// Config is the ferry configuration file. Empty fields mean "not set";
// flags and built-in defaults fill them in.
type Config struct {
	CacheDir      string `yaml:"cache_dir"`
	Endpoint      string `yaml:"endpoint"`
	Token         string `yaml:"token"`
	Revision      string `yaml:"revision"`
	Concurrency   int    `yaml:"concurrency"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	ServerAddress string `yaml:"server_address"`
}

// Path is the default location of the config file, or "" when the user
// config directory is unknown.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ferry", "config.yaml")
}

// DefaultCacheDir is where snapshots go when nothing else is configured.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "ferry")
	}
	return filepath.Join(os.TempDir(), "ferry")
}

// Load reads path. A missing file yields a zero Config; a malformed one is
// an error. Environment overrides are applied on top.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv(os.Getenv)
	if cfg.Concurrency < 0 {
		return Config{}, fmt.Errorf("concurrency must not be negative, got %d", cfg.Concurrency)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.CacheDir, EnvCacheDir)
	set(&c.Token, EnvToken)
	set(&c.Endpoint, EnvEndpoint)
}
