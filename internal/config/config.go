// Package config provides configuration for the binaries. Settings are
// read from an optional YAML file and .env file, with environment
// variables taking precedence, and loaded once per process.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v2"
)

// Defaults used when neither file nor environment says otherwise.
const (
	DefaultAddr    = "127.0.0.1:4000"
	DefaultEngine  = "kvs"
	DefaultDataDir = "."
)

// Config holds all settings the binaries consume.
type Config struct {
	ADDR     string `yaml:"ADDR"`     // Server address, IP:PORT
	ENGINE   string `yaml:"ENGINE"`   // Engine name the server runs
	DATA_DIR string `yaml:"DATA_DIR"` // Directory holding the store
}

var (
	appConfig *Config
	once      sync.Once
	initErr   error
)

// LoadConfig resolves the process configuration: defaults, then an
// optional .env file, then the YAML file named by KVS_CONFIG (default
// config.yml) with environment variables expanded, then KVS_ADDR,
// KVS_ENGINE and KVS_DATA_DIR overrides. Missing files are fine; the
// defaults stand. Loading happens once even under concurrent calls.
func LoadConfig() (*Config, error) {
	once.Do(func() {
		// Optional .env; absence is the common case.
		if err := godotenv.Load(); err != nil {
			slog.Debug("config: no .env file loaded", "error", err)
		}

		cfg := &Config{
			ADDR:     DefaultAddr,
			ENGINE:   DefaultEngine,
			DATA_DIR: DefaultDataDir,
		}

		path := os.Getenv("KVS_CONFIG")
		if path == "" {
			path = "config.yml"
		}
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config: no config file", "path", path)
		case err != nil:
			initErr = err
			return
		default:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(file))), cfg); err != nil {
				initErr = err
				return
			}
			slog.Debug("config: loaded config file", "path", path)
		}

		if v := os.Getenv("KVS_ADDR"); v != "" {
			cfg.ADDR = v
		}
		if v := os.Getenv("KVS_ENGINE"); v != "" {
			cfg.ENGINE = v
		}
		if v := os.Getenv("KVS_DATA_DIR"); v != "" {
			cfg.DATA_DIR = v
		}
		appConfig = cfg
	})
	if initErr != nil {
		return nil, initErr
	}
	return appConfig, nil
}
