// Package config loads the tangible configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/tangible/internal/connection"
	"github.com/srg/tangible/internal/pairing"
	"gopkg.in/yaml.v3"
)

// Pairing backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config holds application configuration
type Config struct {
	// LogLevel is a logrus level name. "panic" keeps the CLI silent.
	LogLevel string `yaml:"log_level" default:"panic"`

	Pairing    PairingConfig      `yaml:"pairing"`
	Connection connection.Options `yaml:"connection"`
	Serve      ServeConfig        `yaml:"serve"`
}

// PairingConfig selects where the paired address is kept.
type PairingConfig struct {
	Backend string `yaml:"backend" default:"file"`
	// Path of the YAML document for the file backend; empty means the user config directory.
	Path  string      `yaml:"path"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Address  string `yaml:"address" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0"`
	Prefix   string `yaml:"prefix" default:"tangible:"`
}

type ServeConfig struct {
	Address string `yaml:"address" default:"127.0.0.1:8080"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads the YAML document at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Pairing.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown pairing backend %q (want memory, file or redis)", c.Pairing.Backend))
	}
	if c.Pairing.Backend == BackendRedis && c.Pairing.Redis.Address == "" {
		errs = append(errs, errors.New("pairing.redis.address is required for the redis backend"))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(c.LogLevel))
	if err != nil {
		return logrus.PanicLevel, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return lvl, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	lvl, err := c.Level()
	if err != nil {
		lvl = logrus.PanicLevel
	}
	logger.SetLevel(lvl)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// OpenPairingStore builds the configured backend. The returned close
// function releases backend resources and is never nil.
func (c *Config) OpenPairingStore() (pairing.Store, func() error, error) {
	noop := func() error { return nil }

	switch c.Pairing.Backend {
	case BackendMemory:
		return pairing.NewMemoryStore(""), noop, nil
	case BackendFile:
		s, err := pairing.NewFileStore(c.Pairing.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case BackendRedis:
		r := c.Pairing.Redis
		s := pairing.NewRedisStore(r.Address, r.Password, r.DB, pairing.WithPrefix(r.Prefix))
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown pairing backend %q", c.Pairing.Backend)
	}
}
