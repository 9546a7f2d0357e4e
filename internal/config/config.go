// Package config loads the dcbtree configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/bwaidelich/dcb-example-tree/internal/logging"
)

// Supported backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Backends lists the accepted Backend values.
var Backends = []string{BackendSQLite, BackendMemory, BackendRedis}

// Config is the file format:
//
//	backend: sqlite
//	sqlite:
//	  path: dcbtree.db
//	  table: tree_events
//	redis:
//	  addr: localhost:6379
//	  prefix: "dcbtree:"
//	log_level: info
//	metrics_addr: ":2112"
type Config struct {
	Backend     string       `yaml:"backend"`
	SQLite      SQLiteConfig `yaml:"sqlite"`
	Redis       RedisConfig  `yaml:"redis"`
	LogLevel    string       `yaml:"log_level"`
	MetricsAddr string       `yaml:"metrics_addr"`
}

// SQLiteConfig configures the SQLite event log.
type SQLiteConfig struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

// RedisConfig configures the Redis event log.
type RedisConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend: BackendSQLite,
		SQLite: SQLiteConfig{
			Path:  "dcbtree.db",
			Table: "tree_events",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "dcbtree:",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if !slices.Contains(Backends, c.Backend) {
		return fmt.Errorf("invalid backend %q (valid: %v)", c.Backend, Backends)
	}
	if c.Backend == BackendSQLite && c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required for the sqlite backend")
	}
	if c.Backend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis backend")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
