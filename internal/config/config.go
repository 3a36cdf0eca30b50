// Package config loads replica configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultDatabase is used when no database path is configured.
const DefaultDatabase = "strata.db"

// Config holds all replica configuration.
type Config struct {
	// Database is the path of the SQLite file.
	Database string `yaml:"database"`
	// ClientID pins the replica identity. Empty means use the id stored in
	// the database, or generate one on first open.
	ClientID string `yaml:"client_id"`
	// ValidateChain re-walks the hash chain after every mutation.
	ValidateChain bool `yaml:"validate_chain"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Author is stamped on locally authored commits.
	Author Author `yaml:"author"`
}

// Author identifies the person behind local commits.
type Author struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

func (c *Config) defaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads a YAML config file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML config data, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.ClientID != "" {
		if _, err := uuid.Parse(c.ClientID); err != nil {
			return fmt.Errorf("client_id %q: %w", c.ClientID, err)
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParsedClientID returns the configured client id, or uuid.Nil when unset.
func (c *Config) ParsedClientID() uuid.UUID {
	if c.ClientID == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(c.ClientID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Level returns the slog level for LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q (want debug, info, warn or error)", name)
}
