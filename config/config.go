// Package config provides configuration loading and management for Intake.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/intake/export"
	"github.com/c360studio/intake/storage"
)

// Config represents the complete Intake configuration
type Config struct {
	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	Catalog CatalogConfig `yaml:"catalog" envPrefix:"CATALOG_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Export  ExportConfig  `yaml:"export" envPrefix:"EXPORT_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
}

// SessionConfig configures the conversation
type SessionConfig struct {
	// ID names the persisted session (default: "default")
	ID string `yaml:"id" env:"ID"`
	// StartDelay is how long the host types before the first question
	StartDelay time.Duration `yaml:"start_delay" env:"START_DELAY"`
	// TypingDelay is how long the host types before every later reply
	TypingDelay time.Duration `yaml:"typing_delay" env:"TYPING_DELAY"`
	// Greeting replaces the welcome message
	Greeting string `yaml:"greeting" env:"GREETING"`
	// Completion replaces the closing message; {name} is substituted
	Completion string `yaml:"completion" env:"COMPLETION"`
}

// CatalogConfig configures where questions come from
type CatalogConfig struct {
	// Path is a catalog file or directory (empty = built-in catalog)
	Path string `yaml:"path" env:"PATH"`
	// Pattern selects fragments when Path is a directory
	Pattern string `yaml:"pattern" env:"PATTERN"`
}

// StorageConfig configures session persistence
type StorageConfig struct {
	// Backend is one of file, memory, nats, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// Dir is the state directory of the file backend
	Dir string `yaml:"dir" env:"DIR"`
	// NATSURL is the NATS server URL of the nats backend
	NATSURL string `yaml:"nats_url" env:"NATS_URL"`
	// Bucket is the JetStream KV bucket of the nats backend
	Bucket string `yaml:"bucket" env:"BUCKET"`
	// RedisURL is the redis:// URL (comma-separated for clusters)
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
}

// ExportConfig configures exports
type ExportConfig struct {
	// Format is the default export format
	Format string `yaml:"format" env:"FORMAT"`
	// Dir is where exported files are written
	Dir string `yaml:"dir" env:"DIR"`
}

// MetricsConfig configures metrics output
type MetricsConfig struct {
	// File is a Prometheus textfile written on exit (empty = disabled)
	File string `yaml:"file" env:"FILE"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// File receives logs while the chat UI owns the terminal
	File string `yaml:"file" env:"FILE"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			ID:          storage.DefaultSession,
			StartDelay:  1000 * time.Millisecond,
			TypingDelay: 1500 * time.Millisecond,
		},
		Catalog: CatalogConfig{
			Path: "", // Built-in
		},
		Storage: StorageConfig{
			Backend: storage.KindFile,
			Dir:     "", // Resolved by the loader
			Bucket:  storage.DefaultBucket,
		},
		Export: ExportConfig{
			Format: string(export.DefaultFormat),
			Dir:    ".",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if !storage.ValidSession(c.Session.ID) {
		return fmt.Errorf("session.id %q: use letters, digits, '-' or '_'", c.Session.ID)
	}
	if c.Session.StartDelay < 0 || c.Session.TypingDelay < 0 {
		return fmt.Errorf("session delays must not be negative")
	}

	switch c.Storage.Backend {
	case storage.KindFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case storage.KindMemory:
	case storage.KindNATS:
		if c.Storage.NATSURL == "" {
			return fmt.Errorf("storage.nats_url is required for the nats backend")
		}
	case storage.KindRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend %q: must be file, memory, nats or redis", c.Storage.Backend)
	}

	if _, ok := export.ParseFormat(c.Export.Format); !ok {
		return fmt.Errorf("export.format %q is not supported", c.Export.Format)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: must be debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// BackendOptions maps the storage section onto storage.Open options
func (c *Config) BackendOptions() storage.BackendOptions {
	return storage.BackendOptions{
		Kind:     c.Storage.Backend,
		Dir:      c.Storage.Dir,
		NATSURL:  c.Storage.NATSURL,
		Bucket:   c.Storage.Bucket,
		RedisURL: c.Storage.RedisURL,
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Session
	if other.Session.ID != "" {
		c.Session.ID = other.Session.ID
	}
	if other.Session.StartDelay != 0 {
		c.Session.StartDelay = other.Session.StartDelay
	}
	if other.Session.TypingDelay != 0 {
		c.Session.TypingDelay = other.Session.TypingDelay
	}
	if other.Session.Greeting != "" {
		c.Session.Greeting = other.Session.Greeting
	}
	if other.Session.Completion != "" {
		c.Session.Completion = other.Session.Completion
	}

	// Catalog
	if other.Catalog.Path != "" {
		c.Catalog.Path = other.Catalog.Path
	}
	if other.Catalog.Pattern != "" {
		c.Catalog.Pattern = other.Catalog.Pattern
	}

	// Storage
	if other.Storage.Backend != "" {
		c.Storage.Backend = other.Storage.Backend
	}
	if other.Storage.Dir != "" {
		c.Storage.Dir = other.Storage.Dir
	}
	if other.Storage.NATSURL != "" {
		c.Storage.NATSURL = other.Storage.NATSURL
	}
	if other.Storage.Bucket != "" {
		c.Storage.Bucket = other.Storage.Bucket
	}
	if other.Storage.RedisURL != "" {
		c.Storage.RedisURL = other.Storage.RedisURL
	}

	// Export
	if other.Export.Format != "" {
		c.Export.Format = other.Export.Format
	}
	if other.Export.Dir != "" {
		c.Export.Dir = other.Export.Dir
	}

	// Metrics
	if other.Metrics.File != "" {
		c.Metrics.File = other.Metrics.File
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
}
