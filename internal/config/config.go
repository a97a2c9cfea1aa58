// Package config holds the application configuration, loaded from YAML
// with per-component defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rguptar/motion/internal/storage"
)

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig     `yaml:"logging"`
	Storage    StorageConfig     `yaml:"storage"`
	Events     EventsConfig      `yaml:"events"`
	Namespaces []NamespaceConfig `yaml:"namespaces"`
}

// LoggingConfig configures the slog setup.
type LoggingConfig struct {
	Dir     string         `yaml:"dir"`
	Console OutputConfig   `yaml:"console"`
	File    OutputConfig   `yaml:"file"`
	Rotation RotationConfig `yaml:"rotation"`
}

// OutputConfig configures one log output.
type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAge     int  `yaml:"max_age"`
	Compress   bool `yaml:"compress"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is "memory" or "mongo".
	Backend string      `yaml:"backend"`
	Mongo   MongoConfig `yaml:"mongo"`
}

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// EventsConfig configures the firing-event fan-out.
type EventsConfig struct {
	// Publisher is "none" or "nats". The in-process engine always
	// runs; this selects an additional external publisher.
	Publisher string     `yaml:"publisher"`
	Nats      NatsConfig `yaml:"nats"`
}

// NatsConfig configures the NATS publisher.
type NatsConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// NamespaceConfig declares a namespace to create at startup.
type NamespaceConfig struct {
	Name   string         `yaml:"name"`
	Schema storage.Schema `yaml:"schema"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Dir:     "logs",
			Console: OutputConfig{Enabled: true, Level: "info", Format: "text"},
			File:    OutputConfig{Enabled: false, Level: "debug", Format: "json"},
			Rotation: RotationConfig{
				MaxSize:    100,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
		Storage: StorageConfig{
			Backend: "memory",
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "motion",
			},
		},
		Events: EventsConfig{
			Publisher: "none",
			Nats: NatsConfig{
				URL:           "nats://localhost:4222",
				SubjectPrefix: "motion",
			},
		},
	}
}

// Load reads configuration from path over the defaults. A missing file
// is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot be acted on.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "mongo":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Events.Publisher {
	case "", "none", "nats":
	default:
		return fmt.Errorf("unknown events publisher %q", c.Events.Publisher)
	}
	for _, ns := range c.Namespaces {
		if ns.Name == "" {
			return fmt.Errorf("namespace with empty name")
		}
		if err := ns.Schema.Validate(); err != nil {
			return fmt.Errorf("namespace %q: %w", ns.Name, err)
		}
	}
	return nil
}
