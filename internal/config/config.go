// Package config loads the docrepo command configuration.
//
// Config file locations (priority order):
//  1. $DOCREPO_CONFIG
//  2. ./docrepo.yaml
//  3. $XDG_CONFIG_HOME/docrepo/config.yaml
//  4. ~/.config/docrepo/config.yaml
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names a store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendDynamoDB Backend = "dynamodb"
	BackendMongoDB  Backend = "mongodb"
	BackendSQLite   Backend = "sqlite"
)

// Config is the command configuration.
type Config struct {
	// Backend selects the store. Default: memory.
	Backend Backend `yaml:"backend"`

	// Database overrides the backend's default database.
	Database string `yaml:"database,omitempty"`

	// ReadOnly opens repositories in read-only mode.
	ReadOnly bool `yaml:"read_only,omitempty"`

	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	MongoDB  MongoDBConfig  `yaml:"mongodb"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Listener ListenerConfig `yaml:"listener"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DynamoDBConfig configures the DynamoDB backend. Credentials come from the
// standard AWS chain.
type DynamoDBConfig struct {
	Region       string   `yaml:"region,omitempty"`
	Profile      string   `yaml:"profile,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	TablePrefix  string   `yaml:"table_prefix,omitempty"`
	TTLAttribute string   `yaml:"ttl_attribute,omitempty"`
	PollInterval Duration `yaml:"poll_interval,omitempty"`
}

// MongoDBConfig configures the MongoDB backend.
type MongoDBConfig struct {
	URI            string   `yaml:"uri"`
	ConnectTimeout Duration `yaml:"connect_timeout,omitempty"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// ListenerConfig configures change listeners.
type ListenerConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `yaml:"addr,omitempty"`
}

// Load finds and loads the config file, or returns defaults if none found.
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	c.Backend = Backend(strings.ToLower(string(c.Backend)))
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.DynamoDB.PollInterval == 0 {
		c.DynamoDB.PollInterval = Duration(time.Second)
	}
	if c.MongoDB.URI == "" {
		c.MongoDB.URI = "mongodb://localhost:27017"
	}
	if c.MongoDB.ConnectTimeout == 0 {
		c.MongoDB.ConnectTimeout = Duration(10 * time.Second)
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "docrepo.db"
	}
	if c.Listener.Workers < 1 {
		c.Listener.Workers = 1
	}
	if c.Listener.QueueSize < 1 {
		c.Listener.QueueSize = 256
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendDynamoDB, BackendMongoDB, BackendSQLite:
		return nil
	default:
		return fmt.Errorf("unknown backend %q (want memory, dynamodb, mongodb or sqlite)", c.Backend)
	}
}

// Duration is a time.Duration written as a string in YAML ("1s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
