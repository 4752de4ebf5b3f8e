package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	DefaultRoot            = "/var/lib/truss"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultMaxAttempts     = 3
	DefaultBackoff         = 500 * time.Millisecond
	DefaultSyncConcurrency = 4
	DefaultLogLevel        = "info"
)

// RepositoryDefault seeds an initial repository entry when a fresh
// root is created with no repositories configured yet.
type RepositoryDefault struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Enabled   bool   `yaml:"enabled"`
	Priority  int    `yaml:"priority"`
	GPGCheck  bool   `yaml:"gpg_check"`
	GPGKeyURL string `yaml:"gpg_key_url"`
}

// Config is the top-level core configuration, loaded from a YAML file
// at startup.
type Config struct {
	Root            string              `yaml:"root"`
	Repositories    []RepositoryDefault `yaml:"repositories"`
	HTTPTimeout     time.Duration       `yaml:"http_timeout"`
	HTTPMaxAttempts int                 `yaml:"http_max_attempts"`
	HTTPBackoff     time.Duration       `yaml:"http_backoff"`
	SyncConcurrency int                 `yaml:"sync_concurrency"`
	LogLevel        string              `yaml:"log_level"`
	LogJSON         bool                `yaml:"log_json"`
}

// Unmarshal parses a YAML document into a Config, applying defaults
// for any field left unset, and validates the result.
func Unmarshal(data []byte) (*Config, error) {
	cfg := &Config{
		Root:            DefaultRoot,
		HTTPTimeout:     DefaultHTTPTimeout,
		HTTPMaxAttempts: DefaultMaxAttempts,
		HTTPBackoff:     DefaultBackoff,
		SyncConcurrency: DefaultSyncConcurrency,
		LogLevel:        DefaultLogLevel,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads and parses a Config from filename.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}
	cfg, err := Unmarshal(content)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Root == "" {
		return fmt.Errorf("config: root must not be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: http_timeout must be positive")
	}
	if c.HTTPMaxAttempts < 1 {
		return fmt.Errorf("config: http_max_attempts must be at least 1")
	}
	if c.SyncConcurrency < 1 {
		return fmt.Errorf("config: sync_concurrency must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level %q must be one of debug, info, warn, error", c.LogLevel)
	}
	seen := make(map[string]bool, len(c.Repositories))
	for _, r := range c.Repositories {
		if r.Name == "" {
			return fmt.Errorf("config: repository entry missing name")
		}
		if r.URL == "" {
			return fmt.Errorf("config: repository %q missing url", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("config: duplicate repository name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
