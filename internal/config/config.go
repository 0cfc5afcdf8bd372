// Package config provides configuration management for Tabularium.
//
// Configuration comes from a single YAML file. Every section has working
// defaults, so an absent file yields a runnable single-node archive on the
// relational backend.
//
// Config file locations (priority order):
//  1. $TABULARIUM_CONFIG
//  2. ./tabularium.yaml
//  3. ~/.config/tabularium/config.yaml
//  4. /etc/tabularium/config.yaml
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tabularium/internal/domain"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
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
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Database.Backend == "" {
		c.Database.Backend = BackendSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = "./tabularium.db"
	}
	if c.Database.TreePath == "" {
		c.Database.TreePath = "./tabularium-tree.db"
	}

	if c.Write.Policy == "" {
		c.Write.Policy = string(domain.PolicyAppendHistory)
	}
	if c.Write.RootStructure == "" {
		c.Write.RootStructure = "archive"
	}

	if c.Limits.MaxDepth == 0 {
		c.Limits.MaxDepth = 32
	}
	if c.Limits.MaxPageSize == 0 {
		c.Limits.MaxPageSize = 500
	}
	if c.Limits.DefaultPageSize == 0 {
		c.Limits.DefaultPageSize = 50
	}

	if c.Retention.MaxAgeDays == 0 {
		c.Retention.MaxAgeDays = 90
	}
	if c.Retention.Interval == 0 {
		c.Retention.Interval = Duration(time.Hour)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	for i := range c.Collectors {
		if c.Collectors[i].Port == 0 {
			c.Collectors[i].Port = 22
		}
		if c.Collectors[i].Interval == 0 {
			c.Collectors[i].Interval = Duration(5 * time.Minute)
		}
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if !c.Database.Backend.Valid() {
		return fmt.Errorf("unknown backend %q", c.Database.Backend)
	}
	if _, err := domain.ParseWritePolicy(c.Write.Policy); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	for _, col := range c.Collectors {
		if col.Name == "" {
			return fmt.Errorf("collector without a name")
		}
		if col.Host == "" {
			return fmt.Errorf("collector %q has no host", col.Name)
		}
		if col.Secret == "" {
			return fmt.Errorf("collector %q has no secret", col.Name)
		}
		if col.Command == "" {
			return fmt.Errorf("collector %q has no command", col.Name)
		}
		if col.Structure == "" {
			return fmt.Errorf("collector %q has no structure", col.Name)
		}
	}

	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Policy returns the configured write policy. Validate has already
// established that the name parses.
func (c *Config) Policy() domain.WritePolicy {
	policy, err := domain.ParseWritePolicy(c.Write.Policy)
	if err != nil {
		return domain.PolicyAppendHistory
	}
	return policy
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Backend: %s, Policy: %s\n", c.Database.Backend, c.Write.Policy)
	summary += fmt.Sprintf("Listen: %s, Log: %s\n", c.Addr(), c.Logging.Level)
	if c.Ingest.SpoolDir != "" {
		summary += fmt.Sprintf("Spool: %s\n", c.Ingest.SpoolDir)
	}
	if c.Retention.Enabled {
		summary += fmt.Sprintf("Retention: %d days every %s over %d roots\n",
			c.Retention.MaxAgeDays, c.Retention.Interval.Duration(), len(c.Retention.Roots))
	}
	summary += fmt.Sprintf("Collectors: %d", len(c.Collectors))

	return summary
}
