package config

import (
	"time"
)

// Backend names a storage substrate
type Backend string

const (
	// BackendSQLite decomposes documents into relational tables
	BackendSQLite Backend = "sqlite"
	// BackendTree decomposes documents into a path-addressable node tree
	BackendTree Backend = "tree"
)

// Valid reports whether the backend is a known substrate
func (b Backend) Valid() bool {
	return b == BackendSQLite || b == BackendTree
}

// Config is the root configuration structure
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Database   DatabaseConfig    `yaml:"database"`
	Write      WriteConfig       `yaml:"write"`
	Limits     LimitsConfig      `yaml:"limits"`
	Retention  RetentionConfig   `yaml:"retention"`
	Ingest     IngestConfig      `yaml:"ingest"`
	Collectors []CollectorConfig `yaml:"collectors,omitempty"`
	Secrets    SecretsConfig     `yaml:"secrets"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects the substrate and its file locations
type DatabaseConfig struct {
	Backend  Backend `yaml:"backend"`
	Path     string  `yaml:"path"`      // relational database file
	TreePath string  `yaml:"tree_path"` // node tree database file
}

// WriteConfig holds document write behavior
type WriteConfig struct {
	Policy        string `yaml:"policy"`         // append_history or upsert_singleton
	RootStructure string `yaml:"root_structure"` // structure for unnamed ingests
}

// LimitsConfig bounds document depth and query pagination
type LimitsConfig struct {
	MaxDepth        int `yaml:"max_depth"`
	MaxPageSize     int `yaml:"max_page_size"`
	DefaultPageSize int `yaml:"default_page_size"`
}

// RetentionConfig drives the periodic sweep loop
type RetentionConfig struct {
	Enabled    bool     `yaml:"enabled"`
	MaxAgeDays int      `yaml:"max_age_days"`
	Interval   Duration `yaml:"interval"`
	Roots      []string `yaml:"roots,omitempty"`
}

// IngestConfig holds spool directory settings
type IngestConfig struct {
	SpoolDir       string `yaml:"spool_dir"`
	SpoolStructure string `yaml:"spool_structure,omitempty"` // empty derives names from file names
}

// CollectorConfig describes one SSH pull source
type CollectorConfig struct {
	Name      string   `yaml:"name"`
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	User      string   `yaml:"user,omitempty"` // falls back to the secret's username
	Secret    string   `yaml:"secret"`
	Command   string   `yaml:"command"`
	Structure string   `yaml:"structure"`
	Interval  Duration `yaml:"interval"`
}

// SecretsConfig holds secret resolution settings
type SecretsConfig struct {
	MountPaths []string `yaml:"mount_paths,omitempty"`
	EnvPrefix  string   `yaml:"env_prefix,omitempty"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
