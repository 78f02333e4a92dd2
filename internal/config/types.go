// Package config loads dwprobe configuration: the script to reinterpret and
// the connections to run it against.
package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dwprobe/pkg/adapter"
	"github.com/leapstack-labs/dwprobe/pkg/core"
)

// ConnectionConfig describes one database connection.
type ConnectionConfig struct {
	// Name identifies the connection in logs and output.
	Name string `koanf:"name"`

	Type string `koanf:"type"` // duckdb, postgres, sqlite, mysql

	// File-based databases (DuckDB, SQLite)
	Path string `koanf:"path"`

	// Network databases
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Schema   string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, secrets, settings)
	Params map[string]any `koanf:"params"`
}

// Validate checks that the connection names a registered adapter.
func (c *ConnectionConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("connection type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(c.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      c.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// AdapterConfig converts c to the adapter's connection settings.
func (c *ConnectionConfig) AdapterConfig() core.AdapterConfig {
	return core.AdapterConfig{
		Type:     strings.ToLower(c.Type),
		Path:     c.Path,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		Username: c.User,
		Password: c.Password,
		DSN:      c.DSN,
		Schema:   c.Schema,
		Options:  c.Options,
		Params:   c.Params,
	}
}

// Config holds all dwprobe configuration options.
type Config struct {
	// Script is the path of the ETL script.
	Script string `koanf:"script"`

	// ReservedName is the name extraction collects descriptors under.
	ReservedName string `koanf:"reserved_name"`

	Target  *ConnectionConfig  `koanf:"target"`
	Sources []ConnectionConfig `koanf:"sources"`

	// MigrationsDir, when set, holds goose migrations applied to the
	// target before the script runs.
	MigrationsDir string `koanf:"migrations_dir"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	Output    string `koanf:"output"`

	// File is the config file the values were read from, if any.
	File string `koanf:"-"`
}

// Validate checks the connection settings.
func (c *Config) Validate() error {
	if c.Target == nil {
		return fmt.Errorf("target connection is required\nHint: add a target section to %s", ConfigFileName)
	}
	if err := c.Target.Validate(); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	for i := range c.Sources {
		if err := c.Sources[i].Validate(); err != nil {
			return fmt.Errorf("source %d (%s): %w", i+1, c.Sources[i].Name, err)
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want text or json)", c.LogFormat)
	}
	return nil
}
