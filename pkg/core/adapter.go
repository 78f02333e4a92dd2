package core

import (
	"context"
	"database/sql"
)

// Adapter opens the databases that connections are borrowed from.
type Adapter interface {
	// Connect establishes a connection to the database.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close closes the database connection.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// Connection exposes the open database as an engine connection.
	Connection(name string) *Connection

	// DialectName returns the SQL dialect name (e.g., "duckdb", "postgres").
	DialectName() string
}

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string            `mapstructure:"type"`
	Path     string            `mapstructure:"path"`
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	DSN      string            `mapstructure:"dsn"`
	Schema   string            `mapstructure:"schema"`
	Options  map[string]string `mapstructure:"options"`
	Params   map[string]any    `mapstructure:"params"`
}

// Rows wraps sql.Rows to provide a consistent interface.
type Rows struct {
	*sql.Rows
}
