package core

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Queryer is the query capability a connection must provide.
// *sql.DB, *sql.Tx and *sql.Conn all satisfy it.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PlaceholderStyle selects how bind parameters are written in generated SQL.
type PlaceholderStyle int

const (
	// PlaceholderQuestion writes "?" (SQLite, DuckDB, MySQL).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar writes "$1", "$2", ... (PostgreSQL).
	PlaceholderDollar
)

// Format returns the placeholder for the 1-based parameter index.
func (s PlaceholderStyle) Format(index int) string {
	if s == PlaceholderDollar {
		return "$" + strconv.Itoa(index)
	}
	return "?"
}

// Connection is a caller-supplied database handle.
// The engine borrows connections: it never opens or closes them.
type Connection struct {
	// Name identifies the connection in logs and output.
	Name string

	// DB executes queries.
	DB Queryer

	// Placeholder is the bind parameter style of the driver behind DB.
	Placeholder PlaceholderStyle
}

// NewConnection wraps a query handle as a Connection.
func NewConnection(name string, db Queryer, style PlaceholderStyle) *Connection {
	return &Connection{Name: name, DB: db, Placeholder: style}
}

func (c *Connection) String() string {
	if c == nil {
		return "<nil connection>"
	}
	if c.Name == "" {
		return "<connection>"
	}
	return c.Name
}

// Query runs a query that returns rows.
func (c *Connection) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c == nil || c.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to execute query: %w", c, err)
	}
	return rows, nil
}

// Exec runs a statement that does not return rows.
func (c *Connection) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c == nil || c.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	res, err := c.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to execute SQL: %w", c, err)
	}
	return res, nil
}

// Placeholder returns the binding name for the k-th connection.
// k = 0 is the target; k = 1..N are sources in script order.
func Placeholder(k int) string {
	return "__" + strconv.Itoa(k) + "__"
}

// TargetPlaceholder is the binding name of the target connection.
var TargetPlaceholder = Placeholder(0)

// SourcePlaceholders returns the binding names __1__..__n__.
func SourcePlaceholders(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = Placeholder(i + 1)
	}
	return ids
}
