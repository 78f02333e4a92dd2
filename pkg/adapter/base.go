package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/dwprobe/pkg/core"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, Query and Connection implementations.
type BaseSQLAdapter struct {
	DB          *sql.DB
	Cfg         core.AdapterConfig
	Logger      *slog.Logger
	Placeholder core.PlaceholderStyle
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	_, err := b.DB.ExecContext(ctx, sqlStr)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Query executes a SQL statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*core.Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &core.Rows{Rows: rows}, nil
}

// Connection returns the open database as a connection named name, or nil
// when not connected.
func (b *BaseSQLAdapter) Connection(name string) *core.Connection {
	if b.DB == nil {
		return nil
	}
	return core.NewConnection(name, b.DB, b.Placeholder)
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// open opens and pings a database/sql handle.
func open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}
	return db, nil
}

// OpenDB opens driver with dsn, verifies it with a ping and stores the
// handle and config on b.
func (b *BaseSQLAdapter) OpenDB(ctx context.Context, driver, dsn string, cfg core.AdapterConfig) error {
	if b.Logger == nil {
		b.Logger = slog.New(slog.DiscardHandler)
	}
	b.Logger.Debug("opening database", slog.String("driver", driver), slog.String("type", cfg.Type))

	db, err := open(ctx, driver, dsn)
	if err != nil {
		return err
	}
	b.DB = db
	b.Cfg = cfg
	return nil
}
