// Package warehouse prepares the target warehouse schema before an ETL
// script is reinterpreted against it.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/leapstack-labs/dwprobe/pkg/core"
)

// DialectFor maps an adapter dialect name to the goose dialect.
func DialectFor(name string) (goose.Dialect, error) {
	switch name {
	case "postgres":
		return goose.DialectPostgres, nil
	case "mysql":
		return goose.DialectMySQL, nil
	case "sqlite":
		return goose.DialectSQLite3, nil
	}
	return "", fmt.Errorf("migrations are not supported for %s targets", name)
}

// Migrate applies the pending SQL migrations in dir to conn and returns
// the versions it applied. A directory without migrations is not an error.
func Migrate(ctx context.Context, conn *core.Connection, dialect, dir string, logger *slog.Logger) ([]int64, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, ok := conn.DB.(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("connection %s: migrations need a *sql.DB, got %T", conn, conn.DB)
	}
	d, err := DialectFor(dialect)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations directory: %w", err)
	}

	// The provider is not closed: that would close the borrowed database.
	p, err := goose.NewProvider(d, db, os.DirFS(dir))
	if errors.Is(err, goose.ErrNoMigrations) {
		logger.Debug("no migrations found", slog.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		logger.Info("migration applied",
			slog.Int64("version", r.Source.Version),
			slog.String("path", r.Source.Path),
			slog.Duration("duration", r.Duration))
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}
