// Package adapter opens the databases that reinterpretation runs borrow
// their connections from.
//
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves from init(); import them for side effects:
//
//	import _ "github.com/leapstack-labs/dwprobe/pkg/adapters/sqlite"
package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/dwprobe/pkg/core"
)

type (
	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter

	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)

// Open creates the adapter for cfg.Type, connects it and returns the
// connection it exposes under name. The caller closes the adapter.
func Open(ctx context.Context, name string, cfg Config, logger *slog.Logger) (Adapter, *core.Connection, error) {
	a, err := NewAdapter(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, nil, fmt.Errorf("connection %s: %w", name, err)
	}
	return a, a.Connection(name), nil
}
