package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dwprobe/internal/config"
	"github.com/leapstack-labs/dwprobe/internal/warehouse"
	"github.com/leapstack-labs/dwprobe/pkg/adapter"
	"github.com/leapstack-labs/dwprobe/pkg/core"
	"github.com/leapstack-labs/dwprobe/pkg/dwrep"
	"github.com/leapstack-labs/dwprobe/pkg/reinterpreter"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *Renderer

	Target  *core.Connection
	Sources []*core.Connection

	adapters []adapter.Adapter
}

// NewCommandContext opens the configured connections and, when a
// migrations directory is set, migrates the target.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	ctx := cmd.Context()
	cfg := GetConfig(ctx)
	if cfg == nil {
		return nil, nil, errors.New("configuration not loaded")
	}

	mode, err := ParseMode(cfg.Output)
	if err != nil {
		return nil, nil, err
	}

	cc := &CommandContext{
		Cfg:      cfg,
		Logger:   GetLogger(ctx),
		Renderer: NewRenderer(cmd.OutOrStdout(), mode),
	}
	cleanup := cc.close

	if err := cc.open(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	if cfg.MigrationsDir != "" {
		if err := cc.migrate(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	return cc, cleanup, nil
}

func (cc *CommandContext) open(ctx context.Context) error {
	target, err := cc.connect(ctx, cc.Cfg.Target)
	if err != nil {
		return err
	}
	cc.Target = target

	for i := range cc.Cfg.Sources {
		src, err := cc.connect(ctx, &cc.Cfg.Sources[i])
		if err != nil {
			return err
		}
		cc.Sources = append(cc.Sources, src)
	}
	return nil
}

func (cc *CommandContext) connect(ctx context.Context, c *config.ConnectionConfig) (*core.Connection, error) {
	a, conn, err := adapter.Open(ctx, c.Name, c.AdapterConfig(), cc.Logger)
	if err != nil {
		return nil, err
	}
	cc.adapters = append(cc.adapters, a)
	cc.Logger.Debug("connection opened", "name", c.Name, "type", a.DialectName())
	return conn, nil
}

func (cc *CommandContext) migrate(ctx context.Context) error {
	dialect := cc.adapters[0].DialectName()
	if _, err := warehouse.Migrate(ctx, cc.Target, dialect, cc.Cfg.MigrationsDir, cc.Logger); err != nil {
		return fmt.Errorf("target %s: %w", cc.Target, err)
	}
	return nil
}

func (cc *CommandContext) close() {
	for i := len(cc.adapters) - 1; i >= 0; i-- {
		if err := cc.adapters[i].Close(); err != nil {
			cc.Logger.Warn("failed to close connection", "error", err)
		}
	}
	cc.adapters = nil
}

// Reinterpret runs script against the opened connections.
func (cc *CommandContext) Reinterpret(ctx context.Context, script string) (*dwrep.Representation, error) {
	if script == "" {
		return nil, errors.New("no script given\nHint: pass a script path or set script in " + config.ConfigFileName)
	}
	return reinterpreter.Reinterpret(ctx, reinterpreter.Options{
		Program:       script,
		ProgramIsPath: true,
		Sources:       cc.Sources,
		Target:        cc.Target,
		ReservedName:  cc.Cfg.ReservedName,
		Logger:        cc.Logger,
	})
}
