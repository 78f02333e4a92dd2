package commands

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dwprobe/internal/config"
)

func TestNewInspectCommand(t *testing.T) {
	cmd := NewInspectCommand()

	assert.Equal(t, "inspect [script]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("count"))

	assert.Error(t, cmd.Args(cmd, []string{"a.star", "b.star"}))
}

func TestNewRowsCommand(t *testing.T) {
	cmd := NewRowsCommand()

	assert.Equal(t, "rows [script] <table>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")

	for _, flag := range []string{"columns", "limit"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}

	assert.Error(t, cmd.Args(cmd, nil))
	assert.NoError(t, cmd.Args(cmd, []string{"product"}))
	assert.NoError(t, cmd.Args(cmd, []string{"etl.star", "product"}))
	assert.Error(t, cmd.Args(cmd, []string{"etl.star", "product", "extra"}))
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetConfig(ctx))
	assert.NotNil(t, GetLogger(ctx), "logger falls back to a discard logger")

	cfg := &config.Config{Script: "etl.star"}
	logger := GetLogger(ctx)
	ctx = WithConfig(ctx, cfg, logger)
	assert.Same(t, cfg, GetConfig(ctx))
	assert.Same(t, logger, GetLogger(ctx))
}

func TestNewCommandContext_NoConfig(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	_, _, err := NewCommandContext(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration not loaded")
}
