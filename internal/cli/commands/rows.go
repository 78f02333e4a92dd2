package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRowsCommand creates the rows command.
func NewRowsCommand() *cobra.Command {
	var (
		columns []string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "rows [script] <table>",
		Short: "Print the rows of a table an ETL script defines",
		Long: `Run an ETL script against the configured connections, then stream the
rows of one of the tables it defines.

With one argument the script comes from the configuration.`,
		Example: `  # All rows of the product dimension
  dwprobe rows product

  # Two columns of a fact table, as JSON lines
  dwprobe rows etl/sales.star sales --columns product_id,amount -o json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRows(cmd, args, columns, limit)
		},
	}

	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to print (default: all)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many rows (0 for no limit)")

	return cmd
}

func runRows(cmd *cobra.Command, args, columns []string, limit int) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	script, name := cc.Cfg.Script, args[0]
	if len(args) == 2 {
		script, name = args[0], args[1]
	}

	ctx := cmd.Context()
	repr, err := cc.Reinterpret(ctx, script)
	if err != nil {
		return err
	}

	t, ok := repr.Get(name)
	if !ok {
		return fmt.Errorf("script defines no table %q (tables: %v)", name, repr.Names())
	}

	cols := columns
	if len(cols) == 0 {
		cols = t.Columns()
	}
	n, err := cc.Renderer.Rows(cols, t.Rows(ctx, columns...), limit)
	if err != nil {
		return err
	}
	cc.Logger.Debug("rows printed", "table", t.Name, "rows", n)
	return nil
}
