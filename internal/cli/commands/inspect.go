package commands

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// countWorkers bounds concurrent COUNT(*) queries.
const countWorkers = 4

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	var count bool

	cmd := &cobra.Command{
		Use:   "inspect [script]",
		Short: "List the tables an ETL script defines",
		Long: `Run an ETL script against the configured connections and list the
dimension and fact tables it defines, with their columns and the query
that reads each one.

The script's own connections are replaced by the target and sources from
the configuration, in the order the script first uses them.`,
		Example: `  # Inspect the script named in dwprobe.yaml
  dwprobe inspect

  # Inspect another script and count rows
  dwprobe inspect etl/sales.star --count -o table`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args, count)
		},
	}

	cmd.Flags().BoolVar(&count, "count", false, "Count the rows of every table")

	return cmd
}

func runInspect(cmd *cobra.Command, args []string, count bool) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	script := cc.Cfg.Script
	if len(args) > 0 {
		script = args[0]
	}

	ctx := cmd.Context()
	repr, err := cc.Reinterpret(ctx, script)
	if err != nil {
		return err
	}

	tables := repr.Tables()
	summaries := make([]TableSummary, len(tables))
	for i, t := range tables {
		summaries[i] = Summarize(t)
	}

	if count {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(countWorkers)
		for i, t := range tables {
			g.Go(func() error {
				n, err := t.Count(gctx)
				if err != nil {
					return err
				}
				summaries[i].Rows = &n
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	return cc.Renderer.Tables(summaries)
}
