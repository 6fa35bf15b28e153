package cli

import (
	"fmt"
	"text/tabwriter"

	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/schema"

	"github.com/spf13/cobra"
)

func newTablesCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List every table with its row count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rt.openDB(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer db.Close()

			res := newResolver(db)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tROWS")
			for _, table := range schema.TableNames() {
				plan, err := planner.PlanTableCount(table)
				if err != nil {
					return err
				}
				rows, err := res.Query(cmd.Context(), table, plan, []string{"count"})
				if err != nil {
					return fmt.Errorf("count %s: %w", table, err)
				}
				var count int64
				if len(rows) > 0 {
					count, _ = resolver.AsInt64(rows[0]["count"])
				}
				fmt.Fprintf(tw, "%s\t%d\n", table, count)
			}
			return tw.Flush()
		},
	}
}
