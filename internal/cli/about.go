package cli

import (
	"moalmanac-api/internal/about"

	"github.com/spf13/cobra"
)

func newAboutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Print the release metadata of a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rt.openDB(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer db.Close()

			record, err := about.ResolverLoader(newResolver(db))(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), record)
		},
	}
}
