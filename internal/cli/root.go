// Package cli implements the almanac command-line tool. It builds SQLite
// knowledgebase snapshots and queries them through the same resolver and
// serializers the HTTP server uses.
package cli

import (
	"fmt"

	"moalmanac-api/internal/config"
	"moalmanac-api/internal/logging"

	"github.com/spf13/cobra"
)

// runtime carries what PersistentPreRunE resolved for the running command.
type runtime struct {
	version string
	commit  string
	cfg     *config.Config
	logger  *logging.Logger
}

// NewRootCommand builds the almanac command tree. Configuration flags are
// shared with the server and follow the same precedence rules.
func NewRootCommand(version, commit string) *cobra.Command {
	rt := &runtime{version: version, commit: commit}

	root := &cobra.Command{
		Use:   "almanac",
		Short: "Build and query Molecular Oncology Almanac snapshots",
		Long: `almanac manages the SQLite snapshot served by moalmanac-api.

Examples:
  almanac init --database.path moalmanac.sqlite3
  almanac load seed.yaml
  almanac query genes --filter gene=BRAF
  almanac query propositions --filter therapy=Dabrafenib --summary
  almanac tables`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "help":
				return nil
			}
			return rt.load(cmd)
		},
	}
	config.DefineFlags(root.PersistentFlags())

	root.AddCommand(
		newInitCommand(rt),
		newLoadCommand(rt),
		newQueryCommand(rt),
		newTablesCommand(rt),
		newAboutCommand(rt),
		newVersionCommand(rt),
	)
	return root
}

// Execute runs the almanac command tree against os.Args.
func Execute(version, commit string) error {
	return NewRootCommand(version, commit).Execute()
}

func (rt *runtime) load(cmd *cobra.Command) error {
	cfg, err := config.LoadFlags(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if result := cfg.Validate(); result.HasErrors() {
		return result
	}

	rt.cfg = cfg
	rt.logger = logging.NewLogger(logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

func newVersionCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "almanac %s (%s)\n", rt.version, rt.commit)
		},
	}
}
