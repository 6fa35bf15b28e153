package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"moalmanac-api/internal/store"

	"github.com/spf13/cobra"
)

func newInitCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the knowledgebase tables in a snapshot",
		Long: `Creates every knowledgebase table that is missing from the snapshot at
database.path. Existing tables and rows are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rt.openDB(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			rt.logger.Info("snapshot initialized", slog.String("path", rt.cfg.Database.Path))
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", rt.cfg.Database.Path)
			return nil
		},
	}
}

func newLoadCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "load <seed.yaml>",
		Short: "Load a YAML seed into a snapshot",
		Long: `Loads a YAML seed, keyed by table name, into the snapshot at
database.path. Missing tables are created first and the rows are written in
one transaction. Use - to read the seed from stdin.

Examples:
  almanac load seed.yaml
  cat seed.yaml | almanac load -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := readSeed(cmd, args[0])
			if err != nil {
				return err
			}

			db, err := rt.openDB(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			n, err := seed.Load(cmd.Context(), db)
			if err != nil {
				return err
			}
			rt.logger.Info("seed loaded",
				slog.String("path", rt.cfg.Database.Path),
				slog.String("seed", args[0]),
				slog.Int("rows", n),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows into %s\n", n, rt.cfg.Database.Path)
			return nil
		},
	}
}

func readSeed(cmd *cobra.Command, path string) (store.Seed, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open seed: %w", err)
		}
		defer f.Close()
		r = f
	}
	return store.ParseSeed(r)
}
