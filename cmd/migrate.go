package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the durable schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("admin"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		seed, _ := cmd.Flags().GetBool("seed")
		return runMigrate(ctx, os.Stdout, st, seed)
	},
}

// runMigrate applies the schema and, with seed, writes the default factors
// for any mode that has no row yet.
func runMigrate(ctx context.Context, w io.Writer, st store.Store, seed bool) error {
	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}
	fmt.Fprintf(w, "Migrated %s store.\n", cfg.Store.Driver)

	if !seed {
		return nil
	}

	var missing []model.EmissionFactor
	for _, f := range store.DefaultFactors() {
		existing, err := st.GetEmissionFactor(ctx, f.TransportMode)
		if err != nil {
			return eris.Wrapf(err, "check factor %s", f.TransportMode)
		}
		if existing == nil {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		fmt.Fprintln(w, "Emission factors already present.")
		return nil
	}

	seeded, err := store.Seed(ctx, st, missing)
	if err != nil {
		return eris.Wrap(err, "seed factors")
	}
	fmt.Fprintf(w, "Seeded %d emission factors.\n", len(seeded))
	return nil
}

func init() {
	migrateCmd.Flags().Bool("seed", false, "also write default emission factors for modes without a row")
	rootCmd.AddCommand(migrateCmd)
}
