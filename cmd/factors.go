package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/carbon-cli/internal/factor"
	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/store"
)

var factorsCmd = &cobra.Command{
	Use:   "factors",
	Short: "Manage emission factors",
	Long:  "Commands for listing, setting, seeding and pre-caching the emission factor table.",
}

// -- factors list --

var factorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List emission factors from the durable store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withFactors(cmd.Context(), func(ctx context.Context, fs *factor.Store) error {
			return runFactorsList(ctx, os.Stdout, fs)
		})
	},
}

// -- factors set --

var factorsSetCmd = &cobra.Command{
	Use:   "set <mode> <factor_per_km_kg>",
	Short: "Set one emission factor and evict its cached copy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return eris.Wrapf(err, "parse factor %q", args[1])
		}
		f := model.EmissionFactor{TransportMode: model.TransportMode(args[0]), FactorPerKmKg: v}

		return withFactors(cmd.Context(), func(ctx context.Context, fs *factor.Store) error {
			if err := fs.Set(ctx, f); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s = %s\n", f.TransportMode, strconv.FormatFloat(v, 'f', -1, 64))
			return nil
		})
	},
}

// -- factors seed --

var factorsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the default factors, or those in --file, and evict cached copies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")

		factors := store.DefaultFactors()
		if path != "" {
			var err error
			factors, err = store.LoadFactorsFile(path)
			if err != nil {
				return err
			}
		}

		return withFactors(cmd.Context(), func(ctx context.Context, fs *factor.Store) error {
			if err := fs.Set(ctx, factors...); err != nil {
				return err
			}
			zap.L().Info("emission factors seeded", zap.Int("factors", len(factors)))
			fmt.Fprintf(os.Stdout, "Seeded %d emission factors.\n", len(factors))
			return nil
		})
	},
}

// -- factors warm --

var factorsWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Load every factor into the fast cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withFactors(cmd.Context(), func(ctx context.Context, fs *factor.Store) error {
			n, err := fs.Warm(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Cached %d emission factors.\n", n)
			return nil
		})
	},
}

// withFactors opens the store and cache, runs fn over a factor.Store and
// closes both.
func withFactors(ctx context.Context, fn func(context.Context, *factor.Store) error) error {
	if err := cfg.Validate("admin"); err != nil {
		return err
	}
	if err := cfg.Validate("cache"); err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	c, err := initCache(ctx)
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck

	return fn(ctx, factor.New(st, c, factor.WithTTL(cfg.Cache.FactorTTL())))
}

func runFactorsList(ctx context.Context, w io.Writer, fs *factor.Store) error {
	factors, err := fs.List(ctx)
	if err != nil {
		return err
	}
	if len(factors) == 0 {
		fmt.Fprintln(os.Stderr, "No emission factors found. Run `carbon-cli factors seed`.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tKG CO2E / KM / KG\tUPDATED")
	for _, f := range factors {
		updated := "-"
		if !f.UpdatedAt.IsZero() {
			updated = f.UpdatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.TransportMode, strconv.FormatFloat(f.FactorPerKmKg, 'f', -1, 64), updated)
	}
	return tw.Flush()
}

func init() {
	factorsSeedCmd.Flags().String("file", "", "YAML seed file (default: built-in factors)")

	factorsCmd.AddCommand(factorsListCmd, factorsSetCmd, factorsSeedCmd, factorsWarmCmd)
	rootCmd.AddCommand(factorsCmd)
}
