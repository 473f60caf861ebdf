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

	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/report"
	"github.com/sells-group/carbon-cli/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent calculations from the audit log",
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
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		origin, _ := cmd.Flags().GetString("origin")
		destination, _ := cmd.Flags().GetString("destination")
		mode, _ := cmd.Flags().GetString("mode")
		limit, _ := cmd.Flags().GetInt("limit")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")

		filter := store.CalculationFilter{
			Origin:        origin,
			Destination:   destination,
			TransportMode: model.TransportMode(mode),
			Limit:         limit,
		}
		return runHistory(ctx, os.Stdout, st, filter, xlsxPath)
	},
}

func runHistory(ctx context.Context, w io.Writer, st store.Store, filter store.CalculationFilter, xlsxPath string) error {
	recs, err := st.ListCalculations(ctx, filter)
	if err != nil {
		return eris.Wrap(err, "history")
	}

	if xlsxPath != "" {
		return exportHistory(xlsxPath, recs)
	}

	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "No calculations found.")
		return nil
	}
	formatHistory(w, recs)
	return nil
}

func exportHistory(path string, recs []model.AuditRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create xlsx file")
	}
	if err := report.WriteXLSX(f, recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "close xlsx file")
	}
	zap.L().Info("calculation history exported", zap.String("path", path), zap.Int("rows", len(recs)))
	return nil
}

func formatHistory(w io.Writer, recs []model.AuditRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tVARIANT\tROUTE\tMODE\tKG\tKM\tKG CO2E\tMS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s → %s\t%s\t%s\t%d\t%s\t%d\n",
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Variant,
			r.Origin, r.Destination,
			r.TransportMode,
			strconv.FormatFloat(r.WeightKg, 'f', -1, 64),
			r.DistanceKm,
			strconv.FormatFloat(r.EmissionsKg, 'f', 2, 64),
			r.LatencyMs,
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	f := historyCmd.Flags()
	f.String("origin", "", "filter by origin city")
	f.String("destination", "", "filter by destination city")
	f.String("mode", "", "filter by transport mode")
	f.Int("limit", store.DefaultListLimit, "maximum rows to show")
	f.String("xlsx", "", "write the rows to this XLSX file instead of printing")
	rootCmd.AddCommand(historyCmd)
}
