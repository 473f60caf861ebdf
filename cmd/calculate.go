package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/carbon-cli/internal/model"
)

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Calculate emissions for one shipment",
	Long: "Runs a direct calculation from --origin, --destination, --weight and --mode, " +
		"or a smart calculation from a free-text --query. Prints the JSON result.",
	Example: `  carbon-cli calculate --origin NYC --destination LAX --weight 10 --mode ground
  carbon-cli calculate --query "20kg of parts from Shanghai to Amsterdam by sea"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := calculateInput{}
		in.Origin, _ = cmd.Flags().GetString("origin")
		in.Destination, _ = cmd.Flags().GetString("destination")
		in.Query, _ = cmd.Flags().GetString("query")
		if cmd.Flags().Changed("weight") {
			w, _ := cmd.Flags().GetFloat64("weight")
			in.WeightKg = &w
		}
		if cmd.Flags().Changed("mode") {
			m, _ := cmd.Flags().GetString("mode")
			mode := model.TransportMode(m)
			in.Mode = &mode
		}
		return runCalculate(cmd.Context(), os.Stdout, in)
	},
}

// calculateInput is the flag set of the calculate command. WeightKg and
// Mode are nil when the flag was not given.
type calculateInput struct {
	Origin      string
	Destination string
	Query       string
	WeightKg    *float64
	Mode        *model.TransportMode
}

func runCalculate(ctx context.Context, w io.Writer, in calculateInput) error {
	smart := in.Query != ""
	mode := "calculate"
	if smart {
		mode = "smart"
	}
	if err := cfg.Validate(mode); err != nil {
		return err
	}

	env, err := initApp(ctx, smart, nil)
	if err != nil {
		return err
	}
	defer env.Close(ctx)

	var res *model.CalculationResult
	if smart {
		res, err = env.Engine.SmartCalculate(ctx, model.SmartRequest{
			Query:         in.Query,
			WeightKg:      in.WeightKg,
			TransportMode: in.Mode,
		})
	} else {
		req := model.CalculationRequest{
			Origin:      in.Origin,
			Destination: in.Destination,
		}
		if in.WeightKg != nil {
			req.WeightKg = *in.WeightKg
		}
		if in.Mode != nil {
			req.TransportMode = *in.Mode
		}
		res, err = env.Engine.Calculate(ctx, req)
	}
	if err != nil {
		return describeError(err)
	}

	return writeIndentedJSON(w, res)
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

func init() {
	f := calculateCmd.Flags()
	f.String("origin", "", "origin city")
	f.String("destination", "", "destination city")
	f.Float64("weight", 0, "shipment weight in kg")
	f.String("mode", "", "transport mode: ground, air or sea (default ground)")
	f.String("query", "", "free-text shipment description; enables smart calculation")
	calculateCmd.MarkFlagsMutuallyExclusive("query", "origin")
	calculateCmd.MarkFlagsMutuallyExclusive("query", "destination")
	rootCmd.AddCommand(calculateCmd)
}
