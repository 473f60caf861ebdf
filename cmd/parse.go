package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/carbon-cli/internal/calc"
	"github.com/sells-group/carbon-cli/internal/geo"
	"github.com/sells-group/carbon-cli/internal/model"
)

var parseCmd = &cobra.Command{
	Use:   "parse <query>",
	Short: "Extract a route from free text without calculating",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("parse"); err != nil {
			return err
		}
		ex := calc.NewEngine(geo.Default(), nil, nil, calc.WithExtractor(initExtractor(nil)))
		return runParse(cmd.Context(), os.Stdout, ex, strings.Join(args, " "))
	},
}

// parser is the extraction-only part of the engine.
type parser interface {
	Parse(ctx context.Context, req model.ParseRequest) (*model.ParseResult, error)
}

func runParse(ctx context.Context, w io.Writer, p parser, query string) error {
	res, err := p.Parse(ctx, model.ParseRequest{Query: query})
	if err != nil {
		return describeError(err)
	}
	return writeIndentedJSON(w, res)
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
