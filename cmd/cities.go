package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/carbon-cli/internal/geo"
)

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "List the supported cities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		asGeoJSON, _ := cmd.Flags().GetBool("geojson")
		return runCities(os.Stdout, geo.Default(), asGeoJSON)
	},
}

func runCities(w io.Writer, ix *geo.Index, asGeoJSON bool) error {
	if asGeoJSON {
		body, err := ix.MarshalGeoJSON()
		if err != nil {
			return err
		}
		if _, err := w.Write(append(body, '\n')); err != nil {
			return eris.Wrap(err, "write geojson")
		}
		return nil
	}

	for _, c := range ix.Cities() {
		fmt.Fprintln(w, c)
	}
	fmt.Fprintf(w, "\n%d cities\n", ix.Len())
	return nil
}

func init() {
	citiesCmd.Flags().Bool("geojson", false, "print a GeoJSON FeatureCollection instead of names")
	rootCmd.AddCommand(citiesCmd)
}
