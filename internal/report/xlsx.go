// Package report exports the calculation log.
package report

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/carbon-cli/internal/model"
)

// SheetName is the worksheet that holds the calculation log.
const SheetName = "Calculations"

// Header is the first row of the exported sheet.
var Header = []string{
	"id",
	"variant",
	"origin",
	"destination",
	"weight_kg",
	"transport_mode",
	"distance_km",
	"emissions_kg",
	"latency_ms",
	"created_at",
}

// WriteXLSX writes recs as a single-sheet workbook, one row per record,
// preceded by Header.
func WriteXLSX(w io.Writer, recs []model.AuditRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	addStrings(sheet.AddRow(), Header...)
	for _, rec := range recs {
		row := sheet.AddRow()
		addStrings(row, rec.ID, string(rec.Variant), rec.Origin, rec.Destination)
		row.AddCell().SetFloat(rec.WeightKg)
		addStrings(row, string(rec.TransportMode))
		row.AddCell().SetInt(rec.DistanceKm)
		row.AddCell().SetFloat(rec.EmissionsKg)
		row.AddCell().SetInt64(rec.LatencyMs)
		addStrings(row, rec.CreatedAt.UTC().Format(time.RFC3339))
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

func addStrings(row *xlsx.Row, vals ...string) {
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}

