package export

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/kmaps-dev/geobatch/internal/batch"
)

// WriteXLSX writes the full result table, failures included, as a
// single-sheet spreadsheet: original columns first, then the outcome
// columns. Coordinate cells stay empty on unresolved rows.
func WriteXLSX(w io.Writer, res *batch.Result) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("results")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range res.Columns {
		header.AddCell().SetString(col)
	}
	for _, col := range extraColumns {
		header.AddCell().SetString(col)
	}

	for _, row := range res.Rows {
		out := sheet.AddRow()
		for i := range res.Columns {
			v := ""
			if i < len(row.Values) {
				v = row.Values[i]
			}
			out.AddCell().SetString(v)
		}

		out.AddCell().SetString(strconv.FormatBool(row.Found))
		out.AddCell().SetString(row.Level)
		out.AddCell().SetString(row.Err)
		if row.Found {
			out.AddCell().SetFloat(row.Lat)
			out.AddCell().SetFloat(row.Lng)
			out.AddCell().SetFloat(row.TMX)
			out.AddCell().SetFloat(row.TMY)
		}
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}
