package table

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadFile reads a tabular file, dispatching on extension: .csv is parsed
// as CSV, anything else as XLSX. The first row is the header.
func ReadFile(path string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "table: open csv")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f)
	}
	return ReadXLSX(path)
}

// ReadXLSX reads the first sheet of an XLSX file into a Table.
func ReadXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "table: open xlsx")
	}
	return fromSheets(f)
}

// ReadXLSXBytes reads an in-memory XLSX document, as received from an upload.
func ReadXLSXBytes(b []byte) (*Table, error) {
	f, err := xlsx.OpenBinary(b)
	if err != nil {
		return nil, eris.Wrap(err, "table: open xlsx bytes")
	}
	return fromSheets(f)
}

func fromSheets(f *xlsx.File) (*Table, error) {
	if len(f.Sheets) == 0 {
		return nil, eris.New("table: xlsx has no sheets")
	}
	sheet := f.Sheets[0]

	t := &Table{}
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			t.Columns = cells
			continue
		}
		t.Rows = append(t.Rows, Row{Index: i - 1, Values: cells})
	}

	if len(t.Columns) == 0 {
		return nil, eris.New("table: xlsx has no header row")
	}
	return t, nil
}

// ReadCSV reads CSV data into a Table. The first record is the header;
// rows may have fewer fields than the header.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields

	t := &Table{}
	for i := 0; ; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "table: read csv row")
		}
		if i == 0 {
			t.Columns = record
			continue
		}
		t.Rows = append(t.Rows, Row{Index: i - 1, Values: record})
	}

	if len(t.Columns) == 0 {
		return nil, eris.New("table: csv has no header row")
	}
	return t, nil
}
