package export

import (
	"archive/zip"
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmaps-dev/geobatch/internal/batch"
	"github.com/kmaps-dev/geobatch/internal/table"
)

func sampleResult() *batch.Result {
	return &batch.Result{
		Columns: []string{"이름", "주소"},
		Rows: []batch.ResultRow{
			{
				Index: 0, Values: []string{"본점", "세종대로 110"},
				Found: true, Level: "exact",
				Lat: 37.5663, Lng: 126.9779, TMX: 198048.0, TMY: 551862.0,
			},
			{
				Index: 1, Values: []string{"지점", "없는 주소"},
				Err: "no match in either tier",
			},
			{
				Index: 2, Values: []string{"창고", "세종로 1"},
				Found: true, Level: "exact",
				Lat: 37.58, Lng: 126.975, TMX: 197790.0, TMY: 553380.0,
			},
		},
		Resolved: 2,
		Failed:   1,
	}
}

func TestWriteXLSX_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleResult()))

	tbl, err := table.ReadXLSXBytes(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"이름", "주소", "found", "level", "error", "lat", "lng", "TMX", "TMY"},
		tbl.Columns)
	require.Len(t, tbl.Rows, 3)

	resolved := tbl.Rows[0]
	assert.Equal(t, "본점", resolved.Value(0))
	assert.Equal(t, "true", resolved.Value(2))
	assert.Equal(t, "exact", resolved.Value(3))
	assert.Equal(t, "", resolved.Value(4))
	assert.NotEmpty(t, resolved.Value(5), "lat cell must be populated on resolved rows")

	failed := tbl.Rows[1]
	assert.Equal(t, "false", failed.Value(2))
	assert.Equal(t, "no match in either tier", failed.Value(4))
	assert.Equal(t, "", failed.Value(5), "coordinate cells must stay empty on failures")
}

func TestWriteShapefileZip_SidecarsAndFeatureCount(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteShapefileZip(&buf, sampleResult(), "result_g60", 4326))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["result_g60.shp"])
	assert.True(t, names["result_g60.shx"])
	assert.True(t, names["result_g60.dbf"])
	assert.True(t, names["result_g60.prj"])

	// Re-read the layer: only the two resolved rows become features, and
	// each feature's geometry matches its own row.
	dir := t.TempDir()
	require.NoError(t, extractAll(zr, dir))

	reader, err := shp.Open(filepath.Join(dir, "result_g60.shp"))
	require.NoError(t, err)
	defer reader.Close()

	var points []shp.Point
	for reader.Next() {
		_, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		require.True(t, ok)
		points = append(points, *pt)
	}
	require.Len(t, points, 2)
	assert.InDelta(t, 126.9779, points[0].X, 1e-9)
	assert.InDelta(t, 37.5663, points[0].Y, 1e-9)
	assert.InDelta(t, 126.975, points[1].X, 1e-9)
	assert.InDelta(t, 37.58, points[1].Y, 1e-9)
}

func TestWriteShapefileZip_DropsOutOfDomainGeometry(t *testing.T) {
	res := sampleResult()
	res.Rows = append(res.Rows,
		batch.ResultRow{
			Index: 3, Values: []string{"유령", "엉뚱한 좌표"},
			Found: true, Level: "exact", Lat: 95.0, Lng: 127.0,
		},
		batch.ResultRow{
			Index: 4, Values: []string{"유령2", "계산 불능"},
			Found: true, Level: "exact", Lat: math.NaN(), Lng: math.NaN(),
		},
	)

	var buf bytes.Buffer
	require.NoError(t, WriteShapefileZip(&buf, res, "result_g60", 4326))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, extractAll(zr, dir))

	reader, err := shp.Open(filepath.Join(dir, "result_g60.shp"))
	require.NoError(t, err)
	defer reader.Close()

	count := 0
	for reader.Next() {
		count++
	}
	assert.Equal(t, 2, count, "out-of-domain rows must not become features")
}

func TestWriteShapefileZip_NoResolvedRows(t *testing.T) {
	res := &batch.Result{
		Columns: []string{"addr"},
		Rows:    []batch.ResultRow{{Index: 0, Err: "no value supplied"}},
		Failed:  1,
	}

	var buf bytes.Buffer
	err := WriteShapefileZip(&buf, res, "empty", 4326)
	assert.ErrorIs(t, err, ErrNoResolvedRows)
}

func TestDBFName_TruncationAndDedupe(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "short", dbfName("short", used))
	assert.Equal(t, "longcolumn", dbfName("longcolumnname", used))
	assert.Equal(t, "longcolu_2", dbfName("longcolumnname", used))
	assert.Equal(t, "longcolu_3", dbfName("longcolumnnameX", used))

	// Multi-byte names truncate on rune boundaries.
	name := dbfName("대표자주소지번표기", used)
	assert.LessOrEqual(t, len(name), 10)
	assert.NotContains(t, name, string(rune(0xFFFD)))
}

func extractAll(zr *zip.Reader, dir string) error {
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(filepath.Join(dir, f.Name))
		if err != nil {
			rc.Close() //nolint:errcheck
			return err
		}
		if _, err := io.Copy(out, rc); err != nil {
			return eris.Wrap(err, "extract zip entry")
		}
		rc.Close()  //nolint:errcheck
		out.Close() //nolint:errcheck
	}
	return nil
}
