// Package export writes a batch result out as a spreadsheet and as a zipped
// point shapefile.
package export

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/kmaps-dev/geobatch/internal/batch"
)

// ErrNoResolvedRows is returned when no row in the result carries
// coordinates, since a point layer with zero features is useless.
var ErrNoResolvedRows = eris.New("export: no resolved rows")

// extraColumns are appended after the original columns in both exports.
var extraColumns = []string{"found", "level", "error", "lat", "lng", "TMX", "TMY"}

// worldBounds is the valid geographic domain. A coordinate outside it (or
// NaN) would corrupt the layer extent, so such rows never become features.
var worldBounds = geom.NewBounds(geom.XY).Set(-180, -90, 180, 90)

// Well-known text for the supported geodetic frames, written as the .prj
// sidecar so GIS tools pick up the layer CRS.
var prjWKT = map[int]string{
	4326: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]`,
	4019: `GEOGCS["Unknown datum based upon the GRS 1980 ellipsoid",DATUM["Not_specified_based_on_GRS_1980_ellipsoid",SPHEROID["GRS 1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]`,
}

// WriteShapefileZip writes one point feature per resolved row, attributes
// covering all non-geometry result fields, and packages the sidecar files
// into a zip archive on w. Geometry is (lng, lat) in the geodetic CRS the
// addresses were resolved in, identified by geodeticEPSG. Resolved rows
// whose coordinates fall outside the geographic domain are dropped with a
// warning rather than written as broken geometry.
func WriteShapefileZip(w io.Writer, res *batch.Result, baseName string, geodeticEPSG int) error {
	var found []batch.ResultRow
	for _, row := range res.Rows {
		if row.Found {
			found = append(found, row)
		}
	}
	if len(found) == 0 {
		return ErrNoResolvedRows
	}

	// go-shp writes sibling .shp/.shx/.dbf files, so stage in a temp dir
	// and zip from there.
	dir, err := os.MkdirTemp("", "geobatch-shp-")
	if err != nil {
		return eris.Wrap(err, "export: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	shpPath := filepath.Join(dir, baseName+".shp")
	if err := writeShapefile(shpPath, res.Columns, found); err != nil {
		return err
	}

	if wkt, ok := prjWKT[geodeticEPSG]; ok {
		prjPath := filepath.Join(dir, baseName+".prj")
		if err := os.WriteFile(prjPath, []byte(wkt), 0o644); err != nil {
			return eris.Wrap(err, "export: write prj")
		}
	}

	return zipDir(w, dir)
}

func writeShapefile(path string, columns []string, rows []batch.ResultRow) error {
	writer, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrap(err, "export: create shapefile")
	}
	defer writer.Close()

	// Field layout is positional: original columns first, then the outcome
	// columns in extraColumns order.
	writer.SetFields(attributeFields(columns))

	bounds := geom.NewBounds(geom.XY)
	features := 0
	for _, row := range rows {
		pt := geom.NewPointFlat(geom.XY, []float64{row.Lng, row.Lat})
		if !worldBounds.OverlapsPoint(geom.XY, pt.Coords()) {
			zap.L().Warn("dropping feature outside geographic domain",
				zap.Int("row", row.Index),
				zap.Float64("lat", row.Lat),
				zap.Float64("lng", row.Lng),
			)
			continue
		}
		bounds = bounds.Extend(pt)
		writer.Write(&shp.Point{X: pt.X(), Y: pt.Y()})

		n := features
		for i := range columns {
			if err := writeAttr(writer, n, i, row.Values, i); err != nil {
				return err
			}
		}
		attrs := []any{
			strconv.FormatBool(row.Found),
			row.Level,
			row.Err,
			row.Lat,
			row.Lng,
			row.TMX,
			row.TMY,
		}
		for i, col := range extraColumns {
			if err := writer.WriteAttribute(n, len(columns)+i, attrs[i]); err != nil {
				return eris.Wrapf(err, "export: write attribute %s", col)
			}
		}
		features++
	}

	zap.L().Debug("shapefile written",
		zap.Int("features", features),
		zap.Float64s("extent", []float64{bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)}),
	)
	return nil
}

func writeAttr(w *shp.Writer, row, field int, values []string, i int) error {
	v := ""
	if i < len(values) {
		v = values[i]
	}
	// DBF character fields cap at 254 bytes.
	if len(v) > 254 {
		v = v[:254]
	}
	if err := w.WriteAttribute(row, field, v); err != nil {
		return eris.Wrapf(err, "export: write attribute %d", field)
	}
	return nil
}

// attributeFields builds the DBF schema: every original column as a string
// field, then the outcome columns. DBF names are truncated to 10 bytes and
// deduplicated, which is why attribute writes index by position.
func attributeFields(columns []string) []shp.Field {
	fields := make([]shp.Field, 0, len(columns)+len(extraColumns))
	used := make(map[string]bool)

	for _, col := range columns {
		fields = append(fields, shp.StringField(dbfName(col, used), 254))
	}
	fields = append(fields,
		shp.StringField(dbfName("found", used), 5),
		shp.StringField(dbfName("level", used), 16),
		shp.StringField(dbfName("error", used), 254),
		shp.FloatField(dbfName("lat", used), 19, 8),
		shp.FloatField(dbfName("lng", used), 19, 8),
		shp.FloatField(dbfName("TMX", used), 19, 8),
		shp.FloatField(dbfName("TMY", used), 19, 8),
	)

	return fields
}

// dbfName fits a column name into the DBF 10-byte limit, truncating on a
// rune boundary and suffixing duplicates.
func dbfName(name string, used map[string]bool) string {
	base := truncateRunes(name, 10)
	if base == "" {
		base = "col"
	}
	candidate := base
	for n := 2; used[candidate]; n++ {
		suffix := "_" + strconv.Itoa(n)
		candidate = truncateRunes(base, 10-len(suffix)) + suffix
	}
	used[candidate] = true
	return candidate
}

func truncateRunes(s string, maxBytes int) string {
	for len(s) > maxBytes {
		runes := []rune(s)
		s = string(runes[:len(runes)-1])
	}
	return s
}

// zipDir writes every file in dir into a zip archive on w, flattened to
// base names.
func zipDir(w io.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrap(err, "export: read temp dir")
	}

	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addZipEntry(zw, dir, entry.Name()); err != nil {
			return err
		}
	}

	return eris.Wrap(zw.Close(), "export: finalize zip")
}

func addZipEntry(zw *zip.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return eris.Wrap(err, "export: open sidecar")
	}
	defer f.Close() //nolint:errcheck

	zf, err := zw.Create(name)
	if err != nil {
		return eris.Wrap(err, "export: create zip entry")
	}
	if _, err := io.Copy(zf, f); err != nil {
		return eris.Wrap(err, "export: write zip entry")
	}
	return nil
}
