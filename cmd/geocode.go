package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kmaps-dev/geobatch/internal/batch"
	"github.com/kmaps-dev/geobatch/internal/crs"
	"github.com/kmaps-dev/geobatch/internal/export"
	"github.com/kmaps-dev/geobatch/internal/table"
)

var (
	geocodeIn          string
	geocodeColumn      string
	geocodeOutXLSX     string
	geocodeOutSHP      string
	geocodeLimit       int
	geocodeConcurrency int
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode a spreadsheet of addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.VWorld.Key == "" {
			return eris.New("geocode: vworld.key is not configured")
		}

		tbl, err := table.ReadFile(geocodeIn)
		if err != nil {
			return err
		}
		if geocodeLimit > 0 && len(tbl.Rows) > geocodeLimit {
			tbl.Rows = tbl.Rows[:geocodeLimit]
		}

		result, err := runGeocode(ctx, tbl)
		if err != nil {
			return err
		}

		stem := strings.TrimSuffix(filepath.Base(geocodeIn), filepath.Ext(geocodeIn))
		outXLSX := geocodeOutXLSX
		if outXLSX == "" {
			outXLSX = stem + "_geocoded.xlsx"
		}
		if err := writeFileWith(outXLSX, func(f *os.File) error {
			return export.WriteXLSX(f, result)
		}); err != nil {
			return err
		}
		zap.L().Info("spreadsheet written", zap.String("path", outXLSX))

		if geocodeOutSHP != "" {
			err := writeFileWith(geocodeOutSHP, func(f *os.File) error {
				base := strings.TrimSuffix(filepath.Base(geocodeOutSHP), filepath.Ext(geocodeOutSHP))
				return export.WriteShapefileZip(f, result, base, cfg.CRS.Source)
			})
			switch {
			case errors.Is(err, export.ErrNoResolvedRows):
				zap.L().Warn("no resolved rows; shapefile not written")
				_ = os.Remove(geocodeOutSHP)
			case err != nil:
				return err
			default:
				zap.L().Info("shapefile written", zap.String("path", geocodeOutSHP))
			}
		}

		return nil
	},
}

// runGeocode wires the resolver, converter, and progress display, then runs
// the batch.
func runGeocode(ctx context.Context, tbl *table.Table) (*batch.Result, error) {
	transformer, err := crs.NewTransformer(crs.Pair{Source: cfg.CRS.Source, Target: cfg.CRS.Target})
	if err != nil {
		return nil, err
	}

	client := newResolver(cfg)

	concurrency := geocodeConcurrency
	if concurrency <= 0 {
		concurrency = cfg.Batch.Concurrency
	}

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(tbl.Rows),
			progressbar.OptionSetDescription("Geocoding"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	runner := &batch.Runner{
		Resolver:    client,
		Transformer: transformer,
		Concurrency: concurrency,
		OnProgress: func(done, total int) {
			if bar != nil {
				_ = bar.Add(1)
				return
			}
			zap.L().Debug("progress", zap.Int("done", done), zap.Int("total", total))
		},
	}

	zap.L().Info("starting batch",
		zap.Int("rows", len(tbl.Rows)),
		zap.Int("concurrency", concurrency),
		zap.String("column", geocodeColumn),
	)
	return runner.Run(ctx, tbl, geocodeColumn)
}

func writeFileWith(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "geocode: create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "geocode: close %s", path)
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeIn, "in", "", "input spreadsheet (.xlsx or .csv)")
	geocodeCmd.Flags().StringVar(&geocodeColumn, "column", "", "name of the address column")
	geocodeCmd.Flags().StringVar(&geocodeOutXLSX, "out-xlsx", "", "output spreadsheet path (default <in>_geocoded.xlsx)")
	geocodeCmd.Flags().StringVar(&geocodeOutSHP, "out-shp", "", "output zipped shapefile path (omit to skip)")
	geocodeCmd.Flags().IntVar(&geocodeLimit, "limit", 0, "max number of rows to process (0 = all)")
	geocodeCmd.Flags().IntVar(&geocodeConcurrency, "concurrency", 0, "max in-flight lookups (default from config)")
	_ = geocodeCmd.MarkFlagRequired("in")
	_ = geocodeCmd.MarkFlagRequired("column")
	rootCmd.AddCommand(geocodeCmd)
}
