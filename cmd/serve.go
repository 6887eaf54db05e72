package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kmaps-dev/geobatch/internal/batch"
	"github.com/kmaps-dev/geobatch/internal/crs"
	"github.com/kmaps-dev/geobatch/internal/export"
	"github.com/kmaps-dev/geobatch/internal/table"
	"github.com/kmaps-dev/geobatch/pkg/vworld"
)

const maxUploadBytes = 32 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload/geocode/download API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.VWorld.Key == "" {
			return eris.New("serve: vworld.key is not configured")
		}

		transformer, err := crs.NewTransformer(crs.Pair{Source: cfg.CRS.Source, Target: cfg.CRS.Target})
		if err != nil {
			return err
		}

		client := newResolver(cfg)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(client, transformer, cfg.Batch.Concurrency, cfg.CRS.Source),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}

		return nil
	},
}

// newRouter builds the HTTP surface. Collaborators are injected so the
// handlers can be exercised against a resolver double.
func newRouter(resolver vworld.Client, transformer *crs.Transformer, concurrency, sourceEPSG int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	r.Post("/v1/geocode", func(w http.ResponseWriter, req *http.Request) {
		handleGeocode(w, req, resolver, transformer, concurrency, sourceEPSG)
	})

	return r
}

// handleGeocode runs one synchronous batch over an uploaded spreadsheet and
// streams the export back. format=xlsx (default) returns the result table;
// format=shp returns the zipped point shapefile.
func handleGeocode(w http.ResponseWriter, req *http.Request, resolver vworld.Client, transformer *crs.Transformer, concurrency, sourceEPSG int) {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	column := req.FormValue("column")
	if column == "" {
		httpError(w, http.StatusBadRequest, "column field is required")
		return
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close() //nolint:errcheck

	tbl, err := readUpload(file, header.Filename)
	if err != nil {
		httpError(w, http.StatusBadRequest, "could not parse uploaded file")
		return
	}

	runner := &batch.Runner{
		Resolver:    resolver,
		Transformer: transformer,
		Concurrency: concurrency,
	}
	result, err := runner.Run(req.Context(), tbl, column)
	if err != nil {
		zap.L().Warn("geocode request failed", zap.Error(err))
		httpError(w, http.StatusBadRequest, eris.Cause(err).Error())
		return
	}

	stem := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	var buf bytes.Buffer

	switch req.URL.Query().Get("format") {
	case "", "xlsx":
		if err := export.WriteXLSX(&buf, result); err != nil {
			zap.L().Error("xlsx export failed", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem+"_geocoded.xlsx"))

	case "shp":
		err := export.WriteShapefileZip(&buf, result, stem+"_g60", sourceEPSG)
		if errors.Is(err, export.ErrNoResolvedRows) {
			httpError(w, http.StatusUnprocessableEntity, "no resolved rows")
			return
		}
		if err != nil {
			zap.L().Error("shapefile export failed", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem+"_g60.zip"))

	default:
		httpError(w, http.StatusBadRequest, "format must be xlsx or shp")
		return
	}

	w.Header().Set("X-Resolved-Rows", fmt.Sprintf("%d", result.Resolved))
	w.Header().Set("X-Failed-Rows", fmt.Sprintf("%d", result.Failed))
	_, _ = w.Write(buf.Bytes())
}

func readUpload(file io.Reader, filename string) (*table.Table, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return table.ReadCSV(file)
	}
	b, err := io.ReadAll(file)
	if err != nil {
		return nil, eris.Wrap(err, "serve: read upload")
	}
	return table.ReadXLSXBytes(b)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":%q}`, msg)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
