package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kmaps-dev/geobatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geobatch",
	Short: "Batch address geocoder with spreadsheet and shapefile export",
	Long:  "Reads addresses from a spreadsheet, resolves them to coordinates through the V-World address API with a parcel-then-road fallback, converts to projected TM coordinates, and exports XLSX and zipped shapefile output.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
