// Command irve ingests the consolidated IRVE charge-point extract, cleans
// it, and serves the result: `irve serve` runs the HTTP API, `irve build`
// runs the pipeline once, `irve export` writes an XLSX workbook, and
// `irve sync` upserts the clean dataset into Postgres.
package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/voltmap/irve-etl/internal/config"
	"github.com/voltmap/irve-etl/internal/domain"
	"github.com/voltmap/irve-etl/internal/loader"
	"github.com/voltmap/irve-etl/internal/observability"
	"github.com/voltmap/irve-etl/internal/pipeline"
)

func main() {
	root := &cobra.Command{
		Use:           "irve",
		Short:         "Clean and serve the IRVE charge-point open-data extract",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newBuildCmd(), newExportCmd(), newSyncCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// runtime bundles the wiring every subcommand needs.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	pipeline *pipeline.Pipeline
	source   loader.Source
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	tiers := domain.DefaultTierTable()
	if cfg.TiersFile != "" {
		tiers, err = domain.LoadTierTable(cfg.TiersFile)
		if err != nil {
			return nil, err
		}
		logger.Info("tier table loaded", "path", cfg.TiersFile, "tiers", tiers.Names())
	}

	client := &http.Client{Timeout: cfg.FetchTimeout}
	l := loader.New(client, logger, cfg.FetchRetries)

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		pipeline: pipeline.New(l, tiers, logger, metrics),
		source: loader.Source{
			URL:           cfg.SourceURL,
			Path:          cfg.SourceFile,
			SchemaVersion: cfg.SchemaVersion,
		},
	}, nil
}
