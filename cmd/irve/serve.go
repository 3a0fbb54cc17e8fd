package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/voltmap/irve-etl/internal/adapter/http"
	"github.com/voltmap/irve-etl/internal/cache"
	"github.com/voltmap/irve-etl/internal/pipeline"
	"github.com/voltmap/irve-etl/internal/snapshot"
)

func newServeCmd() *cobra.Command {
	var warmBuild bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API serving the clean dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}

			c := cache.New(rt.pipeline, rt.logger, rt.metrics)

			// Warm start: seed the cache from a snapshot whose fingerprint
			// still matches the configured source and pipeline version.
			if rt.cfg.SnapshotFile != "" {
				if ds, err := snapshot.Read(rt.cfg.SnapshotFile, pipeline.Version); err != nil {
					rt.logger.Warn("snapshot not usable, will build from source", "path", rt.cfg.SnapshotFile, "error", err)
				} else if c.Seed(rt.source, ds) {
					rt.logger.Info("warm start from snapshot", "path", rt.cfg.SnapshotFile, "records", len(ds.Records), "built_at", ds.BuiltAt)
				} else {
					rt.logger.Warn("snapshot fingerprint stale, will build from source", "path", rt.cfg.SnapshotFile)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if warmBuild {
				go func() {
					if _, err := c.GetOrBuild(ctx, rt.source); err != nil {
						rt.logger.Error("initial build failed", "error", err)
					}
				}()
			}

			srv := httpadapter.NewServer(rt.cfg.HTTPAddr, rt.source, c, rt.logger)
			err = srv.Run(ctx, rt.cfg.ShutdownTimeout)

			// Persist the latest dataset so the next start is warm.
			if rt.cfg.SnapshotFile != "" {
				if ds := c.Current(rt.source); ds != nil {
					if werr := snapshot.Write(rt.cfg.SnapshotFile, ds, pipeline.Version); werr != nil {
						rt.logger.Error("snapshot write failed", "path", rt.cfg.SnapshotFile, "error", werr)
					}
				}
			}

			rt.logger.Info("shutdown complete")
			return err
		},
	}

	cmd.Flags().BoolVar(&warmBuild, "warm-build", true, "start building the dataset at startup instead of on first request")
	return cmd
}
