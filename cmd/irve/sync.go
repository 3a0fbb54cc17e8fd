package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltmap/irve-etl/internal/store"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Build the clean dataset and upsert it into Postgres",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			if rt.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for sync")
			}

			ctx := context.Background()
			ds, err := rt.pipeline.Build(ctx, rt.source)
			if err != nil {
				return err
			}

			st, err := store.New(ctx, rt.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.UpsertDataset(ctx, ds); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "synced %d records (fingerprint %s)\n", len(ds.Records), ds.Fingerprint)
			return nil
		},
	}
}
