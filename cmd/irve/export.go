package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltmap/irve-etl/internal/snapshot"
)

func newExportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Build the clean dataset and write it to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}

			ds, err := rt.pipeline.Build(context.Background(), rt.source)
			if err != nil {
				return err
			}
			if err := snapshot.ExportXLSX(outPath, ds); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", len(ds.Records), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "irve.xlsx", "output workbook path")
	return cmd
}
