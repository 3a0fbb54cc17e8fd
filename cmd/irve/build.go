package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/voltmap/irve-etl/internal/domain"
	"github.com/voltmap/irve-etl/internal/pipeline"
	"github.com/voltmap/irve-etl/internal/snapshot"
)

func newBuildCmd() *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the cleaning pipeline once and print a summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}

			ds, err := rt.pipeline.Build(context.Background(), rt.source)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source:      %s\n", rt.source.Identity())
			fmt.Fprintf(out, "fingerprint: %s\n", ds.Fingerprint)
			fmt.Fprintf(out, "built at:    %s\n", ds.BuiltAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(out, "raw rows:    %d\n", ds.Stats.RawRows)
			fmt.Fprintf(out, "rejected:    %d\n", ds.Stats.Rejected)
			fmt.Fprintf(out, "dropped:     %d\n", ds.Stats.TotalDropped())

			reasons := make([]string, 0, len(ds.Stats.Dropped))
			for reason := range ds.Stats.Dropped {
				reasons = append(reasons, string(reason))
			}
			sort.Strings(reasons)
			for _, reason := range reasons {
				fmt.Fprintf(out, "  %-22s %d\n", reason, ds.Stats.Dropped[domain.DropReason(reason)])
			}
			fmt.Fprintf(out, "merged:      %d\n", ds.Stats.Merged)
			fmt.Fprintf(out, "accepted:    %d\n", ds.Stats.Accepted)

			if snapshotPath != "" {
				if err := snapshot.Write(snapshotPath, ds, pipeline.Version); err != nil {
					return err
				}
				fmt.Fprintf(out, "snapshot:    %s\n", snapshotPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "write the clean dataset to this snapshot file")
	return cmd
}
