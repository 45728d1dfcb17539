package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute all derived data from stored reports",
	Long:  "Re-runs detection for every well and rebuilds the retrieval index from reports and observations. Stored events, anomalies, and index entries are replaced wholesale.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.Rebuild(ctx); err != nil {
			return eris.Wrap(err, "rebuild")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
