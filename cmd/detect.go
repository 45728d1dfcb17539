package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var detectWell string

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Rerun event and anomaly detection",
	Long:  "Recomputes detected events and anomalies from stored reports and observations. Scoped to one well with --well, otherwise all wells.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if detectWell != "" {
			if err := env.Engine.Detect(ctx, detectWell); err != nil {
				return eris.Wrapf(err, "detect well %s", detectWell)
			}
			zap.L().Info("detection complete", zap.String("well_id", detectWell))
			return nil
		}

		wells, err := env.Store.ListWells(ctx)
		if err != nil {
			return eris.Wrap(err, "list wells")
		}
		for _, wellID := range wells {
			if err := env.Engine.Detect(ctx, wellID); err != nil {
				return eris.Wrapf(err, "detect well %s", wellID)
			}
		}
		zap.L().Info("detection complete", zap.Int("wells", len(wells)))
		return nil
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectWell, "well", "", "restrict detection to one well")
	rootCmd.AddCommand(detectCmd)
}
