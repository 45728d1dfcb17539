package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wellsight/ddr-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ddr-engine",
	Short: "Analytical engine for daily drilling reports",
	Long:  "Ingests extracted daily drilling reports, normalizes them into a canonical time series, detects events and anomalies, summarizes each report, and answers questions over the corpus.",
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
