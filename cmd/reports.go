package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var reportsWell string

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List ingested reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		wells := []string{reportsWell}
		if reportsWell == "" {
			wells, err = env.Store.ListWells(ctx)
			if err != nil {
				return eris.Wrap(err, "list wells")
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, wellID := range wells {
			reports, err := env.Store.ListReports(ctx, wellID)
			if err != nil {
				return eris.Wrapf(err, "list reports for %s", wellID)
			}
			for _, r := range reports {
				if err := enc.Encode(r); err != nil {
					return eris.Wrap(err, "encode report")
				}
			}
		}
		return nil
	},
}

func init() {
	reportsCmd.Flags().StringVar(&reportsWell, "well", "", "restrict to one well")
	rootCmd.AddCommand(reportsCmd)
}
