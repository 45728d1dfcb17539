package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-well ingestion and detection counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		status, err := env.Engine.Status(ctx)
		if err != nil {
			return eris.Wrap(err, "load status")
		}
		if len(status) == 0 {
			fmt.Println("no wells ingested")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WELL\tREPORTS\tLATEST\tSTATUS\tEVENTS\tANOMALIES")
		for _, ws := range status {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\n",
				ws.WellID, ws.Reports, ws.LatestReport, ws.LatestStatus, ws.Events, ws.Anomalies)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
