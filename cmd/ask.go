package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a natural-language question about the ingested reports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := strings.Join(args, " ")

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// The retrieval index is in-memory; hydrate it from the store
		// before routing.
		if err := env.Engine.Index().Rebuild(ctx, env.Store); err != nil {
			return eris.Wrap(err, "rebuild retrieval index")
		}

		answer, err := env.Engine.Ask(ctx, question)
		if err != nil {
			return eris.Wrap(err, "answer question")
		}

		if askJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(answer)
		}

		fmt.Println(answer.Text)
		if len(answer.Flags) > 0 {
			parts := make([]string, 0, len(answer.Flags))
			for _, f := range answer.Flags {
				parts = append(parts, string(f))
			}
			fmt.Printf("caveats: %s\n", strings.Join(parts, ", "))
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "emit the full answer as JSON")
	rootCmd.AddCommand(askCmd)
}
