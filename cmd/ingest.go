package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wellsight/ddr-engine/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <extraction-file>...",
	Short: "Ingest one or more extraction files",
	Long:  "Reads raw extraction files (JSON or YAML), normalizes them, and runs the full pipeline: persist, detect, summarize, index.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		for _, path := range args {
			raw, err := loadExtraction(path)
			if err != nil {
				return err
			}

			result, err := env.Engine.Ingest(ctx, *raw)
			if err != nil {
				return eris.Wrapf(err, "ingest %s", path)
			}
			if err := enc.Encode(result); err != nil {
				return eris.Wrap(err, "encode result")
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

// loadExtraction reads a raw extraction from a JSON or YAML file, chosen
// by extension.
func loadExtraction(path string) (*model.RawExtraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read extraction file %s", path)
	}

	var raw model.RawExtraction
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrapf(err, "parse yaml extraction %s", path)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrapf(err, "parse json extraction %s", path)
		}
	}

	if raw.Ref == "" {
		raw.Ref = path
	}
	zap.L().Debug("loaded extraction",
		zap.String("path", path),
		zap.String("well_id", raw.WellID),
		zap.Int("tables", len(raw.Tables)),
	)
	return &raw, nil
}
