package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wellsight/ddr-engine/internal/model"
)

var (
	batchDir   string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Ingest a directory of extraction files concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		raws, err := loadBatch(batchDir, batchLimit)
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			zap.L().Info("no extraction files found", zap.String("dir", batchDir))
			return nil
		}

		zap.L().Info("processing batch",
			zap.Int("extractions", len(raws)),
			zap.Int("concurrency", cfg.Batch.MaxConcurrentReports),
		)

		items := env.Engine.IngestBatch(ctx, raws)

		var succeeded, failed int
		for _, item := range items {
			if item.Err != nil {
				failed++
				continue
			}
			succeeded++
		}

		zap.L().Info("batch complete",
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
		)
		if failed > 0 {
			return eris.Errorf("batch finished with %d failed extractions", failed)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", ".", "directory of extraction files")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of files to ingest (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

// loadBatch reads every extraction file in dir, sorted by name so batch
// runs are reproducible.
func loadBatch(dir string, limit int) ([]model.RawExtraction, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read batch dir %s", dir)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	raws := make([]model.RawExtraction, 0, len(paths))
	for _, path := range paths {
		raw, err := loadExtraction(path)
		if err != nil {
			return nil, err
		}
		raws = append(raws, *raw)
	}
	return raws, nil
}
