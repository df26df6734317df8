package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mhrisk/pkg/data"
	"mhrisk/pkg/logger"
	"mhrisk/pkg/report"
)

func newEDACmd(a *app) *cobra.Command {
	var input, outDir string
	cmd := &cobra.Command{
		Use:   "eda",
		Short: "Plot feature correlations and per-class densities of the training data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("out-dir") {
				a.cfg.FiguresDir = outDir
			}
			if input == "" {
				input = paths{a.cfg}.train()
			}
			files, err := a.eda(input)
			if err != nil {
				return err
			}
			for _, f := range files {
				cmd.Printf("wrote %s\n", f)
			}

			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Training CSV (default: processed_dir/maternal_health_risk_train.csv)")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Figure directory (default from config)")

	return cmd
}

func (a *app) eda(input string) ([]string, error) {
	var files []string
	err := a.stage("eda", map[string]any{"input": input, "dir": a.cfg.FiguresDir}, func(lggr logger.Logger) (map[string]float64, error) {
		train, err := data.ReadCSV(input)
		if err != nil {
			return nil, fmt.Errorf("read training data: %w", err)
		}
		files, err = report.EDA(train, schema, a.cfg.FiguresDir)
		if err != nil {
			return nil, err
		}
		lggr.Infow("exploratory figures written", "files", files)

		return map[string]float64{"rows": float64(train.Len())}, nil
	})

	return files, err
}
