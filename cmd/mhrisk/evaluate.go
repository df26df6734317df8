package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"mhrisk/pkg/data"
	"mhrisk/pkg/logger"
	"mhrisk/pkg/pipeline"
	"mhrisk/pkg/report"
)

var (
	evaluateLong = `
		Scores the fitted classifier on the held-out test data.

		Writes the score, confusion matrix, AUC and per-class tables, the confusion matrix and
		ROC figures, and a markdown report linking them. Inputs are never modified.`

	evaluateExample = `
		# Evaluate the fitted classifier on the test split
		mhrisk evaluate

		# Drop the columns listed under feats_to_drop before scoring
		mhrisk evaluate --columns-to-drop results/drop.csv`
)

func newEvaluateCmd(a *app) *cobra.Command {
	var modelPath, input, drop, outDir string
	cmd := &cobra.Command{
		Use:     "evaluate",
		Short:   "Evaluate the classifier on the test data",
		Long:    longDesc(evaluateLong),
		Example: examples(evaluateExample),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("columns-to-drop") {
				a.cfg.Evaluate.ColumnsToDrop = drop
			}
			if cmd.Flags().Changed("out-dir") {
				a.cfg.Evaluate.ResultsDir = outDir
			}
			p := paths{a.cfg}
			if modelPath == "" {
				modelPath = p.classifier()
			}
			if input == "" {
				input = p.test()
			}
			ev, err := a.evaluate(modelPath, input)
			if err != nil {
				return err
			}
			cmd.Printf("accuracy %.3f, weighted recall %.3f, weighted F2 %.3f on %d rows, report at %s\n",
				ev.Accuracy, ev.RecallWeighted, ev.F2Weighted, ev.TestRows, p.document())

			return nil
		},
	}
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "Fitted classifier (default: model_dir/maternal_risk_classifier.gob)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Test CSV (default: processed_dir/maternal_health_risk_test.csv)")
	cmd.Flags().StringVar(&drop, "columns-to-drop", "", "CSV with a feats_to_drop column (default from config)")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Table directory (default from config)")

	return cmd
}

func (a *app) evaluate(modelPath, input string) (*report.Evaluation, error) {
	var ev *report.Evaluation
	p := paths{a.cfg}
	params := map[string]any{"model": modelPath, "input": input, "columns_to_drop": a.cfg.Evaluate.ColumnsToDrop}
	err := a.stage("evaluate", params, func(lggr logger.Logger) (map[string]float64, error) {
		pl, err := pipeline.Load(modelPath)
		if err != nil {
			return nil, fmt.Errorf("load classifier: %w", err)
		}
		test, err := data.ReadCSV(input)
		if err != nil {
			return nil, fmt.Errorf("read test data: %w", err)
		}
		var drop []string
		if path := a.cfg.Evaluate.ColumnsToDrop; path != "" {
			if drop, err = report.ReadColumnsToDrop(path); err != nil {
				return nil, fmt.Errorf("read columns to drop: %w", err)
			}
		}

		ev, err = report.Evaluate(pl, test, schema, drop)
		if err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		tables, err := ev.WriteTables(a.cfg.Evaluate.ResultsDir)
		if err != nil {
			return nil, fmt.Errorf("write tables: %w", err)
		}
		figs, err := ev.WritePlots(a.cfg.FiguresDir)
		if err != nil {
			return nil, err
		}
		doc := report.Figures{Confusion: figs[0], ROC: figs[1]}
		if pl.Search != nil {
			doc.Tuning = p.tuningPlot()
		}
		if err := ev.WriteDocument(p.document(), doc); err != nil {
			return nil, fmt.Errorf("write report: %w", err)
		}
		lggr.Infow("evaluation written", "tables", tables, "figures", figs, "report", p.document())

		metrics := map[string]float64{
			"test_rows":       float64(ev.TestRows),
			"accuracy":        ev.Accuracy,
			"recall_weighted": ev.RecallWeighted,
			"f2_weighted":     ev.F2Weighted,
		}
		for _, c := range ev.Curves {
			// JSON has no NaN
			if !math.IsNaN(c.AUC) {
				metrics["auc_"+c.Class] = c.AUC
			}
		}

		return metrics, nil
	})

	return ev, err
}
