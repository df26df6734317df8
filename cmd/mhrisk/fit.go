package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"mhrisk/pkg/data"
	"mhrisk/pkg/logger"
	"mhrisk/pkg/model"
	"mhrisk/pkg/pipeline"
	"mhrisk/pkg/report"
)

var (
	fitLong = `
		Fits the scaler and RBF support vector classifier on the training data.

		With the search enabled, C and gamma are chosen by a randomized search scored by
		weighted recall under stratified cross-validation and the best candidate is refit on
		every training row. The scaler is refit on the training part of every fold, so
		held-out rows never shape the standardization. Without the search the preprocessor
		written by the split stage is reused when it exists.`

	fitExample = `
		# Fit with the configured search
		mhrisk fit

		# Quick fit on two features without the search
		mhrisk fit --search=false --features SystolicBP,BS

		# Narrow search
		mhrisk fit --iterations 20 --folds 5 --seed 1`
)

type fitFlags struct {
	input        string
	preprocessor string
	features     []string
	search       bool
	iterations   int
	folds        int
	seed         int64
	workers      int
}

func newFitCmd(a *app) *cobra.Command {
	var f fitFlags
	cmd := &cobra.Command{
		Use:     "fit",
		Short:   "Fit the classifier",
		Long:    longDesc(fitLong),
		Example: examples(fitExample),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("features") {
				a.cfg.Fit.Features = f.features
			}
			if flags.Changed("search") {
				a.cfg.Fit.Search = f.search
			}
			if flags.Changed("iterations") {
				a.cfg.Fit.Iterations = f.iterations
			}
			if flags.Changed("folds") {
				a.cfg.Fit.Folds = f.folds
			}
			if flags.Changed("seed") {
				a.cfg.Fit.Seed = f.seed
			}
			if flags.Changed("workers") {
				a.cfg.Fit.Workers = f.workers
			}
			if err := a.cfg.Check(); err != nil {
				return err
			}
			p := paths{a.cfg}
			if f.input == "" {
				f.input = p.train()
			}
			if !flags.Changed("preprocessor") {
				f.preprocessor = p.preprocessor()
			}

			pl, err := a.fit(cmd.Context(), f.input, f.preprocessor)
			if err != nil {
				return err
			}
			cmd.Printf("fitted SVC (C=%g, gamma=%g, %d support vectors), wrote %s\n",
				pl.Model.C, pl.Model.KernelGamma(), pl.Model.SupportVectors(), p.classifier())

			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "Training CSV (default: processed_dir/maternal_health_risk_train.csv)")
	flags.StringVar(&f.preprocessor, "preprocessor", "", "Persisted scaler to reuse, empty string fits a new one (default: the split output)")
	flags.StringSliceVar(&f.features, "features", nil, "Feature columns (default from config)")
	flags.BoolVar(&f.search, "search", true, "Run the randomized hyperparameter search")
	flags.IntVar(&f.iterations, "iterations", 0, "Search candidates (default from config)")
	flags.IntVar(&f.folds, "folds", 0, "Cross-validation folds (default from config)")
	flags.Int64Var(&f.seed, "seed", 0, "Search seed (default from config)")
	flags.IntVar(&f.workers, "workers", 0, "Concurrent candidate fits, 0 uses every CPU")

	return cmd
}

func (a *app) searchConfig() model.SearchConfig {
	cfg := model.DefaultSearchConfig()
	fc := a.cfg.Fit
	cfg.Iterations = fc.Iterations
	cfg.Folds = fc.Folds
	cfg.CMin, cfg.CMax = fc.CMin, fc.CMax
	cfg.GammaMin, cfg.GammaMax = fc.GammaMin, fc.GammaMax
	cfg.Seed = fc.Seed
	cfg.Workers = fc.Workers

	return cfg
}

// fit trains the pipeline on input. A missing preprocessor file is not an error; a new
// scaler is fitted instead.
func (a *app) fit(ctx context.Context, input, preprocessor string) (*pipeline.Pipeline, error) {
	var pl *pipeline.Pipeline
	p := paths{a.cfg}
	fc := a.cfg.Fit
	params := map[string]any{
		"input":        input,
		"preprocessor": preprocessor,
		"features":     fc.Features,
		"search":       fc.Search,
		"iterations":   fc.Iterations,
		"folds":        fc.Folds,
		"seed":         fc.Seed,
	}
	err := a.stage("fit", params, func(lggr logger.Logger) (map[string]float64, error) {
		train, err := data.ReadCSV(input)
		if err != nil {
			return nil, fmt.Errorf("read training data: %w", err)
		}
		opts := pipeline.FitOptions{Features: fc.Features, Search: fc.Search, SearchConfig: a.searchConfig()}
		if preprocessor != "" {
			opts.Scaler, err = pipeline.LoadScaler(preprocessor)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				lggr.Infow("no persisted preprocessor, fitting a new scaler", "path", preprocessor)
			case err != nil:
				return nil, fmt.Errorf("load preprocessor: %w", err)
			}
		}

		var res *model.SearchResult
		pl, res, err = pipeline.Fit(ctx, train, schema, opts, lggr)
		if err != nil {
			return nil, err
		}
		if err := pl.Save(p.classifier()); err != nil {
			return nil, fmt.Errorf("save classifier: %w", err)
		}
		if err := pl.WriteManifest(p.manifest()); err != nil {
			return nil, fmt.Errorf("write manifest: %w", err)
		}

		metrics := map[string]float64{
			"train_rows":      float64(train.Len()),
			"c":               pl.Model.C,
			"gamma":           pl.Model.KernelGamma(),
			"support_vectors": float64(pl.Model.SupportVectors()),
		}
		if res != nil {
			if err := report.WriteCVResults(p.cvResults(), res.Results); err != nil {
				return nil, fmt.Errorf("write cv results: %w", err)
			}
			if err := report.TuningHeatmap(p.tuningPlot(), res.Top(10)); err != nil {
				return nil, fmt.Errorf("plot tuning heatmap: %w", err)
			}
			metrics["best_score"] = res.Best.MeanScore
		}
		lggr.Infow("classifier saved", "path", p.classifier(), "manifest", p.manifest())

		return metrics, nil
	})

	return pl, err
}
