package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mhrisk/pkg/data"
	"mhrisk/pkg/loader"
	"mhrisk/pkg/logger"
	"mhrisk/pkg/pipeline"
	"mhrisk/pkg/stats"
)

var (
	splitLong = `
		Splits the validated data into train and test sets and fits the standard scaler on
		the training rows.

		The raw and scaled partitions are written to the processed data directory and the
		fitted scaler is persisted for the fit stage.`

	splitExample = `
		# 70/30 split with the configured seed
		mhrisk split

		# 80/20 stratified split
		mhrisk split --test-size 0.2 --stratify --seed 7`
)

func newSplitCmd(a *app) *cobra.Command {
	var input string
	var testSize float64
	var seed int64
	var stratify bool
	cmd := &cobra.Command{
		Use:     "split",
		Short:   "Split the validated data and fit the preprocessor",
		Long:    longDesc(splitLong),
		Example: examples(splitExample),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("test-size") {
				a.cfg.Split.TestSize = testSize
			}
			if flags.Changed("seed") {
				a.cfg.Split.Seed = seed
			}
			if flags.Changed("stratify") {
				a.cfg.Split.Stratify = stratify
			}
			if input == "" {
				input = paths{a.cfg}.validated()
			}
			s, err := a.split(input)
			if err != nil {
				return err
			}
			cmd.Printf("split into %d train and %d test rows\n", len(s.Train), len(s.Test))

			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Validated CSV (default: processed_dir/validated_data.csv)")
	cmd.Flags().Float64Var(&testSize, "test-size", 0, "Fraction of rows held out for testing (default from config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed of the row permutation (default from config)")
	cmd.Flags().BoolVar(&stratify, "stratify", false, "Preserve class proportions on both sides")

	return cmd
}

func (a *app) split(input string) (loader.Split, error) {
	var s loader.Split
	p := paths{a.cfg}
	params := map[string]any{
		"input":     input,
		"test_size": a.cfg.Split.TestSize,
		"seed":      a.cfg.Split.Seed,
		"stratify":  a.cfg.Split.Stratify,
	}
	err := a.stage("split", params, func(lggr logger.Logger) (map[string]float64, error) {
		f, err := data.ReadCSV(input)
		if err != nil {
			return nil, fmt.Errorf("read validated data: %w", err)
		}
		labels, err := f.Column(schema.Label)
		if err != nil {
			return nil, err
		}

		if a.cfg.Split.Stratify {
			s, err = loader.StratifiedSplit(labels, a.cfg.Split.TestSize, a.cfg.Split.Seed)
		} else {
			s, err = loader.TrainTestSplit(f.Len(), a.cfg.Split.TestSize, a.cfg.Split.Seed)
		}
		if err != nil {
			return nil, fmt.Errorf("split %d rows: %w", f.Len(), err)
		}
		if err := loader.RequireClasses(labels, s.Train, schema.Classes()); err != nil {
			return nil, fmt.Errorf("training partition: %w", err)
		}
		train, test := f.Subset(s.Train), f.Subset(s.Test)
		lggr.Infow("data split", "trainRows", train.Len(), "testRows", test.Len())

		features := schema.FeatureNames()
		scaler := stats.NewStandardScaler(features...)
		Xtrain, err := train.Float64s(features...)
		if err != nil {
			return nil, err
		}
		Xtest, err := test.Float64s(features...)
		if err != nil {
			return nil, err
		}
		scaledTrain, err := scaler.FitTransform(Xtrain)
		if err != nil {
			return nil, fmt.Errorf("fit preprocessor: %w", err)
		}
		scaledTest, err := scaler.Transform(Xtest)
		if err != nil {
			return nil, fmt.Errorf("apply preprocessor: %w", err)
		}

		outputs := []struct {
			path  string
			frame *data.Frame
		}{
			{p.train(), train},
			{p.test(), test},
			{p.scaledTrain(), data.FromMatrix(features, scaledTrain, schema.Label, labelColumn(train))},
			{p.scaledTest(), data.FromMatrix(features, scaledTest, schema.Label, labelColumn(test))},
		}
		for _, o := range outputs {
			if err := data.WriteCSV(o.path, o.frame); err != nil {
				return nil, fmt.Errorf("write %s: %w", o.path, err)
			}
		}
		if err := pipeline.SaveScaler(p.preprocessor(), scaler); err != nil {
			return nil, fmt.Errorf("save preprocessor: %w", err)
		}
		lggr.Infow("preprocessor saved", "path", p.preprocessor(), "features", features)

		return map[string]float64{
			"rows":       float64(f.Len()),
			"train_rows": float64(train.Len()),
			"test_rows":  float64(test.Len()),
		}, nil
	})

	return s, err
}

// labelColumn returns the label column of a frame already known to carry it.
func labelColumn(f *data.Frame) []string {
	col, _ := f.Column(schema.Label)
	return col
}
