package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mhrisk/pkg/data"
	"mhrisk/pkg/logger"
	"mhrisk/pkg/validate"
)

var (
	validateLong = `
		Checks the raw CSV against the dataset schema and writes the cleaned rows.

		Every check runs; all failures are written to the validation report and the
		command exits non-zero. On success the cleaned data, a pass log and the report are
		written.`

	validateExample = `
		# Validate the extracted archive
		mhrisk validate

		# Keep exact duplicate rows
		mhrisk validate --keep-duplicates`
)

func newValidateCmd(a *app) *cobra.Command {
	var input, outDir string
	var keepDuplicates bool
	cmd := &cobra.Command{
		Use:     "validate",
		Short:   "Validate the raw dataset",
		Long:    longDesc(validateLong),
		Example: examples(validateExample),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("out-dir") {
				a.cfg.Data.ProcessedDir = outDir
			}
			if cmd.Flags().Changed("keep-duplicates") {
				a.cfg.Validate.DropDuplicates = !keepDuplicates
			}
			if input == "" {
				input = paths{a.cfg}.raw()
			}
			res, err := a.validate(input)
			if err != nil {
				return err
			}
			cmd.Printf("validated %d rows, wrote %d to %s\n", res.InputRows, res.OutputRows, paths{a.cfg}.validated())

			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Raw CSV (default: raw_dir/raw_file)")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Directory for the validated CSV (default from config)")
	cmd.Flags().BoolVar(&keepDuplicates, "keep-duplicates", false, "Keep exact duplicate rows")

	return cmd
}

func (a *app) validate(input string) (*validate.Result, error) {
	var res *validate.Result
	opts := validate.Options{
		DropDuplicates:     a.cfg.Validate.DropDuplicates,
		MaxMissingFraction: a.cfg.Validate.MaxMissingFraction,
		MinClassFraction:   a.cfg.Validate.MinClassFraction,
	}
	params := map[string]any{
		"input":                input,
		"drop_duplicates":      opts.DropDuplicates,
		"max_missing_fraction": opts.MaxMissingFraction,
		"min_class_fraction":   opts.MinClassFraction,
	}
	err := a.stage("validate", params, func(lggr logger.Logger) (map[string]float64, error) {
		var verr error
		res, verr = validate.New(schema, opts, lggr).ValidateFile(input)

		reportPath := filepath.Join(a.cfg.Validate.LogDir, validationReport)
		if err := validate.WriteReport(reportPath, validate.NewReport(res, verr)); err != nil {
			return nil, fmt.Errorf("write validation report: %w", err)
		}
		if verr != nil {
			return nil, fmt.Errorf("validate %s (see %s): %w", input, reportPath, verr)
		}

		if err := data.WriteCSV(paths{a.cfg}.validated(), res.Frame); err != nil {
			return nil, fmt.Errorf("write validated data: %w", err)
		}
		if err := writePassLog(filepath.Join(a.cfg.Validate.LogDir, validationLogFile), input, res); err != nil {
			return nil, err
		}

		return map[string]float64{
			"input_rows":         float64(res.InputRows),
			"output_rows":        float64(res.OutputRows),
			"duplicates_found":   float64(res.DuplicatesFound),
			"duplicates_dropped": float64(res.DuplicatesDropped),
			"empty_dropped":      float64(res.EmptyDropped),
		}, nil
	})

	return res, err
}

func writePassLog(path, input string, res *validate.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	flog, err := logger.NewFile(path)
	if err != nil {
		return fmt.Errorf("open validation log: %w", err)
	}
	for _, w := range res.Warnings {
		flog.Warnw("validation warning", "check", w.Check, "message", w.Message)
	}
	flog.Infow("data validation passed",
		"input", input,
		"inputRows", res.InputRows,
		"outputRows", res.OutputRows,
		"duplicatesDropped", res.DuplicatesDropped,
	)

	return flog.Sync()
}
