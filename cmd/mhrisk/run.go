package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
)

var (
	runLong = `
		Runs download, validate, split, eda, fit and evaluate in order with the configured
		paths. The first failing stage stops the run.

		Exact duplicate rows are dropped by validate by default (validate.drop_duplicates:
		true). The UCI source holds many repeated observations, so the 1014-row dataset
		split 70/30 into 709 train and 305 test rows, with accuracy near 0.77, is only
		reproduced with duplicates kept: pass --keep-duplicates or set
		drop_duplicates: false in the config.`

	runExample = `
		# Full pipeline
		mhrisk run

		# Reuse an archive that was already extracted
		mhrisk run --skip-download

		# Keep duplicate rows, as in the 305-row test set scenario
		mhrisk run --keep-duplicates`
)

func newRunCmd(a *app) *cobra.Command {
	var skipDownload, skipEDA, keepDuplicates bool
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run every pipeline stage",
		Long:    longDesc(runLong),
		Example: examples(runExample),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("keep-duplicates") {
				a.cfg.Validate.DropDuplicates = !keepDuplicates
			}
			if err := a.cfg.Check(); err != nil {
				return err
			}
			p := paths{a.cfg}

			if skipDownload {
				if _, err := os.Stat(p.raw()); errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("--skip-download set but %s does not exist", p.raw())
				}
			} else if _, err := a.download(cmd.Context()); err != nil {
				return err
			}

			res, err := a.validate(p.raw())
			if err != nil {
				return err
			}
			cmd.Printf("validate: %d of %d rows kept\n", res.OutputRows, res.InputRows)

			s, err := a.split(p.validated())
			if err != nil {
				return err
			}
			cmd.Printf("split: %d train, %d test\n", len(s.Train), len(s.Test))

			if !skipEDA {
				if _, err := a.eda(p.train()); err != nil {
					return err
				}
			}

			pl, err := a.fit(cmd.Context(), p.train(), p.preprocessor())
			if err != nil {
				return err
			}
			cmd.Printf("fit: C=%g gamma=%g\n", pl.Model.C, pl.Model.KernelGamma())

			ev, err := a.evaluate(p.classifier(), p.test())
			if err != nil {
				return err
			}
			cmd.Printf("evaluate: accuracy %.3f, weighted recall %.3f, weighted F2 %.3f\n",
				ev.Accuracy, ev.RecallWeighted, ev.F2Weighted)
			cmd.Printf("report written to %s\n", p.document())

			return nil
		},
	}
	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Use the already extracted raw CSV")
	cmd.Flags().BoolVar(&skipEDA, "skip-eda", false, "Do not draw the exploratory figures")
	cmd.Flags().BoolVar(&keepDuplicates, "keep-duplicates", false, "Keep exact duplicate rows in the validated data")

	return cmd
}
