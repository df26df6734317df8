package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"mhrisk/pkg/config"
	"mhrisk/pkg/logger"
	"mhrisk/pkg/pipeline"
	"mhrisk/pkg/runlog"
)

var schema = pipeline.MaternalHealthSchema

// app is the state shared by every subcommand. It is populated by the root command's
// PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string
	runsDB     string

	cfg  *config.Config
	lggr logger.Logger
	runs *runlog.Store // nil when the run registry is disabled
}

var (
	rootLong = `
		mhrisk predicts maternal health risk from routine clinical measurements.

		Every stage reads the configuration file (mhrisk.yaml by default) and MHRISK_*
		environment variables; flags override both. Each invocation is recorded in the
		run registry unless --runs-db is empty.`

	rootExample = `
		# Run every stage with the defaults
		mhrisk run

		# Fit without the hyperparameter search
		MHRISK_FIT_SEARCH=false mhrisk fit`
)

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:          "mhrisk",
		Short:        "Maternal health risk classification pipeline",
		Long:         longDesc(rootLong),
		Example:      examples(rootExample),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "mhrisk.yaml", "Path to the YAML configuration")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.runsDB, "runs-db", "", "SQLite file of the run registry, empty string disables it (default from config)")

	cmd.AddCommand(
		newDownloadCmd(a),
		newValidateCmd(a),
		newSplitCmd(a),
		newEDACmd(a),
		newFitCmd(a),
		newEvaluateCmd(a),
		newRunCmd(a),
		newRunsCmd(a),
	)

	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("runs-db") {
		cfg.RunsDB = a.runsDB
	}
	a.cfg = cfg

	lvl, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	lcfg := logger.Config{Level: lvl}
	a.lggr, err = lcfg.New()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if cfg.RunsDB != "" {
		a.runs, err = runlog.NewStore(cfg.RunsDB)
		if err != nil {
			return fmt.Errorf("open run registry: %w", err)
		}
	}

	return nil
}

func (a *app) close() error {
	var errs []error
	if a.runs != nil {
		errs = append(errs, a.runs.Close())
		a.runs = nil
	}
	if a.lggr != nil {
		// stderr cannot be synced on some platforms
		_ = a.lggr.Sync()
	}

	return errors.Join(errs...)
}

// stage runs fn under a named logger and records it in the run registry.
func (a *app) stage(name string, params map[string]any, fn func(lggr logger.Logger) (map[string]float64, error)) error {
	lggr := a.lggr.Named(name)
	var run *runlog.Run
	if a.runs != nil {
		var err error
		run, err = a.runs.Start(name, params)
		if err != nil {
			return fmt.Errorf("record %s run: %w", name, err)
		}
		lggr.Debugw("stage started", "runID", run.ID)
	}

	metrics, runErr := fn(lggr)
	if runErr != nil {
		lggr.Errorw("stage failed", "err", runErr)
	}
	if run != nil {
		if err := a.runs.Finish(run, metrics, runErr); err != nil {
			lggr.Warnw("failed to record run outcome", "err", err)
		}
	}

	return runErr
}
