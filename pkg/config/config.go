// Package config loads the pipeline configuration from an optional YAML file and MHRISK_*
// environment variables. Values set in the environment override the file; command line
// flags override both and are applied by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultURL is the UCI archive of the Maternal Health Risk dataset.
const DefaultURL = "https://archive.ics.uci.edu/static/public/863/maternal+health+risk.zip"

// DataConfig locates the pipeline inputs and intermediate files.
type DataConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`                     // Archive to download
	RawDir       string `mapstructure:"raw_dir" yaml:"raw_dir"`             // Where the archive is extracted
	RawFile      string `mapstructure:"raw_file" yaml:"raw_file"`           // CSV name inside the archive
	ProcessedDir string `mapstructure:"processed_dir" yaml:"processed_dir"` // Validated and split CSVs
}

// ValidateConfig tunes the data validation stage.
type ValidateConfig struct {
	LogDir             string  `mapstructure:"log_dir" yaml:"log_dir"`
	DropDuplicates     bool    `mapstructure:"drop_duplicates" yaml:"drop_duplicates"`
	MaxMissingFraction float64 `mapstructure:"max_missing_fraction" yaml:"max_missing_fraction"`
	MinClassFraction   float64 `mapstructure:"min_class_fraction" yaml:"min_class_fraction"`
}

// SplitConfig tunes the train/test split.
type SplitConfig struct {
	TestSize        float64 `mapstructure:"test_size" yaml:"test_size"`
	Seed            int64   `mapstructure:"seed" yaml:"seed"`
	Stratify        bool    `mapstructure:"stratify" yaml:"stratify"`
	PreprocessorDir string  `mapstructure:"preprocessor_dir" yaml:"preprocessor_dir"`
}

// FitConfig tunes the classifier fit and its hyperparameter search.
type FitConfig struct {
	Features   []string `mapstructure:"features" yaml:"features"`
	Seed       int64    `mapstructure:"seed" yaml:"seed"`
	Search     bool     `mapstructure:"search" yaml:"search"`
	Iterations int      `mapstructure:"iterations" yaml:"iterations"`
	Folds      int      `mapstructure:"folds" yaml:"folds"`
	CMin       float64  `mapstructure:"c_min" yaml:"c_min"`
	CMax       float64  `mapstructure:"c_max" yaml:"c_max"`
	GammaMin   float64  `mapstructure:"gamma_min" yaml:"gamma_min"`
	GammaMax   float64  `mapstructure:"gamma_max" yaml:"gamma_max"`
	Workers    int      `mapstructure:"workers" yaml:"workers"` // 0 => GOMAXPROCS
	ModelDir   string   `mapstructure:"model_dir" yaml:"model_dir"`
}

// EvaluateConfig tunes the evaluation stage.
type EvaluateConfig struct {
	ResultsDir    string `mapstructure:"results_dir" yaml:"results_dir"`
	ColumnsToDrop string `mapstructure:"columns_to_drop" yaml:"columns_to_drop"`
}

// Config wraps the entire configuration of the pipeline.
type Config struct {
	Data       DataConfig     `mapstructure:"data" yaml:"data"`
	Validate   ValidateConfig `mapstructure:"validate" yaml:"validate"`
	Split      SplitConfig    `mapstructure:"split" yaml:"split"`
	Fit        FitConfig      `mapstructure:"fit" yaml:"fit"`
	Evaluate   EvaluateConfig `mapstructure:"evaluate" yaml:"evaluate"`
	FiguresDir string         `mapstructure:"figures_dir" yaml:"figures_dir"`
	RunsDB     string         `mapstructure:"runs_db" yaml:"runs_db"` // empty disables the run registry
	LogLevel   string         `mapstructure:"log_level" yaml:"log_level"`
}

var defaults = map[string]any{
	"data.url":                      DefaultURL,
	"data.raw_dir":                  "data/raw",
	"data.raw_file":                 "Maternal Health Risk Data Set.csv",
	"data.processed_dir":            "data/processed",
	"validate.log_dir":              "results/logs",
	"validate.drop_duplicates":      true,
	"validate.max_missing_fraction": 0.05,
	"validate.min_class_fraction":   0.05,
	"split.test_size":               0.3,
	"split.seed":                    522,
	"split.stratify":                false,
	"split.preprocessor_dir":        "results/models",
	"fit.features":                  []string{"Age", "SystolicBP", "BS", "BodyTemp", "HeartRate"},
	"fit.seed":                      522,
	"fit.search":                    true,
	"fit.iterations":                100,
	"fit.folds":                     10,
	"fit.c_min":                     1e-2,
	"fit.c_max":                     1e3,
	"fit.gamma_min":                 1e-4,
	"fit.gamma_max":                 1e1,
	"fit.workers":                   0,
	"fit.model_dir":                 "results/models",
	"evaluate.results_dir":          "results/tables",
	"evaluate.columns_to_drop":      "",
	"figures_dir":                   "results/figures",
	"runs_db":                       "results/runs.db",
	"log_level":                     "info",
}

// Default returns the configuration with no file and no environment applied.
func Default() *Config {
	cfg, err := unmarshal(newViper())
	if err != nil {
		// defaults are static; a decode failure is a programmer error
		panic(err)
	}

	return cfg
}

// Load loads the config from filePath, falling back to defaults and environment variables
// if filePath is empty or does not exist.
func Load(filePath string) (*Config, error) {
	v := newViper()

	if filePath != "" {
		if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
			v.SetConfigFile(filePath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", filePath, err)
			}
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	return cfg, cfg.Check()
}

// Check reports configuration values no stage can run with.
func (c *Config) Check() error {
	var errs []error
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		errs = append(errs, fmt.Errorf("split.test_size must be in (0, 1), got %v", c.Split.TestSize))
	}
	if c.Fit.Search && c.Fit.Folds < 2 {
		errs = append(errs, fmt.Errorf("fit.folds must be at least 2, got %d", c.Fit.Folds))
	}
	if c.Fit.Search && c.Fit.Iterations < 1 {
		errs = append(errs, fmt.Errorf("fit.iterations must be positive, got %d", c.Fit.Iterations))
	}
	if c.Fit.CMin <= 0 || c.Fit.CMax < c.Fit.CMin {
		errs = append(errs, fmt.Errorf("fit C range [%v, %v] is invalid", c.Fit.CMin, c.Fit.CMax))
	}
	if c.Fit.GammaMin <= 0 || c.Fit.GammaMax < c.Fit.GammaMin {
		errs = append(errs, fmt.Errorf("fit gamma range [%v, %v] is invalid", c.Fit.GammaMin, c.Fit.GammaMax))
	}
	if len(c.Fit.Features) == 0 {
		errs = append(errs, errors.New("fit.features must not be empty"))
	}

	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix("MHRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}
