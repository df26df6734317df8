package pipeline

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"mhrisk/pkg/data"
	"mhrisk/pkg/dataprep"
	"mhrisk/pkg/logger"
	"mhrisk/pkg/model"
	"mhrisk/pkg/stats"
)

// Transformer is a fitted step applied to feature rows before the classifier.
type Transformer interface {
	Transform(X [][]float64) ([][]float64, error)
}

// Pipeline is a fitted preprocessing chain followed by an SVC. It is immutable once fitted.
type Pipeline struct {
	Features []string
	Classes  []string
	Scaler   *stats.StandardScaler
	Model    *model.SVC
	Search   *SearchSummary
	FittedAt time.Time
}

// SearchSummary records the outcome of the hyperparameter search.
type SearchSummary struct {
	Iterations int     `yaml:"iterations"`
	Folds      int     `yaml:"folds"`
	Seed       int64   `yaml:"seed"`
	Scoring    string  `yaml:"scoring"`
	BestC      float64 `yaml:"best_c"`
	BestGamma  float64 `yaml:"best_gamma"`
	BestScore  float64 `yaml:"best_score"`
}

// FitOptions configures Fit.
type FitOptions struct {
	Features []string
	// Scaler, when set, is a persisted preprocessor reused instead of fitting a new one.
	// With Search the scaler is refit per fold, so only its feature set is used.
	Scaler *stats.StandardScaler
	Search bool
	model.SearchConfig
}

// Steps returns the preprocessing chain in application order.
func (p *Pipeline) Steps() []Transformer {
	return []Transformer{p.Scaler}
}

// Fit trains a pipeline on the rows of train. With Search enabled the returned search
// result carries every candidate's cross-validated score.
func Fit(ctx context.Context, train *data.Frame, schema Schema, opts FitOptions, lggr logger.Logger) (*Pipeline, *model.SearchResult, error) {
	features := opts.Features
	if len(features) == 0 {
		features = schema.FeatureNames()
	}
	p := &Pipeline{Features: append([]string(nil), features...), Classes: schema.Classes()}

	X, y, err := p.XY(train, schema)
	if err != nil {
		return nil, nil, err
	}
	if got := len(dataprep.Distinct(p.labels(train, schema))); got != len(p.Classes) {
		return nil, nil, fmt.Errorf("%w: training labels have %d classes, want %d", model.ErrLabelCardinality, got, len(p.Classes))
	}

	scaler := stats.NewStandardScaler(features...)
	if opts.Scaler != nil {
		if scaler, err = opts.Scaler.Subset(features...); err != nil {
			return nil, nil, fmt.Errorf("reuse preprocessor: %w", err)
		}
	}

	var res *model.SearchResult
	if opts.Search {
		// the scaler is refit inside every fold; a persisted one only fixes the feature set
		cfg := opts.SearchConfig
		cfg.Classes = len(p.Classes)
		cfg.NewPreprocessor = func() model.Preprocessor { return stats.NewStandardScaler(features...) }
		lggr.Infow("starting randomized search", "candidates", cfg.Iterations, "folds", cfg.Folds, "rows", len(X))
		start := time.Now()
		res, err = model.RandomizedSearch(ctx, X, y, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("hyperparameter search: %w", err)
		}
		fitted, ok := res.Preprocessor.(*stats.StandardScaler)
		if !ok {
			return nil, nil, fmt.Errorf("hyperparameter search returned preprocessor %T", res.Preprocessor)
		}
		p.Scaler = fitted
		p.Model = res.BestModel
		p.Search = &SearchSummary{
			Iterations: cfg.Iterations,
			Folds:      cfg.Folds,
			Seed:       cfg.Seed,
			Scoring:    "recall_weighted",
			BestC:      res.Best.C,
			BestGamma:  res.Best.Gamma,
			BestScore:  res.Best.MeanScore,
		}
		lggr.Infow("search finished", "best_c", res.Best.C, "best_gamma", res.Best.Gamma,
			"best_score", res.Best.MeanScore, "elapsed", time.Since(start).String())
	} else {
		p.Scaler = scaler
		if opts.Scaler != nil {
			lggr.Infow("reusing persisted preprocessor", "features", features)
		} else if err := p.Scaler.Fit(X); err != nil {
			return nil, nil, fmt.Errorf("fit preprocessor: %w", err)
		}
		Xs, err := p.transform(X)
		if err != nil {
			return nil, nil, err
		}
		p.Model = model.NewSVC(model.WithClasses(len(p.Classes)))
		if err := p.Model.Fit(Xs, y); err != nil {
			return nil, nil, fmt.Errorf("fit classifier: %w", err)
		}
	}
	lggr.Infow("classifier fitted", "support_vectors", p.Model.SupportVectors(), "gamma", p.Model.KernelGamma())
	p.FittedAt = time.Now().UTC()
	return p, res, nil
}

// XY extracts the pipeline's raw feature matrix and encoded labels from f.
func (p *Pipeline) XY(f *data.Frame, schema Schema) ([][]float64, []int, error) {
	for _, name := range p.Features {
		c, ok := schema.Column(name)
		if !ok || !c.Numeric() || name == schema.Label {
			return nil, nil, fmt.Errorf("%w: %q is not a numeric schema feature", model.ErrNonNumericFeature, name)
		}
	}
	X, err := f.Float64s(p.Features...)
	if err != nil {
		var perr *data.ParseError
		if errors.As(err, &perr) {
			return nil, nil, fmt.Errorf("%w: %w", model.ErrNonNumericFeature, err)
		}
		return nil, nil, err
	}
	if _, err := f.Column(schema.Label); err != nil {
		return nil, nil, err
	}
	y, err := dataprep.NewLabelEncoder(p.Classes).Encode(p.labels(f, schema))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", model.ErrLabelCardinality, err)
	}
	return X, y, nil
}

func (p *Pipeline) labels(f *data.Frame, schema Schema) []string {
	col, _ := f.Column(schema.Label)
	return col
}

func (p *Pipeline) transform(X [][]float64) ([][]float64, error) {
	var err error
	for _, step := range p.Steps() {
		if X, err = step.Transform(X); err != nil {
			return nil, err
		}
	}
	return X, nil
}

// Predict returns class codes for raw feature rows.
func (p *Pipeline) Predict(X [][]float64) ([]int, error) {
	if p.Model == nil {
		return nil, model.ErrNotFitted
	}
	Xs, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.Model.Predict(Xs)
}

// DecisionFunction returns per-class scores for raw feature rows, columns in class order.
func (p *Pipeline) DecisionFunction(X [][]float64) ([][]float64, error) {
	if p.Model == nil {
		return nil, model.ErrNotFitted
	}
	Xs, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.Model.DecisionFunction(Xs)
}

// Score is the accuracy of the pipeline on f.
func (p *Pipeline) Score(f *data.Frame, schema Schema) (float64, error) {
	X, y, err := p.XY(f, schema)
	if err != nil {
		return 0, err
	}
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	return model.Accuracy(y, pred), nil
}

// ---------------------------
// Persistence
// ---------------------------

// Save writes the pipeline to path with gob.
func (p *Pipeline) Save(path string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// Load reads a pipeline written by Save.
func Load(path string) (*Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Pipeline
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode pipeline %s: %w", path, err)
	}
	if p.Model == nil || !p.Model.Fitted() || p.Scaler == nil {
		return nil, fmt.Errorf("pipeline %s: %w", path, model.ErrNotFitted)
	}
	return &p, nil
}

// SaveScaler writes a fitted preprocessor to path with gob.
func SaveScaler(path string, s *stats.StandardScaler) error {
	b, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

// LoadScaler reads a preprocessor written by SaveScaler.
func LoadScaler(path string) (*stats.StandardScaler, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := &stats.StandardScaler{}
	if err := s.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("decode preprocessor %s: %w", path, err)
	}
	return s, nil
}

// Manifest is the human-readable description of a fitted pipeline.
type Manifest struct {
	Features []string       `yaml:"features"`
	Classes  []string       `yaml:"classes"`
	Scaler   []ScalerParam  `yaml:"scaler"`
	Model    ModelParams    `yaml:"model"`
	Search   *SearchSummary `yaml:"search,omitempty"`
	FittedAt time.Time      `yaml:"fitted_at"`
}

// ScalerParam is the standardization of one feature.
type ScalerParam struct {
	Feature string  `yaml:"feature"`
	Mean    float64 `yaml:"mean"`
	Std     float64 `yaml:"std"`
}

// ModelParams describes the classifier.
type ModelParams struct {
	Kernel         string  `yaml:"kernel"`
	C              float64 `yaml:"c"`
	Gamma          float64 `yaml:"gamma"`
	SupportVectors int     `yaml:"support_vectors"`
	DecisionShape  string  `yaml:"decision_function_shape"`
}

// Manifest summarizes the pipeline.
func (p *Pipeline) Manifest() Manifest {
	m := Manifest{
		Features: p.Features,
		Classes:  p.Classes,
		Search:   p.Search,
		FittedAt: p.FittedAt,
		Model: ModelParams{
			Kernel:         "rbf",
			C:              p.Model.C,
			Gamma:          p.Model.KernelGamma(),
			SupportVectors: p.Model.SupportVectors(),
			DecisionShape:  "ovr",
		},
	}
	for j, f := range p.Scaler.Features {
		m.Scaler = append(m.Scaler, ScalerParam{Feature: f, Mean: p.Scaler.Mean[j], Std: p.Scaler.Std[j]})
	}
	return m
}

// WriteManifest writes the YAML manifest to path.
func (p *Pipeline) WriteManifest(path string) error {
	b, err := yaml.Marshal(p.Manifest())
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
