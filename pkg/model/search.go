package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"mhrisk/pkg/loader"
	"mhrisk/pkg/stats"
)

// SearchConfig controls RandomizedSearch.
type SearchConfig struct {
	Iterations int
	Folds      int
	CMin       float64
	CMax       float64
	GammaMin   float64
	GammaMax   float64
	Seed       int64
	Workers    int // 0 => GOMAXPROCS
	Classes    int
	Scoring    Scorer // nil => RecallWeighted
	// NewPreprocessor, when set, builds an unfitted transform that is fitted on the
	// training part of every fold and on all of X before the final refit.
	NewPreprocessor func() Preprocessor
}

// DefaultSearchConfig mirrors the fitter defaults: 100 candidates, 10 folds,
// C in [1e-2, 1e3] and gamma in [1e-4, 1e1], both log-uniform.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Iterations: 100,
		Folds:      10,
		CMin:       1e-2,
		CMax:       1e3,
		GammaMin:   1e-4,
		GammaMax:   1e1,
		Seed:       522,
		Classes:    3,
	}
}

// Candidate is one sampled hyperparameter setting.
type Candidate struct {
	C     float64 `yaml:"c"`
	Gamma float64 `yaml:"gamma"`
}

// CVResult is the cross-validated score of one candidate.
type CVResult struct {
	Candidate
	FoldScores []float64
	MeanScore  float64
	StdScore   float64
	FitTime    time.Duration
	Rank       int
}

// SearchResult carries every candidate's scores and the best model refit on all rows.
// Preprocessor is the transform BestModel expects its input through, nil when the
// search ran without one.
type SearchResult struct {
	Results      []CVResult
	Best         CVResult
	BestModel    *SVC
	Preprocessor Preprocessor
}

// SampleCandidates draws n settings with C and gamma log-uniform in their ranges.
func SampleCandidates(cfg SearchConfig) []Candidate {
	rng := rand.New(rand.NewSource(cfg.Seed))
	logUniform := func(lo, hi float64) float64 {
		return math.Exp(math.Log(lo) + rng.Float64()*(math.Log(hi)-math.Log(lo)))
	}
	out := make([]Candidate, cfg.Iterations)
	for i := range out {
		out[i].C = logUniform(cfg.CMin, cfg.CMax)
		out[i].Gamma = logUniform(cfg.GammaMin, cfg.GammaMax)
	}
	return out
}

func (cfg SearchConfig) check() error {
	switch {
	case cfg.Iterations < 1:
		return fmt.Errorf("search: iterations must be positive, got %d", cfg.Iterations)
	case cfg.Folds < 2:
		return fmt.Errorf("search: need at least 2 folds, got %d", cfg.Folds)
	case cfg.CMin <= 0 || cfg.CMax < cfg.CMin:
		return fmt.Errorf("search: invalid C range [%v, %v]", cfg.CMin, cfg.CMax)
	case cfg.GammaMin <= 0 || cfg.GammaMax < cfg.GammaMin:
		return fmt.Errorf("search: invalid gamma range [%v, %v]", cfg.GammaMin, cfg.GammaMax)
	}
	return nil
}

type fold struct {
	XTrain, XTest [][]float64
	yTrain, yTest []int
}

// RandomizedSearch evaluates sampled candidates with stratified k-fold cross-validation,
// in parallel, and refits the best one on all of X. Ties keep the earlier candidate.
func RandomizedSearch(ctx context.Context, X [][]float64, y []int, cfg SearchConfig) (*SearchResult, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	score := cfg.Scoring
	if score == nil {
		score = RecallWeighted
	}
	splits, err := loader.StratifiedKFold(y, cfg.Folds)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	folds := make([]fold, len(splits))
	for f, s := range splits {
		fd := fold{XTrain: rows(X, s.Train), XTest: rows(X, s.Test), yTrain: labels(y, s.Train), yTest: labels(y, s.Test)}
		if _, fd.XTrain, fd.XTest, err = cfg.preprocess(fd.XTrain, fd.XTest); err != nil {
			return nil, fmt.Errorf("search: fold %d: %w", f, err)
		}
		folds[f] = fd
	}

	candidates := SampleCandidates(cfg)
	results := make([]CVResult, len(candidates))
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cand := range candidates {
		g.Go(func() error {
			start := time.Now()
			res := CVResult{Candidate: cand, FoldScores: make([]float64, len(folds))}
			for f, fd := range folds {
				if err := gctx.Err(); err != nil {
					return err
				}
				m := NewSVC(WithC(cand.C), WithGamma(cand.Gamma), WithClasses(cfg.Classes))
				s, err := fd.score(m, score, cfg.Classes)
				if err != nil {
					return fmt.Errorf("candidate %d fold %d: %w", i, f, err)
				}
				res.FoldScores[f] = s
			}
			res.MeanScore = stats.Mean(res.FoldScores)
			res.StdScore = stats.Std(res.FoldScores)
			res.FitTime = time.Since(start)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rankResults(results)
	best := 0
	for i := range results {
		if results[i].MeanScore > results[best].MeanScore {
			best = i
		}
	}
	pre, Xs, _, err := cfg.preprocess(X, nil)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	m := NewSVC(WithC(results[best].C), WithGamma(results[best].Gamma), WithClasses(cfg.Classes))
	if err := m.Fit(Xs, y); err != nil {
		return nil, fmt.Errorf("refit best candidate: %w", err)
	}
	return &SearchResult{Results: results, Best: results[best], BestModel: m, Preprocessor: pre}, nil
}

// preprocess fits a fresh preprocessor on train and applies it to train and test. Without
// a NewPreprocessor both are returned unchanged.
func (cfg SearchConfig) preprocess(train, test [][]float64) (Preprocessor, [][]float64, [][]float64, error) {
	if cfg.NewPreprocessor == nil {
		return nil, train, test, nil
	}
	pre := cfg.NewPreprocessor()
	if err := pre.Fit(train); err != nil {
		return nil, nil, nil, fmt.Errorf("fit preprocessor: %w", err)
	}
	trainT, err := pre.Transform(train)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(test) == 0 {
		return pre, trainT, test, nil
	}
	testT, err := pre.Transform(test)
	if err != nil {
		return nil, nil, nil, err
	}
	return pre, trainT, testT, nil
}

// score fits m on the training part of the fold and rates its predictions on the rest.
func (fd fold) score(m Classifier, score Scorer, k int) (float64, error) {
	if err := m.Fit(fd.XTrain, fd.yTrain); err != nil {
		return 0, err
	}
	pred, err := m.Predict(fd.XTest)
	if err != nil {
		return 0, err
	}
	return score(fd.yTest, pred, k), nil
}

// rankResults assigns rank 1 to the highest mean score; equal scores share the lower rank.
func rankResults(results []CVResult) {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return results[order[a]].MeanScore > results[order[b]].MeanScore })
	for pos, i := range order {
		results[i].Rank = pos + 1
		if pos > 0 && results[i].MeanScore == results[order[pos-1]].MeanScore {
			results[i].Rank = results[order[pos-1]].Rank
		}
	}
}

// Top returns up to n results ordered by rank, then candidate order.
func (r *SearchResult) Top(n int) []CVResult {
	out := append([]CVResult(nil), r.Results...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Rank < out[b].Rank })
	return out[:min(n, len(out))]
}

func rows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func labels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
