package model

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs draws n points per class around well separated centers.
func blobs(n int, seed int64) ([][]float64, []int) {
	centers := [][]float64{{-4, -4}, {0, 4}, {4, -4}}
	rng := rand.New(rand.NewSource(seed))
	var X [][]float64
	var y []int
	for c, ctr := range centers {
		for range n {
			X = append(X, []float64{ctr[0] + rng.NormFloat64()*0.5, ctr[1] + rng.NormFloat64()*0.5})
			y = append(y, c)
		}
	}
	return X, y
}

func TestSVC_SeparatesThreeClasses(t *testing.T) {
	t.Parallel()

	X, y := blobs(30, 1)
	m := NewSVC(WithC(10))
	require.NoError(t, m.Fit(X, y))
	assert.True(t, m.Fitted())
	assert.Equal(t, 3, m.NClasses)
	assert.InDelta(t, 1/(2*varianceOf(X)), m.KernelGamma(), 1e-12)
	assert.Positive(t, m.SupportVectors())

	pred, err := m.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, y, pred)

	Xt, yt := blobs(10, 2)
	pred, err = m.Predict(Xt)
	require.NoError(t, err)
	assert.Equal(t, 1.0, Accuracy(yt, pred))

	dec, err := m.DecisionFunction(Xt)
	require.NoError(t, err)
	require.Len(t, dec, len(Xt))
	for i, row := range dec {
		require.Len(t, row, 3)
		best := 0
		for c := range row {
			if row[c] > row[best] {
				best = c
			}
		}
		assert.Equal(t, yt[i], best, "row %d: %v", i, row)
	}
}

func varianceOf(X [][]float64) float64 {
	var flat []float64
	for _, r := range X {
		flat = append(flat, r...)
	}
	mean := 0.0
	for _, v := range flat {
		mean += v
	}
	mean /= float64(len(flat))
	s := 0.0
	for _, v := range flat {
		s += (v - mean) * (v - mean)
	}
	return s / float64(len(flat))
}

func TestSVC_Errors(t *testing.T) {
	t.Parallel()

	m := NewSVC()
	_, err := m.Predict([][]float64{{1, 2}})
	require.ErrorIs(t, err, ErrNotFitted)
	_, err = m.DecisionFunction([][]float64{{1, 2}})
	require.ErrorIs(t, err, ErrNotFitted)

	require.Error(t, m.Fit(nil, nil))
	require.Error(t, m.Fit([][]float64{{1}}, []int{0, 1}))
	require.Error(t, NewSVC(WithC(0)).Fit([][]float64{{1}}, []int{0}))
	require.ErrorContains(t, NewSVC(WithClasses(2)).Fit([][]float64{{1}, {2}}, []int{0, 2}), "out of range")

	X, y := blobs(5, 3)
	require.NoError(t, m.Fit(X, y))
	_, err = m.Predict([][]float64{{1, 2, 3}})
	require.ErrorContains(t, err, "expects 2")
}

func TestSVC_AbsentClassInPair(t *testing.T) {
	t.Parallel()

	X, y := blobs(10, 4)
	// Keep classes 0 and 2 only but declare three.
	var Xs [][]float64
	var ys []int
	for i := range X {
		if y[i] != 1 {
			Xs = append(Xs, X[i])
			ys = append(ys, y[i])
		}
	}
	m := NewSVC(WithClasses(3))
	require.NoError(t, m.Fit(Xs, ys))
	pred, err := m.Predict(Xs)
	require.NoError(t, err)
	assert.Equal(t, ys, pred)
}

func TestSVC_MarshalBinary(t *testing.T) {
	t.Parallel()

	X, y := blobs(15, 5)
	m := NewSVC(WithC(3), WithGamma(0.2))
	require.NoError(t, m.Fit(X, y))

	b, err := m.MarshalBinary()
	require.NoError(t, err)
	var back SVC
	require.NoError(t, back.UnmarshalBinary(b))

	want, err := m.DecisionFunction(X)
	require.NoError(t, err)
	got, err := back.DecisionFunction(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0.2, back.KernelGamma())
}

func TestRandomizedSearch(t *testing.T) {
	t.Parallel()

	X, y := blobs(12, 6)
	cfg := DefaultSearchConfig()
	cfg.Iterations = 6
	cfg.Folds = 3
	cfg.Workers = 2

	res, err := RandomizedSearch(context.Background(), X, y, cfg)
	require.NoError(t, err)
	require.Len(t, res.Results, 6)
	for i, r := range res.Results {
		assert.Equal(t, SampleCandidates(cfg)[i], r.Candidate)
		assert.Len(t, r.FoldScores, 3)
		assert.GreaterOrEqual(t, r.Rank, 1)
		assert.LessOrEqual(t, r.MeanScore, res.Best.MeanScore)
	}
	assert.Equal(t, 1, res.Best.Rank)
	assert.Equal(t, res.Best.C, res.BestModel.C)
	assert.Equal(t, 1, res.Top(3)[0].Rank)
	assert.Len(t, res.Top(100), 6)

	again, err := RandomizedSearch(context.Background(), X, y, cfg)
	require.NoError(t, err)
	assert.Equal(t, res.Best.Candidate, again.Best.Candidate)
}

func TestRandomizedSearch_Errors(t *testing.T) {
	t.Parallel()

	X, y := blobs(4, 7)
	cfg := DefaultSearchConfig()
	cfg.Iterations = 0
	_, err := RandomizedSearch(context.Background(), X, y, cfg)
	require.ErrorContains(t, err, "iterations")

	cfg = DefaultSearchConfig()
	cfg.Iterations = 2
	cfg.Folds = 3
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RandomizedSearch(ctx, X, y, cfg)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSampleCandidates(t *testing.T) {
	t.Parallel()

	cfg := DefaultSearchConfig()
	c := SampleCandidates(cfg)
	require.Len(t, c, 100)
	for _, x := range c {
		assert.True(t, x.C >= cfg.CMin && x.C <= cfg.CMax)
		assert.True(t, x.Gamma >= cfg.GammaMin && x.Gamma <= cfg.GammaMax)
	}
	assert.Equal(t, c, SampleCandidates(cfg))
}

func TestSVC_IterationCap(t *testing.T) {
	t.Parallel()

	X, y := blobs(20, 5)
	m := NewSVC(WithMaxIter(3), WithTolerance(1e-2))
	require.NoError(t, m.Fit(X, y))
	assert.Positive(t, m.Iterations())
	assert.LessOrEqual(t, m.Iterations(), 3*3, "three pairs, three iterations each")

	_, err := m.Predict(X)
	require.NoError(t, err)
}

// centering subtracts the column means it was fitted on and records each fit's row count.
type centering struct {
	fits *[]int
	mean []float64
}

func (c *centering) Fit(X [][]float64) error {
	*c.fits = append(*c.fits, len(X))
	c.mean = make([]float64, len(X[0]))
	for _, x := range X {
		for j, v := range x {
			c.mean[j] += v / float64(len(X))
		}
	}
	return nil
}

func (c *centering) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = make([]float64, len(x))
		for j, v := range x {
			out[i][j] = v - c.mean[j]
		}
	}
	return out, nil
}

func TestRandomizedSearch_PreprocessorFittedPerFold(t *testing.T) {
	t.Parallel()

	X, y := blobs(12, 8)
	for _, x := range X {
		x[0] += 100
	}
	var fits []int
	cfg := DefaultSearchConfig()
	cfg.Iterations = 3
	cfg.Folds = 3
	cfg.CMin, cfg.CMax = 1, 10
	cfg.GammaMin, cfg.GammaMax = 0.1, 1
	cfg.NewPreprocessor = func() Preprocessor { return &centering{fits: &fits} }

	res, err := RandomizedSearch(context.Background(), X, y, cfg)
	require.NoError(t, err)
	// one fit per fold on its 24 training rows, then one on all 36 rows for the refit
	assert.Equal(t, []int{24, 24, 24, 36}, fits)

	require.NotNil(t, res.Preprocessor)
	final := res.Preprocessor.(*centering)
	assert.InDelta(t, 100, final.mean[0], 1)

	Xs, err := res.Preprocessor.Transform(X)
	require.NoError(t, err)
	pred, err := res.BestModel.Predict(Xs)
	require.NoError(t, err)
	assert.Greater(t, Accuracy(y, pred), 0.9)

	cfg.NewPreprocessor = nil
	plain, err := RandomizedSearch(context.Background(), X, y, cfg)
	require.NoError(t, err)
	assert.Nil(t, plain.Preprocessor)
}
