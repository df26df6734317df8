package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_RowSharesStorage(t *testing.T) {
	t.Parallel()

	m := NewMatrix(2, 3)
	m.Row(1)[2] = 6
	assert.Equal(t, 6.0, m.At(1, 2))
	assert.Equal(t, 6.0, m.Data[5])
	assert.Len(t, m.Row(0), 3)
}

func TestRBF(t *testing.T) {
	t.Parallel()

	k := RBF(0.5)
	assert.InDelta(t, 1, k([]float64{1, 2}, []float64{1, 2}), 1e-12)
	assert.InDelta(t, math.Exp(-0.5*5), k([]float64{0, 0}, []float64{1, 2}), 1e-12)
}

func TestGram(t *testing.T) {
	t.Parallel()

	X := make([][]float64, 37)
	for i := range X {
		X[i] = []float64{float64(i) / 10, float64(i%5) - 2}
	}
	k := RBF(0.3)
	K := SymmetricGram(X, k)
	G := Gram(X, X[:4], k)
	require.Equal(t, 37, G.R)
	require.Equal(t, 4, G.C)
	assert.Zero(t, Gram(nil, X, k).R)
	for i := range X {
		for j := range X {
			require.InDelta(t, k(X[i], X[j]), K.At(i, j), 1e-15)
			require.Equal(t, K.At(i, j), K.At(j, i))
		}
		for j := range 4 {
			require.InDelta(t, K.At(i, j), G.At(i, j), 1e-15)
		}
	}
}
