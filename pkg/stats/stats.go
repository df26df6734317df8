package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Column copies column j of X.
func Column(X [][]float64, j int) []float64 {
	col := make([]float64, len(X))
	for i := range X {
		col[i] = X[i][j]
	}
	return col
}

// Mean computes the average of a slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// Variance computes the population variance of a slice.
func Variance(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, v := stat.PopMeanVariance(x, nil)
	return v
}

// Std computes the population standard deviation of a slice.
func Std(x []float64) float64 {
	return math.Sqrt(Variance(x))
}

// MatrixVariance is the population variance over every element of X.
func MatrixVariance(X [][]float64) float64 {
	flat := make([]float64, 0, len(X)*width(X))
	for _, row := range X {
		flat = append(flat, row...)
	}
	return Variance(flat)
}

// Percentile returns the p-th percentile value of the slice (0 <= p <= 100), linearly
// interpolated between order statistics.
func Percentile(x []float64, p float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	cp := make([]float64, n)
	copy(cp, x)
	sort.Float64s(cp)
	if p <= 0 {
		return cp[0]
	}
	if p >= 100 {
		return cp[n-1]
	}
	rank := p / 100 * float64(n-1)
	lower := int(rank)
	upper := lower + 1
	weight := rank - float64(lower)
	if upper >= n {
		return cp[lower]
	}
	return cp[lower]*(1-weight) + cp[upper]*weight
}

// Correlation computes the Pearson correlation coefficient between two slices. Constant
// inputs yield 0.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(y) != len(x) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// CorrelationMatrix returns the pairwise Pearson correlations of the columns of X.
func CorrelationMatrix(X [][]float64) [][]float64 {
	c := width(X)
	cols := make([][]float64, c)
	for j := range c {
		cols[j] = Column(X, j)
	}
	out := make([][]float64, c)
	for i := range c {
		out[i] = make([]float64, c)
		for j := range c {
			if i == j {
				out[i][j] = 1
				continue
			}
			out[i][j] = Correlation(cols[i], cols[j])
		}
	}
	return out
}

func width(X [][]float64) int {
	if len(X) == 0 {
		return 0
	}
	return len(X[0])
}
