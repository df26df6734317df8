package core

import (
	"math"
	"runtime"
	"sync"
)

// Matrix is a dense row-major matrix.
type Matrix struct {
	R, C int
	Data []float64
}

// NewMatrix allocates a zero matrix.
func NewMatrix(r, c int) *Matrix {
	return &Matrix{R: r, C: c, Data: make([]float64, r*c)}
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float64 { return m.Data[i*m.C+j] }

// Row returns row i as a slice sharing the matrix storage.
func (m *Matrix) Row(i int) []float64 { return m.Data[i*m.C : (i+1)*m.C] }

// Kernel computes a similarity between two equal-length vectors.
type Kernel func(a, b []float64) float64

// RBF returns the Gaussian kernel exp(-gamma*||a-b||^2).
func RBF(gamma float64) Kernel {
	return func(a, b []float64) float64 {
		return math.Exp(-gamma * SquaredDistance(a, b))
	}
}

// SquaredDistance is the squared Euclidean distance between a and b.
func SquaredDistance(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// Gram computes K[i][j] = k(A[i], B[j]). Rows are split into one chunk per
// GOMAXPROCS worker.
func Gram(A, B [][]float64, k Kernel) *Matrix {
	K := NewMatrix(len(A), len(B))
	parallelRows(len(A), func(i int) {
		row := K.Row(i)
		for j := range B {
			row[j] = k(A[i], B[j])
		}
	})
	return K
}

// SymmetricGram computes the Gram matrix of X with itself, evaluating each pair once.
func SymmetricGram(X [][]float64, k Kernel) *Matrix {
	n := len(X)
	K := NewMatrix(n, n)
	parallelRows(n, func(i int) {
		for j := i; j < n; j++ {
			K.Data[i*n+j] = k(X[i], X[j])
		}
	})
	for i := range n {
		for j := range i {
			K.Data[i*n+j] = K.Data[j*n+i]
		}
	}
	return K
}

func parallelRows(n int, fn func(i int)) {
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := range workers {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(rs, re int) {
			defer wg.Done()
			for i := rs; i < re; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
