package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"mhrisk/pkg/core"
	"mhrisk/pkg/stats"
)

// ---------------------------
// Types & options
// ---------------------------

const tau = 1e-12

// SVC is a C-support vector classifier with an RBF kernel. Multi-class problems are
// decomposed one-vs-one; each binary problem is solved by SMO with second-order
// working set selection.
type SVC struct {
	// Hyperparameters
	C        float64
	Gamma    float64 // 0 => "scale": 1 / (n_features * Var(X))
	Tol      float64
	MaxIter  int
	NClasses int // 0 => max(y)+1

	// fitted state
	gamma   float64
	vectors [][]float64
	pairs   []binarySVC
	iters   int
}

var _ DecisionFunctioner = (*SVC)(nil)

// binarySVC is the decision function of class Pos (+1) against class Neg (-1).
type binarySVC struct {
	Pos, Neg int
	Support  []int // indices into SVC.vectors
	Coef     []float64
	Rho      float64
}

// SVCOption configures an SVC.
type SVCOption func(*SVC)

// WithC sets the soft-margin penalty.
func WithC(c float64) SVCOption { return func(s *SVC) { s.C = c } }

// WithGamma sets the RBF width. Zero selects "scale".
func WithGamma(g float64) SVCOption { return func(s *SVC) { s.Gamma = g } }

// WithTolerance sets the SMO stopping tolerance on the KKT gap.
func WithTolerance(t float64) SVCOption { return func(s *SVC) { s.Tol = t } }

// WithMaxIter caps SMO iterations per binary problem.
func WithMaxIter(n int) SVCOption { return func(s *SVC) { s.MaxIter = n } }

// WithClasses fixes the number of classes instead of inferring max(y)+1.
func WithClasses(k int) SVCOption { return func(s *SVC) { s.NClasses = k } }

// NewSVC returns a classifier with C=1, gamma="scale" and tolerance 1e-3.
func NewSVC(opts ...SVCOption) *SVC {
	s := &SVC{C: 1, Tol: 1e-3, MaxIter: 1_000_000}
	for _, o := range opts {
		o(s)
	}
	return s
}

// KernelGamma returns the gamma used by the fitted kernel.
func (s *SVC) KernelGamma() float64 { return s.gamma }

// Fitted reports whether Fit has completed.
func (s *SVC) Fitted() bool { return s.pairs != nil }

// SupportVectors returns the number of distinct training rows kept by the model.
func (s *SVC) SupportVectors() int { return len(s.vectors) }

// Iterations returns the total number of SMO steps taken over all binary problems.
func (s *SVC) Iterations() int { return s.iters }

// ---------------------------
// Fit
// ---------------------------

// Fit trains one binary machine per class pair.
func (s *SVC) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return fmt.Errorf("svc: no training rows")
	}
	if len(X) != len(y) {
		return fmt.Errorf("svc: %d rows but %d labels", len(X), len(y))
	}
	if s.C <= 0 {
		return fmt.Errorf("svc: C must be positive, got %v", s.C)
	}
	k := s.NClasses
	for i, c := range y {
		if c < 0 || (s.NClasses > 0 && c >= s.NClasses) {
			return fmt.Errorf("svc: row %d: class %d out of range", i, c)
		}
		k = max(k, c+1)
	}

	s.gamma = s.Gamma
	if s.gamma <= 0 {
		v := stats.MatrixVariance(X) * float64(len(X[0]))
		s.gamma = 1
		if v > 0 {
			s.gamma = 1 / v
		}
	}
	K := core.SymmetricGram(X, core.RBF(s.gamma))

	byClass := make([][]int, k)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}

	used := map[int]int{}
	s.vectors = nil
	s.pairs = make([]binarySVC, 0, k*(k-1)/2)
	s.iters = 0
	for i := range k {
		for j := i + 1; j < k; j++ {
			m := binarySVC{Pos: i, Neg: j}
			switch {
			case len(byClass[i]) == 0 && len(byClass[j]) == 0:
			case len(byClass[j]) == 0:
				m.Rho = -1
			case len(byClass[i]) == 0:
				m.Rho = 1
			default:
				idx := append(append([]int(nil), byClass[i]...), byClass[j]...)
				sign := make([]float64, len(idx))
				for t := range idx {
					sign[t] = -1
					if t < len(byClass[i]) {
						sign[t] = 1
					}
				}
				alpha, rho, n := s.solve(K, idx, sign)
				s.iters += n
				m.Rho = rho
				for t, a := range alpha {
					if a == 0 {
						continue
					}
					row := idx[t]
					v, ok := used[row]
					if !ok {
						v = len(s.vectors)
						used[row] = v
						s.vectors = append(s.vectors, append([]float64(nil), X[row]...))
					}
					m.Support = append(m.Support, v)
					m.Coef = append(m.Coef, a*sign[t])
				}
			}
			s.pairs = append(s.pairs, m)
		}
	}
	s.NClasses = k
	return nil
}

// solve runs SMO on the rows idx of K with labels y in {-1,+1}. It returns the dual
// coefficients, the offset rho and the number of iterations.
func (s *SVC) solve(K *core.Matrix, idx []int, y []float64) ([]float64, float64, int) {
	n := len(idx)
	C := s.C
	a := make([]float64, n)
	G := make([]float64, n)
	for t := range G {
		G[t] = -1
	}
	kern := func(p, q int) float64 { return K.At(idx[p], idx[q]) }
	upper := func(t int) bool { return a[t] >= C }
	lower := func(t int) bool { return a[t] <= 0 }

	iter := 0
	for ; iter < s.MaxIter; iter++ {
		// First index: maximal violation over I_up.
		gmax, gmax2 := math.Inf(-1), math.Inf(-1)
		i := -1
		for t := range n {
			if y[t] == 1 {
				if !upper(t) && -G[t] >= gmax {
					gmax, i = -G[t], t
				}
			} else if !lower(t) && G[t] >= gmax {
				gmax, i = G[t], t
			}
		}

		// Second index: largest objective decrease over I_low.
		j := -1
		best := math.Inf(1)
		for t := range n {
			var diff float64
			if y[t] == 1 {
				if lower(t) {
					continue
				}
				diff = gmax + G[t]
				gmax2 = max(gmax2, G[t])
			} else {
				if upper(t) {
					continue
				}
				diff = gmax - G[t]
				gmax2 = max(gmax2, -G[t])
			}
			if i < 0 || diff <= 0 {
				continue
			}
			quad := kern(i, i) + kern(t, t) - 2*kern(i, t)
			if quad <= 0 {
				quad = tau
			}
			if obj := -diff * diff / quad; obj <= best {
				best, j = obj, t
			}
		}
		if gmax+gmax2 < s.Tol || i < 0 || j < 0 {
			break
		}

		oldI, oldJ := a[i], a[j]
		Kij := kern(i, j)
		quad := kern(i, i) + kern(j, j) - 2*Kij
		if quad <= 0 {
			quad = tau
		}
		if y[i] != y[j] {
			delta := (-G[i] - G[j]) / quad
			diff := a[i] - a[j]
			a[i] += delta
			a[j] += delta
			if diff > 0 {
				if a[j] < 0 {
					a[j], a[i] = 0, diff
				}
			} else if a[i] < 0 {
				a[i], a[j] = 0, -diff
			}
			if diff > 0 {
				if a[i] > C {
					a[i], a[j] = C, C-diff
				}
			} else if a[j] > C {
				a[j], a[i] = C, C+diff
			}
		} else {
			delta := (G[i] - G[j]) / quad
			sum := a[i] + a[j]
			a[i] -= delta
			a[j] += delta
			if sum > C {
				if a[i] > C {
					a[i], a[j] = C, sum-C
				}
			} else if a[j] < 0 {
				a[j], a[i] = 0, sum
			}
			if sum > C {
				if a[j] > C {
					a[j], a[i] = C, sum-C
				}
			} else if a[i] < 0 {
				a[i], a[j] = 0, sum
			}
		}

		dI, dJ := a[i]-oldI, a[j]-oldJ
		for t := range n {
			G[t] += y[t] * (y[i]*kern(t, i)*dI + y[j]*kern(t, j)*dJ)
		}
	}

	// Offset: average over free variables, midpoint of the feasible interval otherwise.
	ub, lb := math.Inf(1), math.Inf(-1)
	free, sumFree := 0, 0.0
	for t := range n {
		yG := y[t] * G[t]
		switch {
		case upper(t):
			if y[t] == -1 {
				ub = min(ub, yG)
			} else {
				lb = max(lb, yG)
			}
		case lower(t):
			if y[t] == 1 {
				ub = min(ub, yG)
			} else {
				lb = max(lb, yG)
			}
		default:
			free++
			sumFree += yG
		}
	}
	rho := (ub + lb) / 2
	if free > 0 {
		rho = sumFree / float64(free)
	}
	return a, rho, iter
}

// ---------------------------
// Predict
// ---------------------------

// pairwise returns the raw one-vs-one decision values for one sample, given its kernel
// row against every support vector.
func (s *SVC) pairwise(kx []float64) []float64 {
	dec := make([]float64, len(s.pairs))
	for p, m := range s.pairs {
		sum := 0.0
		for t, v := range m.Support {
			sum += m.Coef[t] * kx[v]
		}
		dec[p] = sum - m.Rho
	}
	return dec
}

func (s *SVC) check(X [][]float64) error {
	if !s.Fitted() {
		return ErrNotFitted
	}
	for i, x := range X {
		if len(s.vectors) > 0 && len(x) != len(s.vectors[0]) {
			return fmt.Errorf("svc: row %d has %d features, model expects %d", i, len(x), len(s.vectors[0]))
		}
	}
	return nil
}

// Predict returns the class with the most pairwise votes; ties go to the lower class.
func (s *SVC) Predict(X [][]float64) ([]int, error) {
	if err := s.check(X); err != nil {
		return nil, err
	}
	K := core.Gram(X, s.vectors, core.RBF(s.gamma))
	out := make([]int, len(X))
	votes := make([]int, s.NClasses)
	for i := range X {
		clear(votes)
		for p, d := range s.pairwise(K.Row(i)) {
			if d > 0 {
				votes[s.pairs[p].Pos]++
			} else {
				votes[s.pairs[p].Neg]++
			}
		}
		best := 0
		for c := range votes {
			if votes[c] > votes[best] {
				best = c
			}
		}
		out[i] = best
	}
	return out, nil
}

// DecisionFunction returns one-vs-rest shaped scores: per class, its vote count plus the
// summed pairwise confidences squashed into (-1/3, 1/3).
func (s *SVC) DecisionFunction(X [][]float64) ([][]float64, error) {
	if err := s.check(X); err != nil {
		return nil, err
	}
	K := core.Gram(X, s.vectors, core.RBF(s.gamma))
	out := make([][]float64, len(X))
	for i := range X {
		votes := make([]float64, s.NClasses)
		conf := make([]float64, s.NClasses)
		for p, d := range s.pairwise(K.Row(i)) {
			m := s.pairs[p]
			conf[m.Pos] += d
			conf[m.Neg] -= d
			if d > 0 {
				votes[m.Pos]++
			} else {
				votes[m.Neg]++
			}
		}
		for c := range votes {
			votes[c] += conf[c] / (3 * (math.Abs(conf[c]) + 1))
		}
		out[i] = votes
	}
	return out, nil
}

// ---------------------------
// Persistence
// ---------------------------

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (s *SVC) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, v := range []any{s.C, s.Gamma, s.Tol, s.MaxIter, s.NClasses, s.gamma, s.vectors, s.pairs} {
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (s *SVC) UnmarshalBinary(data []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(data))
	for _, v := range []any{&s.C, &s.Gamma, &s.Tol, &s.MaxIter, &s.NClasses, &s.gamma, &s.vectors, &s.pairs} {
		if err := dec.Decode(v); err != nil {
			return err
		}
	}
	if s.pairs == nil {
		s.pairs = []binarySVC{}
	}
	return nil
}
