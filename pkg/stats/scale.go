package stats

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNotFitted is returned by Transform before Fit.
	ErrNotFitted = errors.New("scaler is not fitted")
	// ErrEmpty is returned when fitting on no rows.
	ErrEmpty = errors.New("cannot fit scaler on empty data")
)

// StandardScaler standardizes named columns to zero mean and unit variance. Parameters are
// population statistics of the rows passed to Fit; a zero deviation maps to 1.
type StandardScaler struct {
	Features []string
	Mean     []float64
	Std      []float64
	fit      bool
}

// NewStandardScaler returns an unfitted scaler over the named features.
func NewStandardScaler(features ...string) *StandardScaler {
	return &StandardScaler{Features: append([]string(nil), features...)}
}

// Fitted reports whether Fit has succeeded.
func (s *StandardScaler) Fitted() bool { return s.fit }

// Fit learns per-column mean and deviation from X.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmpty
	}
	c := len(X[0])
	if len(s.Features) != 0 && len(s.Features) != c {
		return fmt.Errorf("scaler has %d features, data has %d columns", len(s.Features), c)
	}
	s.Mean = make([]float64, c)
	s.Std = make([]float64, c)
	for j := range c {
		mean, std := stat.PopMeanStdDev(Column(X, j), nil)
		s.Mean[j] = mean
		s.Std[j] = std
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	s.fit = true
	return nil
}

// Transform applies the learned standardization to X without modifying it.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.fit {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		if len(x) != len(s.Mean) {
			return nil, fmt.Errorf("row %d has %d columns, scaler expects %d", i, len(x), len(s.Mean))
		}
		row := make([]float64, len(x))
		for j, v := range x {
			row[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = row
	}
	return out, nil
}

// FitTransform fits on X and returns X transformed.
func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// Subset returns a fitted scaler restricted to the named features, in that order.
func (s *StandardScaler) Subset(features ...string) (*StandardScaler, error) {
	if !s.fit {
		return nil, ErrNotFitted
	}
	out := &StandardScaler{Features: append([]string(nil), features...), fit: true}
	for _, name := range features {
		j := -1
		for k, f := range s.Features {
			if f == name {
				j = k
				break
			}
		}
		if j < 0 {
			return nil, fmt.Errorf("scaler has no feature %q", name)
		}
		out.Mean = append(out.Mean, s.Mean[j])
		out.Std = append(out.Std, s.Std[j])
	}
	return out, nil
}

type scalerState struct {
	Features []string
	Mean     []float64
	Std      []float64
	Fitted   bool
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (s *StandardScaler) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(scalerState{s.Features, s.Mean, s.Std, s.fit}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (s *StandardScaler) UnmarshalBinary(data []byte) error {
	var st scalerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return err
	}
	s.Features, s.Mean, s.Std, s.fit = st.Features, st.Mean, st.Std, st.Fitted
	return nil
}
