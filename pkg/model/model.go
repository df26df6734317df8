package model

import "errors"

var (
	// ErrNotFitted is returned when predicting with a model that has not been fitted.
	ErrNotFitted = errors.New("model is not fitted")
	// ErrNonNumericFeature is returned when a feature column cannot be parsed as a number.
	ErrNonNumericFeature = errors.New("non-numeric feature")
	// ErrLabelCardinality is returned when the training labels do not cover the expected classes.
	ErrLabelCardinality = errors.New("unexpected label cardinality")
)

// Classifier is a multi-class model over integer class codes 0..k-1.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
}

// DecisionFunctioner exposes per-class confidence scores of shape n x k.
type DecisionFunctioner interface {
	Classifier
	DecisionFunction(X [][]float64) ([][]float64, error)
}

// Scorer rates predictions against the truth; higher is better.
type Scorer func(yTrue, yPred []int, k int) float64

// Preprocessor is a feature transform fitted on training rows only.
type Preprocessor interface {
	Fit(X [][]float64) error
	Transform(X [][]float64) ([][]float64, error)
}
