package model

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Accuracy is the fraction of exact matches.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

// ConfusionMatrix counts rows by true class (row) and predicted class (column).
func ConfusionMatrix(yTrue, yPred []int, k int) [][]int {
	cm := make([][]int, k)
	for i := range cm {
		cm[i] = make([]int, k)
	}
	for i := range yTrue {
		cm[yTrue[i]][yPred[i]]++
	}
	return cm
}

// ClassScore holds one-vs-rest metrics for a single class.
type ClassScore struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// PrecisionRecallF1 treats class as positive and everything else as negative.
// Undefined ratios are reported as 0.
func PrecisionRecallF1(yTrue, yPred []int, class int) (prec, rec, f1 float64) {
	return precisionRecallFBeta(yTrue, yPred, class, 1)
}

func precisionRecallFBeta(yTrue, yPred []int, class int, beta float64) (prec, rec, f float64) {
	tp, fp, fn := 0, 0, 0
	for i := range yTrue {
		switch {
		case yPred[i] == class && yTrue[i] == class:
			tp++
		case yPred[i] == class:
			fp++
		case yTrue[i] == class:
			fn++
		}
	}
	if tp+fp > 0 {
		prec = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		rec = float64(tp) / float64(tp+fn)
	}
	b2 := beta * beta
	if d := b2*prec + rec; d > 0 {
		f = (1 + b2) * prec * rec / d
	}
	return
}

// PerClass returns precision, recall, F1 and support for classes 0..k-1.
func PerClass(yTrue, yPred []int, k int) []ClassScore {
	out := make([]ClassScore, k)
	for _, y := range yTrue {
		out[y].Support++
	}
	for c := range k {
		out[c].Precision, out[c].Recall, out[c].F1 = PrecisionRecallF1(yTrue, yPred, c)
	}
	return out
}

// RecallWeighted averages per-class recall weighted by class support.
func RecallWeighted(yTrue, yPred []int, k int) float64 {
	return weighted(yTrue, yPred, k, func(c int) float64 {
		_, r, _ := precisionRecallFBeta(yTrue, yPred, c, 1)
		return r
	})
}

// FBetaWeighted averages per-class F-beta weighted by class support.
func FBetaWeighted(yTrue, yPred []int, k int, beta float64) float64 {
	return weighted(yTrue, yPred, k, func(c int) float64 {
		_, _, f := precisionRecallFBeta(yTrue, yPred, c, beta)
		return f
	})
}

func weighted(yTrue, yPred []int, k int, score func(c int) float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	support := make([]int, k)
	for _, y := range yTrue {
		support[y]++
	}
	total := 0.0
	for c, n := range support {
		if n > 0 {
			total += float64(n) * score(c)
		}
	}
	return total / float64(len(yTrue))
}

// ROCCurve returns false and true positive rates, ascending, for scores ranked against
// the positive flags. Thresholds start at +Inf.
func ROCCurve(scores []float64, positive []bool) (fpr, tpr, thresh []float64) {
	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), positive...)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, thresh = stat.ROC(nil, y, classes, nil)
	return fpr, tpr, thresh
}

// AUC is the area under the ROC curve. It is NaN when only one class is present.
func AUC(scores []float64, positive []bool) float64 {
	pos := 0
	for _, p := range positive {
		if p {
			pos++
		}
	}
	if pos == 0 || pos == len(positive) {
		return math.NaN()
	}
	fpr, tpr, _ := ROCCurve(scores, positive)
	return integrate.Trapezoidal(fpr, tpr)
}

// OneVsRestAUC scores column c of the decision matrix against membership in class c.
func OneVsRestAUC(dec [][]float64, yTrue []int, k int) []float64 {
	out := make([]float64, k)
	for c := range k {
		scores := make([]float64, len(dec))
		positive := make([]bool, len(dec))
		for i := range dec {
			scores[i] = dec[i][c]
			positive[i] = yTrue[i] == c
		}
		out[c] = AUC(scores, positive)
	}
	return out
}
