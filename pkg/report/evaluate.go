package report

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"mhrisk/pkg/data"
	"mhrisk/pkg/model"
	"mhrisk/pkg/pipeline"
)

// Output file names written by the evaluator.
const (
	TestScoresFile      = "test_scores.csv"
	ConfusionMatrixFile = "confusion_matrix.csv"
	AUCScoresFile       = "auc_scores.csv"
	ClassScoresFile     = "classification_report.csv"
	ConfusionPlotFile   = "confusion_matrix.png"
	ROCPlotFile         = "roc_curves.png"
	DocumentFile        = "report.md"
)

// DropColumn is the header of the optional columns-to-drop CSV.
const DropColumn = "feats_to_drop"

// Curve is a one-vs-rest ROC curve for a single class.
type Curve struct {
	Class string
	FPR   []float64
	TPR   []float64
	AUC   float64
}

// Evaluation holds every test-set metric of a fitted pipeline.
type Evaluation struct {
	Classes        []string
	Features       []string
	Dropped        []string
	TestRows       int
	Accuracy       float64
	RecallWeighted float64
	F2Weighted     float64
	PerClass       []model.ClassScore
	Confusion      [][]int
	Curves         []Curve
	Model          pipeline.ModelParams
	Search         *pipeline.SearchSummary
	CreatedAt      time.Time
}

// Evaluate scores p on test after removing the drop columns. Inputs are not modified.
func Evaluate(p *pipeline.Pipeline, test *data.Frame, schema pipeline.Schema, drop []string) (*Evaluation, error) {
	f := test
	if len(drop) > 0 {
		f = test.Drop(drop...)
	}
	X, y, err := p.XY(f, schema)
	if err != nil {
		return nil, err
	}
	pred, err := p.Predict(X)
	if err != nil {
		return nil, err
	}
	dec, err := p.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	acc, err := p.Score(f, schema)
	if err != nil {
		return nil, err
	}

	k := len(p.Classes)
	ev := &Evaluation{
		Classes:        p.Classes,
		Features:       p.Features,
		Dropped:        drop,
		TestRows:       len(y),
		Accuracy:       acc,
		RecallWeighted: model.RecallWeighted(y, pred, k),
		F2Weighted:     model.FBetaWeighted(y, pred, k, 2),
		PerClass:       model.PerClass(y, pred, k),
		Confusion:      model.ConfusionMatrix(y, pred, k),
		Model:          p.Manifest().Model,
		Search:         p.Search,
		CreatedAt:      time.Now().UTC(),
	}
	auc := model.OneVsRestAUC(dec, y, k)
	for c, class := range p.Classes {
		scores := make([]float64, len(dec))
		positive := make([]bool, len(dec))
		for i := range dec {
			scores[i] = dec[i][c]
			positive[i] = y[i] == c
		}
		curve := Curve{Class: class, AUC: auc[c]}
		if ev.PerClass[c].Support > 0 && ev.PerClass[c].Support < len(y) {
			curve.FPR, curve.TPR, _ = model.ROCCurve(scores, positive)
		}
		ev.Curves = append(ev.Curves, curve)
	}
	return ev, nil
}

// AUC returns the one-vs-rest AUC per class, in class order.
func (e *Evaluation) AUC() []float64 {
	out := make([]float64, len(e.Curves))
	for i, c := range e.Curves {
		out[i] = c.AUC
	}
	return out
}

// ReadColumnsToDrop reads the feats_to_drop column of a CSV file.
func ReadColumnsToDrop(path string) ([]string, error) {
	f, err := data.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	col, err := f.Column(DropColumn)
	if err != nil {
		return nil, fmt.Errorf("columns to drop %s: %w", path, err)
	}
	var out []string
	for _, c := range col {
		if c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteTables writes the score, confusion matrix, AUC and per-class CSVs into dir.
func (e *Evaluation) WriteTables(dir string) ([]string, error) {
	tables := map[string]*data.Frame{
		TestScoresFile: data.NewFrame(
			[]string{"accuracy", "recall_weighted", "F2_weighted"},
			[][]string{{ftoa(e.Accuracy), ftoa(e.RecallWeighted), ftoa(e.F2Weighted)}},
		),
	}

	cm := data.NewFrame(append([]string{"Actual"}, e.Classes...), nil)
	for i, row := range e.Confusion {
		r := []string{e.Classes[i]}
		for _, v := range row {
			r = append(r, strconv.Itoa(v))
		}
		cm.Rows = append(cm.Rows, r)
	}
	tables[ConfusionMatrixFile] = cm

	auc := data.NewFrame([]string{"class", "auc"}, nil)
	for _, c := range e.Curves {
		auc.Rows = append(auc.Rows, []string{c.Class, ftoa(c.AUC)})
	}
	tables[AUCScoresFile] = auc

	pc := data.NewFrame([]string{"class", "precision", "recall", "f1", "support"}, nil)
	for i, s := range e.PerClass {
		pc.Rows = append(pc.Rows, []string{e.Classes[i], ftoa(s.Precision), ftoa(s.Recall), ftoa(s.F1), strconv.Itoa(s.Support)})
	}
	tables[ClassScoresFile] = pc

	var paths []string
	for _, name := range []string{TestScoresFile, ConfusionMatrixFile, AUCScoresFile, ClassScoresFile} {
		path := filepath.Join(dir, name)
		if err := data.WriteCSV(path, tables[name]); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WritePlots writes the confusion matrix and ROC figures into dir.
func (e *Evaluation) WritePlots(dir string) ([]string, error) {
	cm := filepath.Join(dir, ConfusionPlotFile)
	if err := ConfusionMatrixPlot(cm, e.Confusion, e.Classes); err != nil {
		return nil, fmt.Errorf("confusion matrix plot: %w", err)
	}
	var curves []Curve
	for _, c := range e.Curves {
		if len(c.FPR) > 0 {
			curves = append(curves, c)
		}
	}
	roc := filepath.Join(dir, ROCPlotFile)
	if err := ROCCurves(roc, curves); err != nil {
		return nil, fmt.Errorf("roc plot: %w", err)
	}
	return []string{cm, roc}, nil
}

// WriteCVResults writes one row per search candidate.
func WriteCVResults(path string, results []model.CVResult) error {
	header := []string{"rank_test_score", "param_C", "param_gamma", "mean_test_score", "std_test_score", "mean_fit_time"}
	folds := 0
	if len(results) > 0 {
		folds = len(results[0].FoldScores)
	}
	for f := range folds {
		header = append(header, fmt.Sprintf("split%d_test_score", f))
	}
	out := data.NewFrame(header, nil)
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.Rank), ftoa(r.C), ftoa(r.Gamma), ftoa(r.MeanScore), ftoa(r.StdScore),
			ftoa(r.FitTime.Seconds() / float64(max(folds, 1))),
		}
		for _, s := range r.FoldScores {
			row = append(row, ftoa(s))
		}
		out.Rows = append(out.Rows, row)
	}
	return data.WriteCSV(path, out)
}
