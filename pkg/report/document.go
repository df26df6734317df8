package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

const documentTemplate = `# Predicting maternal health risk

Generated {{ .E.CreatedAt.Format "2006-01-02 15:04:05 UTC" }}.

## Model

An RBF-kernel support vector classifier (C = {{ num .E.Model.C }}, gamma = {{ num .E.Model.Gamma }},
{{ .E.Model.SupportVectors }} support vectors) predicts the risk level from
{{ join .E.Features ", " }}, standardized with statistics of the training split.
{{- with .E.Search }}
Hyperparameters were chosen by a randomized search over {{ .Iterations }} candidates with
{{ .Folds }}-fold stratified cross-validation scored by weighted recall
(best mean CV score {{ num .BestScore }}).
{{- end }}
{{- if .E.Dropped }}
Columns dropped before evaluation: {{ join .E.Dropped ", " }}.
{{- end }}
{{ with .Tuning }}
![Hyperparameter tuning]({{ . }})
{{ end }}
## Test set performance

Evaluated on {{ .E.TestRows }} held-out observations.

| metric | value |
|---|---|
| accuracy | {{ num .E.Accuracy }} |
| recall (weighted) | {{ num .E.RecallWeighted }} |
| F2 (weighted) | {{ num .E.F2Weighted }} |

| class | precision | recall | F1 | support | AUC (one-vs-rest) |
|---|---|---|---|---|---|
{{- range $i, $s := .E.PerClass }}
| {{ index $.E.Classes $i }} | {{ num $s.Precision }} | {{ num $s.Recall }} | {{ num $s.F1 }} | {{ $s.Support }} | {{ num (index $.E.Curves $i).AUC }} |
{{- end }}

### Confusion matrix

Rows are the actual class, columns the predicted class.

| actual \ predicted |{{ range .E.Classes }} {{ . }} |{{ end }}
|---|{{ range .E.Classes }}---|{{ end }}
{{- range $i, $row := .E.Confusion }}
| {{ index $.E.Classes $i }} |{{ range $row }} {{ . }} |{{ end }}
{{- end }}
{{ with .Confusion }}
![Confusion matrix]({{ . }})
{{ end }}{{ with .ROC }}
![ROC curves]({{ . }})
{{ end }}`

var document = template.Must(template.New("report").Funcs(template.FuncMap{
	"join": strings.Join,
	"num": func(v float64) string {
		if math.IsNaN(v) {
			return "n/a"
		}
		return strconv.FormatFloat(v, 'f', 3, 64)
	},
}).Parse(documentTemplate))

// Figures are image paths embedded in the document. Empty paths are skipped.
type Figures struct {
	Tuning    string
	Confusion string
	ROC       string
}

type documentData struct {
	E         *Evaluation
	Tuning    string
	Confusion string
	ROC       string
}

// WriteDocument renders the markdown report to path, linking figures relative to it.
func (e *Evaluation) WriteDocument(path string, figs Figures) error {
	dir := filepath.Dir(path)
	rel := func(p string) string {
		if p == "" {
			return ""
		}
		if _, err := os.Stat(p); err != nil {
			return ""
		}
		r, err := filepath.Rel(dir, p)
		if err != nil {
			return p
		}
		return filepath.ToSlash(r)
	}

	var buf bytes.Buffer
	err := document.Execute(&buf, documentData{E: e, Tuning: rel(figs.Tuning), Confusion: rel(figs.Confusion), ROC: rel(figs.ROC)})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
