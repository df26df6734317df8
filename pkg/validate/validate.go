// Package validate checks a raw dataset against a pipeline.Schema. Every check runs and
// every defect is collected, so a single report lists all data quality problems at once.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mhrisk/pkg/data"
	"mhrisk/pkg/dataprep"
	"mhrisk/pkg/logger"
	"mhrisk/pkg/pipeline"
)

// Check names used in failures.
const (
	CheckFormat       = "file_format"
	CheckColumns      = "columns"
	CheckShape        = "shape"
	CheckNull         = "null"
	CheckType         = "type"
	CheckRange        = "range"
	CheckCategory     = "category"
	CheckMissingness  = "missingness"
	CheckClassBalance = "class_balance"
	CheckConstant     = "constant_feature"
	CheckDuplicates   = "duplicates"
	CheckEmptyRows    = "empty_rows"
	CheckEmptyDataset = "empty_dataset"
)

// Failure is one failed check. Row is the 0-based data row, or -1 for dataset level checks.
type Failure struct {
	Check   string `json:"check"`
	Column  string `json:"column,omitempty"`
	Row     int    `json:"row"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (f Failure) String() string {
	var b strings.Builder
	b.WriteString(f.Check)
	if f.Column != "" {
		fmt.Fprintf(&b, " [%s]", f.Column)
	}
	if f.Row >= 0 {
		fmt.Fprintf(&b, " row %d", f.Row)
	}
	b.WriteString(": ")
	b.WriteString(f.Message)

	return b.String()
}

// Error aggregates every failed check of one validation run.
type Error struct {
	Failures []Failure
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d failure(s)", len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n  - ")
		b.WriteString(f.String())
	}

	return b.String()
}

// Columns returns the distinct columns named by failures, in first-seen order.
func (e *Error) Columns() []string {
	var cols []string
	for _, f := range e.Failures {
		if f.Column != "" {
			cols = append(cols, f.Column)
		}
	}

	return dataprep.Distinct(cols)
}

// Options tunes the dataset level checks.
type Options struct {
	DropDuplicates     bool
	MaxMissingFraction float64
	MinClassFraction   float64
}

// DefaultOptions drops duplicates and uses 5% thresholds for missingness and class share.
func DefaultOptions() Options {
	return Options{DropDuplicates: true, MaxMissingFraction: 0.05, MinClassFraction: 0.05}
}

// Result is a passing validation.
type Result struct {
	Frame             *data.Frame // cleaned rows, schema column order
	InputRows         int
	OutputRows        int
	EmptyDropped      int
	NullDropped       int
	DuplicatesFound   int
	DuplicatesDropped int
	Warnings          []Failure
}

// Validator runs the schema checks.
type Validator struct {
	schema pipeline.Schema
	opts   Options
	lggr   logger.Logger
}

// New returns a Validator for schema.
func New(schema pipeline.Schema, opts Options, lggr logger.Logger) *Validator {
	return &Validator{schema: schema, opts: opts, lggr: lggr}
}

// ValidateFile reads and validates a raw CSV. The returned error is a *Error when the data
// fails any check.
func (v *Validator) ValidateFile(path string) (*Result, error) {
	var failures []Failure
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		failures = append(failures, Failure{Check: CheckFormat, Row: -1, Value: filepath.Ext(path),
			Message: "invalid file format, expected .csv"})
	}

	f, err := data.ReadCSV(path)
	if err != nil {
		failures = append(failures, Failure{Check: CheckFormat, Row: -1, Message: err.Error()})
		return nil, v.fail(failures)
	}

	res, more := v.check(f)
	failures = append(failures, more...)
	if len(failures) > 0 {
		return nil, v.fail(failures)
	}

	return v.pass(res), nil
}

// Validate checks an in-memory frame. The returned error is a *Error when the data fails
// any check.
func (v *Validator) Validate(f *data.Frame) (*Result, error) {
	res, failures := v.check(f)
	if len(failures) > 0 {
		return nil, v.fail(failures)
	}

	return v.pass(res), nil
}

func (v *Validator) check(f *data.Frame) (*Result, []Failure) {
	var failures, warnings []Failure

	failures = append(failures, v.checkColumns(f)...)

	for i, row := range f.Rows {
		if len(row) != len(f.Header) {
			failures = append(failures, Failure{Check: CheckShape, Row: i, Value: strconv.Itoa(len(row)),
				Message: fmt.Sprintf("row has %d fields, header has %d", len(row), len(f.Header))})
		}
	}

	empty := dataprep.EmptyRows(f.Rows)
	if len(empty) > 0 {
		warnings = append(warnings, Failure{Check: CheckEmptyRows, Row: -1, Value: strconv.Itoa(len(empty)),
			Message: fmt.Sprintf("%d empty row(s) dropped", len(empty))})
	}
	rows := dataprep.DropRows(f.Rows, empty)
	if len(rows) == 0 {
		failures = append(failures, Failure{Check: CheckEmptyDataset, Row: -1, Message: "dataset has no observations"})
		return nil, failures
	}

	// cells are checked against their original row index
	keep := make([]int, 0, len(rows))
	emptySet := toSet(empty)
	for i := range f.Rows {
		if _, ok := emptySet[i]; !ok {
			keep = append(keep, i)
		}
	}

	present := make([]pipeline.Column, 0, len(v.schema.Columns))
	for _, col := range v.schema.Columns {
		if f.Index(col.Name) >= 0 {
			present = append(present, col)
		}
	}

	for _, col := range present {
		j := f.Index(col.Name)
		failures = append(failures, v.checkCells(f, keep, j, col)...)
	}

	failures = append(failures, v.checkMissingness(f, keep, present)...)
	failures = append(failures, v.checkClassBalance(f, keep)...)
	failures = append(failures, v.checkConstant(f, keep, present)...)

	if len(failures) > 0 {
		return nil, failures
	}

	// project onto schema column order, dropping rows that hold a null
	cleaned := data.NewFrame(v.schema.Names(), make([][]string, 0, len(keep)))
	nullDropped := 0
	for _, i := range keep {
		out := make([]string, len(present))
		hasNull := false
		for c, col := range present {
			out[c] = strings.TrimSpace(f.Cell(i, f.Index(col.Name)))
			hasNull = hasNull || dataprep.IsMissing(out[c])
		}
		if hasNull {
			nullDropped++
			continue
		}
		cleaned.Rows = append(cleaned.Rows, out)
	}
	if nullDropped > 0 {
		warnings = append(warnings, Failure{Check: CheckMissingness, Row: -1, Value: strconv.Itoa(nullDropped),
			Message: fmt.Sprintf("%d row(s) with nulls dropped", nullDropped)})
	}

	res := &Result{InputRows: f.Len(), EmptyDropped: len(empty), NullDropped: nullDropped}
	dups := dataprep.DuplicateRows(cleaned.Rows)
	res.DuplicatesFound = len(dups)
	if len(dups) > 0 {
		msg := fmt.Sprintf("%d duplicate row(s) kept", len(dups))
		if v.opts.DropDuplicates {
			cleaned.Rows = dataprep.DropRows(cleaned.Rows, dups)
			res.DuplicatesDropped = len(dups)
			msg = fmt.Sprintf("%d duplicate row(s) dropped", len(dups))
		}
		warnings = append(warnings, Failure{Check: CheckDuplicates, Row: -1, Value: strconv.Itoa(len(dups)), Message: msg})
	}

	res.Frame = cleaned
	res.OutputRows = cleaned.Len()
	res.Warnings = warnings

	return res, nil
}

func (v *Validator) pass(res *Result) *Result {
	for _, w := range res.Warnings {
		v.lggr.Warnw("validation warning", "check", w.Check, "message", w.Message)
	}
	v.lggr.Infow("validation passed",
		"inputRows", res.InputRows,
		"outputRows", res.OutputRows,
		"duplicatesFound", res.DuplicatesFound,
		"duplicatesDropped", res.DuplicatesDropped,
		"emptyDropped", res.EmptyDropped,
		"nullDropped", res.NullDropped,
	)

	return res
}

func (v *Validator) fail(failures []Failure) error {
	for _, f := range failures {
		v.lggr.Errorw("validation failure", "check", f.Check, "column", f.Column, "row", f.Row, "message", f.Message)
	}

	return &Error{Failures: failures}
}

func (v *Validator) checkColumns(f *data.Frame) []Failure {
	var out []Failure
	for _, name := range v.schema.Names() {
		if f.Index(name) < 0 {
			out = append(out, Failure{Check: CheckColumns, Column: name, Row: -1, Message: "missing required column"})
		}
	}
	for _, h := range f.Header {
		if _, ok := v.schema.Column(h); !ok {
			out = append(out, Failure{Check: CheckColumns, Column: h, Row: -1, Message: "unexpected extra column"})
		}
	}

	return out
}

func (v *Validator) checkCells(f *data.Frame, keep []int, j int, col pipeline.Column) []Failure {
	var out []Failure
	for _, i := range keep {
		raw := strings.TrimSpace(f.Cell(i, j))
		if dataprep.IsMissing(raw) {
			if !col.Nullable {
				out = append(out, Failure{Check: CheckNull, Column: col.Name, Row: i, Message: "null in non-nullable column"})
			}
			continue
		}

		switch col.Kind {
		case pipeline.KindCategory:
			if !contains(col.Categories, raw) {
				out = append(out, Failure{Check: CheckCategory, Column: col.Name, Row: i, Value: raw,
					Message: fmt.Sprintf("%q is not one of %s", raw, strings.Join(col.Categories, ", "))})
			}
		case pipeline.KindInt, pipeline.KindFloat:
			x, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
				out = append(out, Failure{Check: CheckType, Column: col.Name, Row: i, Value: raw,
					Message: fmt.Sprintf("%q is not a %s", raw, col.Kind)})
				continue
			}
			if col.Kind == pipeline.KindInt && x != math.Trunc(x) {
				out = append(out, Failure{Check: CheckType, Column: col.Name, Row: i, Value: raw,
					Message: fmt.Sprintf("%q is not an int", raw)})
				continue
			}
			if x < col.Min || x > col.Max {
				out = append(out, Failure{Check: CheckRange, Column: col.Name, Row: i, Value: raw,
					Message: fmt.Sprintf("%v outside [%v, %v]", x, col.Min, col.Max)})
			}
		}
	}

	return out
}

func (v *Validator) checkMissingness(f *data.Frame, keep []int, cols []pipeline.Column) []Failure {
	rows := make([][]string, len(keep))
	for k, i := range keep {
		rows[k] = f.Rows[i]
	}
	fracs := dataprep.MissingFractions(rows, len(f.Header))

	var out []Failure
	for _, col := range cols {
		frac := fracs[f.Index(col.Name)]
		if frac > v.opts.MaxMissingFraction {
			out = append(out, Failure{Check: CheckMissingness, Column: col.Name, Row: -1,
				Value:   strconv.FormatFloat(frac, 'f', 4, 64),
				Message: fmt.Sprintf("%.2f%% missing exceeds %.2f%%", frac*100, v.opts.MaxMissingFraction*100)})
		}
	}

	return out
}

func (v *Validator) checkClassBalance(f *data.Frame, keep []int) []Failure {
	j := f.Index(v.schema.Label)
	if j < 0 {
		return nil
	}
	counts := map[string]int{}
	total := 0
	for _, i := range keep {
		raw := strings.TrimSpace(f.Cell(i, j))
		if dataprep.IsMissing(raw) {
			continue
		}
		counts[raw]++
		total++
	}
	if total == 0 {
		return nil
	}

	var out []Failure
	for _, class := range v.schema.Classes() {
		frac := float64(counts[class]) / float64(total)
		if frac < v.opts.MinClassFraction {
			out = append(out, Failure{Check: CheckClassBalance, Column: v.schema.Label, Row: -1, Value: class,
				Message: fmt.Sprintf("class %q has %.2f%% of observations, below %.2f%%", class, frac*100, v.opts.MinClassFraction*100)})
		}
	}

	return out
}

func (v *Validator) checkConstant(f *data.Frame, keep []int, cols []pipeline.Column) []Failure {
	var out []Failure
	for _, col := range cols {
		if !col.Numeric() {
			continue
		}
		j := f.Index(col.Name)
		seen := map[string]struct{}{}
		for _, i := range keep {
			raw := strings.TrimSpace(f.Cell(i, j))
			if !dataprep.IsMissing(raw) {
				seen[raw] = struct{}{}
			}
		}
		if len(seen) <= 1 {
			out = append(out, Failure{Check: CheckConstant, Column: col.Name, Row: -1, Message: "feature has no variation"})
		}
	}

	return out
}

// Report is the JSON document written next to the validated data.
type Report struct {
	Passed            bool      `json:"passed"`
	InputRows         int       `json:"input_rows"`
	OutputRows        int       `json:"output_rows"`
	DuplicatesFound   int       `json:"duplicates_found"`
	DuplicatesDropped int       `json:"duplicates_dropped"`
	EmptyDropped      int       `json:"empty_dropped"`
	NullDropped       int       `json:"null_dropped"`
	Failures          []Failure `json:"failures"`
	Warnings          []Failure `json:"warnings"`
}

// NewReport summarises the outcome of ValidateFile or Validate.
func NewReport(res *Result, err error) Report {
	r := Report{Failures: []Failure{}, Warnings: []Failure{}}
	var verr *Error
	if errors.As(err, &verr) {
		r.Failures = verr.Failures
		return r
	}
	if err != nil {
		r.Failures = []Failure{{Check: CheckFormat, Row: -1, Message: err.Error()}}
		return r
	}
	r.Passed = true
	r.InputRows = res.InputRows
	r.OutputRows = res.OutputRows
	r.DuplicatesFound = res.DuplicatesFound
	r.DuplicatesDropped = res.DuplicatesDropped
	r.EmptyDropped = res.EmptyDropped
	r.NullDropped = res.NullDropped
	if res.Warnings != nil {
		r.Warnings = res.Warnings
	}

	return r
}

// WriteReport writes r as indented JSON, creating parent directories.
func WriteReport(path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}

	return false
}

func toSet(idx []int) map[int]struct{} {
	out := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		out[i] = struct{}{}
	}

	return out
}
