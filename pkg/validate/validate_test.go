package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"mhrisk/pkg/logger"
	"mhrisk/pkg/pipeline"
)

const header = "Age,SystolicBP,DiastolicBP,BS,BodyTemp,HeartRate,RiskLevel\n"

var validRows = []string{
	"25,130,80,15,98,86,high risk",
	"35,140,90,13,98,70,high risk",
	"29,90,70,8,100,80,high risk",
	"30,140,85,7,98,70,mid risk",
	"35,120,60,6.1,98,76,low risk",
	"23,140,80,7.01,98,70,mid risk",
	"23,130,70,7.01,98,78,mid risk",
	"35,85,60,11,102,86,high risk",
	"32,120,90,6.9,98,70,mid risk",
	"42,130,80,18,98,70,high risk",
	"19,120,80,7,98,70,low risk",
	"20,110,60,7.5,98,76,low risk",
}

func writeCSV(t *testing.T, name string, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(header+strings.Join(rows, "\n")+"\n"), 0o600))

	return path
}

func newValidator(t *testing.T, opts Options) *Validator {
	t.Helper()
	return New(pipeline.MaternalHealthSchema, opts, logger.Test(t))
}

func TestValidateFile_Valid(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, "raw.csv", validRows...)
	res, err := newValidator(t, DefaultOptions()).ValidateFile(path)
	require.NoError(t, err)
	assert.Equal(t, len(validRows), res.InputRows)
	assert.Equal(t, len(validRows), res.OutputRows)
	assert.Equal(t, pipeline.MaternalHealthSchema.Names(), res.Frame.Header)
	assert.Empty(t, res.Warnings)
}

func TestValidateFile_DuplicatesDropped(t *testing.T) {
	t.Parallel()

	rows := append(append([]string{}, validRows...), validRows[0], validRows[3], validRows[0])
	path := writeCSV(t, "raw.csv", rows...)

	res, err := newValidator(t, DefaultOptions()).ValidateFile(path)
	require.NoError(t, err)
	assert.Equal(t, len(rows), res.InputRows)
	assert.Equal(t, len(rows)-3, res.OutputRows)
	assert.Equal(t, 3, res.DuplicatesDropped)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, CheckDuplicates, res.Warnings[0].Check)

	keep := DefaultOptions()
	keep.DropDuplicates = false
	res, err = newValidator(t, keep).ValidateFile(path)
	require.NoError(t, err)
	assert.Equal(t, len(rows), res.OutputRows)
	assert.Equal(t, 3, res.DuplicatesFound)
	assert.Zero(t, res.DuplicatesDropped)
}

func TestValidateFile_EmptyRowsDropped(t *testing.T) {
	t.Parallel()

	rows := append(append([]string{}, validRows...), ",,,,,,")
	res, err := newValidator(t, DefaultOptions()).ValidateFile(writeCSV(t, "raw.csv", rows...))
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmptyDropped)
	assert.Equal(t, len(validRows), res.OutputRows)
}

func TestValidateFile_NegativeAge(t *testing.T) {
	t.Parallel()

	rows := append([]string{}, validRows...)
	rows[2] = "-4,90,70,8,100,80,high risk"
	_, err := newValidator(t, DefaultOptions()).ValidateFile(writeCSV(t, "raw.csv", rows...))

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Columns(), "Age")
	require.Len(t, verr.Failures, 1)
	assert.Equal(t, CheckRange, verr.Failures[0].Check)
	assert.Equal(t, 2, verr.Failures[0].Row)
}

func TestValidateFile_CollectsEveryFailure(t *testing.T) {
	t.Parallel()

	rows := append([]string{}, validRows...)
	// category, type, int with fraction, range, null over threshold, short row with null label
	rows[0] = "25,130,80,15,98,86,severe"
	rows[1] = "35,abc,90,13,98,70,high risk"
	rows[2] = "29.5,90,70,8,100,80,high risk"
	rows[3] = "30,140,85,7,98,400,mid risk"
	rows[4] = "35,120,60,,98,76,low risk"
	rows[5] = "23,140,80,7.01,98,70"
	path := writeCSV(t, "raw.txt", rows...)

	lggr, logs := logger.TestObserved(t, zapcore.ErrorLevel)
	_, err := New(pipeline.MaternalHealthSchema, DefaultOptions(), lggr).ValidateFile(path)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	checks := map[string]bool{}
	for _, f := range verr.Failures {
		checks[f.Check] = true
	}
	for _, want := range []string{CheckFormat, CheckCategory, CheckType, CheckRange, CheckShape, CheckMissingness} {
		assert.True(t, checks[want], "expected a %s failure in %v", want, verr.Failures)
	}
	assert.ElementsMatch(t, []string{"RiskLevel", "SystolicBP", "Age", "HeartRate", "BS"}, verr.Columns())
	assert.Equal(t, len(verr.Failures), logs.Len())
	assert.Contains(t, err.Error(), "validation failed with")
}

// generatedRows returns n distinct valid rows cycling through every class.
func generatedRows(n int) []string {
	classes := pipeline.MaternalHealthSchema.Classes()
	rows := make([]string, n)
	for i := range rows {
		rows[i] = fmt.Sprintf("%d,%d,%d,%.1f,%d,%d,%s",
			15+i, 90+i%40, 60+i%30, 6+float64(i%10)*0.5, 98+i%3, 60+i%40, classes[i%len(classes)])
	}

	return rows
}

func TestValidateFile_NullsUnderThresholdDropped(t *testing.T) {
	t.Parallel()

	rows := generatedRows(48)
	rows[7] = ",100,67,9.5,99,67,mid risk"
	res, err := newValidator(t, DefaultOptions()).ValidateFile(writeCSV(t, "raw.csv", rows...))
	require.NoError(t, err)
	assert.Equal(t, 48, res.InputRows)
	assert.Equal(t, 47, res.OutputRows)
	assert.Equal(t, 1, res.NullDropped)
	for _, row := range res.Frame.Rows {
		assert.NotEmpty(t, row[0])
	}
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, CheckMissingness, res.Warnings[0].Check)
	assert.Equal(t, "1", res.Warnings[0].Value)

	rep := NewReport(res, nil)
	assert.True(t, rep.Passed)
	assert.Equal(t, 1, rep.NullDropped)
}

func TestValidateFile_NullsOverThresholdFail(t *testing.T) {
	t.Parallel()

	rows := generatedRows(50)
	for _, i := range []int{3, 20, 41} {
		rows[i] = "," + strings.SplitN(rows[i], ",", 2)[1]
	}
	_, err := newValidator(t, DefaultOptions()).ValidateFile(writeCSV(t, "raw.csv", rows...))

	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Failures, 1)
	assert.Equal(t, CheckMissingness, verr.Failures[0].Check)
	assert.Equal(t, "Age", verr.Failures[0].Column)
	assert.Equal(t, "0.0600", verr.Failures[0].Value)
}

func TestValidateFile_NonNullableColumn(t *testing.T) {
	t.Parallel()

	schema := pipeline.MaternalHealthSchema
	schema.Columns = append([]pipeline.Column{}, schema.Columns...)
	schema.Columns[0].Nullable = false

	rows := generatedRows(48)
	rows[7] = ",100,67,9.5,99,67,mid risk"
	_, err := New(schema, DefaultOptions(), logger.Test(t)).ValidateFile(writeCSV(t, "raw.csv", rows...))

	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Failures, 1)
	assert.Equal(t, CheckNull, verr.Failures[0].Check)
	assert.Equal(t, 7, verr.Failures[0].Row)
	assert.True(t, pipeline.MaternalHealthSchema.Columns[0].Nullable)
}

func TestValidate_ColumnsAndDatasetChecks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "raw.csv")
	body := "Age,SystolicBP,BS,BodyTemp,HeartRate,RiskLevel,Extra\n" +
		"25,130,15,98,86,low risk,1\n" +
		"35,140,13,98,86,low risk,1\n" +
		"29,90,8,98,86,low risk,1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := newValidator(t, DefaultOptions()).ValidateFile(path)
	var verr *Error
	require.ErrorAs(t, err, &verr)

	var got []string
	for _, f := range verr.Failures {
		got = append(got, f.Check+":"+f.Column+":"+f.Value)
	}
	assert.Contains(t, got, "columns:DiastolicBP:")
	assert.Contains(t, got, "columns:Extra:")
	assert.Contains(t, got, "class_balance:RiskLevel:mid risk")
	assert.Contains(t, got, "class_balance:RiskLevel:high risk")
	assert.Contains(t, got, "constant_feature:BodyTemp:")
	assert.Contains(t, got, "constant_feature:HeartRate:")
}

func TestValidate_EmptyDataset(t *testing.T) {
	t.Parallel()

	_, err := newValidator(t, DefaultOptions()).ValidateFile(writeCSV(t, "raw.csv"))
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CheckEmptyDataset, verr.Failures[len(verr.Failures)-1].Check)
}

func TestReport(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "validation_report.json")
	rep := NewReport(nil, &Error{Failures: []Failure{{Check: CheckRange, Column: "Age", Row: 1, Message: "bad"}}})
	require.NoError(t, WriteReport(path, rep))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Report
	require.NoError(t, json.Unmarshal(b, &back))
	assert.False(t, back.Passed)
	assert.Equal(t, "Age", back.Failures[0].Column)

	ok := NewReport(&Result{InputRows: 3, OutputRows: 2, DuplicatesDropped: 1}, nil)
	assert.True(t, ok.Passed)
	assert.Equal(t, 2, ok.OutputRows)
	assert.NotNil(t, ok.Warnings)
}
