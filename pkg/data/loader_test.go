package data

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "\uFEFFAge,BS,RiskLevel\n25,7.5,low risk\n35, 15,high risk\n29,6.1,mid risk\n"

func TestParseCSV(t *testing.T) {
	t.Parallel()

	f, err := ParseCSV(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, []string{"Age", "BS", "RiskLevel"}, f.Header)
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, "15", f.Rows[1][1])

	X, err := f.Float64s("BS", "Age")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{7.5, 25}, {15, 35}, {6.1, 29}}, X)

	labels, err := f.Column("RiskLevel")
	require.NoError(t, err)
	assert.Equal(t, []string{"low risk", "high risk", "mid risk"}, labels)
}

func TestFloat64s_Errors(t *testing.T) {
	t.Parallel()

	f, err := ParseCSV(strings.NewReader(sample))
	require.NoError(t, err)

	_, err = f.Float64s("Nope")
	require.ErrorIs(t, err, ErrColumnNotFound)

	_, err = f.Float64s("RiskLevel")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.Row)
	assert.Equal(t, "RiskLevel", pe.Column)
}

func TestShortRows(t *testing.T) {
	t.Parallel()

	f, err := ParseCSV(strings.NewReader("a,b\n1\n2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, "", f.Cell(0, 1))
	col, err := f.Column("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "3"}, col)
}

func TestSubsetDropAndRoundTrip(t *testing.T) {
	t.Parallel()

	f, err := ParseCSV(strings.NewReader(sample))
	require.NoError(t, err)

	sub := f.Subset([]int{2, 0}).Drop("BS")
	assert.Equal(t, []string{"Age", "RiskLevel"}, sub.Header)
	assert.Equal(t, [][]string{{"29", "mid risk"}, {"25", "low risk"}}, sub.Rows)

	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	require.NoError(t, WriteCSV(path, sub))
	back, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, sub, back)
}

func TestFromMatrix(t *testing.T) {
	t.Parallel()

	f := FromMatrix([]string{"x", "y"}, [][]float64{{0.5, -1}}, "RiskLevel", []string{"low risk"})
	assert.Equal(t, []string{"x", "y", "RiskLevel"}, f.Header)
	assert.Equal(t, [][]string{{"0.5", "-1", "low risk"}}, f.Rows)
}
