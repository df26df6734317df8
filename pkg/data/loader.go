package data

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrColumnNotFound is returned when a named column is not in the frame header.
var ErrColumnNotFound = errors.New("column not found")

// Frame is a CSV table kept as strings, exactly as read from disk.
type Frame struct {
	Header []string
	Rows   [][]string
}

// ParseError reports a cell that is not a number.
type ParseError struct {
	Row    int // 0-based data row
	Column string
	Value  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d column %q: %q is not numeric", e.Row, e.Column, e.Value)
}

// NewFrame builds a frame over header and rows without copying.
func NewFrame(header []string, rows [][]string) *Frame {
	return &Frame{Header: header, Rows: rows}
}

// ReadCSV loads a CSV file with a header line. Rows may have a different number of fields
// than the header; the validator reports them.
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseCSV(file)
}

// ParseCSV reads a frame from r.
func ParseCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("csv has no header")
	}
	if err != nil {
		return nil, err
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	}

	f := &Frame{Header: header}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		f.Rows = append(f.Rows, rec)
	}

	return f, nil
}

// WriteCSV writes the frame to path, creating parent directories.
func WriteCSV(path string, f *Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := f.Write(file); err != nil {
		file.Close()
		return err
	}

	return file.Close()
}

// Write encodes the frame as CSV.
func (f *Frame) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Header); err != nil {
		return err
	}
	if err := writer.WriteAll(f.Rows); err != nil {
		return err
	}

	return writer.Error()
}

// Len returns the number of data rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Index returns the position of column name, or -1.
func (f *Frame) Index(name string) int {
	for i, h := range f.Header {
		if h == name {
			return i
		}
	}

	return -1
}

// Cell returns the value of column j in row i, or "" for short rows.
func (f *Frame) Cell(i, j int) string {
	if j < len(f.Rows[i]) {
		return f.Rows[i][j]
	}

	return ""
}

// Column returns a copy of the values of column name.
func (f *Frame) Column(name string) ([]string, error) {
	j := f.Index(name)
	if j < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	out := make([]string, len(f.Rows))
	for i := range f.Rows {
		out[i] = f.Cell(i, j)
	}

	return out, nil
}

// Float64s extracts the named columns as a row-major numeric matrix.
func (f *Frame) Float64s(names ...string) ([][]float64, error) {
	idx := make([]int, len(names))
	for k, name := range names {
		idx[k] = f.Index(name)
		if idx[k] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}
	}

	X := make([][]float64, len(f.Rows))
	for i := range f.Rows {
		row := make([]float64, len(idx))
		for k, j := range idx {
			s := strings.TrimSpace(f.Cell(i, j))
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, &ParseError{Row: i, Column: names[k], Value: s}
			}
			row[k] = v
		}
		X[i] = row
	}

	return X, nil
}

// Subset returns a frame with the rows at idx, in that order. Rows are shared.
func (f *Frame) Subset(idx []int) *Frame {
	rows := make([][]string, len(idx))
	for k, i := range idx {
		rows[k] = f.Rows[i]
	}

	return &Frame{Header: f.Header, Rows: rows}
}

// Drop returns a copy of the frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []int
	var header []string
	for j, h := range f.Header {
		if !drop[h] {
			keep = append(keep, j)
			header = append(header, h)
		}
	}
	rows := make([][]string, len(f.Rows))
	for i := range f.Rows {
		row := make([]string, len(keep))
		for k, j := range keep {
			row[k] = f.Cell(i, j)
		}
		rows[i] = row
	}

	return &Frame{Header: header, Rows: rows}
}

// FromMatrix builds a frame of formatted numbers with an optional trailing string column.
func FromMatrix(header []string, X [][]float64, labelName string, labels []string) *Frame {
	h := append([]string(nil), header...)
	if labelName != "" {
		h = append(h, labelName)
	}
	rows := make([][]string, len(X))
	for i, x := range X {
		row := make([]string, 0, len(h))
		for _, v := range x {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if labelName != "" {
			row = append(row, labels[i])
		}
		rows[i] = row
	}

	return &Frame{Header: h, Rows: rows}
}
