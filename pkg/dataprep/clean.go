package dataprep

import (
	"strings"
)

// IsMissing reports whether a raw CSV cell counts as a null.
func IsMissing(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "NA", "NaN", "nan", "null", "NULL":
		return true
	}

	return false
}

// MissingFractions returns, per column, the fraction of rows holding a null. Short rows
// count as null in their missing columns.
func MissingFractions(rows [][]string, cols int) []float64 {
	out := make([]float64, cols)
	if len(rows) == 0 {
		return out
	}
	for _, row := range rows {
		for c := range cols {
			if c >= len(row) || IsMissing(row[c]) {
				out[c]++
			}
		}
	}
	for c := range out {
		out[c] /= float64(len(rows))
	}

	return out
}

// EmptyRows returns the indices of rows where every cell is null.
func EmptyRows(rows [][]string) []int {
	var out []int
	for i, row := range rows {
		empty := true
		for _, v := range row {
			if !IsMissing(v) {
				empty = false
				break
			}
		}
		if empty {
			out = append(out, i)
		}
	}

	return out
}

// DuplicateRows returns the indices of rows that repeat an earlier row exactly. The first
// occurrence is never reported.
func DuplicateRows(rows [][]string) []int {
	seen := make(map[string]struct{}, len(rows))
	var out []int
	for i, row := range rows {
		key := strings.Join(row, "\x1f")
		if _, ok := seen[key]; ok {
			out = append(out, i)
			continue
		}
		seen[key] = struct{}{}
	}

	return out
}

// DropRows returns rows without the given indices, preserving order.
func DropRows(rows [][]string, idx []int) [][]string {
	if len(idx) == 0 {
		return rows
	}
	drop := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		drop[i] = struct{}{}
	}
	out := make([][]string, 0, len(rows)-len(drop))
	for i, row := range rows {
		if _, ok := drop[i]; !ok {
			out = append(out, row)
		}
	}

	return out
}
