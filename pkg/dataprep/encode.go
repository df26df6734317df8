package dataprep

import "fmt"

// LabelEncoder maps category labels to integer codes in a fixed class order.
type LabelEncoder struct {
	Classes []string
	index   map[string]int
}

// NewLabelEncoder returns an encoder over classes; code i is classes[i].
func NewLabelEncoder(classes []string) *LabelEncoder {
	e := &LabelEncoder{Classes: append([]string(nil), classes...), index: make(map[string]int, len(classes))}
	for i, c := range classes {
		e.index[c] = i
	}

	return e
}

// Encode converts labels to codes. An unknown label is an error naming its row.
func (e *LabelEncoder) Encode(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, v := range labels {
		code, ok := e.index[v]
		if !ok {
			return nil, fmt.Errorf("row %d: unknown label %q", i, v)
		}
		out[i] = code
	}

	return out, nil
}

// Distinct returns the distinct values of data in first-seen order.
func Distinct(data []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range data {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}

	return out
}
