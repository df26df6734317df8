package pipeline

// Kind is the value type of a schema column.
type Kind string

const (
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindCategory Kind = "category"
)

// Column describes one dataset column and its accepted domain. Min and Max bound numeric
// kinds inclusively; Categories lists the values of a category column.
type Column struct {
	Name       string
	Kind       Kind
	Min, Max   float64
	Categories []string
	Nullable   bool
}

// Numeric reports whether the column holds numbers.
func (c Column) Numeric() bool { return c.Kind == KindInt || c.Kind == KindFloat }

// Schema describes the structure of a dataset.
type Schema struct {
	Columns []Column
	Label   string // name of the category column holding the target
}

// MaternalHealthSchema is the layout of the UCI Maternal Health Risk dataset. BS is blood
// glucose in mmol/L, BodyTemp is in Fahrenheit. Nulls are accepted up to the validator's
// missingness threshold; rows holding one are dropped from the cleaned data.
var MaternalHealthSchema = Schema{
	Columns: []Column{
		{Name: "Age", Kind: KindInt, Min: 10, Max: 65, Nullable: true},
		{Name: "SystolicBP", Kind: KindInt, Min: 60, Max: 200, Nullable: true},
		{Name: "DiastolicBP", Kind: KindInt, Min: 40, Max: 140, Nullable: true},
		{Name: "BS", Kind: KindFloat, Min: 1, Max: 25, Nullable: true},
		{Name: "BodyTemp", Kind: KindFloat, Min: 95, Max: 105, Nullable: true},
		{Name: "HeartRate", Kind: KindInt, Min: 50, Max: 150, Nullable: true},
		{Name: "RiskLevel", Kind: KindCategory, Categories: []string{"low risk", "mid risk", "high risk"}, Nullable: true},
	},
	Label: "RiskLevel",
}

// Names returns every column name in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}

	return out
}

// FeatureNames returns the numeric columns other than the label.
func (s Schema) FeatureNames() []string {
	var out []string
	for _, c := range s.Columns {
		if c.Name != s.Label && c.Numeric() {
			out = append(out, c.Name)
		}
	}

	return out
}

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}

	return Column{}, false
}

// Classes returns the label categories in their declared (ordinal) order.
func (s Schema) Classes() []string {
	c, ok := s.Column(s.Label)
	if !ok {
		return nil
	}

	return append([]string(nil), c.Categories...)
}
