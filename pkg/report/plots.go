package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"mhrisk/pkg/model"
	"mhrisk/pkg/stats"
)

// grid is a row-major value table drawn as a heat map, row 0 at the top.
type grid struct {
	z        [][]float64
	min, max float64
}

func newGrid(z [][]float64) grid {
	g := grid{z: z, min: math.Inf(1), max: math.Inf(-1)}
	for _, row := range z {
		for _, v := range row {
			if !math.IsNaN(v) {
				g.min = math.Min(g.min, v)
				g.max = math.Max(g.max, v)
			}
		}
	}
	if math.IsInf(g.min, 1) {
		g.min, g.max = 0, 1
	}
	if g.max <= g.min {
		g.max = g.min + 1
	}
	return g
}

func (g grid) Dims() (c, r int)   { return len(g.z[0]), len(g.z) }
func (g grid) Z(c, r int) float64 { return g.z[len(g.z)-1-r][c] }
func (g grid) X(c int) float64    { return float64(c) }
func (g grid) Y(r int) float64    { return float64(r) }
func (g grid) Min() float64       { return g.min }
func (g grid) Max() float64       { return g.max }

// heatmap draws z with one annotated cell per value. yNames label rows top to bottom.
func heatmap(title string, z [][]float64, xNames, yNames []string, format func(float64) string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title

	g := newGrid(z)
	h := plotter.NewHeatMap(g, palette.Heat(12, 1))
	h.NaN = color.RGBA{R: 235, G: 235, B: 235, A: 255}
	p.Add(h)

	var pts plotter.XYs
	var text []string
	for r, row := range z {
		for c, v := range row {
			if math.IsNaN(v) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(c), Y: float64(len(z) - 1 - r)})
			text = append(text, format(v))
		}
	}
	if len(pts) > 0 {
		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: text})
		if err != nil {
			return nil, err
		}
		for i := range labels.TextStyle {
			labels.TextStyle[i].XAlign = draw.XCenter
			labels.TextStyle[i].YAlign = draw.YCenter
		}
		p.Add(labels)
	}

	reversed := make([]string, len(yNames))
	for i, n := range yNames {
		reversed[len(yNames)-1-i] = n
	}
	p.NominalX(xNames...)
	p.NominalY(reversed...)
	return p, nil
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(w, h, path)
}

// CorrelationHeatmap writes the Pearson correlation matrix of the named columns.
func CorrelationHeatmap(path string, names []string, X [][]float64) error {
	p, err := heatmap("Correlation between features", stats.CorrelationMatrix(X), names, names, func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64)
	})
	if err != nil {
		return err
	}
	return save(p, 7*vg.Inch, 6*vg.Inch, path)
}

// KDE evaluates a Gaussian kernel density estimate of x at each point of at. The bandwidth
// follows Silverman's rule with the IQR guard.
func KDE(x, at []float64) []float64 {
	out := make([]float64, len(at))
	n := float64(len(x))
	if n == 0 {
		return out
	}
	spread := stats.Std(x)
	if iqr := (stats.Percentile(x, 75) - stats.Percentile(x, 25)) / 1.34; iqr > 0 && iqr < spread {
		spread = iqr
	}
	if spread == 0 {
		spread = 1
	}
	h := 0.9 * spread * math.Pow(n, -0.2)
	norm := 1 / (n * h * math.Sqrt(2*math.Pi))
	for k, a := range at {
		s := 0.0
		for _, v := range x {
			u := (a - v) / h
			s += math.Exp(-0.5 * u * u)
		}
		out[k] = s * norm
	}
	return out
}

// FeatureDensities writes a grid of per-feature density curves, one curve per class.
func FeatureDensities(path string, names []string, X [][]float64, labels, classes []string) error {
	const cols = 3
	rows := (len(names) + cols - 1) / cols
	plots := make([][]*plot.Plot, rows)
	for r := range plots {
		plots[r] = make([]*plot.Plot, cols)
	}

	for j, name := range names {
		col := stats.Column(X, j)
		lo, hi := stats.Percentile(col, 0), stats.Percentile(col, 100)
		pad := (hi - lo) * 0.1
		if pad == 0 {
			pad = 1
		}
		at := make([]float64, 100)
		for k := range at {
			at[k] = lo - pad + float64(k)*(hi-lo+2*pad)/float64(len(at)-1)
		}

		p := plot.New()
		p.Title.Text = name
		p.X.Label.Text = name
		p.Y.Label.Text = "density"
		for c, class := range classes {
			var xs []float64
			for i, l := range labels {
				if l == class {
					xs = append(xs, col[i])
				}
			}
			if len(xs) == 0 {
				continue
			}
			dens := KDE(xs, at)
			pts := make(plotter.XYs, len(at))
			for k := range at {
				pts[k] = plotter.XY{X: at[k], Y: dens[k]}
			}
			l, err := plotter.NewLine(pts)
			if err != nil {
				return err
			}
			l.Color = plotutil.Color(c)
			l.Width = vg.Points(1.5)
			p.Add(l)
			p.Legend.Add(class, l)
		}
		p.Legend.Top = true
		plots[j/cols][j%cols] = p
	}

	img := vgimg.New(vg.Length(cols)*4*vg.Inch, vg.Length(rows)*3*vg.Inch)
	dc := draw.New(img)
	t := draw.Tiles{
		Rows: rows, Cols: cols,
		PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, t, dc)
	for r := range plots {
		for c := range plots[r] {
			if plots[r][c] != nil {
				plots[r][c].Draw(canvases[r][c])
			}
		}
	}
	return writePNG(path, img)
}

func writePNG(path string, img *vgimg.Canvas) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// TuningHeatmap writes the mean CV score of the given candidates on a C by gamma grid.
func TuningHeatmap(path string, results []model.CVResult) error {
	if len(results) == 0 {
		return fmt.Errorf("no search results to plot")
	}
	cs := distinct(results, func(r model.CVResult) float64 { return r.C })
	gs := distinct(results, func(r model.CVResult) float64 { return r.Gamma })
	z := make([][]float64, len(cs))
	for i := range z {
		z[i] = make([]float64, len(gs))
		for j := range z[i] {
			z[i][j] = math.NaN()
		}
	}
	for _, r := range results {
		z[sort.SearchFloat64s(cs, r.C)][sort.SearchFloat64s(gs, r.Gamma)] = r.MeanScore
	}

	p, err := heatmap("Mean CV recall (weighted), top candidates", z, formatAll(gs), formatAll(cs), func(v float64) string {
		return strconv.FormatFloat(v, 'f', 3, 64)
	})
	if err != nil {
		return err
	}
	p.X.Label.Text = "gamma"
	p.Y.Label.Text = "C"
	return save(p, 9*vg.Inch, 7*vg.Inch, path)
}

func distinct(results []model.CVResult, key func(model.CVResult) float64) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, r := range results {
		if v := key(r); !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func formatAll(v []float64) []string {
	out := make([]string, len(v))
	for i, x := range v {
		out[i] = strconv.FormatFloat(x, 'g', 3, 64)
	}
	return out
}

// ConfusionMatrixPlot writes the confusion matrix with true classes as rows.
func ConfusionMatrixPlot(path string, cm [][]int, classes []string) error {
	z := make([][]float64, len(cm))
	for i, row := range cm {
		z[i] = make([]float64, len(row))
		for j, v := range row {
			z[i][j] = float64(v)
		}
	}
	p, err := heatmap("Confusion matrix", z, classes, classes, func(v float64) string {
		return strconv.Itoa(int(v))
	})
	if err != nil {
		return err
	}
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "Actual"
	return save(p, 6*vg.Inch, 5*vg.Inch, path)
}

// ROCCurves writes one-vs-rest ROC curves with the chance diagonal.
func ROCCurves(path string, curves []Curve) error {
	p := plot.New()
	p.Title.Text = "ROC curves (one-vs-rest)"
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = 0, 1, 0, 1

	for i, c := range curves {
		pts := make(plotter.XYs, len(c.FPR))
		for k := range c.FPR {
			pts[k] = plotter.XY{X: c.FPR[k], Y: c.TPR[k]}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		l.Color = plotutil.Color(i)
		l.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("%s (AUC = %.2f)", c.Class, c.AUC), l)
	}
	diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return err
	}
	diag.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	diag.Color = color.Gray{Y: 128}
	p.Add(diag)
	p.Legend.Left = false
	p.Legend.Top = false
	return save(p, 6*vg.Inch, 5*vg.Inch, path)
}
