// Package figure models static plots built by scripts and renders them to
// PNG with gonum/plot.
package figure

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Kind selects how a layer is drawn.
type Kind string

const (
	Line    Kind = "line"
	Scatter Kind = "scatter"
	Bar     Kind = "bar"
	BarH    Kind = "barh"
	Hist    Kind = "hist"
	Box     Kind = "box"
	Heatmap Kind = "heatmap"
)

// Layer is one plotted series. Which fields matter depends on Kind:
// Line and Scatter use X/Y (or Categories/Y), Bar and BarH use
// Categories/Values, Hist uses Samples/Bins, Box uses Groups with
// Categories as labels and Heatmap uses Matrix with Categories as column
// labels and RowLabels for rows.
type Layer struct {
	Kind       Kind
	Label      string
	X, Y       []float64
	Categories []string
	Values     []float64
	Samples    []float64
	Bins       int
	Groups     [][]float64
	Matrix     [][]float64
	RowLabels  []string
}

// Figure is a single static chart.
type Figure struct {
	Title  string
	XLabel string
	YLabel string
	// Width and Height are in inches; zero means 6x4.
	Width, Height float64
	Legend        bool
	Layers        []Layer
}

// Label returns the title or a generic name.
func (f *Figure) Label() string {
	if f.Title != "" {
		return f.Title
	}
	return "figure"
}

// Add appends a layer.
func (f *Figure) Add(l Layer) { f.Layers = append(f.Layers, l) }

// PNG renders the figure.
func (f *Figure) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.RenderPNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderPNG writes the figure as PNG to w.
func (f *Figure) RenderPNG(w io.Writer) error {
	p, err := f.build()
	if err != nil {
		return err
	}
	width, height := f.Width, f.Height
	if width <= 0 {
		width = 6
	}
	if height <= 0 {
		height = 4
	}
	wt, err := p.WriterTo(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("figure writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func (f *Figure) build() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	p.Y.Label.Text = f.YLabel

	var nominal []string
	bars := 0
	for _, l := range f.Layers {
		if l.Kind == Bar || l.Kind == BarH {
			bars++
		}
	}
	barIdx := 0
	barWidth := vg.Points(20)
	if bars > 1 {
		barWidth = vg.Points(36 / float64(bars))
	}

	for i, l := range f.Layers {
		col := plotutil.Color(i)
		switch l.Kind {
		case Line, Scatter:
			xys := make(plotter.XYs, 0, len(l.Y))
			xs := l.X
			if len(l.Categories) > 0 && len(xs) == 0 {
				nominal = longer(nominal, l.Categories)
				xs = seq(len(l.Y))
			}
			for j := 0; j < len(l.Y) && j < len(xs); j++ {
				if finite(xs[j]) && finite(l.Y[j]) {
					xys = append(xys, plotter.XY{X: xs[j], Y: l.Y[j]})
				}
			}
			if len(xys) == 0 {
				continue
			}
			if l.Kind == Line {
				ln, err := plotter.NewLine(xys)
				if err != nil {
					return nil, fmt.Errorf("line layer: %w", err)
				}
				ln.LineStyle.Color = col
				p.Add(ln)
				if l.Label != "" {
					p.Legend.Add(l.Label, ln)
				}
			} else {
				sc, err := plotter.NewScatter(xys)
				if err != nil {
					return nil, fmt.Errorf("scatter layer: %w", err)
				}
				sc.GlyphStyle.Color = col
				p.Add(sc)
				if l.Label != "" {
					p.Legend.Add(l.Label, sc)
				}
			}
		case Bar, BarH:
			vals := make(plotter.Values, len(l.Values))
			for j, v := range l.Values {
				if finite(v) {
					vals[j] = v
				}
			}
			if len(vals) == 0 {
				continue
			}
			bc, err := plotter.NewBarChart(vals, barWidth)
			if err != nil {
				return nil, fmt.Errorf("bar layer: %w", err)
			}
			bc.Color = col
			bc.LineStyle.Width = 0
			bc.Horizontal = l.Kind == BarH
			if bars > 1 {
				bc.Offset = vg.Length(float64(barIdx)-float64(bars-1)/2) * barWidth
			}
			barIdx++
			p.Add(bc)
			if l.Label != "" {
				p.Legend.Add(l.Label, bc)
			}
			if l.Kind == BarH {
				p.NominalY(l.Categories...)
			} else {
				nominal = longer(nominal, l.Categories)
			}
		case Hist:
			vals := finiteValues(l.Samples)
			if len(vals) == 0 {
				continue
			}
			bins := l.Bins
			if bins <= 0 {
				bins = 10
			}
			h, err := plotter.NewHist(vals, bins)
			if err != nil {
				return nil, fmt.Errorf("hist layer: %w", err)
			}
			h.FillColor = col
			p.Add(h)
			if l.Label != "" {
				p.Legend.Add(l.Label, h)
			}
		case Box:
			w := vg.Points(20)
			for j, g := range l.Groups {
				vals := finiteValues(g)
				if len(vals) == 0 {
					continue
				}
				b, err := plotter.NewBoxPlot(w, float64(j), vals)
				if err != nil {
					return nil, fmt.Errorf("box layer: %w", err)
				}
				b.FillColor = col
				p.Add(b)
			}
			nominal = longer(nominal, l.Categories)
		case Heatmap:
			if len(l.Matrix) == 0 {
				continue
			}
			p.Add(plotter.NewHeatMap(grid(l.Matrix), palette.Heat(12, 1)))
			nominal = longer(nominal, l.Categories)
			if len(l.RowLabels) > 0 {
				p.NominalY(l.RowLabels...)
			}
		default:
			return nil, fmt.Errorf("unknown layer kind %q", l.Kind)
		}
	}
	if len(nominal) > 0 {
		p.NominalX(nominal...)
	}
	if f.Legend || len(f.Layers) > 1 {
		p.Legend.Top = true
	}
	return p, nil
}

// grid adapts a row-major matrix to plotter.GridXYZ.
type grid [][]float64

func (g grid) Dims() (c, r int) {
	if len(g) == 0 {
		return 0, 0
	}
	return len(g[0]), len(g)
}
func (g grid) Z(c, r int) float64 {
	if c < len(g[r]) && finite(g[r][c]) {
		return g[r][c]
	}
	return 0
}
func (g grid) X(c int) float64 { return float64(c) }
func (g grid) Y(r int) float64 { return float64(r) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func finiteValues(in []float64) plotter.Values {
	out := make(plotter.Values, 0, len(in))
	for _, v := range in {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func longer(a, b []string) []string {
	if len(b) > len(a) {
		return b
	}
	return a
}
