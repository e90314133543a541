// Package chart builds interactive HTML charts with go-echarts.
package chart

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

type Kind string

const (
	Bar       Kind = "bar"
	Line      Kind = "line"
	Scatter   Kind = "scatter"
	Pie       Kind = "pie"
	Histogram Kind = "histogram"
	Box       Kind = "box"
)

// Series is one named trace. Bar, Line and Pie use Values aligned with
// Chart.Categories; Scatter uses Points; Histogram uses Samples; Box uses
// Groups aligned with Chart.Categories.
type Series struct {
	Name    string
	Values  []float64
	Points  [][2]float64
	Samples []float64
	Groups  [][]float64
}

// Chart is a chart description independent of the rendering library.
type Chart struct {
	Kind       Kind
	Title      string
	XTitle     string
	YTitle     string
	Categories []string
	Series     []Series
	Bins       int
}

// HTML renders a standalone page for the chart.
func (c *Chart) HTML() (string, error) {
	var buf bytes.Buffer
	if err := c.render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (c *Chart) globals() []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px", PageTitle: c.pageTitle()}),
		charts.WithTitleOpts(opts.Title{Title: c.Title}),
	}
}

func (c *Chart) pageTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "chart"
}

func (c *Chart) axes(xType string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithXAxisOpts(opts.XAxis{Name: c.XTitle, Type: xType}),
		charts.WithYAxisOpts(opts.YAxis{Name: c.YTitle}),
	}
}

func (c *Chart) render(buf *bytes.Buffer) error {
	switch c.Kind {
	case Bar, Histogram:
		cats, series := c.Categories, c.Series
		if c.Kind == Histogram {
			cats, series = c.binned()
		}
		b := charts.NewBar()
		b.SetGlobalOptions(append(c.globals(), c.axes("category")...)...)
		b.SetXAxis(cats)
		for _, s := range series {
			data := make([]opts.BarData, len(s.Values))
			for i, v := range s.Values {
				data[i] = opts.BarData{Value: jsonValue(v)}
			}
			b.AddSeries(s.Name, data)
		}
		return b.Render(buf)
	case Line:
		l := charts.NewLine()
		l.SetGlobalOptions(append(c.globals(), c.axes("category")...)...)
		l.SetXAxis(c.Categories)
		for _, s := range c.Series {
			data := make([]opts.LineData, len(s.Values))
			for i, v := range s.Values {
				data[i] = opts.LineData{Value: jsonValue(v)}
			}
			l.AddSeries(s.Name, data)
		}
		return l.Render(buf)
	case Scatter:
		sc := charts.NewScatter()
		sc.SetGlobalOptions(append(c.globals(), c.axes("value")...)...)
		for _, s := range c.Series {
			data := make([]opts.ScatterData, 0, len(s.Points))
			for _, p := range s.Points {
				if finite(p[0]) && finite(p[1]) {
					data = append(data, opts.ScatterData{Value: []interface{}{p[0], p[1]}})
				}
			}
			sc.AddSeries(s.Name, data)
		}
		return sc.Render(buf)
	case Pie:
		p := charts.NewPie()
		p.SetGlobalOptions(c.globals()...)
		for _, s := range c.Series {
			data := make([]opts.PieData, 0, len(s.Values))
			for i, v := range s.Values {
				if i < len(c.Categories) && finite(v) {
					data = append(data, opts.PieData{Name: c.Categories[i], Value: v})
				}
			}
			p.AddSeries(s.Name, data)
		}
		return p.Render(buf)
	case Box:
		bp := charts.NewBoxPlot()
		bp.SetGlobalOptions(append(c.globals(), c.axes("category")...)...)
		bp.SetXAxis(c.Categories)
		for _, s := range c.Series {
			data := make([]opts.BoxPlotData, len(s.Groups))
			for i, g := range s.Groups {
				data[i] = opts.BoxPlotData{Value: fiveNumber(g)}
			}
			bp.AddSeries(s.Name, data)
		}
		return bp.Render(buf)
	default:
		return fmt.Errorf("unknown chart kind %q", c.Kind)
	}
}

// binned turns histogram samples into equal-width bar buckets shared by all
// series.
func (c *Chart) binned() ([]string, []Series) {
	bins := c.Bins
	if bins <= 0 {
		bins = 10
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range c.Series {
		for _, v := range s.Samples {
			if finite(v) {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
		}
	}
	if math.IsInf(lo, 1) {
		return nil, nil
	}
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(bins)
	cats := make([]string, bins)
	for i := range cats {
		cats[i] = fmt.Sprintf("%.4g-%.4g", lo+float64(i)*width, lo+float64(i+1)*width)
	}
	out := make([]Series, len(c.Series))
	for si, s := range c.Series {
		counts := make([]float64, bins)
		for _, v := range s.Samples {
			if !finite(v) {
				continue
			}
			i := int((v - lo) / width)
			if i >= bins {
				i = bins - 1
			}
			counts[i]++
		}
		out[si] = Series{Name: s.Name, Values: counts}
	}
	return cats, out
}

func fiveNumber(vals []float64) []float64 {
	xs := make([]float64, 0, len(vals))
	for _, v := range vals {
		if finite(v) {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		return []float64{0, 0, 0, 0, 0}
	}
	sort.Float64s(xs)
	q := func(p float64) float64 {
		pos := p * float64(len(xs)-1)
		i := int(pos)
		if i+1 >= len(xs) {
			return xs[len(xs)-1]
		}
		return xs[i] + (pos-float64(i))*(xs[i+1]-xs[i])
	}
	return []float64{xs[0], q(0.25), q(0.5), q(0.75), xs[len(xs)-1]}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// jsonValue maps non-finite values to "-", which echarts treats as a gap.
func jsonValue(v float64) interface{} {
	if !finite(v) {
		return "-"
	}
	return v
}
