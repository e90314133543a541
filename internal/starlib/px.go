package starlib

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/KaramelBytes/vizloom-cli/internal/chart"
)

// Chart is an interactive chart value produced by the px module.
type Chart struct {
	c *chart.Chart
}

func (c *Chart) String() string        { return fmt.Sprintf("<Figure %s %q>", c.c.Kind, c.c.Title) }
func (c *Chart) Type() string          { return "Figure" }
func (c *Chart) Freeze()               {}
func (c *Chart) Truth() starlark.Bool  { return true }
func (c *Chart) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Figure") }

// ToHTML renders the chart as a standalone HTML page.
func (c *Chart) ToHTML() (string, error) { return c.c.HTML() }

func (c *Chart) Attr(name string) (starlark.Value, error) {
	switch name {
	case "to_html":
		return builtin(name, func(*starlark.Thread, callArgs) (starlark.Value, error) {
			html, err := c.ToHTML()
			if err != nil {
				return nil, err
			}
			return starlark.String(html), nil
		}), nil
	case "update_layout":
		return builtin(name, func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			if t, err := a.str("title", -1, ""); err == nil && t != "" {
				c.c.Title = t
			}
			if t, err := a.str("title_text", -1, ""); err == nil && t != "" {
				c.c.Title = t
			}
			if t, err := a.str("xaxis_title", -1, ""); err == nil && t != "" {
				c.c.XTitle = t
			}
			if t, err := a.str("yaxis_title", -1, ""); err == nil && t != "" {
				c.c.YTitle = t
			}
			return c, nil
		}), nil
	case "update_traces", "update_xaxes", "update_yaxes":
		return noop(name, c), nil
	case "show", "write_html", "write_image":
		return noop(name, nil), nil
	}
	return nil, nil
}

func (c *Chart) AttrNames() []string {
	return []string{"show", "to_html", "update_layout", "update_traces", "update_xaxes", "update_yaxes", "write_html", "write_image"}
}

// pxInputs resolves x, y and color for plotly express calls, including
// px.bar(series) where the index becomes x.
func pxInputs(a callArgs) (p plotData, xs, ys, color []starlark.Value, xname, yname string, err error) {
	p = newPlotData(a)
	if s, ok := a.get("data_frame", 0).(*Series); ok {
		return p, s.labels(), s.values, nil, "index", s.name, nil
	}
	if xs, xname, err = p.column("x"); err != nil {
		return
	}
	if ys, yname, err = p.column("y"); err != nil {
		return
	}
	color, _, err = p.column("color")
	return
}

// categorySeries groups rows by x (and color) and reduces y with agg.
func categorySeries(xs, ys, color []starlark.Value, agg string) ([]string, []chart.Series, error) {
	cats, _ := orderedGroups(xs)
	names := []string{""}
	groups := map[string][]int{"": seqInts(0, len(xs))}
	if color != nil {
		names, groups = orderedGroups(color)
	}
	var out []chart.Series
	for _, n := range names {
		byCat := map[string][]int{}
		for _, r := range groups[n] {
			if !isNA(xs[r]) {
				l := display(xs[r])
				byCat[l] = append(byCat[l], r)
			}
		}
		vals := make([]float64, len(cats))
		for i, c := range cats {
			rows := byCat[c]
			if ys == nil {
				vals[i] = float64(len(rows))
				continue
			}
			v, err := aggregate(agg, pick(ys, rows))
			if err != nil {
				return nil, nil, err
			}
			f, ok := number(v)
			if !ok || len(rows) == 0 {
				vals[i] = nan64
				continue
			}
			vals[i] = f
		}
		out = append(out, chart.Series{Name: n, Values: vals})
	}
	return cats, out, nil
}

var nan64 = float64(nan)

func (e *Env) pxCategorical(kind chart.Kind, agg string) methodFunc {
	return func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
		_, xs, ys, color, xname, yname, err := pxInputs(a)
		if err != nil {
			return nil, err
		}
		if xs == nil {
			return nil, fmt.Errorf("%s: need x", a.fn)
		}
		if ys != nil && len(ys) != len(xs) {
			return nil, fmt.Errorf("%s: x and y lengths differ", a.fn)
		}
		cats, series, err := categorySeries(xs, ys, color, agg)
		if err != nil {
			return nil, err
		}
		if ys == nil {
			yname = "count"
		}
		for i := range series {
			if series[i].Name == "" {
				series[i].Name = yname
			}
		}
		return e.newChart(a, &chart.Chart{Kind: kind, XTitle: xname, YTitle: yname, Categories: cats, Series: series}), nil
	}
}

func (e *Env) newChart(a callArgs, c *chart.Chart) *Chart {
	c.Title, _ = a.str("title", -1, "")
	return &Chart{c: c}
}

func (e *Env) pxScatter(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	_, xs, ys, color, xname, yname, err := pxInputs(a)
	if err != nil {
		return nil, err
	}
	if xs == nil || ys == nil || len(xs) != len(ys) {
		return nil, fmt.Errorf("scatter: need x and y of equal length")
	}
	names := []string{yname}
	groups := map[string][]int{yname: seqInts(0, len(xs))}
	if color != nil {
		names, groups = orderedGroups(color)
	}
	var series []chart.Series
	for _, n := range names {
		fx, fy := floats(pick(xs, groups[n])), floats(pick(ys, groups[n]))
		pts := make([][2]float64, len(fx))
		for i := range fx {
			pts[i] = [2]float64{fx[i], fy[i]}
		}
		series = append(series, chart.Series{Name: n, Points: pts})
	}
	return e.newChart(a, &chart.Chart{Kind: chart.Scatter, XTitle: xname, YTitle: yname, Series: series}), nil
}

func (e *Env) pxHistogram(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	_, xs, _, color, xname, _, err := pxInputs(a)
	if err != nil {
		return nil, err
	}
	if xs == nil {
		return nil, fmt.Errorf("histogram: need x")
	}
	bins, err := a.integer("nbins", -1, 10)
	if err != nil {
		return nil, err
	}
	names := []string{xname}
	groups := map[string][]int{xname: seqInts(0, len(xs))}
	if color != nil {
		names, groups = orderedGroups(color)
	}
	var series []chart.Series
	for _, n := range names {
		series = append(series, chart.Series{Name: n, Samples: floats(pick(xs, groups[n]))})
	}
	return e.newChart(a, &chart.Chart{Kind: chart.Histogram, XTitle: xname, YTitle: "count", Bins: bins, Series: series}), nil
}

func (e *Env) pxPie(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	p := newPlotData(a)
	names, _, err := p.column("names")
	if err != nil {
		return nil, err
	}
	values, vname, err := p.column("values")
	if err != nil {
		return nil, err
	}
	if names == nil {
		return nil, fmt.Errorf("pie: need names")
	}
	if values != nil && len(values) != len(names) {
		return nil, fmt.Errorf("pie: names and values lengths differ")
	}
	cats, series, err := categorySeries(names, values, nil, "sum")
	if err != nil {
		return nil, err
	}
	if vname == "" {
		vname = "count"
	}
	series[0].Name = vname
	return e.newChart(a, &chart.Chart{Kind: chart.Pie, Categories: cats, Series: series}), nil
}

func (e *Env) pxBox(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	_, xs, ys, _, xname, yname, err := pxInputs(a)
	if err != nil {
		return nil, err
	}
	if ys == nil {
		ys, yname, xs, xname = xs, xname, nil, ""
	}
	if ys == nil {
		return nil, fmt.Errorf("box: need y")
	}
	c := &chart.Chart{Kind: chart.Box, XTitle: xname, YTitle: yname}
	if xs == nil {
		c.Categories = []string{yname}
		c.Series = []chart.Series{{Name: yname, Groups: [][]float64{floats(ys)}}}
	} else {
		cats, rows := orderedGroups(xs)
		groups := make([][]float64, len(cats))
		for i, cat := range cats {
			groups[i] = floats(pick(ys, rows[cat]))
		}
		c.Categories = cats
		c.Series = []chart.Series{{Name: yname, Groups: groups}}
	}
	return e.newChart(a, c), nil
}

func (e *Env) pxModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{Name: "px", Members: starlark.StringDict{
		"bar":       builtin("bar", e.pxCategorical(chart.Bar, "sum")),
		"line":      builtin("line", e.pxCategorical(chart.Line, "mean")),
		"scatter":   builtin("scatter", e.pxScatter),
		"histogram": builtin("histogram", e.pxHistogram),
		"pie":       builtin("pie", e.pxPie),
		"box":       builtin("box", e.pxBox),
	}}
}
