package starlib

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/KaramelBytes/vizloom-cli/internal/figure"
)

// plotData resolves seaborn/plotly style arguments: a column name looked up
// in data=, or the values themselves.
type plotData struct {
	frame *DataFrame
	a     callArgs
}

func newPlotData(a callArgs) plotData {
	df, _ := a.get("data", 0).(*DataFrame)
	if df == nil {
		df, _ = a.get("data_frame", 0).(*DataFrame)
	}
	return plotData{frame: df, a: a}
}

// column returns the values for an argument plus a display name. A missing
// argument yields nil values and no error.
func (p plotData) column(name string) ([]starlark.Value, string, error) {
	v := p.a.get(name, -1)
	if v == nil || v == starlark.None {
		return nil, "", nil
	}
	if s, ok := v.(starlark.String); ok {
		if p.frame == nil {
			return nil, "", fmt.Errorf("%s: %s=%q needs data=", p.a.fn, name, string(s))
		}
		vals, ok := p.frame.data[string(s)]
		if !ok {
			return nil, "", fmt.Errorf("%s: column %q not found", p.a.fn, string(s))
		}
		return vals, string(s), nil
	}
	vals, err := toValues(v)
	if err != nil {
		return nil, "", err
	}
	label := ""
	if s, ok := v.(*Series); ok {
		label = s.name
	}
	return vals, label, nil
}

// series returns data= as a bare sequence when it is not a frame, for calls
// such as sns.histplot(df["x"]).
func (p plotData) series() []starlark.Value {
	v := p.a.get("data", 0)
	if v == nil || p.frame != nil {
		return nil
	}
	vals, _ := toValues(v)
	return vals
}

func (e *Env) axesFor(a callArgs) *Axes {
	if ax, ok := a.get("ax", -1).(*Axes); ok {
		e.Figures.Activate(ax.fig)
		return ax
	}
	return e.currentAxes()
}

// orderedGroups buckets row positions by the display label of keys in order
// of first appearance.
func orderedGroups(keys []starlark.Value) ([]string, map[string][]int) {
	var order []string
	rows := map[string][]int{}
	for i, k := range keys {
		if isNA(k) {
			continue
		}
		l := display(k)
		if _, ok := rows[l]; !ok {
			order = append(order, l)
		}
		rows[l] = append(rows[l], i)
	}
	return order, rows
}

func meanAt(vals []starlark.Value, rows []int) float64 {
	xs, _ := numericValues(pick(vals, rows))
	return mean(xs)
}

func (e *Env) snsBar(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	p := newPlotData(a)
	xs, xname, err := p.column("x")
	if err != nil {
		return nil, err
	}
	ys, yname, err := p.column("y")
	if err != nil {
		return nil, err
	}
	if xs == nil || ys == nil {
		return nil, fmt.Errorf("barplot: need x and y")
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("barplot: x and y lengths differ")
	}
	hue, _, err := p.column("hue")
	if err != nil {
		return nil, err
	}
	cats, _ := orderedGroups(xs)
	ax := e.axesFor(a)
	series := [][]int{seqInts(0, len(xs))}
	names := []string{""}
	if hue != nil {
		var hrows map[string][]int
		names, hrows = orderedGroups(hue)
		series = series[:0]
		for _, n := range names {
			series = append(series, hrows[n])
		}
	}
	for si, rows := range series {
		byCat := map[string][]int{}
		for _, r := range rows {
			if !isNA(xs[r]) {
				l := display(xs[r])
				byCat[l] = append(byCat[l], r)
			}
		}
		vals := make([]float64, len(cats))
		for i, c := range cats {
			vals[i] = meanAt(ys, byCat[c])
		}
		ax.fig.Add(figure.Layer{Kind: figure.Bar, Label: names[si], Categories: cats, Values: vals})
	}
	setDefaultLabels(ax.fig, xname, yname)
	return ax, nil
}

func setDefaultLabels(f *figure.Figure, x, y string) {
	if f.XLabel == "" {
		f.XLabel = x
	}
	if f.YLabel == "" {
		f.YLabel = y
	}
}

func (e *Env) snsCount(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	p := newPlotData(a)
	xs, xname, err := p.column("x")
	if err != nil {
		return nil, err
	}
	if xs == nil {
		if xs = p.series(); xs == nil {
			return nil, fmt.Errorf("countplot: need x")
		}
	}
	cats, rows := orderedGroups(xs)
	vals := make([]float64, len(cats))
	for i, c := range cats {
		vals[i] = float64(len(rows[c]))
	}
	ax := e.axesFor(a)
	ax.fig.Add(figure.Layer{Kind: figure.Bar, Categories: cats, Values: vals})
	setDefaultLabels(ax.fig, xname, "count")
	return ax, nil
}

func (e *Env) snsHist(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	p := newPlotData(a)
	xs, xname, err := p.column("x")
	if err != nil {
		return nil, err
	}
	if xs == nil {
		if xs = p.series(); xs == nil {
			return nil, fmt.Errorf("%s: need x", a.fn)
		}
	}
	bins, err := a.integer("bins", -1, 10)
	if err != nil {
		return nil, err
	}
	ax := e.axesFor(a)
	ax.fig.Add(figure.Layer{Kind: figure.Hist, Samples: floats(xs), Bins: bins})
	setDefaultLabels(ax.fig, xname, "Count")
	return ax, nil
}

func (e *Env) snsBox(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	p := newPlotData(a)
	xs, xname, err := p.column("x")
	if err != nil {
		return nil, err
	}
	ys, yname, err := p.column("y")
	if err != nil {
		return nil, err
	}
	ax := e.axesFor(a)
	switch {
	case xs != nil && ys != nil:
		cats, rows := orderedGroups(xs)
		groups := make([][]float64, len(cats))
		for i, c := range cats {
			groups[i] = floats(pick(ys, rows[c]))
		}
		ax.fig.Add(figure.Layer{Kind: figure.Box, Categories: cats, Groups: groups})
		setDefaultLabels(ax.fig, xname, yname)
	case ys != nil || xs != nil:
		vals, name := ys, yname
		if vals == nil {
			vals, name = xs, xname
		}
		ax.fig.Add(figure.Layer{Kind: figure.Box, Categories: []string{name}, Groups: [][]float64{floats(vals)}})
	default:
		if df := p.frame; df != nil {
			cols := df.numericCols()
			groups := make([][]float64, len(cols))
			for i, c := range cols {
				groups[i] = floats(df.data[c])
			}
			ax.fig.Add(figure.Layer{Kind: figure.Box, Categories: cols, Groups: groups})
		} else if vals := p.series(); vals != nil {
			ax.fig.Add(figure.Layer{Kind: figure.Box, Groups: [][]float64{floats(vals)}})
		} else {
			return nil, fmt.Errorf("%s: need data", a.fn)
		}
	}
	return ax, nil
}

func (e *Env) snsXY(kind figure.Kind) methodFunc {
	return func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
		p := newPlotData(a)
		xs, xname, err := p.column("x")
		if err != nil {
			return nil, err
		}
		ys, yname, err := p.column("y")
		if err != nil {
			return nil, err
		}
		if xs == nil || ys == nil {
			return nil, fmt.Errorf("%s: need x and y", a.fn)
		}
		if len(xs) != len(ys) {
			return nil, fmt.Errorf("%s: x and y lengths differ", a.fn)
		}
		hue, _, err := p.column("hue")
		if err != nil {
			return nil, err
		}
		ax := e.axesFor(a)
		groups := map[string][]int{"": seqInts(0, len(xs))}
		names := []string{""}
		if hue != nil {
			names, groups = orderedGroups(hue)
		}
		for _, n := range names {
			rows := groups[n]
			var layer figure.Layer
			if kind == figure.Line {
				layer = lineByX(xs, ys, rows)
			} else {
				layer, err = xyLayer(kind, listOf(pick(xs, rows)), listOf(pick(ys, rows)))
				if err != nil {
					return nil, err
				}
			}
			layer.Label = n
			ax.fig.Add(layer)
		}
		setDefaultLabels(ax.fig, xname, yname)
		return ax, nil
	}
}

// lineByX averages y for each distinct x and orders the points by x.
func lineByX(xs, ys []starlark.Value, rows []int) figure.Layer {
	cats, byX := orderedGroups(pick(xs, rows))
	firsts := make([]starlark.Value, len(cats))
	sub := pick(xs, rows)
	for i, c := range cats {
		firsts[i] = sub[byX[c][0]]
	}
	order := stableOrder(len(cats), func(i, j int) bool { return compare(firsts[i], firsts[j]) < 0 })
	subY := pick(ys, rows)
	l := figure.Layer{Kind: figure.Line}
	numeric := allNumeric(firsts)
	for _, i := range order {
		l.Y = append(l.Y, meanAt(subY, byX[cats[i]]))
		if numeric {
			f, _ := number(firsts[i])
			l.X = append(l.X, f)
		} else {
			l.Categories = append(l.Categories, cats[i])
		}
	}
	return l
}

func (e *Env) snsHeatmap(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	df, ok := a.get("data", 0).(*DataFrame)
	if !ok {
		return nil, fmt.Errorf("heatmap: data must be a DataFrame")
	}
	matrix := make([][]float64, df.rows())
	for i := range matrix {
		row := make([]float64, len(df.cols))
		for j, c := range df.cols {
			f, ok := number(df.data[c][i])
			if !ok {
				f = 0
			}
			row[j] = f
		}
		matrix[i] = row
	}
	ax := e.axesFor(a)
	ax.fig.Add(figure.Layer{Kind: figure.Heatmap, Categories: df.cols, RowLabels: labels(df.labels()), Matrix: matrix})
	return ax, nil
}

func (e *Env) snsModule() *starlarkstruct.Module {
	members := starlark.StringDict{
		"barplot":     builtin("barplot", e.snsBar),
		"countplot":   builtin("countplot", e.snsCount),
		"histplot":    builtin("histplot", e.snsHist),
		"distplot":    builtin("distplot", e.snsHist),
		"kdeplot":     builtin("kdeplot", e.snsHist),
		"boxplot":     builtin("boxplot", e.snsBox),
		"violinplot":  builtin("violinplot", e.snsBox),
		"scatterplot": builtin("scatterplot", e.snsXY(figure.Scatter)),
		"regplot":     builtin("regplot", e.snsXY(figure.Scatter)),
		"stripplot":   builtin("stripplot", e.snsXY(figure.Scatter)),
		"lineplot":    builtin("lineplot", e.snsXY(figure.Line)),
		"heatmap":     builtin("heatmap", e.snsHeatmap),
		"color_palette": builtin("color_palette", func(*starlark.Thread, callArgs) (starlark.Value, error) {
			return starlark.NewList(nil), nil
		}),
	}
	for _, n := range []string{"set", "set_theme", "set_style", "set_palette", "set_context", "despine"} {
		members[n] = noop(n, nil)
	}
	return &starlarkstruct.Module{Name: "sns", Members: members}
}
