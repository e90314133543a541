package starlib

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/KaramelBytes/vizloom-cli/internal/figure"
)

// Axes draws onto one figure.
type Axes struct {
	env *Env
	fig *figure.Figure
}

func (ax *Axes) String() string        { return fmt.Sprintf("<Axes %q>", ax.fig.Title) }
func (ax *Axes) Type() string          { return "Axes" }
func (ax *Axes) Freeze()               {}
func (ax *Axes) Truth() starlark.Bool  { return true }
func (ax *Axes) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Axes") }

// axesNoops are accepted for compatibility and have no visual effect.
var axesNoops = []string{
	"grid", "tick_params", "set_xticks", "set_yticks", "set_xticklabels", "set_yticklabels",
	"axhline", "axvline", "text", "annotate", "set_xlim", "set_ylim", "invert_yaxis",
	"set_axisbelow", "spines", "margins", "set_aspect", "bar_label", "axis", "set_facecolor",
}

type axesMethod func(ax *Axes, a callArgs) (starlark.Value, error)

var axesMethods map[string]axesMethod

func init() {
	axesMethods = map[string]axesMethod{
		"bar":     func(ax *Axes, a callArgs) (starlark.Value, error) { return ax.none(ax.bar(a, figure.Bar, "height")) },
		"barh":    func(ax *Axes, a callArgs) (starlark.Value, error) { return ax.none(ax.bar(a, figure.BarH, "width")) },
		"plot":    func(ax *Axes, a callArgs) (starlark.Value, error) { return ax.none(ax.xy(a, figure.Line)) },
		"scatter": func(ax *Axes, a callArgs) (starlark.Value, error) { return ax.none(ax.xy(a, figure.Scatter)) },
		"hist":    func(ax *Axes, a callArgs) (starlark.Value, error) { return ax.none(ax.hist(a)) },
		"boxplot": func(ax *Axes, a callArgs) (starlark.Value, error) { return ax.none(ax.boxplot(a)) },
		"pie":     func(ax *Axes, a callArgs) (starlark.Value, error) { return ax.none(ax.pie(a)) },
		"set_title": func(ax *Axes, a callArgs) (starlark.Value, error) {
			return ax.none(ax.setText(a, &ax.fig.Title))
		},
		"set_xlabel": func(ax *Axes, a callArgs) (starlark.Value, error) {
			return ax.none(ax.setText(a, &ax.fig.XLabel))
		},
		"set_ylabel": func(ax *Axes, a callArgs) (starlark.Value, error) {
			return ax.none(ax.setText(a, &ax.fig.YLabel))
		},
		"set": func(ax *Axes, a callArgs) (starlark.Value, error) {
			for kw, dst := range map[string]*string{"title": &ax.fig.Title, "xlabel": &ax.fig.XLabel, "ylabel": &ax.fig.YLabel} {
				if s, err := a.str(kw, -1, *dst); err == nil {
					*dst = s
				}
			}
			return starlark.None, nil
		},
		"legend": func(ax *Axes, _ callArgs) (starlark.Value, error) {
			ax.fig.Legend = true
			return starlark.None, nil
		},
		"twinx": func(ax *Axes, _ callArgs) (starlark.Value, error) { return ax, nil },
		"twiny": func(ax *Axes, _ callArgs) (starlark.Value, error) { return ax, nil },
		"get_figure": func(ax *Axes, _ callArgs) (starlark.Value, error) {
			return &FigureValue{env: ax.env, fig: ax.fig}, nil
		},
	}
}

func (ax *Axes) none(err error) (starlark.Value, error) {
	if err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (ax *Axes) Attr(name string) (starlark.Value, error) {
	if name == "figure" {
		return &FigureValue{env: ax.env, fig: ax.fig}, nil
	}
	if m, ok := axesMethods[name]; ok {
		return builtin(name, func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			ax.env.Figures.Activate(ax.fig)
			return m(ax, a)
		}), nil
	}
	for _, n := range axesNoops {
		if n == name {
			return noop(name, nil), nil
		}
	}
	return nil, nil
}

func (ax *Axes) AttrNames() []string {
	names := append([]string{"figure"}, axesNoops...)
	for k := range axesMethods {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (ax *Axes) setText(a callArgs, dst *string) error {
	s, err := a.str("label", 0, "")
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

func (ax *Axes) bar(a callArgs, kind figure.Kind, heightKw string) error {
	xv, hv := a.get("x", 0), a.get(heightKw, 1)
	if kind == figure.BarH && a.get("y", -1) != nil {
		xv = a.get("y", -1)
	}
	if xv == nil || hv == nil {
		return fmt.Errorf("%s: need categories and %s", a.fn, heightKw)
	}
	xs, err := toValues(xv)
	if err != nil {
		return err
	}
	hs, err := toValues(hv)
	if err != nil {
		return err
	}
	label, _ := a.str("label", -1, "")
	ax.fig.Add(figure.Layer{Kind: kind, Label: label, Categories: labels(xs), Values: floats(hs)})
	return nil
}

// xy adds a line or scatter layer from plot(y), plot(x, y) or x=/y=
// keywords. Non-numeric x values become categorical ticks.
func (ax *Axes) xy(a callArgs, kind figure.Kind) error {
	xv, yv := a.get("x", 0), a.get("y", 1)
	if _, isStr := yv.(starlark.String); isStr && kind == figure.Line {
		yv = nil
	}
	if yv == nil {
		if xv == nil {
			return fmt.Errorf("%s: missing data", a.fn)
		}
		yv = xv
		if s, ok := xv.(*Series); ok {
			xv = listOf(s.labels())
		} else {
			ys, err := toValues(yv)
			if err != nil {
				return err
			}
			xv = listOf(rangeIndex(len(ys)))
		}
	}
	layer, err := xyLayer(kind, xv, yv)
	if err != nil {
		return err
	}
	layer.Label, _ = a.str("label", -1, "")
	ax.fig.Add(layer)
	return nil
}

func xyLayer(kind figure.Kind, xv, yv starlark.Value) (figure.Layer, error) {
	xs, err := toValues(xv)
	if err != nil {
		return figure.Layer{}, err
	}
	ys, err := toValues(yv)
	if err != nil {
		return figure.Layer{}, err
	}
	if len(xs) != len(ys) {
		return figure.Layer{}, fmt.Errorf("x and y must have the same length, got %d and %d", len(xs), len(ys))
	}
	l := figure.Layer{Kind: kind, Y: floats(ys)}
	if allNumeric(xs) {
		l.X = floats(xs)
	} else {
		l.Categories = labels(xs)
	}
	return l, nil
}

func allNumeric(vals []starlark.Value) bool {
	for _, v := range vals {
		if !isNumeric(v) && !isNA(v) {
			return false
		}
	}
	return true
}

func (ax *Axes) hist(a callArgs) error {
	v := a.get("x", 0)
	if v == nil {
		return fmt.Errorf("hist: missing data")
	}
	xs, err := toValues(v)
	if err != nil {
		return err
	}
	bins, err := a.integer("bins", 1, 10)
	if err != nil {
		return err
	}
	label, _ := a.str("label", -1, "")
	ax.fig.Add(figure.Layer{Kind: figure.Hist, Label: label, Samples: floats(xs), Bins: bins})
	return nil
}

func (ax *Axes) boxplot(a callArgs) error {
	v := a.get("x", 0)
	if v == nil {
		return fmt.Errorf("boxplot: missing data")
	}
	groups, err := nestedFloats(v)
	if err != nil {
		return err
	}
	names, _ := a.strs("labels", -1)
	if len(names) == 0 {
		names, _ = a.strs("tick_labels", -1)
	}
	for len(names) < len(groups) {
		names = append(names, fmt.Sprint(len(names)+1))
	}
	ax.fig.Add(figure.Layer{Kind: figure.Box, Categories: names, Groups: groups})
	return nil
}

// nestedFloats accepts one sequence or a sequence of sequences.
func nestedFloats(v starlark.Value) ([][]float64, error) {
	vals, err := toValues(v)
	if err != nil {
		return nil, err
	}
	if len(vals) > 0 {
		if _, ok := vals[0].(starlark.Iterable); ok {
			if _, isStr := vals[0].(starlark.String); !isStr {
				out := make([][]float64, len(vals))
				for i, g := range vals {
					inner, err := toValues(g)
					if err != nil {
						return nil, err
					}
					out[i] = floats(inner)
				}
				return out, nil
			}
		}
	}
	return [][]float64{floats(vals)}, nil
}

// pie is drawn as a bar chart of shares; gonum has no pie plotter.
func (ax *Axes) pie(a callArgs) error {
	v := a.get("x", 0)
	if v == nil {
		return fmt.Errorf("pie: missing data")
	}
	xs, err := toValues(v)
	if err != nil {
		return err
	}
	names, _ := a.strs("labels", -1)
	if len(names) == 0 {
		if s, ok := v.(*Series); ok {
			names = labels(s.labels())
		}
	}
	for len(names) < len(xs) {
		names = append(names, fmt.Sprint(len(names)))
	}
	ax.fig.Add(figure.Layer{Kind: figure.Bar, Categories: names[:len(xs)], Values: floats(xs)})
	return nil
}

// FigureValue is what plt.figure() and plt.subplots() hand back.
type FigureValue struct {
	env *Env
	fig *figure.Figure
}

func (f *FigureValue) String() string        { return "<Figure>" }
func (f *FigureValue) Type() string          { return "Figure" }
func (f *FigureValue) Freeze()               {}
func (f *FigureValue) Truth() starlark.Bool  { return true }
func (f *FigureValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Figure") }

func (f *FigureValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "suptitle":
		return builtin(name, func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			s, err := a.str("t", 0, "")
			if err != nil {
				return nil, err
			}
			f.fig.Title = s
			return starlark.None, nil
		}), nil
	case "add_subplot", "gca":
		return builtin(name, func(*starlark.Thread, callArgs) (starlark.Value, error) {
			return &Axes{env: f.env, fig: f.fig}, nil
		}), nil
	case "set_size_inches":
		return builtin(name, func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			f.fig.Width, _ = a.float("w", 0, f.fig.Width)
			f.fig.Height, _ = a.float("h", 1, f.fig.Height)
			return starlark.None, nil
		}), nil
	case "savefig", "tight_layout", "show", "subplots_adjust", "colorbar":
		return noop(name, nil), nil
	}
	return nil, nil
}

func (f *FigureValue) AttrNames() []string {
	return []string{"add_subplot", "colorbar", "gca", "savefig", "set_size_inches", "show", "subplots_adjust", "suptitle", "tight_layout"}
}

// axesGrid holds the axes returned by subplots with more than one cell.
// Every cell renders as its own figure.
type axesGrid struct {
	rows, cols int
	cells      []*Axes
}

var (
	_ starlark.Mapping  = (*axesGrid)(nil)
	_ starlark.Sequence = (*axesGrid)(nil)
)

func (g *axesGrid) String() string        { return fmt.Sprintf("<Axes grid %dx%d>", g.rows, g.cols) }
func (g *axesGrid) Type() string          { return "ndarray" }
func (g *axesGrid) Freeze()               {}
func (g *axesGrid) Truth() starlark.Bool  { return true }
func (g *axesGrid) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: ndarray") }
func (g *axesGrid) twoD() bool            { return g.rows > 1 && g.cols > 1 }

func (g *axesGrid) Len() int {
	if g.twoD() {
		return g.rows
	}
	return len(g.cells)
}

func (g *axesGrid) items() []starlark.Value {
	if !g.twoD() {
		out := make([]starlark.Value, len(g.cells))
		for i, c := range g.cells {
			out[i] = c
		}
		return out
	}
	out := make([]starlark.Value, g.rows)
	for r := range out {
		row := make([]starlark.Value, g.cols)
		for c := range row {
			row[c] = g.cells[r*g.cols+c]
		}
		out[r] = starlark.NewList(row)
	}
	return out
}

func (g *axesGrid) Iterate() starlark.Iterator { return &sliceIter{vals: g.items()} }

func (g *axesGrid) Get(k starlark.Value) (starlark.Value, bool, error) {
	if t, ok := k.(starlark.Tuple); ok && len(t) == 2 {
		var r, c int
		if err := starlark.AsInt(t[0], &r); err != nil {
			return nil, false, err
		}
		if err := starlark.AsInt(t[1], &c); err != nil {
			return nil, false, err
		}
		if r < 0 || r >= g.rows || c < 0 || c >= g.cols {
			return nil, false, fmt.Errorf("index (%d, %d) out of bounds", r, c)
		}
		return g.cells[r*g.cols+c], true, nil
	}
	var i int
	if err := starlark.AsInt(k, &i); err != nil {
		return nil, false, err
	}
	items := g.items()
	if i < 0 {
		i += len(items)
	}
	if i < 0 || i >= len(items) {
		return nil, false, fmt.Errorf("index %d out of bounds", i)
	}
	return items[i], true, nil
}

func (g *axesGrid) Attr(name string) (starlark.Value, error) {
	switch name {
	case "flatten", "ravel", "flat":
		cells := make([]starlark.Value, len(g.cells))
		for i, c := range g.cells {
			cells[i] = c
		}
		if name == "flat" {
			return starlark.NewList(cells), nil
		}
		return noop(name, starlark.NewList(cells)), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(g.rows), starlark.MakeInt(g.cols)}, nil
	}
	return nil, nil
}

func (g *axesGrid) AttrNames() []string { return []string{"flat", "flatten", "ravel", "shape"} }

func figsize(a callArgs, f *figure.Figure) {
	v := a.get("figsize", -1)
	if v == nil || v == starlark.None {
		return
	}
	vals, err := toValues(v)
	if err != nil || len(vals) != 2 {
		return
	}
	f.Width, _ = starlark.AsFloat(vals[0])
	f.Height, _ = starlark.AsFloat(vals[1])
}

func (e *Env) currentAxes() *Axes {
	return &Axes{env: e, fig: e.Figures.Current()}
}

// pltModule builds the matplotlib.pyplot stand-in.
func (e *Env) pltModule() *starlarkstruct.Module {
	members := starlark.StringDict{}
	// Drawing calls go to the current figure.
	for name, m := range axesMethods {
		m := m
		pname := name
		switch name {
		case "set_title":
			pname = "title"
		case "set_xlabel":
			pname = "xlabel"
		case "set_ylabel":
			pname = "ylabel"
		case "twinx", "twiny", "get_figure", "set":
			continue
		}
		members[pname] = builtin(pname, func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			return m(e.currentAxes(), a)
		})
	}
	members["figure"] = builtin("figure", func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
		f := e.Figures.New()
		figsize(a, f)
		return &FigureValue{env: e, fig: f}, nil
	})
	members["subplots"] = builtin("subplots", func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
		rows, err := a.integer("nrows", 0, 1)
		if err != nil {
			return nil, err
		}
		cols, err := a.integer("ncols", 1, 1)
		if err != nil {
			return nil, err
		}
		if rows < 1 || cols < 1 || rows*cols > 16 {
			return nil, fmt.Errorf("subplots: unsupported grid %dx%d", rows, cols)
		}
		grid := &axesGrid{rows: rows, cols: cols}
		for i := 0; i < rows*cols; i++ {
			f := e.Figures.New()
			figsize(a, f)
			grid.cells = append(grid.cells, &Axes{env: e, fig: f})
		}
		e.Figures.Activate(grid.cells[0].fig)
		fig := &FigureValue{env: e, fig: grid.cells[0].fig}
		if len(grid.cells) == 1 {
			return starlark.Tuple{fig, grid.cells[0]}, nil
		}
		return starlark.Tuple{fig, grid}, nil
	})
	members["subplot"] = builtin("subplot", func(*starlark.Thread, callArgs) (starlark.Value, error) {
		return e.currentAxes(), nil
	})
	members["gca"] = builtin("gca", func(*starlark.Thread, callArgs) (starlark.Value, error) {
		return e.currentAxes(), nil
	})
	members["gcf"] = builtin("gcf", func(*starlark.Thread, callArgs) (starlark.Value, error) {
		return &FigureValue{env: e, fig: e.Figures.Current()}, nil
	})
	members["suptitle"] = builtin("suptitle", func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
		return e.currentAxes().none(e.currentAxes().setText(a, &e.Figures.Current().Title))
	})
	members["close"] = builtin("close", func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
		switch v := a.get("fig", 0).(type) {
		case nil, starlark.NoneType:
			e.Figures.Close()
		case *FigureValue:
			e.Figures.CloseFigure(v.fig)
		case starlark.String:
			if v == "all" {
				e.Figures.CloseAll()
			}
		}
		return starlark.None, nil
	})
	members["clf"] = builtin("clf", func(*starlark.Thread, callArgs) (starlark.Value, error) {
		e.Figures.Current().Layers = nil
		return starlark.None, nil
	})
	for _, n := range []string{"show", "savefig", "tight_layout", "xticks", "yticks", "grid", "axhline", "axvline", "text", "annotate", "xlim", "ylim", "colorbar", "figtext", "subplots_adjust", "margins", "axis"} {
		members[n] = noop(n, nil)
	}
	members["style"] = starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"use":       noop("use", nil),
		"available": starlark.NewList(nil),
	})
	members["rcParams"] = starlark.NewDict(0)
	return &starlarkstruct.Module{Name: "plt", Members: members}
}
