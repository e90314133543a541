package starlib

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/vizloom-cli/internal/figure"
)

// plotAccessor implements obj.plot(kind=...) and obj.plot.<kind>(...) for
// series and frames.
type plotAccessor struct {
	env    *Env
	target starlark.Value
}

var (
	_ starlark.Callable = (*plotAccessor)(nil)
	_ starlark.HasAttrs = (*plotAccessor)(nil)
)

var plotKinds = []string{"line", "bar", "barh", "hist", "box", "pie", "scatter", "area", "kde", "density"}

func (p *plotAccessor) String() string        { return "<plot accessor>" }
func (p *plotAccessor) Type() string          { return "PlotAccessor" }
func (p *plotAccessor) Freeze()               {}
func (p *plotAccessor) Truth() starlark.Bool  { return true }
func (p *plotAccessor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: PlotAccessor") }
func (p *plotAccessor) Name() string          { return "plot" }
func (p *plotAccessor) AttrNames() []string   { return plotKinds }

func (p *plotAccessor) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	a := newArgs("plot", args, kwargs)
	kind, err := a.str("kind", -1, "line")
	if err != nil {
		return nil, err
	}
	return p.draw(kind, a)
}

func (p *plotAccessor) Attr(name string) (starlark.Value, error) {
	for _, k := range plotKinds {
		if k == name {
			return builtin(name, func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
				return p.draw(name, a)
			}), nil
		}
	}
	return nil, nil
}

func (p *plotAccessor) axes(a callArgs) *Axes {
	if ax, ok := a.get("ax", -1).(*Axes); ok {
		p.env.Figures.Activate(ax.fig)
		return ax
	}
	return &Axes{env: p.env, fig: p.env.Figures.New()}
}

func (p *plotAccessor) draw(kind string, a callArgs) (starlark.Value, error) {
	ax := p.axes(a)
	figsize(a, ax.fig)
	if t, _ := a.str("title", -1, ""); t != "" {
		ax.fig.Title = t
	}
	var err error
	switch t := p.target.(type) {
	case *Series:
		err = drawSeries(ax.fig, t, kind, a)
	case *DataFrame:
		err = drawFrame(ax.fig, t, kind, a)
	}
	if err != nil {
		return nil, err
	}
	if s, _ := a.str("xlabel", -1, ""); s != "" {
		ax.fig.XLabel = s
	}
	if s, _ := a.str("ylabel", -1, ""); s != "" {
		ax.fig.YLabel = s
	}
	return ax, nil
}

func drawSeries(f *figure.Figure, s *Series, kind string, a callArgs) error {
	bins, err := a.integer("bins", -1, 10)
	if err != nil {
		return err
	}
	if len(s.indexNames) > 0 && f.XLabel == "" {
		f.XLabel = s.indexNames[0]
	}
	switch kind {
	case "bar", "barh", "pie":
		k := figure.Bar
		if kind == "barh" {
			k = figure.BarH
		}
		f.Add(figure.Layer{Kind: k, Label: s.name, Categories: labels(s.labels()), Values: floats(s.values)})
	case "line", "area":
		l, err := xyLayer(figure.Line, listOf(s.labels()), s)
		if err != nil {
			return err
		}
		l.Label = s.name
		f.Add(l)
	case "hist", "kde", "density":
		f.Add(figure.Layer{Kind: figure.Hist, Label: s.name, Samples: floats(s.values), Bins: bins})
	case "box":
		f.Add(figure.Layer{Kind: figure.Box, Categories: []string{s.name}, Groups: [][]float64{floats(s.values)}})
	default:
		return fmt.Errorf("plot: kind %q is not supported for a Series", kind)
	}
	return nil
}

func drawFrame(f *figure.Figure, df *DataFrame, kind string, a callArgs) error {
	x, err := a.str("x", -1, "")
	if err != nil {
		return err
	}
	ycols, err := a.strs("y", -1)
	if err != nil {
		return err
	}
	xs := df.labels()
	if x != "" {
		vals, ok := df.data[x]
		if !ok {
			return fmt.Errorf("plot: column %q not found", x)
		}
		xs = vals
		f.XLabel = x
	} else if len(df.indexNames) > 0 {
		f.XLabel = df.indexNames[0]
	}
	if ycols == nil {
		for _, c := range df.numericCols() {
			if c != x {
				ycols = append(ycols, c)
			}
		}
	}
	for _, c := range ycols {
		if _, ok := df.data[c]; !ok {
			return fmt.Errorf("plot: column %q not found", c)
		}
	}
	if len(ycols) == 1 {
		f.YLabel = ycols[0]
	}
	bins, err := a.integer("bins", -1, 10)
	if err != nil {
		return err
	}
	switch kind {
	case "bar", "barh", "pie":
		k := figure.Bar
		if kind == "barh" {
			k = figure.BarH
		}
		for _, c := range ycols {
			f.Add(figure.Layer{Kind: k, Label: c, Categories: labels(xs), Values: floats(df.data[c])})
		}
	case "line", "area", "scatter":
		k := figure.Line
		if kind == "scatter" {
			k = figure.Scatter
			if x == "" || len(ycols) != 1 {
				return fmt.Errorf("plot: scatter needs x and y")
			}
		}
		for _, c := range ycols {
			l, err := xyLayer(k, listOf(xs), listOf(df.data[c]))
			if err != nil {
				return err
			}
			l.Label = c
			f.Add(l)
		}
	case "hist", "kde", "density":
		for _, c := range ycols {
			f.Add(figure.Layer{Kind: figure.Hist, Label: c, Samples: floats(df.data[c]), Bins: bins})
		}
	case "box":
		groups := make([][]float64, len(ycols))
		for i, c := range ycols {
			groups[i] = floats(df.data[c])
		}
		f.Add(figure.Layer{Kind: figure.Box, Categories: ycols, Groups: groups})
	default:
		return fmt.Errorf("plot: kind %q is not supported", kind)
	}
	return nil
}
