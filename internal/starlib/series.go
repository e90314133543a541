package starlib

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
)

// Series is a labeled one-dimensional column of values.
type Series struct {
	env        *Env
	name       string
	values     []starlark.Value
	index      []starlark.Value // nil means 0..n-1
	indexNames []string
	frozen     bool
}

var (
	_ starlark.HasAttrs  = (*Series)(nil)
	_ starlark.Mapping   = (*Series)(nil)
	_ starlark.Sequence  = (*Series)(nil)
	_ starlark.HasBinary = (*Series)(nil)
	_ starlark.HasUnary  = (*Series)(nil)
)

func newSeries(env *Env, name string, values []starlark.Value, index []starlark.Value, indexNames []string) *Series {
	return &Series{env: env, name: name, values: values, index: index, indexNames: indexNames}
}

// derive returns a series sharing s's labels with new values.
func (s *Series) derive(values []starlark.Value) *Series {
	return newSeries(s.env, s.name, values, s.index, s.indexNames)
}

func (s *Series) labelAt(i int) starlark.Value {
	if s.index == nil {
		return starlark.MakeInt(i)
	}
	return s.index[i]
}

func (s *Series) labels() []starlark.Value {
	if s.index == nil {
		return rangeIndex(len(s.values))
	}
	return s.index
}

// take selects rows by position.
func (s *Series) take(rows []int) *Series {
	out := newSeries(s.env, s.name, pick(s.values, rows), nil, s.indexNames)
	out.index = pick(s.labels(), rows)
	return out
}

func (s *Series) String() string        { return s.repr() }
func (s *Series) Type() string          { return "Series" }
func (s *Series) Freeze()               { s.frozen = true }
func (s *Series) Truth() starlark.Bool  { return len(s.values) > 0 }
func (s *Series) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Series") }
func (s *Series) Len() int              { return len(s.values) }
func (s *Series) Iterate() starlark.Iterator {
	return &sliceIter{vals: s.values}
}

// Get looks a label up, falling back to position for integer keys.
func (s *Series) Get(k starlark.Value) (starlark.Value, bool, error) {
	if mask, ok := k.(*Series); ok {
		rows, err := maskRows(mask, len(s.values))
		if err != nil {
			return nil, false, err
		}
		return s.take(rows), true, nil
	}
	if s.index != nil {
		for i, l := range s.index {
			if equal(l, k) {
				return s.values[i], true, nil
			}
		}
	}
	var i int
	if err := starlark.AsInt(k, &i); err == nil {
		if i < 0 {
			i += len(s.values)
		}
		if i >= 0 && i < len(s.values) {
			return s.values[i], true, nil
		}
	}
	return nil, false, fmt.Errorf("KeyError: %s", k.String())
}

// Table exposes the series as a two-column table.
func (s *Series) Table() (*dataset.Frame, error) {
	var cols []dataset.Column
	if s.index != nil {
		cols = append(cols, indexColumns(s.index, s.indexNames)...)
	}
	name := s.name
	if name == "" {
		name = "value"
	}
	vals := make([]any, len(s.values))
	for i, v := range s.values {
		vals[i] = toCell(v)
	}
	cols = append(cols, dataset.Column{Name: name, Values: vals})
	return dataset.New(name, cols)
}

// indexColumns splits tuple labels into one column per level.
func indexColumns(index []starlark.Value, names []string) []dataset.Column {
	levels := len(names)
	if levels == 0 {
		levels = 1
	}
	cols := make([]dataset.Column, levels)
	for l := range cols {
		name := "index"
		if l < len(names) && names[l] != "" {
			name = names[l]
		}
		cols[l] = dataset.Column{Name: name, Values: make([]any, len(index))}
	}
	for i, lab := range index {
		if t, ok := lab.(starlark.Tuple); ok && levels > 1 {
			for l := 0; l < levels && l < len(t); l++ {
				cols[l].Values[i] = toCell(t[l])
			}
			continue
		}
		cols[0].Values[i] = toCell(lab)
	}
	return cols
}

func (s *Series) repr() string {
	n := len(s.values)
	rows := make([]int, 0, n)
	truncated := n > maxReprRows
	if truncated {
		for i := 0; i < reprEdge; i++ {
			rows = append(rows, i)
		}
		for i := n - reprEdge; i < n; i++ {
			rows = append(rows, i)
		}
	} else {
		for i := 0; i < n; i++ {
			rows = append(rows, i)
		}
	}
	labW, valW := 0, 0
	for _, i := range rows {
		labW = max(labW, len(display(s.labelAt(i))))
		valW = max(valW, len(display(s.values[i])))
	}
	var b strings.Builder
	if len(s.indexNames) > 0 && s.indexNames[0] != "" {
		b.WriteString(strings.Join(s.indexNames, ", "))
		b.WriteString("\n")
	}
	for k, i := range rows {
		if truncated && k == reprEdge {
			fmt.Fprintf(&b, "%-*s    %*s\n", labW, "...", valW, "...")
		}
		fmt.Fprintf(&b, "%-*s    %*s\n", labW, display(s.labelAt(i)), valW, display(s.values[i]))
	}
	var footer []string
	if s.name != "" {
		footer = append(footer, "Name: "+s.name)
	}
	if truncated {
		footer = append(footer, fmt.Sprintf("Length: %d", n))
	}
	footer = append(footer, "dtype: "+dtype(s.values))
	b.WriteString(strings.Join(footer, ", "))
	return b.String()
}

const (
	maxReprRows = 60
	reprEdge    = 5
)

type sliceIter struct {
	vals []starlark.Value
	i    int
}

func (it *sliceIter) Next(p *starlark.Value) bool {
	if it.i >= len(it.vals) {
		return false
	}
	*p = it.vals[it.i]
	it.i++
	return true
}

func (it *sliceIter) Done() {}

// maskRows turns a boolean series into the selected row positions.
func maskRows(mask *Series, n int) ([]int, error) {
	if len(mask.values) != n {
		return nil, fmt.Errorf("boolean mask has %d values, want %d", len(mask.values), n)
	}
	var rows []int
	for i, v := range mask.values {
		if _, ok := v.(starlark.Bool); !ok && !isNA(v) {
			return nil, fmt.Errorf("mask must contain booleans, got %s", v.Type())
		}
		if v == starlark.True {
			rows = append(rows, i)
		}
	}
	return rows, nil
}

// Binary applies arithmetic element-wise against a scalar or an aligned
// series.
func (s *Series) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	other, isSeries := y.(*Series)
	if isSeries && len(other.values) != len(s.values) {
		return nil, fmt.Errorf("operands have different lengths %d and %d", len(s.values), len(other.values))
	}
	switch op {
	case syntax.PLUS, syntax.MINUS, syntax.STAR, syntax.SLASH, syntax.SLASHSLASH, syntax.PERCENT,
		syntax.AMP, syntax.PIPE, syntax.CIRCUMFLEX:
	default:
		return nil, nil
	}
	out := make([]starlark.Value, len(s.values))
	for i, v := range s.values {
		w := y
		if isSeries {
			w = other.values[i]
		}
		a, b := v, w
		if side == starlark.Right {
			a, b = w, v
		}
		r, err := elementOp(op, a, b)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	res := s.derive(out)
	if isSeries && other.name != s.name {
		res.name = ""
	}
	return res, nil
}

func elementOp(op syntax.Token, a, b starlark.Value) (starlark.Value, error) {
	switch op {
	case syntax.AMP, syntax.PIPE, syntax.CIRCUMFLEX:
		x, y := bool(a.Truth()) && !isNA(a), bool(b.Truth()) && !isNA(b)
		switch op {
		case syntax.AMP:
			return starlark.Bool(x && y), nil
		case syntax.PIPE:
			return starlark.Bool(x || y), nil
		}
		return starlark.Bool(x != y), nil
	}
	if isNA(a) || isNA(b) {
		return nan, nil
	}
	if op == syntax.SLASH || op == syntax.SLASHSLASH || op == syntax.PERCENT {
		if d, ok := number(b); ok && d == 0 {
			n, _ := number(a)
			switch {
			case op != syntax.SLASH:
				return nan, nil
			case n > 0:
				return starlark.Float(math.Inf(1)), nil
			case n < 0:
				return starlark.Float(math.Inf(-1)), nil
			}
			return nan, nil
		}
	}
	if ab, ok := a.(starlark.Bool); ok {
		a = boolInt(ab)
	}
	if bb, ok := b.(starlark.Bool); ok {
		b = boolInt(bb)
	}
	return starlark.Binary(op, a, b)
}

func boolInt(b starlark.Bool) starlark.Int {
	if b {
		return starlark.MakeInt(1)
	}
	return starlark.MakeInt(0)
}

func (s *Series) Unary(op syntax.Token) (starlark.Value, error) {
	out := make([]starlark.Value, len(s.values))
	for i, v := range s.values {
		switch {
		case op == syntax.TILDE:
			if b, ok := v.(starlark.Bool); ok {
				out[i] = !b
				continue
			}
			r, err := starlark.Unary(op, v)
			if err != nil {
				return nil, err
			}
			out[i] = r
		case isNA(v):
			out[i] = nan
		default:
			r, err := starlark.Unary(op, v)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
	}
	return s.derive(out), nil
}

type seriesMethod func(s *Series, thread *starlark.Thread, a callArgs) (starlark.Value, error)

var seriesMethods map[string]seriesMethod

func (s *Series) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		if s.name == "" {
			return starlark.None, nil
		}
		return starlark.String(s.name), nil
	case "values":
		return listOf(s.values), nil
	case "index":
		return listOf(s.labels()), nil
	case "dtype":
		return starlark.String(dtype(s.values)), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(len(s.values))}, nil
	case "size":
		return starlark.MakeInt(len(s.values)), nil
	case "empty":
		return starlark.Bool(len(s.values) == 0), nil
	case "plot":
		return &plotAccessor{env: s.env, target: s}, nil
	case "str":
		return &strAccessor{s: s}, nil
	case "dt":
		return &dtAccessor{s: s}, nil
	case "iloc":
		return &ilocIndexer{target: s}, nil
	case "loc":
		return s, nil
	}
	if m, ok := seriesMethods[name]; ok {
		return builtin(name, func(thread *starlark.Thread, a callArgs) (starlark.Value, error) {
			return m(s, thread, a)
		}), nil
	}
	return nil, nil
}

func (s *Series) AttrNames() []string {
	names := []string{"name", "values", "index", "dtype", "shape", "size", "empty", "plot", "str", "dt", "iloc", "loc"}
	for k := range seriesMethods {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func seriesAgg(name string) seriesMethod {
	return func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
		return aggregate(name, s.values)
	}
}

func seriesCompare(op syntax.Token) seriesMethod {
	return func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
		y := a.get("other", 0)
		if y == nil {
			return nil, fmt.Errorf("%s: missing argument", a.fn)
		}
		return s.compareWith(op, y)
	}
}

func (s *Series) compareWith(op syntax.Token, y starlark.Value) (*Series, error) {
	other, isSeries := y.(*Series)
	out := make([]starlark.Value, len(s.values))
	for i, v := range s.values {
		w := y
		if isSeries {
			if i >= len(other.values) {
				return nil, fmt.Errorf("operands have different lengths")
			}
			w = other.values[i]
		}
		if isNA(v) || isNA(w) {
			out[i] = starlark.Bool(op == syntax.NEQ)
			continue
		}
		var ok bool
		if op == syntax.EQL || op == syntax.NEQ {
			ok = equal(v, w) == (op == syntax.EQL)
		} else {
			if isNumeric(v) != isNumeric(w) {
				return nil, fmt.Errorf("cannot compare %s with %s", v.Type(), w.Type())
			}
			c := compare(v, w)
			switch op {
			case syntax.GT:
				ok = c > 0
			case syntax.GE:
				ok = c >= 0
			case syntax.LT:
				ok = c < 0
			case syntax.LE:
				ok = c <= 0
			}
		}
		out[i] = starlark.Bool(ok)
	}
	return s.derive(out), nil
}

func (s *Series) mapValues(fn func(v starlark.Value) (starlark.Value, error)) (*Series, error) {
	out := make([]starlark.Value, len(s.values))
	for i, v := range s.values {
		r, err := fn(v)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return s.derive(out), nil
}

func (s *Series) valueCounts(normalize, ascending, dropna bool) *Series {
	counts := map[string]int{}
	var order []starlark.Value
	for _, v := range s.values {
		if isNA(v) {
			if dropna {
				continue
			}
			v = nan
		}
		k := key(v)
		if _, ok := counts[k]; !ok {
			order = append(order, v)
		}
		counts[k]++
	}
	idx := stableOrder(len(order), func(i, j int) bool {
		ci, cj := counts[key(order[i])], counts[key(order[j])]
		if ascending {
			return ci < cj
		}
		return ci > cj
	})
	total := 0
	for _, c := range counts {
		total += c
	}
	labels := make([]starlark.Value, len(idx))
	vals := make([]starlark.Value, len(idx))
	for i, j := range idx {
		labels[i] = order[j]
		c := counts[key(order[j])]
		if normalize {
			vals[i] = starlark.Float(float64(c) / float64(total))
		} else {
			vals[i] = starlark.MakeInt(c)
		}
	}
	name := "count"
	if normalize {
		name = "proportion"
	}
	idxName := s.name
	return newSeries(s.env, name, vals, labels, []string{idxName})
}

func (s *Series) describe() *Series {
	if !numericColumn(s.values) {
		vc := s.valueCounts(false, false, true)
		count, _ := aggregate("count", s.values)
		var top, freq starlark.Value = starlark.None, starlark.None
		if len(vc.values) > 0 {
			top, freq = vc.index[0], vc.values[0]
		}
		return newSeries(s.env, s.name,
			[]starlark.Value{count, starlark.MakeInt(len(vc.values)), top, freq},
			[]starlark.Value{starlark.String("count"), starlark.String("unique"), starlark.String("top"), starlark.String("freq")}, nil)
	}
	xs, _ := numericValues(s.values)
	stats := []struct {
		name string
		v    float64
	}{
		{"count", float64(len(xs))},
		{"mean", mean(xs)},
		{"std", math.Sqrt(variance(xs))},
		{"min", quantile(xs, 0)},
		{"25%", quantile(xs, 0.25)},
		{"50%", quantile(xs, 0.5)},
		{"75%", quantile(xs, 0.75)},
		{"max", quantile(xs, 1)},
	}
	vals := make([]starlark.Value, len(stats))
	idx := make([]starlark.Value, len(stats))
	for i, st := range stats {
		vals[i] = floatValue(st.v)
		idx[i] = starlark.String(st.name)
	}
	return newSeries(s.env, s.name, vals, idx, nil)
}

func (s *Series) sortBy(less func(i, j int) bool) *Series {
	return s.take(stableOrder(len(s.values), less))
}

func (s *Series) headN(n int) *Series {
	n = clampCount(n, len(s.values))
	return s.take(seqInts(0, n))
}

func (s *Series) tailN(n int) *Series {
	n = clampCount(n, len(s.values))
	return s.take(seqInts(len(s.values)-n, len(s.values)))
}

func clampCount(n, total int) int {
	if n < 0 {
		n = total + n
	}
	if n < 0 {
		return 0
	}
	if n > total {
		return total
	}
	return n
}

func seqInts(lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

// toFrame converts the series into a one-column frame keeping its labels.
func (s *Series) toFrame(name string) *DataFrame {
	if name == "" {
		name = s.name
	}
	if name == "" {
		name = "0"
	}
	df := newFrame(s.env, []string{name}, map[string][]starlark.Value{name: s.values})
	df.index = s.index
	df.indexNames = s.indexNames
	return df
}

// resetIndex turns labels into leading columns.
func (s *Series) resetIndex(name string) *DataFrame {
	if name == "" {
		name = s.name
	}
	if name == "" {
		name = "0"
	}
	df := s.toFrame(name)
	return df.resetIndex(false)
}

func init() {
	seriesMethods = map[string]seriesMethod{
		"mean":    seriesAgg("mean"),
		"sum":     seriesAgg("sum"),
		"min":     seriesAgg("min"),
		"max":     seriesAgg("max"),
		"count":   seriesAgg("count"),
		"median":  seriesAgg("median"),
		"std":     seriesAgg("std"),
		"var":     seriesAgg("var"),
		"nunique": seriesAgg("nunique"),
		"gt":      seriesCompare(syntax.GT),
		"ge":      seriesCompare(syntax.GE),
		"lt":      seriesCompare(syntax.LT),
		"le":      seriesCompare(syntax.LE),
		"eq":      seriesCompare(syntax.EQL),
		"ne":      seriesCompare(syntax.NEQ),
		"head": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			n, err := a.integer("n", 0, 5)
			if err != nil {
				return nil, err
			}
			return s.headN(n), nil
		},
		"tail": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			n, err := a.integer("n", 0, 5)
			if err != nil {
				return nil, err
			}
			return s.tailN(n), nil
		},
		"unique": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			seen := map[string]bool{}
			var out []starlark.Value
			for _, v := range s.values {
				if k := key(v); !seen[k] {
					seen[k] = true
					out = append(out, v)
				}
			}
			return starlark.NewList(out), nil
		},
		"value_counts": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			return s.valueCounts(a.boolean("normalize", 0, false), a.boolean("ascending", -1, false), a.boolean("dropna", -1, true)), nil
		},
		"describe": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return s.describe(), nil
		},
		"sort_values": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			asc := a.boolean("ascending", -1, true)
			return s.sortBy(func(i, j int) bool {
				c := compare(s.values[i], s.values[j])
				if isNA(s.values[i]) || isNA(s.values[j]) {
					return c < 0
				}
				if asc {
					return c < 0
				}
				return c > 0
			}), nil
		},
		"sort_index": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			asc := a.boolean("ascending", -1, true)
			labs := s.labels()
			return s.sortBy(func(i, j int) bool {
				c := compare(labs[i], labs[j])
				if asc {
					return c < 0
				}
				return c > 0
			}), nil
		},
		"round": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			d, err := a.integer("decimals", 0, 0)
			if err != nil {
				return nil, err
			}
			return s.mapValues(func(v starlark.Value) (starlark.Value, error) { return roundValue(v, d), nil })
		},
		"abs": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return s.mapValues(func(v starlark.Value) (starlark.Value, error) {
				switch x := v.(type) {
				case starlark.Float:
					return starlark.Float(math.Abs(float64(x))), nil
				case starlark.Int:
					if x.Sign() < 0 {
						return starlark.Unary(syntax.MINUS, x)
					}
				}
				return v, nil
			})
		},
		"cumsum": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			var acc starlark.Value = starlark.MakeInt(0)
			return s.mapValues(func(v starlark.Value) (starlark.Value, error) {
				if isNA(v) {
					return nan, nil
				}
				r, err := elementOp(syntax.PLUS, acc, v)
				acc = r
				return r, err
			})
		},
		"diff": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			out := make([]starlark.Value, len(s.values))
			for i := range s.values {
				if i == 0 {
					out[i] = nan
					continue
				}
				r, err := elementOp(syntax.MINUS, s.values[i], s.values[i-1])
				if err != nil {
					return nil, err
				}
				out[i] = r
			}
			return s.derive(out), nil
		},
		"pct_change": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			out := make([]starlark.Value, len(s.values))
			for i := range s.values {
				prev, ok1 := number(prevValue(s.values, i))
				cur, ok2 := number(s.values[i])
				if !ok1 || !ok2 || prev == 0 {
					out[i] = nan
					continue
				}
				out[i] = starlark.Float(cur/prev - 1)
			}
			return s.derive(out), nil
		},
		"idxmax": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return s.argExtreme(1)
		},
		"idxmin": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return s.argExtreme(-1)
		},
		"tolist": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return listOf(s.values), nil
		},
		"to_list": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return listOf(s.values), nil
		},
		"to_dict": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			d := starlark.NewDict(len(s.values))
			for i, v := range s.values {
				if err := d.SetKey(s.labelAt(i), v); err != nil {
					return nil, err
				}
			}
			return d, nil
		},
		"items": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			out := make([]starlark.Value, len(s.values))
			for i, v := range s.values {
				out[i] = starlark.Tuple{s.labelAt(i), v}
			}
			return starlark.NewList(out), nil
		},
		"reset_index": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			if a.boolean("drop", -1, false) {
				return newSeries(s.env, s.name, s.values, nil, nil), nil
			}
			name, err := a.str("name", -1, "")
			if err != nil {
				return nil, err
			}
			return s.resetIndex(name), nil
		},
		"rename": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			name, err := a.str("index", 0, "")
			if err != nil {
				return nil, err
			}
			out := s.derive(s.values)
			out.name = name
			return out, nil
		},
		"to_frame": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			name, err := a.str("name", 0, "")
			if err != nil {
				return nil, err
			}
			return s.toFrame(name), nil
		},
		"astype": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			t := a.get("dtype", 0)
			if t == nil {
				return nil, fmt.Errorf("astype: missing dtype")
			}
			return s.mapValues(func(v starlark.Value) (starlark.Value, error) { return castValue(v, t) })
		},
		"fillna": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			fill := a.get("value", 0)
			if fill == nil {
				return nil, fmt.Errorf("fillna: missing value")
			}
			return s.mapValues(func(v starlark.Value) (starlark.Value, error) {
				if isNA(v) {
					return fill, nil
				}
				return v, nil
			})
		},
		"dropna": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			var rows []int
			for i, v := range s.values {
				if !isNA(v) {
					rows = append(rows, i)
				}
			}
			return s.take(rows), nil
		},
		"isna":    seriesNA(true),
		"isnull":  seriesNA(true),
		"notna":   seriesNA(false),
		"notnull": seriesNA(false),
		"between": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			lo, hi := a.get("left", 0), a.get("right", 1)
			if lo == nil || hi == nil {
				return nil, fmt.Errorf("between: need left and right bounds")
			}
			ge, err := s.compareWith(syntax.GE, lo)
			if err != nil {
				return nil, err
			}
			le, err := s.compareWith(syntax.LE, hi)
			if err != nil {
				return nil, err
			}
			return ge.Binary(syntax.AMP, le, starlark.Left)
		},
		"isin": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			set := a.get("values", 0)
			if set == nil {
				return nil, fmt.Errorf("isin: missing values")
			}
			vals, err := toValues(set)
			if err != nil {
				return nil, err
			}
			keys := map[string]bool{}
			for _, v := range vals {
				keys[key(v)] = true
			}
			return s.mapValues(func(v starlark.Value) (starlark.Value, error) {
				return starlark.Bool(!isNA(v) && keys[key(v)]), nil
			})
		},
		"apply": seriesApply,
		"map":   seriesApply,
		"quantile": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			q, err := a.float("q", 0, 0.5)
			if err != nil {
				return nil, err
			}
			xs, err := numericValues(s.values)
			if err != nil {
				return nil, err
			}
			return floatValue(quantile(xs, q)), nil
		},
		"nlargest": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			return s.extremes(a, false)
		},
		"nsmallest": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			return s.extremes(a, true)
		},
		"corr": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			o, ok := a.get("other", 0).(*Series)
			if !ok {
				return nil, fmt.Errorf("corr: other must be a Series")
			}
			return floatValue(correlation(floats(s.values), floats(o.values))), nil
		},
		"agg": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			spec := a.get("func", 0)
			if spec == nil {
				return nil, fmt.Errorf("agg: missing func")
			}
			if name, err := aggName(spec); err == nil {
				return aggregate(name, s.values)
			}
			names, err := a.strs("func", 0)
			if err != nil {
				return nil, err
			}
			vals := make([]starlark.Value, len(names))
			idx := make([]starlark.Value, len(names))
			for i, n := range names {
				v, err := aggregate(n, s.values)
				if err != nil {
					return nil, err
				}
				vals[i], idx[i] = v, starlark.String(n)
			}
			return newSeries(s.env, s.name, vals, idx, nil), nil
		},
		"copy": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return s.derive(append([]starlark.Value(nil), s.values...)), nil
		},
		"mode": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			vc := s.valueCounts(false, false, true)
			var out []starlark.Value
			for i, c := range vc.values {
				if compare(c, vc.values[0]) == 0 {
					out = append(out, vc.index[i])
				}
			}
			sort.SliceStable(out, func(i, j int) bool { return compare(out[i], out[j]) < 0 })
			return newSeries(s.env, s.name, out, nil, nil), nil
		},
		"any": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			for _, v := range s.values {
				if !isNA(v) && bool(v.Truth()) {
					return starlark.True, nil
				}
			}
			return starlark.False, nil
		},
		"all": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			for _, v := range s.values {
				if !isNA(v) && !bool(v.Truth()) {
					return starlark.False, nil
				}
			}
			return starlark.True, nil
		},
		"clip": func(s *Series, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			lo, hi := a.get("lower", 0), a.get("upper", 1)
			return s.mapValues(func(v starlark.Value) (starlark.Value, error) {
				if isNA(v) {
					return v, nil
				}
				if lo != nil && lo != starlark.None && compare(v, lo) < 0 {
					return lo, nil
				}
				if hi != nil && hi != starlark.None && compare(v, hi) > 0 {
					return hi, nil
				}
				return v, nil
			})
		},
		"to_string": func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return starlark.String(s.repr()), nil
		},
	}
}

func prevValue(vals []starlark.Value, i int) starlark.Value {
	if i == 0 {
		return starlark.None
	}
	return vals[i-1]
}

func seriesNA(want bool) seriesMethod {
	return func(s *Series, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
		return s.mapValues(func(v starlark.Value) (starlark.Value, error) {
			return starlark.Bool(isNA(v) == want), nil
		})
	}
}

func seriesApply(s *Series, thread *starlark.Thread, a callArgs) (starlark.Value, error) {
	fn := a.get("func", 0)
	if fn == nil {
		fn = a.get("arg", 0)
	}
	if d, ok := fn.(*starlark.Dict); ok {
		return s.mapValues(func(v starlark.Value) (starlark.Value, error) {
			r, found, err := d.Get(v)
			if err != nil || !found {
				return nan, nil
			}
			return r, nil
		})
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: expected a function or dict", a.fn)
	}
	return s.mapValues(func(v starlark.Value) (starlark.Value, error) {
		return starlark.Call(thread, callable, starlark.Tuple{v}, nil)
	})
}

func (s *Series) argExtreme(dir int) (starlark.Value, error) {
	best := -1
	for i, v := range s.values {
		if isNA(v) {
			continue
		}
		if best < 0 || compare(v, s.values[best])*dir > 0 {
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("attempt to get argmax of an empty sequence")
	}
	return s.labelAt(best), nil
}

func (s *Series) extremes(a callArgs, smallest bool) (starlark.Value, error) {
	n, err := a.integer("n", 0, 5)
	if err != nil {
		return nil, err
	}
	sorted := s.sortBy(func(i, j int) bool {
		c := compare(s.values[i], s.values[j])
		if isNA(s.values[i]) || isNA(s.values[j]) || smallest {
			return c < 0
		}
		return c > 0
	})
	return sorted.headN(n), nil
}

func roundValue(v starlark.Value, digits int) starlark.Value {
	f, ok := v.(starlark.Float)
	if !ok {
		return v
	}
	p := math.Pow(10, float64(digits))
	return starlark.Float(math.RoundToEven(float64(f)*p) / p)
}

// castValue implements astype for the str, int, float and bool targets,
// given as a type name or one of the builtin conversion functions.
func castValue(v starlark.Value, t starlark.Value) (starlark.Value, error) {
	target, err := aggName(t)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(target) {
	case "str", "string", "object", "category":
		if isNA(v) {
			return v, nil
		}
		return starlark.String(display(v)), nil
	case "float", "float64", "float32":
		if isNA(v) {
			return nan, nil
		}
		if s, ok := v.(starlark.String); ok {
			if f, ok := parseFloat(string(s)); ok {
				return starlark.Float(f), nil
			}
			return nil, fmt.Errorf("could not convert string to float: %q", string(s))
		}
		f, _ := number(v)
		return starlark.Float(f), nil
	case "int", "int64", "int32":
		if isNA(v) {
			return nil, fmt.Errorf("cannot convert NA to integer")
		}
		if s, ok := v.(starlark.String); ok {
			f, ok := parseFloat(string(s))
			if !ok {
				return nil, fmt.Errorf("invalid literal for int(): %q", string(s))
			}
			return starlark.MakeInt64(int64(f)), nil
		}
		f, _ := number(v)
		return starlark.MakeInt64(int64(f)), nil
	case "bool":
		return starlark.Bool(!isNA(v) && bool(v.Truth())), nil
	}
	return nil, fmt.Errorf("astype: unsupported dtype %q", target)
}
