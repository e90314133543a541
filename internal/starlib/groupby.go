package starlib

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

type group struct {
	key  []starlark.Value
	rows []int
}

// GroupBy is the result of df.groupby(...). Selecting a single column with
// a string key turns it into a series grouping.
type GroupBy struct {
	df       *DataFrame
	keys     []string
	asIndex  bool
	groups   []group
	selected []string
	series   bool
}

var (
	_ starlark.HasAttrs = (*GroupBy)(nil)
	_ starlark.Mapping  = (*GroupBy)(nil)
	_ starlark.Sequence = (*GroupBy)(nil)
)

func newGroupBy(df *DataFrame, keys []string, asIndex, sortKeys bool) (*GroupBy, error) {
	for _, k := range keys {
		if _, ok := df.data[k]; !ok {
			return nil, fmt.Errorf("groupby: KeyError %q (columns: %s)", k, strings.Join(df.cols, ", "))
		}
	}
	pos := map[string]int{}
	var groups []group
row:
	for i := 0; i < df.rows(); i++ {
		kv := make([]starlark.Value, len(keys))
		var id strings.Builder
		for j, k := range keys {
			v := df.data[k][i]
			if isNA(v) {
				continue row
			}
			kv[j] = v
			id.WriteString(key(v))
			id.WriteByte(0x1f)
		}
		p, ok := pos[id.String()]
		if !ok {
			p = len(groups)
			pos[id.String()] = p
			groups = append(groups, group{key: kv})
		}
		groups[p].rows = append(groups[p].rows, i)
	}
	if sortKeys {
		sort.SliceStable(groups, func(i, j int) bool {
			return compare(starlark.Tuple(groups[i].key), starlark.Tuple(groups[j].key)) < 0
		})
	}
	return &GroupBy{df: df, keys: keys, asIndex: asIndex, groups: groups}, nil
}

func (g *GroupBy) String() string        { return fmt.Sprintf("<GroupBy by=%s groups=%d>", strings.Join(g.keys, ","), len(g.groups)) }
func (g *GroupBy) Type() string          { return "GroupBy" }
func (g *GroupBy) Freeze()               {}
func (g *GroupBy) Truth() starlark.Bool  { return true }
func (g *GroupBy) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: GroupBy") }
func (g *GroupBy) Len() int              { return len(g.groups) }

// Iterate yields (key, frame) pairs.
func (g *GroupBy) Iterate() starlark.Iterator {
	out := make([]starlark.Value, len(g.groups))
	for i, gr := range g.groups {
		out[i] = starlark.Tuple{g.label(gr), g.df.take(gr.rows)}
	}
	return &sliceIter{vals: out}
}

func (g *GroupBy) label(gr group) starlark.Value {
	if len(gr.key) == 1 {
		return gr.key[0]
	}
	return starlark.Tuple(gr.key)
}

func (g *GroupBy) Get(k starlark.Value) (starlark.Value, bool, error) {
	if s, ok := starlark.AsString(k); ok {
		if _, exists := g.df.data[s]; !exists {
			return nil, false, fmt.Errorf("KeyError: column %q not found", s)
		}
		return g.with([]string{s}, true), true, nil
	}
	vals, err := toValues(k)
	if err != nil {
		return nil, false, err
	}
	cols := make([]string, len(vals))
	for i, v := range vals {
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, false, fmt.Errorf("column names must be strings")
		}
		if _, exists := g.df.data[s]; !exists {
			return nil, false, fmt.Errorf("KeyError: column %q not found", s)
		}
		cols[i] = s
	}
	return g.with(cols, false), true, nil
}

func (g *GroupBy) with(cols []string, series bool) *GroupBy {
	cp := *g
	cp.selected = cols
	cp.series = series
	return &cp
}

func (g *GroupBy) valueCols() []string {
	if g.selected != nil {
		return g.selected
	}
	isKey := map[string]bool{}
	for _, k := range g.keys {
		isKey[k] = true
	}
	var out []string
	for _, c := range g.df.cols {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}

func (g *GroupBy) index() []starlark.Value {
	out := make([]starlark.Value, len(g.groups))
	for i, gr := range g.groups {
		out[i] = g.label(gr)
	}
	return out
}

func (g *GroupBy) column(col, agg string) ([]starlark.Value, error) {
	src := g.df.data[col]
	out := make([]starlark.Value, len(g.groups))
	for i, gr := range g.groups {
		v, err := aggregate(agg, pick(src, gr.rows))
		if err != nil {
			return nil, fmt.Errorf("%s of column %q: %w", agg, col, err)
		}
		out[i] = v
	}
	return out, nil
}

// finish wraps aggregated columns as a frame (or a series for a single
// string selection) honoring as_index.
func (g *GroupBy) finish(cols []string, data map[string][]starlark.Value) starlark.Value {
	if g.series && len(cols) == 1 && g.asIndex {
		return newSeries(g.df.env, cols[0], data[cols[0]], g.index(), g.keys)
	}
	out := newFrame(g.df.env, cols, data)
	out.index = g.index()
	out.indexNames = g.keys
	if !g.asIndex {
		return out.resetIndex(false)
	}
	return out
}

func (g *GroupBy) aggregateAll(agg string) (starlark.Value, error) {
	if _, ok := aggregators[agg]; !ok {
		return nil, fmt.Errorf("unsupported aggregation %q", agg)
	}
	var cols []string
	data := map[string][]starlark.Value{}
	for _, c := range g.valueCols() {
		if numericAggs[agg] && !g.series && !numericColumn(g.df.data[c]) {
			continue
		}
		vals, err := g.column(c, agg)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		data[c] = vals
	}
	return g.finish(cols, data), nil
}

func (g *GroupBy) size() *Series {
	vals := make([]starlark.Value, len(g.groups))
	for i, gr := range g.groups {
		vals[i] = starlark.MakeInt(len(gr.rows))
	}
	return newSeries(g.df.env, "size", vals, g.index(), g.keys)
}

// agg accepts a function name, a list of names, a {column: name(s)} dict or
// named aggregations given as keyword=(column, name).
func (g *GroupBy) agg(a callArgs) (starlark.Value, error) {
	var cols []string
	data := map[string][]starlark.Value{}
	add := func(out, col, fn string) error {
		if _, ok := g.df.data[col]; !ok {
			return fmt.Errorf("agg: column %q not found", col)
		}
		vals, err := g.column(col, fn)
		if err != nil {
			return err
		}
		cols = append(cols, out)
		data[out] = vals
		return nil
	}

	spec := a.get("func", 0)
	if spec == nil {
		names := make([]string, 0, len(a.kw))
		for k := range a.kw {
			names = append(names, k)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return nil, fmt.Errorf("agg: missing func")
		}
		for _, out := range names {
			t, ok := a.kw[out].(starlark.Tuple)
			if !ok || len(t) != 2 {
				return nil, fmt.Errorf("agg: %s must be a (column, func) pair", out)
			}
			col, _ := starlark.AsString(t[0])
			fn, err := aggName(t[1])
			if err != nil {
				return nil, err
			}
			if err := add(out, col, fn); err != nil {
				return nil, err
			}
		}
		frame := *g
		frame.series = false
		return frame.finish(cols, data), nil
	}

	if name, err := aggName(spec); err == nil {
		return g.aggregateAll(name)
	}
	if d, ok := spec.(*starlark.Dict); ok {
		for _, item := range d.Items() {
			col, _ := starlark.AsString(item[0])
			if fn, err := aggName(item[1]); err == nil {
				if err := add(col, col, fn); err != nil {
					return nil, err
				}
				continue
			}
			fns, err := toValues(item[1])
			if err != nil {
				return nil, err
			}
			for _, f := range fns {
				fn, err := aggName(f)
				if err != nil {
					return nil, err
				}
				if err := add(col+"_"+fn, col, fn); err != nil {
					return nil, err
				}
			}
		}
		frame := *g
		frame.series = false
		return frame.finish(cols, data), nil
	}
	fns, err := toValues(spec)
	if err != nil {
		return nil, err
	}
	value := g.valueCols()
	for _, c := range value {
		for _, f := range fns {
			fn, err := aggName(f)
			if err != nil {
				return nil, err
			}
			if numericAggs[fn] && !numericColumn(g.df.data[c]) {
				continue
			}
			out := c + "_" + fn
			if g.series {
				out = fn
			}
			if err := add(out, c, fn); err != nil {
				return nil, err
			}
		}
	}
	frame := *g
	frame.series = false
	return frame.finish(cols, data), nil
}

var groupAggs = []string{"mean", "sum", "count", "min", "max", "median", "std", "var", "nunique", "first", "last"}

func (g *GroupBy) Attr(name string) (starlark.Value, error) {
	for _, a := range groupAggs {
		if a == name {
			return builtin(name, func(*starlark.Thread, callArgs) (starlark.Value, error) {
				return g.aggregateAll(name)
			}), nil
		}
	}
	switch name {
	case "size":
		return builtin(name, func(*starlark.Thread, callArgs) (starlark.Value, error) {
			s := g.size()
			if !g.asIndex {
				return s.resetIndex("size"), nil
			}
			return s, nil
		}), nil
	case "agg", "aggregate":
		return builtin(name, func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			return g.agg(a)
		}), nil
	case "ngroups":
		return starlark.MakeInt(len(g.groups)), nil
	case "groups":
		d := starlark.NewDict(len(g.groups))
		for _, gr := range g.groups {
			labs := pick(g.df.labels(), gr.rows)
			if err := d.SetKey(g.label(gr), listOf(labs)); err != nil {
				return nil, err
			}
		}
		return d, nil
	case "get_group":
		return builtin(name, func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			k := a.get("name", 0)
			for _, gr := range g.groups {
				if compare(g.label(gr), k) == 0 {
					return g.df.take(gr.rows), nil
				}
			}
			return nil, fmt.Errorf("KeyError: %s", k)
		}), nil
	}
	if _, ok := g.df.data[name]; ok {
		return g.with([]string{name}, true), nil
	}
	return nil, nil
}

func (g *GroupBy) AttrNames() []string {
	return append(append([]string(nil), groupAggs...), "size", "agg", "aggregate", "ngroups", "groups", "get_group")
}
