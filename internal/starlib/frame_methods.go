package starlib

import (
	"fmt"

	"go.starlark.net/starlark"
)

func frameAgg(name string) frameMethod {
	return func(df *DataFrame, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
		return df.reduce(name)
	}
}

func frameNA(want bool) frameMethod {
	return func(df *DataFrame, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
		out := df.copyFrame()
		for _, c := range df.cols {
			vals := make([]starlark.Value, len(df.data[c]))
			for i, v := range df.data[c] {
				vals[i] = starlark.Bool(isNA(v) == want)
			}
			out.data[c] = vals
		}
		return out, nil
	}
}

// ascendingFlags expands ascending=True|False|[...] to one flag per key.
func ascendingFlags(a callArgs, n int) ([]bool, error) {
	flags := make([]bool, n)
	for i := range flags {
		flags[i] = true
	}
	v := a.get("ascending", 1)
	if v == nil || v == starlark.None {
		return flags, nil
	}
	if b, ok := v.(starlark.Bool); ok {
		for i := range flags {
			flags[i] = bool(b)
		}
		return flags, nil
	}
	vals, err := toValues(v)
	if err != nil {
		return nil, err
	}
	if len(vals) != n {
		return nil, fmt.Errorf("sort_values: ascending has %d entries, want %d", len(vals), n)
	}
	for i, x := range vals {
		flags[i] = bool(x.Truth())
	}
	return flags, nil
}

func init() {
	frameMethods = map[string]frameMethod{
		"mean":    frameAgg("mean"),
		"sum":     frameAgg("sum"),
		"min":     frameAgg("min"),
		"max":     frameAgg("max"),
		"count":   frameAgg("count"),
		"median":  frameAgg("median"),
		"std":     frameAgg("std"),
		"var":     frameAgg("var"),
		"nunique": frameAgg("nunique"),
		"isna":    frameNA(true),
		"isnull":  frameNA(true),
		"notna":   frameNA(false),
		"notnull": frameNA(false),
		"head": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			n, err := a.integer("n", 0, 5)
			if err != nil {
				return nil, err
			}
			return df.headN(n), nil
		},
		"tail": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			n, err := a.integer("n", 0, 5)
			if err != nil {
				return nil, err
			}
			return df.tailN(n), nil
		},
		"describe": func(df *DataFrame, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return df.describe(), nil
		},
		"info": func(df *DataFrame, thread *starlark.Thread, _ callArgs) (starlark.Value, error) {
			printLine(thread, df.info())
			return starlark.None, nil
		},
		"corr": func(df *DataFrame, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return df.corr(), nil
		},
		"copy": func(df *DataFrame, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return df.copyFrame(), nil
		},
		"to_string": func(df *DataFrame, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			return starlark.String(df.repr()), nil
		},
		"groupby": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			by, err := a.strs("by", 0)
			if err != nil {
				return nil, err
			}
			if len(by) == 0 {
				return nil, fmt.Errorf("groupby: missing 'by'")
			}
			return newGroupBy(df, by, a.boolean("as_index", -1, true), a.boolean("sort", -1, true))
		},
		"sort_values": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			by, err := a.strs("by", 0)
			if err != nil {
				return nil, err
			}
			if len(by) == 0 {
				return nil, fmt.Errorf("sort_values: missing 'by'")
			}
			asc, err := ascendingFlags(a, len(by))
			if err != nil {
				return nil, err
			}
			return df.sortValues(by, asc)
		},
		"sort_index": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			asc := a.boolean("ascending", -1, true)
			labs := df.labels()
			return df.take(stableOrder(df.rows(), func(i, j int) bool {
				c := compare(labs[i], labs[j])
				if asc {
					return c < 0
				}
				return c > 0
			})), nil
		},
		"nlargest": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			return frameExtremes(df, a, false)
		},
		"nsmallest": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			return frameExtremes(df, a, true)
		},
		"dropna": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			subset, err := a.strs("subset", -1)
			if err != nil {
				return nil, err
			}
			if subset == nil {
				subset = df.cols
			}
			var rows []int
		row:
			for i := 0; i < df.rows(); i++ {
				for _, c := range subset {
					vals, ok := df.data[c]
					if !ok {
						return nil, fmt.Errorf("dropna: unknown column %q", c)
					}
					if isNA(vals[i]) {
						continue row
					}
				}
				rows = append(rows, i)
			}
			return df.take(rows), nil
		},
		"fillna": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			fill := a.get("value", 0)
			if fill == nil {
				return nil, fmt.Errorf("fillna: missing value")
			}
			out := df.copyFrame()
			for _, c := range df.cols {
				f := fill
				if d, ok := fill.(*starlark.Dict); ok {
					v, found, _ := d.Get(starlark.String(c))
					if !found {
						continue
					}
					f = v
				}
				vals := make([]starlark.Value, len(df.data[c]))
				for i, v := range df.data[c] {
					if isNA(v) {
						vals[i] = f
					} else {
						vals[i] = v
					}
				}
				out.data[c] = vals
			}
			return out, nil
		},
		"drop": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			names, err := a.strs("columns", -1)
			if err != nil {
				return nil, err
			}
			if names == nil {
				if names, err = a.strs("labels", 0); err != nil {
					return nil, err
				}
			}
			drop := map[string]bool{}
			for _, n := range names {
				if _, ok := df.data[n]; !ok {
					return nil, fmt.Errorf("drop: %q not found in columns", n)
				}
				drop[n] = true
			}
			var keep []string
			for _, c := range df.cols {
				if !drop[c] {
					keep = append(keep, c)
				}
			}
			return df.selectCols(keep)
		},
		"rename": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			m, ok := a.get("columns", 0).(*starlark.Dict)
			if !ok {
				return nil, fmt.Errorf("rename: columns must be a dict")
			}
			out := df.copyFrame()
			out.data = map[string][]starlark.Value{}
			out.cols = make([]string, len(df.cols))
			for i, c := range df.cols {
				name := c
				if v, found, _ := m.Get(starlark.String(c)); found {
					if s, ok := starlark.AsString(v); ok {
						name = s
					}
				}
				out.cols[i] = name
				out.data[name] = df.data[c]
			}
			return out, nil
		},
		"reset_index": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			return df.resetIndex(a.boolean("drop", -1, false)), nil
		},
		"set_index": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			name, err := a.str("keys", 0, "")
			if err != nil {
				return nil, err
			}
			vals, ok := df.data[name]
			if !ok {
				return nil, fmt.Errorf("set_index: %q not found", name)
			}
			var keep []string
			for _, c := range df.cols {
				if c != name {
					keep = append(keep, c)
				}
			}
			out, err := df.selectCols(keep)
			if err != nil {
				return nil, err
			}
			out.index = vals
			out.indexNames = []string{name}
			return out, nil
		},
		"select_dtypes": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			include, err := a.strs("include", 0)
			if err != nil {
				return nil, err
			}
			wantNumeric := false
			for _, inc := range include {
				switch inc {
				case "number", "float", "int", "float64", "int64", "numeric":
					wantNumeric = true
				}
			}
			var keep []string
			for _, c := range df.cols {
				if numericColumn(df.data[c]) == wantNumeric {
					keep = append(keep, c)
				}
			}
			return df.selectCols(keep)
		},
		"assign": func(df *DataFrame, thread *starlark.Thread, a callArgs) (starlark.Value, error) {
			out := df.copyFrame()
			for name, v := range a.kw {
				if fn, ok := v.(starlark.Callable); ok {
					r, err := starlark.Call(thread, fn, starlark.Tuple{out}, nil)
					if err != nil {
						return nil, err
					}
					v = r
				}
				vals, err := out.broadcast(v)
				if err != nil {
					return nil, fmt.Errorf("assign %q: %w", name, err)
				}
				out.setColumn(name, vals)
			}
			return out, nil
		},
		"round": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			d, err := a.integer("decimals", 0, 0)
			if err != nil {
				return nil, err
			}
			out := df.copyFrame()
			for _, c := range df.cols {
				vals := make([]starlark.Value, len(df.data[c]))
				for i, v := range df.data[c] {
					vals[i] = roundValue(v, d)
				}
				out.data[c] = vals
			}
			return out, nil
		},
		"drop_duplicates": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			subset, err := a.strs("subset", 0)
			if err != nil {
				return nil, err
			}
			if subset == nil {
				subset = df.cols
			}
			seen := map[string]bool{}
			var rows []int
			for i := 0; i < df.rows(); i++ {
				k := ""
				for _, c := range subset {
					k += key(df.data[c][i]) + "\x1f"
				}
				if !seen[k] {
					seen[k] = true
					rows = append(rows, i)
				}
			}
			return df.take(rows), nil
		},
		"iterrows": func(df *DataFrame, _ *starlark.Thread, _ callArgs) (starlark.Value, error) {
			labs := df.labels()
			out := make([]starlark.Value, df.rows())
			for i := range out {
				out[i] = starlark.Tuple{labs[i], df.rowSeries(i)}
			}
			return starlark.NewList(out), nil
		},
		"agg": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			spec := a.get("func", 0)
			if spec == nil {
				return nil, fmt.Errorf("agg: missing func")
			}
			name, err := aggName(spec)
			if err != nil {
				return nil, err
			}
			return df.reduce(name)
		},
		"pivot_table": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			return pivotTable(df, a)
		},
		"value_counts": func(df *DataFrame, _ *starlark.Thread, a callArgs) (starlark.Value, error) {
			subset, err := a.strs("subset", 0)
			if err != nil {
				return nil, err
			}
			if subset == nil {
				subset = df.cols
			}
			gb, err := newGroupBy(df, subset, true, true)
			if err != nil {
				return nil, err
			}
			s := gb.size()
			return s.sortBy(func(i, j int) bool { return compare(s.values[i], s.values[j]) > 0 }), nil
		},
	}
}

func frameExtremes(df *DataFrame, a callArgs, smallest bool) (starlark.Value, error) {
	n, err := a.integer("n", 0, 5)
	if err != nil {
		return nil, err
	}
	cols, err := a.strs("columns", 1)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: missing columns", a.fn)
	}
	asc := make([]bool, len(cols))
	for i := range asc {
		asc[i] = smallest
	}
	sorted, err := df.sortValues(cols, asc)
	if err != nil {
		return nil, err
	}
	return sorted.headN(n), nil
}

// pivotTable supports index, columns, values and aggfunc with a single
// value column.
func pivotTable(df *DataFrame, a callArgs) (starlark.Value, error) {
	index, err := a.strs("index", 1)
	if err != nil {
		return nil, err
	}
	columns, err := a.strs("columns", 2)
	if err != nil {
		return nil, err
	}
	values, err := a.strs("values", 0)
	if err != nil {
		return nil, err
	}
	agg := "mean"
	if v := a.get("aggfunc", 3); v != nil && v != starlark.None {
		if agg, err = aggName(v); err != nil {
			return nil, err
		}
	}
	if len(index) == 0 || len(values) != 1 {
		return nil, fmt.Errorf("pivot_table: need index and exactly one values column")
	}
	if len(columns) == 0 {
		gb, err := newGroupBy(df, index, true, true)
		if err != nil {
			return nil, err
		}
		gb.selected = values
		return gb.aggregateAll(agg)
	}
	gb, err := newGroupBy(df, append(append([]string(nil), index...), columns[0]), true, true)
	if err != nil {
		return nil, err
	}
	gb.selected = values
	src := df.data[values[0]]

	rowKeys := map[string]int{}
	colKeys := map[string]int{}
	var rowLabels []starlark.Value
	var colNames []string
	for _, g := range gb.groups {
		rk := g.key[:len(index)]
		var rl starlark.Value = rk[0]
		if len(rk) > 1 {
			rl = starlark.Tuple(rk)
		}
		if _, ok := rowKeys[key(rl)]; !ok {
			rowKeys[key(rl)] = len(rowLabels)
			rowLabels = append(rowLabels, rl)
		}
		cn := display(g.key[len(index)])
		if _, ok := colKeys[cn]; !ok {
			colKeys[cn] = len(colNames)
			colNames = append(colNames, cn)
		}
	}
	data := make(map[string][]starlark.Value, len(colNames))
	for _, c := range colNames {
		col := make([]starlark.Value, len(rowLabels))
		for i := range col {
			col[i] = nan
		}
		data[c] = col
	}
	for _, g := range gb.groups {
		rk := g.key[:len(index)]
		var rl starlark.Value = rk[0]
		if len(rk) > 1 {
			rl = starlark.Tuple(rk)
		}
		v, err := aggregate(agg, pick(src, g.rows))
		if err != nil {
			return nil, err
		}
		data[display(g.key[len(index)])][rowKeys[key(rl)]] = v
	}
	out := newFrame(df.env, colNames, data)
	out.index = rowLabels
	out.indexNames = index
	return out, nil
}
