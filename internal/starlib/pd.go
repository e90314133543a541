package starlib

import (
	"fmt"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
)

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func (e *Env) pdDataFrame(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	data := a.get("data", 0)
	want, err := a.strs("columns", 1)
	if err != nil {
		return nil, err
	}
	var df *DataFrame
	switch d := data.(type) {
	case nil, starlark.NoneType:
		df = newFrame(e, nil, map[string][]starlark.Value{})
	case *DataFrame:
		df = d.copyFrame()
	case *Series:
		df = d.toFrame("")
	case *starlark.Dict:
		df = newFrame(e, nil, map[string][]starlark.Value{})
		n := -1
		seqs := map[string][]starlark.Value{}
		for _, item := range d.Items() {
			switch item[1].(type) {
			case *Series, *starlark.List, starlark.Tuple:
				vals, err := toValues(item[1])
				if err != nil {
					return nil, err
				}
				if n >= 0 && len(vals) != n {
					return nil, fmt.Errorf("DataFrame: all arrays must be of the same length")
				}
				n = len(vals)
				seqs[display(item[0])] = vals
			}
		}
		if n < 0 {
			n = 1
		}
		for _, item := range d.Items() {
			name := display(item[0])
			vals, ok := seqs[name]
			if !ok {
				vals = make([]starlark.Value, n)
				for i := range vals {
					vals[i] = item[1]
				}
			}
			df.setColumn(name, append([]starlark.Value(nil), vals...))
		}
	default:
		rows, err := toValues(data)
		if err != nil {
			return nil, fmt.Errorf("DataFrame: unsupported data %s", data.Type())
		}
		df, err = frameFromRows(e, rows, want)
		if err != nil {
			return nil, err
		}
		want = nil
	}
	if len(want) > 0 {
		var err error
		if df, err = df.selectCols(want); err != nil {
			return nil, err
		}
	}
	if idx := a.get("index", 2); idx != nil && idx != starlark.None {
		labs, err := toValues(idx)
		if err != nil {
			return nil, err
		}
		if len(labs) != df.rows() {
			return nil, fmt.Errorf("DataFrame: index has %d labels, want %d", len(labs), df.rows())
		}
		df.index = labs
	}
	return df, nil
}

// frameFromRows builds a frame from a list of dicts or a list of lists.
func frameFromRows(e *Env, rows []starlark.Value, cols []string) (*DataFrame, error) {
	df := newFrame(e, nil, map[string][]starlark.Value{})
	if len(rows) == 0 {
		for _, c := range cols {
			df.setColumn(c, nil)
		}
		return df, nil
	}
	if _, ok := rows[0].(*starlark.Dict); ok {
		var order []string
		seen := map[string]bool{}
		for _, r := range rows {
			d, ok := r.(*starlark.Dict)
			if !ok {
				return nil, fmt.Errorf("DataFrame: mixed row types")
			}
			for _, k := range d.Keys() {
				name, _ := starlark.AsString(k)
				if !seen[name] {
					seen[name] = true
					order = append(order, name)
				}
			}
		}
		if len(cols) > 0 {
			order = cols
		}
		for _, name := range order {
			vals := make([]starlark.Value, len(rows))
			for i, r := range rows {
				v, found, _ := r.(*starlark.Dict).Get(starlark.String(name))
				if !found {
					v = nan
				}
				vals[i] = v
			}
			df.setColumn(name, vals)
		}
		return df, nil
	}
	width := 0
	table := make([][]starlark.Value, len(rows))
	for i, r := range rows {
		vals, err := toValues(r)
		if err != nil {
			return nil, err
		}
		table[i] = vals
		width = max(width, len(vals))
	}
	for j := 0; j < width; j++ {
		name := fmt.Sprint(j)
		if j < len(cols) {
			name = cols[j]
		}
		vals := make([]starlark.Value, len(rows))
		for i := range rows {
			if j < len(table[i]) {
				vals[i] = table[i][j]
			} else {
				vals[i] = nan
			}
		}
		df.setColumn(name, vals)
	}
	return df, nil
}

func (e *Env) pdSeries(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	name, err := a.str("name", 2, "")
	if err != nil {
		return nil, err
	}
	data := a.get("data", 0)
	if d, ok := data.(*starlark.Dict); ok {
		var idx, vals []starlark.Value
		for _, item := range d.Items() {
			idx = append(idx, item[0])
			vals = append(vals, item[1])
		}
		return newSeries(e, name, vals, idx, nil), nil
	}
	var vals []starlark.Value
	if data != nil && data != starlark.None {
		if vals, err = toValues(data); err != nil {
			return nil, err
		}
	}
	s := newSeries(e, name, append([]starlark.Value(nil), vals...), nil, nil)
	if idx := a.get("index", 1); idx != nil && idx != starlark.None {
		labs, err := toValues(idx)
		if err != nil {
			return nil, err
		}
		if len(labs) != len(vals) {
			return nil, fmt.Errorf("Series: index has %d labels, want %d", len(labs), len(vals))
		}
		s.index = labs
	}
	return s, nil
}

func (e *Env) pdConcat(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	objs, err := toValues(a.get("objs", 0))
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("concat: no objects to concatenate")
	}
	ignore := a.boolean("ignore_index", -1, false)
	if axis, _ := a.integer("axis", 1, 0); axis == 1 {
		out := newFrame(e, nil, map[string][]starlark.Value{})
		for _, o := range objs {
			switch x := o.(type) {
			case *Series:
				out.setColumn(x.name, x.values)
				out.index = x.index
			case *DataFrame:
				for _, c := range x.cols {
					out.setColumn(c, x.data[c])
				}
				out.index = x.index
			}
		}
		return out, nil
	}
	if _, ok := objs[0].(*Series); ok {
		var vals, idx []starlark.Value
		for _, o := range objs {
			s, ok := o.(*Series)
			if !ok {
				return nil, fmt.Errorf("concat: cannot mix Series and %s", o.Type())
			}
			vals = append(vals, s.values...)
			idx = append(idx, s.labels()...)
		}
		out := newSeries(e, objs[0].(*Series).name, vals, idx, nil)
		if ignore {
			out.index = nil
		}
		return out, nil
	}
	out := newFrame(e, nil, map[string][]starlark.Value{})
	var idx []starlark.Value
	total := 0
	for _, o := range objs {
		df, ok := o.(*DataFrame)
		if !ok {
			return nil, fmt.Errorf("concat: cannot mix DataFrame and %s", o.Type())
		}
		for _, c := range df.cols {
			if _, exists := out.data[c]; !exists {
				fill := make([]starlark.Value, total)
				for i := range fill {
					fill[i] = nan
				}
				out.setColumn(c, fill)
			}
		}
		n := df.rows()
		for _, c := range out.cols {
			src, ok := df.data[c]
			if !ok {
				src = make([]starlark.Value, n)
				for i := range src {
					src[i] = nan
				}
			}
			out.data[c] = append(out.data[c], src...)
		}
		idx = append(idx, df.labels()...)
		total += n
	}
	if !ignore {
		out.index = idx
	}
	return out, nil
}

func (e *Env) pdToNumeric(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	arg := a.get("arg", 0)
	coerce, _ := a.str("errors", -1, "raise")
	conv := func(v starlark.Value) (starlark.Value, error) {
		if isNA(v) || isNumeric(v) {
			return v, nil
		}
		if s, ok := v.(starlark.String); ok {
			if f, ok := parseFloat(string(s)); ok {
				if f == float64(int64(f)) && !strings.ContainsAny(string(s), ".eE") {
					return starlark.MakeInt64(int64(f)), nil
				}
				return starlark.Float(f), nil
			}
		}
		if coerce == "coerce" {
			return nan, nil
		}
		if coerce == "ignore" {
			return v, nil
		}
		return nil, fmt.Errorf("unable to parse string %s", v.String())
	}
	if s, ok := arg.(*Series); ok {
		return s.mapValues(conv)
	}
	return conv(arg)
}

func normalizeDate(v starlark.Value, coerce bool) (starlark.Value, error) {
	s, ok := v.(starlark.String)
	if !ok {
		return v, nil
	}
	t, ok := dataset.ParseTime(string(s))
	if !ok {
		if coerce {
			return starlark.None, nil
		}
		return nil, fmt.Errorf("unknown datetime string format: %q", string(s))
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return starlark.String(t.Format("2006-01-02")), nil
	}
	return starlark.String(t.Format("2006-01-02 15:04:05")), nil
}

func (e *Env) pdToDatetime(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	arg := a.get("arg", 0)
	mode, _ := a.str("errors", -1, "raise")
	conv := func(v starlark.Value) (starlark.Value, error) { return normalizeDate(v, mode == "coerce") }
	if s, ok := arg.(*Series); ok {
		return s.mapValues(conv)
	}
	return conv(arg)
}

func (e *Env) pdIsNA(want bool) methodFunc {
	return func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
		switch x := a.get("obj", 0).(type) {
		case *Series:
			return seriesNA(want)(x, nil, a)
		case *DataFrame:
			return frameNA(want)(x, nil, a)
		case nil:
			return nil, fmt.Errorf("%s: missing argument", a.fn)
		default:
			return starlark.Bool(isNA(x) == want), nil
		}
	}
}

func (e *Env) pdCrosstab(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	rs, ok1 := a.get("index", 0).(*Series)
	cs, ok2 := a.get("columns", 1).(*Series)
	if !ok1 || !ok2 || len(rs.values) != len(cs.values) {
		return nil, fmt.Errorf("crosstab: index and columns must be Series of equal length")
	}
	name := func(s *Series, def string) string {
		if s.name != "" {
			return s.name
		}
		return def
	}
	tmp := newFrame(e, []string{"r", "c"}, map[string][]starlark.Value{"r": rs.values, "c": cs.values})
	gb, err := newGroupBy(tmp, []string{"r", "c"}, true, true)
	if err != nil {
		return nil, err
	}
	var rowLabels []starlark.Value
	rowPos := map[string]int{}
	var colNames []string
	colSeen := map[string]bool{}
	for _, g := range gb.groups {
		if _, ok := rowPos[key(g.key[0])]; !ok {
			rowPos[key(g.key[0])] = len(rowLabels)
			rowLabels = append(rowLabels, g.key[0])
		}
		if c := display(g.key[1]); !colSeen[c] {
			colSeen[c] = true
			colNames = append(colNames, c)
		}
	}
	data := map[string][]starlark.Value{}
	for _, c := range colNames {
		col := make([]starlark.Value, len(rowLabels))
		for i := range col {
			col[i] = starlark.MakeInt(0)
		}
		data[c] = col
	}
	for _, g := range gb.groups {
		data[display(g.key[1])][rowPos[key(g.key[0])]] = starlark.MakeInt(len(g.rows))
	}
	out := newFrame(e, colNames, data)
	out.index = rowLabels
	out.indexNames = []string{name(rs, "row_0")}
	return out, nil
}

// pdCut assigns values to right-closed bins given as explicit edges.
func (e *Env) pdCut(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
	s, ok := a.get("x", 0).(*Series)
	if !ok {
		return nil, fmt.Errorf("cut: x must be a Series")
	}
	edgeVals, err := toValues(a.get("bins", 1))
	if err != nil {
		return nil, fmt.Errorf("cut: bins must be a list of edges")
	}
	edges := floats(edgeVals)
	if len(edges) < 2 {
		return nil, fmt.Errorf("cut: need at least two bin edges")
	}
	var names []starlark.Value
	if l := a.get("labels", -1); l != nil && l != starlark.None {
		if names, err = toValues(l); err != nil {
			return nil, err
		}
		if len(names) != len(edges)-1 {
			return nil, fmt.Errorf("cut: labels must be one fewer than bin edges")
		}
	} else {
		for i := 0; i+1 < len(edges); i++ {
			names = append(names, starlark.String(fmt.Sprintf("(%s, %s]", dataset.FormatFloat(edges[i]), dataset.FormatFloat(edges[i+1]))))
		}
	}
	return s.mapValues(func(v starlark.Value) (starlark.Value, error) {
		f, ok := number(v)
		if !ok {
			return starlark.None, nil
		}
		for i := 0; i+1 < len(edges); i++ {
			if f > edges[i] && f <= edges[i+1] {
				return names[i], nil
			}
		}
		return starlark.None, nil
	})
}

func (e *Env) pdModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{Name: "pd", Members: starlark.StringDict{
		"DataFrame":   builtin("DataFrame", e.pdDataFrame),
		"Series":      builtin("Series", e.pdSeries),
		"concat":      builtin("concat", e.pdConcat),
		"to_numeric":  builtin("to_numeric", e.pdToNumeric),
		"to_datetime": builtin("to_datetime", e.pdToDatetime),
		"isna":        builtin("isna", e.pdIsNA(true)),
		"isnull":      builtin("isnull", e.pdIsNA(true)),
		"notna":       builtin("notna", e.pdIsNA(false)),
		"notnull":     builtin("notnull", e.pdIsNA(false)),
		"crosstab":    builtin("crosstab", e.pdCrosstab),
		"cut":         builtin("cut", e.pdCut),
		"set_option":  noop("set_option", nil),
		"NA":          starlark.None,
		"NaT":         starlark.None,
		"read_csv": builtin("read_csv", func(*starlark.Thread, callArgs) (starlark.Value, error) {
			return nil, fmt.Errorf("read_csv is unavailable: the dataset is already loaded as df")
		}),
	}}
}
