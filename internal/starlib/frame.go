package starlib

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
)

// DataFrame is a mutable, column-oriented table visible to scripts. The
// dataset it was built from is never modified.
type DataFrame struct {
	env        *Env
	name       string
	cols       []string
	data       map[string][]starlark.Value
	index      []starlark.Value // nil means 0..n-1
	indexNames []string
	frozen     bool
}

var (
	_ starlark.HasAttrs  = (*DataFrame)(nil)
	_ starlark.HasSetKey = (*DataFrame)(nil)
	_ starlark.Sequence  = (*DataFrame)(nil)
)

func newFrame(env *Env, cols []string, data map[string][]starlark.Value) *DataFrame {
	return &DataFrame{env: env, cols: cols, data: data}
}

// FromDataset wraps a dataset frame. Cells are converted once; later edits
// only touch the wrapper.
func FromDataset(env *Env, f *dataset.Frame) *DataFrame {
	cols := f.Columns()
	data := make(map[string][]starlark.Value, len(cols))
	for i, name := range cols {
		c := f.ColumnAt(i)
		vals := make([]starlark.Value, len(c.Values))
		for j, v := range c.Values {
			vals[j] = fromCell(v)
		}
		data[name] = vals
	}
	df := newFrame(env, cols, data)
	df.name = f.Name()
	return df
}

func (df *DataFrame) rows() int {
	if len(df.cols) > 0 {
		return len(df.data[df.cols[0]])
	}
	return len(df.index)
}

func (df *DataFrame) labels() []starlark.Value {
	if df.index == nil {
		return rangeIndex(df.rows())
	}
	return df.index
}

func (df *DataFrame) column(name string) (*Series, error) {
	vals, ok := df.data[name]
	if !ok {
		return nil, fmt.Errorf("KeyError: %q (columns: %s)", name, strings.Join(df.cols, ", "))
	}
	return newSeries(df.env, name, vals, df.index, df.indexNames), nil
}

// take selects rows by position, keeping labels.
func (df *DataFrame) take(rows []int) *DataFrame {
	data := make(map[string][]starlark.Value, len(df.cols))
	for _, c := range df.cols {
		data[c] = pick(df.data[c], rows)
	}
	out := newFrame(df.env, append([]string(nil), df.cols...), data)
	out.name = df.name
	out.index = pick(df.labels(), rows)
	out.indexNames = df.indexNames
	return out
}

// selectCols returns a frame with only the named columns.
func (df *DataFrame) selectCols(names []string) (*DataFrame, error) {
	data := make(map[string][]starlark.Value, len(names))
	for _, n := range names {
		vals, ok := df.data[n]
		if !ok {
			return nil, fmt.Errorf("KeyError: %q not in columns", n)
		}
		data[n] = vals
	}
	out := newFrame(df.env, append([]string(nil), names...), data)
	out.name = df.name
	out.index = df.index
	out.indexNames = df.indexNames
	return out, nil
}

func (df *DataFrame) copyFrame() *DataFrame {
	out, _ := df.selectCols(df.cols)
	return out
}

func (df *DataFrame) String() string        { return df.repr() }
func (df *DataFrame) Type() string          { return "DataFrame" }
func (df *DataFrame) Freeze()               { df.frozen = true }
func (df *DataFrame) Truth() starlark.Bool  { return df.rows() > 0 }
func (df *DataFrame) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DataFrame") }
func (df *DataFrame) Len() int              { return df.rows() }

// Iterate yields column names, as iterating a pandas frame does.
func (df *DataFrame) Iterate() starlark.Iterator {
	vals := make([]starlark.Value, len(df.cols))
	for i, c := range df.cols {
		vals[i] = starlark.String(c)
	}
	return &sliceIter{vals: vals}
}

// Get supports df["col"], df[["a", "b"]] and df[mask].
func (df *DataFrame) Get(k starlark.Value) (starlark.Value, bool, error) {
	switch x := k.(type) {
	case starlark.String:
		s, err := df.column(string(x))
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	case *Series:
		rows, err := maskRows(x, df.rows())
		if err != nil {
			return nil, false, err
		}
		return df.take(rows), true, nil
	case *starlark.List, starlark.Tuple:
		names, err := toValues(x)
		if err != nil {
			return nil, false, err
		}
		cols := make([]string, len(names))
		for i, n := range names {
			s, ok := starlark.AsString(n)
			if !ok {
				return nil, false, fmt.Errorf("column names must be strings, got %s", n.Type())
			}
			cols[i] = s
		}
		out, err := df.selectCols(cols)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	}
	return nil, false, fmt.Errorf("unsupported key type %s", k.Type())
}

// SetKey assigns a column from a series, list or scalar.
func (df *DataFrame) SetKey(k, v starlark.Value) error {
	if df.frozen {
		return fmt.Errorf("cannot modify frozen DataFrame")
	}
	name, ok := starlark.AsString(k)
	if !ok {
		return fmt.Errorf("column name must be a string, got %s", k.Type())
	}
	vals, err := df.broadcast(v)
	if err != nil {
		return fmt.Errorf("assign %q: %w", name, err)
	}
	df.setColumn(name, vals)
	return nil
}

func (df *DataFrame) setColumn(name string, vals []starlark.Value) {
	if _, exists := df.data[name]; !exists {
		df.cols = append(df.cols, name)
	}
	df.data[name] = vals
}

func (df *DataFrame) broadcast(v starlark.Value) ([]starlark.Value, error) {
	n := df.rows()
	switch v.(type) {
	case *Series, *starlark.List, starlark.Tuple:
		vals, err := toValues(v)
		if err != nil {
			return nil, err
		}
		if len(df.cols) > 0 && len(vals) != n {
			return nil, fmt.Errorf("length of values (%d) does not match length of index (%d)", len(vals), n)
		}
		return append([]starlark.Value(nil), vals...), nil
	}
	out := make([]starlark.Value, n)
	for i := range out {
		out[i] = v
	}
	return out, nil
}

// Table exposes the frame to the renderer.
func (df *DataFrame) Table() (*dataset.Frame, error) {
	var cols []dataset.Column
	if df.index != nil {
		cols = append(cols, indexColumns(df.index, df.indexNames)...)
	}
	for _, c := range df.cols {
		vals := make([]any, len(df.data[c]))
		for i, v := range df.data[c] {
			vals[i] = toCell(v)
		}
		cols = append(cols, dataset.Column{Name: c, Values: vals})
	}
	return dataset.New(df.name, cols)
}

func (df *DataFrame) repr() string {
	n := df.rows()
	if len(df.cols) == 0 {
		return fmt.Sprintf("Empty DataFrame\nColumns: []\nIndex: [%d rows]", n)
	}
	rows := make([]int, 0, n)
	truncated := n > maxReprRows
	if truncated {
		rows = append(seqInts(0, reprEdge), seqInts(n-reprEdge, n)...)
	} else {
		rows = seqInts(0, n)
	}
	labs := df.labels()
	labW := 0
	if len(df.indexNames) > 0 {
		labW = len(strings.Join(df.indexNames, ", "))
	}
	for _, i := range rows {
		labW = max(labW, len(display(labs[i])))
	}
	widths := make([]int, len(df.cols))
	for j, c := range df.cols {
		widths[j] = len(c)
		for _, i := range rows {
			widths[j] = max(widths[j], len(display(df.data[c][i])))
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-*s", labW, "")
	for j, c := range df.cols {
		fmt.Fprintf(&b, "  %*s", widths[j], c)
	}
	b.WriteString("\n")
	if len(df.indexNames) > 0 && df.indexNames[0] != "" {
		b.WriteString(strings.Join(df.indexNames, ", "))
		b.WriteString("\n")
	}
	for k, i := range rows {
		if truncated && k == reprEdge {
			fmt.Fprintf(&b, "%-*s", labW, "...")
			for j := range df.cols {
				fmt.Fprintf(&b, "  %*s", widths[j], "...")
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-*s", labW, display(labs[i]))
		for j, c := range df.cols {
			fmt.Fprintf(&b, "  %*s", widths[j], display(df.data[c][i]))
		}
		b.WriteString("\n")
	}
	if truncated {
		fmt.Fprintf(&b, "\n[%d rows x %d columns]", n, len(df.cols))
	}
	return strings.TrimRight(b.String(), "\n")
}

type frameMethod func(df *DataFrame, thread *starlark.Thread, a callArgs) (starlark.Value, error)

var frameMethods map[string]frameMethod

func (df *DataFrame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		return stringList(df.cols), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(df.rows()), starlark.MakeInt(len(df.cols))}, nil
	case "index":
		return listOf(df.labels()), nil
	case "size":
		return starlark.MakeInt(df.rows() * len(df.cols)), nil
	case "empty":
		return starlark.Bool(df.rows() == 0 || len(df.cols) == 0), nil
	case "dtypes":
		vals := make([]starlark.Value, len(df.cols))
		idx := make([]starlark.Value, len(df.cols))
		for i, c := range df.cols {
			vals[i] = starlark.String(dtype(df.data[c]))
			idx[i] = starlark.String(c)
		}
		return newSeries(df.env, "", vals, idx, nil), nil
	case "values":
		out := make([]starlark.Value, df.rows())
		for i := range out {
			row := make([]starlark.Value, len(df.cols))
			for j, c := range df.cols {
				row[j] = df.data[c][i]
			}
			out[i] = starlark.NewList(row)
		}
		return starlark.NewList(out), nil
	case "plot":
		return &plotAccessor{env: df.env, target: df}, nil
	case "iloc":
		return &ilocIndexer{target: df}, nil
	case "loc":
		return &locIndexer{df: df}, nil
	case "T":
		return df.transpose(), nil
	}
	if m, ok := frameMethods[name]; ok {
		return builtin(name, func(thread *starlark.Thread, a callArgs) (starlark.Value, error) {
			return m(df, thread, a)
		}), nil
	}
	if _, ok := df.data[name]; ok {
		return df.column(name)
	}
	return nil, nil
}

func (df *DataFrame) AttrNames() []string {
	names := []string{"columns", "shape", "index", "size", "empty", "dtypes", "values", "plot", "iloc", "loc", "T"}
	for k := range frameMethods {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (df *DataFrame) headN(n int) *DataFrame {
	n = clampCount(n, df.rows())
	return df.take(seqInts(0, n))
}

func (df *DataFrame) tailN(n int) *DataFrame {
	n = clampCount(n, df.rows())
	return df.take(seqInts(df.rows()-n, df.rows()))
}

// resetIndex moves labels back into leading columns.
func (df *DataFrame) resetIndex(drop bool) *DataFrame {
	out := df.copyFrame()
	out.index, out.indexNames = nil, nil
	if drop || df.index == nil {
		return out
	}
	var lead []string
	for _, c := range indexColumns(df.index, df.indexNames) {
		name := c.Name
		for {
			if _, taken := out.data[name]; !taken {
				break
			}
			name = "level_" + name
		}
		vals := make([]starlark.Value, len(c.Values))
		for i, v := range c.Values {
			vals[i] = fromCell(v)
		}
		out.data[name] = vals
		lead = append(lead, name)
	}
	out.cols = append(lead, out.cols...)
	return out
}

// reduce applies an aggregation to every eligible column and returns a
// series indexed by column name.
func (df *DataFrame) reduce(agg string) (*Series, error) {
	var vals, idx []starlark.Value
	for _, c := range df.cols {
		if numericAggs[agg] && !numericColumn(df.data[c]) {
			continue
		}
		v, err := aggregate(agg, df.data[c])
		if err != nil {
			return nil, fmt.Errorf("%s of column %q: %w", agg, c, err)
		}
		vals = append(vals, v)
		idx = append(idx, starlark.String(c))
	}
	return newSeries(df.env, "", vals, idx, nil), nil
}

func (df *DataFrame) numericCols() []string {
	var out []string
	for _, c := range df.cols {
		if numericColumn(df.data[c]) {
			out = append(out, c)
		}
	}
	return out
}

func (df *DataFrame) describe() *DataFrame {
	cols := df.numericCols()
	if len(cols) == 0 {
		cols = df.cols
	}
	data := map[string][]starlark.Value{}
	var index []starlark.Value
	for _, c := range cols {
		s := newSeries(df.env, c, df.data[c], nil, nil).describe()
		data[c] = s.values
		index = s.index
	}
	out := newFrame(df.env, cols, data)
	out.index = index
	return out
}

func (df *DataFrame) corr() *DataFrame {
	cols := df.numericCols()
	data := make(map[string][]starlark.Value, len(cols))
	index := make([]starlark.Value, len(cols))
	for i, ci := range cols {
		index[i] = starlark.String(ci)
		col := make([]starlark.Value, len(cols))
		for j, cj := range cols {
			col[j] = floatValue(correlation(floats(df.data[cj]), floats(df.data[ci])))
		}
		data[ci] = col
	}
	out := newFrame(df.env, cols, data)
	out.index = index
	return out
}

func (df *DataFrame) transpose() *DataFrame {
	labs := df.labels()
	cols := make([]string, len(labs))
	data := make(map[string][]starlark.Value, len(labs))
	for i, l := range labs {
		cols[i] = display(l)
		col := make([]starlark.Value, len(df.cols))
		for j, c := range df.cols {
			col[j] = df.data[c][i]
		}
		data[cols[i]] = col
	}
	out := newFrame(df.env, cols, data)
	out.index = make([]starlark.Value, len(df.cols))
	for j, c := range df.cols {
		out.index[j] = starlark.String(c)
	}
	return out
}

func (df *DataFrame) sortValues(by []string, ascending []bool) (*DataFrame, error) {
	for _, b := range by {
		if _, ok := df.data[b]; !ok {
			return nil, fmt.Errorf("KeyError: %q", b)
		}
	}
	order := stableOrder(df.rows(), func(i, j int) bool {
		for k, b := range by {
			vi, vj := df.data[b][i], df.data[b][j]
			c := compare(vi, vj)
			if c == 0 {
				continue
			}
			if isNA(vi) || isNA(vj) || ascending[k] {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return df.take(order), nil
}

func (df *DataFrame) rowSeries(i int) *Series {
	vals := make([]starlark.Value, len(df.cols))
	idx := make([]starlark.Value, len(df.cols))
	for j, c := range df.cols {
		vals[j] = df.data[c][i]
		idx[j] = starlark.String(c)
	}
	return newSeries(df.env, display(df.labels()[i]), vals, idx, nil)
}

func (df *DataFrame) info() string {
	var b strings.Builder
	b.WriteString("<class 'pandas.core.frame.DataFrame'>\n")
	fmt.Fprintf(&b, "RangeIndex: %d entries, 0 to %d\n", df.rows(), max(df.rows()-1, 0))
	fmt.Fprintf(&b, "Data columns (total %d columns):\n", len(df.cols))
	nameW := len("Column")
	for _, c := range df.cols {
		nameW = max(nameW, len(c))
	}
	fmt.Fprintf(&b, " #   %-*s  Non-Null Count  Dtype\n", nameW, "Column")
	for i, c := range df.cols {
		nn, _ := aggregate("count", df.data[c])
		fmt.Fprintf(&b, " %-3d %-*s  %s non-null  %s\n", i, nameW, c, nn.String(), dtype(df.data[c]))
	}
	return strings.TrimRight(b.String(), "\n")
}
