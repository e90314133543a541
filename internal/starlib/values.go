package starlib

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
)

var nan = starlark.Float(math.NaN())

// fromCell converts a dataset cell to a Starlark value.
func fromCell(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case int64:
		return starlark.MakeInt64(x)
	case float64:
		return starlark.Float(x)
	case string:
		return starlark.String(x)
	case bool:
		return starlark.Bool(x)
	default:
		return starlark.String(fmt.Sprint(x))
	}
}

// toCell converts a Starlark value to a dataset cell.
func toCell(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return n
		}
		f, _ := starlark.AsFloat(x)
		return f
	case starlark.Float:
		if math.IsNaN(float64(x)) {
			return nil
		}
		return float64(x)
	case starlark.String:
		return string(x)
	case starlark.Bool:
		return bool(x)
	case starlark.Tuple:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = display(e)
		}
		return strings.Join(parts, ", ")
	default:
		return v.String()
	}
}

// isNA reports None or a NaN float.
func isNA(v starlark.Value) bool {
	switch x := v.(type) {
	case starlark.NoneType:
		return true
	case starlark.Float:
		return math.IsNaN(float64(x))
	}
	return v == nil
}

// number returns the numeric value of Int, Float and Bool values.
func number(v starlark.Value) (float64, bool) {
	switch x := v.(type) {
	case starlark.Int:
		f, _ := starlark.AsFloat(x)
		return f, true
	case starlark.Float:
		if math.IsNaN(float64(x)) {
			return 0, false
		}
		return float64(x), true
	case starlark.Bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isNumeric(v starlark.Value) bool {
	switch v.(type) {
	case starlark.Int, starlark.Float, starlark.Bool:
		return true
	}
	return false
}

// floatValue maps NaN results to nan, keeping a single representation for
// missing numbers.
func floatValue(f float64) starlark.Value {
	if math.IsNaN(f) {
		return nan
	}
	return starlark.Float(f)
}

// display formats a single value the way a pandas repr would.
func display(v starlark.Value) string {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return "NaN"
	case starlark.Float:
		return dataset.FormatFloat(float64(x))
	case starlark.Bool:
		if x {
			return "True"
		}
		return "False"
	case starlark.String:
		return string(x)
	case starlark.Tuple:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = display(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return v.String()
}

// compare orders values for sorting: numbers numerically, strings
// lexically, missing values last, and mixed types by type name.
func compare(a, b starlark.Value) int {
	na, nb := isNA(a), isNA(b)
	switch {
	case na && nb:
		return 0
	case na:
		return 1
	case nb:
		return -1
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if sa, ok := a.(starlark.String); ok {
		if sb, ok := b.(starlark.String); ok {
			return strings.Compare(string(sa), string(sb))
		}
	}
	if ta, ok := a.(starlark.Tuple); ok {
		if tb, ok := b.(starlark.Tuple); ok {
			for i := 0; i < len(ta) && i < len(tb); i++ {
				if c := compare(ta[i], tb[i]); c != 0 {
					return c
				}
			}
			return len(ta) - len(tb)
		}
	}
	return strings.Compare(a.Type(), b.Type())
}

// key is a hashable identity for grouping and lookups.
func key(v starlark.Value) string {
	if isNA(v) {
		return "\x00NA"
	}
	if f, ok := v.(starlark.Float); ok && float64(f) == math.Trunc(float64(f)) && !math.IsInf(float64(f), 0) {
		return "n:" + starlark.MakeInt64(int64(f)).String()
	}
	if i, ok := v.(starlark.Int); ok {
		return "n:" + i.String()
	}
	return v.Type() + ":" + v.String()
}

func equal(a, b starlark.Value) bool {
	if isNA(a) || isNA(b) {
		return false
	}
	return key(a) == key(b)
}

// dtype names the pandas dtype of a column of values.
func dtype(vals []starlark.Value) string {
	ints, floats, bools, other := 0, 0, 0, 0
	for _, v := range vals {
		switch v.(type) {
		case starlark.Int:
			ints++
		case starlark.Float:
			floats++
		case starlark.Bool:
			bools++
		case starlark.NoneType:
			floats++
		default:
			other++
		}
	}
	switch {
	case other > 0:
		return "object"
	case bools > 0 && ints+floats == 0:
		return "bool"
	case bools > 0:
		return "object"
	case floats > 0:
		return "float64"
	case ints > 0:
		return "int64"
	}
	return "object"
}

func numericColumn(vals []starlark.Value) bool { return dtype(vals) != "object" }

// toValues flattens a Series, list, tuple or other iterable into values.
func toValues(v starlark.Value) ([]starlark.Value, error) {
	if v == nil || v == starlark.None {
		return nil, fmt.Errorf("expected a sequence, got None")
	}
	switch x := v.(type) {
	case *Series:
		return x.values, nil
	case *starlark.List:
		out := make([]starlark.Value, x.Len())
		for i := range out {
			out[i] = x.Index(i)
		}
		return out, nil
	case starlark.Tuple:
		return []starlark.Value(x), nil
	case starlark.Iterable:
		var out []starlark.Value
		it := x.Iterate()
		defer it.Done()
		var e starlark.Value
		for it.Next(&e) {
			out = append(out, e)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a sequence, got %s", v.Type())
}

func floats(vals []starlark.Value) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		if f, ok := number(v); ok {
			out[i] = f
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

func labels(vals []starlark.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = display(v)
	}
	return out
}

func listOf(vals []starlark.Value) *starlark.List {
	cp := make([]starlark.Value, len(vals))
	copy(cp, vals)
	return starlark.NewList(cp)
}

func stringList(ss []string) *starlark.List {
	vals := make([]starlark.Value, len(ss))
	for i, s := range ss {
		vals[i] = starlark.String(s)
	}
	return starlark.NewList(vals)
}

func rangeIndex(n int) []starlark.Value {
	out := make([]starlark.Value, n)
	for i := range out {
		out[i] = starlark.MakeInt(i)
	}
	return out
}

// stableOrder returns row positions sorted by the given comparator.
func stableOrder(n int, less func(i, j int) bool) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })
	return idx
}

func pick(vals []starlark.Value, rows []int) []starlark.Value {
	out := make([]starlark.Value, len(rows))
	for i, r := range rows {
		out[i] = vals[r]
	}
	return out
}
