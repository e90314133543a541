package starlib

import (
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"
)

type aggFunc func(vals []starlark.Value) (starlark.Value, error)

var aggregators map[string]aggFunc

// numericAggs skip non-numeric columns when applied to a whole frame.
var numericAggs = map[string]bool{"mean": true, "median": true, "std": true, "var": true, "sum": true}

func init() {
	aggregators = map[string]aggFunc{
		"count": func(vals []starlark.Value) (starlark.Value, error) {
			n := 0
			for _, v := range vals {
				if !isNA(v) {
					n++
				}
			}
			return starlark.MakeInt(n), nil
		},
		"size": func(vals []starlark.Value) (starlark.Value, error) {
			return starlark.MakeInt(len(vals)), nil
		},
		"sum":    aggSum,
		"mean":   numericAgg(mean),
		"median": numericAgg(median),
		"std":    numericAgg(func(xs []float64) float64 { return math.Sqrt(variance(xs)) }),
		"var":    numericAgg(variance),
		"min":    extreme(-1),
		"max":    extreme(1),
		"nunique": func(vals []starlark.Value) (starlark.Value, error) {
			seen := map[string]bool{}
			for _, v := range vals {
				if !isNA(v) {
					seen[key(v)] = true
				}
			}
			return starlark.MakeInt(len(seen)), nil
		},
		"first": func(vals []starlark.Value) (starlark.Value, error) {
			for _, v := range vals {
				if !isNA(v) {
					return v, nil
				}
			}
			return nan, nil
		},
		"last": func(vals []starlark.Value) (starlark.Value, error) {
			for i := len(vals) - 1; i >= 0; i-- {
				if !isNA(vals[i]) {
					return vals[i], nil
				}
			}
			return nan, nil
		},
	}
}

func aggregate(name string, vals []starlark.Value) (starlark.Value, error) {
	fn, ok := aggregators[name]
	if !ok {
		return nil, fmt.Errorf("unsupported aggregation %q", name)
	}
	return fn(vals)
}

// aggName accepts "mean" or a builtin such as sum/min/max passed as a
// function object.
func aggName(v starlark.Value) (string, error) {
	if s, ok := starlark.AsString(v); ok {
		return s, nil
	}
	if b, ok := v.(*starlark.Builtin); ok {
		return b.Name(), nil
	}
	return "", fmt.Errorf("aggregation must be a name, got %s", v.Type())
}

func numericValues(vals []starlark.Value) ([]float64, error) {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if isNA(v) {
			continue
		}
		f, ok := number(v)
		if !ok {
			return nil, fmt.Errorf("could not convert %s %s to numeric", v.Type(), v.String())
		}
		out = append(out, f)
	}
	return out, nil
}

func numericAgg(fn func([]float64) float64) aggFunc {
	return func(vals []starlark.Value) (starlark.Value, error) {
		xs, err := numericValues(vals)
		if err != nil {
			return nil, err
		}
		return floatValue(fn(xs)), nil
	}
}

func aggSum(vals []starlark.Value) (starlark.Value, error) {
	allInt := true
	var total float64
	var itotal int64
	for _, v := range vals {
		if isNA(v) {
			continue
		}
		switch x := v.(type) {
		case starlark.Int:
			n, _ := x.Int64()
			itotal += n
			total += float64(n)
		case starlark.Bool:
			if x {
				itotal++
				total++
			}
		case starlark.Float:
			allInt = false
			total += float64(x)
		default:
			return nil, fmt.Errorf("could not sum %s values", v.Type())
		}
	}
	if allInt {
		return starlark.MakeInt64(itotal), nil
	}
	return starlark.Float(total), nil
}

// extreme returns the minimum (dir -1) or maximum (dir 1) non-missing value,
// keeping its original type.
func extreme(dir int) aggFunc {
	return func(vals []starlark.Value) (starlark.Value, error) {
		var best starlark.Value
		for _, v := range vals {
			if isNA(v) {
				continue
			}
			if best == nil || compare(v, best)*dir > 0 {
				best = v
			}
		}
		if best == nil {
			return nan, nil
		}
		return best, nil
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func median(xs []float64) float64 {
	return quantile(xs, 0.5)
}

func quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	cp := append([]float64(nil), xs...)
	sort.Float64s(cp)
	pos := q * float64(len(cp)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return cp[lo]
	}
	return cp[lo] + (pos-float64(lo))*(cp[hi]-cp[lo])
}

// variance uses one degree of freedom like pandas.
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	var s float64
	for _, x := range xs {
		s += (x - m) * (x - m)
	}
	return s / float64(len(xs)-1)
}

func correlation(a, b []float64) float64 {
	var xs, ys []float64
	for i := 0; i < len(a) && i < len(b); i++ {
		if !math.IsNaN(a[i]) && !math.IsNaN(b[i]) {
			xs = append(xs, a[i])
			ys = append(ys, b[i])
		}
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}
