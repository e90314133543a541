package starlib

import (
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
)

// ilocIndexer provides positional access: .iloc[i], .iloc[i, j] and
// .iloc[a:b].
type ilocIndexer struct {
	target starlark.Value // *Series or *DataFrame
}

var (
	_ starlark.Mapping   = (*ilocIndexer)(nil)
	_ starlark.Sliceable = (*ilocIndexer)(nil)
)

func (x *ilocIndexer) String() string        { return "<iloc>" }
func (x *ilocIndexer) Type() string          { return "iloc" }
func (x *ilocIndexer) Freeze()               {}
func (x *ilocIndexer) Truth() starlark.Bool  { return true }
func (x *ilocIndexer) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: iloc") }

func (x *ilocIndexer) Len() int {
	switch t := x.target.(type) {
	case *Series:
		return t.Len()
	case *DataFrame:
		return t.rows()
	}
	return 0
}

func (x *ilocIndexer) position(k starlark.Value, n int) (int, error) {
	var i int
	if err := starlark.AsInt(k, &i); err != nil {
		return 0, fmt.Errorf("iloc: positions must be integers, got %s", k.Type())
	}
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("iloc: position %d out of bounds for length %d", i, n)
	}
	return i, nil
}

func (x *ilocIndexer) Index(i int) starlark.Value {
	switch t := x.target.(type) {
	case *Series:
		return t.values[i]
	case *DataFrame:
		return t.rowSeries(i)
	}
	return starlark.None
}

func (x *ilocIndexer) Get(k starlark.Value) (starlark.Value, bool, error) {
	n := x.Len()
	if t, ok := k.(starlark.Tuple); ok && len(t) == 2 {
		df, ok := x.target.(*DataFrame)
		if !ok {
			return nil, false, fmt.Errorf("iloc: too many indexers")
		}
		i, err := x.position(t[0], n)
		if err != nil {
			return nil, false, err
		}
		j, err := x.position(t[1], len(df.cols))
		if err != nil {
			return nil, false, err
		}
		return df.data[df.cols[j]][i], true, nil
	}
	i, err := x.position(k, n)
	if err != nil {
		return nil, false, err
	}
	return x.Index(i), true, nil
}

func (x *ilocIndexer) Slice(start, end, step int) starlark.Value {
	var rows []int
	if step > 0 {
		for i := start; i < end; i += step {
			rows = append(rows, i)
		}
	} else {
		for i := start; i > end; i += step {
			rows = append(rows, i)
		}
	}
	switch t := x.target.(type) {
	case *Series:
		return t.take(rows)
	case *DataFrame:
		return t.take(rows)
	}
	return starlark.None
}

// locIndexer provides label access on frames: .loc[mask], .loc[label] and
// .loc[rows, cols].
type locIndexer struct {
	df *DataFrame
}

var _ starlark.Mapping = (*locIndexer)(nil)

func (x *locIndexer) String() string        { return "<loc>" }
func (x *locIndexer) Type() string          { return "loc" }
func (x *locIndexer) Freeze()               {}
func (x *locIndexer) Truth() starlark.Bool  { return true }
func (x *locIndexer) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: loc") }

func (x *locIndexer) rows(k starlark.Value) (*DataFrame, starlark.Value, error) {
	if mask, ok := k.(*Series); ok {
		rows, err := maskRows(mask, x.df.rows())
		if err != nil {
			return nil, nil, err
		}
		return x.df.take(rows), nil, nil
	}
	for i, l := range x.df.labels() {
		if equal(l, k) {
			return nil, x.df.rowSeries(i), nil
		}
	}
	return nil, nil, fmt.Errorf("KeyError: %s", k.String())
}

func (x *locIndexer) Get(k starlark.Value) (starlark.Value, bool, error) {
	t, ok := k.(starlark.Tuple)
	if !ok || len(t) != 2 {
		sub, row, err := x.rows(k)
		if err != nil {
			return nil, false, err
		}
		if row != nil {
			return row, true, nil
		}
		return sub, true, nil
	}
	sub, row, err := x.rows(t[0])
	if err != nil {
		return nil, false, err
	}
	if row != nil {
		v, _, err := row.(*Series).Get(t[1])
		return v, err == nil, err
	}
	v, _, err := sub.Get(t[1])
	return v, err == nil, err
}

// strAccessor implements the vectorized string methods under .str.
type strAccessor struct {
	s *Series
}

func (x *strAccessor) String() string        { return "<str accessor>" }
func (x *strAccessor) Type() string          { return "StringMethods" }
func (x *strAccessor) Freeze()               {}
func (x *strAccessor) Truth() starlark.Bool  { return true }
func (x *strAccessor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: StringMethods") }

func (x *strAccessor) each(fn func(s string) (starlark.Value, error)) (starlark.Value, error) {
	return x.s.mapValues(func(v starlark.Value) (starlark.Value, error) {
		s, ok := v.(starlark.String)
		if !ok {
			return nan, nil
		}
		return fn(string(s))
	})
}

var strMethods = []string{"lower", "upper", "strip", "title", "len", "contains", "startswith", "endswith", "replace", "split", "slice"}

func (x *strAccessor) AttrNames() []string { return strMethods }

func (x *strAccessor) Attr(name string) (starlark.Value, error) {
	var fn methodFunc
	switch name {
	case "lower", "upper", "strip", "title":
		conv := map[string]func(string) string{
			"lower": strings.ToLower,
			"upper": strings.ToUpper,
			"strip": strings.TrimSpace,
			"title": titleCase,
		}[name]
		fn = func(*starlark.Thread, callArgs) (starlark.Value, error) {
			return x.each(func(s string) (starlark.Value, error) { return starlark.String(conv(s)), nil })
		}
	case "len":
		fn = func(*starlark.Thread, callArgs) (starlark.Value, error) {
			return x.each(func(s string) (starlark.Value, error) { return starlark.MakeInt(len([]rune(s))), nil })
		}
	case "contains", "startswith", "endswith":
		fn = func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			pat, err := a.str("pat", 0, "")
			if err != nil {
				return nil, err
			}
			caseSensitive := a.boolean("case", -1, true)
			if !caseSensitive {
				pat = strings.ToLower(pat)
			}
			res, err := x.each(func(s string) (starlark.Value, error) {
				if !caseSensitive {
					s = strings.ToLower(s)
				}
				switch name {
				case "startswith":
					return starlark.Bool(strings.HasPrefix(s, pat)), nil
				case "endswith":
					return starlark.Bool(strings.HasSuffix(s, pat)), nil
				}
				return starlark.Bool(strings.Contains(s, pat)), nil
			})
			if err != nil {
				return nil, err
			}
			ser := res.(*Series)
			for i, v := range ser.values {
				if isNA(v) {
					ser.values[i] = starlark.False
				}
			}
			return ser, nil
		}
	case "replace":
		fn = func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			old, err := a.str("pat", 0, "")
			if err != nil {
				return nil, err
			}
			repl, err := a.str("repl", 1, "")
			if err != nil {
				return nil, err
			}
			return x.each(func(s string) (starlark.Value, error) {
				return starlark.String(strings.ReplaceAll(s, old, repl)), nil
			})
		}
	case "split":
		fn = func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			sep, err := a.str("pat", 0, "")
			if err != nil {
				return nil, err
			}
			return x.each(func(s string) (starlark.Value, error) {
				var parts []string
				if sep == "" {
					parts = strings.Fields(s)
				} else {
					parts = strings.Split(s, sep)
				}
				return stringList(parts), nil
			})
		}
	case "slice":
		fn = func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			start, err := a.integer("start", 0, 0)
			if err != nil {
				return nil, err
			}
			stop, err := a.integer("stop", 1, -1)
			if err != nil {
				return nil, err
			}
			return x.each(func(s string) (starlark.Value, error) {
				r := []rune(s)
				lo, hi := clampCount(start, len(r)), len(r)
				if stop >= 0 || a.has("stop", 1) {
					hi = clampCount(stop, len(r))
				}
				if lo > hi {
					lo = hi
				}
				return starlark.String(string(r[lo:hi])), nil
			})
		}
	default:
		return nil, nil
	}
	return builtin(name, fn), nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// dtAccessor exposes date parts of timestamp strings under .dt.
type dtAccessor struct {
	s *Series
}

func (x *dtAccessor) String() string        { return "<dt accessor>" }
func (x *dtAccessor) Type() string          { return "DatetimeProperties" }
func (x *dtAccessor) Freeze()               {}
func (x *dtAccessor) Truth() starlark.Bool  { return true }
func (x *dtAccessor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DatetimeProperties") }

func (x *dtAccessor) each(fn func(t time.Time) starlark.Value) *Series {
	out, _ := x.s.mapValues(func(v starlark.Value) (starlark.Value, error) {
		s, ok := v.(starlark.String)
		if !ok {
			return nan, nil
		}
		t, ok := dataset.ParseTime(string(s))
		if !ok {
			return nan, nil
		}
		return fn(t), nil
	})
	return out
}

func (x *dtAccessor) AttrNames() []string {
	return []string{"year", "month", "day", "hour", "minute", "dayofweek", "weekday", "quarter", "date", "month_name", "day_name", "strftime"}
}

func (x *dtAccessor) Attr(name string) (starlark.Value, error) {
	num := func(f func(time.Time) int) *Series {
		return x.each(func(t time.Time) starlark.Value { return starlark.MakeInt(f(t)) })
	}
	switch name {
	case "year":
		return num(time.Time.Year), nil
	case "month":
		return num(func(t time.Time) int { return int(t.Month()) }), nil
	case "day":
		return num(time.Time.Day), nil
	case "hour":
		return num(time.Time.Hour), nil
	case "minute":
		return num(time.Time.Minute), nil
	case "dayofweek", "weekday":
		return num(func(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }), nil
	case "quarter":
		return num(func(t time.Time) int { return (int(t.Month())-1)/3 + 1 }), nil
	case "date":
		return x.each(func(t time.Time) starlark.Value { return starlark.String(t.Format("2006-01-02")) }), nil
	case "month_name":
		return builtin(name, func(*starlark.Thread, callArgs) (starlark.Value, error) {
			return x.each(func(t time.Time) starlark.Value { return starlark.String(t.Month().String()) }), nil
		}), nil
	case "day_name":
		return builtin(name, func(*starlark.Thread, callArgs) (starlark.Value, error) {
			return x.each(func(t time.Time) starlark.Value { return starlark.String(t.Weekday().String()) }), nil
		}), nil
	case "strftime":
		return builtin(name, func(_ *starlark.Thread, a callArgs) (starlark.Value, error) {
			f, err := a.str("date_format", 0, "%Y-%m-%d")
			if err != nil {
				return nil, err
			}
			layout := strftimeLayout(f)
			return x.each(func(t time.Time) starlark.Value { return starlark.String(t.Format(layout)) }), nil
		}), nil
	}
	return nil, nil
}

func strftimeLayout(f string) string {
	return strings.NewReplacer(
		"%Y", "2006", "%m", "01", "%d", "02", "%H", "15", "%M", "04", "%S", "05",
		"%b", "Jan", "%B", "January", "%a", "Mon", "%A", "Monday", "%y", "06",
	).Replace(f)
}
