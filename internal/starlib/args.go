package starlib

import (
	"fmt"

	"go.starlark.net/starlark"
)

// callArgs is a lenient argument view: unknown keywords are ignored.
type callArgs struct {
	fn  string
	pos starlark.Tuple
	kw  map[string]starlark.Value
}

func newArgs(fn string, args starlark.Tuple, kwargs []starlark.Tuple) callArgs {
	a := callArgs{fn: fn, pos: args, kw: make(map[string]starlark.Value, len(kwargs))}
	for _, kv := range kwargs {
		if k, ok := starlark.AsString(kv[0]); ok {
			a.kw[k] = kv[1]
		}
	}
	return a
}

// get returns the keyword value, else the positional value at pos (pos < 0
// means keyword-only), else nil.
func (a callArgs) get(name string, pos int) starlark.Value {
	if v, ok := a.kw[name]; ok {
		return v
	}
	if pos >= 0 && pos < len(a.pos) {
		return a.pos[pos]
	}
	return nil
}

func (a callArgs) has(name string, pos int) bool {
	v := a.get(name, pos)
	return v != nil && v != starlark.None
}

func (a callArgs) str(name string, pos int, def string) (string, error) {
	v := a.get(name, pos)
	if v == nil || v == starlark.None {
		return def, nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("%s: %s must be a string, got %s", a.fn, name, v.Type())
	}
	return s, nil
}

func (a callArgs) integer(name string, pos int, def int) (int, error) {
	v := a.get(name, pos)
	if v == nil || v == starlark.None {
		return def, nil
	}
	var n int
	if err := starlark.AsInt(v, &n); err != nil {
		if f, ok := v.(starlark.Float); ok {
			return int(f), nil
		}
		return 0, fmt.Errorf("%s: %s must be an int, got %s", a.fn, name, v.Type())
	}
	return n, nil
}

func (a callArgs) float(name string, pos int, def float64) (float64, error) {
	v := a.get(name, pos)
	if v == nil || v == starlark.None {
		return def, nil
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s: %s must be a number, got %s", a.fn, name, v.Type())
	}
	return f, nil
}

func (a callArgs) boolean(name string, pos int, def bool) bool {
	v := a.get(name, pos)
	if v == nil || v == starlark.None {
		return def
	}
	return bool(v.Truth())
}

// strs accepts a single string or an iterable of strings.
func (a callArgs) strs(name string, pos int) ([]string, error) {
	v := a.get(name, pos)
	if v == nil || v == starlark.None {
		return nil, nil
	}
	if s, ok := starlark.AsString(v); ok {
		return []string{s}, nil
	}
	it, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s: %s must be a string or list of strings, got %s", a.fn, name, v.Type())
	}
	var out []string
	iter := it.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		s, ok := starlark.AsString(x)
		if !ok {
			return nil, fmt.Errorf("%s: %s must contain strings, got %s", a.fn, name, x.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

type methodFunc func(thread *starlark.Thread, a callArgs) (starlark.Value, error)

func builtin(name string, fn methodFunc) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return fn(thread, newArgs(b.Name(), args, kwargs))
	})
}

// noop returns a builtin that accepts anything and returns ret (None if nil).
func noop(name string, ret starlark.Value) *starlark.Builtin {
	if ret == nil {
		ret = starlark.None
	}
	return builtin(name, func(*starlark.Thread, callArgs) (starlark.Value, error) { return ret, nil })
}
