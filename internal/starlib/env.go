// Package starlib provides Starlark stand-ins for the pandas, matplotlib,
// seaborn and plotly express surface that generated analysis scripts use.
//
// Cosmetic keyword arguments (color=, alpha=, figsize=...) are accepted and
// ignored. Unsupported features fail with an error.
package starlib

import (
	"fmt"
	"math"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/figure"
)

// ModuleNames lists the library bindings in namespace order.
var ModuleNames = []string{"pd", "plt", "sns", "px"}

// DialectNotes describes how scripts for this runtime differ from Python.
var DialectNotes = []string{
	"Code runs in Starlark, a Python dialect: import statements are ignored, numpy is unavailable, and f-strings, classes, try/except and with blocks are not supported.",
	"Use \"{}\".format(x) or % formatting instead of f-strings.",
	"Build boolean masks with comparisons such as df[\"x\"] > 3 or .isin(), and combine them with & | ~ inside parentheses.",
	"pd supports DataFrame, Series, groupby, sort_values, describe, value_counts, pivot_table, concat, to_numeric and to_datetime.",
	"plt and sns draw static figures; px builds interactive charts; assign px figures to a variable to display them.",
}

// Env carries the state shared by the modules of one script run.
type Env struct {
	Figures *figure.Registry
}

// NewEnv binds the modules to a figure registry.
func NewEnv(reg *figure.Registry) *Env {
	if reg == nil {
		reg = figure.NewRegistry()
	}
	return &Env{Figures: reg}
}

// Modules returns the pd, plt, sns and px bindings.
func (e *Env) Modules() starlark.StringDict {
	return starlark.StringDict{
		"pd":  e.pdModule(),
		"plt": e.pltModule(),
		"sns": e.snsModule(),
		"px":  e.pxModule(),
	}
}

// Frame wraps a dataset for use as a script value.
func (e *Env) Frame(f *dataset.Frame) *DataFrame { return FromDataset(e, f) }

// Helpers returns Python builtins that Starlark lacks. They are not part of
// the visible namespace and are filtered from results.
func Helpers() starlark.StringDict {
	h := starlark.StringDict{
		"sum":   starlark.NewBuiltin("sum", pySum),
		"round": starlark.NewBuiltin("round", pyRound),
	}
	if _, ok := starlark.Universe["abs"]; !ok {
		h["abs"] = starlark.NewBuiltin("abs", pyAbs)
	}
	return h
}

func pySum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var it starlark.Iterable
	var start starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &it, "start?", &start); err != nil {
		return nil, err
	}
	if s, ok := it.(*Series); ok {
		return aggregate("sum", s.values)
	}
	acc := start
	iter := it.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		r, err := starlark.Binary(syntax.PLUS, acc, x)
		if err != nil {
			return nil, err
		}
		acc = r
	}
	return acc, nil
}

func pyRound(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var nd starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &nd); err != nil {
		return nil, err
	}
	if s, ok := x.(*Series); ok {
		d := 0
		if nd != starlark.None {
			if err := starlark.AsInt(nd, &d); err != nil {
				return nil, err
			}
		}
		return s.mapValues(func(v starlark.Value) (starlark.Value, error) { return roundValue(v, d), nil })
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("round: expected a number, got %s", x.Type())
	}
	if nd == starlark.None {
		return starlark.MakeInt64(int64(math.RoundToEven(f))), nil
	}
	var d int
	if err := starlark.AsInt(nd, &d); err != nil {
		return nil, err
	}
	if _, isInt := x.(starlark.Int); isInt {
		return x, nil
	}
	return roundValue(starlark.Float(f), d), nil
}

func pyAbs(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case starlark.Int:
		if v.Sign() < 0 {
			return starlark.Unary(syntax.MINUS, v)
		}
		return v, nil
	case starlark.Float:
		return starlark.Float(math.Abs(float64(v))), nil
	}
	return nil, fmt.Errorf("abs: bad operand type %s", x.Type())
}

func printLine(thread *starlark.Thread, msg string) {
	if thread != nil && thread.Print != nil {
		thread.Print(thread, msg)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}
