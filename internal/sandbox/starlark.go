package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/figure"
	"github.com/KaramelBytes/vizloom-cli/internal/starlib"
)

const scriptFile = "analysis.py"

var scriptOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// StarlarkRunner runs scripts in-process with the starlib modules.
type StarlarkRunner struct {
	// Timeout stops the script when positive. Zero means no limit.
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewStarlarkRunner returns a runner with no time limit.
func NewStarlarkRunner(logger *zap.Logger) *StarlarkRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StarlarkRunner{Logger: logger}
}

// DialectNotes describes how scripts for this runner differ from Python.
func (r *StarlarkRunner) DialectNotes() []string { return starlib.DialectNotes }

func (r *StarlarkRunner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *StarlarkRunner) Run(ctx context.Context, p Params) (out Outcome) {
	start := time.Now()
	buf := &output{}
	defer func() {
		if rec := recover(); rec != nil {
			r.log().Error("starlark runner panic", zap.Any("panic", rec))
			out = failed(buf.String(), &ScriptError{Message: fmt.Sprintf("internal error: %v", rec)})
		}
		out.Duration = time.Since(start)
	}()

	reg := p.Figures
	if reg == nil {
		reg = figure.NewRegistry()
	}
	env := starlib.NewEnv(reg)
	globals, order, err := starlarkNamespace(env, p.Namespace)
	if err != nil {
		return failed("", &ScriptError{Message: err.Error()})
	}

	f, err := scriptOptions.Parse(scriptFile, StripImports(p.Code), 0)
	if err != nil {
		return failed("", scriptError(err))
	}
	starlib.RewriteComparisons(f)

	runCtx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()
	thread := &starlark.Thread{
		Name:  "analysis",
		Print: func(_ *starlark.Thread, msg string) { buf.line(msg) },
	}
	stop := context.AfterFunc(runCtx, func() { thread.Cancel(runCtx.Err().Error()) })
	defer stop()

	if err := starlark.ExecREPLChunk(f, thread, globals); err != nil {
		if runCtx.Err() != nil {
			r.log().Warn("script stopped", zap.Duration("timeout", r.Timeout), zap.Error(runCtx.Err()))
			return failed(buf.String(), limitError(runCtx, r.Timeout))
		}
		se := scriptError(err)
		r.log().Debug("script failed", zap.String("error", se.Error()))
		return failed(buf.String(), se)
	}

	for _, name := range assignedNames(f) {
		if !contains(order, name) {
			order = append(order, name)
		}
	}
	bindings := make([]Binding, 0, len(order))
	for _, name := range order {
		if v, ok := globals[name]; ok && v != nil {
			bindings = append(bindings, Binding{Name: name, Value: v})
		}
	}
	return Outcome{State: StateSucceeded, Bindings: bindings, Output: buf.String()}
}

// starlarkNamespace converts Params bindings to Starlark globals. Helper
// builtins are added but left out of the returned order.
func starlarkNamespace(env *starlib.Env, ns []Binding) (starlark.StringDict, []string, error) {
	mods := env.Modules()
	globals := starlark.StringDict{}
	for k, v := range starlib.Helpers() {
		globals[k] = v
	}
	for k, v := range starlib.CompareBuiltins() {
		globals[k] = v
	}
	order := make([]string, 0, len(ns))
	for _, b := range ns {
		var v starlark.Value
		switch x := b.Value.(type) {
		case nil:
			m, ok := mods[b.Name]
			if !ok {
				return nil, nil, fmt.Errorf("no library named %q", b.Name)
			}
			v = m
		case *dataset.Frame:
			if x == nil {
				return nil, nil, fmt.Errorf("binding %q has no dataset", b.Name)
			}
			v = env.Frame(x)
		case starlark.Value:
			v = x
		default:
			return nil, nil, fmt.Errorf("binding %q: unsupported value %T", b.Name, b.Value)
		}
		globals[b.Name] = v
		if !contains(order, b.Name) {
			order = append(order, b.Name)
		}
	}
	return globals, order, nil
}

var importLine = regexp.MustCompile(`^(\s*)(?:import\s+\S|from\s+\S+\s+import\s|%matplotlib\b)`)

// StripImports blanks import lines so the bound libraries are used instead.
// Indented imports become pass to keep blocks valid; line numbers are kept.
func StripImports(code string) string {
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		m := importLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if m[1] == "" {
			lines[i] = ""
		} else {
			lines[i] = m[1] + "pass"
		}
	}
	return strings.Join(lines, "\n")
}

// assignedNames lists top-level names in first-assignment order.
func assignedNames(f *syntax.File) []string {
	var names []string
	add := func(n string) {
		if !contains(names, n) {
			names = append(names, n)
		}
	}
	var target func(e syntax.Expr)
	target = func(e syntax.Expr) {
		switch x := e.(type) {
		case *syntax.Ident:
			add(x.Name)
		case *syntax.TupleExpr:
			for _, el := range x.List {
				target(el)
			}
		case *syntax.ListExpr:
			for _, el := range x.List {
				target(el)
			}
		case *syntax.ParenExpr:
			target(x.X)
		}
	}
	var walk func(stmts []syntax.Stmt)
	walk = func(stmts []syntax.Stmt) {
		for _, s := range stmts {
			switch x := s.(type) {
			case *syntax.AssignStmt:
				target(x.LHS)
			case *syntax.DefStmt:
				add(x.Name.Name)
			case *syntax.ForStmt:
				target(x.Vars)
				walk(x.Body)
			case *syntax.WhileStmt:
				walk(x.Body)
			case *syntax.IfStmt:
				walk(x.True)
				walk(x.False)
			}
		}
	}
	walk(f.Stmts)
	return names
}

// scriptError converts parse, resolve and evaluation errors.
func scriptError(err error) *ScriptError {
	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return &ScriptError{Message: synErr.Msg, Line: int(synErr.Pos.Line), Column: int(synErr.Pos.Col), Cause: err}
	}
	var resErrs resolve.ErrorList
	if errors.As(err, &resErrs) && len(resErrs) > 0 {
		first := resErrs[0]
		return &ScriptError{Message: first.Msg, Line: int(first.Pos.Line), Column: int(first.Pos.Col), Cause: err}
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		se := &ScriptError{Message: evalErr.Msg, Cause: err}
		for i := len(evalErr.CallStack) - 1; i >= 0; i-- {
			pos := evalErr.CallStack[i].Pos
			if pos.Filename() == scriptFile && pos.Line > 0 {
				se.Line, se.Column = int(pos.Line), int(pos.Col)
				break
			}
		}
		return se
	}
	return &ScriptError{Message: err.Error(), Cause: err}
}

func contains(names []string, n string) bool {
	for _, x := range names {
		if x == n {
			return true
		}
	}
	return false
}
