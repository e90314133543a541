package starlib

import (
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// compareFuncs names the builtin that replaces each comparison operator
// after RewriteComparisons.
var compareFuncs = map[syntax.Token]string{
	syntax.EQL: "_cmp_eq",
	syntax.NEQ: "_cmp_ne",
	syntax.LT:  "_cmp_lt",
	syntax.LE:  "_cmp_le",
	syntax.GT:  "_cmp_gt",
	syntax.GE:  "_cmp_ge",
}

// CompareBuiltins returns the builtins that RewriteComparisons calls.
// They must be bound as globals of the rewritten file.
func CompareBuiltins() starlark.StringDict {
	d := make(starlark.StringDict, len(compareFuncs))
	for op, name := range compareFuncs {
		op := op
		d[name] = starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x, y starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
				return nil, err
			}
			return Compare(op, x, y)
		})
	}
	return d
}

// Compare evaluates x op y. A Series operand on either side gives an
// element-wise boolean Series; other operands compare as Starlark does.
func Compare(op syntax.Token, x, y starlark.Value) (starlark.Value, error) {
	if s, ok := x.(*Series); ok {
		r, err := s.compareWith(op, y)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	if s, ok := y.(*Series); ok {
		r, err := s.compareWith(flipComparison(op), x)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	ok, err := starlark.Compare(op, x, y)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(ok), nil
}

func flipComparison(op syntax.Token) syntax.Token {
	switch op {
	case syntax.LT:
		return syntax.GT
	case syntax.GT:
		return syntax.LT
	case syntax.LE:
		return syntax.GE
	case syntax.GE:
		return syntax.LE
	}
	return op
}

// RewriteComparisons replaces every comparison in f with a call to the
// matching CompareBuiltins function. Calls keep the operator position so
// errors report the same line and column.
func RewriteComparisons(f *syntax.File) {
	rw := func(e syntax.Expr) syntax.Expr {
		b, ok := e.(*syntax.BinaryExpr)
		if !ok {
			return e
		}
		name, ok := compareFuncs[b.Op]
		if !ok {
			return e
		}
		_, end := b.Span()
		return &syntax.CallExpr{
			Fn:     &syntax.Ident{NamePos: b.OpPos, Name: name},
			Lparen: b.OpPos,
			Args:   []syntax.Expr{b.X, b.Y},
			Rparen: end,
		}
	}
	syntax.Walk(f, func(n syntax.Node) bool {
		switch x := n.(type) {
		case *syntax.ExprStmt:
			x.X = rw(x.X)
		case *syntax.AssignStmt:
			x.RHS = rw(x.RHS)
		case *syntax.IfStmt:
			x.Cond = rw(x.Cond)
		case *syntax.WhileStmt:
			x.Cond = rw(x.Cond)
		case *syntax.ForStmt:
			x.X = rw(x.X)
		case *syntax.ReturnStmt:
			if x.Result != nil {
				x.Result = rw(x.Result)
			}
		case *syntax.BinaryExpr:
			x.X, x.Y = rw(x.X), rw(x.Y)
		case *syntax.UnaryExpr:
			if x.X != nil {
				x.X = rw(x.X)
			}
		case *syntax.ParenExpr:
			x.X = rw(x.X)
		case *syntax.CallExpr:
			for i, a := range x.Args {
				x.Args[i] = rw(a)
			}
		case *syntax.CondExpr:
			x.Cond, x.True, x.False = rw(x.Cond), rw(x.True), rw(x.False)
		case *syntax.IndexExpr:
			x.X, x.Y = rw(x.X), rw(x.Y)
		case *syntax.SliceExpr:
			x.X = rw(x.X)
			if x.Lo != nil {
				x.Lo = rw(x.Lo)
			}
			if x.Hi != nil {
				x.Hi = rw(x.Hi)
			}
			if x.Step != nil {
				x.Step = rw(x.Step)
			}
		case *syntax.DotExpr:
			x.X = rw(x.X)
		case *syntax.DictEntry:
			x.Key, x.Value = rw(x.Key), rw(x.Value)
		case *syntax.ListExpr:
			for i, el := range x.List {
				x.List[i] = rw(el)
			}
		case *syntax.TupleExpr:
			for i, el := range x.List {
				x.List[i] = rw(el)
			}
		case *syntax.Comprehension:
			x.Body = rw(x.Body)
		case *syntax.ForClause:
			x.X = rw(x.X)
		case *syntax.IfClause:
			x.Cond = rw(x.Cond)
		case *syntax.LambdaExpr:
			x.Body = rw(x.Body)
		}
		return true
	})
}
