package dsl

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is one node of a parsed DSL expression tree.
type Expr interface {
	String() string
}

// Literal is a string, number, bool or null literal.
type Literal struct{ Value Value }

func (l Literal) String() string {
	switch l.Value.Kind() {
	case KindString:
		return strconv.Quote(l.Value.str)
	case KindNull:
		return "null"
	default:
		return l.Value.AsString()
	}
}

// Ident is a bare identifier, resolved against the evaluation context's
// top-level fields (args, config, request, response).
type Ident struct{ Name string }

func (i Ident) String() string { return i.Name }

// Member is `recv.name`.
type Member struct {
	Recv Expr
	Name string
}

func (m Member) String() string { return fmt.Sprintf("%s.%s", m.Recv, m.Name) }

// Index is `recv[idx]`.
type Index struct {
	Recv Expr
	Idx  Expr
}

func (ix Index) String() string { return fmt.Sprintf("%s[%s]", ix.Recv, ix.Idx) }

// Unary is `!x` or `-x`.
type Unary struct {
	Op   string
	Expr Expr
}

func (u Unary) String() string { return u.Op + u.Expr.String() }

// Binary is a binary operator expression.
type Binary struct {
	Op          string
	Left, Right Expr
}

func (b Binary) String() string { return fmt.Sprintf("%s %s %s", b.Left, b.Op, b.Right) }

// Ternary is `cond ? then : els`.
type Ternary struct {
	Cond, Then, Else Expr
}

func (t Ternary) String() string { return fmt.Sprintf("%s ? %s : %s", t.Cond, t.Then, t.Else) }

// Call is a function call `name(args...)`.
type Call struct {
	Name string
	Args []Expr
}

func (c Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}

// Pipe is `lhs | call`, sugar folded into an equivalent Call at eval time
// but kept as its own node so printing stays close to the source.
type Pipe struct {
	Left Expr
	Call Call
}

func (p Pipe) String() string { return fmt.Sprintf("%s | %s", p.Left, p.Call) }

// ArrayLit is `[a, b, c]`.
type ArrayLit struct{ Items []Expr }

func (a ArrayLit) String() string {
	parts := make([]string, len(a.Items))
	for i, it := range a.Items {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ObjectLit is `{key: expr, ...}`.
type ObjectLit struct {
	Keys   []string
	Values []Expr
}

func (o ObjectLit) String() string {
	parts := make([]string, len(o.Keys))
	for i, k := range o.Keys {
		parts[i] = fmt.Sprintf("%s: %s", strconv.Quote(k), o.Values[i])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// asCall folds a Pipe node into the equivalent Call: `x | f(a, b)` becomes
// `f(x, a, b)`; `x | f` becomes `f(x)`.
func (p Pipe) asCall() Call {
	return Call{Name: p.Call.Name, Args: append([]Expr{p.Left}, p.Call.Args...)}
}
