package dsl

import (
	"fmt"
)

// EvalContext is the per-call evaluation context of :
// {args, config, request, response}. response is only populated when
// evaluating a response_body template.
type EvalContext struct {
	Args     map[string]any
	Config   map[string]any
	Request  map[string]any
	Response map[string]any
}

func (c EvalContext) toValue() Value {
	m := map[string]Value{
		"args":    FromAny(c.Args),
		"config":  FromAny(c.Config),
		"request": FromAny(c.Request),
	}
	if c.Response != nil {
		m["response"] = FromAny(c.Response)
	} else {
		m["response"] = Null
	}
	return Map(m)
}

// Eval parses and evaluates src against ctx in one step.
func Eval(src string, ctx EvalContext) (Value, error) {
	expr, err := Parse(src)
	if err != nil {
		return Null, fmt.Errorf("dsl parse error: %w", err)
	}
	return evalExpr(expr, ctx.toValue())
}

func evalExpr(e Expr, scope Value) (Value, error) {
	switch n := e.(type) {
	case Literal:
		return n.Value, nil
	case Ident:
		return scope.Member(n.Name), nil
	case Member:
		recv, err := evalExpr(n.Recv, scope)
		if err != nil {
			return Null, err
		}
		return recv.Member(n.Name), nil
	case Index:
		recv, err := evalExpr(n.Recv, scope)
		if err != nil {
			return Null, err
		}
		idxV, err := evalExpr(n.Idx, scope)
		if err != nil {
			return Null, err
		}
		i, err := idxV.AsNumber()
		if err != nil {
			return Null, err
		}
		return recv.Index(int(i)), nil
	case Unary:
		sub, err := evalExpr(n.Expr, scope)
		if err != nil {
			return Null, err
		}
		switch n.Op {
		case "!":
			return Bool(!sub.Truthy()), nil
		case "-":
			f, err := sub.AsNumber()
			if err != nil {
				return Null, err
			}
			return Number(-f), nil
		default:
			return Null, fmt.Errorf("unknown unary operator %q", n.Op)
		}
	case Binary:
		return evalBinary(n, scope)
	case Ternary:
		cond, err := evalExpr(n.Cond, scope)
		if err != nil {
			return Null, err
		}
		if cond.Truthy() {
			return evalExpr(n.Then, scope)
		}
		return evalExpr(n.Else, scope)
	case Pipe:
		return evalExpr(n.asCall(), scope)
	case Call:
		return evalCall(n, scope)
	case ArrayLit:
		items := make([]Value, len(n.Items))
		for i, it := range n.Items {
			v, err := evalExpr(it, scope)
			if err != nil {
				return Null, err
			}
			items[i] = v
		}
		return Seq(items), nil
	case ObjectLit:
		m := make(map[string]Value, len(n.Keys))
		for i, k := range n.Keys {
			v, err := evalExpr(n.Values[i], scope)
			if err != nil {
				return Null, err
			}
			m[k] = v
		}
		return Map(m), nil
	default:
		return Null, fmt.Errorf("unhandled expression node %T", e)
	}
}

// evalBinary handles `&&`/`||` with short-circuit evaluation directly.
// String `+` concatenation, numeric arithmetic, and the comparison
// operators are all resolved directly against Value, since no library in
// the dependency set models this language's total/graceful value
// semantics (missing-field and out-of-range access yielding Null rather
// than an error).
func evalBinary(n Binary, scope Value) (Value, error) {
	switch n.Op {
	case "&&":
		l, err := evalExpr(n.Left, scope)
		if err != nil {
			return Null, err
		}
		if !l.Truthy() {
			return Bool(false), nil
		}
		r, err := evalExpr(n.Right, scope)
		if err != nil {
			return Null, err
		}
		return Bool(r.Truthy()), nil
	case "||":
		l, err := evalExpr(n.Left, scope)
		if err != nil {
			return Null, err
		}
		if l.Truthy() {
			return Bool(true), nil
		}
		r, err := evalExpr(n.Right, scope)
		if err != nil {
			return Null, err
		}
		return Bool(r.Truthy()), nil
	}

	l, err := evalExpr(n.Left, scope)
	if err != nil {
		return Null, err
	}
	r, err := evalExpr(n.Right, scope)
	if err != nil {
		return Null, err
	}

	switch n.Op {
	case "==":
		return Bool(l.Equal(r)), nil
	case "!=":
		return Bool(!l.Equal(r)), nil
	case "<", "<=", ">", ">=":
		less, err := l.Less(r)
		if err != nil {
			return Null, err
		}
		eq := l.Equal(r)
		switch n.Op {
		case "<":
			return Bool(less), nil
		case "<=":
			return Bool(less || eq), nil
		case ">":
			return Bool(!less && !eq), nil
		default: // >=
			return Bool(!less || eq), nil
		}
	case "+":
		if l.Kind() == KindString || r.Kind() == KindString {
			return String(l.AsString() + r.AsString()), nil
		}
		return evalArith(n.Op, l, r)
	case "-", "*", "/":
		return evalArith(n.Op, l, r)
	default:
		return Null, fmt.Errorf("unknown binary operator %q", n.Op)
	}
}

func evalArith(op string, l, r Value) (Value, error) {
	lf, err := l.AsNumber()
	if err != nil {
		return Null, err
	}
	rf, err := r.AsNumber()
	if err != nil {
		return Null, err
	}
	if op == "/" && rf == 0 {
		return Null, fmt.Errorf("division by zero")
	}
	switch op {
	case "+":
		return Number(lf + rf), nil
	case "-":
		return Number(lf - rf), nil
	case "*":
		return Number(lf * rf), nil
	case "/":
		return Number(lf / rf), nil
	default:
		return Null, fmt.Errorf("unknown arithmetic operator %q", op)
	}
}

func evalCall(n Call, scope Value) (Value, error) {
	fn, ok := builtins[n.Name]
	if !ok {
		return Null, fmt.Errorf("unknown function %q", n.Name)
	}
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		v, err := evalExpr(a, scope)
		if err != nil {
			return Null, err
		}
		args[i] = v
	}
	return fn(args)
}
