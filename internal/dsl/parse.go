package dsl

import "fmt"

// Parse compiles a DSL expression into its AST. Parse errors (unexpected
// tokens, unterminated strings, unbalanced brackets) are returned as plain
// errors; the gateway wraps them as a ClientError-class dsl_error.
func Parse(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.at(tokEOF) {
		return nil, fmt.Errorf("unexpected trailing input at %q", p.cur().text)
	}
	return expr, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) at(k tokenKind) bool { return p.cur().kind == k }
func (p *parser) atPunct(s string) bool { return p.cur().kind == tokPunct && p.cur().text == s }
func (p *parser) advance() token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return fmt.Errorf("expected %q, got %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

// parseExpr is the grammar entry point: ternary has the lowest precedence.
func (p *parser) parseExpr() (Expr, error) { return p.parseTernary() }

func (p *parser) parseTernary() (Expr, error) {
	cond, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	if p.atPunct("?") {
		p.advance()
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return Ternary{Cond: cond, Then: then, Else: els}, nil
	}
	return cond, nil
}

func (p *parser) parsePipe() (Expr, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.atPunct("|") {
		p.advance()
		if !p.at(tokIdent) {
			return nil, fmt.Errorf("expected function name after '|', got %q", p.cur().text)
		}
		name := p.advance().text
		var args []Expr
		if p.atPunct("(") {
			p.advance()
			args, err = p.parseArgs()
			if err != nil {
				return nil, err
			}
		}
		left = Pipe{Left: left, Call: Call{Name: name, Args: args}}
	}
	return left, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atPunct("||") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.atPunct("&&") {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.atPunct("==") || p.atPunct("!=") {
		op := p.advance().text
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.atPunct("<") || p.atPunct("<=") || p.atPunct(">") || p.atPunct(">=") {
		op := p.advance().text
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.atPunct("+") || p.atPunct("-") {
		op := p.advance().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atPunct("*") || p.atPunct("/") {
		op := p.advance().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.atPunct("!") || p.atPunct("-") {
		op := p.advance().text
		sub, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary{Op: op, Expr: sub}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atPunct("."):
			p.advance()
			if !p.at(tokIdent) {
				return nil, fmt.Errorf("expected field name after '.', got %q", p.cur().text)
			}
			expr = Member{Recv: expr, Name: p.advance().text}
		case p.atPunct("["):
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			expr = Index{Recv: expr, Idx: idx}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch {
	case t.kind == tokNumber:
		p.advance()
		return Literal{Value: Number(t.num)}, nil
	case t.kind == tokString:
		p.advance()
		return Literal{Value: String(t.text)}, nil
	case t.kind == tokIdent && t.text == "true":
		p.advance()
		return Literal{Value: Bool(true)}, nil
	case t.kind == tokIdent && t.text == "false":
		p.advance()
		return Literal{Value: Bool(false)}, nil
	case t.kind == tokIdent && t.text == "null":
		p.advance()
		return Literal{Value: Null}, nil
	case t.kind == tokIdent:
		name := p.advance().text
		if p.atPunct("(") {
			p.advance()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return Call{Name: name, Args: args}, nil
		}
		return Ident{Name: name}, nil
	case p.atPunct("("):
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return expr, nil
	case p.atPunct("["):
		p.advance()
		var items []Expr
		for !p.atPunct("]") {
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if p.atPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return ArrayLit{Items: items}, nil
	case p.atPunct("{"):
		p.advance()
		var keys []string
		var values []Expr
		for !p.atPunct("}") {
			if !p.at(tokString) && !p.at(tokIdent) {
				return nil, fmt.Errorf("expected object key, got %q", p.cur().text)
			}
			keys = append(keys, p.advance().text)
			if err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			values = append(values, val)
			if p.atPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		return ObjectLit{Keys: keys, Values: values}, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

func (p *parser) parseArgs() ([]Expr, error) {
	var args []Expr
	for !p.atPunct(")") {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return args, nil
}
