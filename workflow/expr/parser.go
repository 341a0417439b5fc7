package expr

import (
	"fmt"
	"strconv"
)

// node is one element of a compiled expression tree.
type node interface {
	eval(vars map[string]any) (any, error)
}

type literal struct{ value any }

type variable struct{ path string }

type unary struct {
	op      string
	operand node
}

type binary struct {
	op          string
	left, right node
}

type call struct {
	name string
	fn   builtin
	args []node
}

// --- Recursive descent parser ---

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) peekOp(ops ...string) (string, bool) {
	t := p.peek()
	if t == nil || t.kind != tkOp {
		return "", false
	}
	for _, op := range ops {
		if t.value == op {
			return op, true
		}
	}
	return "", false
}

// parseOr handles: expr || expr
func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("||"); !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binary{op: "||", left: left, right: right}
	}
}

// parseAnd handles: expr && expr
func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("&&"); !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binary{op: "&&", left: left, right: right}
	}
}

// parseComparison handles a single, non-associative comparison.
func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := p.peekOp("==", "!=", ">", "<", ">=", "<=", "in")
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &binary{op: op, left: left, right: right}, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("+", "-")
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
}

// parseUnary handles: !expr, -expr, primary
func (p *parser) parseUnary() (node, error) {
	if op, ok := p.peekOp("!", "-"); ok {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

// parsePrimary handles: literals, identifiers, calls, parenthesized expressions
func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	switch t.kind {
	case tkNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.value, err)
		}
		return &literal{value: f}, nil

	case tkString:
		p.advance()
		return &literal{value: t.value}, nil

	case tkIdent:
		p.advance()
		switch t.value {
		case "true", "True":
			return &literal{value: true}, nil
		case "false", "False":
			return &literal{value: false}, nil
		case "null", "nil", "None":
			return &literal{value: nil}, nil
		}
		if next := p.peek(); next != nil && next.kind == tkLParen {
			return p.parseCall(*t)
		}
		return &variable{path: t.value}, nil

	case tkLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if next := p.peek(); next == nil || next.kind != tkRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.advance()
		return inner, nil

	default:
		return nil, fmt.Errorf("unexpected token %q at position %d", t.value, t.pos)
	}
}

func (p *parser) parseCall(name token) (node, error) {
	fn, ok := builtins[name.value]
	if !ok {
		return nil, fmt.Errorf("unknown function %q at position %d", name.value, name.pos)
	}
	p.advance() // (

	c := &call{name: name.value, fn: fn}
	if next := p.peek(); next != nil && next.kind == tkRParen {
		p.advance()
		return c, c.checkArity()
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		c.args = append(c.args, arg)

		next := p.peek()
		if next == nil {
			return nil, fmt.Errorf("unterminated call to %s", name.value)
		}
		if next.kind == tkComma {
			p.advance()
			continue
		}
		if next.kind == tkRParen {
			p.advance()
			return c, c.checkArity()
		}
		return nil, fmt.Errorf("unexpected token %q in call to %s", next.value, name.value)
	}
}

func (c *call) checkArity() error {
	if len(c.args) != c.fn.arity {
		return fmt.Errorf("%s expects %d argument(s), got %d", c.name, c.fn.arity, len(c.args))
	}
	return nil
}
