package expr

import (
	"fmt"
	"strings"
)

// Program is a compiled expression. It is immutable and safe for concurrent use.
type Program struct {
	source string
	root   node
}

// Compile parses src into a Program. An empty source compiles to a program
// that always evaluates to false.
func Compile(src string) (*Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return &Program{root: &literal{value: false}}, nil
	}

	tokens, err := tokenize(src)
	if err != nil {
		return nil, fmt.Errorf("tokenize %q: %w", src, err)
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("parse %q: unexpected token %q at position %d",
			src, p.tokens[p.pos].value, p.tokens[p.pos].pos)
	}
	return &Program{source: src, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval evaluates the program against vars and returns the raw value.
func (p *Program) Eval(vars map[string]any) (any, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	v, err := p.root.eval(vars)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", p.source, err)
	}
	return v, nil
}

// EvalBool evaluates the program and coerces the result to a boolean.
func (p *Program) EvalBool(vars map[string]any) (bool, error) {
	v, err := p.Eval(vars)
	if err != nil {
		return false, err
	}
	return toBool(v), nil
}

// String returns the source the program was compiled from.
func (p *Program) String() string { return p.source }

// Evaluate compiles and evaluates src as a boolean in one call.
func Evaluate(src string, vars map[string]any) (bool, error) {
	p, err := Compile(src)
	if err != nil {
		return false, err
	}
	return p.EvalBool(vars)
}
