package expr

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

func (n *literal) eval(map[string]any) (any, error) { return n.value, nil }

func (n *variable) eval(vars map[string]any) (any, error) {
	return resolveVar(n.path, vars), nil
}

func (n *unary) eval(vars map[string]any) (any, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		return !toBool(v), nil
	case "-":
		f, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		return -f, nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.op)
}

func (n *binary) eval(vars map[string]any) (any, error) {
	// && and || short-circuit
	switch n.op {
	case "&&":
		l, err := n.left.eval(vars)
		if err != nil {
			return nil, err
		}
		if !toBool(l) {
			return false, nil
		}
		r, err := n.right.eval(vars)
		if err != nil {
			return nil, err
		}
		return toBool(r), nil
	case "||":
		l, err := n.left.eval(vars)
		if err != nil {
			return nil, err
		}
		if toBool(l) {
			return true, nil
		}
		r, err := n.right.eval(vars)
		if err != nil {
			return nil, err
		}
		return toBool(r), nil
	}

	l, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==", "!=", "<", "<=", ">", ">=":
		return evalComparison(l, n.op, r), nil
	case "in":
		return evalIn(l, r), nil
	case "+":
		lf, lok := toFloat64(l)
		rf, rok := toFloat64(r)
		if lok && rok {
			return lf + rf, nil
		}
		return toString(l) + toString(r), nil
	case "-", "*", "/", "%":
		return evalArithmetic(l, n.op, r)
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

func (n *call) eval(vars map[string]any) (any, error) {
	args := make([]any, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(vars)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return n.fn.impl(args)
}

// --- Builtins ---

type builtin struct {
	arity int
	impl  func(args []any) (any, error)
}

var builtins = map[string]builtin{
	"len": {1, func(args []any) (any, error) {
		return float64(length(args[0])), nil
	}},
	"contains": {2, func(args []any) (any, error) {
		return evalIn(args[1], args[0]), nil
	}},
	"lower": {1, func(args []any) (any, error) {
		return strings.ToLower(toString(args[0])), nil
	}},
	"upper": {1, func(args []any) (any, error) {
		return strings.ToUpper(toString(args[0])), nil
	}},
	"startsWith": {2, func(args []any) (any, error) {
		return strings.HasPrefix(toString(args[0]), toString(args[1])), nil
	}},
	"endsWith": {2, func(args []any) (any, error) {
		return strings.HasSuffix(toString(args[0]), toString(args[1])), nil
	}},
	"str": {1, func(args []any) (any, error) {
		return toString(args[0]), nil
	}},
	"num": {1, func(args []any) (any, error) {
		f, ok := toFloat64(args[0])
		if !ok {
			return nil, fmt.Errorf("cannot convert %v to number", args[0])
		}
		return f, nil
	}},
}

// --- Value helpers ---

// resolveVar walks a dot path through maps and slices. Missing segments yield nil.
func resolveVar(path string, vars map[string]any) any {
	parts := strings.Split(path, ".")
	var current any = vars
	for _, part := range parts {
		if current == nil {
			return nil
		}
		current = child(current, part)
	}
	return current
}

func child(v any, key string) any {
	switch m := v.(type) {
	case map[string]any:
		return m[key]
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(m) {
			return nil
		}
		return m[idx]
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		val := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil
		}
		return val.Interface()
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil
		}
		return rv.Index(idx).Interface()
	}
	return nil
}

func evalComparison(left any, op string, right any) bool {
	// nil compares equal only to nil
	if left == nil || right == nil {
		switch op {
		case "==":
			return left == nil && right == nil
		case "!=":
			return !(left == nil && right == nil)
		}
		return false
	}

	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
	}

	lb, lIsBool := left.(bool)
	rb, rIsBool := right.(bool)
	if lIsBool && rIsBool {
		switch op {
		case "==":
			return lb == rb
		case "!=":
			return lb != rb
		}
		return false
	}

	ls, rs := toString(left), toString(right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

func evalArithmetic(left any, op string, right any) (any, error) {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %s needs numbers, got %T and %T", op, left, right)
	}
	switch op {
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

// evalIn reports whether needle is contained in haystack: substring for
// strings, membership for slices, key presence for maps.
func evalIn(needle, haystack any) bool {
	switch h := haystack.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(h, toString(needle))
	case []any:
		for _, item := range h {
			if evalComparison(needle, "==", item) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := h[toString(needle)]
		return ok
	}

	rv := reflect.ValueOf(haystack)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if evalComparison(needle, "==", rv.Index(i).Interface()) {
				return true
			}
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return rv.MapIndex(reflect.ValueOf(toString(needle)).Convert(rv.Type().Key())).IsValid()
		}
	}
	return false
}

func length(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return len([]rune(t))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	return len([]rune(toString(v)))
}

func toBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	case string:
		return b != "" && strings.ToLower(b) != "false"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
