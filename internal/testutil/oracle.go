package testutil

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shellyln/go-sql-like-expr/likeexpr"

	"github.com/roach88/relq/internal/queryir"
)

// Row binds values for expression evaluation. Columns are keyed
// "table.name" and parameters "@name". A missing key or a nil value is
// NULL.
type Row map[string]any

// Semantics selects how Eval treats NULL.
type Semantics int

const (
	// SQL is three-valued: comparisons with NULL are NULL and AND/OR
	// follow the SQL truth table.
	SQL Semantics = iota
	// Source is two-valued: null equals null, nothing orders against
	// null, a null string concatenates as empty and a pattern never
	// matches null.
	Source
)

// Eval evaluates a scalar expression over row. Results are int64, float64,
// string, bool or nil. Only the node kinds the null-semantics tests build
// are supported; anything else is an error.
func Eval(e queryir.SqlExpr, row Row, sem Semantics) (any, error) {
	ev := evaluator{row: row, sem: sem}
	return ev.eval(e)
}

// Matches reports whether a predicate selects row: true matches, false and
// NULL do not.
func Matches(e queryir.SqlExpr, row Row, sem Semantics) (bool, error) {
	v, err := Eval(e, row, sem)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

type evaluator struct {
	row Row
	sem Semantics
}

func (ev evaluator) eval(e queryir.SqlExpr) (any, error) {
	switch e := e.(type) {
	case *queryir.ColumnRef:
		return ev.row[e.Table+"."+e.Name], nil
	case *queryir.Constant:
		return e.Value, nil
	case *queryir.Parameter:
		return ev.row["@"+e.Name], nil
	case *queryir.Unary:
		return ev.unary(e)
	case *queryir.Binary:
		return ev.binary(e)
	case *queryir.Function:
		return ev.function(e)
	case *queryir.Case:
		return ev.caseExpr(e)
	case *queryir.In:
		return ev.in(e)
	case *queryir.Like:
		return ev.like(e)
	case *queryir.Collate:
		return ev.eval(e.Operand)
	}
	return nil, fmt.Errorf("oracle cannot evaluate %T", e)
}

func (ev evaluator) unary(e *queryir.Unary) (any, error) {
	v, err := ev.eval(e.Operand)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case queryir.OpIsNull:
		return v == nil, nil
	case queryir.OpIsNotNull:
		return v != nil, nil
	case queryir.OpNot:
		if v == nil {
			if ev.sem == Source {
				return true, nil
			}
			return nil, nil
		}
		return !v.(bool), nil
	case queryir.OpNegate:
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		case nil:
			return nil, nil
		}
	}
	return nil, fmt.Errorf("oracle cannot evaluate %s on %T", e.Op, v)
}

func (ev evaluator) binary(e *queryir.Binary) (any, error) {
	l, err := ev.eval(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := ev.eval(e.Right)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case queryir.OpAnd, queryir.OpOr:
		return ev.logical(e.Op, l, r), nil
	case queryir.OpConcat:
		if ev.sem == Source {
			return str(l) + str(r), nil
		}
		if l == nil || r == nil {
			return nil, nil
		}
		return str(l) + str(r), nil
	}

	if l == nil || r == nil {
		if ev.sem == SQL {
			return nil, nil
		}
		switch e.Op {
		case queryir.OpEqual:
			return l == nil && r == nil, nil
		case queryir.OpNotEqual:
			return !(l == nil && r == nil), nil
		}
		if e.Op.IsComparison() {
			return false, nil
		}
		return nil, nil
	}

	if e.Op.IsComparison() {
		c, err := compare(l, r)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case queryir.OpEqual:
			return c == 0, nil
		case queryir.OpNotEqual:
			return c != 0, nil
		case queryir.OpLessThan:
			return c < 0, nil
		case queryir.OpLessThanOrEqual:
			return c <= 0, nil
		case queryir.OpGreaterThan:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}

	a, aok := l.(int64)
	b, bok := r.(int64)
	if !aok || !bok {
		return nil, fmt.Errorf("oracle only does arithmetic on integers, got %T %s %T", l, e.Op, r)
	}
	switch e.Op {
	case queryir.OpAdd:
		return a + b, nil
	case queryir.OpSubtract:
		return a - b, nil
	case queryir.OpMultiply:
		return a * b, nil
	}
	return nil, fmt.Errorf("oracle cannot evaluate %s", e.Op)
}

// logical applies AND/OR. SQL uses the three-valued table; the source
// language only ever sees booleans, so a nil there is false.
func (ev evaluator) logical(op queryir.BinaryOp, l, r any) any {
	if ev.sem == Source {
		lb, _ := l.(bool)
		rb, _ := r.(bool)
		if op == queryir.OpAnd {
			return lb && rb
		}
		return lb || rb
	}
	if op == queryir.OpAnd {
		if l == false || r == false {
			return false
		}
		if l == nil || r == nil {
			return nil
		}
		return true
	}
	if l == true || r == true {
		return true
	}
	if l == nil || r == nil {
		return nil
	}
	return false
}

func (ev evaluator) function(f *queryir.Function) (any, error) {
	args := make([]any, len(f.Args))
	for i, a := range f.Args {
		v, err := ev.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch strings.ToUpper(f.Name) {
	case "COALESCE":
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	case "LENGTH":
		if args[0] == nil {
			return nil, nil
		}
		return int64(len(str(args[0]))), nil
	case "UPPER":
		if args[0] == nil {
			return nil, nil
		}
		return strings.ToUpper(str(args[0])), nil
	}
	return nil, fmt.Errorf("oracle cannot evaluate function %s", f.Name)
}

func (ev evaluator) caseExpr(c *queryir.Case) (any, error) {
	for _, w := range c.Whens {
		t, err := ev.eval(w.Test)
		if err != nil {
			return nil, err
		}
		if t == true {
			return ev.eval(w.Result)
		}
	}
	if c.Else == nil {
		return nil, nil
	}
	return ev.eval(c.Else)
}

func (ev evaluator) in(e *queryir.In) (any, error) {
	if e.Subquery != nil {
		return nil, fmt.Errorf("oracle cannot evaluate IN over a subquery")
	}
	item, err := ev.eval(e.Item)
	if err != nil {
		return nil, err
	}
	sawNull := false
	for _, val := range e.Values {
		v, err := ev.eval(val)
		if err != nil {
			return nil, err
		}
		if item == nil || v == nil {
			if ev.sem == Source && item == nil && v == nil {
				return true, nil
			}
			sawNull = true
			continue
		}
		c, err := compare(item, v)
		if err != nil {
			return nil, err
		}
		if c == 0 {
			return true, nil
		}
	}
	if sawNull && ev.sem == SQL {
		return nil, nil
	}
	return false, nil
}

func (ev evaluator) like(e *queryir.Like) (any, error) {
	m, err := ev.eval(e.Match)
	if err != nil {
		return nil, err
	}
	p, err := ev.eval(e.Pattern)
	if err != nil {
		return nil, err
	}
	if m == nil || p == nil {
		if ev.sem == Source {
			return false, nil
		}
		return nil, nil
	}
	escape := rune(0)
	if e.Escape != nil {
		esc, err := ev.eval(e.Escape)
		if err != nil {
			return nil, err
		}
		if s := str(esc); s != "" {
			escape = []rune(s)[0]
		}
	}
	// SQLite's LIKE folds ASCII case.
	re, err := regexp.Compile("^(?s:" + likeexpr.ToRegexp(str(p), escape, true) + ")$")
	if err != nil {
		return nil, err
	}
	return re.MatchString(str(m)), nil
}

func compare(l, r any) (int, error) {
	switch a := l.(type) {
	case int64:
		switch b := r.(type) {
		case int64:
			return cmp(a, b), nil
		case float64:
			return cmp(float64(a), b), nil
		}
	case float64:
		switch b := r.(type) {
		case float64:
			return cmp(a, b), nil
		case int64:
			return cmp(a, float64(b)), nil
		}
	case string:
		if b, ok := r.(string); ok {
			return strings.Compare(a, b), nil
		}
	case bool:
		if b, ok := r.(bool); ok {
			if a == b {
				return 0, nil
			}
			if !a {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("oracle cannot compare %T with %T", l, r)
}

func cmp[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
