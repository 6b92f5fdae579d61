package querysql

import (
	"github.com/roach88/relq/internal/queryir"
)

// Operator precedence, loosest first. Parentheses are emitted only when a
// child binds more loosely than its position requires.
const (
	PrecOr             = 10
	PrecAnd            = 20
	PrecNot            = 30
	PrecEquality       = 40 // = <> IS IN LIKE GLOB REGEXP
	PrecRelational     = 50 // < <= > >=
	PrecBitwise        = 60
	PrecAdditive       = 70
	PrecMultiplicative = 80
	PrecConcat         = 90 // || ->>
	PrecCollate        = 100
	PrecUnary          = 110
	PrecPrimary        = 1000
)

var binaryPrecedence = map[queryir.BinaryOp]int{
	queryir.OpOr:                 PrecOr,
	queryir.OpAnd:                PrecAnd,
	queryir.OpEqual:              PrecEquality,
	queryir.OpNotEqual:           PrecEquality,
	queryir.OpLessThan:           PrecRelational,
	queryir.OpLessThanOrEqual:    PrecRelational,
	queryir.OpGreaterThan:        PrecRelational,
	queryir.OpGreaterThanOrEqual: PrecRelational,
	queryir.OpBitAnd:             PrecBitwise,
	queryir.OpBitOr:              PrecBitwise,
	queryir.OpAdd:                PrecAdditive,
	queryir.OpSubtract:           PrecAdditive,
	queryir.OpMultiply:           PrecMultiplicative,
	queryir.OpDivide:             PrecMultiplicative,
	queryir.OpModulo:             PrecMultiplicative,
	queryir.OpConcat:             PrecConcat,
}

// associative operators need no parentheses around a right operand using
// the same operator.
var associative = map[queryir.BinaryOp]bool{
	queryir.OpAnd:      true,
	queryir.OpOr:       true,
	queryir.OpAdd:      true,
	queryir.OpMultiply: true,
	queryir.OpConcat:   true,
	queryir.OpBitAnd:   true,
	queryir.OpBitOr:    true,
}

// Precedence returns how tightly e binds when rendered.
func (w *Writer) Precedence(e queryir.SqlExpr) int {
	switch e := e.(type) {
	case *queryir.Binary:
		return binaryPrecedence[e.Op]
	case *queryir.Unary:
		switch e.Op {
		case queryir.OpNot:
			return PrecNot
		case queryir.OpIsNull, queryir.OpIsNotNull:
			return PrecEquality
		case queryir.OpConvert:
			return PrecPrimary
		}
		return PrecUnary
	case *queryir.In, *queryir.Like:
		return PrecEquality
	case *queryir.Collate:
		return PrecCollate
	case *queryir.Constant:
		if isNegativeNumber(e.Value) {
			return PrecUnary
		}
		return PrecPrimary
	case *queryir.JsonScalar:
		return w.dialect.JSONPrecedence(e)
	case queryir.CustomExpr:
		return w.dialect.CustomPrecedence(e)
	}
	return PrecPrimary
}

// needsParens decides whether child, rendered under parent, needs
// parentheses. right is set for the right operand of a binary operator.
func (w *Writer) needsParens(parent, child queryir.SqlExpr, right bool) bool {
	pp, cp := w.Precedence(parent), w.Precedence(child)
	if cp != pp {
		return cp < pp
	}
	pb, ok := parent.(*queryir.Binary)
	if !ok {
		// Postfix and prefix forms (IS NULL, IN, LIKE, NOT, negation) keep
		// an equal-precedence operand grouped.
		return true
	}
	if !right {
		return false
	}
	cb, ok := child.(*queryir.Binary)
	return !ok || cb.Op != pb.Op || !associative[pb.Op]
}

func isNegativeNumber(v any) bool {
	switch n := v.(type) {
	case int64:
		return n < 0
	case float64:
		return n < 0
	}
	return false
}
