package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

const (
	kDecimal  = queryir.KindDecimal
	kTimeSpan = queryir.KindTimeSpan
	kOffset   = queryir.KindDateTimeOffset
	kUint64   = queryir.KindUint64
)

// relational reports whether op is <, <=, > or >=.
func relational(op queryir.BinaryOp) bool {
	return op.IsComparison() && op != queryir.OpEqual && op != queryir.OpNotEqual
}

// translateArithmetic overrides operators on kinds SQLite has no native
// arithmetic for: decimal and timespan are emulated through registered
// functions, datetime arithmetic goes through julianday, and operations
// that would give wrong answers on uint64 or datetimeoffset are refused.
func translateArithmetic(f *sqltranslate.Factory, op queryir.BinaryOp, l, r queryir.SqlExpr) (queryir.SqlExpr, error) {
	lk, rk := l.Type(), r.Type()
	switch {
	case lk == kDecimal || rk == kDecimal:
		return decimalBinary(f, op, l, r), nil

	case lk == kOffset || rk == kOffset:
		if op.IsArithmetic() || relational(op) {
			return nil, sqltranslate.NotSupported("operator "+op.String(), kOffset)
		}

	case lk == kUint64 || rk == kUint64:
		if relational(op) || op == queryir.OpMultiply || op == queryir.OpDivide || op == queryir.OpModulo {
			return nil, sqltranslate.NotSupported("operator "+op.String(), kUint64)
		}

	case lk == kTimeSpan && rk == kTimeSpan:
		switch {
		case op == queryir.OpAdd || op == queryir.OpSubtract:
			return timeSpan(f, f.Binary(op, days(f, l), days(f, r))), nil
		case relational(op):
			return f.Binary(op, days(f, l), days(f, r)), nil
		}

	case lk == kTimeSpan && rk.IsNumeric() && (op == queryir.OpMultiply || op == queryir.OpDivide):
		return timeSpan(f, f.Binary(op, days(f, l), r)), nil

	case lk == kDateTime && rk == kDateTime && op == queryir.OpSubtract:
		// ef_timespan(julianday(a) - julianday(b))
		return timeSpan(f, f.Binary(op, julianDay(f, l), julianDay(f, r))), nil

	case lk == kDateTime && rk == kTimeSpan && (op == queryir.OpAdd || op == queryir.OpSubtract):
		return trimmedStrftime(kDateTime, DateTime, dateTimeFormat, f.Binary(op, julianDay(f, l), days(f, r))), nil
	}
	return nil, nil
}

func days(f *sqltranslate.Factory, e queryir.SqlExpr) queryir.SqlExpr {
	return f.Function(FuncDays, kFloat, e)
}

func timeSpan(f *sqltranslate.Factory, e queryir.SqlExpr) queryir.SqlExpr {
	return f.Function(FuncTimeSpan, kTimeSpan, e)
}

func julianDay(f *sqltranslate.Factory, e queryir.SqlExpr) queryir.SqlExpr {
	return f.Function("julianday", kFloat, e)
}

// asDecimal converts a numeric constant operand to a decimal constant so
// that it renders in the stored text form.
func asDecimal(f *sqltranslate.Factory, e queryir.SqlExpr) queryir.SqlExpr {
	c, ok := e.(*queryir.Constant)
	if !ok || c.Value == nil || c.Kind == kDecimal || !c.Kind.IsNumeric() {
		return e
	}
	v, err := queryir.Normalize(c.Value, kDecimal)
	if err != nil {
		return e
	}
	return f.Constant(v, kDecimal)
}

func decimalBinary(f *sqltranslate.Factory, op queryir.BinaryOp, l, r queryir.SqlExpr) queryir.SqlExpr {
	l, r = asDecimal(f, l), asDecimal(f, r)
	call := func(name string, args ...queryir.SqlExpr) queryir.SqlExpr {
		return f.Function(name, kDecimal, args...)
	}
	switch op {
	case queryir.OpAdd:
		return call(FuncAdd, l, r)
	case queryir.OpSubtract:
		return call(FuncAdd, l, call(FuncNegate, r))
	case queryir.OpMultiply:
		return call(FuncMultiply, l, r)
	case queryir.OpDivide:
		return call(FuncDivide, l, r)
	case queryir.OpModulo:
		return call(FuncMod, l, r)
	}
	if relational(op) {
		// ef_compare(a, b) op 0
		return f.Binary(op, f.Function(FuncCompare, kInt32, l, r), f.Int(0))
	}
	return nil
}

// translateNegate emulates unary minus on decimal and timespan.
func translateNegate(f *sqltranslate.Factory, op queryir.UnaryOp, e queryir.SqlExpr) (queryir.SqlExpr, error) {
	if op != queryir.OpNegate {
		return nil, nil
	}
	switch e.Type() {
	case kDecimal:
		return f.Function(FuncNegate, kDecimal, asDecimal(f, e)), nil
	case kTimeSpan:
		return timeSpan(f, f.Negate(days(f, e))), nil
	case kUint64:
		return nil, sqltranslate.NotSupported("negation", kUint64)
	}
	return nil, nil
}
