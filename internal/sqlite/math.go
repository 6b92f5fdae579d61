package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

// mathFunctions maps Math methods to SQLite functions. keepKind marks
// functions whose result has the argument's kind; the rest are REAL.
var mathFunctions = map[string]struct {
	name     string
	arity    int
	keepKind bool
}{
	"Abs":      {"abs", 1, true},
	"Ceiling":  {"ceiling", 1, true},
	"Floor":    {"floor", 1, true},
	"Truncate": {"trunc", 1, true},
	"Round":    {"round", 1, true},
	"Max":      {"max", 2, true},
	"Min":      {"min", 2, true},
	"Exp":      {"exp", 1, false},
	"Log":      {"ln", 1, false},
	"Log10":    {"log10", 1, false},
	"Log2":     {"log2", 1, false},
	"Sqrt":     {"sqrt", 1, false},
	"Pow":      {"pow", 2, false},
	"Sin":      {"sin", 1, false},
	"Cos":      {"cos", 1, false},
	"Tan":      {"tan", 1, false},
	"Asin":     {"asin", 1, false},
	"Acos":     {"acos", 1, false},
	"Atan":     {"atan", 1, false},
	"Atan2":    {"atan2", 2, false},
}

// translateMath handles Math.X(...) statics.
func translateMath(f *sqltranslate.Factory, c *sqltranslate.CallSite) (queryir.SqlExpr, error) {
	if c.Shape != sqltranslate.ShapeStatic || (c.Type != "Math" && c.Type != "MathF") {
		return nil, nil
	}
	for _, a := range c.Args {
		if !a.Type().IsNumeric() && a.Type() != queryir.KindUnknown {
			return nil, nil
		}
		if a.Type() == queryir.KindDecimal {
			return nil, sqltranslate.NotSupported("Math."+c.Name, queryir.KindDecimal)
		}
	}

	switch {
	case c.Is("Sign", kAny):
		return f.Function("sign", kInt32, c.Args[0]), nil
	case c.Is("Round", kAny, kAny):
		return f.Function("round", c.Args[0].Type(), c.Args[0], c.Args[1]), nil
	case c.Is("Log", kAny, kAny):
		// Math.Log(x, base) = ln(x) / ln(base)
		return f.Binary(queryir.OpDivide,
			f.Function("ln", queryir.KindFloat64, c.Args[0]),
			f.Function("ln", queryir.KindFloat64, c.Args[1])), nil
	}

	fn, ok := mathFunctions[c.Name]
	if !ok || fn.arity != len(c.Args) {
		return nil, nil
	}
	kind := queryir.KindFloat64
	if fn.keepKind {
		kind = c.Args[0].Type()
		if len(c.Args) == 2 && kind == queryir.KindUnknown {
			kind = c.Args[1].Type()
		}
	}
	return f.Function(fn.name, kind, c.Args...), nil
}
