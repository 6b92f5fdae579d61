package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

const (
	kString = queryir.KindString
	kInt32  = queryir.KindInt32
	kAny    = queryir.KindUnknown
)

// translateString handles string members, string methods and the string
// statics.
func translateString(f *sqltranslate.Factory, c *sqltranslate.CallSite) (queryir.SqlExpr, error) {
	if c.Shape == sqltranslate.ShapeStatic {
		if c.Type != "string" && c.Type != "String" {
			return nil, nil
		}
		return stringStatic(f, c)
	}
	if c.Receiver.Type() != kString {
		return nil, nil
	}
	s := c.Receiver

	if c.Shape == sqltranslate.ShapeMember {
		if c.Name == "Length" {
			return f.Function("length", kInt32, s), nil
		}
		return nil, nil
	}

	switch {
	case c.Is("ToUpper"), c.Is("ToUpperInvariant"):
		return f.Function("upper", kString, s), nil
	case c.Is("ToLower"), c.Is("ToLowerInvariant"):
		return f.Function("lower", kString, s), nil
	case c.Is("Trim"):
		return f.Function("trim", kString, s), nil
	case c.Is("Trim", kString):
		return f.Function("trim", kString, s, c.Args[0]), nil
	case c.Is("TrimStart"):
		return f.Function("ltrim", kString, s), nil
	case c.Is("TrimStart", kString):
		return f.Function("ltrim", kString, s, c.Args[0]), nil
	case c.Is("TrimEnd"):
		return f.Function("rtrim", kString, s), nil
	case c.Is("TrimEnd", kString):
		return f.Function("rtrim", kString, s, c.Args[0]), nil
	case c.Is("Replace", kString, kString):
		return f.Function("replace", kString, s, c.Args[0], c.Args[1]), nil
	case c.Is("IndexOf", kString):
		if v, ok := stringConstant(c.Args[0]); ok && v == "" {
			return f.Constant(int64(0), kInt32), nil
		}
		return f.Binary(queryir.OpSubtract, f.Function("instr", kInt32, s, c.Args[0]), f.Int(1)), nil
	case c.Is("Substring", kAny) && isIntegral(c.Args[0]):
		return f.Function("substr", kString, s, plusOne(f, c.Args[0])), nil
	case c.Is("Substring", kAny, kAny) && isIntegral(c.Args[0]) && isIntegral(c.Args[1]):
		return f.Function("substr", kString, s, plusOne(f, c.Args[0]), c.Args[1]), nil
	case c.Is("Contains", kString):
		return f.Binary(queryir.OpGreaterThan, f.Function("instr", kInt32, s, c.Args[0]), f.Int(0)), nil
	case c.Is("StartsWith", kString):
		return startsWith(f, s, c.Args[0]), nil
	case c.Is("EndsWith", kString):
		return endsWith(f, s, c.Args[0]), nil
	case c.Is("CompareTo", kString):
		return compare(f, s, c.Args[0]), nil
	case c.Is("ToString"):
		return s, nil
	}
	return nil, nil
}

// startsWith uses LIKE for a constant prefix, escaping wildcards in it, and
// a substring comparison otherwise.
func startsWith(f *sqltranslate.Factory, s, prefix queryir.SqlExpr) queryir.SqlExpr {
	if v, ok := stringConstant(prefix); ok {
		p, escaped := escapeLike(v)
		return like(f, s, p+"%", escaped)
	}
	// substr(s, 1, length(p)) = p
	head := f.Function("substr", kString, s, f.Int(1), f.Function("length", kInt32, prefix))
	return f.And(f.IsNotNull(prefix), f.Equal(head, prefix))
}

func endsWith(f *sqltranslate.Factory, s, suffix queryir.SqlExpr) queryir.SqlExpr {
	if v, ok := stringConstant(suffix); ok {
		p, escaped := escapeLike(v)
		return like(f, s, "%"+p, escaped)
	}
	// substr(s, -length(p)) = p; substr with a zero start returns the whole
	// string, so the empty suffix is tested separately.
	tail := f.Function("substr", kString, s, f.Negate(f.Function("length", kInt32, suffix)))
	return f.And(f.IsNotNull(suffix), f.Or(f.Equal(suffix, f.String("")), f.Equal(tail, suffix)))
}

// compare renders an ordinal comparison as -1, 0 or 1.
func compare(f *sqltranslate.Factory, a, b queryir.SqlExpr) queryir.SqlExpr {
	return f.Case([]queryir.CaseWhen{
		{Test: f.Equal(a, b), Result: f.Constant(int64(0), kInt32)},
		{Test: f.Binary(queryir.OpGreaterThan, a, b), Result: f.Constant(int64(1), kInt32)},
	}, f.Constant(int64(-1), kInt32))
}

func stringStatic(f *sqltranslate.Factory, c *sqltranslate.CallSite) (queryir.SqlExpr, error) {
	switch {
	case c.Is("IsNullOrEmpty", kString):
		s := c.Args[0]
		return f.Or(f.IsNull(s), f.Equal(s, f.String(""))), nil
	case c.Is("IsNullOrWhiteSpace", kString):
		s := c.Args[0]
		return f.Or(f.IsNull(s), f.Equal(f.Function("trim", kString, s), f.String(""))), nil
	case c.Is("Compare", kString, kString):
		return compare(f, c.Args[0], c.Args[1]), nil
	case c.Name == "Concat" && len(c.Args) > 0:
		out := c.Args[0]
		for _, a := range c.Args[1:] {
			out = f.Binary(queryir.OpConcat, out, a)
		}
		return out, nil
	}
	return nil, nil
}
