package sqlite

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

// trimmedStrftime formats with strftime and strips the trailing zeros and
// dot that %f leaves on whole seconds, matching FormatDateTime.
//
//	rtrim(rtrim(strftime(format, args...), '0'), '.')
func trimmedStrftime(kind queryir.Kind, m *queryir.TypeMapping, format string, args ...queryir.SqlExpr) queryir.SqlExpr {
	all := append([]queryir.SqlExpr{queryir.NewConstant(format, queryir.KindString, String)}, args...)
	propagate := queryir.Propagating(len(all))
	propagate[0] = false
	inner := queryir.NewFunction("strftime", all, propagate, true, queryir.KindString, String)
	zeros := queryir.NewFunction("rtrim",
		[]queryir.SqlExpr{inner, queryir.NewConstant("0", queryir.KindString, String)},
		[]bool{true, false}, true, queryir.KindString, String)
	return queryir.NewFunction("rtrim",
		[]queryir.SqlExpr{zeros, queryir.NewConstant(".", queryir.KindString, String)},
		[]bool{true, false}, true, kind, m)
}

// stringConstant returns the value of a non-null string constant.
func stringConstant(e queryir.SqlExpr) (string, bool) {
	c, ok := e.(*queryir.Constant)
	if !ok {
		return "", false
	}
	s, ok := c.Value.(string)
	return s, ok
}

// intConstant returns the value of a non-null integer constant.
func intConstant(e queryir.SqlExpr) (int64, bool) {
	c, ok := e.(*queryir.Constant)
	if !ok {
		return 0, false
	}
	n, ok := c.Value.(int64)
	return n, ok
}

// likeEscape is the escape character used in generated LIKE patterns.
const likeEscape = `\`

// escapeLike escapes LIKE wildcards in s. escaped reports whether anything
// was escaped, in which case the pattern needs an ESCAPE clause.
func escapeLike(s string) (out string, escaped bool) {
	if !strings.ContainsAny(s, `%_\`) {
		return s, false
	}
	var b strings.Builder
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			b.WriteString(likeEscape)
		}
		b.WriteRune(r)
	}
	return b.String(), true
}

// like builds match LIKE pattern with an ESCAPE clause only when needed.
func like(f *sqltranslate.Factory, match queryir.SqlExpr, pattern string, escaped bool) queryir.SqlExpr {
	var esc queryir.SqlExpr
	if escaped {
		esc = f.String(likeEscape)
	}
	return f.Like(match, f.String(pattern), esc)
}

// plusOne converts a zero-based position to SQLite's one-based form.
func plusOne(f *sqltranslate.Factory, e queryir.SqlExpr) queryir.SqlExpr {
	if n, ok := intConstant(e); ok {
		return f.Constant(n+1, e.Type())
	}
	return f.Binary(queryir.OpAdd, e, f.Int(1))
}

// modifier builds a date modifier such as '3 days' or
// CAST(n AS TEXT) || ' days'.
func modifier(f *sqltranslate.Factory, n queryir.SqlExpr, unit string) queryir.SqlExpr {
	if c, ok := n.(*queryir.Constant); ok && c.Value != nil {
		return f.String(fmt.Sprintf("%v %s", c.Value, unit))
	}
	return f.Binary(queryir.OpConcat, f.Convert(n, queryir.KindString), f.String(" "+unit))
}

func isIntegral(e queryir.SqlExpr) bool {
	return e.Type().IsIntegral()
}
