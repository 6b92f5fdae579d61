package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

// translatePattern handles Regex.IsMatch and the LIKE and GLOB database
// functions.
func translatePattern(f *sqltranslate.Factory, c *sqltranslate.CallSite) (queryir.SqlExpr, error) {
	if c.Shape != sqltranslate.ShapeStatic {
		return nil, nil
	}
	switch {
	case c.Type == "Regex" && c.Is("IsMatch", kString, kString):
		return &Regexp{Match: c.Args[0], Pattern: c.Args[1]}, nil
	case isFunctions(c.Type) && c.Is("Glob", kString, kString):
		return &Glob{Match: c.Args[0], Pattern: c.Args[1]}, nil
	case isFunctions(c.Type) && c.Is("Like", kString, kString):
		return f.Like(c.Args[0], c.Args[1], nil), nil
	case isFunctions(c.Type) && c.Is("Like", kString, kString, kString):
		return f.Like(c.Args[0], c.Args[1], c.Args[2]), nil
	}
	return nil, nil
}
