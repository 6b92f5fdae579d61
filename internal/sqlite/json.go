package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

// translateJSON handles the length of primitive collections and explicit
// JSON path extraction.
func translateJSON(f *sqltranslate.Factory, c *sqltranslate.CallSite) (queryir.SqlExpr, error) {
	switch c.Shape {
	case sqltranslate.ShapeMember:
		if c.Receiver.Type() == queryir.KindArray && (c.Name == "Count" || c.Name == "Length") {
			return f.Function("json_array_length", kInt32, c.Receiver), nil
		}
	case sqltranslate.ShapeStatic:
		if isFunctions(c.Type) && c.Is("JsonExtract", kAny, kString) {
			return f.FunctionWith("json_extract", kString, c.Args, []bool{true, false}, true), nil
		}
	}
	return nil, nil
}
