package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

const kBytes = queryir.KindBytes

// translateBytes handles byte-array length and containment, hex encoding
// and decoding, and substr over blobs.
func translateBytes(f *sqltranslate.Factory, c *sqltranslate.CallSite) (queryir.SqlExpr, error) {
	if c.Shape == sqltranslate.ShapeStatic {
		switch {
		case isFunctions(c.Type) && c.Is("Hex", kAny), c.Type == "Convert" && c.Is("ToHexString", kBytes):
			return f.Function("hex", kString, c.Args[0]), nil
		case isFunctions(c.Type) && c.Is("Unhex", kString), c.Type == "Convert" && c.Is("FromHexString", kString):
			return f.Function(FuncUnhex, kBytes, c.Args[0]), nil
		case isFunctions(c.Type) && c.Is("Substr", kBytes, kAny):
			return f.Function("substr", kBytes, c.Args[0], c.Args[1]), nil
		case isFunctions(c.Type) && c.Is("Substr", kBytes, kAny, kAny):
			return f.Function("substr", kBytes, c.Args...), nil
		}
		return nil, nil
	}
	if c.Receiver.Type() != kBytes {
		return nil, nil
	}
	switch {
	case c.Shape == sqltranslate.ShapeMember && c.Name == "Length":
		return f.Function("length", kInt32, c.Receiver), nil
	case c.Shape == sqltranslate.ShapeMethod && c.Is("Contains", kAny) && isIntegral(c.Args[0]):
		// instr(b, char(x)) > 0
		return f.Binary(queryir.OpGreaterThan,
			f.Function("instr", kInt32, c.Receiver, f.Function("char", kString, c.Args[0])),
			f.Int(0)), nil
	}
	return nil, nil
}

// isFunctions reports whether typ names the database-function holder
// (EF.Functions in source queries).
func isFunctions(typ string) bool {
	return typ == "EF.Functions" || typ == "Functions"
}
