package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

// translateConvert overrides conversions whose CAST form would be wrong.
func translateConvert(f *sqltranslate.Factory, e queryir.SqlExpr, to queryir.Kind) (queryir.SqlExpr, error) {
	from := e.Type()
	switch {
	case to == kString && from == queryir.KindBool:
		// CASE WHEN b THEN 'True' WHEN NOT b THEN 'False' END, NULL stays NULL
		return f.Case([]queryir.CaseWhen{
			{Test: e, Result: f.String("True")},
			{Test: f.Not(e), Result: f.String("False")},
		}, nil), nil
	case to == queryir.KindBool && from.IsNumeric():
		return f.NotEqual(e, f.Int(0)), nil
	case from == kUint64 && to != kString:
		return nil, sqltranslate.NotSupported("conversion to "+to.String(), kUint64)
	}
	return nil, nil
}

// translateToString handles x.ToString() on non-string values.
func translateToString(f *sqltranslate.Factory, c *sqltranslate.CallSite) (queryir.SqlExpr, error) {
	if c.Shape != sqltranslate.ShapeMethod || !c.Is("ToString") || c.Receiver.Type() == kString {
		return nil, nil
	}
	if out, err := translateConvert(f, c.Receiver, kString); out != nil || err != nil {
		return out, err
	}
	return f.Convert(c.Receiver, kString), nil
}
