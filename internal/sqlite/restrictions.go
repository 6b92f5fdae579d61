package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

// unordered are kinds whose stored form does not sort in value order.
var unordered = map[queryir.Kind]bool{
	kDecimal:  true,
	kUint64:   true,
	kTimeSpan: true,
	kOffset:   true,
}

// CheckOrdering refuses ORDER BY over kinds whose stored text or wrapped
// integer form would sort incorrectly.
func (d *Dialect) CheckOrdering(kind queryir.Kind) error {
	if unordered[kind] {
		return sqltranslate.NotSupported("ORDER BY", kind)
	}
	return nil
}

// Aggregate translates Sum, Average, Min and Max over kinds SQLite cannot
// aggregate natively. It returns nil to use the standard aggregate.
func (d *Dialect) Aggregate(f *sqltranslate.Factory, name string, arg queryir.SqlExpr) (queryir.SqlExpr, error) {
	kind := arg.Type()
	switch name {
	case "Sum", "Average":
		if unordered[kind] {
			return nil, sqltranslate.NotSupported(name, kind)
		}
	case "Min", "Max":
		switch kind {
		case kDecimal:
			fn := FuncMax
			if name == "Min" {
				fn = FuncMin
			}
			return f.Aggregate(fn, kDecimal, true, arg), nil
		case kUint64, kTimeSpan, kOffset:
			return nil, sqltranslate.NotSupported(name, kind)
		}
	}
	return nil, nil
}
