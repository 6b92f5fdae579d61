package sqltranslate

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
)

// Factory builds IR nodes with the dialect's type mappings attached. It is
// shared by the baseline translator and every plugin. A Factory holds only
// the immutable mapping catalog and is safe for concurrent use.
type Factory struct {
	mappings queryir.MappingSource
}

// NewFactory returns a Factory over a dialect's mapping catalog.
func NewFactory(mappings queryir.MappingSource) *Factory {
	return &Factory{mappings: mappings}
}

// Mappings returns the dialect's mapping catalog.
func (f *Factory) Mappings() queryir.MappingSource {
	return f.mappings
}

// Mapping returns the default mapping for kind.
func (f *Factory) Mapping(kind queryir.Kind) *queryir.TypeMapping {
	if kind == queryir.KindUnknown || kind == queryir.KindArray || kind == queryir.KindObject {
		return nil
	}
	return f.mappings.Default(kind)
}

// Constant builds a constant with the default mapping of its kind.
func (f *Factory) Constant(v any, kind queryir.Kind) *queryir.Constant {
	return queryir.NewConstant(v, kind, f.Mapping(kind))
}

func (f *Factory) String(s string) *queryir.Constant {
	return f.Constant(s, queryir.KindString)
}

func (f *Factory) Int(n int64) *queryir.Constant {
	return f.Constant(n, queryir.KindInt64)
}

func (f *Factory) Bool(b bool) *queryir.Constant {
	return f.Constant(b, queryir.KindBool)
}

// Null builds a NULL constant of kind.
func (f *Factory) Null(kind queryir.Kind) *queryir.Constant {
	return f.Constant(nil, kind)
}

// Function builds a call whose result is NULL exactly when any argument is.
func (f *Factory) Function(name string, kind queryir.Kind, args ...queryir.SqlExpr) *queryir.Function {
	return queryir.NewFunction(name, args, queryir.Propagating(len(args)), true, kind, f.Mapping(kind))
}

// FunctionWith builds a call with explicit null-propagation flags.
func (f *Factory) FunctionWith(name string, kind queryir.Kind, args []queryir.SqlExpr, propagate []bool, nullable bool) *queryir.Function {
	return queryir.NewFunction(name, args, propagate, nullable, kind, f.Mapping(kind))
}

// NonNullFunction builds a call that never returns NULL, such as
// json_array_length over a non-null array.
func (f *Factory) NonNullFunction(name string, kind queryir.Kind, args ...queryir.SqlExpr) *queryir.Function {
	return queryir.NewFunction(name, args, make([]bool, len(args)), false, kind, f.Mapping(kind))
}

// Aggregate builds an aggregate call.
func (f *Factory) Aggregate(name string, kind queryir.Kind, nullable bool, args ...queryir.SqlExpr) *queryir.Function {
	return queryir.NewAggregate(name, args, nullable, kind, f.Mapping(kind))
}

// Coalesce builds COALESCE(a, b). Its kind and mapping come from a.
func (f *Factory) Coalesce(a, b queryir.SqlExpr) *queryir.Function {
	m := a.Mapping()
	if m == nil {
		m = b.Mapping()
	}
	return queryir.NewFunction("COALESCE", []queryir.SqlExpr{a, b}, []bool{false, false}, true, a.Type(), m)
}

// Binary builds a binary node. A constant operand whose kind differs from
// the other operand is converted to that kind first, so 10 compared with a
// decimal column is a decimal 10. Arithmetic on mixed numeric kinds
// produces the wider kind.
func (f *Factory) Binary(op queryir.BinaryOp, l, r queryir.SqlExpr) queryir.SqlExpr {
	l, r = f.coerce(l, r), f.coerce(r, l)

	if op.IsComparison() || op.IsLogical() {
		return queryir.NewBinary(op, l, r, f.Mapping(queryir.KindBool))
	}

	kind := promote(l.Type(), r.Type())
	m := l.Mapping()
	if m == nil || m.Kind != kind {
		m = r.Mapping()
	}
	if m != nil && m.Kind != kind {
		m = f.Mapping(kind)
	}
	b := queryir.NewBinary(op, l, r, m)
	b.Kind = kind
	return b
}

// coerce converts a constant to other's kind when the value allows it.
func (f *Factory) coerce(e, other queryir.SqlExpr) queryir.SqlExpr {
	c, ok := e.(*queryir.Constant)
	if !ok || c.Value == nil || c.Kind == other.Type() || other.Type() == queryir.KindUnknown {
		return e
	}
	if !c.Kind.IsNumeric() || !other.Type().IsNumeric() || promote(c.Kind, other.Type()) != other.Type() {
		return e
	}
	v, err := queryir.Normalize(c.Value, other.Type())
	if err != nil {
		return e
	}
	return queryir.NewConstant(v, other.Type(), other.Mapping())
}

// promote returns the kind of an arithmetic result over a and b.
func promote(a, b queryir.Kind) queryir.Kind {
	if a == b || !a.IsNumeric() || !b.IsNumeric() {
		if a == queryir.KindUnknown {
			return b
		}
		return a
	}
	rank := func(k queryir.Kind) int {
		switch k {
		case queryir.KindInt32:
			return 1
		case queryir.KindInt64:
			return 2
		case queryir.KindUint64:
			return 3
		case queryir.KindFloat64:
			return 4
		case queryir.KindDecimal:
			return 5
		}
		return 0
	}
	if rank(a) >= rank(b) {
		return a
	}
	return b
}

func (f *Factory) Equal(l, r queryir.SqlExpr) queryir.SqlExpr {
	return f.Binary(queryir.OpEqual, l, r)
}

func (f *Factory) NotEqual(l, r queryir.SqlExpr) queryir.SqlExpr {
	return f.Binary(queryir.OpNotEqual, l, r)
}

// And combines predicates; nil operands are skipped.
func (f *Factory) And(l, r queryir.SqlExpr) queryir.SqlExpr {
	return queryir.And(l, r, f.Mapping(queryir.KindBool))
}

func (f *Factory) Or(l, r queryir.SqlExpr) queryir.SqlExpr {
	return queryir.Or(l, r, f.Mapping(queryir.KindBool))
}

func (f *Factory) Not(e queryir.SqlExpr) queryir.SqlExpr {
	return queryir.Not(e, f.Mapping(queryir.KindBool))
}

func (f *Factory) IsNull(e queryir.SqlExpr) queryir.SqlExpr {
	return queryir.IsNull(e, f.Mapping(queryir.KindBool))
}

func (f *Factory) IsNotNull(e queryir.SqlExpr) queryir.SqlExpr {
	return queryir.IsNotNull(e, f.Mapping(queryir.KindBool))
}

// Negate builds arithmetic negation.
func (f *Factory) Negate(e queryir.SqlExpr) queryir.SqlExpr {
	return queryir.NewUnary(queryir.OpNegate, e, e.Mapping())
}

// Convert builds CAST(e AS <store type of kind>).
func (f *Factory) Convert(e queryir.SqlExpr, kind queryir.Kind) queryir.SqlExpr {
	u := queryir.NewUnary(queryir.OpConvert, e, f.Mapping(kind))
	u.Kind = kind
	return u
}

// Case builds a searched CASE.
func (f *Factory) Case(whens []queryir.CaseWhen, elseResult queryir.SqlExpr) *queryir.Case {
	return queryir.NewCase(nil, whens, elseResult)
}

// Like builds match LIKE pattern [ESCAPE escape].
func (f *Factory) Like(match, pattern, escape queryir.SqlExpr) *queryir.Like {
	return &queryir.Like{Match: match, Pattern: pattern, Escape: escape}
}

// In builds item IN (values...). An empty list is the constant false.
func (f *Factory) In(item queryir.SqlExpr, values []queryir.SqlExpr) queryir.SqlExpr {
	if len(values) == 0 {
		return f.Bool(false)
	}
	return queryir.NewIn(item, values)
}

// Entity projects every property of ent read from the table source alias.
// nullable marks the optional side of a left join: every column may then
// be NULL.
func (f *Factory) Entity(ent *schema.Entity, alias string, nullable bool) *queryir.EntityProjection {
	p := &queryir.EntityProjection{Entity: ent.Name, Table: alias, Nullable: nullable}
	for _, prop := range ent.Properties {
		col := &queryir.ColumnRef{
			Table:       alias,
			Name:        prop.Column,
			Kind:        prop.Kind,
			Nullable:    prop.Nullable || nullable,
			TypeMapping: f.mappings.Default(prop.Kind),
		}
		if prop.Kind == queryir.KindArray {
			col.ElementKind = prop.Element
			col.ElementNullable = prop.ElementNullable
			col.TypeMapping = f.mappings.Collection(f.mappings.Default(prop.Element))
		}
		p.Columns = append(p.Columns, queryir.PropertyColumn{Property: prop.Name, Column: col})
	}
	return p
}
