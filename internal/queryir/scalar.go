package queryir

import "fmt"

// Node is anything a source expression can translate to: a scalar SqlExpr
// or a structural projection.
//
// This is a sealed interface. Outside this package it can only be
// implemented by embedding Custom.
type Node interface {
	node() // Marker method - seals interface to this package
}

// SqlExpr is a scalar expression in the IR.
//
// Type is the logical kind of the value the expression produces. Mapping
// is the store-type mapping governing its rendering, or nil when it has not
// been inferred yet.
type SqlExpr interface {
	Node
	Type() Kind
	Mapping() *TypeMapping
}

// ColumnRef reads a column exposed by a table source.
//
//	"o"."Total"
type ColumnRef struct {
	Table       string // alias of the table source
	Name        string // column name
	Kind        Kind
	ElementKind Kind // element kind when Kind is KindArray
	Nullable    bool
	// ElementNullable marks an array column whose elements may be null.
	ElementNullable bool
	TypeMapping     *TypeMapping
}

// Constant is a literal value known at compile time. Value holds the
// normalized Go representation (see Normalize), or nil for NULL.
type Constant struct {
	Value       any
	Kind        Kind
	ElementKind Kind
	TypeMapping *TypeMapping
}

// Parameter is a placeholder bound at execution time. Its nullability is
// unknown until a value is supplied.
type Parameter struct {
	Name        string
	Kind        Kind
	ElementKind Kind
	TypeMapping *TypeMapping
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
	OpIsNull
	OpIsNotNull
	OpConvert // CAST(operand AS <TypeMapping.StoreType>)
	OpBitNot
)

var unaryNames = [...]string{"NOT", "-", "IS NULL", "IS NOT NULL", "CAST", "~"}

func (o UnaryOp) String() string { return unaryNames[o] }

// Unary applies a unary operator.
type Unary struct {
	Op          UnaryOp
	Operand     SqlExpr
	Kind        Kind
	TypeMapping *TypeMapping
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpConcat
	OpAnd
	OpOr
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpBitAnd
	OpBitOr
)

var binaryNames = [...]string{
	"+", "-", "*", "/", "%", "||", "AND", "OR",
	"=", "<>", "<", "<=", ">", ">=", "&", "|",
}

func (o BinaryOp) String() string { return binaryNames[o] }

// IsComparison reports whether o is one of =, <>, <, <=, >, >=.
func (o BinaryOp) IsComparison() bool {
	return o >= OpEqual && o <= OpGreaterThanOrEqual
}

// IsLogical reports whether o is AND or OR.
func (o BinaryOp) IsLogical() bool {
	return o == OpAnd || o == OpOr
}

// IsArithmetic reports whether o is +, -, *, / or %.
func (o BinaryOp) IsArithmetic() bool {
	return o <= OpModulo
}

// Negated returns the comparison that is true exactly when o is false, for
// non-null operands.
func (o BinaryOp) Negated() BinaryOp {
	switch o {
	case OpEqual:
		return OpNotEqual
	case OpNotEqual:
		return OpEqual
	case OpLessThan:
		return OpGreaterThanOrEqual
	case OpLessThanOrEqual:
		return OpGreaterThan
	case OpGreaterThan:
		return OpLessThanOrEqual
	case OpGreaterThanOrEqual:
		return OpLessThan
	}
	panic(fmt.Sprintf("queryir: operator %s has no negation", o))
}

// Mirrored returns the operator to use after swapping the operands.
func (o BinaryOp) Mirrored() BinaryOp {
	switch o {
	case OpLessThan:
		return OpGreaterThan
	case OpLessThanOrEqual:
		return OpGreaterThanOrEqual
	case OpGreaterThan:
		return OpLessThan
	case OpGreaterThanOrEqual:
		return OpLessThanOrEqual
	}
	return o
}

// Binary applies a binary operator.
type Binary struct {
	Op          BinaryOp
	Left        SqlExpr
	Right       SqlExpr
	Kind        Kind
	TypeMapping *TypeMapping
}

// Function is a call to a named SQL function.
//
// ArgsPropagateNull[i] says whether a NULL in Args[i] makes the result
// NULL. Nullable says whether the function may return NULL at all; when it
// is false the result is never NULL regardless of the arguments. Use
// NewFunction to build one; it checks the flag list against the arguments.
type Function struct {
	Name              string
	Args              []SqlExpr
	ArgsPropagateNull []bool
	Nullable          bool
	Aggregate         bool
	Niladic           bool // rendered without parentheses, e.g. CURRENT_TIMESTAMP
	Kind              Kind
	TypeMapping       *TypeMapping
}

// NewFunction builds a scalar function call. It panics if propagate does not
// have one flag per argument.
func NewFunction(name string, args []SqlExpr, propagate []bool, nullable bool, kind Kind, m *TypeMapping) *Function {
	if len(args) != len(propagate) {
		panic(fmt.Sprintf("queryir: function %s has %d arguments but %d null-propagation flags",
			name, len(args), len(propagate)))
	}
	return &Function{
		Name:              name,
		Args:              args,
		ArgsPropagateNull: propagate,
		Nullable:          nullable,
		Kind:              kind,
		TypeMapping:       m,
	}
}

// NewAggregate builds an aggregate call. Aggregates ignore NULL inputs, so
// no argument propagates nullability; nullable says whether the aggregate can
// produce NULL over an empty group.
func NewAggregate(name string, args []SqlExpr, nullable bool, kind Kind, m *TypeMapping) *Function {
	f := NewFunction(name, args, make([]bool, len(args)), nullable, kind, m)
	f.Aggregate = true
	return f
}

// Propagating returns a flag list of n entries, all true.
func Propagating(n int) []bool {
	flags := make([]bool, n)
	for i := range flags {
		flags[i] = true
	}
	return flags
}

// CaseWhen is one WHEN/THEN arm of a Case.
type CaseWhen struct {
	Test   SqlExpr
	Result SqlExpr
}

// Case is CASE [operand] WHEN ... THEN ... [ELSE ...] END. Operand is nil
// for the searched form.
type Case struct {
	Operand     SqlExpr
	Whens       []CaseWhen
	Else        SqlExpr
	Kind        Kind
	TypeMapping *TypeMapping
}

// NewCase builds a CASE expression. It panics when whens is empty.
func NewCase(operand SqlExpr, whens []CaseWhen, elseResult SqlExpr) *Case {
	if len(whens) == 0 {
		panic("queryir: CASE requires at least one WHEN")
	}
	first := whens[0].Result
	return &Case{
		Operand:     operand,
		Whens:       whens,
		Else:        elseResult,
		Kind:        first.Type(),
		TypeMapping: first.Mapping(),
	}
}

// Exists is EXISTS (subquery).
type Exists struct {
	Subquery *Select
}

// In is item IN (values...) or item IN (subquery). Exactly one of Values
// and Subquery is set.
type In struct {
	Item     SqlExpr
	Values   []SqlExpr
	Subquery *Select
}

// NewIn builds an IN over a value list.
func NewIn(item SqlExpr, values []SqlExpr) *In {
	return &In{Item: item, Values: values}
}

// NewInSubquery builds an IN over a single-column subquery.
func NewInSubquery(item SqlExpr, sub *Select) *In {
	if len(sub.Projections) != 1 {
		panic(fmt.Sprintf("queryir: IN subquery must project one column, got %d", len(sub.Projections)))
	}
	return &In{Item: item, Subquery: sub}
}

// ScalarSubquery is a subquery producing at most one row and one column.
type ScalarSubquery struct {
	Subquery    *Select
	Kind        Kind
	TypeMapping *TypeMapping
}

// PathSegment is one step of a JSON path: either a property name or an
// array index. Index may be any integer expression.
type PathSegment struct {
	Property string
	Index    SqlExpr
}

// JsonScalar reads a scalar out of a JSON-encoded column.
type JsonScalar struct {
	Json        SqlExpr
	Path        []PathSegment
	Kind        Kind
	Nullable    bool
	TypeMapping *TypeMapping
}

// Collate is operand COLLATE collation.
type Collate struct {
	Operand   SqlExpr
	Collation string
}

// Like is match LIKE pattern [ESCAPE escape].
type Like struct {
	Match   SqlExpr
	Pattern SqlExpr
	Escape  SqlExpr
}

// Fragment is raw SQL emitted verbatim, e.g. the * in COUNT(*).
type Fragment struct {
	SQL string
}

// Distinct is the DISTINCT modifier inside an aggregate: COUNT(DISTINCT x).
type Distinct struct {
	Operand SqlExpr
}

// CustomExpr is implemented by dialect-specific nodes. Generic passes walk
// them through Children and rebuild them with WithChildren. Implementations
// must be pointer types; passes compare nodes by identity.
type CustomExpr interface {
	SqlExpr
	// Children returns the operand expressions in a fixed order.
	Children() []SqlExpr
	// WithChildren returns a copy with its operands replaced, in the order
	// Children returned them.
	WithChildren(children []SqlExpr) CustomExpr
}

// Custom is embedded by dialect node types to satisfy the sealed Node
// interface.
type Custom struct{}

func (Custom) node() {}

func (*ColumnRef) node()      {}
func (*Constant) node()       {}
func (*Parameter) node()      {}
func (*Unary) node()          {}
func (*Binary) node()         {}
func (*Function) node()       {}
func (*Case) node()           {}
func (*Exists) node()         {}
func (*In) node()             {}
func (*ScalarSubquery) node() {}
func (*JsonScalar) node()     {}
func (*Collate) node()        {}
func (*Like) node()           {}
func (*Fragment) node()       {}
func (*Distinct) node()       {}

func (e *ColumnRef) Type() Kind      { return e.Kind }
func (e *Constant) Type() Kind       { return e.Kind }
func (e *Parameter) Type() Kind      { return e.Kind }
func (e *Unary) Type() Kind          { return e.Kind }
func (e *Binary) Type() Kind         { return e.Kind }
func (e *Function) Type() Kind       { return e.Kind }
func (e *Case) Type() Kind           { return e.Kind }
func (*Exists) Type() Kind           { return KindBool }
func (*In) Type() Kind               { return KindBool }
func (e *ScalarSubquery) Type() Kind { return e.Kind }
func (e *JsonScalar) Type() Kind     { return e.Kind }
func (e *Collate) Type() Kind        { return e.Operand.Type() }
func (*Like) Type() Kind             { return KindBool }
func (*Fragment) Type() Kind         { return KindUnknown }
func (e *Distinct) Type() Kind       { return e.Operand.Type() }

func (e *ColumnRef) Mapping() *TypeMapping      { return e.TypeMapping }
func (e *Constant) Mapping() *TypeMapping       { return e.TypeMapping }
func (e *Parameter) Mapping() *TypeMapping      { return e.TypeMapping }
func (e *Unary) Mapping() *TypeMapping          { return e.TypeMapping }
func (e *Binary) Mapping() *TypeMapping         { return e.TypeMapping }
func (e *Function) Mapping() *TypeMapping       { return e.TypeMapping }
func (e *Case) Mapping() *TypeMapping           { return e.TypeMapping }
func (*Exists) Mapping() *TypeMapping           { return nil }
func (*In) Mapping() *TypeMapping               { return nil }
func (e *ScalarSubquery) Mapping() *TypeMapping { return e.TypeMapping }
func (e *JsonScalar) Mapping() *TypeMapping     { return e.TypeMapping }
func (e *Collate) Mapping() *TypeMapping        { return e.Operand.Mapping() }
func (*Like) Mapping() *TypeMapping             { return nil }
func (*Fragment) Mapping() *TypeMapping         { return nil }
func (e *Distinct) Mapping() *TypeMapping       { return e.Operand.Mapping() }

// Convenience constructors for the nodes every translator needs.

// NewConstant builds a constant of the given kind.
func NewConstant(v any, kind Kind, m *TypeMapping) *Constant {
	return &Constant{Value: v, Kind: kind, TypeMapping: m}
}

// NewBinary builds a binary node. Comparisons and logical operators are
// always boolean; other operators take the kind of the left operand.
func NewBinary(op BinaryOp, left, right SqlExpr, m *TypeMapping) *Binary {
	kind := left.Type()
	if op.IsComparison() || op.IsLogical() {
		kind = KindBool
	} else if kind == KindUnknown {
		kind = right.Type()
	}
	return &Binary{Op: op, Left: left, Right: right, Kind: kind, TypeMapping: m}
}

// NewUnary builds a unary node. NOT, IS NULL and IS NOT NULL are boolean.
func NewUnary(op UnaryOp, operand SqlExpr, m *TypeMapping) *Unary {
	kind := operand.Type()
	switch op {
	case OpNot, OpIsNull, OpIsNotNull:
		kind = KindBool
	}
	return &Unary{Op: op, Operand: operand, Kind: kind, TypeMapping: m}
}

// And joins two predicates, treating nil as "no predicate".
func And(left, right SqlExpr, m *TypeMapping) SqlExpr {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return NewBinary(OpAnd, left, right, m)
}

// Or joins two predicates with OR.
func Or(left, right SqlExpr, m *TypeMapping) SqlExpr {
	return NewBinary(OpOr, left, right, m)
}

// Not negates a predicate.
func Not(operand SqlExpr, m *TypeMapping) SqlExpr {
	return NewUnary(OpNot, operand, m)
}

// IsNull builds operand IS NULL.
func IsNull(operand SqlExpr, m *TypeMapping) SqlExpr {
	return NewUnary(OpIsNull, operand, m)
}

// IsNotNull builds operand IS NOT NULL.
func IsNotNull(operand SqlExpr, m *TypeMapping) SqlExpr {
	return NewUnary(OpIsNotNull, operand, m)
}

// IsBoolConstant reports whether e is the constant v.
func IsBoolConstant(e SqlExpr, v bool) bool {
	c, ok := e.(*Constant)
	if !ok {
		return false
	}
	b, ok := c.Value.(bool)
	return ok && b == v
}

// IsNullConstant reports whether e is a NULL constant.
func IsNullConstant(e SqlExpr) bool {
	c, ok := e.(*Constant)
	return ok && c.Value == nil
}

// ElementOf returns the element kind of an array-valued expression, or
// KindUnknown when it is not known.
func ElementOf(e SqlExpr) Kind {
	switch e := e.(type) {
	case *ColumnRef:
		return e.ElementKind
	case *Constant:
		return e.ElementKind
	case *Parameter:
		return e.ElementKind
	}
	if m := e.Mapping(); m != nil && m.Element != nil {
		return m.Element.Kind
	}
	return KindUnknown
}

// ElementMayBeNull reports whether an array-valued expression can hold null
// elements. Parameter arrays are supplied at run time and always can.
func ElementMayBeNull(e SqlExpr) bool {
	switch e := e.(type) {
	case *ColumnRef:
		return e.ElementNullable
	case *Constant:
		items, ok := e.Value.([]any)
		if !ok {
			return e.Value == nil
		}
		for _, it := range items {
			if it == nil {
				return true
			}
		}
		return false
	}
	return true
}
