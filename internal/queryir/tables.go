package queryir

// TableSource is anything a Select reads rows from.
//
// This is a sealed interface. Every source carries an alias that is unique
// within the query; column references name their source by that alias.
type TableSource interface {
	tableSource() // Marker method - seals interface to this package
	TableAlias() string
}

// Table is a base table.
//
//	"Orders" AS "o"
type Table struct {
	Name   string
	Schema string // empty for the default schema
	Alias  string
}

// DerivedTable is a nested query used as a table.
//
//	(SELECT ...) AS "t"
type DerivedTable struct {
	Select *Select
	Alias  string
}

// SetOp enumerates set operations.
type SetOp int

const (
	SetUnion SetOp = iota
	SetUnionAll
	SetIntersect
	SetExcept
)

var setOpNames = [...]string{"UNION", "UNION ALL", "INTERSECT", "EXCEPT"}

func (o SetOp) String() string { return setOpNames[o] }

// SetOperation combines two queries with the same projection shape.
//
//	(SELECT ... UNION SELECT ...) AS "u"
type SetOperation struct {
	Op    SetOp
	Left  *Select
	Right *Select
	Alias string
}

// TableFunction is a table-valued function call.
//
//	json_each("o"."Tags") AS "t"
type TableFunction struct {
	Name  string
	Args  []SqlExpr
	Alias string
}

// JoinKind enumerates join kinds. The apply kinds are correlated joins
// whose right side may reference tables to its left; not every dialect can
// express them.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinCross
	JoinCrossApply
	JoinOuterApply
)

var joinNames = [...]string{"INNER JOIN", "LEFT JOIN", "CROSS JOIN", "CROSS APPLY", "OUTER APPLY"}

func (k JoinKind) String() string { return joinNames[k] }

// IsApply reports whether k is a correlated apply join.
func (k JoinKind) IsApply() bool {
	return k == JoinCrossApply || k == JoinOuterApply
}

// Join wraps a table source joined to the sources before it. On is nil for
// cross and apply joins.
type Join struct {
	Kind  JoinKind
	Table TableSource
	On    SqlExpr
}

func (*Table) tableSource()         {}
func (*DerivedTable) tableSource()  {}
func (*SetOperation) tableSource()  {}
func (*TableFunction) tableSource() {}
func (*Join) tableSource()          {}

func (t *Table) TableAlias() string         { return t.Alias }
func (t *DerivedTable) TableAlias() string  { return t.Alias }
func (t *SetOperation) TableAlias() string  { return t.Alias }
func (t *TableFunction) TableAlias() string { return t.Alias }
func (t *Join) TableAlias() string          { return t.Table.TableAlias() }

// Unwrap returns the source a join wraps, or t itself.
func Unwrap(t TableSource) TableSource {
	if j, ok := t.(*Join); ok {
		return j.Table
	}
	return t
}
