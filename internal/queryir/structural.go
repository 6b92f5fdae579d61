package queryir

// Structural is a non-scalar translation result: something that occupies
// several columns, such as a whole entity or an anonymous object.
//
// This is a sealed interface.
type Structural interface {
	Node
	structural() // Marker method - seals interface to this package
}

// PropertyColumn binds one entity property to the column holding it.
type PropertyColumn struct {
	Property string
	Column   *ColumnRef
}

// EntityProjection is an entity read from a table source. Nullable is set
// when the entity comes from the optional side of a left join.
type EntityProjection struct {
	Entity   string
	Table    string // alias of the table source
	Columns  []PropertyColumn
	Nullable bool
}

// Column returns the column of the named property.
func (p *EntityProjection) Column(property string) (*ColumnRef, bool) {
	for _, c := range p.Columns {
		if c.Property == property {
			return c.Column, true
		}
	}
	return nil, false
}

// Field is one member of an ObjectProjection.
type Field struct {
	Name  string
	Value Node
}

// ObjectProjection is an anonymous object whose fields are scalars or
// further structural projections.
type ObjectProjection struct {
	Fields []Field
}

// Field returns the named field.
func (p *ObjectProjection) Field(name string) (Node, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (*EntityProjection) node()       {}
func (*ObjectProjection) node()       {}
func (*EntityProjection) structural() {}
func (*ObjectProjection) structural() {}

// CollectionNavigation is a collection navigation used inside an
// expression, such as c.Orders in c.Orders.Count(). It has no SQL form of
// its own; the query-shape translator expands it into a correlated
// subquery over the target entity.
type CollectionNavigation struct {
	Owner      *EntityProjection
	Navigation string
	Target     string
}

// GroupingProjection is the element of a grouped query: its Key, and the
// shape of the rows in each group, which aggregates range over.
type GroupingProjection struct {
	Key     Node
	Element Node
}

func (*CollectionNavigation) node()       {}
func (*GroupingProjection) node()         {}
func (*CollectionNavigation) structural() {}
func (*GroupingProjection) structural()   {}
