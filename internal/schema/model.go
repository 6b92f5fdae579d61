// Package schema is the entity metadata consumed by query translation:
// which table backs an entity, which column backs a property, how values
// of each property are typed and whether they can be NULL, and how
// entities relate.
//
// Translation only depends on the Model interface. StaticModel is the
// in-memory implementation; LoadCUE and LoadDir build one from CUE.
package schema

import (
	"fmt"

	"github.com/roach88/relq/internal/queryir"
)

//go:generate mockgen -source=model.go -destination=mock_schema/model.go Model

// Model is the narrow view of the entity model that translation needs.
type Model interface {
	// Entity looks up an entity by name.
	Entity(name string) (*Entity, bool)
	// Entities lists every entity in declaration order.
	Entities() []*Entity
}

// Entity maps a named entity type to a table.
type Entity struct {
	Name        string
	Table       string
	Schema      string
	Key         []string // property names of the primary key
	Properties  []*Property
	Navigations []*Navigation
}

// Property maps one entity property to a column.
type Property struct {
	Name     string
	Column   string
	Kind     queryir.Kind
	Nullable bool

	// Element is the element kind of a primitive collection (Kind ==
	// KindArray) stored as a JSON array.
	Element         queryir.Kind
	ElementNullable bool

	// Fields describes an owned structure stored as a JSON object (Kind ==
	// KindObject). Field columns are JSON property names.
	Fields []*Property
}

// Navigation relates an entity to another through a foreign key.
//
// ForeignKey always names properties of the dependent entity: the declaring
// entity for a reference navigation, the target for a collection.
// PrincipalKey defaults to the principal's primary key.
type Navigation struct {
	Name         string
	Target       string
	ForeignKey   []string
	PrincipalKey []string
	Collection   bool
	// Required reference navigations are translated to inner joins;
	// optional ones to left joins.
	Required bool
}

// Property looks up a property by name.
func (e *Entity) Property(name string) (*Property, bool) {
	for _, p := range e.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Navigation looks up a navigation by name.
func (e *Entity) Navigation(name string) (*Navigation, bool) {
	for _, n := range e.Navigations {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// MemberNames lists property and navigation names, for diagnostics.
func (e *Entity) MemberNames() []string {
	names := make([]string, 0, len(e.Properties)+len(e.Navigations))
	for _, p := range e.Properties {
		names = append(names, p.Name)
	}
	for _, n := range e.Navigations {
		names = append(names, n.Name)
	}
	return names
}

// Field looks up a JSON field of an owned structure.
func (p *Property) Field(name string) (*Property, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// StaticModel is an immutable Model built once and shared.
type StaticModel struct {
	entities []*Entity
	byName   map[string]*Entity
}

// NewModel builds a model and checks its references: every key, foreign
// key and navigation target must exist.
func NewModel(entities ...*Entity) (*StaticModel, error) {
	m := &StaticModel{entities: entities, byName: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		if _, dup := m.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %q", e.Name)
		}
		if e.Table == "" {
			e.Table = e.Name
		}
		for _, p := range e.Properties {
			if p.Column == "" {
				p.Column = p.Name
			}
			if p.Kind == queryir.KindUnknown {
				return nil, fmt.Errorf("%s.%s: kind is required", e.Name, p.Name)
			}
			if p.Kind == queryir.KindArray && p.Element == queryir.KindUnknown {
				return nil, fmt.Errorf("%s.%s: collection property needs an element kind", e.Name, p.Name)
			}
		}
		m.byName[e.Name] = e
	}

	for _, e := range entities {
		if len(e.Key) == 0 {
			return nil, fmt.Errorf("entity %q has no key", e.Name)
		}
		if err := requireProperties(e, e.Key); err != nil {
			return nil, fmt.Errorf("key of %s: %w", e.Name, err)
		}
		for _, n := range e.Navigations {
			if err := m.checkNavigation(e, n); err != nil {
				return nil, fmt.Errorf("navigation %s.%s: %w", e.Name, n.Name, err)
			}
		}
	}
	return m, nil
}

func (m *StaticModel) checkNavigation(e *Entity, n *Navigation) error {
	target, ok := m.byName[n.Target]
	if !ok {
		return fmt.Errorf("unknown target entity %q", n.Target)
	}
	principal, dependent := target, e
	if n.Collection {
		principal, dependent = e, target
	}
	if len(n.PrincipalKey) == 0 {
		n.PrincipalKey = principal.Key
	}
	if len(n.ForeignKey) != len(n.PrincipalKey) {
		return fmt.Errorf("foreign key has %d properties, principal key has %d",
			len(n.ForeignKey), len(n.PrincipalKey))
	}
	if err := requireProperties(dependent, n.ForeignKey); err != nil {
		return err
	}
	return requireProperties(principal, n.PrincipalKey)
}

func requireProperties(e *Entity, names []string) error {
	for _, name := range names {
		if _, ok := e.Property(name); !ok {
			return fmt.Errorf("%s has no property %q", e.Name, name)
		}
	}
	return nil
}

func (m *StaticModel) Entity(name string) (*Entity, bool) {
	e, ok := m.byName[name]
	return e, ok
}

func (m *StaticModel) Entities() []*Entity {
	return m.entities
}
