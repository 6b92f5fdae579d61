package queryir

import "fmt"

// TypeMapping describes how values of one logical kind are stored by a
// dialect: the store type name, how a value renders as a SQL literal, and
// an optional converter to the representation the driver receives.
//
// Mappings are built once per dialect and shared by pointer. Two nodes
// with the same *TypeMapping render identically; passes substitute a
// mapping by replacing the pointer, never by editing the struct.
type TypeMapping struct {
	Kind      Kind
	StoreType string // e.g. "INTEGER", "TEXT", "REAL", "BLOB"

	// Converter maps a model value to its provider value. nil means the
	// normalized value is passed to the driver unchanged.
	Converter *ValueConverter

	// Literal renders a non-nil normalized value as SQL literal text.
	Literal func(v any) (string, error)

	// Element is the mapping of each element when Kind is KindArray. It is
	// nil until known; type inference fills it in.
	Element *TypeMapping

	// FromJSON wraps an expression reading a value of this mapping out of a
	// JSON document, converting it to the stored form. nil when the JSON
	// form is already the stored form.
	FromJSON func(value SqlExpr) SqlExpr
}

// ValueConverter converts between model values and provider values, for
// example a uuid.UUID to its upper-case text form.
type ValueConverter struct {
	Name       string
	ToProvider func(v any) (any, error)
}

// GenerateLiteral renders v as SQL literal text. nil renders as NULL.
func (m *TypeMapping) GenerateLiteral(v any) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	norm, err := Normalize(v, m.Kind)
	if err != nil {
		return "", err
	}
	if m.Literal == nil {
		return "", fmt.Errorf("type mapping %s has no literal form", m)
	}
	return m.Literal(norm)
}

// ProviderValue converts v to what the driver should receive.
func (m *TypeMapping) ProviderValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	norm, err := Normalize(v, m.Kind)
	if err != nil {
		return nil, err
	}
	if m.Converter == nil {
		return norm, nil
	}
	return m.Converter.ToProvider(norm)
}

func (m *TypeMapping) String() string {
	if m == nil {
		return "<nil>"
	}
	if m.Element != nil {
		return fmt.Sprintf("%s(%s)[%s]", m.StoreType, m.Kind, m.Element)
	}
	return fmt.Sprintf("%s(%s)", m.StoreType, m.Kind)
}

// MappingSource is a dialect's type-mapping catalog. It is built once and
// read concurrently.
type MappingSource interface {
	// Default returns the mapping used for kind when nothing more specific
	// is known.
	Default(kind Kind) *TypeMapping
	// Collection returns the JSON array mapping whose elements use elem.
	// Repeated calls with the same elem return the same pointer.
	Collection(elem *TypeMapping) *TypeMapping
}
