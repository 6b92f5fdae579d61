package sqltranslate

import (
	"github.com/roach88/relq/internal/queryir"
)

// Shape tags the kind of source construct a plugin is asked about.
type Shape int

const (
	ShapeMethod Shape = iota // receiver.Name(args)
	ShapeMember              // receiver.Name
	ShapeStatic              // Type.Name(args)
)

func (s Shape) String() string {
	return [...]string{"method", "member", "static"}[s]
}

// Signature identifies a method, member or static call by shape, receiver
// kind (methods and members), declaring type (statics), name and argument
// kinds. Plugins match on it without inspecting node types.
type Signature struct {
	Shape    Shape
	Receiver queryir.Kind
	Type     string
	Name     string
	Args     []queryir.Kind
}

// Is reports whether the signature has the given name and argument kinds.
// KindUnknown in kinds matches any argument kind.
func (s Signature) Is(name string, kinds ...queryir.Kind) bool {
	if s.Name != name || len(s.Args) != len(kinds) {
		return false
	}
	for i, k := range kinds {
		if k != queryir.KindUnknown && s.Args[i] != k {
			return false
		}
	}
	return true
}

// CallSite is what a call plugin receives: the signature plus the
// translated receiver (nil for statics) and arguments.
type CallSite struct {
	Signature
	Receiver queryir.SqlExpr
	Args     []queryir.SqlExpr
}

// CallPlugin translates method, member and static calls. It returns a nil
// expression and nil error for "not mine", and an error only when it
// recognizes the call but cannot express it.
type CallPlugin func(f *Factory, c *CallSite) (queryir.SqlExpr, error)

// BinaryPlugin overrides binary operators for kinds the dialect emulates.
// It follows the same nil-means-not-mine convention.
type BinaryPlugin func(f *Factory, op queryir.BinaryOp, left, right queryir.SqlExpr) (queryir.SqlExpr, error)

// UnaryPlugin overrides unary operators (negation of an emulated kind).
type UnaryPlugin func(f *Factory, op queryir.UnaryOp, operand queryir.SqlExpr) (queryir.SqlExpr, error)

// ConvertPlugin overrides explicit conversions between kinds.
type ConvertPlugin func(f *Factory, operand queryir.SqlExpr, to queryir.Kind) (queryir.SqlExpr, error)

// Plugins is a dialect's ordered translator chain. The first plugin to
// return a non-nil expression wins. A Plugins value is built once when the
// dialect is set up and never modified.
type Plugins struct {
	Binary  []BinaryPlugin
	Unary   []UnaryPlugin
	Convert []ConvertPlugin
	Calls   []CallPlugin
}

// Concat returns the chains of p followed by those of other.
func (p Plugins) Concat(other Plugins) Plugins {
	return Plugins{
		Binary:  append(append([]BinaryPlugin(nil), p.Binary...), other.Binary...),
		Unary:   append(append([]UnaryPlugin(nil), p.Unary...), other.Unary...),
		Convert: append(append([]ConvertPlugin(nil), p.Convert...), other.Convert...),
		Calls:   append(append([]CallPlugin(nil), p.Calls...), other.Calls...),
	}
}
