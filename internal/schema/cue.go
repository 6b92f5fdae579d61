package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/relq/internal/queryir"
)

// CompileError is a model definition error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadCUE builds a model from a CUE value holding an "entity" struct:
//
//	entity: Order: {
//		table: "Orders"
//		key: ["Id"]
//		properties: {
//			Id:    {kind: "int64"}
//			Name:  {kind: "string", nullable: true, column: "name"}
//			Tags:  {kind: "array", element: "string"}
//			Ship:  {kind: "object", fields: {City: {kind: "string"}}}
//		}
//		navigations: {
//			Customer: {target: "Customer", foreignKey: ["CustomerId"], required: true}
//			Items:    {target: "Item", foreignKey: ["OrderId"], collection: true}
//		}
//	}
//
// Entities, properties and navigations keep their declaration order.
func LoadCUE(v cue.Value) (*StaticModel, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entities defined", Pos: v.Pos()}
	}

	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []*Entity
	for iter.Next() {
		e, err := parseEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	m, err := NewModel(entities...)
	if err != nil {
		return nil, &CompileError{Field: "entity", Message: err.Error(), Pos: entitiesVal.Pos()}
	}
	return m, nil
}

// LoadDir loads every CUE file of the package in dir and builds the model.
func LoadDir(dir string) (*StaticModel, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("model directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := cuecontext.New().BuildInstance(instances[0])
	return LoadCUE(value)
}

// LoadPath loads a model from a CUE file, or from a directory with
// LoadDir.
func LoadPath(path string) (*StaticModel, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	return LoadCUE(cuecontext.New().CompileBytes(data, cue.Filename(path)))
}

// LoadString builds a model from CUE source text.
func LoadString(src string) (*StaticModel, error) {
	return LoadCUE(cuecontext.New().CompileString(src))
}

func parseEntity(name string, v cue.Value) (*Entity, error) {
	e := &Entity{Name: name}

	var err error
	if e.Table, err = optionalString(v, "table"); err != nil {
		return nil, err
	}
	if e.Schema, err = optionalString(v, "schema"); err != nil {
		return nil, err
	}
	if e.Key, err = stringList(v, "key"); err != nil {
		return nil, err
	}
	if len(e.Key) == 0 {
		return nil, &CompileError{Field: "key", Message: fmt.Sprintf("entity %s needs a key", name), Pos: v.Pos()}
	}

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nil, &CompileError{Field: "properties", Message: fmt.Sprintf("entity %s has no properties", name), Pos: v.Pos()}
	}
	if e.Properties, err = parseProperties(propsVal); err != nil {
		return nil, err
	}

	navsVal := v.LookupPath(cue.ParsePath("navigations"))
	if navsVal.Exists() {
		iter, err := navsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			n, err := parseNavigation(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			e.Navigations = append(e.Navigations, n)
		}
	}
	return e, nil
}

func parseProperties(v cue.Value) ([]*Property, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var props []*Property
	for iter.Next() {
		p, err := parseProperty(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}

func parseProperty(name string, v cue.Value) (*Property, error) {
	p := &Property{Name: name}

	kindName, err := optionalString(v, "kind")
	if err != nil {
		return nil, err
	}
	if kindName == "" {
		return nil, &CompileError{Field: "kind", Message: fmt.Sprintf("property %s needs a kind", name), Pos: v.Pos()}
	}
	if p.Kind, err = queryir.ParseKind(kindName); err != nil {
		return nil, &CompileError{Field: "kind", Message: err.Error(), Pos: v.Pos()}
	}

	if p.Column, err = optionalString(v, "column"); err != nil {
		return nil, err
	}

	if nv := v.LookupPath(cue.ParsePath("nullable")); nv.Exists() {
		if p.Nullable, err = nv.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	switch p.Kind {
	case queryir.KindArray:
		elem, err := optionalString(v, "element")
		if err != nil {
			return nil, err
		}
		if p.Element, err = queryir.ParseKind(elem); err != nil {
			return nil, &CompileError{Field: "element", Message: err.Error(), Pos: v.Pos()}
		}
		if nv := v.LookupPath(cue.ParsePath("elementNullable")); nv.Exists() {
			if p.ElementNullable, err = nv.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
	case queryir.KindObject:
		fieldsVal := v.LookupPath(cue.ParsePath("fields"))
		if !fieldsVal.Exists() {
			return nil, &CompileError{Field: "fields", Message: fmt.Sprintf("object property %s needs fields", name), Pos: v.Pos()}
		}
		if p.Fields, err = parseProperties(fieldsVal); err != nil {
			return nil, err
		}
		for _, f := range p.Fields {
			if f.Column == "" {
				f.Column = f.Name
			}
		}
	}
	return p, nil
}

func parseNavigation(name string, v cue.Value) (*Navigation, error) {
	n := &Navigation{Name: name}

	var err error
	if n.Target, err = optionalString(v, "target"); err != nil {
		return nil, err
	}
	if n.Target == "" {
		return nil, &CompileError{Field: "target", Message: fmt.Sprintf("navigation %s needs a target", name), Pos: v.Pos()}
	}
	if n.ForeignKey, err = stringList(v, "foreignKey"); err != nil {
		return nil, err
	}
	if n.PrincipalKey, err = stringList(v, "principalKey"); err != nil {
		return nil, err
	}
	for label, dst := range map[string]*bool{"collection": &n.Collection, "required": &n.Required} {
		bv := v.LookupPath(cue.ParsePath(label))
		if !bv.Exists() {
			continue
		}
		if *dst, err = bv.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return n, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value, path string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(path))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
