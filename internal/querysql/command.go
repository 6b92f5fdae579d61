package querysql

import (
	"database/sql"
	"fmt"

	"github.com/roach88/relq/internal/queryir"
)

// Parameter is one placeholder in a Command, in first-appearance order.
type Parameter struct {
	Name    string
	Kind    queryir.Kind
	Mapping *queryir.TypeMapping
}

// Command is rendered SQL plus its parameter list.
//
// Cacheable reports whether the command may be reused for other values of
// its parameters. It is false when compilation depended on a parameter
// value being NULL.
type Command struct {
	Text       string
	Parameters []Parameter
	Cacheable  bool
}

// BoundParameter is a parameter with its provider value: what the driver
// receives after the mapping's converter ran.
type BoundParameter struct {
	Name    string
	Value   any
	Mapping *queryir.TypeMapping
}

// Bind converts parameter values to provider values, in command order.
// Every parameter must have a value; extra values are ignored.
func (c *Command) Bind(values map[string]any) ([]BoundParameter, error) {
	out := make([]BoundParameter, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		v, ok := values[p.Name]
		if !ok {
			return nil, fmt.Errorf("no value for parameter %q", p.Name)
		}
		pv := v
		if p.Mapping != nil {
			var err error
			if pv, err = p.Mapping.ProviderValue(v); err != nil {
				return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
			}
		}
		out = append(out, BoundParameter{Name: p.Name, Value: pv, Mapping: p.Mapping})
	}
	return out, nil
}

// Args binds values and returns them as named database/sql arguments.
func (c *Command) Args(values map[string]any) ([]any, error) {
	bound, err := c.Bind(values)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(bound))
	for i, b := range bound {
		args[i] = sql.Named(b.Name, b.Value)
	}
	return args, nil
}
