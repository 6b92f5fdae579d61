package compiler

import (
	"fmt"

	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/querytranslate"
)

// Stage is the query tree after one pipeline pass.
type Stage struct {
	Name   string
	Select *queryir.Select
	// SQL is the tree rendered, when the pass leaves it renderable.
	SQL string
}

// Explanation records every pass of one compilation.
type Explanation struct {
	Query       string
	Key         string
	Cardinality querytranslate.Cardinality
	Shape       *querytranslate.Shape
	Stages      []Stage
	Command     *querysql.Command
}

// Explain compiles e without touching the caches and keeps the tree after
// each pass. A validation failure is returned with the explanation built
// so far.
func (c *Compiler) Explain(e query.Expr, params map[string]any) (*Explanation, error) {
	key, err := query.ShapeKey(e)
	if err != nil {
		return nil, fmt.Errorf("compiler: shape key: %w", err)
	}
	ex := &Explanation{Query: query.Format(e), Key: key}

	res, err := c.translator.Translate(e)
	if err != nil {
		return ex, err
	}
	ex.Cardinality, ex.Shape = res.Cardinality, res.Shape
	ex.Stages = append(ex.Stages, Stage{Name: "translate", Select: res.Select})

	sel, _ := c.inferrer.Infer(res.Select)
	ex.Stages = append(ex.Stages, c.stage("infer", sel))

	sel, cacheable, err := c.nulls.Process(sel, params)
	if err != nil {
		return ex, fmt.Errorf("compiler: null semantics: %w", err)
	}
	sel, _ = c.inferrer.Infer(sel)
	ex.Stages = append(ex.Stages, c.stage("nulls", sel))

	if err := queryir.Validate(sel, c.dialect.Capabilities()); err != nil {
		return ex, err
	}
	cmd, err := c.generator.Generate(sel)
	if err != nil {
		return ex, fmt.Errorf("compiler: generate: %w", err)
	}
	cmd.Cacheable = cacheable
	ex.Command = cmd
	return ex, nil
}

func (c *Compiler) stage(name string, sel *queryir.Select) Stage {
	s := Stage{Name: name, Select: sel}
	if cmd, err := c.generator.Generate(sel); err == nil {
		s.SQL = cmd.Text
	}
	return s
}
