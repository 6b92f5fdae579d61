package sqlite

import (
	"github.com/roach88/relq/internal/nullsem"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/sqltranslate"
)

// Dialect bundles everything the pipeline needs to target SQLite: the
// type-mapping catalog, the translator plugin chains, the translation
// restrictions, the null-semantics extension and the SQL rendering rules.
// It is built once and shared read-only by all compilations.
type Dialect struct {
	catalog *Catalog
	plugins sqltranslate.Plugins
}

// New returns the SQLite dialect.
func New() *Dialect {
	return &Dialect{
		catalog: NewCatalog(),
		plugins: sqltranslate.Plugins{
			Binary:  []sqltranslate.BinaryPlugin{translateArithmetic},
			Unary:   []sqltranslate.UnaryPlugin{translateNegate},
			Convert: []sqltranslate.ConvertPlugin{translateConvert},
			Calls: []sqltranslate.CallPlugin{
				translateString,
				translateMath,
				translateDateTime,
				translateBytes,
				translatePattern,
				translateJSON,
				translateToString,
			},
		},
	}
}

// Name identifies the dialect in logs and metrics.
func (d *Dialect) Name() string { return "sqlite" }

// Mappings returns the type-mapping catalog.
func (d *Dialect) Mappings() queryir.MappingSource { return d.catalog }

// Plugins returns the translator chains.
func (d *Dialect) Plugins() sqltranslate.Plugins { return d.plugins }

// Capabilities reports that SQLite has no correlated apply joins.
func (d *Dialect) Capabilities() queryir.Capabilities {
	return queryir.Capabilities{SupportsApply: false}
}

// NullExtension handles GLOB and REGEXP in the null-semantics pass.
func (d *Dialect) NullExtension() nullsem.Extension {
	return nullsem.ExtensionFunc(visitPattern)
}

// Generator returns the SQL rendering rules.
func (d *Dialect) Generator() querysql.Dialect { return generator{} }

// visitPattern treats GLOB and REGEXP like LIKE: NULL when either operand
// is NULL, which exact positions guard against.
func visitPattern(v *nullsem.Visitor, e queryir.CustomExpr, allowOptimized bool) (queryir.SqlExpr, bool, bool) {
	switch e.(type) {
	case *Glob, *Regexp:
	default:
		return nil, false, false
	}
	children := e.Children()
	m, mn := v.Visit(children[0], false)
	p, pn := v.Visit(children[1], false)
	if !v.RelationalNulls() && (queryir.IsNullConstant(m) || queryir.IsNullConstant(p)) {
		return v.Bool(false), false, true
	}
	out, nullable := v.Guard(e.WithChildren([]queryir.SqlExpr{m, p}), allowOptimized,
		nullsem.Operand{Expr: m, Nullable: mn}, nullsem.Operand{Expr: p, Nullable: pn})
	return out, nullable, true
}
