package querytranslate

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/sqltranslate"
)

// Dialect is what query-shape translation needs from a database dialect.
type Dialect interface {
	Mappings() queryir.MappingSource
	Plugins() sqltranslate.Plugins
	// CheckOrdering returns a NOT_SUPPORTED error for kinds the database
	// cannot sort correctly.
	CheckOrdering(kind queryir.Kind) error
	// Aggregate returns a dialect aggregate for Sum, Average, Min or Max,
	// nil to use the standard one, or a NOT_SUPPORTED error.
	Aggregate(f *sqltranslate.Factory, name string, arg queryir.SqlExpr) (queryir.SqlExpr, error)
}

// Cardinality is how many rows a translated query is expected to return.
type Cardinality int

const (
	Many         Cardinality = iota // a sequence
	One                             // First, Single, ElementAt: exactly one row
	OneOrDefault                    // the OrDefault variants: zero or one row
	Scalar                          // a single aggregate or boolean value
)

var cardinalityNames = [...]string{"many", "one", "one-or-default", "scalar"}

func (c Cardinality) String() string { return cardinalityNames[c] }

// Result is a translated query.
type Result struct {
	Select      *queryir.Select
	Shape       *Shape
	Cardinality Cardinality
}

// Translator translates query expressions for one model and dialect. It
// holds no per-query state and is safe for concurrent use.
type Translator struct {
	model   schema.Model
	dialect Dialect
	scalars *sqltranslate.Translator
	logger  *slog.Logger
}

// New builds a translator. A nil logger uses slog.Default.
func New(model schema.Model, dialect Dialect, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		model:   model,
		dialect: dialect,
		scalars: sqltranslate.New(model, dialect.Mappings(), dialect.Plugins()),
		logger:  logger,
	}
}

// Translate converts a query expression to a SELECT tree. Type mappings
// the translation could not decide are left for typeinfer.
func (t *Translator) Translate(e query.Expr) (*Result, error) {
	c := &compilation{
		Translator: t,
		f:          t.scalars.Factory(),
		aliases:    make(map[string]bool),
		owners:     make(map[string]*source),
		navs:       make(map[string]*queryir.EntityProjection),
	}
	res, err := c.root(e, sqltranslate.NewScope(c))
	if err != nil {
		t.logger.Debug("query rejected", "query", query.Format(e), "error", err)
		return nil, err
	}
	t.logger.Debug("query translated",
		"query", query.Format(e),
		"cardinality", res.Cardinality,
		"tables", len(res.Select.Tables))
	return res, nil
}

// compilation is the state of one Translate call. It is the Host the
// scalar translator calls back into.
type compilation struct {
	*Translator
	f       *sqltranslate.Factory
	aliases map[string]bool
	// owners maps a table alias to the source whose FROM clause holds it,
	// so navigations know where to add their join.
	owners map[string]*source
	navs   map[string]*queryir.EntityProjection
}

var _ sqltranslate.Host = (*compilation)(nil)

func (c *compilation) root(e query.Expr, scope *sqltranslate.Scope) (*Result, error) {
	call, ok := e.(*query.Call)
	if !ok || !sqltranslate.IsQueryOperator(call.Method) || sqltranslate.IsSequenceOperator(call.Method) {
		src, err := c.query(e, scope)
		if err != nil {
			return nil, err
		}
		return c.result(src, Many)
	}

	if isElementOperator(call.Method) {
		src, err := c.query(call.Target, scope)
		if err != nil {
			return nil, err
		}
		if src, err = c.element(src, call, scope, true); err != nil {
			return nil, err
		}
		card := One
		if strings.HasSuffix(call.Method, "OrDefault") {
			card = OneOrDefault
		}
		return c.result(src, card)
	}

	v, err := c.terminal(call, scope)
	if err != nil {
		return nil, err
	}
	if sq, ok := v.(*queryir.ScalarSubquery); ok {
		return &Result{Select: sq.Subquery, Shape: &Shape{Column: 0}, Cardinality: Scalar}, nil
	}
	return &Result{
		Select:      &queryir.Select{Projections: []queryir.Projection{{Expr: v}}},
		Shape:       &Shape{Column: 0},
		Cardinality: Scalar,
	}, nil
}

func (c *compilation) result(src *source, card Cardinality) (*Result, error) {
	if src.sel == nil {
		return nil, sqltranslate.Untranslatable("", "a group can only be aggregated")
	}
	fl := newFlattener(false)
	shape, err := fl.node(src.elem, "")
	if err != nil {
		return nil, err
	}
	return &Result{Select: src.sel.WithProjections(fl.projs...), Shape: shape, Cardinality: card}, nil
}

// Subquery translates a query-valued expression in scalar position. Only
// terminal operators are accepted: a nested sequence would need a
// collection-valued column.
func (c *compilation) Subquery(e query.Expr, scope *sqltranslate.Scope) (queryir.Node, error) {
	call, ok := e.(*query.Call)
	if !ok || !sqltranslate.IsQueryOperator(call.Method) || sqltranslate.IsSequenceOperator(call.Method) {
		return nil, sqltranslate.Untranslatable(query.Format(e), "collection-valued projections are not supported")
	}
	return c.terminal(call, scope)
}

// Navigate joins the target of a reference navigation to the Select that
// holds owner's table. Each owner and navigation is joined once.
func (c *compilation) Navigate(owner *queryir.EntityProjection, nav *schema.Navigation) (queryir.Node, error) {
	key := owner.Table + "." + nav.Name
	if p, ok := c.navs[key]; ok {
		return p, nil
	}
	src, ok := c.owners[owner.Table]
	if !ok || src.sel == nil {
		return nil, sqltranslate.Untranslatable("", "navigation %s cannot be joined here", nav.Name)
	}
	target, ok := c.model.Entity(nav.Target)
	if !ok {
		return nil, sqltranslate.InvalidQuery("", "navigation %s targets unknown entity %q", nav.Name, nav.Target)
	}

	alias := c.alias(target.Name)
	nullable := owner.Nullable || !nav.Required
	proj := c.f.Entity(target, alias, nullable)
	on, err := c.keyJoin(owner, proj, nav.ForeignKey, principalKey(nav, target))
	if err != nil {
		return nil, err
	}

	kind := queryir.JoinLeft
	if !nullable {
		kind = queryir.JoinInner
	}
	src.sel = src.sel.AddTable(&queryir.Join{
		Kind:  kind,
		Table: &queryir.Table{Name: target.Table, Schema: target.Schema, Alias: alias},
		On:    on,
	})
	c.owners[alias] = src
	c.navs[key] = proj
	return proj, nil
}

// keyJoin equates the dependent's foreign key columns with the principal's
// key columns.
func (c *compilation) keyJoin(dependent, principal *queryir.EntityProjection, fk, pk []string) (queryir.SqlExpr, error) {
	if len(fk) != len(pk) {
		return nil, sqltranslate.InvalidQuery("", "foreign key of %s has %d columns, principal key of %s has %d",
			dependent.Entity, len(fk), principal.Entity, len(pk))
	}
	var on queryir.SqlExpr
	for i := range fk {
		d, ok := dependent.Column(fk[i])
		if !ok {
			return nil, sqltranslate.InvalidQuery("", "%s has no property %q", dependent.Entity, fk[i])
		}
		p, ok := principal.Column(pk[i])
		if !ok {
			return nil, sqltranslate.InvalidQuery("", "%s has no property %q", principal.Entity, pk[i])
		}
		on = c.f.And(on, c.f.Equal(d, p))
	}
	return on, nil
}

func principalKey(nav *schema.Navigation, principal *schema.Entity) []string {
	if len(nav.PrincipalKey) > 0 {
		return nav.PrincipalKey
	}
	return principal.Key
}

// alias returns a table alias unique within the query, starting from the
// lowercased first letter of name.
func (c *compilation) alias(name string) string {
	base := "t"
	if name != "" {
		base = strings.ToLower(name[:1])
	}
	if !c.aliases[base] {
		c.aliases[base] = true
		return base
	}
	for i := 0; ; i++ {
		a := fmt.Sprintf("%s%d", base, i)
		if !c.aliases[a] {
			c.aliases[a] = true
			return a
		}
	}
}

// annotate attaches the source expression to a translation error raised
// without one.
func annotate(err error, e query.Expr) error {
	var te *sqltranslate.TranslationError
	if errors.As(err, &te) && te.Expr == "" {
		cp := *te
		cp.Expr = query.Format(e)
		return &cp
	}
	return err
}
