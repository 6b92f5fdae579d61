package sqltranslate

import (
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
)

// Translator converts source scalar expressions into IR nodes.
//
// Dispatch order for each node:
//  1. dialect overrides (binary, unary and conversion plugins)
//  2. the baseline rules for operators, conditionals, coalesce and member
//     access on entities, owned JSON objects and groupings
//  3. the dialect call-plugin chain for methods, members and statics
//
// Query-valued sub-expressions are handed to the scope's Host. A Translator
// holds only immutable configuration and is safe for concurrent use.
type Translator struct {
	model   schema.Model
	factory *Factory
	plugins Plugins
}

// New builds a translator over a model, a dialect mapping catalog and the
// dialect's plugin chain.
func New(model schema.Model, mappings queryir.MappingSource, plugins Plugins) *Translator {
	return &Translator{
		model:   model,
		factory: NewFactory(mappings),
		plugins: plugins,
	}
}

// Factory returns the node factory shared with plugins.
func (t *Translator) Factory() *Factory {
	return t.factory
}

// Model returns the entity model.
func (t *Translator) Model() schema.Model {
	return t.model
}

// queryOperators are the method names that, applied to a query-valued
// receiver, make the whole call query-valued.
var queryOperators = map[string]bool{
	"Where": true, "Select": true, "OrderBy": true, "OrderByDescending": true,
	"ThenBy": true, "ThenByDescending": true, "Skip": true, "Take": true,
	"Distinct": true, "Count": true, "LongCount": true, "Sum": true,
	"Average": true, "Min": true, "Max": true, "Any": true, "All": true,
	"Contains": true, "First": true, "FirstOrDefault": true, "Single": true,
	"SingleOrDefault": true, "ElementAt": true, "ElementAtOrDefault": true,
	"Union": true, "Concat": true, "Intersect": true, "Except": true,
	"GroupBy": true, "Join": true, "LeftJoin": true, "SelectMany": true,
}

// sequenceOperators return a sequence rather than a single value.
var sequenceOperators = map[string]bool{
	"Where": true, "Select": true, "OrderBy": true, "OrderByDescending": true,
	"ThenBy": true, "ThenByDescending": true, "Skip": true, "Take": true,
	"Distinct": true, "Union": true, "Concat": true, "Intersect": true,
	"Except": true, "GroupBy": true, "Join": true, "LeftJoin": true,
	"SelectMany": true,
}

// IsQueryOperator reports whether name is a query operator.
func IsQueryOperator(name string) bool {
	return queryOperators[name]
}

// IsSequenceOperator reports whether the operator name returns a sequence.
func IsSequenceOperator(name string) bool {
	return sequenceOperators[name]
}

// IsSequence reports whether n is a sequence in IR form: a collection
// navigation, a group, or a JSON array.
func IsSequence(n queryir.Node) bool {
	switch n := n.(type) {
	case *queryir.CollectionNavigation, *queryir.GroupingProjection:
		return true
	case queryir.SqlExpr:
		return n.Type() == queryir.KindArray
	}
	return false
}

// Translate converts e to an IR node: a scalar, or a structural projection
// for entities, anonymous objects, navigations and groups.
func (t *Translator) Translate(e query.Expr, scope *Scope) (queryir.Node, error) {
	switch e := e.(type) {
	case *query.Const:
		return t.constant(e)
	case *query.Param:
		return &queryir.Parameter{Name: e.Name, Kind: e.Kind, ElementKind: e.Elem}, nil
	case *query.Ref:
		n, ok := scope.Lookup(e.Name)
		if !ok {
			return nil, InvalidQuery(e.Name, "parameter %q is not in scope", e.Name)
		}
		return n, nil
	case *query.Member:
		return t.member(e, scope)
	case *query.Call:
		return t.call(e, scope)
	case *query.Static:
		return t.static(e, scope)
	case *query.Binary:
		return t.binary(e, scope)
	case *query.Unary:
		return t.unary(e, scope)
	case *query.Cond:
		return t.cond(e, scope)
	case *query.Convert:
		return t.convert(e, scope)
	case *query.Index:
		return t.index(e, scope)
	case *query.New:
		return t.object(e, scope)
	case *query.Entity:
		return t.subquery(e, scope)
	case *query.Lambda:
		return nil, InvalidQuery(query.Format(e), "a lambda cannot be used as a value")
	}
	return nil, Untranslatable(query.Format(e), "unknown expression %T", e)
}

// TranslateScalar translates e and requires a scalar result.
func (t *Translator) TranslateScalar(e query.Expr, scope *Scope) (queryir.SqlExpr, error) {
	n, err := t.Translate(e, scope)
	if err != nil {
		return nil, err
	}
	s, ok := n.(queryir.SqlExpr)
	if !ok {
		return nil, Untranslatable(query.Format(e), "expected a single value, got %s", describeNode(n))
	}
	return s, nil
}

// Lambda translates the body of l with its parameters bound to args.
func (t *Translator) Lambda(l *query.Lambda, scope *Scope, args ...queryir.Node) (queryir.Node, error) {
	if len(l.Params) != len(args) {
		return nil, InvalidQuery(query.Format(l), "lambda takes %d parameters, %d supplied", len(l.Params), len(args))
	}
	for i, p := range l.Params {
		scope = scope.Bind(p, args[i])
	}
	return t.Translate(l.Body, scope)
}

// ScalarLambda is Lambda with a scalar result.
func (t *Translator) ScalarLambda(l *query.Lambda, scope *Scope, args ...queryir.Node) (queryir.SqlExpr, error) {
	n, err := t.Lambda(l, scope, args...)
	if err != nil {
		return nil, err
	}
	s, ok := n.(queryir.SqlExpr)
	if !ok {
		return nil, Untranslatable(query.Format(l), "expected a single value, got %s", describeNode(n))
	}
	return s, nil
}

func (t *Translator) constant(c *query.Const) (queryir.Node, error) {
	kind := c.ConstKind()
	if c.Value == nil {
		return &queryir.Constant{Kind: kind}, nil
	}
	v, err := queryir.Normalize(c.Value, kind)
	if err != nil {
		return nil, InvalidQuery(query.Format(c), "%v", err)
	}
	out := &queryir.Constant{Value: v, Kind: kind}
	if items, ok := v.([]any); ok {
		for _, it := range items {
			if it != nil {
				out.ElementKind = queryir.KindOf(it)
				break
			}
		}
	}
	return out, nil
}

func (t *Translator) subquery(e query.Expr, scope *Scope) (queryir.Node, error) {
	host := scope.Host()
	if host == nil {
		return nil, Untranslatable(query.Format(e), "subqueries are not available in this position")
	}
	n, err := host.Subquery(e, scope)
	if err != nil {
		return nil, withExpr(err, query.Format(e))
	}
	return n, nil
}

// isOperatorChain reports whether e applies a sequence operator to some
// receiver, such as c.Orders.Where(...). Such chains are handed to the host
// whole.
func isOperatorChain(e query.Expr) bool {
	c, ok := e.(*query.Call)
	return ok && sequenceOperators[c.Method]
}

// isQueryValued reports whether e is a query without translating it.
func isQueryValued(e query.Expr) bool {
	switch e := e.(type) {
	case *query.Entity:
		return true
	case *query.Call:
		return sequenceOperators[e.Method] && isQueryValued(e.Target)
	}
	return false
}

func (t *Translator) member(e *query.Member, scope *Scope) (queryir.Node, error) {
	if (e.Name == "Count" || e.Name == "Length") && isOperatorChain(e.Target) {
		return t.subquery(&query.Call{Target: e.Target, Method: "Count"}, scope)
	}
	target, err := t.Translate(e.Target, scope)
	if err != nil {
		return nil, err
	}
	switch tgt := target.(type) {
	case *queryir.EntityProjection:
		return t.entityMember(tgt, e, scope)
	case *queryir.ObjectProjection:
		if f, ok := tgt.Field(e.Name); ok {
			return f, nil
		}
		names := make([]string, len(tgt.Fields))
		for i, f := range tgt.Fields {
			names[i] = f.Name
		}
		return nil, withExpr(UnknownMember("object", e.Name, names), query.Format(e))
	case *queryir.GroupingProjection:
		if e.Name == "Key" {
			return tgt.Key, nil
		}
		if e.Name == "Count" {
			return t.subquery(&query.Call{Target: e.Target, Method: "Count"}, scope)
		}
		return nil, withExpr(UnknownMember("group", e.Name, []string{"Key"}), query.Format(e))
	case *queryir.CollectionNavigation:
		if e.Name == "Count" || e.Name == "Length" {
			return t.subquery(&query.Call{Target: e.Target, Method: "Count"}, scope)
		}
		return nil, Untranslatable(query.Format(e), "collection %s has no member %q", tgt.Navigation, e.Name)
	case queryir.SqlExpr:
		switch e.Name {
		case "HasValue":
			return t.factory.IsNotNull(tgt), nil
		case "Value":
			return tgt, nil
		}
		return t.plugin(Signature{Shape: ShapeMember, Receiver: tgt.Type(), Name: e.Name}, tgt, nil, e)
	}
	return nil, Untranslatable(query.Format(e), "member access on %s", describeNode(target))
}

func (t *Translator) entityMember(p *queryir.EntityProjection, e *query.Member, scope *Scope) (queryir.Node, error) {
	ent, ok := t.model.Entity(p.Entity)
	if !ok {
		return nil, InvalidQuery(query.Format(e), "entity %q is not in the model", p.Entity)
	}
	if prop, ok := ent.Property(e.Name); ok {
		col, ok := p.Column(prop.Name)
		if !ok {
			return nil, InvalidQuery(query.Format(e), "property %s.%s is not projected", ent.Name, prop.Name)
		}
		if prop.Kind == queryir.KindObject {
			return t.ownedObject(col, prop, nil, col.Nullable), nil
		}
		return col, nil
	}
	if nav, ok := ent.Navigation(e.Name); ok {
		if nav.Collection {
			return &queryir.CollectionNavigation{Owner: p, Navigation: nav.Name, Target: nav.Target}, nil
		}
		host := scope.Host()
		if host == nil {
			return nil, Untranslatable(query.Format(e), "navigation %s.%s needs a query context", ent.Name, nav.Name)
		}
		n, err := host.Navigate(p, nav)
		if err != nil {
			return nil, withExpr(err, query.Format(e))
		}
		return n, nil
	}
	return nil, withExpr(UnknownMember(ent.Name, e.Name, ent.MemberNames()), query.Format(e))
}

// ownedObject exposes the fields of a JSON object column as JSON path reads.
func (t *Translator) ownedObject(json queryir.SqlExpr, prop *schema.Property, path []queryir.PathSegment, nullable bool) *queryir.ObjectProjection {
	obj := &queryir.ObjectProjection{}
	for _, f := range prop.Fields {
		p := append(append([]queryir.PathSegment(nil), path...), queryir.PathSegment{Property: f.Column})
		var v queryir.Node
		if f.Kind == queryir.KindObject {
			v = t.ownedObject(json, f, p, nullable || f.Nullable)
		} else {
			v = &queryir.JsonScalar{
				Json:        json,
				Path:        p,
				Kind:        f.Kind,
				Nullable:    nullable || f.Nullable,
				TypeMapping: t.factory.Mapping(f.Kind),
			}
		}
		obj.Fields = append(obj.Fields, queryir.Field{Name: f.Name, Value: v})
	}
	return obj
}

func (t *Translator) call(e *query.Call, scope *Scope) (queryir.Node, error) {
	if queryOperators[e.Method] && (isQueryValued(e.Target) || isOperatorChain(e.Target)) {
		return t.subquery(e, scope)
	}
	if isQueryValued(e.Target) {
		return nil, Untranslatable(query.Format(e), "%s is not a query operator", e.Method)
	}
	target, err := t.Translate(e.Target, scope)
	if err != nil {
		return nil, err
	}
	if queryOperators[e.Method] && IsSequence(target) {
		return t.subquery(e, scope)
	}
	recv, ok := target.(queryir.SqlExpr)
	if !ok {
		return nil, Untranslatable(query.Format(e), "method %s on %s", e.Method, describeNode(target))
	}
	args, err := t.args(e.Args, scope)
	if err != nil {
		return nil, err
	}
	if e.Method == "Equals" && len(args) == 1 {
		return t.factory.Equal(recv, args[0]), nil
	}
	return t.plugin(Signature{Shape: ShapeMethod, Receiver: recv.Type(), Name: e.Method, Args: kinds(args)}, recv, args, e)
}

func (t *Translator) static(e *query.Static, scope *Scope) (queryir.Node, error) {
	args, err := t.args(e.Args, scope)
	if err != nil {
		return nil, err
	}
	return t.plugin(Signature{Shape: ShapeStatic, Type: e.Type, Name: e.Method, Args: kinds(args)}, nil, args, e)
}

func (t *Translator) args(in []query.Expr, scope *Scope) ([]queryir.SqlExpr, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]queryir.SqlExpr, len(in))
	for i, a := range in {
		if l, ok := a.(*query.Lambda); ok {
			return nil, Untranslatable(query.Format(l), "lambda arguments are only supported by query operators")
		}
		s, err := t.TranslateScalar(a, scope)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func kinds(args []queryir.SqlExpr) []queryir.Kind {
	if len(args) == 0 {
		return nil
	}
	out := make([]queryir.Kind, len(args))
	for i, a := range args {
		out[i] = a.Type()
	}
	return out
}

// plugin runs the call-plugin chain; the first non-nil result wins.
func (t *Translator) plugin(sig Signature, recv queryir.SqlExpr, args []queryir.SqlExpr, e query.Expr) (queryir.Node, error) {
	site := &CallSite{Signature: sig, Receiver: recv, Args: args}
	for _, p := range t.plugins.Calls {
		out, err := p(t.factory, site)
		if err != nil {
			return nil, withExpr(err, query.Format(e))
		}
		if out != nil {
			return out, nil
		}
	}
	what := sig.Receiver.String() + "." + sig.Name
	if sig.Shape == ShapeStatic {
		what = sig.Type + "." + sig.Name
	}
	return nil, Untranslatable(query.Format(e), "the %s %s could not be translated", sig.Shape, what)
}

var binaryOps = map[query.BinaryOp]queryir.BinaryOp{
	query.OpAdd:     queryir.OpAdd,
	query.OpSub:     queryir.OpSubtract,
	query.OpMul:     queryir.OpMultiply,
	query.OpDiv:     queryir.OpDivide,
	query.OpMod:     queryir.OpModulo,
	query.OpAndAlso: queryir.OpAnd,
	query.OpOrElse:  queryir.OpOr,
	query.OpEq:      queryir.OpEqual,
	query.OpNe:      queryir.OpNotEqual,
	query.OpLt:      queryir.OpLessThan,
	query.OpLe:      queryir.OpLessThanOrEqual,
	query.OpGt:      queryir.OpGreaterThan,
	query.OpGe:      queryir.OpGreaterThanOrEqual,
	query.OpBitAnd:  queryir.OpBitAnd,
	query.OpBitOr:   queryir.OpBitOr,
}

func (t *Translator) binary(e *query.Binary, scope *Scope) (queryir.Node, error) {
	left, err := t.Translate(e.Left, scope)
	if err != nil {
		return nil, err
	}
	right, err := t.Translate(e.Right, scope)
	if err != nil {
		return nil, err
	}

	if isEntity(left) || isEntity(right) {
		return t.compareEntities(e, left, right)
	}
	l, lok := left.(queryir.SqlExpr)
	r, rok := right.(queryir.SqlExpr)
	if !lok || !rok {
		return nil, Untranslatable(query.Format(e), "operator %s over %s and %s", e.Op, describeNode(left), describeNode(right))
	}

	if e.Op == query.OpCoalesce {
		return t.factory.Coalesce(l, r), nil
	}
	op := binaryOps[e.Op]
	if op == queryir.OpAdd && (l.Type() == queryir.KindString || r.Type() == queryir.KindString) {
		op = queryir.OpConcat
	}
	for _, p := range t.plugins.Binary {
		out, err := p(t.factory, op, l, r)
		if err != nil {
			return nil, withExpr(err, query.Format(e))
		}
		if out != nil {
			return out, nil
		}
	}
	return t.factory.Binary(op, l, r), nil
}

func isEntity(n queryir.Node) bool {
	_, ok := n.(*queryir.EntityProjection)
	return ok
}

// compareEntities compares entities by key. An entity compared with null
// tests its key columns for NULL.
func (t *Translator) compareEntities(e *query.Binary, left, right queryir.Node) (queryir.Node, error) {
	if e.Op != query.OpEq && e.Op != query.OpNe {
		return nil, Untranslatable(query.Format(e), "entities can only be compared for equality")
	}
	eq := e.Op == query.OpEq
	lp, _ := left.(*queryir.EntityProjection)
	rp, _ := right.(*queryir.EntityProjection)
	if lp == nil {
		lp, rp = rp, nil
		left, right = right, left
	}
	keys, err := t.keyColumns(lp, e)
	if err != nil {
		return nil, err
	}

	if rp == nil {
		r, ok := right.(queryir.SqlExpr)
		if !ok || !queryir.IsNullConstant(r) {
			return nil, Untranslatable(query.Format(e), "an entity can only be compared with an entity or null")
		}
		var out queryir.SqlExpr
		for _, k := range keys {
			if eq {
				out = t.factory.And(out, t.factory.IsNull(k))
			} else {
				out = t.factory.And(out, t.factory.IsNotNull(k))
			}
		}
		return out, nil
	}

	if lp.Entity != rp.Entity {
		return nil, Untranslatable(query.Format(e), "cannot compare %s with %s", lp.Entity, rp.Entity)
	}
	other, err := t.keyColumns(rp, e)
	if err != nil {
		return nil, err
	}
	var out queryir.SqlExpr
	for i, k := range keys {
		if eq {
			out = t.factory.And(out, t.factory.Equal(k, other[i]))
		} else if out == nil {
			out = t.factory.NotEqual(k, other[i])
		} else {
			out = t.factory.Or(out, t.factory.NotEqual(k, other[i]))
		}
	}
	return out, nil
}

func (t *Translator) keyColumns(p *queryir.EntityProjection, e query.Expr) ([]queryir.SqlExpr, error) {
	ent, ok := t.model.Entity(p.Entity)
	if !ok {
		return nil, InvalidQuery(query.Format(e), "entity %q is not in the model", p.Entity)
	}
	out := make([]queryir.SqlExpr, 0, len(ent.Key))
	for _, k := range ent.Key {
		col, ok := p.Column(k)
		if !ok {
			return nil, InvalidQuery(query.Format(e), "key %s.%s is not projected", ent.Name, k)
		}
		out = append(out, col)
	}
	return out, nil
}

func (t *Translator) unary(e *query.Unary, scope *Scope) (queryir.Node, error) {
	operand, err := t.TranslateScalar(e.Operand, scope)
	if err != nil {
		return nil, err
	}
	var op queryir.UnaryOp
	switch e.Op {
	case query.OpNot:
		return t.factory.Not(operand), nil
	case query.OpNegate:
		op = queryir.OpNegate
	case query.OpBitNot:
		op = queryir.OpBitNot
	}
	for _, p := range t.plugins.Unary {
		out, err := p(t.factory, op, operand)
		if err != nil {
			return nil, withExpr(err, query.Format(e))
		}
		if out != nil {
			return out, nil
		}
	}
	return queryir.NewUnary(op, operand, operand.Mapping()), nil
}

func (t *Translator) cond(e *query.Cond, scope *Scope) (queryir.Node, error) {
	test, err := t.TranslateScalar(e.Test, scope)
	if err != nil {
		return nil, err
	}
	then, err := t.TranslateScalar(e.Then, scope)
	if err != nil {
		return nil, err
	}
	els, err := t.TranslateScalar(e.Else, scope)
	if err != nil {
		return nil, err
	}
	c := t.factory.Case([]queryir.CaseWhen{{Test: test, Result: then}}, els)
	if c.Kind == queryir.KindUnknown {
		c.Kind, c.TypeMapping = els.Type(), els.Mapping()
	}
	return c, nil
}

func (t *Translator) convert(e *query.Convert, scope *Scope) (queryir.Node, error) {
	operand, err := t.TranslateScalar(e.Operand, scope)
	if err != nil {
		return nil, err
	}
	if operand.Type() == e.Kind {
		return operand, nil
	}
	for _, p := range t.plugins.Convert {
		out, err := p(t.factory, operand, e.Kind)
		if err != nil {
			return nil, withExpr(err, query.Format(e))
		}
		if out != nil {
			return out, nil
		}
	}
	if c, ok := operand.(*queryir.Constant); ok {
		if v, err := queryir.Normalize(c.Value, e.Kind); err == nil {
			return t.factory.Constant(v, e.Kind), nil
		}
	}
	return t.factory.Convert(operand, e.Kind), nil
}

func (t *Translator) index(e *query.Index, scope *Scope) (queryir.Node, error) {
	target, err := t.Translate(e.Target, scope)
	if err != nil {
		return nil, err
	}
	arr, ok := target.(queryir.SqlExpr)
	if !ok || arr.Type() != queryir.KindArray {
		return nil, Untranslatable(query.Format(e), "indexing is only supported on primitive collections")
	}
	i, err := t.TranslateScalar(e.Index, scope)
	if err != nil {
		return nil, err
	}
	elem := queryir.ElementOf(arr)
	return &queryir.JsonScalar{
		Json:        arr,
		Path:        []queryir.PathSegment{{Index: i}},
		Kind:        elem,
		Nullable:    true,
		TypeMapping: t.factory.Mapping(elem),
	}, nil
}

func (t *Translator) object(e *query.New, scope *Scope) (queryir.Node, error) {
	obj := &queryir.ObjectProjection{Fields: make([]queryir.Field, 0, len(e.Fields))}
	for _, f := range e.Fields {
		v, err := t.Translate(f.Value, scope)
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, queryir.Field{Name: f.Name, Value: v})
	}
	return obj, nil
}

func describeNode(n queryir.Node) string {
	switch n := n.(type) {
	case *queryir.EntityProjection:
		return "entity " + n.Entity
	case *queryir.ObjectProjection:
		return "an object"
	case *queryir.CollectionNavigation:
		return "collection " + n.Navigation
	case *queryir.GroupingProjection:
		return "a group"
	case queryir.SqlExpr:
		return n.Type().String() + " value"
	}
	return "unknown"
}
