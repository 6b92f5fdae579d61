package query

import (
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/queryir"
)

// Document is a query written as YAML (or JSON, which YAML accepts):
//
//	from: Order
//	params:
//	  min: int64
//	  ids: {kind: array, element: int64}
//	ops:
//	  - [Where, ["=>", o, ["&&", [">", o.Total, $min], [".Contains", $ids, o.Id]]]]
//	  - [OrderBy, ["=>", o, o.Id]]
//	  - [Take, 10]
//
// Expressions are lists whose head is an operator:
//
//	["==", a, b]  binary operators: == != < <= > >= && || ?? + - * / % & |
//	["!", a]  ["neg", a]  ["~", a]
//	["?:", test, then, else]
//	["=>", o, body]  ["=>", [o, c], body]
//	[".Method", target, args...]      method call
//	["get", target, Member]           member access on any expression
//	["static", "Math.Abs", args...]   static call
//	["index", target, i]
//	["convert", kind, a]
//	["entity", Order]
//
// Scalars: 'text' is a string literal, $name a declared parameter and a bare
// dotted path such as o.Customer.Name a member chain on a lambda parameter.
// Typed literals are single-key maps: {date: "2024-03-01"}, {decimal: "1.50"},
// {uuid: ...}, {timespan: "1h30m"}, {time: "14:30:00"}, {bytes: "0aff"},
// {uint64: "18446744073709551615"}, {null: string}. {new: {A: x, B: y}}
// builds an anonymous object and {from: ..., ops: [...]} a nested query.
type Document struct {
	Query  Expr
	Params map[string]ParamSpec
}

// ParamSpec declares a parameter's kind.
type ParamSpec struct {
	Kind queryir.Kind
	Elem queryir.Kind
}

// DecodeError reports a malformed document with its YAML position.
type DecodeError struct {
	Line    int
	Column  int
	Message string
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

func errAt(n *yaml.Node, format string, args ...any) error {
	return &DecodeError{Line: n.Line, Column: n.Column, Message: fmt.Sprintf(format, args...)}
}

// Decode parses a query document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Query == nil {
		return nil, &DecodeError{Message: "document has no query"}
	}
	return &doc, nil
}

// UnmarshalYAML lets a Document be embedded in larger YAML files.
func (d *Document) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return errAt(n, "query document must be a mapping")
	}
	if pn := mapValue(n, "params"); pn != nil {
		if err := pn.Decode(&d.Params); err != nil {
			return err
		}
	}
	dec := &decoder{params: d.Params}
	q, err := dec.pipeline(n)
	if err != nil {
		return err
	}
	d.Query = q
	return nil
}

// UnmarshalYAML accepts either a kind name or {kind, element}.
func (p *ParamSpec) UnmarshalYAML(n *yaml.Node) error {
	var kindName, elemName string
	switch n.Kind {
	case yaml.ScalarNode:
		kindName = n.Value
	case yaml.MappingNode:
		var raw struct {
			Kind    string `yaml:"kind"`
			Element string `yaml:"element"`
		}
		if err := n.Decode(&raw); err != nil {
			return err
		}
		kindName, elemName = raw.Kind, raw.Element
	default:
		return errAt(n, "parameter must be a kind name or {kind, element}")
	}

	k, err := queryir.ParseKind(kindName)
	if err != nil {
		return errAt(n, "%v", err)
	}
	p.Kind = k
	if k == queryir.KindArray {
		if p.Elem, err = queryir.ParseKind(elemName); err != nil {
			return errAt(n, "array parameter: %v", err)
		}
	}
	return nil
}

// DecodeExpr decodes a single expression node.
func DecodeExpr(n *yaml.Node, params map[string]ParamSpec) (Expr, error) {
	return (&decoder{params: params}).expr(n)
}

type decoder struct {
	params map[string]ParamSpec
}

var pathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

func mapValue(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// pipeline decodes {from: Entity, ops: [...]} or {source: expr, ops: [...]}.
func (d *decoder) pipeline(n *yaml.Node) (Expr, error) {
	var q Expr
	if fn := mapValue(n, "from"); fn != nil {
		q = &Entity{Name: fn.Value}
	} else if sn := mapValue(n, "source"); sn != nil {
		src, err := d.expr(sn)
		if err != nil {
			return nil, err
		}
		q = src
	} else {
		return nil, errAt(n, "query needs 'from' or 'source'")
	}

	ops := mapValue(n, "ops")
	if ops == nil {
		return q, nil
	}
	if ops.Kind != yaml.SequenceNode {
		return nil, errAt(ops, "ops must be a list")
	}
	for _, op := range ops.Content {
		if op.Kind != yaml.SequenceNode || len(op.Content) == 0 {
			return nil, errAt(op, "each op must be [Operator, args...]")
		}
		args, err := d.exprs(op.Content[1:])
		if err != nil {
			return nil, err
		}
		q = &Call{Target: q, Method: op.Content[0].Value, Args: args}
	}
	return q, nil
}

func (d *decoder) exprs(nodes []*yaml.Node) ([]Expr, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	out := make([]Expr, 0, len(nodes))
	for _, n := range nodes {
		e, err := d.expr(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) expr(n *yaml.Node) (Expr, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return d.scalar(n)
	case yaml.SequenceNode:
		return d.list(n)
	case yaml.MappingNode:
		return d.mapping(n)
	case yaml.AliasNode:
		return d.expr(n.Alias)
	}
	return nil, errAt(n, "unexpected YAML node")
}

func (d *decoder) scalar(n *yaml.Node) (Expr, error) {
	switch n.Tag {
	case "!!null":
		return &Const{}, nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return nil, errAt(n, "%v", err)
		}
		return &Const{Value: b, Kind: queryir.KindBool}, nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err == nil {
			return &Const{Value: i, Kind: queryir.KindInt64}, nil
		}
		u, uerr := strconv.ParseUint(n.Value, 0, 64)
		if uerr != nil {
			return nil, errAt(n, "%v", err)
		}
		return &Const{Value: u, Kind: queryir.KindUint64}, nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, errAt(n, "%v", err)
		}
		return &Const{Value: f, Kind: queryir.KindFloat64}, nil
	}

	s := n.Value
	switch {
	case n.Style&yaml.SingleQuotedStyle != 0:
		// YAML already stripped the quotes of 'text'.
		return &Const{Value: s, Kind: queryir.KindString}, nil
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		return &Const{Value: strings.ReplaceAll(s[1:len(s)-1], "''", "'"), Kind: queryir.KindString}, nil
	case strings.HasPrefix(s, "$"):
		name := s[1:]
		spec, ok := d.params[name]
		if !ok {
			return nil, errAt(n, "undeclared parameter $%s", name)
		}
		return &Param{Name: name, Kind: spec.Kind, Elem: spec.Elem}, nil
	case pathPattern.MatchString(s):
		return F(s), nil
	}
	return nil, errAt(n, "cannot parse %q: quote string literals as 'text'", s)
}

func (d *decoder) list(n *yaml.Node) (Expr, error) {
	if len(n.Content) == 0 {
		return nil, errAt(n, "empty expression list")
	}
	head := n.Content[0]
	if head.Kind != yaml.ScalarNode {
		return nil, errAt(head, "expression must start with an operator")
	}
	op, rest := head.Value, n.Content[1:]

	arity := func(want int) error {
		if len(rest) != want {
			return errAt(n, "%s takes %d operands, got %d", op, want, len(rest))
		}
		return nil
	}

	if bop, ok := binaryOps[op]; ok {
		if len(rest) < 2 || (len(rest) > 2 && bop != OpAndAlso && bop != OpOrElse) {
			return nil, errAt(n, "%s takes 2 operands, got %d", op, len(rest))
		}
		args, err := d.exprs(rest)
		if err != nil {
			return nil, err
		}
		e := args[0]
		for _, a := range args[1:] {
			e = &Binary{Op: bop, Left: e, Right: a}
		}
		return e, nil
	}

	switch {
	case op == "!" || op == "neg" || op == "~":
		if err := arity(1); err != nil {
			return nil, err
		}
		operand, err := d.expr(rest[0])
		if err != nil {
			return nil, err
		}
		uop := map[string]UnaryOp{"!": OpNot, "neg": OpNegate, "~": OpBitNot}[op]
		return &Unary{Op: uop, Operand: operand}, nil

	case op == "?:":
		if err := arity(3); err != nil {
			return nil, err
		}
		args, err := d.exprs(rest)
		if err != nil {
			return nil, err
		}
		return &Cond{Test: args[0], Then: args[1], Else: args[2]}, nil

	case op == "=>":
		if err := arity(2); err != nil {
			return nil, err
		}
		var params []string
		switch rest[0].Kind {
		case yaml.ScalarNode:
			params = []string{rest[0].Value}
		case yaml.SequenceNode:
			for _, p := range rest[0].Content {
				params = append(params, p.Value)
			}
		default:
			return nil, errAt(rest[0], "lambda parameters must be a name or list of names")
		}
		body, err := d.expr(rest[1])
		if err != nil {
			return nil, err
		}
		return &Lambda{Params: params, Body: body}, nil

	case strings.HasPrefix(op, ".") && len(op) > 1:
		if len(rest) < 1 {
			return nil, errAt(n, "method call %s needs a target", op)
		}
		target, err := d.expr(rest[0])
		if err != nil {
			return nil, err
		}
		args, err := d.exprs(rest[1:])
		if err != nil {
			return nil, err
		}
		return &Call{Target: target, Method: op[1:], Args: args}, nil

	case op == "get":
		if err := arity(2); err != nil {
			return nil, err
		}
		target, err := d.expr(rest[0])
		if err != nil {
			return nil, err
		}
		return &Member{Target: target, Name: rest[1].Value}, nil

	case op == "static":
		if len(rest) < 1 {
			return nil, errAt(n, "static needs Type.Method")
		}
		name := rest[0].Value
		dot := strings.LastIndex(name, ".")
		if dot <= 0 {
			return nil, errAt(rest[0], "static call %q must be Type.Method", name)
		}
		args, err := d.exprs(rest[1:])
		if err != nil {
			return nil, err
		}
		return &Static{Type: name[:dot], Method: name[dot+1:], Args: args}, nil

	case op == "index":
		if err := arity(2); err != nil {
			return nil, err
		}
		args, err := d.exprs(rest)
		if err != nil {
			return nil, err
		}
		return &Index{Target: args[0], Index: args[1]}, nil

	case op == "convert":
		if err := arity(2); err != nil {
			return nil, err
		}
		kind, err := queryir.ParseKind(rest[0].Value)
		if err != nil {
			return nil, errAt(rest[0], "%v", err)
		}
		operand, err := d.expr(rest[1])
		if err != nil {
			return nil, err
		}
		return &Convert{Operand: operand, Kind: kind}, nil

	case op == "entity":
		if err := arity(1); err != nil {
			return nil, err
		}
		return &Entity{Name: rest[0].Value}, nil
	}

	return nil, errAt(head, "unknown operator %q", op)
}

var binaryOps = map[string]BinaryOp{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
	"&&": OpAndAlso, "||": OpOrElse,
	"==": OpEq, "!=": OpNe, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
	"??": OpCoalesce, "&": OpBitAnd, "|": OpBitOr,
}

func (d *decoder) mapping(n *yaml.Node) (Expr, error) {
	if mapValue(n, "from") != nil || mapValue(n, "source") != nil {
		return d.pipeline(n)
	}
	if len(n.Content) != 2 {
		return nil, errAt(n, "typed literal must have exactly one key")
	}
	key, val := n.Content[0].Value, n.Content[1]

	if key == "new" {
		if val.Kind != yaml.MappingNode {
			return nil, errAt(val, "new takes a mapping of fields")
		}
		obj := &New{}
		for i := 0; i+1 < len(val.Content); i += 2 {
			fv, err := d.expr(val.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Fields = append(obj.Fields, Field{Name: val.Content[i].Value, Value: fv})
		}
		return obj, nil
	}

	v, kind, err := typedLiteral(key, val.Value)
	if err != nil {
		return nil, errAt(val, "%s literal: %v", key, err)
	}
	return &Const{Value: v, Kind: kind}, nil
}

func typedLiteral(key, s string) (any, queryir.Kind, error) {
	switch key {
	case "date":
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil, 0, err
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), queryir.KindDate, nil
	case "datetime":
		t, err := dateparse.ParseIn(s, time.UTC)
		return t, queryir.KindDateTime, err
	case "datetimeoffset":
		t, err := dateparse.ParseAny(s)
		return t, queryir.KindDateTimeOffset, err
	case "decimal":
		v, err := decimal.NewFromString(s)
		return v, queryir.KindDecimal, err
	case "uuid":
		v, err := uuid.Parse(s)
		return v, queryir.KindUUID, err
	case "timespan":
		v, err := time.ParseDuration(s)
		return v, queryir.KindTimeSpan, err
	case "time":
		t, err := time.Parse("15:04:05.999999999", s)
		if err != nil {
			return nil, 0, err
		}
		return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond()), queryir.KindTime, nil
	case "bytes":
		v, err := hex.DecodeString(s)
		return v, queryir.KindBytes, err
	case "uint64":
		v, err := strconv.ParseUint(s, 10, 64)
		return v, queryir.KindUint64, err
	case "int32":
		v, err := strconv.ParseInt(s, 10, 32)
		return v, queryir.KindInt32, err
	case "float64":
		v, err := strconv.ParseFloat(s, 64)
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			return nil, 0, fmt.Errorf("non-finite float")
		}
		return v, queryir.KindFloat64, err
	case "null":
		kind, err := queryir.ParseKind(s)
		return nil, kind, err
	}
	return nil, 0, fmt.Errorf("unknown literal type %q", key)
}
