package query

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/roach88/relq/internal/canonical"
	"github.com/roach88/relq/internal/queryir"
)

// Canonical returns a JSON-compatible form of e in which two trees have
// equal forms exactly when they denote the same query shape. Constants are
// part of the shape; parameter values are not.
func Canonical(e Expr) any {
	switch n := e.(type) {
	case nil:
		return nil
	case *Const:
		kind := n.ConstKind()
		return []any{"const", kind.String(), canonicalValue(n.Value)}
	case *Param:
		return []any{"param", n.Name, n.Kind.String(), n.Elem.String()}
	case *Ref:
		return []any{"ref", n.Name}
	case *Member:
		return []any{"member", Canonical(n.Target), n.Name}
	case *Call:
		return []any{"call", Canonical(n.Target), n.Method, canonicalList(n.Args)}
	case *Static:
		return []any{"static", n.Type, n.Method, canonicalList(n.Args)}
	case *Binary:
		return []any{"binary", n.Op.String(), Canonical(n.Left), Canonical(n.Right)}
	case *Unary:
		return []any{"unary", n.Op.String(), Canonical(n.Operand)}
	case *Cond:
		return []any{"cond", Canonical(n.Test), Canonical(n.Then), Canonical(n.Else)}
	case *Lambda:
		params := make([]any, len(n.Params))
		for i, p := range n.Params {
			params[i] = p
		}
		return []any{"lambda", params, Canonical(n.Body)}
	case *New:
		fields := make([]any, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = []any{f.Name, Canonical(f.Value)}
		}
		return []any{"new", fields}
	case *Entity:
		return []any{"entity", n.Name}
	case *Index:
		return []any{"index", Canonical(n.Target), Canonical(n.Index)}
	case *Convert:
		return []any{"convert", n.Kind.String(), Canonical(n.Operand)}
	}
	panic(fmt.Sprintf("query: unknown expression %T", e))
}

func canonicalList(es []Expr) []any {
	out := make([]any, len(es))
	for i, e := range es {
		out[i] = Canonical(e)
	}
	return out
}

// canonicalValue renders constant values with types canonical.Marshal
// accepts. Types without a JSON form are encoded as strings.
func canonicalValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64, uint64, float64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return strconv.FormatInt(int64(x), 10)
	case uuid.UUID:
		return x.String()
	case []byte:
		return hex.EncodeToString(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = canonicalValue(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = canonicalValue(e)
		}
		return out
	}
	if n, err := queryir.Normalize(v, queryir.KindOf(v)); err == nil && n != nil {
		return fmt.Sprint(n)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// ShapeKey hashes the canonical form of e. Equal keys mean the compiled
// plan can be reused.
func ShapeKey(e Expr) (string, error) {
	return canonical.Hash(canonical.DomainQueryShape, Canonical(e))
}
