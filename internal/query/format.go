package query

import (
	"fmt"
	"strings"
)

// Format renders e in a compact C#-like notation for diagnostics:
//
//	o => o.Name.StartsWith("Jo")
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Const:
		switch v := n.Value.(type) {
		case nil:
			b.WriteString("null")
		case string:
			fmt.Fprintf(b, "%q", v)
		default:
			fmt.Fprintf(b, "%v", v)
		}
	case *Param:
		b.WriteString("@" + n.Name)
	case *Ref:
		b.WriteString(n.Name)
	case *Member:
		format(b, n.Target)
		b.WriteString("." + n.Name)
	case *Call:
		format(b, n.Target)
		b.WriteString("." + n.Method)
		formatArgs(b, n.Args)
	case *Static:
		b.WriteString(n.Type + "." + n.Method)
		formatArgs(b, n.Args)
	case *Binary:
		b.WriteByte('(')
		format(b, n.Left)
		b.WriteString(" " + n.Op.String() + " ")
		format(b, n.Right)
		b.WriteByte(')')
	case *Unary:
		if n.Op == OpNegate {
			b.WriteByte('-')
		} else {
			b.WriteString(n.Op.String())
		}
		format(b, n.Operand)
	case *Cond:
		b.WriteByte('(')
		format(b, n.Test)
		b.WriteString(" ? ")
		format(b, n.Then)
		b.WriteString(" : ")
		format(b, n.Else)
		b.WriteByte(')')
	case *Lambda:
		if len(n.Params) == 1 {
			b.WriteString(n.Params[0])
		} else {
			b.WriteString("(" + strings.Join(n.Params, ", ") + ")")
		}
		b.WriteString(" => ")
		format(b, n.Body)
	case *New:
		b.WriteString("new { ")
		for i, f := range n.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name + " = ")
			format(b, f.Value)
		}
		b.WriteString(" }")
	case *Entity:
		b.WriteString(n.Name)
	case *Index:
		format(b, n.Target)
		b.WriteByte('[')
		format(b, n.Index)
		b.WriteByte(']')
	case *Convert:
		fmt.Fprintf(b, "(%s)", n.Kind)
		format(b, n.Operand)
	default:
		fmt.Fprintf(b, "%T", e)
	}
}

func formatArgs(b *strings.Builder, args []Expr) {
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, a)
	}
	b.WriteByte(')')
}
