package value

import "strings"

// BinaryOp names the binary operators the expression evaluator supports.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"
	OpEq  BinaryOp = "=="
	OpNe  BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpLe  BinaryOp = "<="
	OpGt  BinaryOp = ">"
	OpGe  BinaryOp = ">="
	OpAnd BinaryOp = "and"
	OpOr  BinaryOp = "or"
	OpConcat BinaryOp = "~"
)

// Binary evaluates a binary operator. Pending operands compose (§4.1.2);
// poison operands join and short-circuit numeric/string coercion
// (§4.1.1). `and`/`or` return the short-circuiting operand unevaluated on
// the other side — the caller is expected to only invoke Binary for these
// once the relevant operand is already resolved, matching §4.8's "the
// condition awaits to a concrete value" rule for boolean contexts.
func Binary(op BinaryOp, a, b Value, path string, line, col int) Value {
	return Compose2(a, b, func(a, b Value) Value {
		if p := Join(a, b); p != nil {
			return p
		}
		switch op {
		case OpAnd:
			if !Truthy(a) {
				return a
			}
			return b
		case OpOr:
			if Truthy(a) {
				return a
			}
			return b
		case OpEq:
			return Bool(Equal(a, b))
		case OpNe:
			return Bool(!Equal(a, b))
		case OpConcat:
			return Str(toDisplayString(a) + toDisplayString(b))
		}

		if op == OpAdd {
			if as, aok := a.(Str); aok {
				return Str(string(as) + toDisplayString(b))
			}
			if bs, bok := b.(Str); bok {
				return Str(toDisplayString(a) + string(bs))
			}
		}

		an, aok := asNum(a)
		bn, bok := asNum(b)
		if !aok || !bok {
			return Poisonf(path, line, col, "operator %q requires numbers, got %s and %s", op, a.Kind(), b.Kind())
		}

		switch op {
		case OpAdd:
			return Num(an + bn)
		case OpSub:
			return Num(an - bn)
		case OpMul:
			return Num(an * bn)
		case OpDiv:
			if bn == 0 {
				return Poisonf(path, line, col, "division by zero")
			}
			return Num(an / bn)
		case OpMod:
			if bn == 0 {
				return Poisonf(path, line, col, "modulo by zero")
			}
			return Num(int64(an) % int64(bn))
		case OpLt:
			return Bool(an < bn)
		case OpLe:
			return Bool(an <= bn)
		case OpGt:
			return Bool(an > bn)
		case OpGe:
			return Bool(an >= bn)
		default:
			return Poisonf(path, line, col, "unsupported operator %q", op)
		}
	})
}

// UnaryOp names the unary operators.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "not"
)

// Unary evaluates a unary operator, composing through Pending/Poison.
func Unary(op UnaryOp, a Value, path string, line, col int) Value {
	return Compose1(a, func(a Value) Value {
		if p := Join(a); p != nil {
			return p
		}
		switch op {
		case OpNot:
			return Bool(!Truthy(a))
		case OpNeg:
			n, ok := asNum(a)
			if !ok {
				return Poisonf(path, line, col, "unary - requires a number, got %s", a.Kind())
			}
			return Num(-n)
		default:
			return Poisonf(path, line, col, "unsupported unary operator %q", op)
		}
	})
}

func asNum(v Value) (float64, bool) {
	switch t := v.(type) {
	case Num:
		return float64(t), true
	case Bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toDisplayString(v Value) string {
	if s, ok := v.(Str); ok {
		return string(s)
	}
	return strings.TrimSpace(v.String())
}
