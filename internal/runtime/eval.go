package runtime

import (
	"github.com/cascadalang/cascada/internal/ast"
	"github.com/cascadalang/cascada/internal/frame"
	"github.com/cascadalang/cascada/internal/seqlock"
	"github.com/cascadalang/cascada/internal/value"
)

// Eval lowers an expression node to a Value against f, composing through
// Pending/Poison rather than blocking (§4.7). Only the statement
// executor blocks, at the specific suspension points §4.8 names.
func (m *Machine) Eval(f *frame.Frame, n ast.Node) value.Value {
	switch t := n.(type) {
	case *ast.Literal:
		return evalLiteral(t)
	case *ast.Symbol:
		return m.evalSymbol(f, t)
	case *ast.BinOp:
		return m.evalBinOp(f, t)
	case *ast.UnaryOp:
		return m.evalUnary(f, t)
	case *ast.GetAttr:
		return m.evalGetAttr(f, t)
	case *ast.Index:
		return m.evalIndex(f, t)
	case *ast.ListExpr:
		return m.evalListExpr(f, t)
	case *ast.DictExpr:
		return m.evalDictExpr(f, t)
	case *ast.CallExpr:
		return m.evalCall(f, t)
	default:
		return poisonAt(n, "unevaluable expression %T", n)
	}
}

func evalLiteral(n *ast.Literal) value.Value {
	switch n.Kind {
	case "str":
		return value.Str(n.Str)
	case "num":
		return value.Num(n.Num)
	case "bool":
		return value.Bool(n.Bool)
	case "null":
		return value.Null{}
	default:
		return value.Undef{}
	}
}

// evalSymbol resolves name through the frame chain, then Env.Functions,
// then Env.Globals (§4.7 "Symbol lookup consults the frame chain, then
// globals").
func (m *Machine) evalSymbol(f *frame.Frame, n *ast.Symbol) value.Value {
	if v, ok := f.Get(n.Name); ok {
		return v
	}
	if fn, ok := m.Env.Functions[n.Name]; ok {
		return fn
	}
	if v, ok := m.Env.Globals[n.Name]; ok {
		return v
	}
	if m.Env.Flags.ThrowOnUndefined {
		return poisonAt(n, "%q is undefined", n.Name)
	}
	return value.Undef{}
}

// evalBinOp implements §4.7's operator composition, with `and`/`or`
// handled as genuine lazy short-circuits (value.Binary's own OpAnd/OpOr
// branches assume both operands are already resolved, which would defeat
// short-circuiting here) and `is` dispatched to the test registry.
func (m *Machine) evalBinOp(f *frame.Frame, n *ast.BinOp) value.Value {
	if n.Op == "is" {
		return m.evalIs(f, n)
	}

	left := m.Eval(f, n.Left)

	if n.Op == "and" || n.Op == "or" {
		return value.Compose1(left, func(lv value.Value) value.Value {
			if p, ok := value.AsPoison(lv); ok {
				return p
			}
			truthy := value.Truthy(lv)
			if (n.Op == "and" && !truthy) || (n.Op == "or" && truthy) {
				return lv
			}
			return m.Eval(f, n.Right)
		})
	}

	right := m.Eval(f, n.Right)
	pos := n.Position()
	return value.Binary(value.BinaryOp(n.Op), left, right, pos.Path, pos.Line, pos.Column)
}

// evalIs backs the `is` test operator; n.Right is either a bare test name
// (`x is defined`) or a call-shaped form carrying explicit args
// (`x is divisibleby(3)`).
func (m *Machine) evalIs(f *frame.Frame, n *ast.BinOp) value.Value {
	left := m.Eval(f, n.Left)

	name := ""
	var argNodes []ast.Node
	switch r := n.Right.(type) {
	case *ast.Symbol:
		name = r.Name
	case *ast.CallExpr:
		if sym, ok := r.Callee.(*ast.Symbol); ok {
			name = sym.Name
		}
		argNodes = r.Args
	}

	operands := make([]value.Value, 0, len(argNodes)+1)
	operands = append(operands, left)
	for _, a := range argNodes {
		operands = append(operands, m.Eval(f, a))
	}

	pos := n.Position()
	return value.Compose(operands, func(ops []value.Value) value.Value {
		if p := value.Join(ops...); p != nil {
			return p
		}
		test, ok := m.Env.Tests[name]
		if !ok {
			return value.Poisonf(pos.Path, pos.Line, pos.Column, "unknown test %q", name)
		}
		return value.Bool(test(ops[0], ops[1:]))
	})
}

func (m *Machine) evalUnary(f *frame.Frame, n *ast.UnaryOp) value.Value {
	v := m.Eval(f, n.Expr)
	pos := n.Position()
	return value.Unary(value.UnaryOp(n.Op), v, pos.Path, pos.Line, pos.Column)
}

// evalGetAttr implements `target.name`, composing through Pending/Poison
// (§4.7). Accessing a field on Null/Undef yields Undef unless
// ThrowOnUndefined is set, matching §4.7's "follows policy".
func (m *Machine) evalGetAttr(f *frame.Frame, n *ast.GetAttr) value.Value {
	target := m.Eval(f, n.Target)
	pos := n.Position()
	return value.Compose1(target, func(t value.Value) value.Value {
		if p, ok := value.AsPoison(t); ok {
			return p
		}
		switch tt := t.(type) {
		case *value.Dict:
			if v, ok := tt.Get(n.Name); ok {
				return v
			}
			return m.undefAttr(n, tt.Kind(), n.Name, pos)
		case *value.Obj:
			if tt.Access != nil {
				if v, ok := tt.Access(n.Name); ok {
					return v
				}
			}
			return m.undefAttr(n, tt.Kind(), n.Name, pos)
		case value.Null, value.Undef:
			return m.undefAttr(n, t.Kind(), n.Name, pos)
		default:
			return m.undefAttr(n, t.Kind(), n.Name, pos)
		}
	})
}

func (m *Machine) undefAttr(n ast.Node, kind value.Kind, name string, pos ast.Pos) value.Value {
	if m.Env.Flags.ThrowOnUndefined {
		return value.Poisonf(pos.Path, pos.Line, pos.Column, "%q has no attribute %q", kind, name)
	}
	return value.Undef{}
}

// evalIndex implements `target[key]`.
func (m *Machine) evalIndex(f *frame.Frame, n *ast.Index) value.Value {
	target := m.Eval(f, n.Target)
	key := m.Eval(f, n.Key)
	pos := n.Position()
	return value.Compose2(target, key, func(t, k value.Value) value.Value {
		if p := value.Join(t, k); p != nil {
			return p
		}
		switch tt := t.(type) {
		case *value.List:
			idx, ok := k.(value.Num)
			if !ok {
				return value.Poisonf(pos.Path, pos.Line, pos.Column, "list index must be a number, got %s", k.Kind())
			}
			i := int(idx)
			if i < 0 {
				i += len(tt.Items)
			}
			if i < 0 || i >= len(tt.Items) {
				return value.Undef{}
			}
			return tt.Items[i]
		case *value.Dict:
			ks, ok := k.(value.Str)
			if !ok {
				return value.Poisonf(pos.Path, pos.Line, pos.Column, "dict key must be a string, got %s", k.Kind())
			}
			if v, ok := tt.Get(string(ks)); ok {
				return v
			}
			return value.Undef{}
		case *value.Obj:
			if tt.Access != nil {
				if ks, ok := k.(value.Str); ok {
					if v, ok := tt.Access(string(ks)); ok {
						return v
					}
				}
			}
			return value.Undef{}
		case value.Null, value.Undef:
			return value.Undef{}
		default:
			return value.Poisonf(pos.Path, pos.Line, pos.Column, "cannot index a %s", t.Kind())
		}
	})
}

// evalListExpr and evalDictExpr build containers whose leaves may be
// Pending; no deep-resolve happens here (§4.7: "No deep-resolve is
// performed until the value is used in a context that requires it").
func (m *Machine) evalListExpr(f *frame.Frame, n *ast.ListExpr) value.Value {
	l := value.NewList()
	for _, it := range n.Items {
		l.Items = append(l.Items, m.Eval(f, it))
	}
	return l
}

func (m *Machine) evalDictExpr(f *frame.Frame, n *ast.DictExpr) value.Value {
	d := value.NewDict()
	for i, k := range n.Keys {
		d.Set(k, m.Eval(f, n.Values[i]))
	}
	return d
}

// evalCall implements function application, filter application (already
// lowered to a CallExpr by the parser) and `!`-marked call sites. Args
// are resolved shallow, matching §4.7's default; the compiler does not
// currently mark any call site for the deep-resolve variant, so every
// call takes the shallow path.
func (m *Machine) evalCall(f *frame.Frame, call *ast.CallExpr) value.Value {
	callee := m.Eval(f, call.Callee)
	args := make([]value.Value, len(call.Args))
	for i, a := range call.Args {
		args[i] = m.Eval(f, a)
	}
	operands := append([]value.Value{callee}, args...)

	compute := func(ops []value.Value) value.Value {
		if p := value.Join(ops...); p != nil {
			return p
		}
		fn, ok := ops[0].(*value.Func)
		if !ok {
			return poisonAt(call, "cannot call a %s", ops[0].Kind())
		}
		res, err := fn.Call(ops[1:])
		if err != nil {
			pos := call.Position()
			return value.NewPoison(value.WrapError(pos.Path, pos.Line, pos.Column, err))
		}
		return res
	}

	if !call.SeqLocked {
		return value.Compose(operands, compute)
	}

	key := seqLockKey(call)
	run := func() *value.Pending {
		return toPending(value.Compose(operands, compute))
	}
	return m.seqTable.Run(key, run)
}

// seqLockKey builds the table key for a `!`-marked call site from the
// dotted path the parser captured (§4.4). Method-keyed locks carry the
// full chain including the method name in SeqLockPath, since the `!`
// there sits at the point the method itself was parsed; path-keyed locks
// carry the chain up to (excluding) the method.
func seqLockKey(call *ast.CallExpr) string {
	if !call.SeqKeyedByMethod {
		return seqlock.PathKey(call.SeqLockPath)
	}
	path, method := splitLastDot(call.SeqLockPath)
	return seqlock.MethodKey(path, method)
}

func splitLastDot(s string) (path, method string) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return s[:i], s[i+1:]
		}
	}
	return "", s
}

// toPending adapts a possibly-already-settled Value into a *Pending, the
// shape seqlock.Table.Run requires of every queued task.
func toPending(v value.Value) *value.Pending {
	if p, ok := v.(*value.Pending); ok {
		return p
	}
	p := value.NewPending()
	p.Resolve(v)
	return p
}
