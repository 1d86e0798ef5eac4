// Package value implements Cascada's tagged value model: the dynamic
// values a render operates on, and the Poison/Pending machinery that lets
// expressions compose without ever throwing.
package value

import "fmt"

// Kind identifies the dynamic tag of a Value, mirroring the way the
// teacher's pkg/core/types.go distinguishes executor kinds with a string
// enum read through a Kind() method rather than a Go type switch alone.
type Kind string

const (
	KindStr    Kind = "str"
	KindNum    Kind = "num"
	KindBool   Kind = "bool"
	KindNull   Kind = "null"
	KindUndef  Kind = "undef"
	KindList   Kind = "list"
	KindDict   Kind = "dict"
	KindFunc   Kind = "func"
	KindObj    Kind = "obj"
	KindPoison Kind = "poison"
)

// Value is the runtime's tagged sum. Poison and Pending are defined in
// poison.go/pending.go but satisfy this interface too, since both can
// appear wherever a Value is expected (§3).
type Value interface {
	Kind() Kind
	String() string
}

// Str is a Cascada string.
type Str string

func (Str) Kind() Kind      { return KindStr }
func (s Str) String() string { return string(s) }

// Num is a Cascada number. Cascada has one numeric type, like the
// template language it serves; arithmetic is done in float64.
type Num float64

func (Num) Kind() Kind { return KindNum }
func (n Num) String() string {
	if n == Num(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", float64(n))
}

// Bool is a Cascada boolean.
type Bool bool

func (Bool) Kind() Kind       { return KindBool }
func (b Bool) String() string { return fmt.Sprintf("%t", bool(b)) }

// Null represents an explicit null value.
type Null struct{}

func (Null) Kind() Kind      { return KindNull }
func (Null) String() string  { return "null" }

// Undef represents an absent/undeclared value, distinct from Null.
type Undef struct{}

func (Undef) Kind() Kind     { return KindUndef }
func (Undef) String() string { return "undefined" }

// List is an ordered, mutable sequence of Values.
type List struct {
	Items []Value
}

func NewList(items ...Value) *List { return &List{Items: items} }

func (*List) Kind() Kind { return KindList }
func (l *List) String() string {
	out := "["
	for i, it := range l.Items {
		if i > 0 {
			out += ", "
		}
		out += it.String()
	}
	return out + "]"
}

// Dict is an insertion-ordered string-keyed mapping.
type Dict struct {
	keys   []string
	values map[string]Value
}

func NewDict() *Dict {
	return &Dict{values: make(map[string]Value)}
}

func (*Dict) Kind() Kind { return KindDict }

func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

func (d *Dict) Set(key string, v Value) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

func (d *Dict) Delete(key string) {
	if _, exists := d.values[key]; !exists {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order.
func (d *Dict) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

func (d *Dict) Len() int { return len(d.keys) }

func (d *Dict) Clone() *Dict {
	clone := NewDict()
	for _, k := range d.keys {
		clone.Set(k, d.values[k])
	}
	return clone
}

func (d *Dict) String() string {
	out := "{"
	for i, k := range d.keys {
		if i > 0 {
			out += ", "
		}
		out += k + ": " + d.values[k].String()
	}
	return out + "}"
}

// Func is a callable value. Async host functions return a Pending from
// Call.
type Func struct {
	Name string
	Call func(args []Value) (Value, error)
}

func (*Func) Kind() Kind      { return KindFunc }
func (f *Func) String() string { return "function " + f.Name }

// Obj wraps an opaque host object. It is never deep-walked (§9): equality
// and iteration are the host's business, Cascada only does field/key
// access through Access.
type Obj struct {
	Native any
	Access func(key string) (Value, bool)
}

func (*Obj) Kind() Kind      { return KindObj }
func (o *Obj) String() string { return fmt.Sprintf("object(%T)", o.Native) }

// Truthy implements Cascada's truth test, used by if/while conditions and
// the `and`/`or` short-circuit operators.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case Bool:
		return bool(t)
	case Num:
		return t != 0
	case Str:
		return t != ""
	case Null, Undef:
		return false
	case *List:
		return len(t.Items) > 0
	case *Dict:
		return t.Len() > 0
	case *Obj, *Func:
		return true
	default:
		return true
	}
}

// Equal implements Value equality. Pending values are compared by
// identity (§3 invariant), never by resolved value.
func Equal(a, b Value) bool {
	if pa, ok := a.(*Pending); ok {
		pb, ok := b.(*Pending)
		return ok && pa == pb
	}
	switch av := a.(type) {
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Num:
		bv, ok := b.(Num)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Null:
		_, ok := b.(Null)
		return ok
	case Undef:
		_, ok := b.(Undef)
		return ok
	case *List:
		bv, ok := b.(*List)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Dict:
		bv, ok := b.(*Dict)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.keys {
			bval, ok := bv.Get(k)
			if !ok || !Equal(av.values[k], bval) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
