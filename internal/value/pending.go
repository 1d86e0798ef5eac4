package value

import (
	"context"
	"sync"
)

// Pending is a future that resolves exactly once to a Value (which may
// itself be a Poison). Composition (OnResolve/Compose) is the
// non-blocking path the evaluator drives the render with; Await is the
// blocking path used at render boundaries and by tests.
//
// Grounded on the teacher's completion-channel pattern in
// AsyncState/executeFlow (flow.go): a channel that is closed exactly once
// to broadcast completion, guarded by a mutex around the one-shot state
// transition.
type Pending struct {
	mu       sync.Mutex
	resolved bool
	value    Value
	done     chan struct{}
	waiters  []func(Value)
}

func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolve idempotently settles p with a terminal (non-Pending) value.
// Subsequent calls are no-ops, matching the §3 invariant that resolution
// happens exactly once.
func (p *Pending) Resolve(v Value) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return
	}
	p.value = v
	p.resolved = true
	waiters := p.waiters
	p.waiters = nil
	close(p.done)
	p.mu.Unlock()

	for _, w := range waiters {
		w(v)
	}
}

// ResolveValue settles p with v, collapsing v if it is itself a Pending
// (§4.1.2: "collapsing nested Pending").
func (p *Pending) ResolveValue(v Value) {
	if inner, ok := v.(*Pending); ok {
		inner.OnResolve(p.ResolveValue)
		return
	}
	p.Resolve(v)
}

// OnResolve registers fn to run with the settled value. If p is already
// resolved, fn runs synchronously and immediately.
func (p *Pending) OnResolve(fn func(Value)) {
	p.mu.Lock()
	if p.resolved {
		v := p.value
		p.mu.Unlock()
		fn(v)
		return
	}
	p.waiters = append(p.waiters, fn)
	p.mu.Unlock()
}

// Peek returns the settled value without blocking.
func (p *Pending) Peek() (Value, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.resolved
}

// Await blocks until p settles or ctx is done.
func (p *Pending) Await(ctx context.Context) (Value, error) {
	select {
	case <-p.done:
		v, _ := p.Peek()
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (Pending) Kind() Kind { return "pending" }

func (p *Pending) String() string {
	if v, ok := p.Peek(); ok {
		return v.String()
	}
	return "<pending>"
}

// Compose evaluates compute once every element of operands has settled
// (non-Pending), returning a Pending immediately if any operand is still
// pending, or the direct result of compute otherwise. It is the single
// primitive behind binary/unary operators, property access, function
// application and container construction composing through Pending
// (§4.1.2).
func Compose(operands []Value, compute func([]Value) Value) Value {
	return composeFrom(operands, 0, compute)
}

func composeFrom(operands []Value, i int, compute func([]Value) Value) Value {
	for ; i < len(operands); i++ {
		if p, ok := operands[i].(*Pending); ok {
			idx := i
			result := NewPending()
			p.OnResolve(func(v Value) {
				next := append([]Value(nil), operands...)
				next[idx] = v
				result.ResolveValue(composeFrom(next, idx+1, compute))
			})
			return result
		}
	}
	return compute(operands)
}

// Compose1 is Compose specialised for a single operand.
func Compose1(a Value, compute func(Value) Value) Value {
	return Compose([]Value{a}, func(ops []Value) Value { return compute(ops[0]) })
}

// Compose2 is Compose specialised for two operands.
func Compose2(a, b Value, compute func(a, b Value) Value) Value {
	return Compose([]Value{a, b}, func(ops []Value) Value { return compute(ops[0], ops[1]) })
}
