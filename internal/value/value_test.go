package value

import (
	"context"
	"testing"
)

func TestPoisonJoinDedupesByIdentity(t *testing.T) {
	e1 := NewError("tpl", 1, 1, "boom")
	e2 := NewError("tpl", 2, 1, "bang")

	p1 := NewPoison(e1)
	p2 := NewPoison(e1, e2)

	joined := Join(p1, p2)
	if joined == nil {
		t.Fatal("expected a joined poison")
	}
	if len(joined.Errors) != 2 {
		t.Fatalf("expected 2 deduped errors, got %d", len(joined.Errors))
	}
}

func TestJoinIgnoresNonPoisonOperands(t *testing.T) {
	if Join(Num(1), Str("x")) != nil {
		t.Fatal("expected nil when no operand is poison")
	}
}

func TestPendingResolveIsIdempotent(t *testing.T) {
	p := NewPending()
	p.Resolve(Num(1))
	p.Resolve(Num(2))

	v, ok := p.Peek()
	if !ok || v.(Num) != 1 {
		t.Fatalf("expected first resolution to win, got %v", v)
	}
}

func TestComposeCollapsesNestedPending(t *testing.T) {
	inner := NewPending()
	outer := NewPending()
	outer.ResolveValue(inner)

	result := Compose1(outer, func(v Value) Value { return v })
	if _, ok := result.(*Pending); !ok {
		t.Fatalf("expected still-pending result, got %T", result)
	}

	inner.Resolve(Num(42))

	settled, err := result.(*Pending).Await(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if settled.(Num) != 42 {
		t.Fatalf("expected 42, got %v", settled)
	}
}

func TestBinaryAddJoinsPoisonFromEitherOperand(t *testing.T) {
	bad := Poisonf("t", 1, 1, "failed")
	result := Binary(OpAdd, bad, Num(1), "t", 1, 1)
	if !IsPoison(result) {
		t.Fatalf("expected poison, got %v", result)
	}
}

func TestBinaryDivisionByZeroIsPoison(t *testing.T) {
	result := Binary(OpDiv, Num(1), Num(0), "t", 1, 1)
	p, ok := AsPoison(result)
	if !ok {
		t.Fatalf("expected poison from division by zero, got %v", result)
	}
	if len(p.Errors) != 1 {
		t.Fatalf("expected one error, got %d", len(p.Errors))
	}
}

func TestResolveDeepLeavesSiblingBranchesIntact(t *testing.T) {
	good := NewPending()
	bad := NewPending()

	list := NewList(good, bad)

	go func() {
		good.Resolve(Num(1))
		bad.Resolve(Poisonf("t", 1, 1, "nope"))
	}()

	resolved, err := ResolveDeep(context.Background(), list)
	if err != nil {
		t.Fatal(err)
	}
	rl := resolved.(*List)
	if rl.Items[0].(Num) != 1 {
		t.Fatalf("expected first element resolved, got %v", rl.Items[0])
	}
	if !IsPoison(rl.Items[1]) {
		t.Fatalf("expected second element poisoned, got %v", rl.Items[1])
	}
}

func TestResolveDeepDoesNotWalkObj(t *testing.T) {
	obj := &Obj{Native: 7}
	resolved, err := ResolveDeep(context.Background(), obj)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != Value(obj) {
		t.Fatal("expected Obj returned by identity")
	}
}
