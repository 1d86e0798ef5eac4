package frame

import (
	"testing"

	"github.com/cascadalang/cascada/internal/value"
)

func TestSetDeclaresInNearestCreateScopeWhenUndeclared(t *testing.T) {
	root := New()
	block := root.Push(false) // e.g. an if-branch: cannot create scope

	block.Set("x", value.Num(1))

	if root.IsDeclaredHere("x") == false {
		t.Fatal("expected x to be declared on the nearest createScope ancestor")
	}
	if block.IsDeclaredHere("x") {
		t.Fatal("block frame should not own the declaration")
	}
}

func TestFirstWritePropagatesSubsequentDoesNot(t *testing.T) {
	root := New()
	root.Declare("total")
	child := root.Push(false)
	grandchild := child.Push(false)

	grandchild.Set("total", value.Num(1))
	if child.WriteCount("total") != 1 {
		t.Fatalf("expected first write to propagate a count of 1, got %d", child.WriteCount("total"))
	}
	if root.WriteCount("total") != 0 {
		t.Fatal("root should not record a write count for its own declared name")
	}

	grandchild.Set("total", value.Num(2))
	if grandchild.WriteCount("total") != 2 || child.WriteCount("total") != 1 {
		t.Fatalf("expected second write to count 2 locally and stop before child, got grandchild=%d child=%d", grandchild.WriteCount("total"), child.WriteCount("total"))
	}
}

func TestGetTracksReadsOnIntermediateFrames(t *testing.T) {
	root := New()
	root.Declare("x")
	root.Set("x", value.Num(5))

	child := root.Push(false)
	grandchild := child.Push(false)

	if _, ok := grandchild.Get("x"); !ok {
		t.Fatal("expected x to resolve through the chain")
	}

	found := false
	for _, n := range child.ReadVars() {
		if n == "x" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected intermediate frame to record a read of x")
	}
}

func TestSnapshotFreezesSiblingWrites(t *testing.T) {
	root := New()
	root.Declare("x")
	root.Set("x", value.Num(1))

	branchA := root.Push(false)
	branchA.Get("x") // Snapshot captures only names the frame has read
	snap := branchA.Snapshot()

	branchB := root.Push(false)
	branchB.Set("x", value.Num(99))

	pinned := branchA.Restore(snap)
	v, ok := pinned.Get("x")
	if !ok || v.(value.Num) != 1 {
		t.Fatalf("expected snapshot to pin x=1, got %v", v)
	}
}

func TestIsolateWritesStopsDeclaringFrameSearch(t *testing.T) {
	root := New()
	root.Declare("x")

	macro := root.Push(true)
	macro.IsolateWrites = true

	if macro.IsDeclared("x") {
		t.Fatal("expected isolateWrites frame to stop the search for x")
	}

	macro.Set("x", value.Num(1))
	if !macro.IsDeclaredHere("x") {
		t.Fatal("expected x to be declared locally once isolateWrites stopped the upward search")
	}
}
