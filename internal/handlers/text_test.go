package handlers

import (
	"testing"

	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/value"
)

func TestTextCallAppends(t *testing.T) {
	tx := NewText()
	if _, err := tx.Call([]value.Value{value.Str("hello ")}); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Call([]value.Value{value.Str("world")}); err != nil {
		t.Fatal(err)
	}
	if tx.Value().(value.Str) != "hello world" {
		t.Fatalf("got %v", tx.Value())
	}
}

func TestTextDispatchBareCall(t *testing.T) {
	tx := NewText()
	if _, err := tx.Dispatch(&command.Record{Args: []value.Value{value.Str("x")}}); err != nil {
		t.Fatal(err)
	}
	if tx.Value().(value.Str) != "x" {
		t.Fatalf("got %v", tx.Value())
	}
}

func TestTextSnapshotRestore(t *testing.T) {
	tx := NewText()
	tx.Call([]value.Value{value.Str("a")})
	snap := tx.Snapshot()
	tx.Call([]value.Value{value.Str("b")})
	tx.Restore(snap)
	if tx.Value().(value.Str) != "a" {
		t.Fatalf("got %v", tx.Value())
	}
}
