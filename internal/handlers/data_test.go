package handlers

import (
	"testing"

	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/value"
)

func path(names ...string) []command.PathStep {
	steps := make([]command.PathStep, len(names))
	for i, n := range names {
		steps[i] = command.FieldStep{Name: n}
	}
	return steps
}

func TestDataSetAndGetNestedPath(t *testing.T) {
	d := NewData()
	if _, err := d.Dispatch(&command.Record{Method: "set", Path: path("user", "name"), Args: []value.Value{value.Str("ana")}}); err != nil {
		t.Fatal(err)
	}
	dict := d.Value().(*value.Dict)
	user, ok := dict.Get("user")
	if !ok {
		t.Fatal("expected user field")
	}
	name, ok := user.(*value.Dict).Get("name")
	if !ok || name.(value.Str) != "ana" {
		t.Fatalf("got %v", name)
	}
}

func TestDataPushAndPop(t *testing.T) {
	d := NewData()
	if _, err := d.Dispatch(&command.Record{Method: "push", Path: path("items"), Args: []value.Value{value.Num(1)}}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(&command.Record{Method: "push", Path: path("items"), Args: []value.Value{value.Num(2)}}); err != nil {
		t.Fatal(err)
	}
	out, err := d.Dispatch(&command.Record{Method: "pop", Path: path("items")})
	if err != nil {
		t.Fatal(err)
	}
	if out.(value.Num) != 2 {
		t.Fatalf("expected 2, got %v", out)
	}
}

func TestDataCompoundAdd(t *testing.T) {
	d := NewData()
	if _, err := d.Dispatch(&command.Record{Method: "set", Path: path("count"), Args: []value.Value{value.Num(5)}}); err != nil {
		t.Fatal(err)
	}
	out, err := d.Dispatch(&command.Record{Method: "add", Path: path("count"), Args: []value.Value{value.Num(3)}})
	if err != nil {
		t.Fatal(err)
	}
	if out.(value.Num) != 8 {
		t.Fatalf("expected 8, got %v", out)
	}
}

func TestDataDivByZeroErrors(t *testing.T) {
	d := NewData()
	if _, err := d.Dispatch(&command.Record{Method: "set", Path: path("n"), Args: []value.Value{value.Num(1)}}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(&command.Record{Method: "div", Path: path("n"), Args: []value.Value{value.Num(0)}}); err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestDataMergeDeep(t *testing.T) {
	d := NewData()
	base := value.NewDict()
	base.Set("a", value.Num(1))
	inner := value.NewDict()
	inner.Set("x", value.Num(1))
	base.Set("inner", inner)
	if _, err := d.Dispatch(&command.Record{Method: "set", Args: []value.Value{base}}); err != nil {
		t.Fatal(err)
	}

	patch := value.NewDict()
	patchInner := value.NewDict()
	patchInner.Set("y", value.Num(2))
	patch.Set("inner", patchInner)

	if _, err := d.Dispatch(&command.Record{Method: "deepMerge", Args: []value.Value{patch}}); err != nil {
		t.Fatal(err)
	}
	root := d.Value().(*value.Dict)
	innerOut, _ := root.Get("inner")
	id := innerOut.(*value.Dict)
	if _, ok := id.Get("x"); !ok {
		t.Fatal("expected x to survive deep merge")
	}
	if _, ok := id.Get("y"); !ok {
		t.Fatal("expected y to be merged in")
	}
}

func TestDataStringMethods(t *testing.T) {
	d := NewData()
	if _, err := d.Dispatch(&command.Record{Method: "set", Path: path("s"), Args: []value.Value{value.Str("Hello")}}); err != nil {
		t.Fatal(err)
	}
	out, err := d.Dispatch(&command.Record{Method: "toUpperCase", Path: path("s")})
	if err != nil {
		t.Fatal(err)
	}
	if out.(value.Str) != "HELLO" {
		t.Fatalf("expected HELLO, got %v", out)
	}
}

func TestDataArraySort(t *testing.T) {
	d := NewData()
	list := value.NewList(value.Num(3), value.Num(1), value.Num(2))
	if _, err := d.Dispatch(&command.Record{Method: "set", Path: path("items"), Args: []value.Value{list}}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(&command.Record{Method: "sort", Path: path("items")}); err != nil {
		t.Fatal(err)
	}
	out := d.Value().(*value.Dict)
	items, _ := out.Get("items")
	l := items.(*value.List)
	if l.Items[0].(value.Num) != 1 || l.Items[2].(value.Num) != 3 {
		t.Fatalf("expected sorted list, got %v", l)
	}
}

func TestDataDeleteField(t *testing.T) {
	d := NewData()
	if _, err := d.Dispatch(&command.Record{Method: "set", Path: path("a"), Args: []value.Value{value.Num(1)}}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(&command.Record{Method: "delete", Path: path("a")}); err != nil {
		t.Fatal(err)
	}
	root := d.Value().(*value.Dict)
	if _, ok := root.Get("a"); ok {
		t.Fatal("expected field a to be deleted")
	}
}

func TestDataSnapshotRestore(t *testing.T) {
	d := NewData()
	if _, err := d.Dispatch(&command.Record{Method: "set", Path: path("a"), Args: []value.Value{value.Num(1)}}); err != nil {
		t.Fatal(err)
	}
	snap := d.Snapshot()
	if _, err := d.Dispatch(&command.Record{Method: "set", Path: path("a"), Args: []value.Value{value.Num(99)}}); err != nil {
		t.Fatal(err)
	}
	d.Restore(snap)
	root := d.Value().(*value.Dict)
	a, _ := root.Get("a")
	if a.(value.Num) != 1 {
		t.Fatalf("expected restored value 1, got %v", a)
	}
}
