package extensions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/cascadalang/cascada/internal/runtime"
)

func TestLoggingExtensionWrapRunsNext(t *testing.T) {
	ext := NewLoggingExtension(slog.New(NewSilentHandler()))
	called := false
	result, err := ext.Wrap(context.Background(), func() (*runtime.Result, error) {
		called = true
		return &runtime.Result{}, nil
	})
	if !called {
		t.Fatal("Wrap did not invoke next")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected a non-nil result")
	}
}

func TestGraphDebugExtensionLogsOnRenderEnd(t *testing.T) {
	ext := NewGraphDebugExtension(NewSilentHandler())
	if err := ext.OnRenderEnd("render-1", nil, fmt.Errorf("boom")); err != nil {
		t.Fatalf("OnRenderEnd: %v", err)
	}
	if err := ext.OnRenderEnd("render-2", &runtime.Result{}, nil); err != nil {
		t.Fatalf("OnRenderEnd (success, should be a no-op): %v", err)
	}
}

func TestDumpMachineStateListsHandlersAndLocks(t *testing.T) {
	env := runtime.NewEnv()
	m, err := runtime.NewMachine(context.Background(), env)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	dump := DumpMachineState(m)
	if dump == "" {
		t.Fatal("expected a non-empty dump")
	}
	for _, want := range []string{"handlers", "data", "text", "sequence locks"} {
		if !strings.Contains(dump, want) {
			t.Fatalf("expected dump to mention %q, got:\n%s", want, dump)
		}
	}
}

func TestBaseExtensionDefaultsAreNoOps(t *testing.T) {
	var base BaseExtension
	if base.Order() != 100 {
		t.Fatalf("Order() = %d, want 100", base.Order())
	}
	if err := base.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := base.OnRenderStart("r"); err != nil {
		t.Fatalf("OnRenderStart: %v", err)
	}
	if err := base.OnRenderEnd("r", nil, nil); err != nil {
		t.Fatalf("OnRenderEnd: %v", err)
	}
	if err := base.OnRenderPanic("r", "x", nil); err != nil {
		t.Fatalf("OnRenderPanic: %v", err)
	}
	if err := base.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
}
