package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cascadalang/cascada/internal/compiler"
	"github.com/cascadalang/cascada/internal/parser"
	"github.com/cascadalang/cascada/internal/value"
)

func mustRender(t *testing.T, env *Env, src string, ctxVars map[string]value.Value) *Result {
	t.Helper()
	prog, err := parser.Parse("test", src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	compiled, err := compiler.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	m, err := NewMachine(context.Background(), env)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	result, err := m.Render(compiled, ctxVars, "")
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	return result
}

func TestSetForRangeOutput(t *testing.T) {
	env := NewEnv()
	result := mustRender(t, env, `{% for i in range(3) %}{{ i }}-{% endfor %}`, nil)
	if got, want := result.Text(), "0-1-2-"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestDataSetAndMerge(t *testing.T) {
	env := NewEnv()
	result := mustRender(t, env, `
{% @data.user.name = "Alice" %}
{% @data.user.age = 30 %}
`, nil)
	d, ok := result.Values["data"].(*value.Dict)
	if !ok {
		t.Fatalf("data value is %T, want *value.Dict", result.Values["data"])
	}
	user, ok := d.Get("user")
	if !ok {
		t.Fatalf("expected a 'user' key in data")
	}
	userDict, ok := user.(*value.Dict)
	if !ok {
		t.Fatalf("user is %T, want *value.Dict", user)
	}
	if name, _ := userDict.Get("name"); name.String() != "Alice" {
		t.Fatalf("name = %v, want Alice", name)
	}
	if age, _ := userDict.Get("age"); age.String() != "30" {
		t.Fatalf("age = %v, want 30", age)
	}
}

func TestDataCompoundAssignmentChain(t *testing.T) {
	env := NewEnv()
	result := mustRender(t, env, `
{% @data.counter = 10 %}
{% @data.counter += 5 %}
{% @data.counter *= 2 %}
{% @data.counter -= 6 %}
{% @data.counter ++ %}
{% @data.counter /= 5 %}
`, nil)
	d := result.Values["data"].(*value.Dict)
	counter, ok := d.Get("counter")
	if !ok {
		t.Fatalf("expected a 'counter' key")
	}
	// (10 + 5) * 2 - 6 + 1 = 25, / 5 = 5
	if got, want := counter, value.Num(5); got != want {
		t.Fatalf("counter = %v, want %v", got, want)
	}
}

func TestGuardAbsorbsOutputPoison(t *testing.T) {
	env := NewEnv()
	env.Functions["error"] = &value.Func{Name: "error", Call: func(args []value.Value) (value.Value, error) {
		msg := "fail"
		if len(args) > 0 {
			msg = args[0].String()
		}
		return nil, fmt.Errorf("%s", msg)
	}}
	result := mustRender(t, env, `{% guard %}OK{{ error("fail") }}MORE{% endguard %}AFTER`, nil)
	if got, want := result.Text(), "AFTER"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestGuardRevertsDataOnFailure(t *testing.T) {
	env := NewEnv()
	env.Functions["error"] = &value.Func{Name: "error", Call: func(args []value.Value) (value.Value, error) {
		return nil, fmt.Errorf("boom")
	}}
	result := mustRender(t, env, `
{% @data.counter = 1 %}
{% guard @data %}
  {% @data.counter = 2 %}
  {{ error() }}
{% endguard %}
`, nil)
	d := result.Values["data"].(*value.Dict)
	counter, _ := d.Get("counter")
	if got, want := counter, value.Num(1); got != want {
		t.Fatalf("counter = %v, want %v (reverted)", got, want)
	}
}

func TestForElseRunsOnEmptyIterable(t *testing.T) {
	env := NewEnv()
	result := mustRender(t, env, `{% for item in items %}{{ item }}{% else %}empty{% endfor %}`,
		map[string]value.Value{"items": value.NewList()})
	if got, want := result.Text(), "empty"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}

	result = mustRender(t, env, `{% for item in items %}{{ item }}{% else %}empty{% endfor %}`,
		map[string]value.Value{"items": value.NewList(value.Str("a"), value.Str("b"))})
	if got, want := result.Text(), "ab"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestPoisonedOutputSurfacesAsRenderError(t *testing.T) {
	env := NewEnv()
	env.Functions["error"] = &value.Func{Name: "error", Call: func(args []value.Value) (value.Value, error) {
		return nil, fmt.Errorf("boom")
	}}
	prog, err := parser.Parse("test", `{{ error() }}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	compiled, err := compiler.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	m, err := NewMachine(context.Background(), env)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	if _, err := m.Render(compiled, nil, ""); err == nil {
		t.Fatal("expected a render error for an unguarded poisoned output")
	}
}

func TestMacroReturnsFocusedValueWithoutMergingToOuter(t *testing.T) {
	env := NewEnv()
	result := mustRender(t, env, `
{% macro greet(name):text %}Hello, {{ name }}!{% endmacro %}
{% @data.greeting = greet("World") %}
`, nil)
	d := result.Values["data"].(*value.Dict)
	greeting, ok := d.Get("greeting")
	if !ok {
		t.Fatalf("expected a 'greeting' key")
	}
	if got, want := greeting.String(), "Hello, World!"; got != want {
		t.Fatalf("greeting = %q, want %q", got, want)
	}
	for _, c := range result.Text() {
		if c != '\n' && c != ' ' && c != '\t' {
			t.Fatalf("Text() = %q, want only template whitespace (macro body must not merge into outer text)", result.Text())
		}
	}
}

func TestCaptureMergesTextBackIntoOuter(t *testing.T) {
	env := NewEnv()
	result := mustRender(t, env, `before-{% capture %}captured{% endcapture %}-after`, nil)
	if got, want := result.Text(), "before-captured-after"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestWriteCountPropagationAcrossLoopIterations(t *testing.T) {
	env := NewEnv()
	result := mustRender(t, env, `
{% set total = 0 %}
{% for item in items %}
  {% set total = total + item %}
{% endfor %}
{% @data.total = total %}
`, map[string]value.Value{"items": value.NewList(value.Num(1), value.Num(2), value.Num(3))})
	d := result.Values["data"].(*value.Dict)
	total, ok := d.Get("total")
	if !ok {
		t.Fatalf("expected a 'total' key")
	}
	if got, want := total, value.Num(6); got != want {
		t.Fatalf("total = %v, want %v", got, want)
	}
}

func TestSequenceLockSerializesAsyncCalls(t *testing.T) {
	env := NewEnv()
	var mu sync.Mutex
	var log []string
	sequencer := &value.Obj{
		Access: func(key string) (value.Value, bool) {
			if key != "runOp" {
				return nil, false
			}
			return &value.Func{Name: "runOp", Call: func(args []value.Value) (value.Value, error) {
				label := args[0].String()
				p := value.NewPending()
				go func() {
					mu.Lock()
					log = append(log, "start:"+label)
					log = append(log, "end:"+label)
					mu.Unlock()
					p.Resolve(value.Str(label))
				}()
				return p, nil
			}}, true
		},
	}
	env.Globals["sequencer"] = sequencer

	mustRender(t, env, `
{% do sequencer!.runOp("A") %}
{% do sequencer!.runOp("B") %}
`, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(log) != 4 {
		t.Fatalf("expected 4 log entries from 2 serialized calls, got %d: %v", len(log), log)
	}
	if log[0] != "start:A" || log[1] != "end:A" || log[2] != "start:B" || log[3] != "end:B" {
		t.Fatalf("calls did not serialize in program order: %v", log)
	}
}
