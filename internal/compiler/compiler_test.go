package compiler

import (
	"testing"

	"github.com/cascadalang/cascada/internal/parser"
)

func mustCompile(t *testing.T, src string) {
	t.Helper()
	prog, err := parser.Parse("test", src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("expected successful compile, got error: %v", err)
	}
}

func TestCompilesRepresentativeProgram(t *testing.T) {
	mustCompile(t, `
{% set total = 0 %}
{% for item in items %}
  {% set total = total + item.price %}
  {{ item.name }}
{% endfor %}
{% guard @data total %}
  {% set total = total + 1 %}
{% endguard %}
`)
}

func TestRejectsDynamicPathUnderSequenceLock(t *testing.T) {
	prog, err := parser.Parse("test", "{% @data.list[idx].tail!.method(1) %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := Compile(prog); err == nil {
		t.Fatal("expected a static-path compile error for a dynamic index under '!'")
	}
}

func TestRejectsSequenceLockOnDynamicCallChain(t *testing.T) {
	prog, err := parser.Parse("test", "{% do items[0]!.run() %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := Compile(prog); err == nil {
		t.Fatal("expected a static-path compile error for '!' on an indexed callee")
	}
}

func TestAcceptsStaticPathGeneralCallSequenceLock(t *testing.T) {
	mustCompile(t, `{% do sequencer!.runOp("A", 20) %}`)
}

func TestRejectsUndeclaredGuardVariable(t *testing.T) {
	prog, err := parser.Parse("test", "{% guard @data undeclared %}{% set undeclared = 1 %}{% endguard %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := Compile(prog); err == nil {
		t.Fatal("expected a compile error for a guard variable not declared in an outer scope")
	}
}

func TestRejectsUnmodifiedGuardVariable(t *testing.T) {
	prog, err := parser.Parse("test", "{% set total = 0 %}{% guard @data total %}{% set other = 1 %}{% endguard %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := Compile(prog); err == nil {
		t.Fatal("expected a compile error for a guard variable never modified inside the block")
	}
}

func TestRejectsDuplicateGuardSelectorAtCompileTime(t *testing.T) {
	prog, err := parser.Parse("test", "{% if false %}{% guard @data @data %}{% endguard %}{% endif %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := Compile(prog); err == nil {
		t.Fatal("expected a compile error for a duplicate guard selector, even inside a branch never taken at render time")
	}
}

func TestRejectsBareGuardCombinedWithSpecificSelector(t *testing.T) {
	prog, err := parser.Parse("test", "{% guard @ @data %}{% endguard %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := Compile(prog); err == nil {
		t.Fatal("expected a compile error for a bare '@' combined with a specific selector")
	}
}
