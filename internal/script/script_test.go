package script

import "testing"

func TestTranspilesPrintAndSet(t *testing.T) {
	out, err := Transpile("set x = 1\nprint x\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "{% set x = 1 %}\n{{ x }}\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestTranspilesImplicitDo(t *testing.T) {
	out, err := Transpile("items.push(1)\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "{% do items.push(1) %}\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestTranspilesCommandLine(t *testing.T) {
	out, err := Transpile("@data.count.inc()\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "{% @data.count.inc() %}\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestTranspilesIfElseBlock(t *testing.T) {
	src := "if ready\n  print \"go\"\nelse\n  print \"wait\"\nendif\n"
	out, err := Transpile(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "{% if ready %}\n{{ \"go\" }}\n{% else %}\n{{ \"wait\" }}\n{% endif %}\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestRejectsMismatchedBlockEnd(t *testing.T) {
	_, err := Transpile("if x\nendfor\n")
	if err == nil {
		t.Fatal("expected a mismatched-block error")
	}
}

func TestRejectsMiddleKeywordOutsideParent(t *testing.T) {
	_, err := Transpile("for x in items\nexcept e\nendfor\n")
	if err == nil {
		t.Fatal("expected 'except' rejected outside a try block")
	}
}

func TestRejectsUnterminatedBlock(t *testing.T) {
	_, err := Transpile("if x\nprint x\n")
	if err == nil {
		t.Fatal("expected an unterminated-block error")
	}
}

func TestJoinsTrailingOperatorContinuation(t *testing.T) {
	out, err := Transpile("set total = 1 +\n  2\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "{% set total = 1 + 2 %}\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestJoinsUnclosedParenContinuation(t *testing.T) {
	out, err := Transpile("do fn(1,\n  2)\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "{% do fn(1, 2) %}\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestIgnoresCommentLines(t *testing.T) {
	out, err := Transpile("# a note\nprint 1\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "\n{{ 1 }}\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}
