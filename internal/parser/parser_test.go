package parser

import (
	"testing"

	"github.com/cascadalang/cascada/internal/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse("test", src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return prog
}

func TestParsesTextAndOutput(t *testing.T) {
	prog := mustParse(t, "hi {{ name }}!")
	if len(prog.Body) != 3 {
		t.Fatalf("expected 3 nodes, got %d: %+v", len(prog.Body), prog.Body)
	}
	if _, ok := prog.Body[0].(*ast.Text); !ok {
		t.Fatalf("expected Text, got %T", prog.Body[0])
	}
	out, ok := prog.Body[1].(*ast.Output)
	if !ok {
		t.Fatalf("expected Output, got %T", prog.Body[1])
	}
	sym, ok := out.Expr.(*ast.Symbol)
	if !ok || sym.Name != "name" {
		t.Fatalf("expected Symbol(name), got %+v", out.Expr)
	}
}

func TestParsesIfElifElse(t *testing.T) {
	prog := mustParse(t, "{% if a %}A{% elif b %}B{% else %}C{% endif %}")
	n, ok := prog.Body[0].(*ast.If)
	if !ok {
		t.Fatalf("expected If, got %T", prog.Body[0])
	}
	if len(n.Elifs) != 1 {
		t.Fatalf("expected 1 elif, got %d", len(n.Elifs))
	}
	if len(n.Else) != 1 {
		t.Fatalf("expected else body, got %+v", n.Else)
	}
}

func TestParsesForWithKeyValueAndElse(t *testing.T) {
	prog := mustParse(t, "{% for k, v in items %}{{ v }}{% else %}empty{% endfor %}")
	n, ok := prog.Body[0].(*ast.For)
	if !ok {
		t.Fatalf("expected For, got %T", prog.Body[0])
	}
	if n.KeyName != "k" || n.ValueName != "v" {
		t.Fatalf("unexpected loop vars: %q %q", n.KeyName, n.ValueName)
	}
	if len(n.Else) != 1 {
		t.Fatalf("expected else body")
	}
}

func TestParsesSetAndPrecedence(t *testing.T) {
	prog := mustParse(t, "{% set total = 1 + 2 * 3 %}")
	n, ok := prog.Body[0].(*ast.Set)
	if !ok {
		t.Fatalf("expected Set, got %T", prog.Body[0])
	}
	bin, ok := n.Expr.(*ast.BinOp)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level '+' BinOp, got %+v", n.Expr)
	}
	right, ok := bin.Right.(*ast.BinOp)
	if !ok || right.Op != "*" {
		t.Fatalf("expected '*' nested on the right for precedence, got %+v", bin.Right)
	}
}

func TestParsesCommandStatementSet(t *testing.T) {
	prog := mustParse(t, `{% @data.user.name = "Alice" %}`)
	cmd, ok := prog.Body[0].(*ast.Command)
	if !ok {
		t.Fatalf("expected Command, got %T", prog.Body[0])
	}
	if cmd.Handler != "data" || cmd.Method != "set" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if len(cmd.Path) != 2 || cmd.Path[0].Field != "user" || cmd.Path[1].Field != "name" {
		t.Fatalf("unexpected path: %+v", cmd.Path)
	}
}

func TestParsesCommandMethodCall(t *testing.T) {
	prog := mustParse(t, "{% @data.list.push(1) %}")
	cmd, ok := prog.Body[0].(*ast.Command)
	if !ok {
		t.Fatalf("expected Command, got %T", prog.Body[0])
	}
	if cmd.Handler != "data" || cmd.Method != "push" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if len(cmd.Path) != 1 || cmd.Path[0].Field != "list" {
		t.Fatalf("unexpected path: %+v", cmd.Path)
	}
}

func TestParsesPathKeyedSequenceLock(t *testing.T) {
	prog := mustParse(t, "{% @data.a.b!.method(1) %}")
	cmd, ok := prog.Body[0].(*ast.Command)
	if !ok {
		t.Fatalf("expected Command, got %T", prog.Body[0])
	}
	if !cmd.SeqLocked || cmd.SeqKeyedByMethod {
		t.Fatalf("expected path-keyed lock, got SeqLocked=%v SeqKeyedByMethod=%v", cmd.SeqLocked, cmd.SeqKeyedByMethod)
	}
	if cmd.Method != "method" || len(cmd.Path) != 2 {
		t.Fatalf("expected path [a b] and method 'method', got %+v", cmd)
	}
}

func TestParsesMethodKeyedSequenceLock(t *testing.T) {
	prog := mustParse(t, "{% @data.a.b.method!(1) %}")
	cmd, ok := prog.Body[0].(*ast.Command)
	if !ok {
		t.Fatalf("expected Command, got %T", prog.Body[0])
	}
	if !cmd.SeqLocked || !cmd.SeqKeyedByMethod {
		t.Fatalf("expected method-keyed lock, got SeqLocked=%v SeqKeyedByMethod=%v", cmd.SeqLocked, cmd.SeqKeyedByMethod)
	}
}

func TestParsesGeneralCallSequenceLock(t *testing.T) {
	prog := mustParse(t, "{% do sequencer!.runOp(\"A\", 20) %}")
	do, ok := prog.Body[0].(*ast.Do)
	if !ok {
		t.Fatalf("expected Do, got %T", prog.Body[0])
	}
	call, ok := do.Expr.(*ast.CallExpr)
	if !ok {
		t.Fatalf("expected CallExpr, got %T", do.Expr)
	}
	if !call.SeqLocked || call.SeqKeyedByMethod {
		t.Fatalf("expected path-keyed lock on general call, got %+v", call)
	}
	getAttr, ok := call.Callee.(*ast.GetAttr)
	if !ok || getAttr.Name != "runOp" {
		t.Fatalf("expected callee GetAttr(runOp), got %+v", call.Callee)
	}
}

func TestRejectsSequenceLockOnBarePropertyRead(t *testing.T) {
	if _, err := Parse("test", "{{ obj.a! }}"); err == nil {
		t.Fatal("expected a parse error for '!' on a property read that never becomes a call")
	}
}

func TestRejectsSequenceLockOnPropertyReadBeforeFilter(t *testing.T) {
	if _, err := Parse("test", "{{ obj.a! | upper }}"); err == nil {
		t.Fatal("expected a parse error for '!' decorating a property read consumed by a filter, not a call")
	}
}

func TestRejectsDuplicateSequenceLockInSameChain(t *testing.T) {
	if _, err := Parse("test", "{% do obj.a!.b!.method() %}"); err == nil {
		t.Fatal("expected a parse error for a second '!' in the same call-site chain")
	}
}

func TestRejectsImmediateDoubleSequenceLock(t *testing.T) {
	if _, err := Parse("test", "{% do obj.a!!.method() %}"); err == nil {
		t.Fatal("expected a parse error for two consecutive '!' tokens")
	}
}

func TestParsesGuardWithSelectorsAndVars(t *testing.T) {
	prog := mustParse(t, "{% guard @data @text total %}{% set total = 2 %}{% endguard %}")
	g, ok := prog.Body[0].(*ast.Guard)
	if !ok {
		t.Fatalf("expected Guard, got %T", prog.Body[0])
	}
	if len(g.Selectors) != 2 || g.Selectors[0] != "data" || g.Selectors[1] != "text" {
		t.Fatalf("unexpected selectors: %+v", g.Selectors)
	}
	if len(g.Vars) != 1 || g.Vars[0] != "total" {
		t.Fatalf("unexpected vars: %+v", g.Vars)
	}
	if len(g.Body) != 1 {
		t.Fatalf("unexpected body: %+v", g.Body)
	}
}

func TestParsesBareGuardRevertMarker(t *testing.T) {
	prog := mustParse(t, "{% guard @ %}a{% revert %}b{% endguard %}")
	g, ok := prog.Body[0].(*ast.Guard)
	if !ok {
		t.Fatalf("expected Guard, got %T", prog.Body[0])
	}
	if !g.Bare {
		t.Fatalf("expected bare selector")
	}
	if len(g.Body) != 3 {
		t.Fatalf("expected text, revert, text nodes, got %+v", g.Body)
	}
	if _, ok := g.Body[1].(*ast.Revert); !ok {
		t.Fatalf("expected Revert marker, got %T", g.Body[1])
	}
}

func TestParsesFilterPipeAsCall(t *testing.T) {
	prog := mustParse(t, "{{ name | upper }}")
	out := prog.Body[0].(*ast.Output)
	call, ok := out.Expr.(*ast.CallExpr)
	if !ok {
		t.Fatalf("expected CallExpr for piped filter, got %T", out.Expr)
	}
	callee, ok := call.Callee.(*ast.Symbol)
	if !ok || callee.Name != "upper" {
		t.Fatalf("expected callee Symbol(upper), got %+v", call.Callee)
	}
	if len(call.Args) != 1 {
		t.Fatalf("expected piped value as sole arg, got %+v", call.Args)
	}
}

func TestParsesIndexAndListDict(t *testing.T) {
	prog := mustParse(t, "{% set x = [1, 2, items[0]] %}")
	n := prog.Body[0].(*ast.Set)
	list, ok := n.Expr.(*ast.ListExpr)
	if !ok || len(list.Items) != 3 {
		t.Fatalf("expected 3-item list, got %+v", n.Expr)
	}
	if _, ok := list.Items[2].(*ast.Index); !ok {
		t.Fatalf("expected Index expr as third item, got %T", list.Items[2])
	}
}

func TestRejectsUnexpectedTrailingToken(t *testing.T) {
	_, err := Parse("test", "{% endif %}")
	if err == nil {
		t.Fatal("expected a parse error for a stray endif")
	}
}
