package lexer

import "testing"

func collect(t *testing.T, src string) []Token {
	t.Helper()
	lx := New("test", src)
	var toks []Token
	for {
		tok, err := lx.Next()
		if err != nil {
			t.Fatalf("lex error: %v", err)
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks
		}
	}
}

func TestLexesTextAroundTags(t *testing.T) {
	toks := collect(t, "hi {{ name }} bye")
	kinds := []Kind{Text, VarOpen, Ident, VarClose, Text, EOF}
	if len(toks) != len(kinds) {
		t.Fatalf("expected %d tokens, got %d: %+v", len(kinds), len(toks), toks)
	}
	for i, k := range kinds {
		if toks[i].Kind != k {
			t.Fatalf("token %d: expected kind %v, got %v (%q)", i, k, toks[i].Kind, toks[i].Value)
		}
	}
	if toks[2].Value != "name" {
		t.Fatalf("expected ident %q, got %q", "name", toks[2].Value)
	}
}

func TestLexesCommentAsOpaque(t *testing.T) {
	toks := collect(t, "a{# note #}b")
	if toks[0].Kind != Text || toks[0].Value != "a" {
		t.Fatalf("unexpected first token: %+v", toks[0])
	}
	if toks[1].Kind != Comment {
		t.Fatalf("expected comment token, got %+v", toks[1])
	}
	if toks[2].Kind != Text || toks[2].Value != "b" {
		t.Fatalf("unexpected trailing text: %+v", toks[2])
	}
}

func TestLexesAtHandlerAsOneToken(t *testing.T) {
	toks := collect(t, "{% @data.count(1) %}")
	// TagOpen, Punct(@data), Punct(.), Ident(count), Punct((), Number(1), Punct()), TagClose, EOF
	if toks[1].Kind != Punct || toks[1].Value != "@data" {
		t.Fatalf("expected combined @data token, got %+v", toks[1])
	}
}

func TestLexesBareAtAsPunct(t *testing.T) {
	toks := collect(t, "{% guard @ %}")
	found := false
	for _, tok := range toks {
		if tok.Kind == Punct && tok.Value == "@" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a bare '@' punct token, got %+v", toks)
	}
}

func TestLexesMultiCharOperators(t *testing.T) {
	toks := collect(t, "{{ a += 1 }}")
	var ops []string
	for _, tok := range toks {
		if tok.Kind == Op {
			ops = append(ops, tok.Value)
		}
	}
	if len(ops) != 1 || ops[0] != "+=" {
		t.Fatalf("expected single '+=' op token, got %v", ops)
	}
}

func TestLexesStringLiteral(t *testing.T) {
	toks := collect(t, `{{ "hello world" }}`)
	if toks[1].Kind != String || toks[1].Value != "hello world" {
		t.Fatalf("unexpected string token: %+v", toks[1])
	}
}

func TestLexesNumberLiteral(t *testing.T) {
	toks := collect(t, "{{ 3.14 }}")
	if toks[1].Kind != Number || toks[1].Value != "3.14" {
		t.Fatalf("unexpected number token: %+v", toks[1])
	}
}

func TestKeywordRecognition(t *testing.T) {
	toks := collect(t, "{% if x %}")
	if toks[1].Kind != Keyword || toks[1].Value != "if" {
		t.Fatalf("expected 'if' keyword, got %+v", toks[1])
	}
}

func TestUnterminatedStringErrors(t *testing.T) {
	lx := New("test", `{{ "oops }}`)
	for {
		tok, err := lx.Next()
		if err != nil {
			return
		}
		if tok.Kind == EOF {
			t.Fatal("expected an unterminated-string error")
		}
	}
}
