// Package parser turns a token stream from internal/lexer into an
// internal/ast.Program (§4.10). Grammar details (exact keyword set,
// whitespace-control dashes) follow spec.md §6 "Syntactic surface"; the
// recursive-descent shape with one method per precedence level is
// standard and not adapted from any particular example file.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cascadalang/cascada/internal/ast"
	"github.com/cascadalang/cascada/internal/lexer"
)

type Parser struct {
	path string
	lx   *lexer.Lexer
	tok  lexer.Token
}

// Parse lexes and parses src (a template, or a script already
// transpiled to template source by internal/script) into a Program.
func Parse(path, src string) (*ast.Program, error) {
	p := &Parser{path: path, lx: lexer.New(path, src)}
	if err := p.next(); err != nil {
		return nil, err
	}
	body, err := p.parseNodes(nil)
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != lexer.EOF {
		return nil, p.errorf("unexpected trailing token %q", p.tok.Value)
	}
	return &ast.Program{Positioned: ast.At(ast.Pos{Path: path, Line: 1, Column: 1}), Body: body}, nil
}

func (p *Parser) next() error {
	for {
		t, err := p.lx.Next()
		if err != nil {
			return err
		}
		if t.Kind == lexer.Comment {
			continue
		}
		p.tok = t
		return nil
	}
}

func (p *Parser) pos() ast.Pos {
	return ast.Pos{Path: p.path, Line: p.tok.Line, Column: p.tok.Column}
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%s:%d:%d: %s", p.path, p.tok.Line, p.tok.Column, fmt.Sprintf(format, args...))
}

// endKeywords maps each opening block keyword to the set of keywords
// that terminate (or continue, for if/for) its body.
var endKeywords = map[string]map[string]bool{
	"if":      {"elif": true, "else": true, "endif": true},
	"for":     {"else": true, "endfor": true},
	"while":   {"endwhile": true},
	"macro":   {"endmacro": true},
	"block":   {"endblock": true},
	"guard":   {"endguard": true},
	"capture": {"endcapture": true},
	"try":     {"except": true, "resume": true, "endtry": true},
}

func (p *Parser) parseNodes(stopAt map[string]bool) ([]ast.Node, error) {
	var out []ast.Node
	for {
		switch p.tok.Kind {
		case lexer.EOF:
			return out, nil
		case lexer.Text:
			out = append(out, &ast.Text{Positioned: ast.At(p.pos()), Value: p.tok.Value})
			if err := p.next(); err != nil {
				return nil, err
			}
		case lexer.VarOpen:
			n, err := p.parseOutput()
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		case lexer.TagOpen:
			kw, ok := p.peekTagKeyword()
			if ok && stopAt[kw] {
				return out, nil
			}
			n, err := p.parseTag()
			if err != nil {
				return nil, err
			}
			if n != nil {
				out = append(out, n)
			}
		default:
			return nil, p.errorf("unexpected token %q", p.tok.Value)
		}
	}
}

// peekTagKeyword inspects the keyword following {% without permanently
// consuming the tag; it restores lexer and token state afterward.
func (p *Parser) peekTagKeyword() (string, bool) {
	save := *p.lx
	savedTok := p.tok
	defer func() { *p.lx = save; p.tok = savedTok }()
	t, err := p.lx.Next()
	if err != nil || t.Kind != lexer.Keyword {
		return "", false
	}
	return t.Value, true
}

func (p *Parser) expectTagClose() error {
	for p.tok.Kind != lexer.TagClose {
		if p.tok.Kind == lexer.EOF {
			return p.errorf("expected %%}")
		}
		if err := p.next(); err != nil {
			return err
		}
	}
	return p.next()
}

func (p *Parser) parseOutput() (ast.Node, error) {
	pos := p.pos()
	if err := p.next(); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != lexer.VarClose {
		return nil, p.errorf("expected }}")
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return &ast.Output{Positioned: ast.At(pos), Expr: expr}, nil
}

func (p *Parser) parseTag() (ast.Node, error) {
	pos := p.pos()
	if err := p.next(); err != nil { // consume {%
		return nil, err
	}
	if p.tok.Kind == lexer.Punct && strings.HasPrefix(p.tok.Value, "@") {
		return p.parseCommandStatement(pos)
	}
	if p.tok.Kind != lexer.Keyword {
		return nil, p.errorf("expected a block keyword, got %q", p.tok.Value)
	}
	kw := p.tok.Value
	switch kw {
	case "if":
		return p.parseIf(pos)
	case "for":
		return p.parseFor(pos)
	case "while":
		return p.parseWhile(pos)
	case "set":
		return p.parseSet(pos)
	case "do":
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectTagClose(); err != nil {
			return nil, err
		}
		return &ast.Do{Positioned: ast.At(pos), Expr: expr}, nil
	case "macro":
		return p.parseMacro(pos)
	case "block":
		return p.parseBlock(pos)
	case "include":
		return p.parseInclude(pos)
	case "extends":
		return p.parseExtends(pos)
	case "guard":
		return p.parseGuard(pos)
	case "revert":
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expectTagClose(); err != nil {
			return nil, err
		}
		return &ast.Revert{Positioned: ast.At(pos)}, nil
	case "capture":
		return p.parseCapture(pos)
	case "raw", "verbatim":
		return p.parseRaw(pos, kw)
	case "try":
		return p.parseTry(pos)
	default:
		return nil, p.errorf("unexpected block keyword %q", kw)
	}
}

func (p *Parser) parseIf(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	node := &ast.If{Positioned: ast.At(pos), Cond: cond}
	node.Then, err = p.parseNodes(endKeywords["if"])
	if err != nil {
		return nil, err
	}
	for {
		kw, _ := p.peekTagKeyword()
		if kw == "elif" {
			if err := p.next(); err != nil { // {%
				return nil, err
			}
			if err := p.next(); err != nil { // elif
				return nil, err
			}
			econd, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectTagClose(); err != nil {
				return nil, err
			}
			body, err := p.parseNodes(endKeywords["if"])
			if err != nil {
				return nil, err
			}
			node.Elifs = append(node.Elifs, ast.ElifClause{Cond: econd, Body: body})
			continue
		}
		break
	}
	if kw, _ := p.peekTagKeyword(); kw == "else" {
		if err := p.consumeSimpleTag("else"); err != nil {
			return nil, err
		}
		node.Else, err = p.parseNodes(map[string]bool{"endif": true})
		if err != nil {
			return nil, err
		}
	}
	if err := p.consumeSimpleTag("endif"); err != nil {
		return nil, err
	}
	return node, nil
}

// consumeSimpleTag consumes `{% kw %}` where kw has no arguments.
func (p *Parser) consumeSimpleTag(kw string) error {
	if err := p.next(); err != nil { // {%
		return err
	}
	if p.tok.Value != kw {
		return p.errorf("expected %q, got %q", kw, p.tok.Value)
	}
	if err := p.next(); err != nil {
		return err
	}
	return p.expectTagClose()
}

func (p *Parser) parseFor(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.Kind != lexer.Ident {
		return nil, p.errorf("expected loop variable name")
	}
	first := p.tok.Value
	if err := p.next(); err != nil {
		return nil, err
	}
	node := &ast.For{Positioned: ast.At(pos)}
	if p.tok.Kind == lexer.Punct && p.tok.Value == "," {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Kind != lexer.Ident {
			return nil, p.errorf("expected second loop variable name")
		}
		node.KeyName = first
		node.ValueName = p.tok.Value
		if err := p.next(); err != nil {
			return nil, err
		}
	} else {
		node.ValueName = first
	}
	if p.tok.Kind != lexer.Keyword || p.tok.Value != "in" {
		return nil, p.errorf("expected 'in'")
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	node.Iter = iter
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	node.Body, err = p.parseNodes(endKeywords["for"])
	if err != nil {
		return nil, err
	}
	if kw, _ := p.peekTagKeyword(); kw == "else" {
		if err := p.consumeSimpleTag("else"); err != nil {
			return nil, err
		}
		node.Else, err = p.parseNodes(map[string]bool{"endfor": true})
		if err != nil {
			return nil, err
		}
	}
	if err := p.consumeSimpleTag("endfor"); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseWhile(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	body, err := p.parseNodes(endKeywords["while"])
	if err != nil {
		return nil, err
	}
	if err := p.consumeSimpleTag("endwhile"); err != nil {
		return nil, err
	}
	return &ast.While{Positioned: ast.At(pos), Cond: cond, Body: body}, nil
}

func (p *Parser) parseSet(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.Kind != lexer.Ident {
		return nil, p.errorf("expected variable name after 'set'")
	}
	name := p.tok.Value
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.Kind != lexer.Op || p.tok.Value != "=" {
		return nil, p.errorf("expected '=' in set statement")
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	return &ast.Set{Positioned: ast.At(pos), Name: name, Expr: expr}, nil
}

func (p *Parser) parseMacro(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.Kind != lexer.Ident {
		return nil, p.errorf("expected macro name")
	}
	name := p.tok.Value
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.Value != "(" {
		return nil, p.errorf("expected '(' after macro name")
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	var params []ast.Param
	for p.tok.Value != ")" {
		if p.tok.Kind != lexer.Ident {
			return nil, p.errorf("expected parameter name")
		}
		param := ast.Param{Name: p.tok.Value}
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Kind == lexer.Op && p.tok.Value == "=" {
			if err := p.next(); err != nil {
				return nil, err
			}
			def, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			param.Default = def
		}
		params = append(params, param)
		if p.tok.Value == "," {
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.next(); err != nil { // )
		return nil, err
	}
	focus := ""
	if p.tok.Value == ":" {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Kind != lexer.Ident {
			return nil, p.errorf("expected focus handler name after ':'")
		}
		focus = p.tok.Value
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	body, err := p.parseNodes(endKeywords["macro"])
	if err != nil {
		return nil, err
	}
	if err := p.consumeSimpleTag("endmacro"); err != nil {
		return nil, err
	}
	return &ast.Macro{Positioned: ast.At(pos), Name: name, Params: params, Focus: focus, Body: body}, nil
}

func (p *Parser) parseBlock(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.Kind != lexer.Ident {
		return nil, p.errorf("expected block name")
	}
	name := p.tok.Value
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	body, err := p.parseNodes(endKeywords["block"])
	if err != nil {
		return nil, err
	}
	if err := p.consumeSimpleTag("endblock"); err != nil {
		return nil, err
	}
	return &ast.Block{Positioned: ast.At(pos), Name: name, Body: body}, nil
}

func (p *Parser) parseInclude(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	name, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	ignore := false
	if p.tok.Kind == lexer.Keyword && p.tok.Value == "ignore" {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Value != "missing" {
			return nil, p.errorf("expected 'missing' after 'ignore'")
		}
		ignore = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	return &ast.Include{Positioned: ast.At(pos), Name: name, IgnoreMissing: ignore}, nil
}

func (p *Parser) parseExtends(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	name, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	return &ast.Extends{Positioned: ast.At(pos), Name: name}, nil
}

func (p *Parser) parseGuard(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	var selectors []string
	bare := false
	var vars []string
	for p.tok.Kind != lexer.TagClose {
		if p.tok.Kind == lexer.Punct && p.tok.Value == "@" {
			bare = true
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		if p.tok.Kind == lexer.Punct && strings.HasPrefix(p.tok.Value, "@") {
			selectors = append(selectors, strings.TrimPrefix(p.tok.Value, "@"))
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		if p.tok.Kind == lexer.Ident {
			vars = append(vars, p.tok.Value)
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		return nil, p.errorf("unexpected token %q in guard directive", p.tok.Value)
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	body, err := p.parseNodes(endKeywords["guard"])
	if err != nil {
		return nil, err
	}
	if err := p.consumeSimpleTag("endguard"); err != nil {
		return nil, err
	}
	return &ast.Guard{Positioned: ast.At(pos), Selectors: selectors, Bare: bare, Vars: vars, Body: body}, nil
}

func (p *Parser) parseCapture(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	focus := ""
	if p.tok.Value == ":" {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Kind != lexer.Ident {
			return nil, p.errorf("expected focus handler name after ':'")
		}
		focus = p.tok.Value
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	body, err := p.parseNodes(endKeywords["capture"])
	if err != nil {
		return nil, err
	}
	if err := p.consumeSimpleTag("endcapture"); err != nil {
		return nil, err
	}
	return &ast.Capture{Positioned: ast.At(pos), Focus: focus, Body: body}, nil
}

func (p *Parser) parseTry(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	body, err := p.parseNodes(endKeywords["try"])
	if err != nil {
		return nil, err
	}
	t := &ast.Try{Positioned: ast.At(pos), Body: body}
	if kw, _ := p.peekTagKeyword(); kw == "except" {
		if err := p.next(); err != nil { // {%
			return nil, err
		}
		if err := p.next(); err != nil { // except
			return nil, err
		}
		if p.tok.Kind == lexer.Ident {
			t.ErrVar = p.tok.Value
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		if err := p.expectTagClose(); err != nil {
			return nil, err
		}
		t.Except, err = p.parseNodes(endKeywords["try"])
		if err != nil {
			return nil, err
		}
	}
	if kw, _ := p.peekTagKeyword(); kw == "resume" {
		if err := p.consumeSimpleTag("resume"); err != nil {
			return nil, err
		}
		t.Resume, err = p.parseNodes(endKeywords["try"])
		if err != nil {
			return nil, err
		}
	}
	if err := p.consumeSimpleTag("endtry"); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) parseRaw(pos ast.Pos, kw string) (ast.Node, error) {
	endKw := "endraw"
	if kw == "verbatim" {
		endKw = "endverbatim"
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	var sb strings.Builder
	for {
		kw2, ok := p.peekTagKeyword()
		if ok && kw2 == endKw {
			break
		}
		if p.tok.Kind == lexer.EOF {
			return nil, p.errorf("unterminated %s block", kw)
		}
		if p.tok.Kind == lexer.Text {
			sb.WriteString(p.tok.Value)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.consumeSimpleTag(endKw); err != nil {
		return nil, err
	}
	return &ast.Text{Positioned: ast.At(pos), Value: sb.String()}, nil
}

// parseCommandStatement parses `@handler.path.method(args)` /
// `@handler.path.method = expr` as a statement (§4.5, §4.9.3).
func (p *Parser) parseCommandStatement(pos ast.Pos) (ast.Node, error) {
	cmd, err := p.parseCommandCore(pos)
	if err != nil {
		return nil, err
	}
	if p.tok.Kind == lexer.Op && p.tok.Value == "=" {
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cmd.Method = "set"
		cmd.Args = []ast.Node{expr}
	} else if isCompoundAssign(p.tok) {
		method := compoundMethod(p.tok.Value)
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cmd.Method = method
		cmd.Args = []ast.Node{expr}
	} else if p.tok.Kind == lexer.Op && (p.tok.Value == "++" || p.tok.Value == "--") {
		if p.tok.Value == "++" {
			cmd.Method = "inc"
		} else {
			cmd.Method = "dec"
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	cmd.IsStatement = true
	if err := p.expectTagClose(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func isCompoundAssign(t lexer.Token) bool {
	return t.Kind == lexer.Op && (t.Value == "+=" || t.Value == "-=" || t.Value == "*=" || t.Value == "/=")
}

func compoundMethod(op string) string {
	switch op {
	case "+=":
		return "add"
	case "-=":
		return "sub"
	case "*=":
		return "mul"
	case "/=":
		return "div"
	}
	return ""
}

// parseCommandCore parses `@handler.path.method(args)` up through the
// closing paren (or the bare path, for assignment forms), leaving the
// next significant token (`=`, a compound-assign op, or the tag close)
// unconsumed.
func (p *Parser) parseCommandCore(pos ast.Pos) (*ast.Command, error) {
	if p.tok.Kind != lexer.Punct || !strings.HasPrefix(p.tok.Value, "@") || p.tok.Value == "@" {
		return nil, p.errorf("expected handler name after '@'")
	}
	cmd := &ast.Command{Positioned: ast.At(pos), Handler: strings.TrimPrefix(p.tok.Value, "@")}
	if err := p.next(); err != nil {
		return nil, err
	}

	var steps []ast.PathStep
	lastWasMethod := ""
	for p.tok.Kind == lexer.Punct && (p.tok.Value == "." || p.tok.Value == "[") {
		if p.tok.Value == "." {
			if err := p.next(); err != nil {
				return nil, err
			}
			if p.tok.Kind != lexer.Ident {
				return nil, p.errorf("expected identifier after '.'")
			}
			name := p.tok.Value
			if err := p.next(); err != nil {
				return nil, err
			}
			// A trailing identifier immediately followed by '(' is the
			// method name, not a path step.
			if p.tok.Kind == lexer.Punct && p.tok.Value == "(" {
				lastWasMethod = name
				break
			}
			if p.tok.Kind == lexer.Punct && p.tok.Value == "!" {
				if err := p.next(); err != nil {
					return nil, err
				}
				if p.tok.Kind == lexer.Punct && p.tok.Value == "(" {
					// `obj.path.method!(...)`: name is the method,
					// locked keyed by (path, method) (§4.4).
					cmd.SeqLocked = true
					cmd.SeqKeyedByMethod = true
					lastWasMethod = name
					break
				}
				// `obj.a.b!.method(...)`: name is a path field, the
				// static path is locked regardless of method (§4.4).
				cmd.SeqLocked = true
				steps = append(steps, ast.PathStep{Field: name})
				continue
			}
			steps = append(steps, ast.PathStep{Field: name})
		} else { // '['
			if err := p.next(); err != nil {
				return nil, err
			}
			if p.tok.Kind == lexer.Punct && p.tok.Value == "]" {
				steps = append(steps, ast.PathStep{LastIdx: true})
				if err := p.next(); err != nil {
					return nil, err
				}
				continue
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.tok.Value != "]" {
				return nil, p.errorf("expected ']'")
			}
			if err := p.next(); err != nil {
				return nil, err
			}
			steps = append(steps, ast.PathStep{Dynamic: idx})
		}
	}

	if p.tok.Kind == lexer.Punct && p.tok.Value == "!" && lastWasMethod == "" {
		cmd.SeqLocked = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}

	cmd.Path = steps
	if lastWasMethod != "" {
		cmd.Method = lastWasMethod
		if p.tok.Value == "(" {
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			cmd.Args = args
		}
	} else if p.tok.Kind == lexer.Punct && p.tok.Value == "(" {
		// @text(expr) bare-call form: no method, args go straight to
		// the handler's _call.
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		cmd.Args = args
	}
	return cmd, nil
}

func (p *Parser) parseArgList() ([]ast.Node, error) {
	if err := p.next(); err != nil { // consume '('
		return nil, err
	}
	var args []ast.Node
	for p.tok.Value != ")" {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.tok.Value == "," {
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.next(); err != nil { // ')'
		return nil, err
	}
	return args, nil
}

// ---- Expression grammar: or > and > not > comparison > additive >
// multiplicative > unary > postfix > primary ----

func (p *Parser) parseExpr() (ast.Node, error) { return p.parseOr() }

func (p *Parser) parseOr() (ast.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Keyword && p.tok.Value == "or" {
		pos := p.pos()
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Positioned: ast.At(pos), Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Keyword && p.tok.Value == "and" {
		pos := p.pos()
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Positioned: ast.At(pos), Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Node, error) {
	if p.tok.Kind == lexer.Keyword && p.tok.Value == "not" {
		pos := p.pos()
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Positioned: ast.At(pos), Op: "not", Expr: expr}, nil
	}
	return p.parseComparison()
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *Parser) parseComparison() (ast.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for (p.tok.Kind == lexer.Op && compareOps[p.tok.Value]) || (p.tok.Kind == lexer.Keyword && p.tok.Value == "is") {
		pos := p.pos()
		op := p.tok.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Positioned: ast.At(pos), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Op && (p.tok.Value == "+" || p.tok.Value == "-") {
		pos := p.pos()
		op := p.tok.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Positioned: ast.At(pos), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == lexer.Op && (p.tok.Value == "*" || p.tok.Value == "/" || p.tok.Value == "%" || p.tok.Value == "//") {
		pos := p.pos()
		op := p.tok.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Positioned: ast.At(pos), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Node, error) {
	if p.tok.Kind == lexer.Op && p.tok.Value == "-" {
		pos := p.pos()
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Positioned: ast.At(pos), Op: "-", Expr: expr}, nil
	}
	return p.parsePostfix()
}

// parseTernary is used for default-value expressions in macro params,
// kept simple (no `if`/`else` conditional expression form) since it is
// not otherwise exercised by spec.md.
func (p *Parser) parseTernary() (ast.Node, error) { return p.parseExpr() }

// dottedPathString renders n as "a.b.c" when it is a root Symbol followed
// by a chain of `.name` GetAttr steps, the shape a `!` must decorate. It is
// best-effort: a non-static chain (Index, CallExpr) yields an empty string,
// which the compiler's own staticPath check later rejects with a proper
// error — this helper never needs to fail parsing itself.
func dottedPathString(n ast.Node) string {
	var parts []string
	for {
		switch t := n.(type) {
		case *ast.Symbol:
			parts = append([]string{t.Name}, parts...)
			out := parts[0]
			for _, p := range parts[1:] {
				out += "." + p
			}
			return out
		case *ast.GetAttr:
			parts = append([]string{t.Name}, parts...)
			n = t.Target
		default:
			return ""
		}
	}
}

func (p *Parser) parsePostfix() (ast.Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	// pendingSeqLock records a path-keyed `!` seen earlier in the chain
	// (e.g. `obj.a.b!.method()`) until the call it decorates is built.
	// pendingSeqLockPath is the dotted path captured at the point the `!`
	// appeared, before any further `.rest.method` steps are layered on.
	pendingSeqLock := false
	pendingSeqLockPath := ""
	for {
		// A `!` pending from an earlier step in the chain must resolve
		// into the call it decorates before any token other than `.`
		// (continuing the static path) or `(` (building the call) is
		// consumed — a bare property read or a second `!` are both
		// compile errors (§4.4: "at most one '!' per call site", "must
		// not be applied to a property read").
		if pendingSeqLock {
			switch {
			case p.tok.Kind == lexer.Punct && p.tok.Value == "!":
				return nil, p.errorf("at most one '!' is allowed per call site, found a second '!' after %q", pendingSeqLockPath)
			case p.tok.Kind == lexer.Punct && (p.tok.Value == "." || p.tok.Value == "("):
				// continues the chain or builds the call; handled below
			default:
				return nil, p.errorf("'!' must decorate a call, not a bare property read (%q)", pendingSeqLockPath)
			}
		}
		switch {
		case p.tok.Kind == lexer.Punct && p.tok.Value == "!":
			path := dottedPathString(expr)
			if err := p.next(); err != nil {
				return nil, err
			}
			if p.tok.Kind == lexer.Punct && p.tok.Value == "(" {
				// Method-keyed: `expr!(args)` — the `!` sits right
				// before the argument list of the method being called.
				pos := p.pos()
				args, err := p.parseArgList()
				if err != nil {
					return nil, err
				}
				expr = &ast.CallExpr{Positioned: ast.At(pos), Callee: expr, Args: args, SeqLocked: true, SeqKeyedByMethod: true, SeqLockPath: path}
			} else {
				// Path-keyed: `expr!.rest.method(args)` — the lock
				// decorates whatever call eventually terminates the
				// chain, keyed by the full static path, not by method.
				pendingSeqLock = true
				pendingSeqLockPath = path
			}
		case p.tok.Kind == lexer.Punct && p.tok.Value == ".":
			pos := p.pos()
			if err := p.next(); err != nil {
				return nil, err
			}
			if p.tok.Kind != lexer.Ident {
				return nil, p.errorf("expected identifier after '.'")
			}
			name := p.tok.Value
			if err := p.next(); err != nil {
				return nil, err
			}
			expr = &ast.GetAttr{Positioned: ast.At(pos), Target: expr, Name: name}
		case p.tok.Kind == lexer.Punct && p.tok.Value == "[":
			pos := p.pos()
			if err := p.next(); err != nil {
				return nil, err
			}
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.tok.Value != "]" {
				return nil, p.errorf("expected ']'")
			}
			if err := p.next(); err != nil {
				return nil, err
			}
			expr = &ast.Index{Positioned: ast.At(pos), Target: expr, Key: key}
		case p.tok.Kind == lexer.Punct && p.tok.Value == "(":
			pos := p.pos()
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			call := &ast.CallExpr{Positioned: ast.At(pos), Callee: expr, Args: args}
			if pendingSeqLock {
				call.SeqLocked = true
				call.SeqLockPath = pendingSeqLockPath
				pendingSeqLock = false
				pendingSeqLockPath = ""
			}
			expr = call
		case p.tok.Kind == lexer.Op && p.tok.Value == "|":
			pos := p.pos()
			if err := p.next(); err != nil {
				return nil, err
			}
			if p.tok.Kind != lexer.Ident {
				return nil, p.errorf("expected filter name after '|'")
			}
			name := p.tok.Value
			if err := p.next(); err != nil {
				return nil, err
			}
			var args []ast.Node
			if p.tok.Kind == lexer.Punct && p.tok.Value == "(" {
				args, err = p.parseArgList()
				if err != nil {
					return nil, err
				}
			}
			callee := &ast.Symbol{Positioned: ast.At(pos), Name: name}
			expr = &ast.CallExpr{Positioned: ast.At(pos), Callee: callee, Args: append([]ast.Node{expr}, args...)}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	pos := p.pos()
	switch p.tok.Kind {
	case lexer.Number:
		n, err := strconv.ParseFloat(p.tok.Value, 64)
		if err != nil {
			return nil, p.errorf("invalid number literal %q", p.tok.Value)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Literal{Positioned: ast.At(pos), Kind: "num", Num: n}, nil
	case lexer.String:
		s := p.tok.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Literal{Positioned: ast.At(pos), Kind: "str", Str: s}, nil
	case lexer.Keyword:
		switch p.tok.Value {
		case "true", "false":
			b := p.tok.Value == "true"
			if err := p.next(); err != nil {
				return nil, err
			}
			return &ast.Literal{Positioned: ast.At(pos), Kind: "bool", Bool: b}, nil
		case "null":
			if err := p.next(); err != nil {
				return nil, err
			}
			return &ast.Literal{Positioned: ast.At(pos), Kind: "null"}, nil
		}
		return nil, p.errorf("unexpected keyword %q in expression", p.tok.Value)
	case lexer.Ident:
		name := p.tok.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Symbol{Positioned: ast.At(pos), Name: name}, nil
	case lexer.Punct:
		switch p.tok.Value {
		case "(":
			if err := p.next(); err != nil {
				return nil, err
			}
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.tok.Value != ")" {
				return nil, p.errorf("expected ')'")
			}
			if err := p.next(); err != nil {
				return nil, err
			}
			return expr, nil
		case "[":
			return p.parseListExpr(pos)
		case "{":
			return p.parseDictExpr(pos)
		}
	}
	return nil, p.errorf("unexpected token %q in expression", p.tok.Value)
}

func (p *Parser) parseListExpr(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil { // '['
		return nil, err
	}
	var items []ast.Node
	for p.tok.Value != "]" {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.tok.Value == "," {
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.next(); err != nil { // ']'
		return nil, err
	}
	return &ast.ListExpr{Positioned: ast.At(pos), Items: items}, nil
}

func (p *Parser) parseDictExpr(pos ast.Pos) (ast.Node, error) {
	if err := p.next(); err != nil { // '{'
		return nil, err
	}
	d := &ast.DictExpr{Positioned: ast.At(pos)}
	for p.tok.Value != "}" {
		var key string
		switch p.tok.Kind {
		case lexer.Ident, lexer.Keyword:
			key = p.tok.Value
		case lexer.String:
			key = p.tok.Value
		default:
			return nil, p.errorf("expected dict key")
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Value != ":" {
			return nil, p.errorf("expected ':' after dict key")
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		d.Keys = append(d.Keys, key)
		d.Values = append(d.Values, val)
		if p.tok.Value == "," {
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.next(); err != nil { // '}'
		return nil, err
	}
	return d, nil
}
