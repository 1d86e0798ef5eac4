// Package compiler lowers a parsed internal/ast.Program into the form
// internal/runtime executes, performing the compile-time validation
// §4.9/§7 require: static-path checking for `!`, and the guard block
// checks of §4.6 (duplicate selectors and bare-`@`-plus-specific are
// checked here via guard.ValidateSelectors; "declared in an outer
// scope" and "never modified inside the block" are this package's own
// checks, since they need a lexical view of the whole tree rather than
// just the guard tag's own tokens).
//
// Grounded on the teacher's `Derive1..DeriveN` generated-function family
// (executor_generated.go): one function per AST node kind, each doing a
// small fixed piece of work and recursing into children, the same shape
// this package's walk/validate functions use. Unlike the teacher, no
// code is generated — the node kinds are fixed at compile time of the
// engine itself, so the "one function per kind" structure is written by
// hand rather than templated (`codegen/main.go`'s text/template
// generator has no analogue here for the same reason).
package compiler

import (
	"fmt"

	"github.com/cascadalang/cascada/internal/ast"
	"github.com/cascadalang/cascada/internal/guard"
)

// Compiled is the executable form internal/runtime consumes. The
// runtime is a tree-walking evaluator (§4.9: "does not mandate bytecode
// vs. tree-walker"), so compilation here is validation plus the AST
// itself — there is no separate bytecode representation.
type Compiled struct {
	Program *ast.Program
}

// Compile validates prog and returns its executable form, or the first
// compile-time error encountered (§7 "Compile" error kind: fatal).
func Compile(prog *ast.Program) (*Compiled, error) {
	c := &compileCtx{declared: map[string]bool{}}
	if err := c.walkBody(prog.Body); err != nil {
		return nil, err
	}
	return &Compiled{Program: prog}, nil
}

type compileCtx struct {
	declared map[string]bool
}

func (c *compileCtx) clone() *compileCtx {
	cp := &compileCtx{declared: make(map[string]bool, len(c.declared))}
	for k := range c.declared {
		cp.declared[k] = true
	}
	return cp
}

func (c *compileCtx) walkBody(body []ast.Node) error {
	for _, n := range body {
		if err := c.walkNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (c *compileCtx) walkNode(n ast.Node) error {
	switch t := n.(type) {
	case *ast.Text, *ast.Revert:
		return nil
	case *ast.Output:
		return c.walkExpr(t.Expr)
	case *ast.Set:
		if err := c.walkExpr(t.Expr); err != nil {
			return err
		}
		c.declared[t.Name] = true
		return nil
	case *ast.Do:
		return c.walkExpr(t.Expr)
	case *ast.If:
		if err := c.walkExpr(t.Cond); err != nil {
			return err
		}
		if err := c.clone().walkBody(t.Then); err != nil {
			return err
		}
		for _, e := range t.Elifs {
			if err := c.walkExpr(e.Cond); err != nil {
				return err
			}
			if err := c.clone().walkBody(e.Body); err != nil {
				return err
			}
		}
		return c.clone().walkBody(t.Else)
	case *ast.For:
		if err := c.walkExpr(t.Iter); err != nil {
			return err
		}
		inner := c.clone()
		if t.KeyName != "" {
			inner.declared[t.KeyName] = true
		}
		inner.declared[t.ValueName] = true
		if err := inner.walkBody(t.Body); err != nil {
			return err
		}
		return c.clone().walkBody(t.Else)
	case *ast.While:
		if err := c.walkExpr(t.Cond); err != nil {
			return err
		}
		return c.clone().walkBody(t.Body)
	case *ast.Macro:
		inner := c.clone()
		for _, param := range t.Params {
			inner.declared[param.Name] = true
			if param.Default != nil {
				if err := inner.walkExpr(param.Default); err != nil {
					return err
				}
			}
		}
		return inner.walkBody(t.Body)
	case *ast.Block:
		return c.clone().walkBody(t.Body)
	case *ast.Capture:
		return c.clone().walkBody(t.Body)
	case *ast.Include:
		return c.walkExpr(t.Name)
	case *ast.Extends:
		return c.walkExpr(t.Name)
	case *ast.Guard:
		if err := c.validateGuard(t); err != nil {
			return err
		}
		inner := c.clone()
		return inner.walkBody(t.Body)
	case *ast.Command:
		return c.validateCommand(t)
	case *ast.Try:
		if err := c.clone().walkBody(t.Body); err != nil {
			return err
		}
		inner := c.clone()
		if t.ErrVar != "" {
			inner.declared[t.ErrVar] = true
		}
		if err := inner.walkBody(t.Except); err != nil {
			return err
		}
		return c.clone().walkBody(t.Resume)
	}
	return fmt.Errorf("compiler: unhandled node type %T", n)
}

func (c *compileCtx) walkExpr(n ast.Node) error {
	switch t := n.(type) {
	case nil, *ast.Literal, *ast.Symbol:
		return nil
	case *ast.BinOp:
		if err := c.walkExpr(t.Left); err != nil {
			return err
		}
		return c.walkExpr(t.Right)
	case *ast.UnaryOp:
		return c.walkExpr(t.Expr)
	case *ast.GetAttr:
		return c.walkExpr(t.Target)
	case *ast.Index:
		if err := c.walkExpr(t.Target); err != nil {
			return err
		}
		return c.walkExpr(t.Key)
	case *ast.ListExpr:
		for _, it := range t.Items {
			if err := c.walkExpr(it); err != nil {
				return err
			}
		}
		return nil
	case *ast.DictExpr:
		for _, v := range t.Values {
			if err := c.walkExpr(v); err != nil {
				return err
			}
		}
		return nil
	case *ast.CallExpr:
		if err := c.walkExpr(t.Callee); err != nil {
			return err
		}
		for _, a := range t.Args {
			if err := c.walkExpr(a); err != nil {
				return err
			}
		}
		if t.SeqLocked {
			if !staticPath(t.Callee) {
				return fmt.Errorf("%s: '!' requires a fully static path, found a dynamic index or sub-call", posStr(t.Position()))
			}
		}
		return nil
	}
	return fmt.Errorf("compiler: unhandled expression type %T", n)
}

// staticPath reports whether n is built entirely from a root Symbol and
// a chain of `.name` GetAttr steps — no Index, no nested CallExpr — the
// shape §4.4 requires of anything a `!` decorates.
func staticPath(n ast.Node) bool {
	for {
		switch t := n.(type) {
		case *ast.Symbol:
			return true
		case *ast.GetAttr:
			n = t.Target
		default:
			return false
		}
	}
}

// validateCommand enforces §4.4's static-path constraint: a `!`-marked
// call must sit on a fully static path (no dynamic index) and must not
// decorate a property read (Commands are always calls, so this only
// checks dynamic-path staticness).
func (c *compileCtx) validateCommand(cmd *ast.Command) error {
	for _, arg := range cmd.Args {
		if err := c.walkExpr(arg); err != nil {
			return err
		}
	}
	if !cmd.SeqLocked {
		return nil
	}
	for _, step := range cmd.Path {
		if step.Dynamic != nil {
			return fmt.Errorf("%s: '!' requires a fully static path, found a dynamic index", posStr(cmd.Position()))
		}
	}
	return nil
}

// validateGuard implements every compile-time check of §4.6: duplicate
// selectors and bare-`@`-plus-specific (via guard.ValidateSelectors, so
// these are fatal at compile time even if the block is never entered
// at render time), plus the two checks that need lexical context
// beyond the guard tag's own tokens: every named guard variable must
// already be declared in an outer scope, and every named guard
// variable must be modified somewhere inside the block.
func (c *compileCtx) validateGuard(g *ast.Guard) error {
	if err := guard.ValidateSelectors(g.Selectors, g.Bare); err != nil {
		return fmt.Errorf("%s: %w", posStr(g.Position()), err)
	}
	for _, v := range g.Vars {
		if !c.declared[v] {
			return fmt.Errorf("%s: guard variable %q is not declared in an outer scope", posStr(g.Position()), v)
		}
	}
	writes := map[string]bool{}
	collectWrites(g.Body, writes)
	for _, v := range g.Vars {
		if !writes[v] {
			return fmt.Errorf("%s: guard variable %q is never modified inside the block", posStr(g.Position()), v)
		}
	}
	return nil
}

// collectWrites gathers every name assigned by a `set` statement
// anywhere in body, recursing into nested control-flow blocks but not
// into nested macro bodies (a macro is its own scope, see §4.2).
func collectWrites(body []ast.Node, out map[string]bool) {
	for _, n := range body {
		switch t := n.(type) {
		case *ast.Set:
			out[t.Name] = true
		case *ast.If:
			collectWrites(t.Then, out)
			for _, e := range t.Elifs {
				collectWrites(e.Body, out)
			}
			collectWrites(t.Else, out)
		case *ast.For:
			collectWrites(t.Body, out)
			collectWrites(t.Else, out)
		case *ast.While:
			collectWrites(t.Body, out)
		case *ast.Guard:
			collectWrites(t.Body, out)
		case *ast.Capture:
			collectWrites(t.Body, out)
		case *ast.Block:
			collectWrites(t.Body, out)
		case *ast.Try:
			collectWrites(t.Body, out)
			collectWrites(t.Except, out)
			collectWrites(t.Resume, out)
		}
	}
}

func posStr(p ast.Pos) string {
	return fmt.Sprintf("%s:%d:%d", p.Path, p.Line, p.Column)
}
