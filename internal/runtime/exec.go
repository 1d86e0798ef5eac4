package runtime

import (
	"github.com/cascadalang/cascada/internal/ast"
	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/compiler"
	"github.com/cascadalang/cascada/internal/frame"
	"github.com/cascadalang/cascada/internal/parser"
	"github.com/cascadalang/cascada/internal/seqlock"
	"github.com/cascadalang/cascada/internal/value"
)

// execBody runs every statement of body against f in order, stopping at
// the first Go-level error (a fatal per §7 — loader failures, context
// cancellation — as opposed to a Poison, which the statement executors
// absorb themselves).
func (m *Machine) execBody(f *frame.Frame, body []ast.Node) error {
	for _, n := range body {
		if err := m.execNode(f, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) execNode(f *frame.Frame, n ast.Node) error {
	switch t := n.(type) {
	case *ast.Text:
		return m.execText(f, t)
	case *ast.Output:
		return m.execOutput(f, t)
	case *ast.Set:
		return m.execSet(f, t)
	case *ast.Do:
		return m.execDo(f, t)
	case *ast.Command:
		return m.execCommand(f, t)
	case *ast.If:
		return m.execIf(f, t)
	case *ast.For:
		return m.execFor(f, t)
	case *ast.While:
		return m.execWhile(f, t)
	case *ast.Macro:
		return m.execMacroDecl(f, t)
	case *ast.Capture:
		return m.execCapture(f, t)
	case *ast.Block:
		return m.execBlock(f, t)
	case *ast.Include:
		return m.execInclude(f, t)
	case *ast.Guard:
		return m.execGuard(f, t)
	case *ast.Revert:
		return m.execRevert(f, t)
	case *ast.Try:
		return m.execTry(f, t)
	default:
		return nil
	}
}

// execText emits a literal run as a bare `text` command, sharing the
// text handler's buffer/seq machinery with Output (§4.5).
func (m *Machine) execText(f *frame.Frame, t *ast.Text) error {
	m.submitBareCommand("text", value.Str(t.Value))
	return nil
}

// execSet implements `set name = expr`: the expression's value is bound
// as evaluated, without blocking, even when it is still Pending (§4.8);
// readers compose through it or resolve it where they need a concrete
// value. Frame.Set already implements the "declare in the nearest
// CreateScope frame if undeclared" rule, so no explicit Declare is
// needed here.
func (m *Machine) execSet(f *frame.Frame, s *ast.Set) error {
	f.Set(s.Name, m.Eval(f, s.Expr))
	return nil
}

// execDo evaluates expr for its side effects (typically a call that
// issues commands internally via host code), discarding the result —
// any poison it carries is simply dropped, matching `do`'s "fire and
// forget" semantics (§4.9.3: distinct from an output, which surfaces its
// value).
func (m *Machine) execDo(f *frame.Frame, d *ast.Do) error {
	v := m.Eval(f, d.Expr)
	_, err := m.resolveDeep(v)
	return err
}

// execIf evaluates Cond (blocking, §4.8) and runs the first matching
// branch. A poisoned condition absorbs rather than aborts: every name
// set anywhere in Then/Elifs/Else is poisoned directly in f, following
// §4.8's "a poisoned condition poisons all names written in either arm".
func (m *Machine) execIf(f *frame.Frame, n *ast.If) error {
	cv := m.Eval(f, n.Cond)
	rv, err := m.resolveDeep(cv)
	if err != nil {
		return err
	}
	if p, ok := value.AsPoison(rv); ok {
		return m.poisonBranchNames(f, p, n.Then, n.Else, elifBodies(n.Elifs))
	}

	if value.Truthy(rv) {
		return m.execBody(f.Push(false), n.Then)
	}
	for _, clause := range n.Elifs {
		cv := m.Eval(f, clause.Cond)
		rv, err := m.resolveDeep(cv)
		if err != nil {
			return err
		}
		if p, ok := value.AsPoison(rv); ok {
			return m.poisonBranchNames(f, p, n.Then, n.Else, elifBodies(n.Elifs))
		}
		if value.Truthy(rv) {
			return m.execBody(f.Push(false), clause.Body)
		}
	}
	return m.execBody(f.Push(false), n.Else)
}

func elifBodies(clauses []ast.ElifClause) []ast.Node {
	var out []ast.Node
	for _, c := range clauses {
		out = append(out, c.Body...)
	}
	return out
}

// poisonBranchNames implements §4.8's poisoned-condition propagation: set
// every name the branches would have written to the condition's poison,
// directly in f, then flag the innermost guard/try region.
func (m *Machine) poisonBranchNames(f *frame.Frame, p *value.Poison, bodies ...[]ast.Node) error {
	seen := make(map[string]bool)
	for _, body := range bodies {
		for _, name := range collectSetNames(body) {
			if seen[name] {
				continue
			}
			seen[name] = true
			f.Set(name, p)
		}
	}
	m.markGuardFailure(p)
	return nil
}

// execWhile loops while Cond is truthy, re-evaluating it (blocking)
// before every iteration. A poisoned condition poisons the loop body's
// written names and stops the loop, per the same rule as If.
func (m *Machine) execWhile(f *frame.Frame, n *ast.While) error {
	for {
		cv := m.Eval(f, n.Cond)
		rv, err := m.resolveDeep(cv)
		if err != nil {
			return err
		}
		if p, ok := value.AsPoison(rv); ok {
			return m.poisonBranchNames(f, p, n.Body)
		}
		if !value.Truthy(rv) {
			return nil
		}
		if err := m.execBody(f.Push(false), n.Body); err != nil {
			return err
		}
	}
}

// execFor implements `for x in expr` / `for k, v in expr`, iterating a
// resolved List or Dict; a poisoned iterable poisons the body's written
// names and the (optional) `else` clause's, matching execIf/execWhile.
// Iterations run sequentially on this goroutine — the concurrency §5
// describes comes from Pending values host calls inside the body
// produce, not from fanning out goroutines per iteration.
func (m *Machine) execFor(f *frame.Frame, n *ast.For) error {
	iv := m.Eval(f, n.Iter)
	rv, err := m.resolveDeep(iv)
	if err != nil {
		return err
	}
	if p, ok := value.AsPoison(rv); ok {
		return m.poisonBranchNames(f, p, n.Body, n.Else)
	}

	ran := false
	switch t := rv.(type) {
	case *value.List:
		for i, item := range t.Items {
			ran = true
			child := f.Push(false)
			if n.KeyName != "" {
				child.Declare(n.KeyName)
				child.Set(n.KeyName, value.Num(i))
			}
			child.Declare(n.ValueName)
			child.Set(n.ValueName, item)
			if err := m.execIteration(child, n.Body); err != nil {
				return err
			}
		}
	case *value.Dict:
		for _, k := range t.Keys() {
			ran = true
			v, _ := t.Get(k)
			child := f.Push(false)
			if n.KeyName != "" {
				child.Declare(n.KeyName)
				child.Set(n.KeyName, value.Str(k))
				child.Declare(n.ValueName)
				child.Set(n.ValueName, v)
			} else {
				child.Declare(n.ValueName)
				child.Set(n.ValueName, value.Str(k))
			}
			if err := m.execIteration(child, n.Body); err != nil {
				return err
			}
		}
	default:
		return m.poisonBranchNames(f, poisonAt(n, "cannot iterate a %s", rv.Kind()), n.Body, n.Else)
	}

	if !ran && n.Else != nil {
		return m.execBody(f.Push(false), n.Else)
	}
	return nil
}

// execIteration runs one for-loop iteration as a tracked async closure
// (§4.3): child is pinned as the closure's SnapshotFrame so a future
// fan-out across iterations (this evaluator currently runs them on one
// goroutine) would read a stable pre-iteration view rather than racing
// with a sibling's writes, and the active-closure count lets a render
// detect — via m.asyncRoot.WaitAllClosures — when every outstanding
// iteration has actually finished. Cancellation is checked cooperatively
// between iterations rather than preemptively mid-body.
func (m *Machine) execIteration(child *frame.Frame, body []ast.Node) error {
	if m.ctx.Err() != nil {
		m.asyncRoot.Cancel()
		return m.ctx.Err()
	}
	closure := m.asyncRoot.EnterClosure(child)
	defer closure.LeaveClosure()
	return m.execBody(child, body)
}

// collectSetNames shallow-recurses into nested control-flow collecting
// every `set` target, the static write-set a poisoned condition needs to
// poison (§4.8). It does not descend into macro/capture bodies, which
// run in their own isolated frame and can't be reached by the outer
// poison anyway.
func collectSetNames(body []ast.Node) []string {
	var out []string
	var rec func(nodes []ast.Node)
	rec = func(nodes []ast.Node) {
		for _, n := range nodes {
			switch t := n.(type) {
			case *ast.Set:
				out = append(out, t.Name)
			case *ast.If:
				rec(t.Then)
				for _, c := range t.Elifs {
					rec(c.Body)
				}
				rec(t.Else)
			case *ast.For:
				rec(t.Body)
				rec(t.Else)
			case *ast.While:
				rec(t.Body)
			case *ast.Guard:
				rec(t.Body)
			case *ast.Try:
				rec(t.Body)
				rec(t.Except)
				rec(t.Resume)
			}
		}
	}
	rec(body)
	return out
}

// execMacroDecl binds name as a *value.Func into f at the point the
// declaration executes (§4.8: "bound at the point the statement runs",
// not hoisted).
func (m *Machine) execMacroDecl(f *frame.Frame, mc *ast.Macro) error {
	fn := &value.Func{Name: mc.Name, Call: func(args []value.Value) (value.Value, error) {
		return m.invokeMacro(f, mc, args)
	}}
	f.Declare(mc.Name)
	f.Set(mc.Name, fn)
	return nil
}

// invokeMacro runs mc's body in a fresh isolated sub-render (its own
// handlers/buffer/seqTable) against a child of the defining frame f, with
// args bound to params (falling back to each param's default, then
// Undef). Unlike capture, the result is never merged into the outer
// handlers — a macro is a pure function over a fresh frame, returning
// the focused value (or the full handler dict with no focus) (§4.8).
func (m *Machine) invokeMacro(f *frame.Frame, mc *ast.Macro, args []value.Value) (value.Value, error) {
	callFrame := f.Push(true)
	for i, p := range mc.Params {
		callFrame.Declare(p.Name)
		switch {
		case i < len(args):
			callFrame.Set(p.Name, args[i])
		case p.Default != nil:
			callFrame.Set(p.Name, m.Eval(callFrame, p.Default))
		default:
			callFrame.Set(p.Name, value.Undef{})
		}
	}

	result, err := m.runIsolated(callFrame, mc.Body)
	if err != nil {
		return nil, err
	}
	result.Focus = mc.Focus
	return result.Value(), nil
}

// execCapture runs Body in an isolated sub-render, then merges the
// resulting handler value(s) back into the corresponding outer
// handler(s) (§4.8). Unlike a macro, capture never returns a value to an
// enclosing expression — ast.Capture carries no binding and is only
// parsable in statement position — so its only effect is this merge.
//
// With a Focus directive, only that handler's value merges back; with
// none, every handler the isolated render produced merges back. For
// "text" the merge is a bare `@text(value)` re-emit; for "data" it's
// `merge` when the captured root is a Dict, else `set`; any other
// handler merges back only if it implements command.Caller (the same
// `_call` fallback a bare command would use), otherwise the captured
// value for that handler is simply dropped — there is no general
// handler-agnostic way to feed an arbitrary Value back into a handler
// that exposes no bare-call contract.
func (m *Machine) execCapture(f *frame.Frame, c *ast.Capture) error {
	child := f.Push(true)
	result, err := m.runIsolated(child, c.Body)
	if err != nil {
		return err
	}

	if c.Focus != "" {
		if v, ok := result.Values[c.Focus]; ok {
			m.mergeHandlerValue(c.Focus, v)
		}
		return nil
	}
	for name, v := range result.Values {
		m.mergeHandlerValue(name, v)
	}
	return nil
}

func (m *Machine) mergeHandlerValue(name string, v value.Value) {
	switch name {
	case "text":
		m.submitBareCommand(name, v)
	case "data":
		if _, ok := v.(*value.Dict); ok {
			m.submitMethodCommand(name, "merge", v)
		} else {
			m.submitMethodCommand(name, "set", v)
		}
	default:
		h, ok := m.handlers[name]
		if !ok {
			return
		}
		if _, ok := h.(command.Caller); ok {
			m.submitBareCommand(name, v)
		}
	}
}

func (m *Machine) submitBareCommand(handler string, v value.Value) {
	seq := m.cmdBuffer.NextSeq()
	rec := &command.Record{Handler: handler, Args: []value.Value{v}, Seq: seq}
	m.submitCommand(handler, rec, nil)
}

func (m *Machine) submitMethodCommand(handler, method string, v value.Value) {
	seq := m.cmdBuffer.NextSeq()
	rec := &command.Record{Handler: handler, Method: method, Args: []value.Value{v}, Seq: seq}
	m.submitCommand(handler, rec, nil)
}

// isolatedState is the portion of Machine an isolated sub-render (macro
// invocation, capture, or a `super()` block render) swaps out and later
// restores, so the sub-render owns its own handler instances, command
// buffer and sequence-lock table (§5, §4.8) without disturbing the
// enclosing render's.
type isolatedState struct {
	handlers      map[string]command.Handler
	cmdBuffer     *command.Buffer
	seqTable      *seqlock.Table
	handlerPoison map[string]*value.Poison
	outputPoison  *value.Poison
}

func (m *Machine) pushIsolatedRender() (*isolatedState, error) {
	saved := &isolatedState{
		handlers:      m.handlers,
		cmdBuffer:     m.cmdBuffer,
		seqTable:      m.seqTable,
		handlerPoison: m.handlerPoison,
		outputPoison:  m.outputPoison,
	}
	handlers, err := m.Env.Handlers.Instantiate()
	if err != nil {
		return nil, err
	}
	m.handlers = handlers
	m.cmdBuffer = command.NewBuffer()
	m.seqTable = seqlock.NewTable()
	m.handlerPoison = make(map[string]*value.Poison)
	m.outputPoison = nil
	return saved, nil
}

func (m *Machine) popIsolatedRender(saved *isolatedState) *Result {
	result := assembleResult(m.handlers, m.handlerPoison, "")
	m.handlers = saved.handlers
	m.cmdBuffer = saved.cmdBuffer
	m.seqTable = saved.seqTable
	m.handlerPoison = saved.handlerPoison
	m.outputPoison = saved.outputPoison
	return result
}

// runIsolated runs body against child inside a fresh isolated render,
// restoring the enclosing render's handlers/buffer/seqTable afterward
// regardless of outcome.
func (m *Machine) runIsolated(child *frame.Frame, body []ast.Node) (*Result, error) {
	saved, err := m.pushIsolatedRender()
	if err != nil {
		return nil, err
	}
	execErr := m.execBody(child, body)
	result := m.popIsolatedRender(saved)
	if execErr != nil {
		return nil, execErr
	}
	return result, nil
}

// execBlock runs n's body, unless the nearest enclosing `extends` pushed
// an override with the same name, in which case the override's body runs
// instead with a `super` function bound into a child frame that renders
// n's own (the parent's) body via the isolated-render machinery,
// focused on "text" (§4.8 "extends/block").
func (m *Machine) execBlock(f *frame.Frame, n *ast.Block) error {
	override := m.lookupBlockOverride(n.Name)
	if override == nil {
		return m.execBody(f.Push(true), n.Body)
	}

	child := f.Push(true)
	super := &value.Func{Name: "super", Call: func(args []value.Value) (value.Value, error) {
		result, err := m.runIsolated(f.Push(true), n.Body)
		if err != nil {
			return nil, err
		}
		result.Focus = "text"
		return result.Value(), nil
	}}
	child.Declare("super")
	child.Set("super", super)
	return m.execBody(child, override.Body)
}

func (m *Machine) lookupBlockOverride(name string) *ast.Block {
	for i := len(m.blockOverrides) - 1; i >= 0; i-- {
		if b, ok := m.blockOverrides[i][name]; ok {
			return b
		}
	}
	return nil
}

// execExtends loads, parses and compiles the parent template named by
// ext.Name and runs its body instead of the child's, with rest's
// top-level `block` nodes pushed as the override map execBlock consults
// (§4.8). Only a single level of inheritance is supported: a parent that
// itself extends another template executes its own Extends node as an
// ordinary (nested) one, which recurses correctly through this same
// function — it is "single-level" only in the sense that no special
// multi-level override-chain bookkeeping exists beyond the plain stack
// blockOverrides already is.
func (m *Machine) execExtends(f *frame.Frame, ext *ast.Extends, rest []ast.Node) error {
	nameVal := m.Eval(f, ext.Name)
	rv, err := m.resolveDeep(nameVal)
	if err != nil {
		return err
	}
	name, ok := rv.(value.Str)
	if !ok {
		return poisonErrf(ext, "extends name must be a string, got %s", rv.Kind())
	}

	overrides := make(map[string]*ast.Block)
	for _, n := range rest {
		if b, ok := n.(*ast.Block); ok {
			overrides[b.Name] = b
		}
	}

	parentProg, err := m.loadProgram(string(name))
	if err != nil {
		return err
	}

	m.blockOverrides = append(m.blockOverrides, overrides)
	defer func() { m.blockOverrides = m.blockOverrides[:len(m.blockOverrides)-1] }()

	return m.execProgramBody(f, parentProg)
}

// execProgramBody dispatches a Program's body, itself handling a leading
// Extends node the same way Render's top-level entry does, so a parent
// template that extends a grandparent chains correctly.
func (m *Machine) execProgramBody(f *frame.Frame, prog *ast.Program) error {
	if len(prog.Body) > 0 {
		if ext, ok := prog.Body[0].(*ast.Extends); ok {
			return m.execExtends(f, ext, prog.Body[1:])
		}
	}
	return m.execBody(f, prog.Body)
}

func (m *Machine) loadProgram(name string) (*ast.Program, error) {
	if m.Env.Loader == nil {
		return nil, poisonErrf(nil, "extends %q: no loader configured", name)
	}
	src, path, err := m.Env.Loader.Load(name)
	if err != nil {
		return nil, err
	}
	prog, err := parser.Parse(path, src)
	if err != nil {
		return nil, err
	}
	if _, err := compiler.Compile(prog); err != nil {
		return nil, err
	}
	return prog, nil
}

// execInclude evaluates and resolves Include.Name (blocking), loads and
// compiles the named template, then executes its body inline in the
// current frame — a shared scope, not a new Push, matching typical
// template-engine include semantics (§4.8).
func (m *Machine) execInclude(f *frame.Frame, inc *ast.Include) error {
	nameVal := m.Eval(f, inc.Name)
	rv, err := m.resolveDeep(nameVal)
	if err != nil {
		if inc.IgnoreMissing {
			return nil
		}
		return err
	}
	name, ok := rv.(value.Str)
	if !ok {
		if inc.IgnoreMissing {
			return nil
		}
		return poisonErrf(inc, "include name must be a string, got %s", rv.Kind())
	}

	prog, err := m.loadProgram(string(name))
	if err != nil {
		if inc.IgnoreMissing {
			return nil
		}
		return err
	}
	return m.execBody(f, prog.Body)
}

// execGuard implements guard/endguard (§4.6): snapshot the selected
// handlers and guard variables, run the body, and on any poison seen
// inside (command, output, or a nested region's own failure) revert
// everything the snapshot covers. The block's own errors are absorbed
// entirely (§4.6.3) — not just for the reverted handlers — so any
// handlerPoison/outputPoison the body accumulated is rolled back to its
// pre-block state on failure, the same way the selected handlers'
// values are rolled back to their snapshot.
func (m *Machine) execGuard(f *frame.Frame, g *ast.Guard) error {
	gf, err := m.guards.Enter(g.Selectors, g.Bare, m.handlers, f, g.Vars)
	if err != nil {
		return err
	}
	m.guardStack = append(m.guardStack, gf)
	ff := m.pushGuardFail()

	prePoison := make(map[string]*value.Poison, len(m.handlerPoison))
	for k, v := range m.handlerPoison {
		prePoison[k] = v
	}
	preOutputPoison := m.outputPoison

	execErr := m.execBody(f.Push(false), g.Body)

	m.guardStack = m.guardStack[:len(m.guardStack)-1]
	m.popGuardFail()
	m.guards.Exit(gf, m.handlers, !ff.failed)

	if ff.failed {
		m.handlerPoison = prePoison
		m.outputPoison = preOutputPoison
	}

	return execErr
}

// execRevert applies the innermost entered guard frame's snapshot
// immediately, mid-body (§4.6.4); it is a no-op outside any guard block.
func (m *Machine) execRevert(f *frame.Frame, r *ast.Revert) error {
	if n := len(m.guardStack); n > 0 {
		m.guardStack[n-1].Revert(m.handlers)
	}
	return nil
}

// execTry implements try/except/resume (§4.8): Body runs under its own
// failFlag region (no handler/var snapshot — unlike guard, try is pure
// control flow plus error binding); if it poisons, the accumulated
// handlerPoison/outputPoison is rolled back to its pre-Body state (the
// same absorption execGuard does) so a caught error doesn't also surface
// as a final render error, ErrVar (when given) binds the merged poison,
// and Except runs instead. Resume, when present, always runs afterward
// regardless of branch, as a "finally" section.
func (m *Machine) execTry(f *frame.Frame, t *ast.Try) error {
	ff := m.pushGuardFail()

	prePoison := make(map[string]*value.Poison, len(m.handlerPoison))
	for k, v := range m.handlerPoison {
		prePoison[k] = v
	}
	preOutputPoison := m.outputPoison

	execErr := m.execBody(f.Push(false), t.Body)
	m.popGuardFail()
	if execErr != nil {
		return execErr
	}

	if ff.failed {
		m.handlerPoison = prePoison
		m.outputPoison = preOutputPoison
		exceptFrame := f.Push(false)
		if t.ErrVar != "" {
			var v value.Value = value.Null{}
			if ff.poison != nil {
				v = ff.poison
			}
			exceptFrame.Declare(t.ErrVar)
			exceptFrame.Set(t.ErrVar, v)
		}
		if err := m.execBody(exceptFrame, t.Except); err != nil {
			return err
		}
	}

	if t.Resume != nil {
		return m.execBody(f.Push(false), t.Resume)
	}
	return nil
}

func poisonErrf(n ast.Node, format string, args ...any) error {
	if n == nil {
		return value.Poisonf("", 0, 0, format, args...)
	}
	return poisonAt(n, format, args...)
}
