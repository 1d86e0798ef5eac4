package runtime

import (
	"context"
	"fmt"

	"github.com/cascadalang/cascada/internal/asyncstate"
	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/compiler"
	"github.com/cascadalang/cascada/internal/frame"
	"github.com/cascadalang/cascada/internal/guard"
	"github.com/cascadalang/cascada/internal/seqlock"
	"github.com/cascadalang/cascada/internal/value"
	"github.com/cascadalang/cascada/internal/ast"
)

// Machine holds the state a single render owns exclusively: its frame
// tree, async-closure tree, sequence-lock table, command buffer and
// handler instances (§5 "Shared resources": "Each render owns its frame
// tree, async state, command buffer, and handler instances").
//
// Grounded on the teacher's per-scope ExecutionCtx: one struct threading
// the mutable pieces of a single evaluation through every node visitor,
// rather than passing them as a long parameter list.
type Machine struct {
	Env *Env
	ctx context.Context

	root      *frame.Frame
	asyncRoot *asyncstate.State
	seqTable  *seqlock.Table
	cmdBuffer *command.Buffer
	handlers  map[string]command.Handler
	guards    *guard.Engine

	// guardStack tracks the guard.Frame of every currently-entered guard
	// block, so a `revert` marker mid-body can find the innermost one.
	// try/except regions push a failFlag but no guard.Frame (they do no
	// handler-state rollback, see §4.6 vs ast.Try's doc comment).
	guardStack []*guard.Frame

	// guardFail is a stack parallel to the innermost entered guard/try
	// region: its top entry accumulates the poison (if any) seen by a
	// command or output anywhere in that region (§4.6.3), and backs
	// `except`'s error-variable binding for try/except.
	guardFail []*failFlag

	// handlerPoison holds the first-detected, deduplicated poison for any
	// handler a statement-style command poisoned; that handler's final
	// Value() is replaced with this Poison at assembly time rather than
	// whatever it had accumulated (§7 "a poisoned statement-style command
	// aborts the assembly of its handler").
	handlerPoison map[string]*value.Poison

	// outputPoison accumulates poisons surfaced by `{{ expr }}`/`print`
	// outputs, kept separate from handlerPoison: an output's failure
	// doesn't replace the text handler's accumulated buffer the way a
	// poisoned statement-style command replaces its handler's value
	// (§7) — it only needs to be surfaced in the final error.
	outputPoison *value.Poison

	// blockOverrides is a stack of child-template block maps, pushed by
	// execExtends and consulted by the Block visitor so `extends` only
	// needs to look one level up (§4.8 "extends/block").
	blockOverrides []map[string]*ast.Block
}

// NewMachine instantiates the per-render handler set from env and returns
// a Machine ready to run a single render.
func NewMachine(ctx context.Context, env *Env) (*Machine, error) {
	handlers, err := env.Handlers.Instantiate()
	if err != nil {
		return nil, err
	}
	root := frame.New()
	return &Machine{
		Env:           env,
		ctx:           ctx,
		root:          root,
		asyncRoot:     asyncstate.NewRoot(root),
		seqTable:      seqlock.NewTable(),
		cmdBuffer:     command.NewBuffer(),
		handlers:      handlers,
		guards:        guard.NewEngine(),
		handlerPoison: make(map[string]*value.Poison),
	}, nil
}

// Render executes prog against ctxVars (the user-supplied render context)
// and returns the assembled result container.
//
// The executor is a strict sequential tree-walker run on the caller's own
// goroutine (§5 "single-threaded cooperative"): statements that don't
// need a concrete value (`set`, building up command arguments) never
// block even when their expression is `Pending`, so two independent async
// host calls issued by consecutive statements are both already in flight
// before anything blocks. Blocking only happens at the points §4.7/§4.8
// name as needing a concrete value — `if`/`while` conditions, a `for`
// loop's iterable, and a command's path/args immediately before it is
// submitted to the buffer — which is where genuine sequencing is
// required anyway. This sidesteps building a continuation-passing
// scheduler while still honoring "concurrency is achieved by awaiting
// multiple Pending values produced by host code" (§5): the concurrency
// comes from host functions returning a Pending immediately and doing
// their own work on a goroutine of their own, not from the tree-walker
// itself fanning out.
//
// focus mirrors the top-level `:name` focus directive (§4.5). The
// front-end does not currently parse a directive at the top of a
// Program (only `macro`/`capture` carry one in the grammar as written),
// so the host passes the desired focus explicitly — "" for the ordinary
// template-rendering case, which Result.Text() reads regardless of
// Focus anyway.
func (m *Machine) Render(prog *compiler.Compiled, ctxVars map[string]value.Value, focus string) (*Result, error) {
	for k, v := range ctxVars {
		m.root.Declare(k)
		m.root.Set(k, v)
	}

	if err := m.execProgramBody(m.root, prog.Program); err != nil {
		return nil, err
	}

	if err := m.finalError(); err != nil {
		return nil, err
	}

	return assembleResult(m.handlers, m.handlerPoison, focus), nil
}

// HandlerNames lists the handlers instantiated for this render, the way
// command.Registry.Names lists what's registered process-wide.
func (m *Machine) HandlerNames() []string {
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	return names
}

// PendingCommandCounts reports, per handler, how many records are still
// queued in the command buffer waiting on an earlier record for the same
// handler to resolve (§4.5 "commands for one handler apply in submission
// order"). Meant for diagnostics extensions, not control flow.
func (m *Machine) PendingCommandCounts() map[string]int {
	out := make(map[string]int, len(m.handlers))
	for name := range m.handlers {
		out[name] = m.cmdBuffer.PendingCount(name)
	}
	return out
}

// SequenceQueueDepths reports, per sequence-lock key currently held, how
// many async calls are queued behind the one in flight (§4.9 "!" operator).
func (m *Machine) SequenceQueueDepths() map[string]int {
	keys := m.seqTable.Keys()
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[k] = m.seqTable.QueueDepth(k)
	}
	return out
}

// finalError aggregates every collected handler poison into the single
// user-visible error §7 describes, or nil if nothing poisoned.
func (m *Machine) finalError() error {
	var all *value.Poison
	absorb := func(p *value.Poison) {
		if p == nil {
			return
		}
		if all == nil {
			all = value.NewPoison(p.Errors...)
			return
		}
		all = value.NewPoison(append(all.Errors, p.Errors...)...)
	}
	for _, p := range m.handlerPoison {
		absorb(p)
	}
	absorb(m.outputPoison)
	if all == nil {
		return nil
	}
	return fmt.Errorf("%s", all.String())
}

// failFlag is one entry of Machine.guardFail: whether the guard/try region
// it belongs to has seen a poison yet, and the poison itself (merged across
// every command/output inside the region) for except's ErrVar binding.
type failFlag struct {
	failed bool
	poison *value.Poison
}

// markGuardFailure flags the innermost guard/try region (if any) as having
// seen p from a command or output (§4.6.3), merging it into any poison
// already recorded for that region.
func (m *Machine) markGuardFailure(p *value.Poison) {
	if n := len(m.guardFail); n > 0 {
		ff := m.guardFail[n-1]
		ff.failed = true
		if ff.poison == nil {
			ff.poison = p
		} else if p != nil {
			ff.poison = value.NewPoison(append(ff.poison.Errors, p.Errors...)...)
		}
	}
}

// pushGuardFail opens a new failFlag region for a guard/try block.
func (m *Machine) pushGuardFail() *failFlag {
	ff := &failFlag{}
	m.guardFail = append(m.guardFail, ff)
	return ff
}

// popGuardFail closes the innermost failFlag region, returning it.
func (m *Machine) popGuardFail() *failFlag {
	n := len(m.guardFail)
	ff := m.guardFail[n-1]
	m.guardFail = m.guardFail[:n-1]
	return ff
}

// poisonAt builds a single-error Poison positioned at n, the shape the
// evaluator returns for every local failure.
func poisonAt(n ast.Node, format string, args ...any) *value.Poison {
	pos := n.Position()
	return value.Poisonf(pos.Path, pos.Line, pos.Column, format, args...)
}

// awaitValue blocks until v (possibly Pending) settles, returning the
// settled value. Only the top level is awaited — containers may still
// carry Pending leaves; callers that need those resolved too should use
// resolveDeep.
func (m *Machine) awaitValue(v value.Value) (value.Value, error) {
	p, ok := v.(*value.Pending)
	if !ok {
		return v, nil
	}
	return p.Await(m.ctx)
}

// resolveDeep blocks until v and every List/Dict leaf beneath it has
// settled (§4.1.3 resolve_deep), translating context cancellation into a
// runtime-fatal error since that is the one error ResolveDeep can return.
func (m *Machine) resolveDeep(v value.Value) (value.Value, error) {
	return value.ResolveDeep(m.ctx, v)
}
