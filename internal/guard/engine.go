// Package guard implements the guard block engine (§4.6): snapshot and
// revert of command-handler state and guard variables so a failing block
// can absorb its own errors without disturbing the surrounding render.
//
// Grounded on the teacher's cleanup-registry rollback (Scope's
// invalidate-then-store ordering in update.go): a guard frame is a stack
// entry capturing enough state to undo everything the block did, applied
// in one pass rather than incrementally.
package guard

import (
	"fmt"

	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/frame"
	"github.com/cascadalang/cascada/internal/value"
)

// Frame is one entered guard block's snapshot.
type Frame struct {
	bare         bool
	selected     map[string]bool
	handlerSnaps map[string]any
	varSnaps     map[string]value.Value
	scope        *frame.Frame
}

// Engine tracks the stack of currently-entered guard blocks for one
// render. Nested guards are stack-oriented: an inner revert never
// touches outer state (§4.6.5).
type Engine struct {
	stack []*Frame
}

func NewEngine() *Engine { return &Engine{} }

// ValidateSelectors is the half of the compile-time check of §4.6 that
// needs nothing but the guard tag's own tokens: duplicate selectors,
// and bare `@` combined with specific selectors. Called from
// compiler.Compile (so these errors are fatal before any rendering
// happens) and again from Enter as a cheap belt-and-braces re-check.
func ValidateSelectors(selectors []string, bare bool) error {
	if bare && len(selectors) > 0 {
		return fmt.Errorf("guard: cannot combine bare @ selector with specific selectors")
	}
	seen := make(map[string]bool, len(selectors))
	for _, s := range selectors {
		if seen[s] {
			return fmt.Errorf("guard: duplicate selector %q", s)
		}
		seen[s] = true
	}
	return nil
}

// Validate performs the full compile-time checks of §4.6: everything
// ValidateSelectors checks, plus guarding a variable not declared in an
// outer scope (which needs a live frame, so it can't run purely
// statically the way ValidateSelectors can).
func Validate(selectors []string, bare bool, scope *frame.Frame, guardVars []string) error {
	if err := ValidateSelectors(selectors, bare); err != nil {
		return err
	}
	for _, v := range guardVars {
		if !scope.IsDeclared(v) {
			return fmt.Errorf("guard: variable %q is not declared in an outer scope", v)
		}
	}
	return nil
}

// CheckModified is the compile-time "declared but never modified" check
// (§4.6 validation errors), driven by the compiler's static write-set
// for the guarded block rather than a runtime frame, since the check
// must fire whether or not the block actually executes.
func CheckModified(writeSet map[string]bool, guardVars []string) error {
	for _, v := range guardVars {
		if !writeSet[v] {
			return fmt.Errorf("guard: variable %q is never modified inside the block", v)
		}
	}
	return nil
}

// defaultSelection is the handler set reverted when no selector and no
// bare `@` is given: text and data (§4.6.1).
var defaultSelection = []string{"text", "data"}

// Enter snapshots the handlers selected by selectors/bare and the
// current values of guardVars, pushing a new guard frame.
func (e *Engine) Enter(selectors []string, bare bool, handlers map[string]command.Handler, scope *frame.Frame, guardVars []string) (*Frame, error) {
	if err := Validate(selectors, bare, scope, guardVars); err != nil {
		return nil, err
	}

	gf := &Frame{
		bare:         bare,
		selected:     make(map[string]bool),
		handlerSnaps: make(map[string]any),
		varSnaps:     make(map[string]value.Value, len(guardVars)),
		scope:        scope,
	}

	names := selectors
	if !bare && len(names) == 0 {
		names = defaultSelection
	}

	if bare {
		for name, h := range handlers {
			if snap, ok := h.(command.Snapshotter); ok {
				gf.handlerSnaps[name] = snap.Snapshot()
			}
			gf.selected[name] = true
		}
	} else {
		for _, name := range names {
			h, ok := handlers[name]
			if !ok {
				continue
			}
			if snap, ok := h.(command.Snapshotter); ok {
				gf.handlerSnaps[name] = snap.Snapshot()
			}
			gf.selected[name] = true
		}
	}

	for _, v := range guardVars {
		val, _ := scope.Get(v)
		gf.varSnaps[v] = val
	}

	e.stack = append(e.stack, gf)
	return gf, nil
}

// Revert applies gf's snapshot to the selected handlers and guard
// variables, used both by an explicit `revert` marker mid-block and by
// Exit on block failure (§4.6.3, §4.6.4). It is idempotent: applying it
// twice in a row leaves state unchanged the second time.
func (gf *Frame) Revert(handlers map[string]command.Handler) {
	for name := range gf.selected {
		h, ok := handlers[name]
		if !ok {
			continue
		}
		if snap, ok := h.(command.Snapshotter); ok {
			if captured, has := gf.handlerSnaps[name]; has {
				snap.Restore(captured)
			}
		}
	}
	for name, v := range gf.varSnaps {
		gf.scope.Set(name, v)
	}
}

// Exit pops gf (which must be the top of the stack) and, on failure,
// reverts its selected handlers and guard variables.
func (e *Engine) Exit(gf *Frame, handlers map[string]command.Handler, success bool) {
	if n := len(e.stack); n > 0 && e.stack[n-1] == gf {
		e.stack = e.stack[:n-1]
	}
	if !success {
		gf.Revert(handlers)
	}
}

// Depth reports how many guard blocks are currently entered (debug use).
func (e *Engine) Depth() int { return len(e.stack) }
