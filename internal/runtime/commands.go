package runtime

import (
	"github.com/cascadalang/cascada/internal/ast"
	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/frame"
	"github.com/cascadalang/cascada/internal/seqlock"
	"github.com/cascadalang/cascada/internal/value"
)

// execCommand executes one statement-style `@handler.path.method(args)`
// (§4.5). Path steps and args are resolved (blocking) in program order
// before the record is built, matching §4.5's "after all expression
// dependencies ... have resolved, records ... are executed in strict seq
// order" — the resolution happens here rather than inside the buffer
// since this evaluator has no separate dependency-tracking scheduler.
func (m *Machine) execCommand(f *frame.Frame, cmd *ast.Command) error {
	pathSteps, pathPoison, err := m.buildPathSteps(f, cmd.Path)
	if err != nil {
		return err
	}
	args, argPoison, err := m.resolveArgs(f, cmd.Args)
	if err != nil {
		return err
	}

	prePoison := mergePoisons(pathPoison, argPoison)

	seq := m.cmdBuffer.NextSeq()
	rec := &command.Record{Handler: cmd.Handler, Path: pathSteps, Method: cmd.Method, Args: args, Seq: seq}

	if !cmd.SeqLocked {
		m.submitCommand(cmd.Handler, rec, prePoison)
		return nil
	}

	key := commandSeqLockKey(cmd)
	m.submitLockedCommand(cmd.Handler, rec, prePoison, key)
	return nil
}

// execOutput implements `{{ expr }}` / `print expr` as sugar for an
// implicit `@text(expr)` call sharing the text handler's seq/dispatch
// machinery (§3's result container, §4.5's text-handler contract). A
// poisoned output does not poison the whole `text` handler the way a
// poisoned statement-style command does: it is recorded for final
// surfacing but the buffer's accumulated text up to that point is kept,
// since an output is a value being displayed rather than a mutation the
// handler contract promises to roll back.
func (m *Machine) execOutput(f *frame.Frame, out *ast.Output) error {
	v := m.Eval(f, out.Expr)
	rv, err := m.resolveDeep(v)
	if err != nil {
		return err
	}

	seq := m.cmdBuffer.NextSeq()
	rec := &command.Record{Handler: "text", Seq: seq}

	if p, ok := value.AsPoison(rv); ok {
		m.recordOutputPoison(p)
		rec.Args = []value.Value{value.Str("")}
		m.submitCommand("text", rec, nil)
		return nil
	}

	rec.Args = []value.Value{rv}
	m.submitCommand("text", rec, nil)
	return nil
}

// recordOutputPoison accumulates an output-level poison without
// replacing the text handler's materialized value (see execOutput).
func (m *Machine) recordOutputPoison(p *value.Poison) {
	m.markGuardFailure(p)
	if m.outputPoison == nil {
		m.outputPoison = p
		return
	}
	m.outputPoison = value.NewPoison(append(m.outputPoison.Errors, p.Errors...)...)
}

// submitCommand dispatches rec through the command buffer. prePoison, if
// non-nil, short-circuits the real handler (never mutates on a poisoned
// record, per command.Handler's contract) while still occupying rec's
// seq slot so the handler's FIFO isn't left waiting on a seq that never
// arrives.
func (m *Machine) submitCommand(handler string, rec *command.Record, prePoison *value.Poison) *value.Pending {
	dispatch := m.dispatchFunc(handler, prePoison)
	return m.cmdBuffer.Submit(rec, dispatch)
}

// submitLockedCommand wraps the real dispatch in the sequence lock named
// by key before handing it to the buffer, so records on the same static
// path/method serialize against each other in addition to the handler's
// own seq ordering (§4.4): the buffer decides *when* this call is next
// in program order for its handler, the seqlock decides when its turn in
// the `!` queue comes up.
func (m *Machine) submitLockedCommand(handler string, rec *command.Record, prePoison *value.Poison, key string) *value.Pending {
	real := m.dispatchFunc(handler, prePoison)
	locked := func(r *command.Record) *value.Pending {
		return m.seqTable.Run(key, func() *value.Pending { return real(r) })
	}
	return m.cmdBuffer.Submit(rec, locked)
}

func (m *Machine) dispatchFunc(handler string, prePoison *value.Poison) command.Dispatch {
	return func(rec *command.Record) *value.Pending {
		out := value.NewPending()

		if prePoison != nil {
			m.poisonHandler(handler, prePoison)
			out.Resolve(prePoison)
			return out
		}

		h, ok := m.handlers[handler]
		if !ok {
			p := value.NewPoison(value.NewError("", 0, 0, "no handler registered for %q", handler))
			m.poisonHandler(handler, p)
			out.Resolve(p)
			return out
		}

		var v value.Value
		var err error
		if rec.Method == "" && len(rec.Path) == 0 {
			if caller, ok := h.(command.Caller); ok {
				v, err = caller.Call(rec.Args)
			} else {
				v, err = h.Dispatch(rec)
			}
		} else {
			v, err = h.Dispatch(rec)
		}

		if err != nil {
			p := value.NewPoison(value.WrapError("", 0, 0, err))
			m.poisonHandler(handler, p)
			out.Resolve(p)
			return out
		}
		out.Resolve(v)
		return out
	}
}

// poisonHandler merges p into the handler's accumulated poison, replaced
// for handler at Result assembly time instead of its Value() (§7).
func (m *Machine) poisonHandler(handler string, p *value.Poison) {
	m.markGuardFailure(p)
	if existing, ok := m.handlerPoison[handler]; ok {
		m.handlerPoison[handler] = value.NewPoison(append(existing.Errors, p.Errors...)...)
		return
	}
	m.handlerPoison[handler] = p
}

// buildPathSteps lowers ast.PathStep into command.PathStep, resolving
// any dynamic `[expr]` segment (blocking).
func (m *Machine) buildPathSteps(f *frame.Frame, steps []ast.PathStep) ([]command.PathStep, *value.Poison, error) {
	if len(steps) == 0 {
		return nil, nil, nil
	}
	out := make([]command.PathStep, 0, len(steps))
	var poisons []*value.Poison
	for _, s := range steps {
		switch {
		case s.LastIdx:
			out = append(out, command.LastIndexStep{})
		case s.Dynamic != nil:
			v := m.Eval(f, s.Dynamic)
			rv, err := m.resolveDeep(v)
			if err != nil {
				return nil, nil, err
			}
			if p, ok := value.AsPoison(rv); ok {
				poisons = append(poisons, p)
			}
			out = append(out, command.ExprIndexStep{Value: rv})
		default:
			out = append(out, command.FieldStep{Name: s.Field})
		}
	}
	return out, mergePoisonList(poisons), nil
}

// resolveArgs resolves each argument expression to a settled value
// (blocking), returning the joined poison across all of them if any
// poisoned.
func (m *Machine) resolveArgs(f *frame.Frame, argNodes []ast.Node) ([]value.Value, *value.Poison, error) {
	if len(argNodes) == 0 {
		return nil, nil, nil
	}
	vals := make([]value.Value, len(argNodes))
	for i, a := range argNodes {
		v := m.Eval(f, a)
		rv, err := m.resolveDeep(v)
		if err != nil {
			return nil, nil, err
		}
		vals[i] = rv
	}
	return vals, value.Join(vals...), nil
}

func mergePoisons(a, b *value.Poison) *value.Poison {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return value.NewPoison(append(append([]*value.Error{}, a.Errors...), b.Errors...)...)
	}
}

func mergePoisonList(ps []*value.Poison) *value.Poison {
	var out *value.Poison
	for _, p := range ps {
		out = mergePoisons(out, p)
	}
	return out
}

// commandSeqLockKey builds the seqlock table key for a `!`-marked
// Command, from its already-structured static path (§4.4); unlike a
// general CallExpr, a Command's path is never a free-form dotted
// expression, so no extra parse-time bookkeeping is needed to recover it.
func commandSeqLockKey(cmd *ast.Command) string {
	path := cmd.Handler
	for _, s := range cmd.Path {
		path += "." + s.Field
	}
	if cmd.SeqKeyedByMethod {
		return seqlock.MethodKey(path, cmd.Method)
	}
	return seqlock.PathKey(path)
}
