// Package frame implements Cascada's scope tree: nested variable frames
// that track write counts and read sets so parallel async branches see a
// deterministic, race-free view of shared state (§4.2).
package frame

import (
	"sync"

	"github.com/cascadalang/cascada/internal/value"
)

// sequenceLockPrefix marks names conceptually declared at the nearest
// sequence-lock root frame (§4.2.3).
const sequenceLockPrefix = "!seq:"

// Frame is a node in the scope tree.
type Frame struct {
	mu sync.Mutex

	parent *Frame

	declared map[string]bool
	vars     map[string]value.Value

	writeCounts map[string]int
	readVars    map[string]bool

	CreateScope      bool
	IsolateWrites    bool
	TopLevel         bool
	IsIncluded       bool
	SequenceLockRoot bool
}

// New creates a root frame (no parent), suitable for the top-level scope
// of a render.
func New() *Frame {
	return &Frame{
		declared:    make(map[string]bool),
		vars:        make(map[string]value.Value),
		writeCounts: make(map[string]int),
		readVars:    make(map[string]bool),
		CreateScope: true,
		TopLevel:    true,
	}
}

// Push creates a child frame under f.
func (f *Frame) Push(createScope bool) *Frame {
	return &Frame{
		parent:      f,
		declared:    make(map[string]bool),
		vars:        make(map[string]value.Value),
		writeCounts: make(map[string]int),
		readVars:    make(map[string]bool),
		CreateScope: createScope,
	}
}

// Pop returns this frame's parent. Frames otherwise need no explicit
// teardown; disposal is the caller's concern once any associated async
// closures have finished (§4.2 lifecycle).
func (f *Frame) Pop() *Frame { return f.parent }

// Parent exposes the parent frame (nil at the root).
func (f *Frame) Parent() *Frame { return f.parent }

// Declare introduces name as owned by this frame.
func (f *Frame) Declare(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared[name] = true
	if _, ok := f.vars[name]; !ok {
		f.vars[name] = value.Undef{}
	}
}

func (f *Frame) declaringFrame(name string) *Frame {
	cur := f
	for cur != nil {
		cur.mu.Lock()
		declared := cur.declared[name]
		stop := cur.IsolateWrites
		cur.mu.Unlock()
		if declared {
			return cur
		}
		if stop {
			return nil
		}
		cur = cur.parent
	}
	return nil
}

func (f *Frame) nearestCreateScope() *Frame {
	cur := f
	for cur != nil {
		cur.mu.Lock()
		cs := cur.CreateScope
		cur.mu.Unlock()
		if cs {
			return cur
		}
		cur = cur.parent
	}
	return nil
}

func (f *Frame) nearestSequenceLockRoot() *Frame {
	cur := f
	for cur != nil {
		cur.mu.Lock()
		root := cur.SequenceLockRoot
		cur.mu.Unlock()
		if root {
			return cur
		}
		cur = cur.parent
	}
	return f
}

// Get resolves name by walking up the frame chain, recording reads on
// every intermediate frame that doesn't already have a local write to
// name (§4.2 read tracking). ok is false if name was never declared.
func (f *Frame) Get(name string) (value.Value, bool) {
	d := f.declaringFrame(name)
	if d == nil {
		return value.Undef{}, false
	}

	cur := f
	for cur != nil && cur != d {
		cur.mu.Lock()
		if !cur.readVars[name] && cur.writeCounts[name] == 0 {
			cur.readVars[name] = true
		}
		cur.mu.Unlock()
		cur = cur.parent
	}

	d.mu.Lock()
	v := d.vars[name]
	d.mu.Unlock()
	return v, true
}

// Set implements the write-propagation algorithm of §4.2: it locates (or
// creates) the declaring frame D, binds the value there, and records a
// "first write propagates, later writes stop propagation" count on every
// frame strictly between the calling frame and D.
func (f *Frame) Set(name string, v value.Value) {
	target := name
	if len(name) > len(sequenceLockPrefix) && name[:len(sequenceLockPrefix)] == sequenceLockPrefix {
		root := f.nearestSequenceLockRoot()
		root.Declare(target)
		root.mu.Lock()
		root.vars[target] = v
		root.mu.Unlock()
		return
	}

	d := f.declaringFrame(name)
	if d == nil {
		if f.CreateScope {
			d = f
		} else {
			d = f.nearestCreateScope()
			if d == nil {
				d = f
			}
		}
		d.Declare(name)
	}

	cur := f
	for cur != nil && cur != d {
		cur.mu.Lock()
		if cur.writeCounts[name] == 0 {
			cur.writeCounts[name] = 1
			cur.mu.Unlock()
			cur = cur.parent
			continue
		}
		cur.writeCounts[name]++
		cur.mu.Unlock()
		break
	}

	d.mu.Lock()
	d.vars[name] = v
	d.mu.Unlock()
}

// Snapshot captures the current value of every name this frame (or its
// descendants so far) has read, plus every name any ancestor has
// recorded a first write for, so a child closure can run against a
// stable pre-branch view (§4.2, §4.3).
type Snapshot struct {
	values map[string]value.Value
}

func (f *Frame) Snapshot() *Snapshot {
	names := make(map[string]bool)

	f.mu.Lock()
	for n := range f.readVars {
		names[n] = true
	}
	f.mu.Unlock()

	for cur := f; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		for n, c := range cur.writeCounts {
			if c > 0 {
				names[n] = true
			}
		}
		cur.mu.Unlock()
	}

	values := make(map[string]value.Value, len(names))
	for n := range names {
		if v, ok := f.Get(n); ok {
			values[n] = v
		}
	}
	return &Snapshot{values: values}
}

// Restore creates a child frame pinned to the given snapshot: every
// captured name is declared and bound there, shadowing ancestor state so
// a restarted/parallel closure reads the frozen values instead of racing
// with sibling writes.
func (f *Frame) Restore(s *Snapshot) *Frame {
	child := f.Push(true)
	child.IsolateWrites = false
	for name, v := range s.values {
		child.Declare(name)
		child.mu.Lock()
		child.vars[name] = v
		child.mu.Unlock()
	}
	return child
}

// ReadVars returns a copy of the names this frame has recorded reads for.
func (f *Frame) ReadVars() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.readVars))
	for n := range f.readVars {
		out = append(out, n)
	}
	return out
}

// WriteCount reports how many local writes this frame has recorded for
// name (used by tests and the guard engine to detect "never modified").
func (f *Frame) WriteCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCounts[name]
}

// IsDeclaredHere reports whether name is declared directly in this
// frame (not an ancestor).
func (f *Frame) IsDeclaredHere(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.declared[name]
}

// IsDeclared reports whether name is declared anywhere up the chain.
func (f *Frame) IsDeclared(name string) bool {
	return f.declaringFrame(name) != nil
}
