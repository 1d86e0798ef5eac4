// Package asyncstate tracks outstanding asynchronous closures during a
// render, so the runtime can tell when it is safe to dispose a scope's
// frame snapshot and whether a failure should cancel still-running
// siblings (§4.3).
//
// Grounded on the teacher's ExecutionCtx parent chain and the
// goroutine+channel completion race in executeFlow (flow.go): a tree of
// nodes, each able to wait for everything under it to finish, with a
// one-shot completion signal per node.
package asyncstate

import (
	"sync"

	"github.com/cascadalang/cascada/internal/frame"
)

// State is one node of the async-closure tree.
type State struct {
	mu             sync.Mutex
	parent         *State
	activeClosures int
	cancelled      bool
	waiters        []chan struct{}

	// SnapshotFrame pins the ancestor state a child closure should read
	// against, so parallel siblings can't observe each other's writes.
	SnapshotFrame *frame.Frame
}

// NewRoot creates the top-level async state for a render.
func NewRoot(snapshot *frame.Frame) *State {
	return &State{SnapshotFrame: snapshot}
}

// EnterClosure creates and registers a child closure state, incrementing
// the active-closure counter on every node from here up to the root.
func (s *State) EnterClosure(snapshot *frame.Frame) *State {
	child := &State{parent: s, SnapshotFrame: snapshot}
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		cur.activeClosures++
		cur.mu.Unlock()
	}
	return child
}

// LeaveClosure decrements the active-closure counter from this node up
// to the root, resolving any waiters whose subtree just reached zero.
func (s *State) LeaveClosure() {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		cur.activeClosures--
		done := cur.activeClosures == 0
		var waiters []chan struct{}
		if done {
			waiters = cur.waiters
			cur.waiters = nil
		}
		cur.mu.Unlock()
		if done {
			for _, w := range waiters {
				close(w)
			}
		}
	}
}

// WaitAllClosures returns a channel that is closed once every descendant
// closure under s has completed. If s is already idle, the returned
// channel is already closed.
func (s *State) WaitAllClosures() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeClosures == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	return ch
}

// Cancel flips the subtree rooted at s to "cancelled": still-running
// closures are left to complete, but callers should discard their
// outputs (§4.3, §5 Cancellation). Cancel is sticky and propagates to
// children implicitly — IsCancelled walks up to the root.
func (s *State) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

// IsCancelled reports whether s or any ancestor has been cancelled.
func (s *State) IsCancelled() bool {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		c := cur.cancelled
		cur.mu.Unlock()
		if c {
			return true
		}
	}
	return false
}

// ActiveClosures reports the current outstanding closure count for s
// alone (not its descendants' own counters, which are folded in via
// EnterClosure/LeaveClosure incrementing every ancestor).
func (s *State) ActiveClosures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeClosures
}

// Parent exposes the parent node (nil at the root).
func (s *State) Parent() *State { return s.parent }
