package asyncstate

import (
	"testing"
	"time"
)

func TestWaitAllClosuresResolvesWhenChainHitsZero(t *testing.T) {
	root := NewRoot(nil)
	child := root.EnterClosure(nil)
	grandchild := child.EnterClosure(nil)

	waiter := root.WaitAllClosures()

	select {
	case <-waiter:
		t.Fatal("expected waiter to block while closures are active")
	case <-time.After(10 * time.Millisecond):
	}

	grandchild.LeaveClosure()
	child.LeaveClosure()

	select {
	case <-waiter:
	case <-time.After(time.Second):
		t.Fatal("expected waiter to resolve once all closures left")
	}

	if root.ActiveClosures() != 0 {
		t.Fatalf("expected 0 active closures, got %d", root.ActiveClosures())
	}
}

func TestCancelPropagatesDownNotUp(t *testing.T) {
	root := NewRoot(nil)
	child := root.EnterClosure(nil)

	child.Cancel()

	if root.IsCancelled() {
		t.Fatal("cancelling a child must not cancel its parent")
	}
	if !child.IsCancelled() {
		t.Fatal("expected the cancelled node to report cancelled")
	}
}

func TestIdleStateWaitIsImmediatelyDone(t *testing.T) {
	root := NewRoot(nil)
	select {
	case <-root.WaitAllClosures():
	default:
		t.Fatal("expected an idle state's wait channel to be pre-closed")
	}
}
