package seqlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cascadalang/cascada/internal/value"
)

func TestPathLockSerializesProgramOrderRegardlessOfDelay(t *testing.T) {
	table := NewTable()
	key := PathKey("sequencer")

	var mu sync.Mutex
	var log []string

	runOp := func(name string, delay time.Duration) *value.Pending {
		return table.Run(key, func() *value.Pending {
			p := value.NewPending()
			go func() {
				time.Sleep(delay)
				mu.Lock()
				log = append(log, name)
				mu.Unlock()
				p.Resolve(value.Str(name))
			}()
			return p
		})
	}

	a := runOp("A", 20*time.Millisecond)
	b := runOp("B", 5*time.Millisecond)

	ctxDone := make(chan struct{})
	go func() {
		a.Await(context.Background())
		b.Await(context.Background())
		close(ctxDone)
	}()

	select {
	case <-ctxDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sequence lock tasks")
	}

	if len(log) != 2 || log[0] != "A" || log[1] != "B" {
		t.Fatalf("expected program order [A B], got %v", log)
	}
}

func TestMethodLockAllowsDifferentMethodsToInterleave(t *testing.T) {
	table := NewTable()

	startedM := make(chan struct{})
	releaseM := make(chan struct{})

	mDone := table.Run(MethodKey("obj.p", "m"), func() *value.Pending {
		p := value.NewPending()
		go func() {
			close(startedM)
			<-releaseM
			p.Resolve(value.Str("m"))
		}()
		return p
	})

	select {
	case <-startedM:
	case <-time.After(time.Second):
		t.Fatal("m never started")
	}

	nDone := table.Run(MethodKey("obj.p", "n"), func() *value.Pending {
		return value.NewPending()
	})

	if table.QueueDepth(MethodKey("obj.p", "n")) != 1 {
		t.Fatal("expected n's lock to have started independently of m")
	}

	close(releaseM)
	_ = mDone
	_ = nDone
}
