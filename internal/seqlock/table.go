// Package seqlock implements the `!` sequence-lock table (§4.4): FIFO
// queues, keyed either by a static path or by (path, method), that
// serialize marked calls while leaving the rest of the dependency graph
// free to run concurrently.
//
// Grounded on the teacher's ReactiveGraph (graph.go): an adjacency map
// guarded by a single mutex, with iterative (not recursive) traversal.
// Here the "edges" are queued tasks rather than dependents, but the
// map-of-slices-under-a-lock shape is the same.
package seqlock

import (
	"sync"

	"github.com/cascadalang/cascada/internal/value"
)

// Table holds every live sequence lock for one render.
type Table struct {
	mu    sync.Mutex
	locks map[string]*seqLock
}

func NewTable() *Table {
	return &Table{locks: make(map[string]*seqLock)}
}

type seqLock struct {
	mu      sync.Mutex
	running bool
	queue   []queuedTask
}

type queuedTask struct {
	run func() *value.Pending
	out *value.Pending
}

// PathKey builds the key for a path-keyed lock (`obj.a.b!.method(...)`):
// every marked call on the same static path enqueues behind the previous
// one, regardless of method.
func PathKey(path string) string { return "path:" + path }

// MethodKey builds the key for a method-keyed lock
// (`obj.a.b.method!(...)`): only calls to the same method on the same
// path serialize against each other.
func MethodKey(path, method string) string { return "method:" + path + "." + method }

// Run enqueues run behind whatever else is queued under key and returns
// a Pending that settles once run's own result settles. The lock is not
// released — and the next queued task not started — until that happens
// (§4.4): a poisoned head still releases the lock for the next task
// (open question (a): "continue the queue").
func (t *Table) Run(key string, run func() *value.Pending) *value.Pending {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &seqLock{}
		t.locks[key] = l
	}
	t.mu.Unlock()

	out := value.NewPending()

	l.mu.Lock()
	l.queue = append(l.queue, queuedTask{run: run, out: out})
	start := !l.running
	if start {
		l.running = true
	}
	l.mu.Unlock()

	if start {
		l.drainNext()
	}

	return out
}

func (l *seqLock) drainNext() {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.running = false
		l.mu.Unlock()
		return
	}
	task := l.queue[0]
	l.queue = l.queue[1:]
	l.mu.Unlock()

	result := task.run()
	result.OnResolve(func(v value.Value) {
		task.out.ResolveValue(v)
		l.drainNext()
	})
}

// QueueDepth reports how many tasks (including any currently running
// one) are outstanding for key — used by tests and the graph-debug
// extension.
func (t *Table) QueueDepth(key string) int {
	t.mu.Lock()
	l, ok := t.locks[key]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.queue)
	if l.running {
		n++
	}
	return n
}

// Keys returns every lock key currently registered, for debug rendering.
func (t *Table) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.locks))
	for k := range t.locks {
		out = append(out, k)
	}
	return out
}
