package command

import (
	"sync"
	"sync/atomic"

	"github.com/cascadalang/cascada/internal/value"
)

// Dispatch executes one Record against a handler and returns a Pending
// that settles with the handler's own result (or a Poison describing why
// dispatch failed).
type Dispatch func(*Record) *value.Pending

// Buffer assigns Seq numbers and serializes dispatch per handler.
//
// Grounded on the teacher's Scope.extensions: an ordered collection
// guarded by a mutex that every caller reads without mutating mid-render;
// here each handler gets its own FIFO instead of a single global order,
// since different handlers may progress concurrently (§4.5).
type Buffer struct {
	seqCounter atomic.Uint64

	mu        sync.Mutex
	byHandler map[string]*handlerQueue
}

func NewBuffer() *Buffer {
	return &Buffer{byHandler: make(map[string]*handlerQueue)}
}

// NextSeq assigns the next program-order sequence number. The runtime
// calls it once per record as it executes each command, output and text
// run; one counter serves every handler (§4.5).
func (b *Buffer) NextSeq() uint64 {
	return b.seqCounter.Add(1) - 1
}

type handlerQueue struct {
	mu          sync.Mutex
	nextSeq     uint64
	dispatching bool
	pending     map[uint64]*queuedRecord
}

type queuedRecord struct {
	rec      *Record
	dispatch Dispatch
	result   *value.Pending
}

// Submit queues rec for dispatch via fn once rec.Seq is next in line for
// rec.Handler. Submit itself should only be called once rec's path/args
// dependencies have settled (the evaluator does this via
// value.ResolveDeep before calling Submit) — §4.5: "After all expression
// dependencies ... have resolved, records ... are executed in strict seq
// order."
func (b *Buffer) Submit(rec *Record, fn Dispatch) *value.Pending {
	result := value.NewPending()

	b.mu.Lock()
	hq, ok := b.byHandler[rec.Handler]
	if !ok {
		hq = &handlerQueue{pending: make(map[uint64]*queuedRecord)}
		b.byHandler[rec.Handler] = hq
	}
	b.mu.Unlock()

	hq.mu.Lock()
	hq.pending[rec.Seq] = &queuedRecord{rec: rec, dispatch: fn, result: result}
	hq.mu.Unlock()

	hq.tryDispatch()
	return result
}

func (hq *handlerQueue) tryDispatch() {
	hq.mu.Lock()
	if hq.dispatching {
		hq.mu.Unlock()
		return
	}
	qr, ok := hq.pending[hq.nextSeq]
	if !ok {
		hq.mu.Unlock()
		return
	}
	delete(hq.pending, hq.nextSeq)
	hq.dispatching = true
	hq.mu.Unlock()

	res := qr.dispatch(qr.rec)
	res.OnResolve(func(v value.Value) {
		qr.result.ResolveValue(v)
		hq.mu.Lock()
		hq.nextSeq++
		hq.dispatching = false
		hq.mu.Unlock()
		hq.tryDispatch()
	})
}

// PendingCount reports how many records for handler are queued but not
// yet dispatched (used by the graph-debug extension and tests).
func (b *Buffer) PendingCount(handler string) int {
	b.mu.Lock()
	hq, ok := b.byHandler[handler]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	hq.mu.Lock()
	defer hq.mu.Unlock()
	return len(hq.pending)
}
