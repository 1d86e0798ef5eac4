package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cascadalang/cascada/internal/value"
)

func TestHandlerSerializesBySeqEvenWhenLaterArgsResolveFirst(t *testing.T) {
	buf := NewBuffer()

	var mu sync.Mutex
	var order []uint64

	dispatch := func(rec *Record) *value.Pending {
		p := value.NewPending()
		go func() {
			mu.Lock()
			order = append(order, rec.Seq)
			mu.Unlock()
			p.Resolve(value.Num(float64(rec.Seq)))
		}()
		return p
	}

	seq1 := buf.NextSeq()
	seq2 := buf.NextSeq()

	rec2 := &Record{Handler: "data", Method: "set", Seq: seq2}
	rec1 := &Record{Handler: "data", Method: "set", Seq: seq1}

	// Submit the later-seq record first to simulate its dependencies
	// resolving before the earlier one's.
	done2 := buf.Submit(rec2, dispatch)
	time.Sleep(5 * time.Millisecond)
	done1 := buf.Submit(rec1, dispatch)

	if _, err := done1.Await(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := done2.Await(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != seq1 || order[1] != seq2 {
		t.Fatalf("expected dispatch order [%d %d], got %v", seq1, seq2, order)
	}
}

func TestDifferentHandlersProgressIndependently(t *testing.T) {
	buf := NewBuffer()

	blockData := make(chan struct{})
	dataDispatched := make(chan struct{})
	textDispatched := make(chan struct{})

	buf.Submit(&Record{Handler: "data", Seq: buf.NextSeq()}, func(rec *Record) *value.Pending {
		p := value.NewPending()
		go func() {
			<-blockData
			close(dataDispatched)
			p.Resolve(value.Null{})
		}()
		return p
	})

	buf.Submit(&Record{Handler: "text", Seq: buf.NextSeq()}, func(rec *Record) *value.Pending {
		close(textDispatched)
		return value.NewPending()
	})

	select {
	case <-textDispatched:
	case <-time.After(time.Second):
		t.Fatal("text handler should not wait on data handler")
	}

	select {
	case <-dataDispatched:
		t.Fatal("data dispatch fired before being unblocked")
	default:
	}
	close(blockData)
}
