package handlers

import (
	"strings"

	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/value"
)

// Text is the built-in `text` handler: bare `@text(s)` appends s to the
// buffer, while `@text.path(s)` (or a path produced by a guard/capture
// block) appends at a string field addressed by path (§4.5).
type Text struct {
	buf strings.Builder
}

func NewText() *Text { return &Text{} }

func (t *Text) Value() value.Value { return value.Str(t.buf.String()) }

func (t *Text) Snapshot() any { return t.buf.String() }

func (t *Text) Restore(snap any) {
	t.buf.Reset()
	t.buf.WriteString(snap.(string))
}

// Call implements command.Caller: `@text(expr)` with no method/path.
func (t *Text) Call(args []value.Value) (value.Value, error) {
	for _, a := range args {
		t.buf.WriteString(toStr(a))
	}
	return value.Str(t.buf.String()), nil
}

func (t *Text) Dispatch(rec *command.Record) (value.Value, error) {
	if len(rec.Path) == 0 && rec.Method == "" {
		return t.Call(rec.Args)
	}
	for _, a := range rec.Args {
		t.buf.WriteString(toStr(a))
	}
	return value.Str(t.buf.String()), nil
}
