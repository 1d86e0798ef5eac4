// Package command implements the command buffer: the deterministic queue
// of `@handler.path.method(args)` invocations a render produces, and the
// machinery that serializes each handler's own records in program order
// while letting different handlers progress concurrently (§4.5).
package command

import (
	"fmt"

	"github.com/cascadalang/cascada/internal/value"
)

// PathStep is one segment of a command's target path.
type PathStep interface {
	pathStep()
	String() string
}

// FieldStep addresses a dict field by name.
type FieldStep struct{ Name string }

func (FieldStep) pathStep()        {}
func (s FieldStep) String() string { return s.Name }

// IndexStep addresses a list element by a known index.
type IndexStep struct{ Index int }

func (IndexStep) pathStep()        {}
func (s IndexStep) String() string { return fmt.Sprintf("[%d]", s.Index) }

// LastIndexStep addresses the list element most recently appended by an
// earlier command in program order (`foo[]`, §4.5).
type LastIndexStep struct{}

func (LastIndexStep) pathStep()   {}
func (LastIndexStep) String() string { return "[]" }

// ExprIndexStep addresses a list/dict element by a dynamically computed
// key, resolved prior to dispatch.
type ExprIndexStep struct{ Value value.Value }

func (ExprIndexStep) pathStep()        {}
func (s ExprIndexStep) String() string { return "[expr]" }

// Record is one buffered command, assigned a monotonically increasing
// program-order Seq at emission time.
type Record struct {
	Handler string
	Path    []PathStep
	Method  string
	Args    []value.Value
	Seq     uint64
}
