package value

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is a single collected failure, annotated with source position
// when known. It is the unit that Poison.Errors carries.
//
// Grounded on the teacher's errors.go: ResolveError wraps a cause with
// context and keeps Unwrap() working; Error here does the same but adds
// the template path/line/column annotation §4.1.4 requires, and wraps the
// cause with github.com/pkg/errors so a stack trace is captured at the
// point of construction the same way ResolveError captures
// runtime/debug.Stack().
type Error struct {
	Path    string // template/script path, empty if unknown
	Line    int    // 1-based, 0 if unknown
	Column  int    // 1-based, 0 if unknown
	Message string
	Cause   error
}

func (e *Error) Error() string {
	loc := ""
	if e.Path != "" {
		loc = e.Path
		if e.Line > 0 {
			loc += fmt.Sprintf(":%d:%d", e.Line, e.Column)
		}
		loc += ": "
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s%s: %v", loc, e.Message, e.Cause)
	}
	return loc + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs a Cascada Error from a formatted message with no
// underlying cause. Use WrapError instead when annotating an existing
// Go error so its Cause (and pkg/errors stack trace) is preserved.
func NewError(path string, line, col int, format string, args ...any) *Error {
	return &Error{Path: path, Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}

// WrapError annotates a non-Error throwable (the §4.1.4 contract) with
// position, preserving it as the Cause so %w-style unwrapping still
// reaches the original error.
func WrapError(path string, line, col int, cause error) *Error {
	if ce, ok := cause.(*Error); ok {
		return ce
	}
	return &Error{Path: path, Line: line, Column: col, Message: "runtime error", Cause: errors.WithStack(cause)}
}
