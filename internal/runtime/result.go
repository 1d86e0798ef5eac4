package runtime

import (
	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/value"
)

// Result is the shaped output of a render: a mapping `{text, data,
// <handler>...}` collapsed to a single value when a focus directive is in
// play (§3 "Result container", §4.5 "Focus directive").
type Result struct {
	Focus  string
	Values map[string]value.Value
}

// Value returns the focused handler's value when Focus is set, or a Dict
// keyed by handler name otherwise.
func (r *Result) Value() value.Value {
	if r.Focus != "" {
		if v, ok := r.Values[r.Focus]; ok {
			return v
		}
		return value.Undef{}
	}
	d := value.NewDict()
	for name, v := range r.Values {
		d.Set(name, v)
	}
	return d
}

// Text returns the "text" handler's value rendered as a plain string, the
// shape template-mode rendering returns.
func (r *Result) Text() string {
	if v, ok := r.Values["text"]; ok {
		return v.String()
	}
	return ""
}

func assembleResult(handlers map[string]command.Handler, poisoned map[string]*value.Poison, focus string) *Result {
	out := &Result{Focus: focus, Values: make(map[string]value.Value, len(handlers))}
	for name, h := range handlers {
		if p, ok := poisoned[name]; ok {
			out.Values[name] = p
			continue
		}
		out.Values[name] = h.Value()
	}
	return out
}
