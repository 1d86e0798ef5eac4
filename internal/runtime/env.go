// Package runtime ties Frame, AsyncState, the sequence-lock table and the
// command buffer together into a tree-walking evaluator: it interprets the
// executable form internal/compiler produces against a user context, and
// assembles the result container the render API returns (§4.7, §4.8).
package runtime

import (
	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/handlers"
	"github.com/cascadalang/cascada/internal/value"
)

// Loader resolves a template/script name to source text (§6 "Loader
// contract"), trimmed to the synchronous form this engine needs: async
// loaders and cache-busting events are a host concern layered on top by
// the top-level package, not something the evaluator itself awaits.
type Loader interface {
	Load(name string) (src string, path string, err error)
}

// Flags mirrors the environment configuration switches of §6.
type Flags struct {
	Dev              bool
	Autoescape       bool
	ThrowOnUndefined bool
	TrimBlocks       bool
	LstripBlocks     bool
}

// TestFunc backs the `is` operator (§4.9's isAsync list includes `is`, but
// the test itself is a synchronous predicate over an already-resolved
// value — see Machine.evalIs).
type TestFunc func(v value.Value, args []value.Value) bool

// Env is the process-wide, render-immutable configuration a Machine reads
// from (§9 "Global mutable state": "configured before any render begins
// and must not mutate mid-render").
type Env struct {
	Globals   map[string]value.Value
	Functions map[string]*value.Func
	Tests     map[string]TestFunc
	Handlers  *command.Registry
	Loader    Loader
	Flags     Flags
}

// NewEnv returns an Env with empty registries, ready for the host to
// populate before constructing any Machine.
func NewEnv() *Env {
	env := &Env{
		Globals:   make(map[string]value.Value),
		Functions: make(map[string]*value.Func),
		Tests:     make(map[string]TestFunc),
		Handlers:  command.NewRegistry(),
	}
	env.Handlers.AddFactory("text", func() command.Handler { return handlers.NewText() })
	env.Handlers.AddFactory("data", func() command.Handler { return handlers.NewData() })
	registerBuiltins(env)
	return env
}
