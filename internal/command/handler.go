package command

import (
	"sync"

	"github.com/cascadalang/cascada/internal/value"
)

// Handler is the contract every command recipient (built-in or custom)
// implements (§4.5, §6 "Command handler registration").
type Handler interface {
	// Dispatch applies one record to the handler's internal state and
	// returns the value produced (or an error, wrapped into Poison by the
	// caller) — never mutates on a poisoned record, see §7.
	Dispatch(rec *Record) (value.Value, error)
	// Value returns the handler's current materialized value, included
	// in the render's result container.
	Value() value.Value
}

// Initializer is implemented by handlers that want a hook run once at
// the start of every render that uses them (`_init()`).
type Initializer interface {
	Init() error
}

// Caller is implemented by handlers that are themselves callable as a
// fallback when no method matches (`_call(...)`), e.g. `@text(expr)`.
type Caller interface {
	Call(args []value.Value) (value.Value, error)
}

// Snapshotter is implemented by handlers the guard engine can roll back
// (§4.6): Snapshot captures current state, Restore reverts to it.
type Snapshotter interface {
	Snapshot() any
	Restore(snap any)
}

// Factory builds a fresh Handler instance, one per render, the way the
// teacher's WithPreset/ScopeOption factories build per-scope state.
type Factory func() Handler

// Registry is the process-wide, render-immutable set of registered
// handlers (§9 "Global mutable state"). It must be fully configured
// before any render starts.
type Registry struct {
	mu         sync.RWMutex
	singletons map[string]Handler
	factories  map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		singletons: make(map[string]Handler),
		factories:  make(map[string]Factory),
	}
}

// AddSingleton registers a handler instance that is reused, as-is, across
// every render (`addCommandHandler`).
func (r *Registry) AddSingleton(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singletons[name] = h
}

// AddFactory registers a constructor invoked fresh per render
// (`addCommandHandlerClass`).
func (r *Registry) AddFactory(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Instantiate builds the per-render set of handlers: singletons are
// shared by reference (and re-initialized via Init, if implemented),
// factories produce a fresh instance.
func (r *Registry) Instantiate() (map[string]Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Handler, len(r.singletons)+len(r.factories))
	for name, h := range r.singletons {
		if init, ok := h.(Initializer); ok {
			if err := init.Init(); err != nil {
				return nil, err
			}
		}
		out[name] = h
	}
	for name, f := range r.factories {
		h := f()
		if init, ok := h.(Initializer); ok {
			if err := init.Init(); err != nil {
				return nil, err
			}
		}
		out[name] = h
	}
	return out, nil
}

// Names lists every registered handler name (singleton and factory).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.singletons)+len(r.factories))
	for n := range r.singletons {
		names = append(names, n)
	}
	for n := range r.factories {
		names = append(names, n)
	}
	return names
}
