// Package extensions provides the render-lifecycle hook interface hosts
// use to observe (and, via Wrap, intercept) a render without reaching into
// internal/runtime directly, plus two concrete extensions: Logging and
// GraphDebug.
//
// Grounded on the teacher's own extensions/graph_debug.go for the shape of
// a diagnostics extension, and its root extension.go for the Extension
// interface itself — renamed from the teacher's per-executor resolve/update
// hooks to the coarser per-render hooks this engine actually has available
// (internal/runtime.Machine runs as one uninterrupted tree-walk; it has no
// per-node Wrap chain to hang an extension off of the way the teacher's
// Scope.Resolve does per executor).
package extensions

import (
	"context"

	"github.com/cascadalang/cascada/internal/runtime"
)

// Extension observes (Wrap: intercepts) a single render.
type Extension interface {
	// Name identifies the extension for logging and ordering diagnostics.
	Name() string
	// Order determines run order among multiple extensions; lower runs
	// first on the way in (OnRenderStart, Wrap's outer layers) and last
	// on the way out (OnRenderEnd).
	Order() int

	// Init is called once, when the extension is registered to an
	// Environment, before any render using it begins.
	Init() error

	// Wrap lets an extension run code around the render itself — timing,
	// tracing, panic containment beyond what the host already does. next
	// performs the actual render; Wrap must call it to let the render
	// happen at all.
	Wrap(ctx context.Context, next func() (*runtime.Result, error)) (*runtime.Result, error)

	// OnRenderStart runs right before the render's Machine begins
	// executing the program.
	OnRenderStart(renderID string) error
	// OnRenderEnd runs after the render completes, successfully or not.
	OnRenderEnd(renderID string, result *runtime.Result, err error) error
	// OnRenderPanic runs when the render's goroutine recovers a panic,
	// before it is turned into an error.
	OnRenderPanic(renderID string, recovered any, stack []byte) error

	// Dispose releases any resources the extension opened in Init.
	Dispose() error
}

// BaseExtension implements every Extension method as a no-op so concrete
// extensions only override what they need.
type BaseExtension struct {
	name string
}

// NewBaseExtension returns a BaseExtension carrying name.
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string { return e.name }

func (e *BaseExtension) Order() int { return 100 }

func (e *BaseExtension) Init() error { return nil }

func (e *BaseExtension) Wrap(ctx context.Context, next func() (*runtime.Result, error)) (*runtime.Result, error) {
	return next()
}

func (e *BaseExtension) OnRenderStart(renderID string) error { return nil }

func (e *BaseExtension) OnRenderEnd(renderID string, result *runtime.Result, err error) error {
	return nil
}

func (e *BaseExtension) OnRenderPanic(renderID string, recovered any, stack []byte) error {
	return nil
}

func (e *BaseExtension) Dispose() error { return nil }
