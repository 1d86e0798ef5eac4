// Package cascada is the host-facing API: construct an Environment with
// functional options, then Render/RenderString/RenderScript against it.
//
// Grounded on the teacher's root package: Environment mirrors Scope,
// EnvironmentOption mirrors ScopeOption, and New mirrors NewScope's
// apply-every-option-in-a-loop construction (scope.go). Extension
// registration mirrors WithExtension/UseExtension, including the
// panic-on-Init-failure behavior — an extension that can't initialize is
// a configuration-time programming error, not a per-render one.
package cascada

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/cascadalang/cascada/extensions"
	"github.com/cascadalang/cascada/internal/command"
	"github.com/cascadalang/cascada/internal/runtime"
	"github.com/cascadalang/cascada/internal/script"
	"github.com/cascadalang/cascada/internal/value"
)

// Environment is the process-wide, render-immutable configuration built up
// through New(opts...) and shared by every render that uses it (§9 "Global
// mutable state": configured before any render begins and never mutated
// mid-render).
type Environment struct {
	env        *runtime.Env
	extensions []extensions.Extension
}

// EnvironmentOption configures an Environment at construction time.
type EnvironmentOption func(*Environment)

// New builds an Environment, applying every option in order, the way the
// teacher's NewScope applies ScopeOptions. Panics if an extension's Init
// fails, since that only ever happens at process startup.
func New(opts ...EnvironmentOption) *Environment {
	e := &Environment{env: runtime.NewEnv()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithLoader sets the loader used to resolve template/script names passed
// to Render/RenderScript (it is never consulted by RenderString).
func WithLoader(l runtime.Loader) EnvironmentOption {
	return func(e *Environment) { e.env.Loader = l }
}

// WithGlobal registers a value visible to every render under name, unless
// the render's own context variables shadow it.
func WithGlobal(name string, v value.Value) EnvironmentOption {
	return func(e *Environment) { e.env.Globals[name] = v }
}

// WithFunction registers a callable visible to every render as name(...).
func WithFunction(name string, fn *value.Func) EnvironmentOption {
	return func(e *Environment) { e.env.Functions[name] = fn }
}

// WithTest registers a predicate backing the `is name` operator.
func WithTest(name string, fn runtime.TestFunc) EnvironmentOption {
	return func(e *Environment) { e.env.Tests[name] = fn }
}

// WithCommandHandler registers a singleton command handler under name,
// shared by reference across every render that uses this Environment
// (`addCommandHandler`, §6).
func WithCommandHandler(name string, h command.Handler) EnvironmentOption {
	return func(e *Environment) { e.env.Handlers.AddSingleton(name, h) }
}

// WithCommandHandlerFactory registers a handler constructor invoked fresh
// for every render (`addCommandHandlerClass`, §6).
func WithCommandHandlerFactory(name string, f command.Factory) EnvironmentOption {
	return func(e *Environment) { e.env.Handlers.AddFactory(name, f) }
}

// WithExtension registers ext, initializing it immediately and sorting
// the extension list by Order so Wrap/OnRenderStart run in a stable,
// predictable sequence across every later render.
func WithExtension(ext extensions.Extension) EnvironmentOption {
	return func(e *Environment) {
		if err := ext.Init(); err != nil {
			panic(fmt.Sprintf("cascada: initializing extension %q: %v", ext.Name(), err))
		}
		e.extensions = append(e.extensions, ext)
		sort.SliceStable(e.extensions, func(i, j int) bool {
			return e.extensions[i].Order() < e.extensions[j].Order()
		})
	}
}

// WithFlags sets the environment-wide behavior switches (§6).
func WithFlags(f runtime.Flags) EnvironmentOption {
	return func(e *Environment) { e.env.Flags = f }
}

// HandlerNames lists every command handler registered on the Environment
// (singleton and factory), the set every render using it will instantiate.
func (e *Environment) HandlerNames() []string {
	return e.env.Handlers.Names()
}

// Dispose releases every registered extension's resources, in reverse
// registration order, the way the teacher's Scope.Dispose tears down
// extensions after cleanups.
func (e *Environment) Dispose() error {
	for i := len(e.extensions) - 1; i >= 0; i-- {
		if err := e.extensions[i].Dispose(); err != nil {
			return fmt.Errorf("disposing extension %s: %w", e.extensions[i].Name(), err)
		}
	}
	return nil
}

// Result wraps a render's output with the identifier that named it in
// logs and extension hooks (§4.16).
type Result struct {
	RenderID string
	*runtime.Result
}

// Render loads name through the Environment's loader, parses and compiles
// it as a template, and renders it against ctxVars, focused on focus ("" for
// the ordinary multi-handler result).
func (e *Environment) Render(ctx context.Context, name string, ctxVars map[string]value.Value, focus string) (*Result, error) {
	if e.env.Loader == nil {
		return nil, fmt.Errorf("cascada: no loader configured; use WithLoader or RenderString")
	}
	src, _, err := e.env.Loader.Load(name)
	if err != nil {
		return nil, err
	}
	return e.renderSource(ctx, src, ctxVars, focus, parseTemplate)
}

// RenderString renders src directly, without consulting the loader —
// the in-process, no-files-involved entry point.
func (e *Environment) RenderString(ctx context.Context, src string, ctxVars map[string]value.Value, focus string) (*Result, error) {
	return e.renderSource(ctx, src, ctxVars, focus, parseTemplate)
}

// RenderScript transpiles src from cascada's script (line-oriented)
// syntax into the tag-based template form before rendering it, the way
// internal/script.Transpile is documented to be used by callers that want
// the script surface (§1 "two concrete syntaxes, one shared engine").
func (e *Environment) RenderScript(ctx context.Context, src string, ctxVars map[string]value.Value, focus string) (*Result, error) {
	return e.renderSource(ctx, src, ctxVars, focus, parseScript)
}

func parseTemplate(name, src string) (string, error) { return src, nil }

func parseScript(name, src string) (string, error) { return script.Transpile(src) }

func (e *Environment) renderSource(ctx context.Context, src string, ctxVars map[string]value.Value, focus string, pre func(name, src string) (string, error)) (*Result, error) {
	renderID := uuid.New().String()

	templateSrc, err := pre("render", src)
	if err != nil {
		return nil, err
	}

	for _, ext := range e.extensions {
		if err := ext.OnRenderStart(renderID); err != nil {
			return nil, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
	}

	next := func() (*runtime.Result, error) {
		return e.runOnce(ctx, renderID, templateSrc, ctxVars, focus)
	}
	for i := len(e.extensions) - 1; i >= 0; i-- {
		ext := e.extensions[i]
		inner := next
		next = func() (*runtime.Result, error) {
			return ext.Wrap(ctx, inner)
		}
	}

	result, err := next()

	for i := len(e.extensions) - 1; i >= 0; i-- {
		ext := e.extensions[i]
		if extErr := ext.OnRenderEnd(renderID, result, err); extErr != nil && err == nil {
			err = extErr
		}
	}

	if err != nil {
		return nil, err
	}
	return &Result{RenderID: renderID, Result: result}, nil
}

func (e *Environment) runOnce(ctx context.Context, renderID, templateSrc string, ctxVars map[string]value.Value, focus string) (result *runtime.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			for _, ext := range e.extensions {
				_ = ext.OnRenderPanic(renderID, r, nil)
			}
			err = fmt.Errorf("cascada: render %s panicked: %v", renderID, r)
		}
	}()

	prog, perr := parseAndCompile(templateSrc)
	if perr != nil {
		return nil, perr
	}

	m, merr := runtime.NewMachine(ctx, e.env)
	if merr != nil {
		return nil, merr
	}
	return m.Render(prog, ctxVars, focus)
}
