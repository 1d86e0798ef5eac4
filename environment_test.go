package cascada

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cascadalang/cascada/extensions"
	"github.com/cascadalang/cascada/internal/loader"
	"github.com/cascadalang/cascada/internal/runtime"
	"github.com/cascadalang/cascada/internal/value"
)

func TestRenderStringBasic(t *testing.T) {
	env := New()
	result, err := env.RenderString(context.Background(), `Hello, {{ name }}!`,
		map[string]value.Value{"name": value.Str("World")}, "")
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if got, want := result.Text(), "Hello, World!"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
	if result.RenderID == "" {
		t.Fatal("expected a non-empty RenderID")
	}
}

func TestRenderUsesConfiguredLoader(t *testing.T) {
	ml := loader.NewMapLoader(map[string]string{"greet.cascada": `Hi, {{ name }}`})
	env := New(WithLoader(ml))
	result, err := env.Render(context.Background(), "greet.cascada",
		map[string]value.Value{"name": value.Str("Ada")}, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got, want := result.Text(), "Hi, Ada"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestRenderWithoutLoaderErrors(t *testing.T) {
	env := New()
	if _, err := env.Render(context.Background(), "missing.cascada", nil, ""); err == nil {
		t.Fatal("expected an error when no loader is configured")
	}
}

func TestWithGlobalIsVisibleAcrossRenders(t *testing.T) {
	env := New(WithGlobal("site", value.Str("cascada.dev")))
	result, err := env.RenderString(context.Background(), `{{ site }}`, nil, "")
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if got, want := result.Text(), "cascada.dev"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestWithExtensionWrapsEveryRender(t *testing.T) {
	ext := &countingExtension{base: extensions.NewBaseExtension("counter")}
	env := New(WithExtension(ext))

	if _, err := env.RenderString(context.Background(), `ok`, nil, ""); err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if ext.started != 1 || ext.ended != 1 {
		t.Fatalf("OnRenderStart/OnRenderEnd counts = %d/%d, want 1/1", ext.started, ext.ended)
	}
}

func TestLoggingExtensionCanBeAttached(t *testing.T) {
	env := New(WithExtension(extensions.NewLoggingExtension(slog.New(extensions.NewSilentHandler()))))
	if _, err := env.RenderString(context.Background(), `fine`, nil, ""); err != nil {
		t.Fatalf("RenderString: %v", err)
	}
}

type countingExtension struct {
	base    extensions.BaseExtension
	started int
	ended   int
}

func (c *countingExtension) Name() string { return c.base.Name() }
func (c *countingExtension) Order() int   { return c.base.Order() }
func (c *countingExtension) Init() error  { return nil }
func (c *countingExtension) Wrap(ctx context.Context, next func() (*runtime.Result, error)) (*runtime.Result, error) {
	return next()
}
func (c *countingExtension) OnRenderStart(renderID string) error {
	c.started++
	return nil
}
func (c *countingExtension) OnRenderEnd(renderID string, result *runtime.Result, err error) error {
	c.ended++
	return nil
}
func (c *countingExtension) OnRenderPanic(renderID string, recovered any, stack []byte) error {
	return nil
}
func (c *countingExtension) Dispose() error { return nil }
