package extensions

import (
	"context"
	"log/slog"
	"time"

	"github.com/cascadalang/cascada/internal/runtime"
)

// LoggingExtension logs the start, end and duration of every render at
// the configured slog.Logger, the way the teacher's examples reach for
// the standard log package around their own flow boundaries
// (examples/http-api/main.go, examples/order-processing/main.go).
type LoggingExtension struct {
	BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension returns an extension that logs to logger. Pass
// slog.Default() for ordinary stderr logging.
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: NewBaseExtension("logging"),
		logger:        logger,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (*runtime.Result, error)) (*runtime.Result, error) {
	start := time.Now()
	result, err := next()
	e.logger.Info("render finished", "duration", time.Since(start), "error", errString(err))
	return result, err
}

func (e *LoggingExtension) OnRenderStart(renderID string) error {
	e.logger.Info("render starting", "render_id", renderID)
	return nil
}

func (e *LoggingExtension) OnRenderPanic(renderID string, recovered any, stack []byte) error {
	e.logger.Error("render panicked", "render_id", renderID, "panic", recovered, "stack", string(stack))
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
