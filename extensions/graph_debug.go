package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/m1gwings/treedrawer/tree"

	"github.com/cascadalang/cascada/internal/runtime"
)

// GraphDebugExtension logs failed renders and render panics at error
// level: OnRenderEnd logs the render ID and the error, OnRenderPanic the
// render ID, the recovered value and the stack trace. These records carry
// no handler or sequence-lock state, since neither hook receives the
// Machine; DumpMachineState formats that state (per-handler pending
// command counts and per-key sequence-lock queue depths) for a caller
// that holds one.
//
// Grounded on the teacher's extensions/graph_debug.go: same slog.Handler
// plumbing (HumanHandler/SilentHandler below are copied near-verbatim,
// since that formatting logic owes nothing to what it's printing), same
// treedrawer rendering (used by DumpMachineState), same "log at error
// level with structured attributes" design.
type GraphDebugExtension struct {
	BaseExtension
	logger *slog.Logger
}

// NewGraphDebugExtension creates a graph-debug extension logging through
// logHandler (use NewHumanHandler for formatted output, NewSilentHandler
// for tests, or any other slog.Handler).
func NewGraphDebugExtension(logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension: NewBaseExtension("graph-debug"),
		logger:        slog.New(logHandler),
	}
}

func (e *GraphDebugExtension) OnRenderEnd(renderID string, result *runtime.Result, err error) error {
	if err == nil {
		return nil
	}
	e.logger.Error("Render Error",
		"render_id", renderID,
		"error", err.Error(),
		"state", "(no live Machine at OnRenderEnd; see OnRenderPanic/Wrap for in-flight introspection)",
	)
	return nil
}

func (e *GraphDebugExtension) OnRenderPanic(renderID string, recovered any, stack []byte) error {
	e.logger.Error("Render Panic",
		"render_id", renderID,
		"panic", fmt.Sprintf("%v", recovered),
		"stack_trace", string(stack),
	)
	return nil
}

// DumpMachineState formats m's handler/sequence-lock state as a tree, for
// callers that want the diagnostic inline rather than only via logging
// (e.g. a `cascada check` exit message).
func DumpMachineState(m *runtime.Machine) string {
	var sb strings.Builder

	root := tree.NewTree(tree.NodeString("render state"))

	handlers := tree.NewTree(tree.NodeString("handlers"))
	names := m.HandlerNames()
	sort.Strings(names)
	pending := m.PendingCommandCounts()
	for _, name := range names {
		label := fmt.Sprintf("%s (pending: %d)", name, pending[name])
		handlers.AddChild(tree.NodeString(label))
	}
	addChildTree(root, handlers)

	locks := tree.NewTree(tree.NodeString("sequence locks"))
	depths := m.SequenceQueueDepths()
	keys := make([]string, 0, len(depths))
	for k := range depths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		locks.AddChild(tree.NodeString("(none held)"))
	}
	for _, k := range keys {
		label := fmt.Sprintf("%s (queued: %d)", k, depths[k])
		locks.AddChild(tree.NodeString(label))
	}
	addChildTree(root, locks)

	sb.WriteString(root.String())
	return sb.String()
}

func addChildTree(parent *tree.Tree, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		addChildTree(newChild, grandchild)
	}
}

// SilentHandler discards all log output. Useful in tests that exercise
// GraphDebugExtension without wanting it to actually print anything.
type SilentHandler struct{}

func NewSilentHandler() *SilentHandler { return &SilentHandler{} }

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool { return false }
func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error { return nil }
func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler             { return h }
func (h *SilentHandler) WithGroup(name string) slog.Handler                  { return h }

// HumanHandler formats log records for a human reading a terminal rather
// than a log aggregator.
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{writer: writer, level: level}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *HumanHandler) WithGroup(name string) slog.Handler       { return h }
