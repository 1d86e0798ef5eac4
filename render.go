package cascada

import (
	"github.com/cascadalang/cascada/internal/compiler"
	"github.com/cascadalang/cascada/internal/parser"
)

// parseAndCompile runs the front-end and validation passes a single
// time per render. Both stages are pure functions of their input, so
// there is nothing render-specific to cache or thread through here yet;
// a loader layer that wants parse caching sits above Environment, not
// inside it (§6 "dev mode" is the one case that wants this to change,
// and it changes at the loader, not here).
func parseAndCompile(src string) (*compiler.Compiled, error) {
	prog, err := parser.Parse("render", src)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(prog)
}
