// Package script transpiles Cascada's line-oriented script syntax into
// template source that internal/lexer and internal/parser already
// understand (§4.11). It performs no AST-level work of its own — the
// output is plain text fed straight into parser.Parse.
//
// Grounded on no single teacher file (a line-oriented pre-processor has
// no DI-graph analogue); the "one pass, explicit small helper functions
// per concern (continuation detection, block validation)" shape matches
// the rest of this engine's front-end packages.
package script

import (
	"fmt"
	"strings"
)

// blockOpeners maps each keyword that starts a multi-line block to the
// keywords that legally appear inside it before its matching end tag
// (§4.11 "block structure is validated").
var blockOpeners = map[string]map[string]bool{
	"if":       {"elif": true, "else": true, "endif": true},
	"for":      {"else": true, "endfor": true},
	"while":    {"endwhile": true},
	"macro":    {"endmacro": true},
	"block":    {"endblock": true},
	"guard":    {"endguard": true},
	"capture":  {"endcapture": true},
	"try":      {"except": true, "resume": true, "endtry": true},
	"raw":      {"endraw": true},
	"verbatim": {"endverbatim": true},
	"call":     {"endcall": true},
}

// middleKeywords lists keywords that must appear nested inside a block
// of a specific opener, and which opener(s) they're legal under.
var middleKeywords = map[string][]string{
	"elif":   {"if"},
	"else":   {"if", "for"},
	"except": {"try"},
	"resume": {"try"},
}

var endingFor = map[string]string{
	"endif": "if", "endfor": "for", "endwhile": "while",
	"endmacro": "macro", "endblock": "block", "endguard": "guard",
	"endcapture": "capture", "endtry": "try", "endraw": "raw",
	"endverbatim": "verbatim", "endcall": "call",
}

// otherLineKeywords are reserved keywords that lead a single-line tag
// with no block pairing of their own (§4.11 "a known block keyword" is
// read broadly here to mean any reserved keyword, so e.g. a bare `set`
// or `include` line is wrapped as a tag rather than falling through to
// the implicit-`do` case).
var otherLineKeywords = map[string]bool{
	"set": true, "do": true, "include": true, "extends": true,
	"import": true, "from": true, "revert": true,
}

func firstWord(line string) string {
	trimmed := strings.TrimSpace(line)
	i := 0
	for i < len(trimmed) && (isIdentByte(trimmed[i])) {
		i++
	}
	return trimmed[:i]
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Transpile converts script source into template source. It validates
// block nesting and multi-line continuation as it goes; a structural
// error is returned with the offending line number.
func Transpile(src string) (string, error) {
	lines := splitLogicalLines(src)
	var out strings.Builder
	var stack []string // open block keywords

	for _, ln := range lines {
		trimmed := strings.TrimSpace(ln.text)
		if trimmed == "" {
			out.WriteString("\n")
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			out.WriteString("\n")
			continue
		}
		word := firstWord(trimmed)

		switch {
		case blockOpeners[word] != nil:
			stack = append(stack, word)
			out.WriteString("{% " + trimmed + " %}\n")
		case endingFor[word] != "":
			want := endingFor[word]
			if len(stack) == 0 || stack[len(stack)-1] != want {
				return "", fmt.Errorf("script line %d: %q does not match an open %q block", ln.num, word, want)
			}
			stack = stack[:len(stack)-1]
			out.WriteString("{% " + trimmed + " %}\n")
		case len(middleKeywords[word]) > 0:
			if len(stack) == 0 || !containsStr(middleKeywords[word], stack[len(stack)-1]) {
				return "", fmt.Errorf("script line %d: %q is not valid here", ln.num, word)
			}
			out.WriteString("{% " + trimmed + " %}\n")
		case word == "print":
			expr := strings.TrimSpace(trimmed[len("print"):])
			out.WriteString("{{ " + expr + " }}\n")
		case strings.HasPrefix(trimmed, "@"):
			out.WriteString("{% " + trimmed + " %}\n")
		case otherLineKeywords[word]:
			out.WriteString("{% " + trimmed + " %}\n")
		default:
			out.WriteString("{% do " + trimmed + " %}\n")
		}
	}
	if len(stack) != 0 {
		return "", fmt.Errorf("script: unterminated %q block at end of input", stack[len(stack)-1])
	}
	return out.String(), nil
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type logicalLine struct {
	text string
	num  int
}

// splitLogicalLines joins continuation lines into one logical line.
// Continuation is signalled by a trailing binary operator or an
// unclosed bracket/string on the accumulated physical lines so far, or
// by the next physical line starting with a binary operator or a
// closing bracket (§4.11).
func splitLogicalLines(src string) []logicalLine {
	physical := strings.Split(src, "\n")
	var out []logicalLine
	var buf strings.Builder
	bufStartLine := 0
	var state lineState
	pending := false

	flush := func() {
		if buf.Len() > 0 {
			out = append(out, logicalLine{text: buf.String(), num: bufStartLine})
		}
		buf.Reset()
		state = lineState{}
		pending = false
	}

	for i, raw := range physical {
		lineNo := i + 1
		switch {
		case buf.Len() == 0:
			bufStartLine = lineNo
			buf.WriteString(raw)
		case pending || startsWithContinuation(raw):
			buf.WriteString(" ")
			buf.WriteString(strings.TrimSpace(raw))
		default:
			flush()
			bufStartLine = lineNo
			buf.WriteString(raw)
		}
		state = scanLineState(raw, state)
		pending = state.openBrackets() > 0 || state.inString || trailingOperator(raw)
	}
	flush()
	return out
}

// lineState tracks bracket depth and whether a multi-line string is
// still open across physical lines.
type lineState struct {
	parens, brackets, braces int
	inString                 bool
	stringQuote              byte
}

func (s lineState) openBrackets() int { return s.parens + s.brackets + s.braces }

func scanLineState(line string, prev lineState) lineState {
	s := prev
	i := 0
	for i < len(line) {
		c := line[i]
		if s.inString {
			if c == '\\' && i+1 < len(line) {
				i += 2
				continue
			}
			if c == s.stringQuote {
				s.inString = false
			}
			i++
			continue
		}
		switch c {
		case '"', '\'', '`':
			s.inString = true
			s.stringQuote = c
		case '#':
			return s // rest of line is a comment
		case '(':
			s.parens++
		case ')':
			if s.parens > 0 {
				s.parens--
			}
		case '[':
			s.brackets++
		case ']':
			if s.brackets > 0 {
				s.brackets--
			}
		case '{':
			s.braces++
		case '}':
			if s.braces > 0 {
				s.braces--
			}
		}
		i++
	}
	return s
}

var trailingOps = []string{"+", "-", "*", "/", "and", "or", "not", ",", "."}

func trailingOperator(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}
	for _, op := range trailingOps {
		if strings.HasSuffix(t, op) {
			return true
		}
	}
	return false
}

func startsWithContinuation(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, ")") || strings.HasPrefix(t, "]") || strings.HasPrefix(t, "}") {
		return true
	}
	for _, op := range []string{"and ", "or ", "+ ", "- ", "* ", "/ ", ". "} {
		if strings.HasPrefix(t, op) {
			return true
		}
	}
	return false
}
