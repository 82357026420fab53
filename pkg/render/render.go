/*
Package render turns suggestion fragments into ghost text.

Fragments are indented against the anchor line with a brace-depth counter instead of a parser:
a fragment ending in "{" opens a level for the ones after it, a fragment starting with a closing
bracket closes one before it is indented. The indented lines are then laid out either one overlay
per physical line (Multi), which needs enough blank lines under the anchor, or joined with spaces
into a single overlay on the anchor line (Single).

When a multi-line suggestion lacks room, a Spacer can insert blank lines below the anchor and
remove them again later. It is the only speculative edit the engine makes.
*/
package render

import (
	"strings"
	"unicode"

	"github.com/bastiangx/faultyai/pkg/editor"
)

// Mode is how a suggestion is displayed.
type Mode int

const (
	Single Mode = iota
	Multi
)

func (m Mode) String() string {
	if m == Multi {
		return "multi"
	}
	return "single"
}

// Policy decides what happens when a multi-line suggestion has no room below its anchor.
type Policy int

const (
	// PolicySpacer inserts blank lines to keep the block shape.
	PolicySpacer Policy = iota
	// PolicyFallback collapses to a single line.
	PolicyFallback
)

// ParsePolicy maps a config value to a Policy. Unknown values fall back to PolicySpacer.
func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), "fallback") {
		return PolicyFallback
	}
	return PolicySpacer
}

func (p Policy) String() string {
	if p == PolicyFallback {
		return "fallback"
	}
	return "spacer"
}

// Plan is what the host should paint.
type Plan struct {
	Mode     Mode
	Overlays []editor.Overlay
}

// LeadingWhitespace returns the indentation of s.
func LeadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeftFunc(s, unicode.IsSpace))]
}

// Indent adjusts fragments to the indentation of anchor. The first fragment continues the
// anchor line and is returned as is.
func Indent(anchor string, fragments []string, unit string) []string {
	if len(fragments) == 0 {
		return nil
	}

	base := LeadingWhitespace(anchor)
	out := make([]string, 0, len(fragments))
	depth := 0

	for i, raw := range fragments {
		if i == 0 {
			out = append(out, raw)
			if opensBlock(strings.TrimSpace(raw)) {
				depth = 1
			}
			continue
		}

		trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
		if trimmed == "" {
			out = append(out, base+strings.Repeat(unit, depth))
			continue
		}
		if closesBlock(trimmed) && depth > 0 {
			depth--
		}
		out = append(out, base+strings.Repeat(unit, depth)+trimmed)
		if opensBlock(trimmed) {
			depth++
		}
	}
	return out
}

func opensBlock(s string) bool {
	return strings.HasSuffix(strings.TrimRightFunc(s, unicode.IsSpace), "{")
}

func closesBlock(s string) bool {
	switch s[0] {
	case '}', ']', ')':
		return true
	}
	return false
}

// VisualWhitespace makes leading whitespace survive overlay rendering: tabs become tabSize
// spaces and every leading space becomes a non-breaking space.
func VisualWhitespace(line string, tabSize int) string {
	if tabSize <= 0 {
		tabSize = 2
	}
	rest := strings.TrimLeft(line, " \t")
	leading := line[:len(line)-len(rest)]
	if leading == "" {
		return line
	}
	leading = strings.ReplaceAll(leading, "\t", strings.Repeat(" ", tabSize))
	return strings.ReplaceAll(leading, " ", "\u00a0") + rest
}

// BlankBelow counts the whitespace-only lines directly after line.
func BlankBelow(r editor.Reader, line int) int {
	n := 0
	for i := line + 1; i < r.LineCount(); i++ {
		if !r.IsBlank(i) {
			break
		}
		n++
	}
	return n
}

// Layout decides between Single and Multi for already indented lines anchored at line.
// Multi needs at least len(lines)-1 blank lines below the anchor.
func Layout(r editor.Reader, line int, lines []string, tabSize int) Plan {
	display := make([]string, len(lines))
	for i, l := range lines {
		display[i] = VisualWhitespace(l, tabSize)
	}

	if len(lines) <= 1 || BlankBelow(r, line) < len(lines)-1 {
		return Plan{
			Mode:     Single,
			Overlays: []editor.Overlay{{Line: line, Text: strings.Join(display, " ")}},
		}
	}

	plan := Plan{Mode: Multi}
	for i, text := range display {
		target := line + i
		if target >= r.LineCount() {
			break
		}
		plan.Overlays = append(plan.Overlays, editor.Overlay{Line: target, Text: text})
	}
	return plan
}
