package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/bastiangx/faultyai/pkg/editor"
)

// styles are the lipgloss styles of the simulator. With color off every style is skipped and
// diffs fall back to word-diff markers.
type styles struct {
	gutter  lipgloss.Style
	current lipgloss.Style
	ghost   lipgloss.Style
	insert  lipgloss.Style
	remove  lipgloss.Style
	notice  lipgloss.Style
	key     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		gutter:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9893a5", Dark: "#6e6a86"}),
		current: r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}),
		ghost:   r.NewStyle().Faint(true).Italic(true),
		insert:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#286983", Dark: "#9ccfd8"}),
		remove:  r.NewStyle().Strikethrough(true).Foreground(lipgloss.AdaptiveColor{Light: "#b4637a", Dark: "#eb6f92"}),
		notice:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#ea9d34", Dark: "#f6c177"}),
		key:     r.NewStyle().Bold(true),
	}
}

// terminal draws the simulated buffer.
type terminal struct {
	out    io.Writer
	color  bool
	styles styles
}

func newTerminal(out io.Writer, color bool) *terminal {
	return &terminal{
		out:    out,
		color:  color,
		styles: newStyles(lipgloss.NewRenderer(out)),
	}
}

// paint styles a single line of text. lipgloss pads multi-line blocks, so callers never pass
// newlines.
func (t *terminal) paint(s lipgloss.Style, text string) string {
	if !t.color || text == "" {
		return text
	}
	return s.Render(text)
}

func (t *terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

// drawBuffer prints every line with its ghost text, marking the line being typed on.
func (t *terminal) drawBuffer(lines []string, overlays []editor.Overlay, current int) {
	ghosts := make(map[int]string, len(overlays))
	for _, o := range overlays {
		ghosts[o.Line] = strings.ReplaceAll(o.Text, "\u00a0", " ")
	}

	for i, line := range lines {
		marker := " "
		if i == current {
			marker = ">"
		}
		gutter := t.paint(t.styles.gutter, fmt.Sprintf("%s%3d │", marker, i+1))
		if i == current {
			line = t.paint(t.styles.current, line)
		}
		t.printf("%s %s%s\n", gutter, line, t.paint(t.styles.ghost, ghosts[i]))
	}
}

// drawDiff prints what an accept changed, one output line per buffer line.
func (t *terminal) drawDiff(before, after string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))

	var b strings.Builder
	for _, d := range diffs {
		for i, part := range strings.Split(d.Text, "\n") {
			if i > 0 {
				b.WriteString("\n")
			}
			if part == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				if t.color {
					b.WriteString(t.paint(t.styles.insert, part))
				} else {
					b.WriteString("{+" + part + "+}")
				}
			case diffmatchpatch.DiffDelete:
				if t.color {
					b.WriteString(t.paint(t.styles.remove, part))
				} else {
					b.WriteString("[-" + part + "-]")
				}
			default:
				b.WriteString(part)
			}
		}
	}

	t.printf("%s\n", t.paint(t.styles.key, "accepted:"))
	for _, line := range strings.Split(b.String(), "\n") {
		t.printf("  %s\n", line)
	}
}

func (t *terminal) drawNotice(msg string) {
	t.printf("%s\n", t.paint(t.styles.notice, "ℹ "+msg))
}

func (t *terminal) drawKeys(keys []string, kinds map[string]string) {
	if len(keys) == 0 {
		t.printf("no rules\n")
		return
	}
	for _, k := range keys {
		t.printf("  %-18s %s\n", t.paint(t.styles.key, k), t.paint(t.styles.gutter, kinds[k]))
	}
}
