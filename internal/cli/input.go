// Package cli is an interactive editor simulator for trying suggestions from a terminal.
//
// Plain input is typed one keystroke at a time at the end of the current line, so every prefix
// is resolved the way an editor would report it. Lines starting with ':' are commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bastiangx/faultyai/internal/logger"
	"github.com/bastiangx/faultyai/pkg/config"
	"github.com/bastiangx/faultyai/pkg/editor"
	"github.com/bastiangx/faultyai/pkg/render"
	"github.com/bastiangx/faultyai/pkg/resolve"
	"github.com/bastiangx/faultyai/pkg/session"
)

var logs = logger.New("cli")

const help = `commands:
  <text>          type text at the end of the current line
  :accept, :tab   accept the suggestion
  :dismiss, :esc  hide the suggestion
  :del [n]        backspace n characters (default 1)
  :enter          start a new line below the current one
  :line <n>       move to line n
  :blur           simulate focus loss
  :hover          show the hover text of the current line
  :rules [prefix] list rule keys
  :show           print the buffer
  :quit, :q       exit`

// InputHandler drives one in-memory document and its controller from line-based input.
type InputHandler struct {
	doc      *editor.Document
	ctrl     *session.Controller
	resolver *resolve.Resolver
	term     *terminal
	showDiff bool

	line    int
	notices int
}

// NewInputHandler creates a simulator with an empty document configured from cfg.
func NewInputHandler(cfg *config.Config, out io.Writer) *InputHandler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	opts := editor.Options{TabSize: cfg.Engine.TabSize, InsertSpaces: cfg.Engine.InsertSpaces}
	doc := editor.NewDocumentLines(nil, opts)
	doc.SetFormatter(reindent(opts.IndentUnit()))

	resolver := resolve.New(nil)
	ctrl := session.New(doc, resolver, cfg.Engine.SessionOptions())
	ctrl.Attach(doc)

	return &InputHandler{
		doc:      doc,
		ctrl:     ctrl,
		resolver: resolver,
		term:     newTerminal(out, cfg.CLI.Color),
		showDiff: cfg.CLI.ShowDiff,
	}
}

// reindent is the formatter used after a multi-line accept: it re-applies brace indentation
// relative to the first line of the span.
func reindent(unit string) editor.FormatFunc {
	return func(_ context.Context, lines []string) ([]string, error) {
		if len(lines) == 0 {
			return lines, nil
		}
		return render.Indent(lines[0], lines, unit), nil
	}
}

// Start reads input until EOF, :quit or ctx is done.
func (h *InputHandler) Start(ctx context.Context, in io.Reader) error {
	defer h.Close()

	h.term.printf("FaultyAI CLI [BETA]\n")
	h.term.printf("type Java and watch the ghost text, :help for commands (Ctrl+D to exit)\n")

	reader := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		h.term.printf("%d> ", h.line+1)
		input, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		input = strings.TrimRight(input, "\r\n")
		if input != "" {
			quit, cmdErr := h.handleInput(ctx, input)
			if cmdErr != nil {
				logs.Error("Command failed", "input", input, "err", cmdErr)
				h.term.printf("error: %v\n", cmdErr)
			}
			if quit {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

// Close stops background formatting and releases the document.
func (h *InputHandler) Close() {
	h.ctrl.Close()
	h.doc.Close()
}

// handleInput runs one input line and reports whether the loop should stop.
func (h *InputHandler) handleInput(ctx context.Context, input string) (bool, error) {
	if !strings.HasPrefix(input, ":") {
		if err := h.typeText(ctx, input); err != nil {
			return false, err
		}
		h.draw()
		return false, nil
	}

	fields := strings.Fields(input[1:])
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]
	logs.Debug("Processing command", "cmd", cmd, "args", args)

	switch cmd {
	case "q", "quit":
		return true, nil
	case "help", "h":
		h.term.printf("%s\n", help)
		return false, nil
	case "accept", "tab":
		return false, h.accept(ctx)
	case "dismiss", "esc":
		h.ctrl.Dismiss(ctx)
	case "blur":
		h.ctrl.FocusLost(ctx)
	case "del":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				return false, fmt.Errorf("bad count %q", args[0])
			}
			n = v
		}
		if err := h.backspace(ctx, n); err != nil {
			return false, err
		}
	case "enter":
		if err := h.newline(ctx); err != nil {
			return false, err
		}
	case "line":
		if len(args) == 0 {
			return false, errors.New("usage: :line <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > h.doc.LineCount() {
			return false, fmt.Errorf("no line %q: %w", args[0], editor.ErrLineOutOfRange)
		}
		h.line = n - 1
	case "hover":
		text, ok := h.ctrl.Hover(h.line)
		if !ok {
			h.term.printf("nothing to hover on line %d\n", h.line+1)
			return false, nil
		}
		h.term.printf("%s\n", text)
		return false, nil
	case "rules":
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		h.rules(prefix)
		return false, nil
	case "show":
	default:
		return false, fmt.Errorf("unknown command %q, try :help", cmd)
	}
	h.draw()
	return false, nil
}

// typeText sends text one rune per change, like keystrokes.
func (h *InputHandler) typeText(ctx context.Context, text string) error {
	for _, r := range text {
		current, err := h.doc.LineText(h.line)
		if err != nil {
			return err
		}
		pos := editor.Position{Line: h.line, Col: utf8.RuneCountInString(current)}
		if err := h.doc.Type(ctx, pos, string(r)); err != nil {
			return fmt.Errorf("type %q: %w", r, err)
		}
	}
	return nil
}

// backspace removes n runes from the end of the current line, one change each.
func (h *InputHandler) backspace(ctx context.Context, n int) error {
	for range n {
		current, err := h.doc.LineText(h.line)
		if err != nil {
			return err
		}
		col := utf8.RuneCountInString(current)
		if col == 0 {
			return nil
		}
		r := editor.Range{
			Start: editor.Position{Line: h.line, Col: col - 1},
			End:   editor.Position{Line: h.line, Col: col},
		}
		if err := h.doc.Erase(ctx, r); err != nil {
			return fmt.Errorf("backspace: %w", err)
		}
	}
	return nil
}

// newline splits at the end of the current line and leaves no ghost text behind.
func (h *InputHandler) newline(ctx context.Context) error {
	h.ctrl.Dismiss(ctx)
	current, err := h.doc.LineText(h.line)
	if err != nil {
		return err
	}
	pos := editor.Position{Line: h.line, Col: utf8.RuneCountInString(current)}
	if err := h.doc.Type(ctx, pos, "\n"); err != nil {
		return fmt.Errorf("newline: %w", err)
	}
	// The split is reported on the line above, which can match again.
	h.ctrl.Dismiss(ctx)
	h.line++
	return nil
}

func (h *InputHandler) accept(ctx context.Context) error {
	before := h.doc.Text()
	if err := h.ctrl.Accept(ctx); err != nil {
		if errors.Is(err, session.ErrNoSuggestion) {
			h.term.printf("nothing to accept\n")
			return nil
		}
		return err
	}
	h.ctrl.Wait()
	h.line = h.doc.Cursor().Line

	if h.showDiff {
		h.term.drawDiff(before, h.doc.Text())
	}
	h.draw()
	return nil
}

func (h *InputHandler) rules(prefix string) {
	table := h.resolver.Table()
	keys := table.Keys(prefix)
	kinds := make(map[string]string, len(keys))
	for _, k := range keys {
		if r, ok := table.Rule(k); ok {
			kinds[k] = r.Kind.String()
		}
	}
	h.term.drawKeys(keys, kinds)
}

// draw prints notices that arrived since the last draw, then the buffer.
func (h *InputHandler) draw() {
	notices := h.doc.Notices()
	for _, n := range notices[h.notices:] {
		h.term.drawNotice(n)
	}
	h.notices = len(notices)
	h.term.drawBuffer(h.doc.Lines(), h.doc.Overlays(), h.line)
}
