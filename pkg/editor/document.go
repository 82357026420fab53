package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// Listener receives every batch of changes applied to a Document, including the ones made
// through the Buffer primitives.
type Listener func(ctx context.Context, changes []Change)

// FormatFunc formats a range of a Document in place. It receives the current lines and
// returns the replacement for lines r.Start.Line..r.End.Line.
type FormatFunc func(ctx context.Context, lines []string) ([]string, error)

// OpKind names an outbound host operation recorded by a Document.
type OpKind string

const (
	OpEdit    OpKind = "edit"
	OpOverlay OpKind = "overlay"
	OpClear   OpKind = "clear"
	OpCursor  OpKind = "cursor"
	OpFormat  OpKind = "format"
	OpNotify  OpKind = "notify"
)

// Op is an operation the engine asked of the host. A Document mirroring a remote editor
// forwards these through its sink.
type Op struct {
	Kind     OpKind
	Range    Range
	Text     string
	Overlays []Overlay
	Pos      Position
}

// Document is an in-memory Editor. It always holds at least one line.
type Document struct {
	mu       sync.Mutex
	lines    []string
	opts     Options
	overlays []Overlay
	cursor   Position
	notices  []string
	closed   bool

	listeners []Listener
	sink      func(Op)
	formatter FormatFunc
}

// NewDocument creates a document from text split on newlines.
func NewDocument(text string, opts Options) *Document {
	return &Document{
		lines: strings.Split(text, "\n"),
		opts:  opts,
	}
}

// NewDocumentLines creates a document from lines.
func NewDocumentLines(lines []string, opts Options) *Document {
	if len(lines) == 0 {
		lines = []string{""}
	}
	return &Document{
		lines: append([]string(nil), lines...),
		opts:  opts,
	}
}

// Subscribe registers l for change notifications.
func (d *Document) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// SetSink routes outbound operations to fn.
func (d *Document) SetSink(fn func(Op)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = fn
}

// SetFormatter installs the formatter used by Format. Without one Format only records the call.
func (d *Document) SetFormatter(fn FormatFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.formatter = fn
}

// SetOptions replaces the indentation settings.
func (d *Document) SetOptions(opts Options) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts = opts
}

// Close makes further mutations fail with ErrClosed.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.listeners = nil
	d.sink = nil
}

func (d *Document) LineText(line int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if line < 0 || line >= len(d.lines) {
		return "", fmt.Errorf("line %d of %d: %w", line, len(d.lines), ErrLineOutOfRange)
	}
	return d.lines[line], nil
}

func (d *Document) LineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}

func (d *Document) IsBlank(line int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if line < 0 || line >= len(d.lines) {
		return false
	}
	return strings.TrimSpace(d.lines[line]) == ""
}

func (d *Document) Options() Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts
}

// Lines returns a copy of the buffer.
func (d *Document) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

// Text returns the buffer joined with newlines.
func (d *Document) Text() string {
	return strings.Join(d.Lines(), "\n")
}

// Overlays returns the ghost text currently painted.
func (d *Document) Overlays() []Overlay {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Overlay(nil), d.overlays...)
}

// Cursor returns the last cursor position set.
func (d *Document) Cursor() Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// Notices returns every message passed to Notify.
func (d *Document) Notices() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.notices...)
}

// Apply performs host-side edits, such as user typing, and notifies listeners once with the
// whole batch. RangeLength is computed from the buffer. No outbound ops are recorded.
func (d *Document) Apply(ctx context.Context, edits ...Change) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	applied := make([]Change, 0, len(edits))
	for _, e := range edits {
		c, err := d.splice(e.Range, e.Text)
		if err != nil {
			d.mu.Unlock()
			d.notify(ctx, applied)
			return err
		}
		applied = append(applied, c)
	}
	d.mu.Unlock()
	d.notify(ctx, applied)
	return nil
}

// Type inserts text at pos as a host edit.
func (d *Document) Type(ctx context.Context, pos Position, text string) error {
	return d.Apply(ctx, Change{Range: Range{Start: pos, End: pos}, Text: text})
}

// Erase removes r as a host edit.
func (d *Document) Erase(ctx context.Context, r Range) error {
	return d.Apply(ctx, Change{Range: r})
}

func (d *Document) Replace(ctx context.Context, start, end int, text string) error {
	d.mu.Lock()
	if start < 0 || end < start || end >= len(d.lines) {
		n := len(d.lines)
		d.mu.Unlock()
		return fmt.Errorf("replace %d..%d of %d: %w", start, end, n, ErrLineOutOfRange)
	}
	r := Range{
		Start: Position{Line: start},
		End:   Position{Line: end, Col: utf8.RuneCountInString(d.lines[end])},
	}
	return d.edit(ctx, r, text)
}

func (d *Document) Insert(ctx context.Context, pos Position, text string) error {
	d.mu.Lock()
	return d.edit(ctx, Range{Start: pos, End: pos}, text)
}

func (d *Document) DeleteLines(ctx context.Context, start, end int) error {
	d.mu.Lock()
	n := len(d.lines)
	if end > n {
		end = n
	}
	if start < 0 || start >= n {
		d.mu.Unlock()
		return fmt.Errorf("delete from %d of %d: %w", start, n, ErrLineOutOfRange)
	}
	if start >= end {
		d.mu.Unlock()
		return nil
	}
	var r Range
	switch {
	case end < n:
		r = Range{Start: Position{Line: start}, End: Position{Line: end}}
	case start > 0:
		r = Range{
			Start: Position{Line: start - 1, Col: utf8.RuneCountInString(d.lines[start-1])},
			End:   Position{Line: n - 1, Col: utf8.RuneCountInString(d.lines[n-1])},
		}
	default:
		r = Range{End: Position{Line: n - 1, Col: utf8.RuneCountInString(d.lines[n-1])}}
	}
	return d.edit(ctx, r, "")
}

// edit is called with d.mu held and releases it.
func (d *Document) edit(ctx context.Context, r Range, text string) error {
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	c, err := d.splice(r, text)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink(Op{Kind: OpEdit, Range: c.Range, Text: text})
	}
	d.notify(ctx, []Change{c})
	return nil
}

func (d *Document) ShowOverlay(_ context.Context, overlays []Overlay) error {
	d.mu.Lock()
	d.overlays = append([]Overlay(nil), overlays...)
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink(Op{Kind: OpOverlay, Overlays: overlays})
	}
	return nil
}

func (d *Document) ClearOverlay(_ context.Context) error {
	d.mu.Lock()
	d.overlays = nil
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink(Op{Kind: OpClear})
	}
	return nil
}

func (d *Document) SetCursor(_ context.Context, pos Position) error {
	d.mu.Lock()
	if pos.Line < 0 || pos.Line >= len(d.lines) {
		n := len(d.lines)
		d.mu.Unlock()
		return fmt.Errorf("cursor at line %d of %d: %w", pos.Line, n, ErrLineOutOfRange)
	}
	d.cursor = pos
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink(Op{Kind: OpCursor, Pos: pos})
	}
	return nil
}

func (d *Document) Format(ctx context.Context, r Range) error {
	d.mu.Lock()
	if r.Start.Line < 0 || r.End.Line >= len(d.lines) || r.End.Line < r.Start.Line {
		n := len(d.lines)
		d.mu.Unlock()
		return fmt.Errorf("format %d..%d of %d: %w", r.Start.Line, r.End.Line, n, ErrLineOutOfRange)
	}
	sink, format := d.sink, d.formatter
	span := append([]string(nil), d.lines[r.Start.Line:r.End.Line+1]...)
	d.mu.Unlock()
	if sink != nil {
		sink(Op{Kind: OpFormat, Range: r})
	}
	if format == nil {
		return nil
	}
	formatted, err := format(ctx, span)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}
	return d.Apply(ctx, Change{
		Range: Range{
			Start: Position{Line: r.Start.Line},
			End:   Position{Line: r.End.Line, Col: utf8.RuneCountInString(span[len(span)-1])},
		},
		Text: strings.Join(formatted, "\n"),
	})
}

func (d *Document) Notify(_ context.Context, msg string) error {
	d.mu.Lock()
	d.notices = append(d.notices, msg)
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink(Op{Kind: OpNotify, Text: msg})
	}
	return nil
}

func (d *Document) notify(ctx context.Context, changes []Change) {
	if len(changes) == 0 {
		return
	}
	d.mu.Lock()
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()
	for _, l := range listeners {
		l(ctx, changes)
	}
}

// splice replaces r with text. Positions past the end of the buffer clamp to its end and
// columns clamp to their line. Called with d.mu held.
func (d *Document) splice(r Range, text string) (Change, error) {
	if r.Start.Line < 0 || r.End.Line < 0 || r.Start.Col < 0 || r.End.Col < 0 {
		return Change{}, fmt.Errorf("negative position in %+v: %w", r, ErrLineOutOfRange)
	}
	start, end := d.clamp(r.Start), d.clamp(r.End)
	if end.Line < start.Line || (end.Line == start.Line && end.Col < start.Col) {
		start, end = end, start
	}

	first := []rune(d.lines[start.Line])
	last := []rune(d.lines[end.Line])

	removed := 0
	if start.Line == end.Line {
		removed = end.Col - start.Col
	} else {
		removed = len(first) - start.Col + 1
		for i := start.Line + 1; i < end.Line; i++ {
			removed += utf8.RuneCountInString(d.lines[i]) + 1
		}
		removed += end.Col
	}

	joined := string(first[:start.Col]) + text + string(last[end.Col:])
	replacement := strings.Split(joined, "\n")

	lines := make([]string, 0, len(d.lines)-(end.Line-start.Line+1)+len(replacement))
	lines = append(lines, d.lines[:start.Line]...)
	lines = append(lines, replacement...)
	lines = append(lines, d.lines[end.Line+1:]...)
	d.lines = lines

	return Change{Range: Range{Start: start, End: end}, Text: text, RangeLength: removed}, nil
}

func (d *Document) clamp(p Position) Position {
	if p.Line >= len(d.lines) {
		last := len(d.lines) - 1
		return Position{Line: last, Col: utf8.RuneCountInString(d.lines[last])}
	}
	if n := utf8.RuneCountInString(d.lines[p.Line]); p.Col > n {
		p.Col = n
	}
	return p
}
