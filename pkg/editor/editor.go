/*
Package editor defines what the suggestion engine needs from a host editor.

A host is anything holding the live text buffer: a real editor reached over IPC, the in-memory
Document used by the CLI and the tests, or a mirror of a remote buffer. The engine reads lines,
performs atomic line-level edits, paints ghost text overlays, moves the cursor and asks for
best-effort formatting. It never touches host UI primitives directly.

All line and column numbers are 0-based. Columns count runes.
*/
package editor

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrLineOutOfRange is returned when a line index is not inside the buffer.
	ErrLineOutOfRange = errors.New("line out of range")
	// ErrClosed is returned by a host that has been closed.
	ErrClosed = errors.New("editor closed")
)

// Position is a point in the buffer.
type Position struct {
	Line int
	Col  int
}

// Range spans from Start to End, End exclusive.
type Range struct {
	Start Position
	End   Position
}

// Overlay is ghost text painted after the content of Line.
type Overlay struct {
	Line int
	Text string
}

// Options are the host's indentation settings.
type Options struct {
	TabSize      int
	InsertSpaces bool
}

// IndentUnit returns one level of indentation for these options.
func (o Options) IndentUnit() string {
	if !o.InsertSpaces {
		return "\t"
	}
	size := o.TabSize
	if size <= 0 {
		size = 2
	}
	return strings.Repeat(" ", size)
}

// Change is one contiguous edit reported by the host, shaped like an editor content change:
// Range is the replaced span in the old buffer, Text the inserted text and RangeLength the
// number of characters removed.
type Change struct {
	Range       Range
	Text        string
	RangeLength int
}

// Line is the line the change starts on.
func (c Change) Line() int { return c.Range.Start.Line }

// IsDeletion reports a pure removal.
func (c Change) IsDeletion() bool { return c.Text == "" && c.RangeLength > 0 }

// LineDelta is the number of lines the change adds, negative when it joins lines.
func (c Change) LineDelta() int {
	return strings.Count(c.Text, "\n") - (c.Range.End.Line - c.Range.Start.Line)
}

// Reader is the read-only view of a buffer.
type Reader interface {
	LineText(line int) (string, error)
	LineCount() int
	IsBlank(line int) bool
	Options() Options
}

// Buffer adds the mutation primitives. Each call is a single atomic host edit.
type Buffer interface {
	Reader
	// Replace swaps lines start..end inclusive for text, which may contain newlines.
	Replace(ctx context.Context, start, end int, text string) error
	// Insert puts text at pos. A position past the end clamps to the end of the buffer.
	Insert(ctx context.Context, pos Position, text string) error
	// DeleteLines removes lines [start, end).
	DeleteLines(ctx context.Context, start, end int) error
}

// Editor is the full host contract.
type Editor interface {
	Buffer
	ShowOverlay(ctx context.Context, overlays []Overlay) error
	ClearOverlay(ctx context.Context) error
	SetCursor(ctx context.Context, pos Position) error
	// Format asks the host to format r. Failures are non-fatal to callers.
	Format(ctx context.Context, r Range) error
	Notify(ctx context.Context, msg string) error
}
