package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/bastiangx/faultyai/pkg/editor"
)

// Spacer tracks blank lines inserted below an anchor to make room for a multi-line overlay.
// The zero value holds nothing.
type Spacer struct {
	anchor int
	count  int
}

// Active reports whether inserted lines are outstanding.
func (s *Spacer) Active() bool { return s.count > 0 }

// Anchor is the first inserted line.
func (s *Spacer) Anchor() int { return s.anchor }

// Count is the number of inserted lines.
func (s *Spacer) Count() int { return s.count }

// Ensure makes sure at least extra blank lines follow line, inserting the missing ones.
// line is an index into the buffer as it is now. Lines already inserted for another anchor are
// removed first, which can move line up; the returned index is where it ended up.
func (s *Spacer) Ensure(ctx context.Context, buf editor.Buffer, line, extra int) (int, error) {
	if extra <= 0 {
		return line, nil
	}

	if s.Active() && s.anchor != line+1 {
		shift, err := s.Clear(ctx, buf)
		if err != nil {
			return line, err
		}
		moved, ok := shift.Apply(line)
		if !ok {
			return line, fmt.Errorf("line %d was preview space: %w", line, editor.ErrLineOutOfRange)
		}
		line = moved
	}
	anchor := line + 1
	if anchor > buf.LineCount() {
		return line, nil
	}

	needed := extra - BlankBelow(buf, line)
	if needed <= 0 {
		return line, nil
	}

	if err := buf.Insert(ctx, editor.Position{Line: anchor}, strings.Repeat("\n", needed)); err != nil {
		return line, fmt.Errorf("insert preview space: %w", err)
	}
	if s.Active() {
		s.count += needed
	} else {
		s.anchor, s.count = anchor, needed
	}
	return line, nil
}

// Clear deletes the inserted lines. Only the run of blank lines starting at the anchor is
// removed, so text typed into the spacer survives. The returned Shift describes the removal.
// The Spacer is reset even on error.
func (s *Spacer) Clear(ctx context.Context, buf editor.Buffer) (Shift, error) {
	if !s.Active() {
		return Shift{}, nil
	}
	anchor, count := s.anchor, s.count
	s.anchor, s.count = 0, 0

	end := anchor
	for end < anchor+count && end < buf.LineCount() && buf.IsBlank(end) {
		end++
	}
	if end == anchor {
		return Shift{}, nil
	}
	if err := buf.DeleteLines(ctx, anchor, end); err != nil {
		return Shift{}, fmt.Errorf("clear preview space: %w", err)
	}
	return Shift{At: anchor, Delta: anchor - end}, nil
}

// Follow keeps the inserted lines in step with a host edit that ends above them. Edits that
// reach into the inserted lines are left to the caller.
func (s *Spacer) Follow(ch editor.Change) {
	if s.Active() && ch.Range.End.Line < s.anchor {
		s.anchor += ch.LineDelta()
	}
}

// Shift is a change in line count: Delta lines were inserted at At, or removed from At when
// Delta is negative.
type Shift struct {
	At    int
	Delta int
}

// Apply maps a line index taken before the shift to the index after it. It reports false for
// a line that was removed.
func (sh Shift) Apply(line int) (int, bool) {
	if line < sh.At {
		return line, true
	}
	if sh.Delta < 0 && line < sh.At-sh.Delta {
		return line, false
	}
	return line + sh.Delta, true
}

// Base maps a line of the buffer as it is now to its index without the inserted lines. It
// reports false for an inserted line.
func (s *Spacer) Base(line int) (int, bool) {
	if !s.Active() || line < s.anchor {
		return line, true
	}
	if line < s.anchor+s.count {
		return line, false
	}
	return line - s.count, true
}
