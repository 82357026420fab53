/*
Package session holds the per-document suggestion lifecycle.

A Controller reacts to every change batch the host reports. It resolves the edited line against
the pattern table, shows at most one pending suggestion as ghost text, materializes it on Accept
and remembers which lines were accepted and which rules the user rejected on which line.

The host applies the controller's own edits synchronously and reports them back as changes.
Those echoes are dropped while the controller is busy. Renders carry a request id and are
discarded when a newer request or a dismissal has happened in the meantime.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bastiangx/faultyai/internal/logger"
	"github.com/bastiangx/faultyai/pkg/editor"
	"github.com/bastiangx/faultyai/pkg/patterns"
	"github.com/bastiangx/faultyai/pkg/render"
	"github.com/bastiangx/faultyai/pkg/resolve"
)

var logs = logger.New("session")

var (
	// ErrNoSuggestion is returned by Accept when nothing is pending.
	ErrNoSuggestion = errors.New("no pending suggestion")
	// ErrBusy is returned by Accept while the controller is editing the document itself.
	ErrBusy = errors.New("controller busy")
)

const hoverTitle = "**FaultyAI Suggestion** (Press Tab to accept)"

// Options tune a Controller.
type Options struct {
	Policy            render.Policy
	FormatAfterAccept bool
	FormatDelay       time.Duration
	// Notify sends an informational notice for every new suggestion.
	Notify bool
	// TabSize is used when the host does not report one.
	TabSize int
}

// DefaultOptions mirror the defaults of the [engine] config section.
func DefaultOptions() Options {
	return Options{
		Policy:            render.PolicySpacer,
		FormatAfterAccept: true,
		FormatDelay:       50 * time.Millisecond,
		Notify:            true,
		TabSize:           2,
	}
}

// Pending is the suggestion currently shown.
type Pending struct {
	Line    int
	Key     string
	Kind    patterns.Kind
	Capture string
	// Fragments are the rule fragments before indentation.
	Fragments []string
	// Lines are the fragments indented against the anchor line at render time.
	Lines []string
	Mode  render.Mode
}

// Subscriber is a host that reports its changes to a listener.
type Subscriber interface {
	Subscribe(l editor.Listener)
}

// Controller owns the suggestion state of one document.
type Controller struct {
	host     editor.Editor
	resolver *resolve.Resolver

	mu         sync.Mutex
	opts       Options
	pending    *Pending
	accepted   map[int]string
	suppressed resolve.Suppressions
	spacer     render.Spacer

	busy      atomic.Bool
	requestID atomic.Uint64

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a controller for host. A nil resolver uses the built-in table.
func New(host editor.Editor, resolver *resolve.Resolver, opts Options) *Controller {
	if resolver == nil {
		resolver = resolve.New(nil)
	}
	return &Controller{
		host:       host,
		resolver:   resolver,
		opts:       opts,
		accepted:   make(map[int]string),
		suppressed: resolve.Suppressions{},
		done:       make(chan struct{}),
	}
}

// Attach subscribes the controller to the changes of s.
func (c *Controller) Attach(s Subscriber) {
	s.Subscribe(c.HandleChanges)
}

// SetOptions replaces the options. The pending suggestion keeps its layout until the next change.
func (c *Controller) SetOptions(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
}

// HandleChanges processes one batch of host changes in order. Batches that arrive while the
// controller is editing the document are its own edits coming back and are ignored.
func (c *Controller) HandleChanges(ctx context.Context, changes []editor.Change) {
	if c.busy.Load() {
		logs.Debug("ignoring changes while busy", "count", len(changes))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range changes {
		c.handleChange(ctx, ch)
	}
}

func (c *Controller) handleChange(ctx context.Context, ch editor.Change) {
	c.spacer.Follow(ch)

	line := ch.Line()
	idx, ok := c.spacer.Base(line)
	if !ok {
		// Typed into the preview space: the suggestion it was made for is gone.
		logs.Debug("edit inside preview space", "line", line)
		c.dropPending(ctx)
		if line, ok = c.clearSpacer(ctx).Apply(line); !ok {
			return
		}
		idx = line
	}

	text, err := c.host.LineText(line)
	if err != nil {
		logs.Debug("change outside the document", "line", line, "err", err)
		c.dismissLocked(ctx)
		return
	}

	if ch.IsDeletion() {
		if _, ok := c.accepted[idx]; ok {
			// The accepted text was cut back, offer the suggestion again.
			delete(c.accepted, idx)
		} else {
			if c.pending != nil && c.pending.Line == line {
				logs.Debug("suppressing rejected rule", "line", idx, "key", c.pending.Key)
				c.suppressed.Add(idx, c.pending.Key)
			}
			if !c.keepsPending(ch) {
				c.dismissLocked(ctx)
			}
			return
		}
	} else if key, ok := c.accepted[idx]; ok {
		if strings.TrimSpace(text) != "" && c.resolver.Matches(key, text) {
			if c.pending != nil && c.pending.Line == line {
				c.dismissLocked(ctx)
			}
			return
		}
		delete(c.accepted, idx)
	}

	m, ok := c.resolver.Resolve(text, idx, c.suppressed)
	if !ok {
		if !c.keepsPending(ch) {
			c.dismissLocked(ctx)
		}
		return
	}
	c.showLocked(ctx, line, text, m)
}

// keepsPending reports whether the pending suggestion survives ch: the edit stays clear of the
// lines it is painted on and does not move them.
func (c *Controller) keepsPending(ch editor.Change) bool {
	p := c.pending
	if p == nil {
		return false
	}
	first, last := p.Line, p.Line
	if p.Mode == render.Multi {
		last += len(p.Lines) - 1
	}
	if c.spacer.Active() {
		last = max(last, c.spacer.Anchor()+c.spacer.Count()-1)
	}
	switch {
	case ch.Range.Start.Line > last:
		return true
	case ch.Range.End.Line < first:
		return ch.LineDelta() == 0
	default:
		return false
	}
}

// showLocked renders m for line, an index into the buffer as it is now. Making or removing
// preview space can move the line; the overlay and the pending suggestion follow it.
func (c *Controller) showLocked(ctx context.Context, line int, text string, m resolve.Match) {
	id := c.requestID.Add(1)
	prev := c.pending

	lines := render.Indent(text, m.Fragments, c.indentUnit())
	c.dropPending(ctx)

	if c.opts.Policy == render.PolicySpacer && len(lines) > 1 {
		err := c.whileBusy(func() error {
			moved, err := c.spacer.Ensure(ctx, c.host, line, len(lines)-1)
			line = moved
			return err
		})
		if err != nil {
			logs.Warn("could not make room for suggestion", "line", line, "err", err)
			if errors.Is(err, editor.ErrLineOutOfRange) {
				return
			}
		}
	} else {
		moved, ok := c.clearSpacer(ctx).Apply(line)
		if !ok {
			logs.Debug("anchor was preview space", "line", line)
			return
		}
		line = moved
	}

	if cur := c.requestID.Load(); cur != id {
		logs.Debug("dropping stale render", "line", line, "request", id, "current", cur)
		return
	}

	plan := render.Layout(c.host, line, lines, c.tabSize())
	if err := c.host.ShowOverlay(ctx, plan.Overlays); err != nil {
		logs.Warn("could not show suggestion", "line", line, "err", err)
		c.clearSpacer(ctx)
		return
	}

	c.pending = &Pending{
		Line:      line,
		Key:       m.Key,
		Kind:      m.Kind,
		Capture:   m.Capture,
		Fragments: m.Fragments,
		Lines:     lines,
		Mode:      plan.Mode,
	}

	if c.opts.Notify && (prev == nil || prev.Line != line || prev.Key != m.Key) {
		if err := c.host.Notify(ctx, notice(m)); err != nil {
			logs.Debug("notify failed", "err", err)
		}
	}
}

func notice(m resolve.Match) string {
	msg := fmt.Sprintf("FaultyAI suggestion for %q", m.Key)
	if m.Kind == patterns.VariableCapturing && m.Capture != "" {
		msg += fmt.Sprintf(" with variable %q", m.Capture)
	}
	return msg
}

// Accept writes the pending suggestion into the document as one edit and moves the cursor to
// its end. Multi-line suggestions are formatted in the background afterwards.
func (c *Controller) Accept(ctx context.Context) error {
	if c.busy.Load() {
		return ErrBusy
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pending
	if p == nil {
		return ErrNoSuggestion
	}
	c.requestID.Add(1)
	c.busy.Store(true)
	defer c.busy.Store(false)

	c.dropPending(ctx)
	shift, err := c.spacer.Clear(ctx, c.host)
	if err != nil {
		logs.Warn("could not remove preview space", "err", err)
	}
	line, ok := shift.Apply(p.Line)
	if !ok {
		return ErrNoSuggestion
	}

	text, err := c.host.LineText(line)
	if err != nil {
		logs.Debug("anchor line is gone", "line", line, "err", err)
		return ErrNoSuggestion
	}

	lines := render.Indent(text, p.Fragments, c.indentUnit())
	if len(lines) == 0 {
		return ErrNoSuggestion
	}
	if err := c.host.Replace(ctx, line, line, text+strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("accept %q on line %d: %w", p.Key, line, err)
	}
	c.accepted[line] = p.Key

	last := lines[len(lines)-1]
	if len(lines) == 1 {
		last = text + last
	}
	end := editor.Position{Line: line + len(lines) - 1, Col: utf8.RuneCountInString(last)}
	if err := c.host.SetCursor(ctx, end); err != nil {
		logs.Warn("could not move cursor", "err", err)
	}

	if len(lines) > 1 && c.opts.FormatAfterAccept {
		c.formatLater(context.WithoutCancel(ctx), editor.Range{Start: editor.Position{Line: line}, End: end}, c.opts.FormatDelay)
	}
	return nil
}

// formatLater asks the host to format r after delay and then puts the cursor back at the end
// of the span. Errors are logged only.
func (c *Controller) formatLater(ctx context.Context, r editor.Range, delay time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-c.done:
				t.Stop()
				return
			}
		}

		if err := c.host.Format(ctx, r); err != nil {
			logs.Error("format after accept failed", "start", r.Start.Line, "end", r.End.Line, "err", err)
			return
		}
		text, err := c.host.LineText(r.End.Line)
		if err != nil {
			logs.Debug("formatted span moved", "line", r.End.Line, "err", err)
			return
		}
		end := editor.Position{Line: r.End.Line, Col: utf8.RuneCountInString(text)}
		if err := c.host.SetCursor(ctx, end); err != nil {
			logs.Warn("could not restore cursor", "err", err)
		}
	}()
}

// Dismiss hides the pending suggestion and removes any preview space without suppressing the rule.
func (c *Controller) Dismiss(ctx context.Context) {
	c.requestID.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dismissLocked(ctx)
}

// FocusLost tears down the pending suggestion when the document loses focus.
func (c *Controller) FocusLost(ctx context.Context) {
	c.Dismiss(ctx)
}

func (c *Controller) dismissLocked(ctx context.Context) {
	c.dropPending(ctx)
	c.clearSpacer(ctx)
}

// dropPending hides the overlay and forgets the pending suggestion, leaving any preview space.
func (c *Controller) dropPending(ctx context.Context) {
	if c.pending == nil {
		return
	}
	c.pending = nil
	if err := c.host.ClearOverlay(ctx); err != nil {
		logs.Warn("could not clear overlay", "err", err)
	}
}

// clearSpacer removes the preview space and returns how the lines below it moved.
func (c *Controller) clearSpacer(ctx context.Context) render.Shift {
	if !c.spacer.Active() {
		return render.Shift{}
	}
	var shift render.Shift
	err := c.whileBusy(func() error {
		var err error
		shift, err = c.spacer.Clear(ctx, c.host)
		return err
	})
	if err != nil {
		logs.Warn("could not remove preview space", "err", err)
	}
	return shift
}

func (c *Controller) whileBusy(fn func() error) error {
	prev := c.busy.Swap(true)
	defer c.busy.Store(prev)
	return fn()
}

// Hover returns markdown for the suggestion anchored at line.
func (c *Controller) Hover(line int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.Line != line {
		return "", false
	}
	return hoverTitle + "\n\n```java\n" + strings.Join(c.pending.Lines, "\n") + "\n```", true
}

// Pending returns a copy of the pending suggestion.
func (c *Controller) Pending() (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Pending{}, false
	}
	p := *c.pending
	p.Fragments = slices.Clone(p.Fragments)
	p.Lines = slices.Clone(p.Lines)
	return p, true
}

// Accepted returns the key of the rule accepted on line. Accepted and suppressed lines are
// counted without any preview space.
func (c *Controller) Accepted(line int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.accepted[line]
	return key, ok
}

// AcceptedLines lists the accepted lines in order.
func (c *Controller) AcceptedLines() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := make([]int, 0, len(c.accepted))
	for l := range c.accepted {
		lines = append(lines, l)
	}
	slices.Sort(lines)
	return lines
}

// Suppressed lists the rules rejected on line.
func (c *Controller) Suppressed(line int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed.Keys(line)
}

// Wait blocks until background formatting has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels delayed formatting and waits for running work.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Controller) tabSize() int {
	if ts := c.host.Options().TabSize; ts > 0 {
		return ts
	}
	if c.opts.TabSize > 0 {
		return c.opts.TabSize
	}
	return 2
}

func (c *Controller) indentUnit() string {
	o := c.host.Options()
	o.TabSize = c.tabSize()
	return o.IndentUnit()
}
