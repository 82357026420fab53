package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastiangx/faultyai/internal/logger"
	"github.com/bastiangx/faultyai/pkg/editor"
	"github.com/bastiangx/faultyai/pkg/patterns"
	"github.com/bastiangx/faultyai/pkg/render"
	"github.com/bastiangx/faultyai/pkg/resolve"
)

func init() {
	logger.SetLevel(log.ErrorLevel)
}

var spaces2 = editor.Options{TabSize: 2, InsertSpaces: true}

func testOptions(policy render.Policy) Options {
	return Options{Policy: policy, Notify: true, TabSize: 2}
}

func newSession(t *testing.T, policy render.Policy, lines ...string) (*editor.Document, *Controller) {
	t.Helper()
	doc := editor.NewDocumentLines(lines, spaces2)
	c := New(doc, nil, testOptions(policy))
	c.Attach(doc)
	t.Cleanup(c.Close)
	return doc, c
}

func typeAt(t *testing.T, doc *editor.Document, line, col int, text string) {
	t.Helper()
	require.NoError(t, doc.Type(context.Background(), editor.Position{Line: line, Col: col}, text))
}

func erase(t *testing.T, doc *editor.Document, line, from, to int) {
	t.Helper()
	r := editor.Range{Start: editor.Position{Line: line, Col: from}, End: editor.Position{Line: line, Col: to}}
	require.NoError(t, doc.Erase(context.Background(), r))
}

func plain(s string) string {
	return strings.ReplaceAll(s, "\u00a0", " ")
}

func TestScannerSuggestion(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicySpacer, "")

	typeAt(t, doc, 0, 0, "Scanner s")

	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, patterns.KeyScannerDecl, p.Key)
	assert.Equal(t, patterns.VariableCapturing, p.Kind)
	assert.Equal(t, "s", p.Capture)
	assert.Equal(t, render.Single, p.Mode)
	assert.Equal(t, []editor.Overlay{{Line: 0, Text: "\u00a0= new Scanner(System.in);"}}, doc.Overlays())
	assert.Equal(t, []string{`FaultyAI suggestion for "scanner-decl" with variable "s"`}, doc.Notices())

	require.NoError(t, c.Accept(ctx))
	assert.Equal(t, []string{"Scanner s = new Scanner(System.in);"}, doc.Lines())
	assert.Equal(t, editor.Position{Line: 0, Col: 35}, doc.Cursor())
	assert.Empty(t, doc.Overlays())

	key, ok := c.Accepted(0)
	assert.True(t, ok)
	assert.Equal(t, patterns.KeyScannerDecl, key)
	_, ok = c.Pending()
	assert.False(t, ok)
}

func TestWhileWithoutRoomFallsBackToSingleLine(t *testing.T) {
	doc, c := newSession(t, render.PolicyFallback, "")
	typeAt(t, doc, 0, 0, "while")

	p, ok := c.Pending()
	require.True(t, ok)
	require.Len(t, p.Lines, 4)
	assert.Equal(t, render.Single, p.Mode)

	overlays := doc.Overlays()
	require.Len(t, overlays, 1)
	assert.Equal(t, strings.Join(p.Lines, " "), plain(overlays[0].Text))
	assert.Equal(t, []string{"while"}, doc.Lines(), "fallback never edits the buffer")
}

func TestWhileWithSpacer(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicySpacer, "")
	typeAt(t, doc, 0, 0, "while")

	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, render.Multi, p.Mode)
	assert.Equal(t, []string{"while", "", "", ""}, doc.Lines())

	overlays := doc.Overlays()
	require.Len(t, overlays, 4)
	for i, o := range overlays {
		assert.Equal(t, i, o.Line)
		assert.Equal(t, p.Lines[i], plain(o.Text))
	}

	require.NoError(t, c.Accept(ctx))
	assert.Equal(t, []string{
		"while (x < 10) {",
		"  System.out.println(x);",
		"  x++;",
		"}",
	}, doc.Lines())
	assert.Equal(t, editor.Position{Line: 3, Col: 1}, doc.Cursor())

	// The inserted text still contains "while" but the line is accepted.
	_, ok = c.Pending()
	assert.False(t, ok)
}

func TestDismissRestoresBuffer(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicySpacer, "int a;", "")
	typeAt(t, doc, 1, 0, "while")
	require.Equal(t, 5, doc.LineCount())

	c.Dismiss(ctx)
	assert.Equal(t, []string{"int a;", "while"}, doc.Lines())
	assert.Empty(t, doc.Overlays())
	assert.Empty(t, c.Suppressed(1), "dismiss does not suppress")

	typeAt(t, doc, 1, 5, " ")
	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, patterns.KeyWhileLoop, p.Key)
	assert.Equal(t, "(x < 10) {", p.Fragments[0])
}

func TestFocusLost(t *testing.T) {
	doc, c := newSession(t, render.PolicySpacer, "")
	typeAt(t, doc, 0, 0, "while")

	c.FocusLost(context.Background())
	_, ok := c.Pending()
	assert.False(t, ok)
	assert.Empty(t, doc.Overlays())
	assert.Equal(t, []string{"while"}, doc.Lines())
}

func TestDeletionSuppressesOnlyThatLine(t *testing.T) {
	doc, c := newSession(t, render.PolicySpacer, "", "")

	typeAt(t, doc, 0, 0, "while")
	_, ok := c.Pending()
	require.True(t, ok)

	// Backspace while the suggestion is pending.
	erase(t, doc, 0, 4, 5)
	_, ok = c.Pending()
	assert.False(t, ok)
	assert.Equal(t, []string{patterns.KeyWhileLoop}, c.Suppressed(0))
	assert.Equal(t, []string{"whil", ""}, doc.Lines(), "preview space is removed")

	erase(t, doc, 0, 0, 4)
	typeAt(t, doc, 0, 0, "while")
	_, ok = c.Pending()
	assert.False(t, ok, "rejected rule stays hidden on its line")
	assert.Empty(t, doc.Overlays())

	typeAt(t, doc, 1, 0, "while")
	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, 1, p.Line)
	assert.Equal(t, patterns.KeyWhileLoop, p.Key)
}

func TestSuppressionKeepsOtherRules(t *testing.T) {
	doc, c := newSession(t, render.PolicySpacer, "")

	typeAt(t, doc, 0, 0, "int avgx")
	p, ok := c.Pending()
	require.True(t, ok)
	require.Equal(t, patterns.KeyIntAverage, p.Key)

	erase(t, doc, 0, 7, 8)
	assert.Equal(t, []string{patterns.KeyIntAverage}, c.Suppressed(0))

	typeAt(t, doc, 0, 7, "s")
	p, ok = c.Pending()
	require.True(t, ok)
	assert.Equal(t, patterns.KeyIntDecl, p.Key)
	assert.Equal(t, "avgs", p.Capture)
}

func TestEditedAcceptedLineSuggestsAgain(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicySpacer, "")

	typeAt(t, doc, 0, 0, "int x ")
	require.NoError(t, c.Accept(ctx))
	require.Equal(t, []string{"int x = sc.next();"}, doc.Lines())

	erase(t, doc, 0, 5, 18)
	require.Equal(t, []string{"int x"}, doc.Lines())

	_, ok := c.Accepted(0)
	assert.False(t, ok)
	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, patterns.KeyIntDecl, p.Key)
	assert.Empty(t, c.Suppressed(0))
}

func TestAcceptedLineStaysQuietWhileRuleMatches(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicySpacer, "")

	typeAt(t, doc, 0, 0, "Scanner s")
	require.NoError(t, c.Accept(ctx))

	typeAt(t, doc, 0, 35, " // input")
	_, ok := c.Pending()
	assert.False(t, ok)
	_, ok = c.Accepted(0)
	assert.True(t, ok)

	// Replacing the declaration drops the acceptance.
	require.NoError(t, doc.Apply(ctx, editor.Change{
		Range: editor.Range{End: editor.Position{Line: 0, Col: 44}},
		Text:  "x = 1;",
	}))
	_, ok = c.Accepted(0)
	assert.False(t, ok)
	_, ok = c.Pending()
	assert.False(t, ok)
}

func TestAcceptedLineBecomingBlank(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicySpacer, "")

	typeAt(t, doc, 0, 0, "Scanner s")
	require.NoError(t, c.Accept(ctx))

	require.NoError(t, doc.Apply(ctx, editor.Change{
		Range: editor.Range{End: editor.Position{Line: 0, Col: 35}},
		Text:  "  ",
	}))
	_, ok := c.Accepted(0)
	assert.False(t, ok)
	assert.Empty(t, c.AcceptedLines())
}

func TestLineStopsMatching(t *testing.T) {
	doc, c := newSession(t, render.PolicyFallback, "")
	typeAt(t, doc, 0, 0, "Scanner s")
	_, ok := c.Pending()
	require.True(t, ok)

	typeAt(t, doc, 0, 0, "// ")
	p, ok := c.Pending()
	require.True(t, ok, "still a declaration after the comment marker")
	assert.Equal(t, patterns.KeyScannerDecl, p.Key)

	typeAt(t, doc, 0, 3, "x")
	_, ok = c.Pending()
	assert.False(t, ok)
	assert.Empty(t, doc.Overlays())
}

func TestNewSuggestionReplacesPrevious(t *testing.T) {
	doc, c := newSession(t, render.PolicyFallback, "", "")
	typeAt(t, doc, 0, 0, "while")
	typeAt(t, doc, 1, 0, "Scanner in")

	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, 1, p.Line)
	assert.Equal(t, []editor.Overlay{{Line: 1, Text: "\u00a0= new Scanner(System.in);"}}, doc.Overlays())

	_, ok = c.Hover(0)
	assert.False(t, ok)
}

func TestNoticeOncePerSuggestion(t *testing.T) {
	doc, c := newSession(t, render.PolicyFallback, "")
	for i, ch := range "while (" {
		typeAt(t, doc, 0, i, string(ch))
	}
	_, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, []string{`FaultyAI suggestion for "while-loop"`}, doc.Notices())

	c.SetOptions(Options{Policy: render.PolicyFallback})
	c.Dismiss(context.Background())
	typeAt(t, doc, 0, 7, "x")
	assert.Len(t, doc.Notices(), 1, "notices disabled")
}

func TestHover(t *testing.T) {
	doc, c := newSession(t, render.PolicyFallback, "  ")
	typeAt(t, doc, 0, 2, "Scanner s")

	md, ok := c.Hover(0)
	require.True(t, ok)
	assert.Equal(t, "**FaultyAI Suggestion** (Press Tab to accept)\n\n```java\n = new Scanner(System.in);\n```", md)
}

func TestAcceptReindentsAgainstCurrentLine(t *testing.T) {
	ctx := context.Background()
	doc := editor.NewDocumentLines([]string{"while"}, spaces2)
	c := New(doc, nil, testOptions(render.PolicyFallback))
	defer c.Close()

	c.HandleChanges(ctx, []editor.Change{{Text: "while"}})
	_, ok := c.Pending()
	require.True(t, ok)

	// The host moved the line without telling the controller.
	require.NoError(t, doc.Apply(ctx, editor.Change{Text: "    "}))
	require.NoError(t, c.Accept(ctx))
	assert.Equal(t, []string{
		"    while (x < 10) {",
		"      System.out.println(x);",
		"      x++;",
		"    }",
	}, doc.Lines())
}

func TestAcceptWithoutSuggestion(t *testing.T) {
	_, c := newSession(t, render.PolicySpacer, "x = 1;")
	assert.ErrorIs(t, c.Accept(context.Background()), ErrNoSuggestion)
}

func TestAcceptWhileBusy(t *testing.T) {
	_, c := newSession(t, render.PolicySpacer, "")
	c.busy.Store(true)
	defer c.busy.Store(false)
	assert.ErrorIs(t, c.Accept(context.Background()), ErrBusy)
}

func TestOutOfRangeAnchor(t *testing.T) {
	ctx := context.Background()
	doc := editor.NewDocumentLines([]string{"", "while"}, spaces2)
	c := New(doc, nil, testOptions(render.PolicyFallback))
	defer c.Close()

	c.HandleChanges(ctx, []editor.Change{{Range: editor.Range{Start: editor.Position{Line: 1}}, Text: "while"}})
	_, ok := c.Pending()
	require.True(t, ok)

	// Not attached, so the controller never hears about this.
	require.NoError(t, doc.DeleteLines(ctx, 1, 2))
	assert.ErrorIs(t, c.Accept(ctx), ErrNoSuggestion)
	_, ok = c.Pending()
	assert.False(t, ok)
	assert.Equal(t, []string{""}, doc.Lines())

	assert.NotPanics(t, func() {
		c.HandleChanges(ctx, []editor.Change{{Range: editor.Range{Start: editor.Position{Line: 10}}, Text: "x"}})
	})
	_, ok = c.Pending()
	assert.False(t, ok)
}

func TestOwnEditsAreIgnored(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicySpacer, "")

	var batches int
	doc.Subscribe(func(context.Context, []editor.Change) { batches++ })

	typeAt(t, doc, 0, 0, "while")
	require.NoError(t, c.Accept(ctx))

	// typing, spacer insert, spacer removal, accept
	assert.Equal(t, 4, batches)
	_, ok := c.Pending()
	assert.False(t, ok, "the accepted text must not trigger a new suggestion")
	assert.Equal(t, []int{0}, c.AcceptedLines())
}

// staleEditor invalidates the render in flight while the preview space is inserted,
// like a later keystroke overtaking a slow host edit.
type staleEditor struct {
	*editor.Document
	onInsert func()
}

func (s *staleEditor) Insert(ctx context.Context, pos editor.Position, text string) error {
	if s.onInsert != nil {
		s.onInsert()
	}
	return s.Document.Insert(ctx, pos, text)
}

func TestStaleRenderIsDropped(t *testing.T) {
	ctx := context.Background()
	doc := editor.NewDocumentLines([]string{"while"}, spaces2)
	host := &staleEditor{Document: doc}
	c := New(host, nil, testOptions(render.PolicySpacer))
	c.Attach(doc)
	defer c.Close()

	host.onInsert = func() { c.requestID.Add(1) }
	c.HandleChanges(ctx, []editor.Change{{Text: "while"}})

	_, ok := c.Pending()
	assert.False(t, ok)
	assert.Empty(t, doc.Overlays())
	assert.Empty(t, doc.Notices())

	host.onInsert = nil
	c.Dismiss(ctx)
	assert.Equal(t, []string{"while"}, doc.Lines())
}

func TestFormatAfterAccept(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicyFallback, "if (maxV > minV)")
	c.SetOptions(Options{Policy: render.PolicyFallback, FormatAfterAccept: true, TabSize: 2})

	var got []string
	doc.SetFormatter(func(_ context.Context, lines []string) ([]string, error) {
		got = lines
		out := make([]string, len(lines))
		for i, l := range lines {
			out[i] = strings.ReplaceAll(l, "  ", "\t")
		}
		return out, nil
	})

	typeAt(t, doc, 0, 16, " ")
	require.NoError(t, c.Accept(ctx))
	c.Wait()

	assert.Equal(t, []string{"if (maxV > minV) {", "  minV = maxV;", "}"}, got)
	assert.Equal(t, []string{"if (maxV > minV) {", "\tminV = maxV;", "}"}, doc.Lines())
	assert.Equal(t, editor.Position{Line: 2, Col: 1}, doc.Cursor())
	assert.Equal(t, []int{0}, c.AcceptedLines())
}

func TestFormatterFailureKeepsAcceptance(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicyFallback, "")
	c.SetOptions(Options{Policy: render.PolicyFallback, FormatAfterAccept: true, TabSize: 2})
	doc.SetFormatter(func(context.Context, []string) ([]string, error) {
		return nil, errors.New("formatter crashed")
	})

	typeAt(t, doc, 0, 0, "while")
	require.NoError(t, c.Accept(ctx))
	c.Wait()

	assert.Equal(t, 4, doc.LineCount())
	assert.Equal(t, "while (x < 10) {", doc.Lines()[0])
	key, ok := c.Accepted(0)
	assert.True(t, ok)
	assert.Equal(t, patterns.KeyWhileLoop, key)
}

func TestCloseCancelsDelayedFormat(t *testing.T) {
	ctx := context.Background()
	doc := editor.NewDocumentLines([]string{""}, spaces2)
	c := New(doc, nil, Options{Policy: render.PolicyFallback, FormatAfterAccept: true, FormatDelay: time.Hour})
	c.Attach(doc)

	called := false
	doc.SetFormatter(func(_ context.Context, lines []string) ([]string, error) {
		called = true
		return lines, nil
	})

	typeAt(t, doc, 0, 0, "while")
	require.NoError(t, c.Accept(ctx))
	c.Close()
	assert.False(t, called)
}

// Suppression is keyed by line index. Inserting a line above moves the text but not the
// suppression, so the rejected rule shows up again one line lower.
func TestSuppressionIsLineIndexed(t *testing.T) {
	doc, c := newSession(t, render.PolicyFallback, "")

	typeAt(t, doc, 0, 0, "while")
	erase(t, doc, 0, 4, 5)
	require.Equal(t, []string{patterns.KeyWhileLoop}, c.Suppressed(0))

	typeAt(t, doc, 0, 0, "//\n")
	require.Equal(t, []string{"//", "whil"}, doc.Lines())

	typeAt(t, doc, 1, 4, "e")
	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, 1, p.Line)
	assert.Equal(t, []string{patterns.KeyWhileLoop}, c.Suppressed(0))
	assert.Empty(t, c.Suppressed(1))
}

// Removing the preview space of a suggestion above moves the line that gets the new one.
func TestSuggestionBelowPreviewSpace(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicySpacer, "", "a", "b", "c", "d", "int b", "e", "f", "g")

	typeAt(t, doc, 0, 0, "while")
	require.Equal(t, 12, doc.LineCount())
	require.Equal(t, "int b", doc.Lines()[8])

	typeAt(t, doc, 8, 5, "c")
	assert.Equal(t, []string{"while", "a", "b", "c", "d", "int bc", "e", "f", "g"}, doc.Lines())

	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, patterns.KeyIntDecl, p.Key)
	assert.Equal(t, 5, p.Line)
	overlays := doc.Overlays()
	require.Len(t, overlays, 1)
	assert.Equal(t, 5, overlays[0].Line)

	_, ok = c.Hover(5)
	assert.True(t, ok)

	require.NoError(t, c.Accept(ctx))
	assert.Equal(t, "int bc= sc.next();", doc.Lines()[5])
	assert.Equal(t, "g", doc.Lines()[8])
	assert.Equal(t, []int{5}, c.AcceptedLines())
}

func TestAcceptedLineBelowPreviewSpace(t *testing.T) {
	ctx := context.Background()
	doc, c := newSession(t, render.PolicySpacer, "", "a", "")

	typeAt(t, doc, 2, 0, "Scanner s")
	require.NoError(t, c.Accept(ctx))

	typeAt(t, doc, 0, 0, "while")
	require.Equal(t, "Scanner s = new Scanner(System.in);", doc.Lines()[5])

	typeAt(t, doc, 5, 35, " // x")
	p, ok := c.Pending()
	require.True(t, ok, "the suggestion above is untouched")
	assert.Equal(t, patterns.KeyWhileLoop, p.Key)
	assert.Equal(t, 0, p.Line)

	key, ok := c.Accepted(2)
	assert.True(t, ok)
	assert.Equal(t, patterns.KeyScannerDecl, key)
	assert.Equal(t, []int{2}, c.AcceptedLines())
}

func TestTypingIntoPreviewSpace(t *testing.T) {
	doc, c := newSession(t, render.PolicySpacer, "", "end")
	typeAt(t, doc, 0, 0, "while")
	require.Equal(t, []string{"while", "", "", "", "end"}, doc.Lines())

	typeAt(t, doc, 2, 0, "x")
	_, ok := c.Pending()
	assert.False(t, ok)
	assert.Empty(t, doc.Overlays())
	assert.Equal(t, []string{"while", "x", "", "end"}, doc.Lines())
}

func TestEditElsewhereKeepsSuggestion(t *testing.T) {
	doc, c := newSession(t, render.PolicyFallback, "", "", "")
	typeAt(t, doc, 1, 0, "Scanner s")
	want := doc.Overlays()

	typeAt(t, doc, 2, 0, "x")
	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, 1, p.Line)
	assert.Equal(t, want, doc.Overlays())

	erase(t, doc, 2, 0, 1)
	_, ok = c.Pending()
	assert.True(t, ok)
	assert.Empty(t, c.Suppressed(1))
	assert.Empty(t, c.Suppressed(2))

	// A new line above moves the anchor.
	typeAt(t, doc, 0, 0, "\n")
	_, ok = c.Pending()
	assert.False(t, ok)
	assert.Empty(t, doc.Overlays())
}

func TestNewLineAbovePreviewSpace(t *testing.T) {
	doc, c := newSession(t, render.PolicySpacer, "a", "")
	typeAt(t, doc, 1, 0, "while")
	require.Equal(t, []string{"a", "while", "", "", ""}, doc.Lines())

	typeAt(t, doc, 0, 0, "\n")
	_, ok := c.Pending()
	assert.False(t, ok)
	assert.Equal(t, []string{"", "a", "while"}, doc.Lines())
}

func TestRuleWithoutFragments(t *testing.T) {
	ctx := context.Background()
	always := func(line string) (patterns.Hit, bool) { return patterns.Hit{Text: line}, true }
	table, err := patterns.NewTable(&patterns.Rule{
		Key:     "silent",
		Trigger: always,
		Build:   func(patterns.Hit) []string { return nil },
	})
	require.NoError(t, err)

	doc := editor.NewDocumentLines([]string{""}, spaces2)
	c := New(doc, resolve.New(table), testOptions(render.PolicySpacer))
	c.Attach(doc)
	defer c.Close()

	typeAt(t, doc, 0, 0, "x")
	_, ok := c.Pending()
	assert.False(t, ok)

	c.mu.Lock()
	c.pending = &Pending{Key: "silent"}
	c.mu.Unlock()
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, c.Accept(ctx), ErrNoSuggestion)
	})
	assert.Equal(t, []string{"x"}, doc.Lines())
	assert.Empty(t, c.AcceptedLines())
}
