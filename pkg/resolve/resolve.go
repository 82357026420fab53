// Package resolve picks the rule that applies to a line, honouring per-line suppressions.
package resolve

import (
	"strings"
	"unicode"

	"github.com/bastiangx/faultyai/internal/logger"
	"github.com/bastiangx/faultyai/pkg/patterns"
)

var logs = logger.New("resolve")

// Match is the normalized result of a lookup.
type Match struct {
	Kind    patterns.Kind
	Key     string
	Capture string
	Hit     patterns.Hit
	// Fragments is the rule's suggestion with the text already typed past the
	// matched span removed from the front of the first fragment.
	Fragments []string
}

// Suppressed is consulted for every structural match.
type Suppressed interface {
	Has(line int, key string) bool
}

// Resolver resolves lines against a table.
type Resolver struct {
	table *patterns.Table
}

// New returns a resolver over table, or over the built-in table when table is nil.
func New(table *patterns.Table) *Resolver {
	if table == nil {
		table = patterns.Default()
	}
	return &Resolver{table: table}
}

// Table is the table being resolved against.
func (r *Resolver) Table() *patterns.Table {
	return r.table
}

// Resolve returns the highest-priority rule that matches text and is not suppressed on
// line. A suppressed match, or one whose rule has nothing to suggest, does not stop the search.
func (r *Resolver) Resolve(text string, line int, suppressed Suppressed) (Match, bool) {
	for _, rule := range r.table.Rules() {
		hit, ok := rule.Match(text)
		if !ok {
			continue
		}
		if suppressed != nil && suppressed.Has(line, rule.Key) {
			logs.Debug("skipping suppressed rule", "line", line, "key", rule.Key)
			continue
		}
		fragments := rule.Suggest(hit)
		if len(fragments) == 0 {
			logs.Debug("rule has no suggestion", "key", rule.Key)
			continue
		}
		return Match{
			Kind:      rule.Kind,
			Key:       rule.Key,
			Capture:   hit.Capture,
			Hit:       hit,
			Fragments: trimTyped(rule, text, fragments),
		}, true
	}
	return Match{}, false
}

// Matches reports whether the rule named key still matches text.
func (r *Resolver) Matches(key, text string) bool {
	rule, ok := r.table.Rule(key)
	if !ok {
		return false
	}
	_, ok = rule.Match(text)
	return ok
}

// trimTyped drops from the first fragment whatever the user already typed after the
// matched span, so "Scanner s =" continues with " new Scanner(System.in);".
func trimTyped(rule *patterns.Rule, text string, fragments []string) []string {
	if len(fragments) == 0 {
		return fragments
	}
	current := strings.TrimLeftFunc(text, unicode.IsSpace)
	hit, ok := rule.Match(current)
	if !ok || hit.Start != 0 {
		return fragments
	}
	typed := current[len(hit.Text):]
	if typed != "" && strings.HasPrefix(fragments[0], typed) {
		fragments[0] = fragments[0][len(typed):]
	}
	return fragments
}
