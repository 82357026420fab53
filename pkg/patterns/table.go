package patterns

import (
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// Table is an ordered, read-only rule list. Iteration order is the priority order:
// every ContextFree rule, then every VariableCapturing rule, each in declaration order.
type Table struct {
	rules []*Rule
	index *patricia.Trie
}

// NewTable orders rules by kind and indexes them by key. Keys must be unique and non-empty.
func NewTable(rules ...*Rule) (*Table, error) {
	ordered := append([]*Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind < ordered[j].Kind
	})

	index := patricia.NewTrie()
	for _, r := range ordered {
		if r.Key == "" {
			return nil, fmt.Errorf("rule without key")
		}
		if r.Trigger == nil {
			return nil, fmt.Errorf("rule %q has no trigger", r.Key)
		}
		if r.Build == nil && len(r.Fragments) == 0 {
			return nil, fmt.Errorf("rule %q has no suggestion", r.Key)
		}
		if !index.Insert(patricia.Prefix(r.Key), r) {
			return nil, fmt.Errorf("duplicate rule key %q", r.Key)
		}
	}
	return &Table{rules: ordered, index: index}, nil
}

// Rules returns the rules in priority order. The slice must not be modified.
func (t *Table) Rules() []*Rule {
	return t.rules
}

// Len is the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Rule finds a rule by key.
func (t *Table) Rule(key string) (*Rule, bool) {
	item := t.index.Get(patricia.Prefix(key))
	if item == nil {
		return nil, false
	}
	return item.(*Rule), true
}

// Keys lists the keys starting with prefix, sorted. An empty prefix lists all of them.
func (t *Table) Keys(prefix string) []string {
	var keys []string
	collect := func(p patricia.Prefix, _ patricia.Item) error {
		keys = append(keys, string(p))
		return nil
	}
	var err error
	if prefix == "" {
		err = t.index.Visit(collect)
	} else {
		err = t.index.VisitSubtree(patricia.Prefix(prefix), collect)
	}
	if err != nil {
		log.Errorf("Error visiting rule index: %v", err)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the first rule whose trigger matches line.
func (t *Table) Lookup(line string) (*Rule, Hit, bool) {
	for _, r := range t.rules {
		if h, ok := r.Match(line); ok {
			return r, h, true
		}
	}
	return nil, Hit{}, false
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in Java table.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := NewTable(javaRules()...)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}
