package resolve

import "sort"

// Suppressions records, per line index, the rule keys the user rejected on that line.
// Entries are never removed and are not shifted when lines are inserted or deleted above them.
type Suppressions map[int]map[string]struct{}

// Add suppresses key on line.
func (s Suppressions) Add(line int, key string) {
	keys, ok := s[line]
	if !ok {
		keys = make(map[string]struct{})
		s[line] = keys
	}
	keys[key] = struct{}{}
}

// Has reports whether key is suppressed on line. A nil Suppressions suppresses nothing.
func (s Suppressions) Has(line int, key string) bool {
	_, ok := s[line][key]
	return ok
}

// Keys lists the keys suppressed on line, sorted.
func (s Suppressions) Keys(line int) []string {
	keys := make([]string, 0, len(s[line]))
	for k := range s[line] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of suppressed (line, key) pairs.
func (s Suppressions) Len() int {
	n := 0
	for _, keys := range s {
		n += len(keys)
	}
	return n
}
