// Package patterns holds the fixed table of trigger rules and the faulty suggestions they produce.
//
// The suggestions are wrong on purpose: off-by-one loop bounds, inverted ranges, reads into the
// wrong type. They exist so users practise reading suggested code before accepting it, so the
// table must be kept as it is.
package patterns

import "regexp"

// Kind partitions the table. ContextFree rules are always tried before VariableCapturing ones.
type Kind int

const (
	ContextFree Kind = iota
	VariableCapturing
)

func (k Kind) String() string {
	switch k {
	case ContextFree:
		return "context-free"
	case VariableCapturing:
		return "variable-capturing"
	default:
		return "unknown"
	}
}

// Hit is the structural part of a match: the matched span and the captured identifier, if any.
type Hit struct {
	Text    string
	Start   int
	Capture string
}

// Trigger tests a single line.
type Trigger func(line string) (Hit, bool)

// Builder produces suggestion fragments from a hit.
type Builder func(h Hit) []string

// Rule is one row of the table.
type Rule struct {
	Key     string
	Kind    Kind
	Trigger Trigger
	// Fragments is used when Build is nil.
	Fragments []string
	Build     Builder
}

// Suggest returns the fragments for h as a fresh slice.
func (r *Rule) Suggest(h Hit) []string {
	if r.Build != nil {
		return append([]string(nil), r.Build(h)...)
	}
	return append([]string(nil), r.Fragments...)
}

// Match runs the trigger.
func (r *Rule) Match(line string) (Hit, bool) {
	return r.Trigger(line)
}

// regexTrigger matches the first occurrence of expr. The first submatch, when present,
// becomes the capture.
func regexTrigger(expr string) Trigger {
	re := regexp.MustCompile(expr)
	return func(line string) (Hit, bool) {
		loc := re.FindStringSubmatchIndex(line)
		if loc == nil {
			return Hit{}, false
		}
		h := Hit{Text: line[loc[0]:loc[1]], Start: loc[0]}
		if len(loc) >= 4 && loc[2] >= 0 {
			h.Capture = line[loc[2]:loc[3]]
		}
		return h, true
	}
}
