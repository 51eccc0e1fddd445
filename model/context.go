package model

import (
	"sort"
	"strings"

	"github.com/mitchellh/hashstructure"
)

// Context is a single (key, value) scoping pair, e.g. {world: nether}.
type Context struct {
	Key   string
	Value string
}

// ContextSet is an order-insensitive set of Context pairs that identifies a
// Segment within a subject. An empty set is the global segment.
type ContextSet struct {
	// sorted, deduplicated by (Key, Value)
	entries []Context
}

// NewContextSet builds a ContextSet from an unordered, possibly-duplicated
// slice of pairs.
func NewContextSet(entries ...Context) ContextSet {
	if len(entries) == 0 {
		return ContextSet{}
	}
	seen := make(map[Context]struct{}, len(entries))
	out := make([]Context, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Value < out[j].Value
	})
	return ContextSet{entries: out}
}

// Global is the empty, always-applicable context-set.
func Global() ContextSet { return ContextSet{} }

// IsGlobal reports whether this is the empty context-set.
func (c ContextSet) IsGlobal() bool { return len(c.entries) == 0 }

// Entries returns the sorted, deduplicated pairs backing this set. The
// returned slice must not be mutated by the caller.
func (c ContextSet) Entries() []Context { return c.entries }

// Equal reports structural equality, independent of construction order.
func (c ContextSet) Equal(o ContextSet) bool {
	if len(c.entries) != len(o.entries) {
		return false
	}
	for i := range c.entries {
		if c.entries[i] != o.entries[i] {
			return false
		}
	}
	return true
}

// Key returns a comparable value suitable for use as a Go map key, backing
// §3's requirement that "Segment entries are keyed by structural equality
// of the context-set". Key joins the sorted pairs into a single string so
// two structurally-equal sets always compare equal as map keys; Hash below
// is exposed separately for callers (e.g. a future cache layer) that want
// a compact fixed-size fingerprint instead.
func (c ContextSet) Key() string {
	if c.IsGlobal() {
		return ""
	}
	var b strings.Builder
	for i, e := range c.entries {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(e.Key)
		b.WriteByte('=')
		b.WriteString(e.Value)
	}
	return b.String()
}

// Hash returns a structural fingerprint of the context-set using the same
// reflection-based hashing the teacher's dependency set carries for
// structural keys. Two equal sets always hash equal; collisions are
// possible and Hash must never substitute for Equal on the write path.
func (c ContextSet) Hash() (uint64, error) {
	return hashstructure.Hash(c.entries, nil)
}
