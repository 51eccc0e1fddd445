package dataaccess

import (
	"strings"
	"sync"
)

// PrefixRewriter normalizes a configured table prefix and memoizes the
// rewritten form of every raw query string it is asked for (§4.5 "Prefix
// rewriting", §5 "shared and safe for concurrent reads/writes", §8
// property 6).
type PrefixRewriter struct {
	prefix string

	mu    sync.RWMutex
	cache map[string]string
}

// NormalizePrefix appends `_` to a non-empty prefix that does not already
// end with it; an empty prefix stays empty (§6).
func NormalizePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if strings.HasSuffix(prefix, "_") {
		return prefix
	}
	return prefix + "_"
}

// NewPrefixRewriter constructs a rewriter for prefix, normalized once up
// front. Store owns a single instance per configured prefix and shares it
// across every DataAccess it opens.
func NewPrefixRewriter(prefix string) *PrefixRewriter {
	return &PrefixRewriter{
		prefix: NormalizePrefix(prefix),
		cache:  make(map[string]string),
	}
}

// Rewrite substitutes every `{}` in raw with the normalized prefix,
// exactly once per distinct raw string (subsequent calls are served from
// the memo).
func (p *PrefixRewriter) Rewrite(raw string) string {
	p.mu.RLock()
	if v, ok := p.cache[raw]; ok {
		p.mu.RUnlock()
		return v
	}
	p.mu.RUnlock()

	rewritten := strings.ReplaceAll(raw, "{}", p.prefix)

	p.mu.Lock()
	p.cache[raw] = rewritten
	p.mu.Unlock()

	return rewritten
}
