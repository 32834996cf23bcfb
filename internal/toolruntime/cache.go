package toolruntime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
)

// cacheWhitelist is the exact set of read-only tools eligible for
// memoization, per spec §4.2. All other tools always execute.
var cacheWhitelist = map[string]bool{
	"read_file":        true,
	"read_span":        true,
	"symbol_lookup":    true,
	"find_references":  true,
}

// IsCacheable reports whether a tool name is eligible for memoization.
func IsCacheable(name string) bool { return cacheWhitelist[name] }

// resultCache is the per-instance, content-addressed tool result cache.
// It is created on loop entry and cleared on entry, never a module
// singleton — the spec's only allowed process-wide state must be owned
// by the loop instance, not shared across concurrent in-process runs.
type resultCache struct {
	mu    sync.Mutex
	items map[string]string // hash -> raw JSON result (without _cached marker)
}

func newResultCache() *resultCache {
	return &resultCache{items: make(map[string]string)}
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]string)
}

// cacheKey hashes (name, sortedArgsJSON) into a stable content address.
func cacheKey(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(args))
	for _, k := range keys {
		ordered[k] = args[k]
	}
	b, _ := json.Marshal(ordered)
	sum := sha256.Sum256(append([]byte(name+"|"), b...))
	return hex.EncodeToString(sum[:])
}

func (c *resultCache) get(name string, args map[string]any) (string, bool) {
	k := cacheKey(name, args)
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[k]
	return v, ok
}

func (c *resultCache) put(name string, args map[string]any, resultJSON string) {
	k := cacheKey(name, args)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[k] = resultJSON
}
