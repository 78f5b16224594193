package engine

// evalCacheSize is the number of NNUE scores a worker remembers.
const evalCacheSize = 1 << 16

type evalCacheEntry struct {
	key   uint64
	score int32
}

// EvalCache is a per-worker, always-replace cache of network scores keyed by
// the full position hash.
type EvalCache struct {
	entries []evalCacheEntry
}

// NewEvalCache allocates an empty cache.
func NewEvalCache() *EvalCache {
	return &EvalCache{entries: make([]evalCacheEntry, evalCacheSize)}
}

// Probe returns the cached score for key.
func (c *EvalCache) Probe(key uint64) (int, bool) {
	e := &c.entries[key&(evalCacheSize-1)]
	if e.key != key || key == 0 {
		return 0, false
	}
	return int(e.score), true
}

// Store overwrites the slot for key.
func (c *EvalCache) Store(key uint64, score int) {
	c.entries[key&(evalCacheSize-1)] = evalCacheEntry{key: key, score: int32(score)}
}

// Clear empties the cache.
func (c *EvalCache) Clear() {
	clear(c.entries)
}
