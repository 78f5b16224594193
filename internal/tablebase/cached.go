package tablebase

import (
	"sync"
	"sync/atomic"

	"github.com/hailam/kestrel/internal/board"
)

// DefaultCacheSize bounds the number of remembered probes.
const DefaultCacheSize = 100000

// CachedProber wraps another prober with a bounded map cache keyed by the
// position hash. Search workers share one instance.
type CachedProber struct {
	inner   Prober
	mu      sync.RWMutex
	cache   map[uint64]ProbeResult
	maxSize int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedProber creates a cached prober wrapping the given prober.
func NewCachedProber(inner Prober, cacheSize int) *CachedProber {
	return &CachedProber{
		inner:   inner,
		cache:   make(map[uint64]ProbeResult, cacheSize),
		maxSize: max(cacheSize, 2),
	}
}

// NewCachedLichessProber creates a cached Lichess prober with default cache size.
func NewCachedLichessProber() *CachedProber {
	return NewCachedProber(NewLichessProber(), DefaultCacheSize)
}

func (cp *CachedProber) Probe(pos *board.Position) ProbeResult {
	cp.mu.RLock()
	result, ok := cp.cache[pos.Hash]
	cp.mu.RUnlock()
	if ok {
		cp.hits.Add(1)
		return result
	}

	cp.misses.Add(1)
	result = cp.inner.Probe(pos)

	cp.mu.Lock()
	if len(cp.cache) >= cp.maxSize {
		// Drop an arbitrary half.
		n := 0
		for k := range cp.cache {
			if n >= cp.maxSize/2 {
				break
			}
			delete(cp.cache, k)
			n++
		}
	}
	cp.cache[pos.Hash] = result
	cp.mu.Unlock()
	return result
}

// ProbeRoot is not cached.
func (cp *CachedProber) ProbeRoot(pos *board.Position) RootResult {
	return cp.inner.ProbeRoot(pos)
}

func (cp *CachedProber) MaxPieces() int {
	return cp.inner.MaxPieces()
}

func (cp *CachedProber) Available() bool {
	return cp.inner.Available()
}

// HitRate returns the cache hit rate as a percentage.
func (cp *CachedProber) HitRate() float64 {
	hits, misses := cp.hits.Load(), cp.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

// CacheSize returns the current number of cached entries.
func (cp *CachedProber) CacheSize() int {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return len(cp.cache)
}

// Clear empties the cache and resets the statistics.
func (cp *CachedProber) Clear() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.cache = make(map[uint64]ProbeResult, cp.maxSize)
	cp.hits.Store(0)
	cp.misses.Store(0)
}
