package assertion

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// EvaluateFunc performs the full session flow for one specification.
type EvaluateFunc func(ctx context.Context, spec TestSpecification) (Verdict, error)

// CacheEntry is one memoized verdict.
type CacheEntry struct {
	Key       string
	Verdict   Verdict
	CreatedAt time.Time
}

// Cache memoizes verdicts by specification signature for the scope of
// one test run. Concurrent requests for the same key share a single
// in-flight evaluation; distinct keys evaluate fully in parallel.
// Errors are never cached; a re-run of the same case evaluates again.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	group   singleflight.Group
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]CacheEntry)}
}

// GetOrEvaluate returns the cached verdict for spec's signature, or runs
// evaluate under single-flight semantics and stores the result.
func (c *Cache) GetOrEvaluate(ctx context.Context, spec TestSpecification, evaluate EvaluateFunc) (Verdict, error) {
	key := Signature(spec)

	if entry, ok := c.lookup(key); ok {
		return entry.Verdict, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a previous flight may have stored
		// the entry between our lookup and Do.
		if entry, ok := c.lookup(key); ok {
			return entry.Verdict, nil
		}

		verdict, err := evaluate(ctx, spec)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = CacheEntry{Key: key, Verdict: verdict, CreatedAt: time.Now()}
		c.mu.Unlock()
		return verdict, nil
	})
	if err != nil {
		return Verdict{}, err
	}
	return v.(Verdict), nil
}

// Len reports the number of memoized verdicts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}
