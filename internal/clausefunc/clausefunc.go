// Package clausefunc provides the process-scoped ClauseFunction cache
// referenced in spec.md §9 ("Global mutable state... a ClauseFunction
// cache keyed by the hash of (text, heading)... process-scoped with
// explicit init and teardown"). Backed by github.com/patrickmn/go-cache,
// declared but unwired in the teacher's go.mod — this is its first home.
package clausefunc

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/contractlens/conflictengine/internal/clause"
)

// Cache memoizes clause.ClassifyFunction results. ClassifyFunction is a
// pure function of (text, heading), so the cache is safe to share across
// runs within a process — explicitly constructed, never a package-level
// global.
type Cache struct {
	store *gocache.Cache
}

// New constructs a Cache with the given expiration and cleanup interval.
// A zero expiration means entries never expire until Close.
func New(expiration, cleanupInterval time.Duration) *Cache {
	return &Cache{store: gocache.New(expiration, cleanupInterval)}
}

// NewUnbounded constructs a Cache whose entries never expire — appropriate
// for a single long-lived process handling many runs against a stable
// clause corpus.
func NewUnbounded() *Cache {
	return New(gocache.NoExpiration, 0)
}

func key(text, heading string) string {
	h := sha256.Sum256([]byte(heading + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// ClassifyFunction returns the cached ClauseFunction for c, computing and
// storing it on first lookup.
func (c *Cache) ClassifyFunction(cl clause.Clause) clause.Function {
	k := key(cl.Text, cl.Heading)
	if v, ok := c.store.Get(k); ok {
		return v.(clause.Function)
	}
	fn := clause.ClassifyFunction(cl)
	c.store.SetDefault(k, fn)
	return fn
}

// Len reports the number of cached entries, for diagnostics.
func (c *Cache) Len() int { return c.store.ItemCount() }

// Classify is the nil-safe entry point every caller should use instead of
// calling clause.ClassifyFunction directly: a nil cache (the default when
// a caller hasn't supplied one) falls back to the uncached pure function,
// so candidates/judge/adjudicate share one call site regardless of whether
// a Cache is wired in for this run.
func Classify(cache *Cache, cl clause.Clause) clause.Function {
	if cache == nil {
		return clause.ClassifyFunction(cl)
	}
	return cache.ClassifyFunction(cl)
}

// Close releases all cached entries. Explicit teardown per spec.md §9 —
// no implicit process-lifetime globals.
func (c *Cache) Close() { c.store.Flush() }
