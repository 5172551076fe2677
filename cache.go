package edgedb

import (
	"sync"

	"github.com/goerch/edgedb-net/internal/codecs"
	"github.com/goerch/edgedb-net/internal/protocol"
)

// queryCacheKey identifies one compiled command shape: the exact query
// text plus every parameter that changes its compiled form.
type queryCacheKey struct {
	query        string
	cardinality  protocol.Cardinality
	format       protocol.OutputFormat
	capabilities protocol.Capability
}

// compiledQuery is what the cache stores per key: the server's
// negotiated type ids and the materialized codecs for each.
type compiledQuery struct {
	inputTypeID  [16]byte
	outputTypeID [16]byte
	inputCodec   codecs.Codec
	outputCodec  codecs.Codec
}

// queryCache is the per-Client prepared-statement cache. Mirrors the
// teacher's Prepared/NewPrepared shape (a statement id keyed to its
// compiled form), generalized from Tarantool's server-assigned
// statement id to this protocol's (query, cardinality, format,
// capabilities) compound key, since there is no explicit prepare step —
// every Parse implicitly (re)compiles and this cache is what lets a
// repeat Execute skip re-sending Parse at all.
type queryCache struct {
	mu      sync.RWMutex
	entries map[queryCacheKey]compiledQuery
}

func newQueryCache() *queryCache {
	return &queryCache{entries: make(map[queryCacheKey]compiledQuery)}
}

func (c *queryCache) get(key queryCacheKey) (compiledQuery, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cq, ok := c.entries[key]
	return cq, ok
}

func (c *queryCache) put(key queryCacheKey, cq compiledQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cq
}

// invalidate drops a stale entry; called when the server sends a fresh
// CommandDataDescription for a query the cache believed was already
// known, meaning the schema changed underneath the cached compile.
func (c *queryCache) invalidate(key queryCacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func cacheKeyFor(query string, card protocol.Cardinality, format protocol.OutputFormat, caps protocol.Capability) queryCacheKey {
	return queryCacheKey{query: query, cardinality: card, format: format, capabilities: caps}
}
