package edgedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goerch/edgedb-net/internal/protocol"
)

func TestQueryCacheGetMissThenPutThenHit(t *testing.T) {
	c := newQueryCache()
	key := cacheKeyFor("select 1", protocol.CardinalityOne, protocol.FormatBinary, protocol.CapModify)

	_, ok := c.get(key)
	assert.False(t, ok)

	cq := compiledQuery{inputTypeID: [16]byte{1}, outputTypeID: [16]byte{2}}
	c.put(key, cq)

	got, ok := c.get(key)
	require.True(t, ok)
	assert.Equal(t, cq, got)
}

func TestQueryCacheDistinguishesKeyFields(t *testing.T) {
	c := newQueryCache()
	base := cacheKeyFor("select 1", protocol.CardinalityOne, protocol.FormatBinary, protocol.CapModify)
	diffCardinality := cacheKeyFor("select 1", protocol.CardinalityMany, protocol.FormatBinary, protocol.CapModify)
	diffFormat := cacheKeyFor("select 1", protocol.CardinalityOne, protocol.FormatJSON, protocol.CapModify)
	diffCaps := cacheKeyFor("select 1", protocol.CardinalityOne, protocol.FormatBinary, protocol.CapDDL)

	c.put(base, compiledQuery{inputTypeID: [16]byte{1}})

	for _, k := range []queryCacheKey{diffCardinality, diffFormat, diffCaps} {
		_, ok := c.get(k)
		assert.False(t, ok, "distinct key component should not hit the base entry")
	}
}

func TestQueryCacheInvalidateRemovesEntry(t *testing.T) {
	c := newQueryCache()
	key := cacheKeyFor("select 1", protocol.CardinalityOne, protocol.FormatBinary, protocol.CapModify)
	c.put(key, compiledQuery{})

	c.invalidate(key)

	_, ok := c.get(key)
	assert.False(t, ok)
}

func TestQueryCacheInvalidateUnknownKeyIsNoop(t *testing.T) {
	c := newQueryCache()
	key := cacheKeyFor("select 1", protocol.CardinalityOne, protocol.FormatBinary, protocol.CapModify)
	assert.NotPanics(t, func() { c.invalidate(key) })
}
