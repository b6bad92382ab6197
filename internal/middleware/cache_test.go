package middleware

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuzzyCacheExactHit(t *testing.T) {
	c := NewFuzzyCache()
	c.Add("what port does the gateway listen on", "8443")

	got, ok := c.Get("what port does the gateway listen on")
	require.True(t, ok)
	assert.Equal(t, "8443", got)
}

func TestFuzzyCacheIgnoresPunctuationAndCase(t *testing.T) {
	c := NewFuzzyCache()
	c.Add("What port does the gateway listen on?", "8443")

	got, ok := c.Get("what port does the gateway listen on")
	require.True(t, ok)
	assert.Equal(t, "8443", got)
}

func TestFuzzyCacheSubstringHit(t *testing.T) {
	c := NewFuzzyCache()
	c.Add("which database does the billing service use in production", "postgres")

	got, ok := c.Get("database does the billing service use")
	require.True(t, ok)
	assert.Equal(t, "postgres", got)
}

func TestFuzzyCacheSimilarityHit(t *testing.T) {
	c := NewFuzzyCache()
	c.Add("how do I rotate the TLS certificates", "run certrotate")

	// One word swapped in the middle; no substring relationship after cleaning.
	got, ok := c.Get("how do I rotate my TLS certificates")
	require.True(t, ok)
	assert.Equal(t, "run certrotate", got)
}

func TestFuzzyCacheMiss(t *testing.T) {
	c := NewFuzzyCache()
	c.Add("how do I rotate the TLS certificates", "run certrotate")

	_, ok := c.Get("list the kafka topics the ingest pipeline consumes")
	assert.False(t, ok)
}

func TestFuzzyCacheEvictsLeastFrequent(t *testing.T) {
	c := NewFuzzyCache()
	c.Limit = 3
	c.Add("alpha one", "1")
	c.Add("bravo two", "2")
	c.Add("charlie three", "3")

	// Heat up everything except "alpha one".
	_, ok := c.Get("bravo two")
	require.True(t, ok)
	_, ok = c.Get("charlie three")
	require.True(t, ok)

	c.Add("delta four", "4")

	assert.Equal(t, 3, c.Len())
	_, ok = c.Entries["alpha one"]
	assert.False(t, ok, "coldest entry should have been evicted")
	_, ok = c.Entries["delta four"]
	assert.True(t, ok)
}

func TestFuzzyCacheEvictionCount(t *testing.T) {
	c := NewFuzzyCache()
	c.Limit = 20
	for i := 0; i < 20; i++ {
		c.Add(fmt.Sprintf("query number %d please", i), "r")
	}
	require.Equal(t, 20, c.Len())

	// At 20 entries a tenth is evicted to make room: two out, one in.
	c.Add("the twenty first query", "r")
	assert.Equal(t, 19, c.Len())
}

func TestFuzzyCacheAddUpdatesExisting(t *testing.T) {
	c := NewFuzzyCache()
	c.Add("alpha one", "old")
	c.Add("alpha one", "new")

	assert.Equal(t, 1, c.Len())
	got, ok := c.Get("alpha one")
	require.True(t, ok)
	assert.Equal(t, "new", got)
}
