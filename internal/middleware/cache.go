package middleware

import (
	"sort"
	"strings"
	"unicode"
)

const (
	defaultCacheLimit     = 50
	defaultCacheThreshold = 0.8
)

type cacheEntry struct {
	Response  string `json:"response"`
	Frequency int    `json:"frequency"`
}

// FuzzyCache is an in-memory query lookup with approximate matching. Lookup
// order is exact match, cleaned substring match, then similarity match
// against Threshold. Entries carry frequency counts; when the cache is full
// the least frequently used tenth is evicted.
//
// A cache is scoped to a single workflow state and is not safe for
// concurrent use.
type FuzzyCache struct {
	Limit     int                    `json:"limit"`
	Threshold float64                `json:"threshold"`
	Entries   map[string]*cacheEntry `json:"entries"`
}

// NewFuzzyCache creates a cache with default limit and threshold.
func NewFuzzyCache() *FuzzyCache {
	return &FuzzyCache{
		Limit:     defaultCacheLimit,
		Threshold: defaultCacheThreshold,
		Entries:   make(map[string]*cacheEntry),
	}
}

// Add stores a query-response pair, evicting cold entries when full.
func (c *FuzzyCache) Add(query, response string) {
	if c.Entries == nil {
		c.Entries = make(map[string]*cacheEntry)
	}
	if e, ok := c.Entries[query]; ok {
		e.Frequency++
		e.Response = response
		return
	}
	if limit := c.limit(); len(c.Entries) >= limit {
		c.evict()
	}
	c.Entries[query] = &cacheEntry{Response: response, Frequency: 1}
}

// Get retrieves a response for query, counting the hit.
func (c *FuzzyCache) Get(query string) (string, bool) {
	if e, ok := c.Entries[query]; ok {
		e.Frequency++
		return e.Response, true
	}

	cleaned := cleanQuery(query)
	for cached, e := range c.Entries {
		cc := cleanQuery(cached)
		if strings.Contains(cc, cleaned) || strings.Contains(cleaned, cc) {
			e.Frequency++
			return e.Response, true
		}
	}

	threshold := c.Threshold
	if threshold <= 0 {
		threshold = defaultCacheThreshold
	}
	for cached, e := range c.Entries {
		if similarity(cleaned, cleanQuery(cached)) >= threshold {
			e.Frequency++
			return e.Response, true
		}
	}
	return "", false
}

// Len returns the number of cached entries.
func (c *FuzzyCache) Len() int { return len(c.Entries) }

func (c *FuzzyCache) limit() int {
	if c.Limit <= 0 {
		return defaultCacheLimit
	}
	return c.Limit
}

// evict removes the least frequently used entries: at least one, or a tenth
// of the cache, whichever is greater.
func (c *FuzzyCache) evict() {
	n := len(c.Entries)
	if n == 0 {
		return
	}
	remove := n / 10
	if remove < 1 {
		remove = 1
	}
	type kv struct {
		query string
		freq  int
	}
	entries := make([]kv, 0, n)
	for q, e := range c.Entries {
		entries = append(entries, kv{q, e.Frequency})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].freq != entries[j].freq {
			return entries[i].freq < entries[j].freq
		}
		return entries[i].query < entries[j].query
	})
	for _, e := range entries[:remove] {
		delete(c.Entries, e.query)
	}
}

// cleanQuery lowercases and strips everything but letters, digits, and
// spaces, so punctuation differences do not defeat matching.
func cleanQuery(q string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(q) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// similarity computes the Ratcliff/Obershelp ratio of two strings: twice the
// number of matching characters over the total length, with matches found by
// recursively splitting around the longest common substring.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingChars(ra, rb)) / float64(total)
}

func matchingChars(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingChars(a[:ai], b[:bi]) +
		matchingChars(a[ai+size:], b[bi+size:])
}

func longestCommonSubstring(a, b []rune) (ai, bi, size int) {
	// prev[j] holds the match length ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
