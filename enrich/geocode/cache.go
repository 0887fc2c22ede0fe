package geocode

import (
	"container/list"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Lat float64
	Lng float64
}

type cacheEntry struct {
	key       string
	coords    Coordinates
	expiresAt time.Time
	hits      int
}

// Cache is a fuzzy-keyed LRU with TTL eviction (mutex + list.List + map),
// holding one coordinate pair per normalized address.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	lru      *list.List
	entries  map[string]*list.Element
	now      func() time.Time
}

// NewCache builds a cache holding at most capacity entries, each valid for
// ttl. A ttl of zero means entries never expire on their own (only LRU
// eviction reclaims them).
func NewCache(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		lru:      list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get looks up an address by its fuzzy key (see FuzzyKey). A hit moves the
// entry to the front of the LRU and is discarded if it has expired.
func (c *Cache) Get(address string) (Coordinates, bool) {
	key := FuzzyKey(address)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return Coordinates{}, false
	}
	entry := el.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		c.lru.Remove(el)
		delete(c.entries, key)
		return Coordinates{}, false
	}
	c.lru.MoveToFront(el)
	entry.hits++
	return entry.coords, true
}

// Hits returns how many times the address's entry has been served, the
// signal capacity-pressure eviction heuristics weigh alongside recency.
func (c *Cache) Hits(address string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[FuzzyKey(address)]
	if !ok {
		return 0
	}
	return el.Value.(*cacheEntry).hits
}

// Put stores a resolved coordinate pair under the address's fuzzy key,
// evicting the least-recently-used entry when over capacity.
func (c *Cache) Put(address string, coords Coordinates) {
	key := FuzzyKey(address)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).coords = coords
		el.Value.(*cacheEntry).expiresAt = c.now().Add(c.ttl)
		c.lru.MoveToFront(el)
		return
	}
	entry := &cacheEntry{key: key, coords: coords, expiresAt: c.now().Add(c.ttl)}
	el := c.lru.PushFront(entry)
	c.entries[key] = el
	if c.capacity > 0 {
		for len(c.entries) > c.capacity {
			back := c.lru.Back()
			if back == nil {
				break
			}
			delete(c.entries, back.Value.(*cacheEntry).key)
			c.lru.Remove(back)
		}
	}
}

// deaccent strips combining marks so "Café Olé" and "Cafe Ole" produce the
// same key.
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FuzzyKey normalizes an address for cache lookup so cosmetic differences
// (casing, diacritics, punctuation, doubled whitespace) between the same
// venue address as written by two different sources still collide.
func FuzzyKey(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	if folded, _, err := transform.String(deaccent, address); err == nil {
		address = folded
	}
	var b strings.Builder
	prevSpace := false
	for _, r := range address {
		switch {
		case r == ',' || r == '.' || r == '#':
			continue
		case r == ' ' || r == '\t' || r == '\n':
			if !prevSpace {
				b.WriteRune(' ')
			}
			prevSpace = true
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
