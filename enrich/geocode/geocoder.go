package geocode

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/eventuary/pipeline/models"
	"github.com/eventuary/pipeline/ratelimit"
)

// Provider is a single geocoding backend (e.g. a specific mapping API).
// Geocoder round-robins across a slice of these, so no single provider's
// quota or outage blocks enrichment outright.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// Geocoder is the hybrid geocoder: HTML extraction first, then a fuzzy
// cache, then a multi-provider round robin with per-provider cool-down.
// The round robin and cool-down reuse ratelimit.Limiter keyed by provider
// name instead of by host, the same mechanism fetch/ uses per-domain.
type Geocoder struct {
	Cache     *Cache
	Providers []Provider
	Limiter   *ratelimit.Limiter

	mu   sync.Mutex
	next int
}

// NewGeocoder wires a cache, provider list, and limiter. Providers are
// tried in round-robin order starting from a rotating offset so repeated
// failures on one address don't always hammer the same provider first.
func NewGeocoder(cache *Cache, limiter *ratelimit.Limiter, providers ...Provider) *Geocoder {
	return &Geocoder{Cache: cache, Providers: providers, Limiter: limiter}
}

// Query carries what enrichment knows about an event's location: the raw
// address off the card plus the venue name and the source's declared
// city/country, from which the fuzzy-cache variant keys are derived.
type Query struct {
	Venue   string
	City    string
	Country string
	Address string
}

// Variants returns the fuzzy-cache keys to probe for this query, most to
// least specific: the full address, then the pipe-joined composites
// venue|city|country, venue|country, city|country, and finally the venue
// with the city's tokens stripped out of it ("Paradiso Amsterdam" in
// Amsterdam probes "paradiso|amsterdam|nl"), since sources routinely fold
// their city into the venue name.
func (q Query) Variants() []string {
	venue := FuzzyKey(q.Venue)
	city := FuzzyKey(q.City)
	country := FuzzyKey(q.Country)

	var out []string
	seen := make(map[string]bool)
	add := func(parts ...string) {
		var kept []string
		for _, p := range parts {
			if p != "" {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			return
		}
		key := strings.Join(kept, "|")
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	add(FuzzyKey(q.Address))
	add(venue, city, country)
	add(venue, country)
	add(city, country)
	add(stripCityTokens(venue, city), city, country)
	return out
}

// stripCityTokens removes the city's words from a normalized venue string,
// returning "" when nothing was stripped (the variant would only duplicate
// an earlier one).
func stripCityTokens(venue, city string) string {
	if venue == "" || city == "" {
		return ""
	}
	cityTokens := make(map[string]bool)
	for _, tok := range strings.Fields(city) {
		cityTokens[tok] = true
	}
	fields := strings.Fields(venue)
	kept := fields[:0:0]
	for _, tok := range fields {
		if cityTokens[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == len(fields) {
		return ""
	}
	return strings.Join(kept, " ")
}

// providerQueries is the degradation ladder sent to real geocoding
// backends when every cache variant missed: the full address, then
// venue+city+country, venue+city, and finally city+country. Empty parts are
// dropped and duplicate strings are sent once.
func (q Query) providerQueries() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(parts ...string) {
		var kept []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			return
		}
		s := strings.Join(kept, ", ")
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(q.Address)
	add(q.Venue, q.City, q.Country)
	add(q.Venue, q.City)
	add(q.City, q.Country)
	return out
}

// Resolve runs the full ladder for one event: embedded HTML coordinates,
// then every fuzzy-cache variant of the query, then the provider round
// robin over progressively degraded query strings. It returns the provider
// name (or "html"/"cache") that produced the result, for Event.GeocodedBy.
func (g *Geocoder) Resolve(ctx context.Context, html string, q Query) (Coordinates, string, error) {
	if html != "" {
		if c, ok := FromHTML(html); ok {
			return c, "html", nil
		}
	}

	variants := q.Variants()
	if g.Cache != nil {
		for _, key := range variants {
			if c, ok := g.Cache.Get(key); ok {
				return c, "cache", nil
			}
		}
	}

	queries := q.providerQueries()
	if len(queries) == 0 {
		return Coordinates{}, "", models.ErrGeocodeExhausted
	}
	var lastErr error
	for _, pq := range queries {
		c, by, err := g.lookup(ctx, pq)
		if err != nil {
			lastErr = err
			continue
		}
		if g.Cache != nil && len(variants) > 0 {
			g.Cache.Put(variants[0], c)
		}
		return c, by, nil
	}
	if lastErr == nil {
		return Coordinates{}, "", models.ErrGeocodeExhausted
	}
	if errors.Is(lastErr, models.ErrGeocodeExhausted) {
		return Coordinates{}, "", lastErr
	}
	return Coordinates{}, "", errors.Join(models.ErrGeocodeExhausted, lastErr)
}

// lookup runs one query through the provider round robin, rotating the
// starting offset so repeated failures on one address don't always hammer
// the same provider first.
func (g *Geocoder) lookup(ctx context.Context, query string) (Coordinates, string, error) {
	n := len(g.Providers)
	if n == 0 {
		return Coordinates{}, "", models.ErrGeocodeExhausted
	}
	g.mu.Lock()
	start := g.next
	g.next = (g.next + 1) % n
	g.mu.Unlock()

	var lastErr error
	for i := 0; i < n; i++ {
		p := g.Providers[(start+i)%n]
		if g.Limiter != nil {
			if _, err := g.Limiter.Acquire(ctx, p.Name()); err != nil {
				lastErr = err
				continue
			}
		}
		c, err := p.Geocode(ctx, query)
		if err != nil {
			lastErr = err
			if g.Limiter != nil {
				g.Limiter.Feedback(p.Name(), ratelimit.Feedback{Err: err})
			}
			continue
		}
		if g.Limiter != nil {
			g.Limiter.Feedback(p.Name(), ratelimit.Feedback{})
		}
		return c, p.Name(), nil
	}
	if lastErr == nil {
		lastErr = models.ErrGeocodeExhausted
	}
	return Coordinates{}, "", lastErr
}
