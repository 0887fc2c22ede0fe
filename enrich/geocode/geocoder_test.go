package geocode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventuary/pipeline/ratelimit"
)

func TestFuzzyKeyCollapsesPunctuationAndCase(t *testing.T) {
	a := FuzzyKey("123 Main St., Suite #4")
	b := FuzzyKey("123 MAIN ST SUITE 4")
	assert.Equal(t, a, b)
}

func TestCacheGetSetRoundTrip(t *testing.T) {
	c := NewCache(4, time.Hour)
	c.Put("1 Main St", Coordinates{Lat: 1, Lng: 2})
	got, ok := c.Get("1 main st.")
	require.True(t, ok)
	assert.Equal(t, Coordinates{Lat: 1, Lng: 2}, got)
}

func TestFuzzyKeyStripsDiacritics(t *testing.T) {
	assert.Equal(t, FuzzyKey("Café Olé, Zürich"), FuzzyKey("cafe ole zurich"))
}

func TestCacheCountsHits(t *testing.T) {
	c := NewCache(4, time.Hour)
	c.Put("Paradiso, Amsterdam", Coordinates{Lat: 52.36, Lng: 4.88})
	assert.Equal(t, 0, c.Hits("Paradiso Amsterdam"))
	_, ok := c.Get("paradiso amsterdam")
	require.True(t, ok)
	_, _ = c.Get("Paradiso, Amsterdam")
	assert.Equal(t, 2, c.Hits("Paradiso Amsterdam"))
}

func TestFromHTMLFindsGeoMeta(t *testing.T) {
	html := `<html><head><meta name="geo.position" content="52.37;4.89"></head></html>`
	c, ok := FromHTML(html)
	require.True(t, ok)
	assert.InDelta(t, 52.37, c.Lat, 0.001)
	assert.InDelta(t, 4.89, c.Lng, 0.001)
}

type stubProvider struct {
	name string
	err  error
	c    Coordinates
	hits int
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Geocode(ctx context.Context, address string) (Coordinates, error) {
	s.hits++
	if s.err != nil {
		return Coordinates{}, s.err
	}
	return s.c, nil
}

func TestResolvePrefersHTMLOverProvider(t *testing.T) {
	p := &stubProvider{name: "a", c: Coordinates{Lat: 9, Lng: 9}}
	g := NewGeocoder(NewCache(4, time.Hour), nil, p)
	html := `<meta name="geo.position" content="52.37;4.89">`
	c, by, err := g.Resolve(context.Background(), html, Query{Address: "some address"})
	require.NoError(t, err)
	assert.Equal(t, "html", by)
	assert.InDelta(t, 52.37, c.Lat, 0.001)
	assert.Equal(t, 0, p.hits)
}

func TestResolveFallsBackToNextProviderOnFailure(t *testing.T) {
	bad := &stubProvider{name: "bad", err: errors.New("boom")}
	good := &stubProvider{name: "good", c: Coordinates{Lat: 1, Lng: 1}}
	limiter := ratelimit.New(ratelimit.DefaultConfig())
	g := NewGeocoder(NewCache(4, time.Hour), limiter, bad, good)
	c, by, err := g.Resolve(context.Background(), "", Query{Address: "42 Elm St"})
	require.NoError(t, err)
	assert.Equal(t, "good", by)
	assert.Equal(t, Coordinates{Lat: 1, Lng: 1}, c)
	assert.Equal(t, 1, bad.hits)
	assert.Equal(t, 1, good.hits)
}

func TestResolveUsesCacheBeforeProviders(t *testing.T) {
	cache := NewCache(4, time.Hour)
	cache.Put("42 Elm St", Coordinates{Lat: 5, Lng: 5})
	p := &stubProvider{name: "a", c: Coordinates{Lat: 1, Lng: 1}}
	g := NewGeocoder(cache, nil, p)
	c, by, err := g.Resolve(context.Background(), "", Query{Address: "42 Elm St"})
	require.NoError(t, err)
	assert.Equal(t, "cache", by)
	assert.Equal(t, Coordinates{Lat: 5, Lng: 5}, c)
	assert.Equal(t, 0, p.hits)
}

func TestResolveFuzzyVariantHitStripsCityFromVenue(t *testing.T) {
	cache := NewCache(8, time.Hour)
	cache.Put("paradiso|amsterdam|nl", Coordinates{Lat: 52.3622, Lng: 4.8832})
	p := &stubProvider{name: "a", c: Coordinates{Lat: 1, Lng: 1}}
	g := NewGeocoder(cache, nil, p)

	q := Query{Venue: "Paradiso Amsterdam", City: "Amsterdam", Country: "NL"}
	c, by, err := g.Resolve(context.Background(), "", q)
	require.NoError(t, err)
	assert.Equal(t, "cache", by)
	assert.Equal(t, Coordinates{Lat: 52.3622, Lng: 4.8832}, c)
	assert.Equal(t, 0, p.hits, "a fuzzy cache hit never spends a provider call")
	assert.Equal(t, 1, cache.Hits("paradiso|amsterdam|nl"))
}

func TestQueryVariantsOrderAndComposition(t *testing.T) {
	q := Query{Venue: "Paradiso Amsterdam", City: "Amsterdam", Country: "NL", Address: "Weteringschans 6-8"}
	assert.Equal(t, []string{
		"weteringschans 6-8",
		"paradiso amsterdam|amsterdam|nl",
		"paradiso amsterdam|nl",
		"amsterdam|nl",
		"paradiso|amsterdam|nl",
	}, q.Variants())
}

func TestResolveDegradesProviderQueryToCity(t *testing.T) {
	p := &stubProvider{name: "a", err: errors.New("no match")}
	g := NewGeocoder(NewCache(4, time.Hour), nil, p)
	_, _, err := g.Resolve(context.Background(), "", Query{Venue: "Tiny Club", City: "Utrecht"})
	require.Error(t, err)
	assert.Equal(t, 2, p.hits, "venue+city then city-only are both attempted")
}

func TestResolveExhaustedWhenNoProvidersAndNoCache(t *testing.T) {
	g := NewGeocoder(NewCache(4, time.Hour), nil)
	_, _, err := g.Resolve(context.Background(), "", Query{Address: "nowhere"})
	assert.Error(t, err)
}
