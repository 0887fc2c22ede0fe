package extract

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLDStrategyExtractsSchemaOrgEvent(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
	{"@type":"Event","name":"Jazz Night","startDate":"2026-08-01T20:00:00",
	 "description":"Live jazz downtown","location":{"name":"The Blue Room"}}
	</script></head><body></body></html>`
	u, _ := url.Parse("https://example.com/e/1")

	cards, ok := JSONLDStrategy{}.Extract(html, u, FingerprintUnknown)
	require.True(t, ok)
	require.Len(t, cards, 1)
	assert.Equal(t, "Jazz Night", cards[0].Title)
	assert.Equal(t, "The Blue Room", cards[0].VenueName)
}

func TestJSONLDStrategyExtractsEveryEventInAGraph(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
	{"@graph":[
	 {"@type":"Event","name":"Jazz Night","startDate":"2026-08-01T20:00:00"},
	 {"@type":"Event","name":"Blues Night","startDate":"2026-08-02T20:00:00"},
	 {"@type":"Event","name":"Rock Night","startDate":"2026-08-03T20:00:00"}
	]}
	</script></head><body></body></html>`
	u, _ := url.Parse("https://example.com/e/listing")

	cards, ok := JSONLDStrategy{}.Extract(html, u, FingerprintUnknown)
	require.True(t, ok)
	require.Len(t, cards, 3)
	assert.Equal(t, "Jazz Night", cards[0].Title)
	assert.Equal(t, "Blues Night", cards[1].Title)
	assert.Equal(t, "Rock Night", cards[2].Title)
}

func TestWaterfallStopsAtFirstUsableStrategy(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
	{"@type":"Event","name":"Jazz Night","startDate":"2026-08-01"}
	</script></head><body><h1>Fallback Title</h1></body></html>`
	u, _ := url.Parse("https://example.com/e/1")

	w := New(JSONLDStrategy{}, DOMSelectorStrategy{})
	cards, attempts := w.Run(html, u)
	require.Len(t, cards, 1)
	assert.Equal(t, "jsonld", cards[0].Strategy)
	assert.Equal(t, "jsonld", attempts[0].Strategy)
	assert.True(t, attempts[0].Ok)
	assert.Len(t, attempts, 1)
}

func TestWaterfallFallsThroughWhenEarlierStrategiesFail(t *testing.T) {
	html := `<html><body><h1>Open Mic Night</h1><time datetime="2026-09-05">Sept 5</time></body></html>`
	u, _ := url.Parse("https://example.com/e/2")

	w := New(JSONLDStrategy{}, MicrodataOGStrategy{}, DOMSelectorStrategy{})
	cards, attempts := w.Run(html, u)
	require.Len(t, cards, 1)
	assert.Equal(t, "dom_selectors", cards[0].Strategy)
	assert.Equal(t, "Open Mic Night", cards[0].Title)
	assert.Len(t, attempts, 3)
}

func TestDetectFingerprintsKnownCMS(t *testing.T) {
	assert.Equal(t, FingerprintWordPressTEC, Detect(`<div class="tribe-events">x</div>`))
	assert.Equal(t, FingerprintSquarespace, Detect(`<script src="https://static1.squarespace.com/x.js"></script>`))
	assert.Equal(t, FingerprintUnknown, Detect(`<div>plain</div>`))
}
