package geocode

import (
	"regexp"
	"strconv"
)

// metaGeoPatterns match the common "geo.position" / ICBM meta tags some
// venue pages embed directly, a generic data-lat/data-lng attribute pair
// used by embedded maps, and a JSON "latitude"/"longitude" pair. Trying this before any network call at all
// is the cheapest possible rung on the geocode ladder.
var metaGeoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<meta[^>]+name=["']geo\.position["'][^>]+content=["']([-\d.]+)\s*;\s*([-\d.]+)["']`),
	regexp.MustCompile(`(?i)<meta[^>]+name=["']ICBM["'][^>]+content=["']([-\d.]+)\s*,\s*([-\d.]+)["']`),
	regexp.MustCompile(`(?i)data-lat=["']([-\d.]+)["'][^>]+data-lng=["']([-\d.]+)["']`),
	regexp.MustCompile(`(?i)"latitude"\s*:\s*([-\d.]+)\s*,\s*"longitude"\s*:\s*([-\d.]+)`),
}

// FromHTML looks for a coordinate pair directly embedded in a page's markup.
// This is the first rung of the geocode ladder: when a venue page already
// publishes its own coordinates, there is no reason to spend a provider
// lookup confirming what the page already says.
func FromHTML(html string) (Coordinates, bool) {
	for _, re := range metaGeoPatterns {
		m := re.FindStringSubmatch(html)
		if len(m) != 3 {
			continue
		}
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lng, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if lat == 0 && lng == 0 {
			continue
		}
		return Coordinates{Lat: lat, Lng: lng}, true
	}
	return Coordinates{}, false
}
