package normalize

import "strings"

// categoryKeywords maps a canonical category (the closed key set an Event's
// Category must be drawn from) to the substrings (already lowercased) that
// signal it in free-text category/title/description fields. Map iteration
// order is not guaranteed, so Classify walks categoryOrder instead to keep
// results deterministic.
var categoryKeywords = map[string][]string{
	"MUSIC":     {"concert", "live music", "band", "dj set", "jazz", "acoustic", "gig"},
	"SOCIAL":    {"meetup", "mixer", "networking", "singles night", "speed dating"},
	"ACTIVE":    {"match", "tournament", "race", "marathon", "5k", "run club", "yoga", "hike"},
	"CULTURE":   {"theatre", "theater", "play", "musical", "drama", "exhibition", "gallery", "art show", "museum"},
	"FOOD":      {"tasting", "food festival", "brewery", "wine", "beer festival", "supper club"},
	"NIGHTLIFE": {"club night", "nightclub", "rave", "party", "dj", "comedy", "stand-up", "standup", "improv"},
	"FAMILY":    {"kids", "children", "family-friendly", "family friendly", "storytime"},
	"CIVIC":     {"town hall", "city council", "public hearing", "election", "civic"},
	"COMMUNITY": {"market", "fair", "flea market", "farmers market", "workshop", "volunteer"},
}

// categoryOrder fixes the evaluation order of categoryKeywords so the first
// matching category wins deterministically even though keyword lists could
// otherwise overlap (e.g. "comedy" under NIGHTLIFE vs. a future CULTURE
// addition).
var categoryOrder = []string{
	"MUSIC", "SOCIAL", "ACTIVE", "CULTURE", "FOOD",
	"NIGHTLIFE", "FAMILY", "CIVIC", "COMMUNITY",
}

// CategoryDefault is the closed-set key an ambiguous or unrecognized card
// falls back to.
const CategoryDefault = "COMMUNITY"

// Classify inspects categoryText first (the source's own label, strongest
// signal) then falls back to scanning title and description for keywords.
// The result is always a member of the closed category key set.
func Classify(categoryText, title, description string) string {
	if c, ok := matchKeywords(strings.ToLower(categoryText)); ok {
		return c
	}
	haystack := strings.ToLower(title + " " + description)
	if c, ok := matchKeywords(haystack); ok {
		return c
	}
	return CategoryDefault
}

func matchKeywords(haystack string) (string, bool) {
	if haystack == "" {
		return "", false
	}
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(haystack, kw) {
				return cat, true
			}
		}
	}
	return "", false
}
