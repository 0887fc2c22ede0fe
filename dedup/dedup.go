package dedup

import (
	"strings"

	"github.com/eventuary/pipeline/enrich/images"
	"github.com/eventuary/pipeline/models"
)

// FieldRule decides, for a single field, whether an incoming candidate's
// value should replace the existing golden record's value. Rules are kept
// as a table rather than a long if/else chain in Merge, mirroring the
// business-policy rule-table style used for crawling/processing policy.
type FieldRule func(existing, candidate *models.Event) bool

// preferHigherQuality takes the candidate's value when it came from a
// better-scoring record overall.
func preferHigherQuality(existing, candidate *models.Event) bool {
	return candidate.QualityScore > existing.QualityScore
}

// preferLongerDescription takes the candidate's description only when it is
// strictly longer; comparable lengths keep the existing record's text.
func preferLongerDescription(existing, candidate *models.Event) bool {
	c := strings.TrimSpace(candidate.Description)
	return c != "" && len(c) > len(strings.TrimSpace(existing.Description))
}

// rules is applied in order; the first matching rule for a field wins. Most
// fields use straightforward union-fill (fill gaps, never overwrite known
// good data) except description, which keeps whichever text is longer, and
// category, which prefers the higher-scoring record overall.
var rules = struct {
	Description FieldRule
	Category    FieldRule
	VenueName   FieldRule
	Address     FieldRule
	ImageURL    FieldRule
	Geocode     FieldRule
	Organizer    FieldRule
	Performer    FieldRule
	TicketsURL   FieldRule
	Price        FieldRule
	LastHealedAt FieldRule
}{
	Description:  preferLongerDescription,
	Category:     preferHigherQuality,
	VenueName:    fillGap(func(e *models.Event) string { return e.VenueName }),
	Address:      fillGap(func(e *models.Event) string { return e.Address }),
	ImageURL:     replaceableImageURL,
	Geocode:      func(existing, candidate *models.Event) bool { return existing.GeocodedBy == "" && candidate.GeocodedBy != "" },
	Organizer:    fillGap(func(e *models.Event) string { return e.Organizer }),
	Performer:    fillGap(func(e *models.Event) string { return e.Performer }),
	TicketsURL:   fillGap(func(e *models.Event) string { return e.TicketsURL }),
	Price:        fillGap(func(e *models.Event) string { return e.Price.Raw }),
	LastHealedAt: func(existing, candidate *models.Event) bool { return !candidate.LastHealedAt.IsZero() },
}

func fillGap(get func(*models.Event) string) FieldRule {
	return func(existing, candidate *models.Event) bool {
		return strings.TrimSpace(get(existing)) == "" && strings.TrimSpace(get(candidate)) != ""
	}
}

// replaceableImageURL takes the candidate's image only when it is a real
// one and the existing record has none -- or has a tracking beacon that
// slipped in and should never occupy the golden record.
func replaceableImageURL(existing, candidate *models.Event) bool {
	cand := strings.TrimSpace(candidate.ImageURL)
	if cand == "" || images.IsTrackingURL(cand) {
		return false
	}
	cur := strings.TrimSpace(existing.ImageURL)
	return cur == "" || images.IsTrackingURL(cur)
}

// Merge folds candidate into existing, returning the golden record and
// whether any field considered "descriptive" (Description, Category,
// VenueName, Address) changed materially -- the signal callers use to decide
// whether the merged record needs its embedding recomputed rather than
// carrying over the existing one untouched.
func Merge(existing, candidate *models.Event) (*models.Event, bool) {
	merged := *existing
	materialChange := false

	if rules.Description(existing, candidate) {
		merged.Description = candidate.Description
		if candidate.QualityScore > existing.QualityScore {
			merged.QualityScore = candidate.QualityScore
		}
		materialChange = true
	}
	if rules.Category(existing, candidate) {
		merged.Category = candidate.Category
		materialChange = true
	}
	if rules.VenueName(existing, candidate) {
		merged.VenueName = candidate.VenueName
		materialChange = true
	}
	if rules.Address(existing, candidate) {
		merged.Address = candidate.Address
		materialChange = true
	}
	if rules.Price(existing, candidate) {
		merged.Price = candidate.Price
	}
	if rules.ImageURL(existing, candidate) {
		merged.ImageURL = candidate.ImageURL
	}
	merged.ImageURLs = unionStrings(existing.ImageURLs, candidate.ImageURLs)
	merged.Tags = unionStrings(existing.Tags, candidate.Tags)
	merged.PersonaTags = unionStrings(existing.PersonaTags, candidate.PersonaTags)
	if rules.Geocode(existing, candidate) {
		merged.Latitude = candidate.Latitude
		merged.Longitude = candidate.Longitude
		merged.GeocodedBy = candidate.GeocodedBy
	}
	if rules.Organizer(existing, candidate) {
		merged.Organizer = candidate.Organizer
	}
	if rules.Performer(existing, candidate) {
		merged.Performer = candidate.Performer
	}
	if rules.TicketsURL(existing, candidate) {
		merged.TicketsURL = candidate.TicketsURL
	}
	if rules.LastHealedAt(existing, candidate) {
		merged.LastHealedAt = candidate.LastHealedAt
	}
	merged.LastSeenAt = candidate.LastSeenAt
	if candidate.LastSeenAt.After(existing.LastSeenAt) {
		merged.UpdatedAt = candidate.LastSeenAt
	}

	return &merged, materialChange
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
