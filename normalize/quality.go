package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// QualityResult is a 0-1 score plus the list of issues that pulled it
// down, so callers can log why a card was rejected instead of just a bare
// false.
type QualityResult struct {
	Score      float64
	Issues     []string
	WordCount  int
	IsProbable bool
}

const (
	minTitleLen  = 4
	minDescWords = 8
)

// ScoreCard scores a single extracted event card: missing/short title,
// missing/thin description, and a handful of noise markers ("lorem ipsum",
// "page not found", javascript-disabled notices) that flag a card as
// probably not a real event at all.
func ScoreCard(title, description string) QualityResult {
	res := QualityResult{Score: 1.0}

	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	if title == "" {
		res.Score -= 0.5
		res.Issues = append(res.Issues, "missing title")
	} else if len(title) < minTitleLen {
		res.Score -= 0.2
		res.Issues = append(res.Issues, "title too short")
	}

	words := wordCount(description)
	res.WordCount = words
	if description == "" {
		res.Score -= 0.3
		res.Issues = append(res.Issues, "missing description")
	} else if words < minDescWords {
		res.Score -= 0.15
		res.Issues = append(res.Issues, "description too short")
	}

	lower := strings.ToLower(title + " " + description)
	for _, marker := range noiseMarkers {
		if strings.Contains(lower, marker) {
			res.Score -= 0.6
			res.Issues = append(res.Issues, "noise marker: "+marker)
			break
		}
	}

	if res.Score < 0 {
		res.Score = 0
	}
	res.IsProbable = IsProbableEvent(title, description)
	return res
}

var noiseMarkers = []string{
	"lorem ipsum",
	"page not found",
	"404 error",
	"enable javascript",
	"access denied",
	"please enable cookies",
}

// listingHeading matches titles that name a whole listing page rather than
// a single event: "Events in Amsterdam", "Concerten in Utrecht", "What's on
// in Leeds", "Veranstaltungen in Berlin". These show up when a DOM strategy
// grabs the page's h1 instead of an event card.
var listingHeading = regexp.MustCompile(`(?i)^(upcoming\s+)?(events?|concerts?|concerten|evenementen|veranstaltungen|activiteiten|uitgaan|agenda|what'?s\s+on)\s+(in|te|near|around|rond)\s+\p{L}`)

// IsProbableEvent is the noise filter gate: distinct from the score, it is
// a hard boolean a caller uses to drop a card before it ever reaches dedup.
// A card can score low but still be probable (thin but real listing); a
// card that matches a noise marker or reads like boilerplate is never
// probable regardless of score.
func IsProbableEvent(title, description string) bool {
	title = strings.TrimSpace(title)
	if title == "" || len(title) < minTitleLen {
		return false
	}
	lower := strings.ToLower(title + " " + description)
	for _, marker := range noiseMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	if listingHeading.MatchString(title) {
		return false
	}
	if isAllPunctuationOrDigits(title) {
		return false
	}
	return true
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func isAllPunctuationOrDigits(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	return !hasLetter
}
