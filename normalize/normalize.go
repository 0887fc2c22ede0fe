package normalize

import (
	"strings"
	"time"

	"github.com/eventuary/pipeline/models"
)

// Normalizer turns a winning extraction card into a fully normalized Event:
// dates parsed, category classified, description converted to cleaned markdown,
// fingerprint computed, quality scored. It holds no state of its own; Now
// is overridable so relative date keywords ("today", "tomorrow") resolve
// deterministically in tests.
type Normalizer struct {
	Now func() time.Time
}

// New returns a Normalizer using the real wall clock.
func New() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Result bundles the produced event with the quality assessment that
// informed (or rejected) it, so callers can log why a card was dropped.
type Result struct {
	Event   *models.Event
	Quality QualityResult
}

// Normalize converts a raw card into an Event. It returns ok=false when the
// card fails the noise filter outright (IsProbableEvent) or carries no
// recognizable event date -- a fabricated placeholder date would poison the
// content hash and fingerprint. Everything else that merely scores low still
// produces an Event carrying its QualityScore so downstream stages (or a
// human reviewing low-score records) can decide.
func (n *Normalizer) Normalize(card *models.RawEventCard, sourceID string) (Result, bool) {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}

	description := ToPlainDescription(card.DescriptionHTML)
	quality := ScoreCard(card.Title, description)
	if !quality.IsProbable {
		return Result{Quality: quality}, false
	}

	timeText := card.TimeText
	if strings.TrimSpace(timeText) == "" {
		if t, ok := ExtractTime(card.Title + " " + description); ok {
			timeText = t
		}
	}
	parsed := ParseDate(card.DateText, timeText, now())
	if !parsed.Known {
		quality.Issues = append(quality.Issues, "no recognizable event date")
		return Result{Quality: quality}, false
	}
	category := Classify(card.CategoryText, card.Title, description)

	var imageURL string
	if len(card.ImageURLs) > 0 {
		imageURL = card.ImageURLs[0]
	}

	ev := &models.Event{
		SourceID:     sourceID,
		Title:        strings.TrimSpace(card.Title),
		Description:  description,
		Category:     category,
		EventDate:    parsed.When,
		EventTime:    eventTimeString(parsed),
		TimeKnown:    parsed.TimeKnown,
		VenueName:    strings.TrimSpace(card.VenueName),
		Address:      strings.TrimSpace(card.Address),
		ImageURL:     imageURL,
		ImageURLs:    card.ImageURLs,
		Price:        ParsePrice(card.PriceText),
		SourceURL:    card.SourceURL,
		QualityScore: quality.Score,
		FirstSeenAt:  now(),
		LastSeenAt:   now(),
		UpdatedAt:    now(),
	}
	ev.ContentHash = ContentHash(ev.Title, ev.EventDate)
	ev.Fingerprint = EventFingerprint(ev.Title, ev.EventDate, sourceID)

	return Result{Event: ev, Quality: quality}, true
}

// eventTimeString renders a parsed time-of-day as "HH:MM", or "TBD" when the
// ladder never recognized one.
func eventTimeString(pd ParsedDate) string {
	if !pd.TimeKnown {
		return "TBD"
	}
	return pd.When.Format("15:04")
}
