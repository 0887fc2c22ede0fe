// Package extract implements the extraction waterfall: an ordered ladder of
// strategies, each trying to pull a structured event card out of a fetched
// page, stopping at the first one that produces a usable result.
package extract

import (
	"net/url"

	"github.com/eventuary/pipeline/models"
)

// Strategy is one rung of the waterfall. A listing page can hold more than
// one event, so Extract returns every card it found, not just the first.
type Strategy interface {
	Name() string
	TrustLevel() int
	Extract(html string, pageURL *url.URL, fp Fingerprint) ([]models.RawEventCard, bool)
}

// Recipe is a per-source set of extraction hints, learned once (by a human
// or by the self-healing selector engine) and replayed cheaply thereafter.
// Container scopes the page to the listing wrapper (empty = whole
// document); Item is the repeating selector matched once per event on a
// multi-event listing page. A source whose pages only ever carry one event
// can leave both empty and rely on Selectors against the whole document.
type Recipe struct {
	SourceID  string
	Container string            // e.g. "#upcoming-events"
	Item      string            // e.g. ".event-card", matched once per event
	Selectors map[string]string // field name -> selector, evaluated within Item's scope
	UpdatedAt string
}

// RecipeProvider looks up a cached recipe for a source. The recipe package
// implements this against its store.
type RecipeProvider interface {
	Lookup(sourceID string) (Recipe, bool)
}

// Waterfall runs strategies in priority order and returns the first winner.
type Waterfall struct {
	strategies []Strategy
}

// New builds a Waterfall from constructor-injected strategies, in the order
// they should be tried. Injecting the list explicitly (rather than a global
// registry) keeps the set testable and keeps AI last.
func New(strategies ...Strategy) *Waterfall {
	return &Waterfall{strategies: strategies}
}

// Attempt records one strategy's outcome, kept for diagnostics even when it
// wasn't the winner.
type Attempt struct {
	Strategy string
	Ok       bool
}

// Run tries each strategy in order and returns every usable card the first
// winning strategy produced, along with the full attempt log.
func (w *Waterfall) Run(html string, pageURL *url.URL) ([]models.RawEventCard, []Attempt) {
	fp := Detect(html)
	attempts := make([]Attempt, 0, len(w.strategies))
	for _, s := range w.strategies {
		cards, ok := s.Extract(html, pageURL, fp)
		usable := make([]models.RawEventCard, 0, len(cards))
		for i := range cards {
			if IsUsable(&cards[i]) {
				usable = append(usable, cards[i])
			}
		}
		attempts = append(attempts, Attempt{Strategy: s.Name(), Ok: ok && len(usable) > 0})
		if ok && len(usable) > 0 {
			for i := range usable {
				usable[i].Strategy = s.Name()
				usable[i].TrustLevel = s.TrustLevel()
				usable[i].SourceURL = pageURL.String()
			}
			return usable, attempts
		}
	}
	return nil, attempts
}

// IsUsable is the minimal validity bar a card must clear to be accepted: a
// non-empty title and at least one of a date hint or description.
func IsUsable(card *models.RawEventCard) bool {
	if card == nil || card.Title == "" {
		return false
	}
	return card.DateText != "" || card.DescriptionHTML != ""
}
