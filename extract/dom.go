package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eventuary/pipeline/models"
)

// DOMSelectorStrategy falls back to a handful of generic CSS selectors
// tuned per detected CMS fingerprint, and a last-resort heuristic (largest
// heading on the page) when the fingerprint is unknown.
type DOMSelectorStrategy struct{}

func (DOMSelectorStrategy) Name() string    { return "dom_selectors" }
func (DOMSelectorStrategy) TrustLevel() int { return 40 }

var cmsSelectors = map[Fingerprint]map[string]string{
	FingerprintWordPressTEC: {
		"title": ".tribe-events-single-event-title",
		"date":  ".tribe-event-date-start",
		"venue": ".tribe-venue",
	},
	FingerprintSquarespace: {
		"title": ".eventitem-title",
		"date":  "time.event-date",
		"venue": ".eventitem-meta-address",
	},
	FingerprintEventbrite: {
		"title": "h1",
		"date":  "[data-testid='event-details-datetime']",
		"venue": "[data-testid='venue-info']",
	},
}

// genericItemSelectors are tried, in order, against pages with no matching
// CMS fingerprint: the first one that matches anything is treated as the
// listing's repeating item selector and every match becomes its own card.
var genericItemSelectors = []string{"article.event", ".event-card", "[itemtype*=Event]"}

func (DOMSelectorStrategy) Extract(html string, pageURL *url.URL, fp Fingerprint) ([]models.RawEventCard, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	if selectors, ok := cmsSelectors[fp]; ok {
		card := models.RawEventCard{
			Title:     textFor(doc.Selection, selectors["title"]),
			DateText:  textFor(doc.Selection, selectors["date"]),
			VenueName: textFor(doc.Selection, selectors["venue"]),
		}
		if h, err := doc.Find("article, .content, main").First().Html(); err == nil {
			card.DescriptionHTML = h
		}
		if card.Title != "" {
			return []models.RawEventCard{card}, true
		}
	}

	for _, itemSel := range genericItemSelectors {
		items := doc.Find(itemSel)
		if items.Length() == 0 {
			continue
		}
		var cards []models.RawEventCard
		items.Each(func(_ int, item *goquery.Selection) {
			title := strings.TrimSpace(item.Find("h1, h2, h3").First().Text())
			if title == "" {
				return
			}
			card := models.RawEventCard{Title: title}
			item.Find("time").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
				if dt, ok := sel.Attr("datetime"); ok && dt != "" {
					card.DateText = dt
					return false
				}
				return true
			})
			if h, err := item.Html(); err == nil {
				card.DescriptionHTML = h
			}
			cards = append(cards, card)
		})
		if len(cards) > 0 {
			return cards, true
		}
	}

	card := models.RawEventCard{Title: strings.TrimSpace(doc.Find("h1").First().Text())}
	doc.Find("time").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if dt, ok := sel.Attr("datetime"); ok && dt != "" {
			card.DateText = dt
			return false
		}
		return true
	})
	if h, err := doc.Find("article, .content, main").First().Html(); err == nil {
		card.DescriptionHTML = h
	}
	if card.Title == "" {
		return nil, false
	}
	return []models.RawEventCard{card}, true
}
