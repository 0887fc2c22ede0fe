package extract

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eventuary/pipeline/models"
)

// JSONLDStrategy parses schema.org/Event structured data from
// <script type="application/ld+json"> blocks. The most reliable signal after
// a cached recipe, since it is meant to be machine-read.
type JSONLDStrategy struct{}

func (JSONLDStrategy) Name() string    { return "jsonld" }
func (JSONLDStrategy) TrustLevel() int { return 90 }

type jsonLDEvent struct {
	Type        json.RawMessage `json:"@type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	StartDate   string          `json:"startDate"`
	Image       json.RawMessage `json:"image"`
	Offers      json.RawMessage `json:"offers"`
	Location    struct {
		Name    string `json:"name"`
		Address json.RawMessage `json:"address"`
	} `json:"location"`
}

func (JSONLDStrategy) Extract(html string, pageURL *url.URL, fp Fingerprint) ([]models.RawEventCard, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	var found []jsonLDEvent
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := sel.Text()
		for _, c := range splitJSONLDDocuments(raw) {
			var ev jsonLDEvent
			if err := json.Unmarshal([]byte(c), &ev); err != nil {
				continue
			}
			if isEventType(ev.Type) {
				found = append(found, ev)
			}
		}
	})
	if len(found) == 0 {
		return nil, false
	}
	cards := make([]models.RawEventCard, 0, len(found))
	for _, ev := range found {
		if ev.Name == "" {
			continue
		}
		cards = append(cards, models.RawEventCard{
			Title:           ev.Name,
			DescriptionHTML: ev.Description,
			DateText:        ev.StartDate,
			VenueName:       ev.Location.Name,
			Address:         flattenAddress(ev.Location.Address),
			ImageURLs:       flattenImages(ev.Image),
			PriceText:       flattenOffers(ev.Offers),
		})
	}
	if len(cards) == 0 {
		return nil, false
	}
	return cards, true
}

// splitJSONLDDocuments handles both a single object and a top-level array of
// objects/graphs in one script block.
func splitJSONLDDocuments(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			return nil
		}
		out := make([]string, 0, len(arr))
		for _, r := range arr {
			out = append(out, string(r))
		}
		return out
	}
	var withGraph struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal([]byte(raw), &withGraph); err == nil && len(withGraph.Graph) > 0 {
		out := make([]string, 0, len(withGraph.Graph))
		for _, r := range withGraph.Graph {
			out = append(out, string(r))
		}
		return out
	}
	return []string{raw}
}

func isEventType(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.Contains(s, "Event")
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		for _, t := range arr {
			if strings.Contains(t, "Event") {
				return true
			}
		}
	}
	return false
}

func flattenAddress(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var addr struct {
		StreetAddress string `json:"streetAddress"`
		AddressLocality string `json:"addressLocality"`
		AddressRegion string `json:"addressRegion"`
		PostalCode string `json:"postalCode"`
	}
	if err := json.Unmarshal(raw, &addr); err == nil {
		parts := []string{addr.StreetAddress, addr.AddressLocality, addr.AddressRegion, addr.PostalCode}
		var nonEmpty []string
		for _, p := range parts {
			if p != "" {
				nonEmpty = append(nonEmpty, p)
			}
		}
		return strings.Join(nonEmpty, ", ")
	}
	return ""
}

func flattenImages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	return nil
}

func flattenOffers(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.Price != "" {
		return single.Price
	}
	return ""
}
