package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/eventuary/pipeline/models"
)

// HydrationStrategy picks through the JSON state blobs modern JS frameworks
// embed for client-side hydration (Next.js __NEXT_DATA__, Nuxt
// __NUXT__, a generic window.__INITIAL_STATE__ assignment) looking for
// anything shaped like an event record.
type HydrationStrategy struct{}

func (HydrationStrategy) Name() string    { return "hydration" }
func (HydrationStrategy) TrustLevel() int { return 60 }

var hydrationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<script id="__NEXT_DATA__"[^>]*>(.*?)</script>`),
	regexp.MustCompile(`(?s)window\.__NUXT__\s*=\s*(\{.*?\});?\s*</script>`),
	regexp.MustCompile(`(?s)window\.__INITIAL_STATE__\s*=\s*(\{.*?\});?\s*</script>`),
}

func (HydrationStrategy) Extract(html string, pageURL *url.URL, fp Fingerprint) ([]models.RawEventCard, bool) {
	for _, re := range hydrationPatterns {
		m := re.FindStringSubmatch(html)
		if len(m) < 2 {
			continue
		}
		var blob map[string]interface{}
		if err := json.Unmarshal([]byte(m[1]), &blob); err != nil {
			continue
		}
		var cards []models.RawEventCard
		collectEventsInBlob(blob, 0, &cards)
		if len(cards) > 0 {
			return cards, true
		}
	}
	return nil, false
}

// collectEventsInBlob walks a decoded hydration blob collecting every object
// that has both a title-like and a date-like field (a listing page embeds
// one such object per event), bounded in depth to avoid pathological
// recursion on huge client-state trees. A matched object is treated as a
// leaf: its own fields aren't re-scanned as if they were sibling events.
func collectEventsInBlob(v interface{}, depth int, out *[]models.RawEventCard) {
	if depth > 8 {
		return
	}
	switch t := v.(type) {
	case map[string]interface{}:
		title := stringField(t, "title", "name", "eventName")
		date := stringField(t, "startDate", "date", "eventDate", "start")
		if title != "" && date != "" {
			*out = append(*out, models.RawEventCard{
				Title:           title,
				DateText:        date,
				DescriptionHTML: stringField(t, "description", "summary"),
				VenueName:       stringField(t, "venue", "location", "venueName"),
			})
			return
		}
		for _, child := range t {
			collectEventsInBlob(child, depth+1, out)
		}
	case []interface{}:
		for _, child := range t {
			collectEventsInBlob(child, depth+1, out)
		}
	}
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}
