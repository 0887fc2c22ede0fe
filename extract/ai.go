package extract

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/eventuary/pipeline/llm"
	"github.com/eventuary/pipeline/models"
)

// AIStrategy is the last rung: it converts the page to markdown (to keep the
// prompt small and strip boilerplate markup) and asks the language model to
// fill out the card directly. It is the most expensive and least
// deterministic strategy, so it only runs when every structured and
// heuristic rung above it failed.
type AIStrategy struct {
	Client llm.Client
	// TargetYear anchors the accepted date window [TargetYear, TargetYear+1];
	// zero means the current year.
	TargetYear int
}

func (AIStrategy) Name() string    { return "ai_fallback" }
func (AIStrategy) TrustLevel() int { return 10 }

const aiSystemPrompt = `You extract event listing details from web page text.
Respond with a single JSON array of objects, one per distinct event on the
page (a page describing only one event still returns a one-element array).
Each object has keys: title, date_text, time_text, venue_name, address,
category_text, price_text, description. Use an empty string for any field
you cannot find. Do not invent information.`

func (s AIStrategy) Extract(html string, pageURL *url.URL, fp Fingerprint) ([]models.RawEventCard, bool) {
	if s.Client == nil {
		return nil, false
	}
	conv := converter.NewConverter(converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin()))
	md, err := conv.ConvertString(html)
	if err != nil || strings.TrimSpace(md) == "" {
		return nil, false
	}
	if len(md) > 8000 {
		md = md[:8000]
	}
	ctx := context.Background()
	out, err := s.Client.Complete(ctx, aiSystemPrompt, md)
	if err != nil {
		return nil, false
	}
	var parsed []struct {
		Title        string `json:"title"`
		DateText     string `json:"date_text"`
		TimeText     string `json:"time_text"`
		VenueName    string `json:"venue_name"`
		Address      string `json:"address"`
		CategoryText string `json:"category_text"`
		PriceText    string `json:"price_text"`
		Description  string `json:"description"`
	}
	if err := json.Unmarshal([]byte(extractJSONArray(out)), &parsed); err != nil {
		return nil, false
	}
	minYear := time.Now().Year()
	if s.TargetYear > 0 {
		minYear = s.TargetYear
	}
	cards := make([]models.RawEventCard, 0, len(parsed))
	for _, p := range parsed {
		if p.Title == "" {
			continue
		}
		// Models confabulate dates more than any other field; a year
		// outside the target window is a hard reject, not a maybe.
		if y, ok := yearOf(p.DateText); ok && (y < minYear || y > minYear+1) {
			continue
		}
		cards = append(cards, models.RawEventCard{
			Title:           p.Title,
			DateText:        p.DateText,
			TimeText:        p.TimeText,
			VenueName:       p.VenueName,
			Address:         p.Address,
			CategoryText:    p.CategoryText,
			PriceText:       p.PriceText,
			DescriptionHTML: p.Description,
		})
	}
	if len(cards) == 0 {
		return nil, false
	}
	return cards, true
}

var yearPattern = regexp.MustCompile(`\b(20\d{2})\b`)

// yearOf pulls the first four digit year out of a free-form date string.
func yearOf(dateText string) (int, bool) {
	m := yearPattern.FindStringSubmatch(dateText)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return y, true
}

// extractJSONObject trims any leading/trailing prose a model adds around the
// JSON object it was asked for.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return s[start : end+1]
}

// extractJSONArray trims leading/trailing prose around the JSON array the
// model was asked for. A model that ignores the array instruction and
// replies with a bare object is still accepted, wrapped as a single-element
// array.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	if obj := extractJSONObject(s); obj != "{}" {
		return "[" + obj + "]"
	}
	return "[]"
}
