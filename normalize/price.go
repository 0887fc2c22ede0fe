package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/eventuary/pipeline/models"
)

// currencySymbols maps the raw glyph or prefix a listing uses to an ISO
// currency code. Checked before the numeric scan so "$" vs "€" vs a bare
// "EUR" all resolve the same way regardless of which side of the number
// they sit on.
var currencySymbols = map[string]string{
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
	"eur": "EUR",
	"usd": "USD",
	"gbp": "GBP",
}

var freeWords = regexp.MustCompile(`(?i)^(free|gratis|no charge|free entry|kostenlos)$`)
var priceNumber = regexp.MustCompile(`(\d+(?:[.,]\d{1,2})?)`)

// ParsePrice turns a raw price string ("€12.50", "$10-$20", "Free",
// "entrance: 8,50") into a Price carrying the raw text plus, when the text
// parses cleanly, a numeric min/max and currency. A range keeps the low and
// high bound; a single figure sets Min=Max. Text that doesn't parse -- a
// vague "donations welcome" -- still keeps Raw with zero numeric fields.
func ParsePrice(raw string) models.Price {
	raw = strings.TrimSpace(raw)
	p := models.Price{Raw: raw}
	if raw == "" {
		return p
	}
	if freeWords.MatchString(raw) {
		p.Min, p.Max = 0, 0
		return p
	}
	p.Currency = detectCurrency(raw)
	matches := priceNumber.FindAllString(raw, -1)
	if len(matches) == 0 {
		return p
	}
	values := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return p
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	p.Min, p.Max = min, max
	return p
}

func detectCurrency(raw string) string {
	lower := strings.ToLower(raw)
	for sym, code := range currencySymbols {
		if strings.Contains(lower, sym) {
			return code
		}
	}
	return ""
}
