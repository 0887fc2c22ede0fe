package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eventuary/pipeline/models"
)

// MicrodataOGStrategy reads schema.org microdata (itemprop attributes) and,
// failing that, Open Graph meta tags. Less structured than JSON-LD but still
// machine-oriented, so it sits above the DOM-heuristics rung.
type MicrodataOGStrategy struct{}

func (MicrodataOGStrategy) Name() string    { return "microdata_og" }
func (MicrodataOGStrategy) TrustLevel() int { return 70 }

func (MicrodataOGStrategy) Extract(html string, pageURL *url.URL, fp Fingerprint) ([]models.RawEventCard, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	var cards []models.RawEventCard
	doc.Find(`[itemscope][itemtype*="Event"]`).Each(func(_ int, scope *goquery.Selection) {
		title := itemProp(scope, "name")
		if title == "" {
			return
		}
		cards = append(cards, models.RawEventCard{
			Title:           title,
			DateText:        itemProp(scope, "startDate"),
			VenueName:       itemProp(scope, "location"),
			DescriptionHTML: itemProp(scope, "description"),
		})
	})
	if len(cards) > 0 {
		return cards, true
	}

	card := models.RawEventCard{
		Title:           metaContent(doc, "og:title"),
		DescriptionHTML: metaContent(doc, "og:description"),
	}
	if img := metaContent(doc, "og:image"); img != "" {
		card.ImageURLs = append(card.ImageURLs, img)
	}
	if card.Title == "" {
		return nil, false
	}
	return []models.RawEventCard{card}, true
}

func itemProp(scope *goquery.Selection, name string) string {
	sel := scope.Find(`[itemprop="` + name + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	if content, ok := sel.Attr("content"); ok && content != "" {
		return content
	}
	return strings.TrimSpace(sel.Text())
}

func metaContent(doc *goquery.Document, property string) string {
	val, _ := doc.Find(`meta[property="` + property + `"]`).Attr("content")
	return val
}
