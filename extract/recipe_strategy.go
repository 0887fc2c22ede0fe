package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eventuary/pipeline/models"
)

// RecipeStrategy replays a cached per-source selector recipe. It is tried
// first because it is the cheapest and most precise when available.
type RecipeStrategy struct {
	SourceID string
	Recipes  RecipeProvider
}

func (s *RecipeStrategy) Name() string   { return "recipe" }
func (s *RecipeStrategy) TrustLevel() int { return 100 }

func (s *RecipeStrategy) Extract(html string, pageURL *url.URL, fp Fingerprint) ([]models.RawEventCard, bool) {
	if s.Recipes == nil {
		return nil, false
	}
	recipe, ok := s.Recipes.Lookup(s.SourceID)
	if !ok || len(recipe.Selectors) == 0 {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	if recipe.Item == "" {
		card := cardFromSelection(doc.Selection, recipe.Selectors)
		if card.Title == "" {
			return nil, false
		}
		return []models.RawEventCard{card}, true
	}

	scope := doc.Selection
	if recipe.Container != "" {
		if c := doc.Find(recipe.Container); c.Length() > 0 {
			scope = c
		}
	}
	var cards []models.RawEventCard
	scope.Find(recipe.Item).Each(func(_ int, item *goquery.Selection) {
		card := cardFromSelection(item, recipe.Selectors)
		if card.Title == "" {
			return
		}
		cards = append(cards, card)
	})
	if len(cards) == 0 {
		return nil, false
	}
	return cards, true
}

// cardFromSelection builds a card by evaluating the recipe's field selectors
// within scope, whether scope is the whole document (legacy single-card
// recipes) or one repeated listing item.
func cardFromSelection(scope *goquery.Selection, selectors map[string]string) models.RawEventCard {
	card := models.RawEventCard{Extra: map[string]string{}}
	card.Title = textFor(scope, selectors["title"])
	card.DateText = textFor(scope, selectors["date"])
	card.TimeText = textFor(scope, selectors["time"])
	card.VenueName = textFor(scope, selectors["venue"])
	card.Address = textFor(scope, selectors["address"])
	card.CategoryText = textFor(scope, selectors["category"])
	card.PriceText = textFor(scope, selectors["price"])
	if sel, ok := selectors["description"]; ok && sel != "" {
		if html, err := scope.Find(sel).First().Html(); err == nil {
			card.DescriptionHTML = html
		}
	}
	if sel, ok := selectors["image"]; ok && sel != "" {
		scope.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok && src != "" {
				card.ImageURLs = append(card.ImageURLs, src)
			}
		})
	}
	return card
}

func textFor(scope *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(scope.Find(selector).First().Text())
}
