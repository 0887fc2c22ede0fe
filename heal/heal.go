package heal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eventuary/pipeline/extract"
	"github.com/eventuary/pipeline/llm"
	"github.com/eventuary/pipeline/recipe"
)

// ErrValidationFailed is returned when a model-proposed selector set fails
// the goquery validation gate (required fields don't resolve to anything
// on the sample page). The caller should not register the recipe.
var ErrValidationFailed = errors.New("heal: proposed selectors failed validation")

// requiredFields are the selector keys a proposed recipe must resolve on
// the sample page before it is trusted; everything else is best-effort.
var requiredFields = []string{"title", "date"}

// minAcceptScore is the minimum total selector match count (summed across
// every proposed field) a recipe needs before it can be trusted, even when
// there is no prior recipe to beat.
const minAcceptScore = 3

// ErrRegression is returned when a proposed recipe does not score strictly
// higher than the source's existing recipe on the same sample page -- the
// new selectors may be plausible but aren't a proven improvement, so the
// existing recipe is left in place.
var ErrRegression = errors.New("heal: proposed recipe did not outperform the existing one")

const healSystemPrompt = `You are generating CSS selectors for scraping event
listing pages. Given an HTML sample, respond with a single JSON object
mapping these keys to CSS selectors that would extract each field from
this specific page: title, date, time, venue, address, category, price,
description. If the sample is a listing page with more than one event,
also include "container" (the selector scoping the listing wrapper) and
"item" (the selector matched once per repeating event card); the other
field selectors are then evaluated within each item, not the whole page.
Omit a key if the page does not contain that field. Prefer specific,
stable selectors (IDs, data attributes, distinctive classes) over generic
tag names.`

// Healer regenerates a source's extraction recipe when its existing one
// has stopped matching (the site redesigned its markup). It asks the
// language model to propose new selectors, validates them against a
// sample page with goquery before trusting them, and on success registers
// the recipe directly into the shared recipe.Store so the next crawl of
// this source uses it immediately.
type Healer struct {
	Client  llm.Client
	Recipes *recipe.Store
}

// New builds a Healer.
func New(client llm.Client, recipes *recipe.Store) *Healer {
	return &Healer{Client: client, Recipes: recipes}
}

// Heal proposes and validates a new recipe for sourceID from sampleHTML. On
// success the recipe is registered into the Healer's recipe.Store and
// returned. llm.ErrRateLimited is passed through unwrapped so callers can
// re-queue the healing attempt at lower priority rather than treating it
// as a permanent failure.
func (h *Healer) Heal(ctx context.Context, sourceID, sampleHTML string) (extract.Recipe, error) {
	prompt := sampleHTML
	if len(prompt) > 12000 {
		prompt = prompt[:12000]
	}

	raw, err := h.Client.Complete(ctx, healSystemPrompt, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrRateLimited) {
			return extract.Recipe{}, err
		}
		return extract.Recipe{}, fmt.Errorf("heal: propose selectors: %w", err)
	}

	fields, err := parseSelectors(raw)
	if err != nil {
		return extract.Recipe{}, fmt.Errorf("heal: parse proposed selectors: %w", err)
	}
	container := strings.TrimSpace(fields["container"])
	item := strings.TrimSpace(fields["item"])
	delete(fields, "container")
	delete(fields, "item")

	if err := validate(sampleHTML, fields); err != nil {
		return extract.Recipe{}, err
	}

	candidate := extract.Recipe{SourceID: sourceID, Container: container, Item: item, Selectors: fields}

	newScore, err := matchScore(sampleHTML, candidate)
	if err != nil {
		return extract.Recipe{}, fmt.Errorf("heal: score proposed selectors: %w", err)
	}
	if old, ok := h.Recipes.Lookup(sourceID); ok {
		oldScore, err := matchScore(sampleHTML, old)
		if err != nil {
			return extract.Recipe{}, fmt.Errorf("heal: score existing selectors: %w", err)
		}
		if newScore <= oldScore || newScore < minAcceptScore {
			return extract.Recipe{}, fmt.Errorf("%w: scored %d matches vs %d for the existing recipe", ErrRegression, newScore, oldScore)
		}
		h.Recipes.Archive(sourceID)
	} else if newScore < minAcceptScore {
		return extract.Recipe{}, fmt.Errorf("%w: scored %d matches, need at least %d", ErrRegression, newScore, minAcceptScore)
	}

	h.Recipes.Put(candidate)
	return candidate, nil
}

// Revert swaps sourceID's active recipe back to its last-working archive, a
// manual escape hatch when a regenerated recipe turns out to perform badly
// in production despite passing validation on its sample page.
func (h *Healer) Revert(sourceID string) (extract.Recipe, error) {
	r, ok := h.Recipes.Revert(sourceID)
	if !ok {
		return extract.Recipe{}, fmt.Errorf("heal: no archived recipe for source %q", sourceID)
	}
	return r, nil
}

// matchScore scores a recipe against sampleHTML. When the recipe declares an
// item selector (a multi-event listing), the score is simply how many times
// that selector matches -- the self-healing signal is "does the new
// item selector actually find the repeating cards". Otherwise it falls back
// to summing the match count of every non-empty field selector, a cheap
// proxy for "how much of this page's structure does this recipe capture".
func matchScore(sampleHTML string, r extract.Recipe) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sampleHTML))
	if err != nil {
		return 0, fmt.Errorf("heal: parse sample HTML: %w", err)
	}
	if r.Item != "" {
		scope := doc.Selection
		if r.Container != "" {
			if c := doc.Find(r.Container); c.Length() > 0 {
				scope = c
			}
		}
		return scope.Find(r.Item).Length(), nil
	}
	total := 0
	for _, sel := range r.Selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		total += doc.Find(sel).Length()
	}
	return total, nil
}

func parseSelectors(raw string) (map[string]string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validate(sampleHTML string, selectors map[string]string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sampleHTML))
	if err != nil {
		return fmt.Errorf("heal: parse sample HTML: %w", err)
	}
	for _, field := range requiredFields {
		sel, ok := selectors[field]
		if !ok || strings.TrimSpace(sel) == "" {
			return fmt.Errorf("%w: missing required field %q", ErrValidationFailed, field)
		}
		if doc.Find(sel).Length() == 0 {
			return fmt.Errorf("%w: selector for %q matched nothing", ErrValidationFailed, field)
		}
	}
	return nil
}
