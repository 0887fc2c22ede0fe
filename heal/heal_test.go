package heal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventuary/pipeline/extract"
	"github.com/eventuary/pipeline/llm"
	"github.com/eventuary/pipeline/recipe"
)

type stubClient struct {
	resp string
	err  error
}

func (s stubClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.resp, s.err
}

const sampleHTML = `<html><body>
<h1 class="evt-title">Jazz Night</h1>
<time class="evt-date" datetime="2026-08-01">Aug 1</time>
<span class="evt-venue">Blue Note</span>
</body></html>`

func TestHealRegistersValidatedRecipe(t *testing.T) {
	client := stubClient{resp: `Here you go: {"title": ".evt-title", "date": ".evt-date", "venue": ".evt-venue"}`}
	recipes := recipe.NewStore()
	h := New(client, recipes)

	r, err := h.Heal(context.Background(), "src-1", sampleHTML)
	require.NoError(t, err)
	assert.Equal(t, ".evt-title", r.Selectors["title"])

	stored, ok := recipes.Lookup("src-1")
	require.True(t, ok)
	assert.Equal(t, ".evt-date", stored.Selectors["date"])
}

func TestHealRejectsScoreBelowMinimumWithNoExistingRecipe(t *testing.T) {
	client := stubClient{resp: `{"title": ".evt-title", "date": ".evt-date"}`}
	recipes := recipe.NewStore()
	h := New(client, recipes)

	_, err := h.Heal(context.Background(), "src-1", sampleHTML)
	assert.ErrorIs(t, err, ErrRegression)
}

func TestHealRejectsNonImprovingReplacementAndKeepsExisting(t *testing.T) {
	recipes := recipe.NewStore()
	h := New(stubClient{}, recipes)

	good := `{"title": ".evt-title", "date": ".evt-date", "venue": ".evt-venue"}`
	h.Client = stubClient{resp: good}
	_, err := h.Heal(context.Background(), "src-1", sampleHTML)
	require.NoError(t, err)

	// A same-score replacement is not a strict improvement and is rejected;
	// the existing (better) recipe stays active.
	h.Client = stubClient{resp: good}
	_, err = h.Heal(context.Background(), "src-1", sampleHTML)
	assert.ErrorIs(t, err, ErrRegression)
	stored, _ := recipes.Lookup("src-1")
	assert.Equal(t, ".evt-venue", stored.Selectors["venue"])
}

func TestRevertRestoresArchivedRecipeAfterAStrictlyBetterReplacement(t *testing.T) {
	recipes := recipe.NewStore()
	h := New(stubClient{}, recipes)

	first := `{"title": ".evt-title", "date": ".evt-date", "venue": ".evt-venue"}`
	h.Client = stubClient{resp: first}
	_, err := h.Heal(context.Background(), "src-1", sampleHTML)
	require.NoError(t, err)

	better := `<html><body>
<h1 class="evt-title">Jazz Night</h1>
<time class="evt-date" datetime="2026-08-01">Aug 1</time>
<span class="evt-venue">Blue Note</span>
<span class="evt-venue">Blue Note Downstairs</span>
<p class="evt-price">$20</p>
</body></html>`
	second := `{"title": ".evt-title", "date": ".evt-date", "venue": ".evt-venue", "price": ".evt-price"}`
	h.Client = stubClient{resp: second}
	_, err = h.Heal(context.Background(), "src-1", better)
	require.NoError(t, err)

	reverted, err := h.Revert("src-1")
	require.NoError(t, err)
	assert.NotContains(t, reverted.Selectors, "price")
}

func TestHealRejectsSelectorsThatMatchNothing(t *testing.T) {
	client := stubClient{resp: `{"title": ".does-not-exist", "date": ".evt-date"}`}
	recipes := recipe.NewStore()
	h := New(client, recipes)

	_, err := h.Heal(context.Background(), "src-1", sampleHTML)
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, ok := recipes.Lookup("src-1")
	assert.False(t, ok)
}

func TestHealPassesThroughRateLimitError(t *testing.T) {
	client := stubClient{err: llm.ErrRateLimited}
	h := New(client, recipe.NewStore())
	_, err := h.Heal(context.Background(), "src-1", sampleHTML)
	assert.ErrorIs(t, err, llm.ErrRateLimited)
}

func TestHealPrefersItemSelectorMatchCountForMultiEventListings(t *testing.T) {
	listingHTML := `<html><body>
<div class="old-card"></div>
<div class="card"><h3>Show One</h3><time class="d">1</time></div>
<div class="card"><h3>Show Two</h3><time class="d">2</time></div>
<div class="card"><h3>Show Three</h3><time class="d">3</time></div>
</body></html>`
	recipes := recipe.NewStore()
	recipes.Put(extract.Recipe{SourceID: "src-2", Item: ".old-card", Selectors: map[string]string{"title": "h3", "date": ".d"}})

	client := stubClient{resp: `{"item": ".card", "title": "h3", "date": ".d"}`}
	h := New(client, recipes)

	r, err := h.Heal(context.Background(), "src-2", listingHTML)
	require.NoError(t, err)
	assert.Equal(t, ".card", r.Item)

	stored, ok := recipes.Lookup("src-2")
	require.True(t, ok)
	assert.Equal(t, ".card", stored.Item)
}
