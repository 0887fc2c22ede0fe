package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventuary/pipeline/models"
)

func TestPadZeroFillsShortVectors(t *testing.T) {
	v := Pad([]float32{1, 2, 3})
	require.Len(t, v, Dimensions)
	assert.Equal(t, float32(1), v[0])
	assert.Equal(t, float32(0), v[3])
}

func TestPadTruncatesLongVectors(t *testing.T) {
	long := make([]float32, Dimensions+10)
	for i := range long {
		long[i] = float32(i)
	}
	v := Pad(long)
	assert.Len(t, v, Dimensions)
}

func TestHTTPEmbedderEmbedsAndPads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "secret")
	v, err := e.Embed(context.Background(), "Jazz Night downtown")
	require.NoError(t, err)
	require.Len(t, v, Dimensions)
	assert.InDelta(t, 0.1, v[0], 0.0001)
}

func TestComposeTextJoinsPopulatedFieldsOnly(t *testing.T) {
	ev := &models.Event{Title: "Jazz Night", VenueName: "Blue Room", Category: "MUSIC"}
	assert.Equal(t, "Jazz Night | Blue Room | MUSIC", ComposeText(ev))
}

func TestComposeTextTruncatesToMax(t *testing.T) {
	ev := &models.Event{Title: strings.Repeat("x", MaxComposedChars+500)}
	assert.Len(t, ComposeText(ev), MaxComposedChars)
}
