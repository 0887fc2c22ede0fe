package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/eventuary/pipeline/models"
)

// Dimensions is the fixed embedding width this pipeline stores and
// compares against. Providers that return a shorter vector are zero-padded
// up to this width rather than rejected, so a cheaper embedding model can
// still be swapped in without a schema migration.
const Dimensions = 1536

// MaxComposedChars caps the text handed to the embedding provider.
const MaxComposedChars = 8000

// ComposeText builds the embedding input text for an event: title,
// description, venue, address, category, and tags joined with " | ",
// truncated to MaxComposedChars. Empty fields are skipped rather than
// leaving a bare separator.
func ComposeText(ev *models.Event) string {
	parts := make([]string, 0, 6)
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	add(ev.Title)
	add(ev.Description)
	add(ev.VenueName)
	add(ev.Address)
	add(ev.Category)
	if len(ev.Tags) > 0 {
		add(strings.Join(ev.Tags, ", "))
	}
	text := strings.Join(parts, " | ")
	if len(text) > MaxComposedChars {
		text = text[:MaxComposedChars]
	}
	return text
}

// Embedder turns event text into a fixed-width vector for similarity
// search and near-duplicate detection.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Pad zero-pads v up to Dimensions. It is a pure function so it is trivial
// to unit test independent of any network provider.
func Pad(v []float32) []float32 {
	if len(v) >= Dimensions {
		return v[:Dimensions]
	}
	out := make([]float32, Dimensions)
	copy(out, v)
	return out
}

// HTTPEmbedder calls a JSON HTTP embedding endpoint: POST {"input": text},
// expects {"embedding": [...]}. This is a stand-in for whichever concrete
// embeddings API a deployment points it at (OpenAI-compatible endpoints
// all speak this same shape).
type HTTPEmbedder struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPEmbedder builds an HTTPEmbedder against endpoint, authenticating
// with apiKey via a bearer token if non-empty.
func NewHTTPEmbedder(endpoint, apiKey string) *HTTPEmbedder {
	return &HTTPEmbedder{Endpoint: endpoint, APIKey: apiKey, Client: http.DefaultClient}
}

type embedRequest struct {
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Input: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request: http %d", resp.StatusCode)
	}
	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	return Pad(out.Embedding), nil
}
