// Package llm wraps the AI calls the pipeline falls back to: last-resort
// event extraction from unstructured HTML, and selector-recipe regeneration
// when a source's markup changes out from under a cached recipe.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrRateLimited is returned when the provider signals backpressure (HTTP
// 429). Callers (extract's AI strategy, heal's recipe regenerator) use this
// to lower the item's priority and re-queue rather than busy-retry.
var ErrRateLimited = errors.New("llm: rate limited")

// Client is the minimal surface the pipeline needs from a language model
// provider.
type Client interface {
	// Complete sends a single prompt and returns the raw text response.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// BreakerClient wraps a Client with a circuit breaker so a struggling
// provider doesn't stall every worker waiting on it.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerClient(inner Client) *BreakerClient {
	st := gobreaker.Settings{
		Name:        "llm-client",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerClient{inner: inner, breaker: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
