package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// HTTPProvider calls a JSON HTTP geocoding endpoint: POST {"address": ...},
// expects {"lat": ..., "lng": ...}. A stand-in for whichever concrete
// mapping API (Google, Mapbox, Nominatim) a deployment points it at -- they
// all reduce to this shape behind a thin adapter.
type HTTPProvider struct {
	ProviderName string
	Endpoint     string
	APIKey       string
	Client       *http.Client
}

func NewHTTPProvider(name, endpoint, apiKey string) *HTTPProvider {
	return &HTTPProvider{ProviderName: name, Endpoint: endpoint, APIKey: apiKey, Client: http.DefaultClient}
}

func (p *HTTPProvider) Name() string { return p.ProviderName }

type geocodeRequest struct {
	Address string `json:"address"`
}

type geocodeResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p *HTTPProvider) Geocode(ctx context.Context, address string) (Coordinates, error) {
	body, err := json.Marshal(geocodeRequest{Address: address})
	if err != nil {
		return Coordinates{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Coordinates{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode request to %s: %w", p.ProviderName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("geocode request to %s: http %d", p.ProviderName, resp.StatusCode)
	}
	var out geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Coordinates{}, fmt.Errorf("decode geocode response from %s: %w", p.ProviderName, err)
	}
	return Coordinates{Lat: out.Lat, Lng: out.Lng}, nil
}

// BreakerProvider wraps a Provider with a circuit breaker so a provider that
// starts erroring gets a cool-down period before Resolve's round-robin
// tries it again, instead of hammering a failing endpoint on every request.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerProvider(inner Provider) *BreakerProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "geocode-" + inner.Name(),
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &BreakerProvider{inner: inner, breaker: cb}
}

func (b *BreakerProvider) Name() string { return b.inner.Name() }

func (b *BreakerProvider) Geocode(ctx context.Context, address string) (Coordinates, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Geocode(ctx, address)
	})
	if err != nil {
		return Coordinates{}, err
	}
	return res.(Coordinates), nil
}
