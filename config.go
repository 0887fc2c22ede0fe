package engine

import (
	"time"

	"github.com/eventuary/pipeline/config"
	embedpkg "github.com/eventuary/pipeline/embed"
	"github.com/eventuary/pipeline/enrich/geocode"
	"github.com/eventuary/pipeline/enrich/images"
	"github.com/eventuary/pipeline/insights"
	"github.com/eventuary/pipeline/llm"
	"github.com/eventuary/pipeline/models"
	telemetrylogging "github.com/eventuary/pipeline/telemetry/logging"
	telemetrymetrics "github.com/eventuary/pipeline/telemetry/metrics"
	telemetrypolicy "github.com/eventuary/pipeline/telemetry/policy"
	telemetrytracing "github.com/eventuary/pipeline/telemetry/tracing"
)

// Config is the construction-time wiring for an Engine. It holds no crawl
// policy of its own -- that lives in config.File / config.Resolved. Config
// only carries the dependencies Resolve can't construct for itself:
// injected clients, optional alerting/metrics providers, and the seed set
// of sources to register.
type Config struct {
	// ConfigFile is the layered tuning file (global/environment/tier/source
	// sections); an empty File resolves entirely to package defaults.
	ConfigFile config.File
	// Environment selects ConfigFile.Environments on resolve.
	Environment string
	// Sources seeds the engine's source registry at construction.
	Sources []models.Source

	// LLMClient overrides the extraction-fallback/healing language model
	// client. Nil means the AI waterfall rung and self-healing are both
	// disabled unless the resolved LLM section is enabled and names an
	// Anthropic API key.
	LLMClient llm.Client
	// GeocodeProviders are tried in round-robin order by the hybrid
	// geocoder, after HTML-embedded coordinates and the fuzzy cache.
	GeocodeProviders []geocode.Provider
	// Embedder overrides the event-embedding client; nil falls back to an
	// HTTP embedder built from the resolved Embedder section, or a no-op
	// embedder if that section is empty.
	Embedder embedpkg.Embedder
	// Alerter receives error/fatal source-health notifications; nil falls
	// back to a Slack alerter built from the resolved Alerting section, or
	// silence if that section is empty.
	Alerter insights.Alerter
	// BlobStore backs rehosted event images; nil uses an in-memory store.
	BlobStore images.BlobStore

	// MetricsProvider backs every NewCounter/NewGauge/NewHistogram call
	// the pipeline makes; nil uses a no-op provider.
	MetricsProvider telemetrymetrics.Provider
	// Tracer is held by the engine; the stage handlers open no spans with
	// it. Nil uses a no-op tracer.
	Tracer telemetrytracing.Tracer
	// Logger is the structured logger correlated spans/events attach to;
	// nil builds one from slog.Default().
	Logger telemetrylogging.Logger
	// TelemetryPolicy seeds the mutable health/tracing/event-bus policy;
	// nil uses telemetrypolicy.Default().
	TelemetryPolicy *telemetrypolicy.TelemetryPolicy

	// WorkersPerStage sets how many concurrent claimers run per queue
	// stage; zero defaults to 2.
	WorkersPerStage int
	// ReapInterval is how often stalled (claimed-but-abandoned) queue
	// items are returned to their stage; zero defaults to 30s.
	ReapInterval time.Duration
}

// DefaultConfig returns a Config with every optional dependency left nil,
// suitable for an in-memory, no-external-providers run (the configuration
// a test harness or a first local run would use).
func DefaultConfig() Config {
	return Config{
		Environment:     "production",
		WorkersPerStage: 2,
		ReapInterval:    30 * time.Second,
	}
}

type noopAlerter struct{}

func (noopAlerter) Alert(severity, message string) error { return nil }
