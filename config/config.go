// Package config resolves the pipeline's layered configuration: a global
// baseline, optional environment overrides, per-tier defaults, per-source
// overrides, and finally per-run overrides supplied by a trigger request.
// Resolution merges section-by-section, later layers winning on any
// non-nil section.
package config

import (
	"time"

	"github.com/eventuary/pipeline/coordinator"
	"github.com/eventuary/pipeline/fetch"
	"github.com/eventuary/pipeline/insights"
	"github.com/eventuary/pipeline/models"
	"github.com/eventuary/pipeline/queue"
	"github.com/eventuary/pipeline/ratelimit"
)

// LLM configures the Anthropic-backed extraction fallback and self-healing
// recipe generation.
type LLM struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Enabled bool   `yaml:"enabled"`
}

// Embedder configures the event-embedding HTTP endpoint.
type Embedder struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Dims     int    `yaml:"dims"`
}

// Geocode configures the fuzzy cache and provider round-robin.
type Geocode struct {
	CacheCapacity int           `yaml:"cache_capacity"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	ProviderKeys  map[string]string `yaml:"provider_keys"`
}

// Alerting configures the optional Slack webhook.
type Alerting struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	SlackChannel    string `yaml:"slack_channel"`
}

// Section is the set of tunables that can be overridden at any layer. Zero
// fields contribute nothing during merge -- see Resolve.
type Section struct {
	Fetch       *fetch.Policy        `yaml:"fetch,omitempty"`
	RateLimit   *ratelimit.Config    `yaml:"rate_limit,omitempty"`
	Queue       *queue.Config        `yaml:"queue,omitempty"`
	Insights    *insights.Config     `yaml:"insights,omitempty"`
	Coordinator *coordinator.Config  `yaml:"coordinator,omitempty"`
	Embedder    *Embedder            `yaml:"embedder,omitempty"`
	Geocode     *Geocode             `yaml:"geocode,omitempty"`
	LLM         *LLM                 `yaml:"llm,omitempty"`
	Alerting    *Alerting            `yaml:"alerting,omitempty"`
}

// File is the on-disk shape loaded by Load: a global baseline plus the
// override layers keyed by environment name, tier, and source ID.
type File struct {
	Global       Section            `yaml:"global"`
	Environments map[string]Section `yaml:"environments,omitempty"`
	Tiers        map[models.SourceTier]Section `yaml:"tiers,omitempty"`
	Sources      map[string]Section `yaml:"sources,omitempty"`
}

// Resolved is the fully merged, concrete configuration for one source at
// run time.
type Resolved struct {
	Fetch       fetch.Policy
	RateLimit   ratelimit.Config
	Queue       queue.Config
	Insights    insights.Config
	Coordinator coordinator.Config
	Embedder    Embedder
	Geocode     Geocode
	LLM         LLM
	Alerting    Alerting
}

// Resolve merges global -> environment -> tier -> source -> run, later
// layers winning section-by-section (see mergeSection). A zero-value run
// override is the common case (triggers rarely override the schedule).
func Resolve(f File, environment string, source models.Source, run Section) Resolved {
	var out Section
	mergeSection(&out, f.Global)
	if env, ok := f.Environments[environment]; ok {
		mergeSection(&out, env)
	}
	if tier, ok := f.Tiers[source.Tier]; ok {
		mergeSection(&out, tier)
	}
	if src, ok := f.Sources[source.ID]; ok {
		mergeSection(&out, src)
	}
	mergeSection(&out, run)

	r := Resolved{}
	if out.Fetch != nil {
		r.Fetch = *out.Fetch
	} else {
		r.Fetch = fetch.DefaultPolicy()
	}
	if out.RateLimit != nil {
		r.RateLimit = *out.RateLimit
	} else {
		r.RateLimit = ratelimit.DefaultConfig()
	}
	if out.Queue != nil {
		r.Queue = *out.Queue
	} else {
		r.Queue = queue.DefaultConfig()
	}
	if out.Insights != nil {
		r.Insights = *out.Insights
	} else {
		r.Insights = insights.DefaultConfig()
	}
	if out.Coordinator != nil {
		r.Coordinator = *out.Coordinator
	} else {
		r.Coordinator = coordinator.DefaultConfig()
	}
	if out.Embedder != nil {
		r.Embedder = *out.Embedder
	}
	if out.Geocode != nil {
		r.Geocode = *out.Geocode
	}
	if out.LLM != nil {
		r.LLM = *out.LLM
	}
	if out.Alerting != nil {
		r.Alerting = *out.Alerting
	}
	return r
}

// mergeSection overlays any non-nil pointer field of src onto dst. Whole
// sub-configs are replaced as a unit rather than merged field-by-field
// within the section, keeping the merge rule simple and auditable.
func mergeSection(dst *Section, src Section) {
	if src.Fetch != nil {
		dst.Fetch = src.Fetch
	}
	if src.RateLimit != nil {
		dst.RateLimit = src.RateLimit
	}
	if src.Queue != nil {
		dst.Queue = src.Queue
	}
	if src.Insights != nil {
		dst.Insights = src.Insights
	}
	if src.Coordinator != nil {
		dst.Coordinator = src.Coordinator
	}
	if src.Embedder != nil {
		dst.Embedder = src.Embedder
	}
	if src.Geocode != nil {
		dst.Geocode = src.Geocode
	}
	if src.LLM != nil {
		dst.LLM = src.LLM
	}
	if src.Alerting != nil {
		dst.Alerting = src.Alerting
	}
}
