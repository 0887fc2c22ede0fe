// Package engine wires every pipeline package -- queue, fetch, extract,
// normalize, enrich, dedup, embed, store, insights, heal, coordinator --
// into one running ingestion pipeline: the facade a caller constructs once
// and drives with Start/Stop, never touching the stage packages directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/eventuary/pipeline/config"
	"github.com/eventuary/pipeline/coordinator"
	embedpkg "github.com/eventuary/pipeline/embed"
	"github.com/eventuary/pipeline/enrich/geocode"
	"github.com/eventuary/pipeline/enrich/images"
	"github.com/eventuary/pipeline/extract"
	"github.com/eventuary/pipeline/fetch"
	"github.com/eventuary/pipeline/heal"
	"github.com/eventuary/pipeline/insights"
	"github.com/eventuary/pipeline/llm"
	"github.com/eventuary/pipeline/models"
	"github.com/eventuary/pipeline/normalize"
	"github.com/eventuary/pipeline/queue"
	"github.com/eventuary/pipeline/ratelimit"
	"github.com/eventuary/pipeline/recipe"
	"github.com/eventuary/pipeline/store"
	telemetryevents "github.com/eventuary/pipeline/telemetry/events"
	telemetryhealth "github.com/eventuary/pipeline/telemetry/health"
	telemetrylogging "github.com/eventuary/pipeline/telemetry/logging"
	telemetrymetrics "github.com/eventuary/pipeline/telemetry/metrics"
	telemetrypolicy "github.com/eventuary/pipeline/telemetry/policy"
	telemetrytracing "github.com/eventuary/pipeline/telemetry/tracing"
)

// Engine is the running ingestion pipeline: one shared Queue, one
// Coordinator minting discover-stage work, and a pool of stage workers
// claiming and advancing items until they reach StageDone or StageFailed.
type Engine struct {
	resolved config.Resolved

	queue       *queue.Queue
	coordinator *coordinator.Coordinator
	sources     *sourceRegistry
	tracker     *insights.Tracker
	recipes     *recipe.Store
	healer      *heal.Healer
	store       store.EventStore
	embedder    embedpkg.Embedder
	normalizer  *normalize.Normalizer
	geocoder    *geocode.Geocoder
	images      *images.Pipeline
	fetcher     *fetch.FailoverFetcher
	pagination  *fetch.CollyFetcher
	llmClient   llm.Client

	workersPerStage int
	reapInterval    time.Duration

	health  *telemetryhealth.Evaluator
	tracer  telemetrytracing.Tracer
	metrics telemetrymetrics.Provider
	logger  telemetrylogging.Logger
	bus     telemetryevents.Bus
	policy  policyBox

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	running bool
}

// policyBox guards the mutable telemetry policy behind a mutex; a plain
// struct field would race between UpdateTelemetryPolicy and probe reads.
type policyBox struct {
	mu    sync.RWMutex
	value telemetrypolicy.TelemetryPolicy
}

func (b *policyBox) get() telemetrypolicy.TelemetryPolicy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value
}

func (b *policyBox) set(p telemetrypolicy.TelemetryPolicy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = p.Normalize()
}

// New constructs an Engine from cfg, resolving the layered configuration
// file and wiring every stage package's dependencies. It does not start any
// background work; call Start for that.
func New(cfg Config) (*Engine, error) {
	if cfg.WorkersPerStage <= 0 {
		cfg.WorkersPerStage = 2
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}

	resolved := config.Resolve(cfg.ConfigFile, cfg.Environment, models.Source{}, config.Section{})

	logger := cfg.Logger
	if logger == nil {
		logger = telemetrylogging.New(nil)
	}
	tpolicy := telemetrypolicy.Default()
	if cfg.TelemetryPolicy != nil {
		tpolicy = *cfg.TelemetryPolicy
	}
	metricsProvider := cfg.MetricsProvider
	if metricsProvider == nil {
		metricsProvider = telemetrymetrics.NewNoopProvider()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetrytracing.NewTracer(false)
	}

	rateLimiter := ratelimit.New(resolved.RateLimit)
	static, err := fetch.NewCollyFetcher(resolved.Fetch)
	if err != nil {
		return nil, fmt.Errorf("engine: build static fetcher: %w", err)
	}
	dynamic := fetch.NewHTTPDynamicFetcher(resolved.Fetch)
	fetcher := fetch.New(static, dynamic, rateLimiter)

	q := queue.New(resolved.Queue)

	alerter := cfg.Alerter
	if alerter == nil {
		if resolved.Alerting.SlackWebhookURL != "" {
			alerter = insights.NewSlackAlerter(resolved.Alerting.SlackWebhookURL, resolved.Alerting.SlackChannel)
		} else {
			alerter = noopAlerter{}
		}
	}
	tracker := insights.New(resolved.Insights, alerter)

	recipes := recipe.NewStore()

	llmClient := cfg.LLMClient
	if llmClient == nil && resolved.LLM.Enabled && resolved.LLM.APIKey != "" {
		llmClient = llm.NewBreakerClient(llm.NewAnthropicClient(resolved.LLM.APIKey, anthropic.Model(resolved.LLM.Model)))
	}
	var healer *heal.Healer
	if llmClient != nil {
		healer = heal.New(llmClient, recipes)
	}

	geoLimiter := ratelimit.New(resolved.RateLimit)
	geoCache := geocode.NewCache(resolved.Geocode.CacheCapacity, resolved.Geocode.CacheTTL)
	if resolved.Geocode.CacheCapacity <= 0 {
		geoCache = geocode.NewCache(1000, resolved.Geocode.CacheTTL)
	}
	providers := cfg.GeocodeProviders
	geocoder := geocode.NewGeocoder(geoCache, geoLimiter, providers...)

	var imgPipeline *images.Pipeline
	blobStore := cfg.BlobStore
	if blobStore == nil {
		blobStore = images.NewMemoryBlobStore()
	}
	imgPipeline = images.NewPipeline(images.NewDownloader(), images.NewRehoster("https://cdn.eventuary.example/events", blobStore))

	embedder := cfg.Embedder
	if embedder == nil {
		if resolved.Embedder.Endpoint != "" {
			embedder = embedpkg.NewHTTPEmbedder(resolved.Embedder.Endpoint, resolved.Embedder.APIKey)
		} else {
			embedder = noopEmbedder{}
		}
	}

	sources := newSourceRegistry(cfg.Sources)
	coord := coordinator.New(resolved.Coordinator, q, sources, tracker)

	e := &Engine{
		resolved:        resolved,
		queue:           q,
		coordinator:     coord,
		sources:         sources,
		tracker:         tracker,
		recipes:         recipes,
		healer:          healer,
		store:           store.NewMemoryStore(),
		embedder:        embedder,
		normalizer:      normalize.New(),
		geocoder:        geocoder,
		images:          imgPipeline,
		fetcher:         fetcher,
		pagination:      static,
		llmClient:       llmClient,
		workersPerStage: cfg.WorkersPerStage,
		reapInterval:    cfg.ReapInterval,
		tracer:          tracer,
		metrics:         metricsProvider,
		logger:          logger,
		bus:             telemetryevents.NewBus(metricsProvider),
	}
	e.policy.set(tpolicy)
	e.health = telemetryhealth.NewEvaluator(tpolicy.Health.ProbeTTL, telemetryhealth.ProbeFunc(e.queueProbe), telemetryhealth.ProbeFunc(e.storeProbe))
	return e, nil
}

type noopEmbedder struct{}

func (noopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedpkg.Pad(nil), nil
}

// Start launches the coordinator's scheduling loop, the stage worker pool,
// and the stalled-item reaper. It returns immediately; call Stop (or cancel
// ctx) to shut everything down.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("engine: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	stages := []struct {
		stage  models.Stage
		handle queue.Handler
	}{
		{models.StageDiscover, e.handleDiscover},
		{models.StageFetch, e.handleFetch},
		{models.StageExtract, e.handleExtract},
		{models.StageNormalize, e.handleNormalize},
		{models.StageEnrich, e.handleEnrich},
		{models.StageGeoIncomplete, e.handleGeoRetry},
		{models.StageDedup, e.handleDedup},
		{models.StageEmbed, e.handleEmbed},
		{models.StagePersist, e.handlePersist},
	}
	for _, s := range stages {
		for i := 0; i < e.workersPerStage; i++ {
			w := &queue.Worker{
				Queue:     e.queue,
				Stage:     s.stage,
				ID:        fmt.Sprintf("%s-%d", s.stage, i),
				Handle:    s.handle,
				Retry:     queue.DefaultRetryPolicy(),
				BatchSize: 10,
				Wake:      e.coordinator.Signal().Listen(),
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				w.Run(runCtx)
			}()
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.schedulingLoop(runCtx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.reapLoop(runCtx)
	}()

	return nil
}

// Stop cancels every worker and the scheduling/reap loops, then waits for
// them to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.running = false
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// schedulingLoop runs the coordinator's Tick on its configured interval,
// stamping each minted source's LastCrawledAt so the next tick's staleness
// window holds. Run directly rather than via Coordinator.Start so the
// engine can touch the registry after every mint.
func (e *Engine) schedulingLoop(ctx context.Context) {
	interval := e.resolved.Coordinator.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			for _, item := range e.coordinator.Tick() {
				e.sources.Touch(item.SourceID, now)
			}
		}
	}
}

func (e *Engine) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(e.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.queue.ReapStalled()
		}
	}
}

// RegisterSource adds or replaces a source the coordinator can mint work
// for.
func (e *Engine) RegisterSource(src models.Source) {
	e.sources.Register(src)
}

// Reinstate clears a source's manual quarantine, both on the registry and
// in source-health tracking.
func (e *Engine) Reinstate(sourceID string) {
	e.sources.Reinstate(sourceID)
	e.tracker.Reinstate(sourceID)
}

// ---- stage handlers -------------------------------------------------

// handleDiscover validates a freshly minted item's URL against its
// source's domain allowlist before the pipeline spends a fetch attempt on
// it.
func (e *Engine) handleDiscover(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
	src, ok := e.sources.Get(item.SourceID)
	if !ok {
		return models.StageFailed, nil
	}
	u, err := url.Parse(item.URL)
	if err != nil || !fetch.IsAllowedURL(u, src.AllowedDomains) {
		return models.StageFailed, nil
	}
	return models.StageFetch, nil
}

func (e *Engine) handleFetch(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
	useProxy := false
	if src, ok := e.sources.Get(item.SourceID); ok && src.FetchStrategy == "dynamic" {
		useProxy = true
	}
	start := time.Now()
	res, err := e.fetcher.Fetch(ctx, item.SourceID, item.URL, useProxy)
	if err != nil {
		return item.Stage, err
	}
	if res.StatusCode == http.StatusNotFound {
		return item.Stage, fmt.Errorf("fetch: 404 for %s: %w", item.URL, models.ErrPermanentFailure)
	}
	if ct := res.Headers.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "xml") {
		return item.Stage, fmt.Errorf("fetch: non-HTML content-type %q for %s: %w", ct, item.URL, models.ErrPermanentFailure)
	}
	item.RawHTML = res.HTML
	item.FetchDuration = time.Since(start)
	return models.StageExtract, nil
}

// handleExtract runs the extraction waterfall and records the per-source
// run diagnostics the insights tracker's `auto` strategy selector and
// self-healing trigger both read. A listing page can yield more than one
// event card; this item carries the first and a sibling item is enqueued
// at StageNormalize for every remaining card so each gets its own walk
// through normalize/enrich/dedup.
func (e *Engine) handleExtract(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
	pageURL, err := url.Parse(item.URL)
	if err != nil {
		return models.StageFailed, nil
	}
	wf := e.waterfallFor(item.SourceID)
	parseStart := time.Now()
	cards, attempts := wf.Run(item.RawHTML, pageURL)
	parseDuration := time.Since(parseStart)

	counts := make(map[string]int, len(attempts))
	for _, a := range attempts {
		if a.Ok {
			counts[a.Strategy]++
		}
	}

	if len(cards) == 0 {
		e.tracker.RecordFailure(item.SourceID)
		if e.tracker.ShouldHeal(item.SourceID) {
			sample := item.RawHTML
			go e.attemptHeal(item.SourceID, sample)
		}
		return models.StageFailed, nil
	}

	item.RawCard = &cards[0]
	for i := 1; i < len(cards); i++ {
		sibling := &models.QueueItem{
			SourceID: item.SourceID,
			URL:      item.URL,
			Stage:    models.StageNormalize,
			RawHTML:  item.RawHTML,
			RawCard:  &cards[i],
			Priority: item.Priority,
		}
		e.queue.Enqueue(sibling)
	}
	e.tracker.RecordRun(insights.RunInsight{
		SourceID:        item.SourceID,
		CMSLabel:        string(extract.Detect(item.RawHTML)),
		WinningStrategy: cards[0].Strategy,
		StrategyCounts:  counts,
		FetchDuration:   item.FetchDuration,
		ParseDuration:   parseDuration,
		HTMLSizeBytes:   len(item.RawHTML),
	})
	e.enqueueNextPage(item, pageURL)
	return models.StageNormalize, nil
}

// enqueueNextPage follows a listing page's pagination link, minting a
// fetch-stage sibling for the next page when one exists, within the
// source's depth bound and domain allowlist. The source's root URL is
// depth zero and the default bound allows a single follow.
func (e *Engine) enqueueNextPage(item *models.QueueItem, pageURL *url.URL) {
	src, ok := e.sources.Get(item.SourceID)
	if !ok {
		return
	}
	maxDepth := src.MaxPageDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}
	if item.PageDepth >= maxDepth {
		return
	}
	next, found := e.pagination.DiscoverPagination([]byte(item.RawHTML), pageURL)
	if !found || !fetch.IsAllowedURL(next, src.AllowedDomains) {
		return
	}
	e.queue.Enqueue(&models.QueueItem{
		SourceID:  item.SourceID,
		URL:       next.String(),
		Stage:     models.StageFetch,
		Priority:  item.Priority,
		PageDepth: item.PageDepth + 1,
	})
}

func (e *Engine) handleNormalize(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
	res, ok := e.normalizer.Normalize(item.RawCard, item.SourceID)
	if !ok {
		e.tracker.RecordFailure(item.SourceID)
		return models.StageFailed, nil
	}
	res.Event.ID = uuid.NewString()
	if healedAt, ok := e.tracker.HealedAt(item.SourceID); ok {
		res.Event.LastHealedAt = healedAt
	}
	item.Candidate = res.Event
	return models.StageEnrich, nil
}

// handleEnrich resolves coordinates (HTML-embedded, then fuzzy cache, then
// provider round-robin) and best-effort rehosts event images. A geocode
// provider exhaustion is not a failure: the item advances laterally to
// StageGeoIncomplete so a later sweep can retry without re-fetching.
func (e *Engine) handleEnrich(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
	cand := item.Candidate
	coords, by, err := e.geocoder.Resolve(ctx, item.RawHTML, e.geoQueryFor(item.SourceID, cand))
	if err != nil {
		if errors.Is(err, models.ErrGeocodeExhausted) {
			if item.MaxAttempts < 8 {
				item.MaxAttempts = 8
			}
			return models.StageGeoIncomplete, nil
		}
		return item.Stage, err
	}
	cand.Latitude, cand.Longitude, cand.GeocodedBy = coords.Lat, coords.Lng, by

	if e.images != nil && len(cand.ImageURLs) > 0 {
		if discovered, derr := images.Discover(cand.SourceURL, cand.ImageURLs); derr == nil && len(discovered) > 0 {
			processed := e.images.ProcessAll(ctx, discovered)
			urls := make([]string, 0, len(processed))
			for _, img := range processed {
				if img.RehostedURL != "" {
					urls = append(urls, img.RehostedURL)
				}
			}
			if len(urls) > 0 {
				cand.ImageURLs = urls
				cand.ImageURL = urls[0]
			}
		}
	}
	return models.StageDedup, nil
}

// geoQueryFor assembles the geocoder's query from the candidate event's
// own venue/address and the source's declared city and country.
func (e *Engine) geoQueryFor(sourceID string, cand *models.Event) geocode.Query {
	q := geocode.Query{Venue: cand.VenueName, Address: cand.Address}
	if src, ok := e.sources.Get(sourceID); ok {
		q.City = src.City
		q.Country = src.Country
	}
	return q
}

// handleGeoRetry re-runs geocode resolution for items parked at
// StageGeoIncomplete. It never re-fetches the page. After enough attempts
// it gives up and lets the event persist without coordinates rather than
// holding it indefinitely.
func (e *Engine) handleGeoRetry(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
	cand := item.Candidate
	coords, by, err := e.geocoder.Resolve(ctx, item.RawHTML, e.geoQueryFor(item.SourceID, cand))
	if err == nil {
		cand.Latitude, cand.Longitude, cand.GeocodedBy = coords.Lat, coords.Lng, by
		return models.StageDedup, nil
	}
	if item.Attempts+1 >= item.MaxAttempts-1 {
		return models.StageDedup, nil
	}
	return item.Stage, err
}

// handleDedup resolves identity against the store: a fresh fingerprint and
// content hash inserts outright, a collision merges into the existing
// golden record. MemoryStore's dedup.Index stores the winning *models.Event
// pointer directly (no copy) on a fresh insert, so item.Candidate and the
// stored record are the same object from here on; StageEmbed's mutation of
// Candidate.Embedding is visible to every later reader without a second
// write.
func (e *Engine) handleDedup(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
	cand := item.Candidate
	result, stored, needsReembed, err := e.store.Insert(cand)
	if err != nil {
		return models.StageFailed, nil
	}
	switch result {
	case models.InsertResultInserted:
		item.Candidate = stored
		return models.StageEmbed, nil
	default: // Merged, DuplicateRace
		item.Candidate = stored
		item.DuplicateOf = stored.ID
		e.dispatchEvent(telemetryevents.Event{
			Category: telemetryevents.CategoryPipeline,
			Type:     "event_merged",
			Labels:   map[string]string{"source_id": item.SourceID, "result": result.String()},
		})
		if needsReembed {
			return models.StageEmbed, nil
		}
		e.tracker.RecordSuccess(item.SourceID)
		return models.StageDone, nil
	}
}

func (e *Engine) handleEmbed(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
	cand := item.Candidate
	text := embedpkg.ComposeText(cand)
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.logger.ErrorCtx(ctx, "embed request failed, persisting without a vector", "source_id", item.SourceID, "error", err.Error())
	} else {
		cand.Embedding = embedpkg.Pad(vec)
	}
	return models.StagePersist, nil
}

func (e *Engine) handlePersist(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
	if err := e.store.Flush(); err != nil {
		return item.Stage, err
	}
	e.tracker.RecordSuccess(item.SourceID)
	e.dispatchEvent(telemetryevents.Event{
		Category: telemetryevents.CategoryPipeline,
		Type:     "event_persisted",
		Labels:   map[string]string{"source_id": item.SourceID},
	})
	return models.StageDone, nil
}

// attemptHeal asks the self-healing engine to regenerate a source's
// extraction recipe after it crosses the consecutive-failure heal
// threshold. It always clears the tracker's in-flight marker when done, win
// or lose, so a continuing failure streak can try again later.
func (e *Engine) attemptHeal(sourceID, sampleHTML string) {
	defer e.tracker.ResetHealAttempt(sourceID)
	if e.healer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := e.healer.Heal(ctx, sourceID, sampleHTML); err == nil {
		e.tracker.MarkHealed(sourceID)
	}
}

// waterfallFor builds the extraction ladder for sourceID: cached recipe
// first, then structured-data and heuristic strategies in trust order,
// with the AI fallback last. Strategies are cheap value types and the
// recipe strategy is source-specific, so the ladder is assembled fresh per
// call rather than cached.
func (e *Engine) waterfallFor(sourceID string) *extract.Waterfall {
	return extract.New(
		&extract.RecipeStrategy{SourceID: sourceID, Recipes: e.recipes},
		extract.JSONLDStrategy{},
		extract.MicrodataOGStrategy{},
		extract.HydrationStrategy{},
		extract.FeedStrategy{},
		extract.DOMSelectorStrategy{},
		extract.AIStrategy{Client: e.llmClient},
	)
}

// ---- telemetry surface -------------------------------------------------

func (e *Engine) queueProbe(ctx context.Context) telemetryhealth.ProbeResult {
	p := e.policy.get()
	depths := e.queue.Depths()
	failed := depths[models.StageFailed]
	total := 0
	for _, n := range depths {
		total += n
	}
	if total < p.Health.QueueMinSamples {
		return telemetryhealth.Healthy("queue")
	}
	if failed >= p.Health.QueueUnhealthyBacklog {
		return telemetryhealth.Unhealthy("queue", "failed backlog exceeds threshold")
	}
	if failed >= p.Health.QueueDegradedBacklog {
		return telemetryhealth.Degraded("queue", "failed backlog elevated")
	}
	ratio := float64(failed) / float64(total)
	if ratio >= p.Health.QueueUnhealthyRatio {
		return telemetryhealth.Unhealthy("queue", "failure ratio exceeds threshold")
	}
	if ratio >= p.Health.QueueDegradedRatio {
		return telemetryhealth.Degraded("queue", "failure ratio elevated")
	}
	return telemetryhealth.Healthy("queue")
}

func (e *Engine) storeProbe(ctx context.Context) telemetryhealth.ProbeResult {
	return telemetryhealth.Healthy(e.store.Name())
}

// HealthSnapshot evaluates every registered probe (cached within the
// configured TTL) and returns the rolled-up result. This is the method the
// HTTP health/readiness handlers (adapters/telemetryhttp) call.
func (e *Engine) HealthSnapshot(ctx context.Context) telemetryhealth.Snapshot {
	return e.health.Evaluate(ctx)
}

// Metrics returns the engine's metrics provider, for a caller wiring up
// adapters/telemetryhttp.NewMetricsHandler.
func (e *Engine) Metrics() telemetrymetrics.Provider { return e.metrics }

// MetricsHandler exposes the metrics provider's scrape endpoint directly
// when it supports one (the Prometheus provider does); otherwise it
// returns a handler that reports the endpoint is unavailable.
func (e *Engine) MetricsHandler() http.Handler {
	if p, ok := e.metrics.(interface{ MetricsHandler() http.Handler }); ok {
		return p.MetricsHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics handler unavailable", http.StatusNotImplemented)
	})
}

// Policy returns the current telemetry policy.
func (e *Engine) Policy() telemetrypolicy.TelemetryPolicy { return e.policy.get() }

// UpdateTelemetryPolicy swaps the mutable health/tracing/event-bus policy.
func (e *Engine) UpdateTelemetryPolicy(p telemetrypolicy.TelemetryPolicy) {
	e.policy.set(p)
	e.health.ForceInvalidate()
}

// Events returns the engine's telemetry event bus.
func (e *Engine) Events() telemetryevents.Bus { return e.bus }

// RegisterEventObserver subscribes to the telemetry event bus with the
// configured buffer size.
func (e *Engine) RegisterEventObserver(buffer int) (telemetryevents.Subscription, error) {
	return e.bus.Subscribe(buffer)
}

func (e *Engine) dispatchEvent(ev telemetryevents.Event) {
	_ = e.bus.Publish(ev)
}

// Snapshot is a point-in-time view of pipeline backlog and dedup state, the
// shape a health dashboard or admin endpoint would poll.
type Snapshot struct {
	QueueDepths map[models.Stage]int
	EventsStored int
}

// Snapshot returns the current queue depths and stored event count.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{QueueDepths: e.queue.Depths()}
	if ms, ok := e.store.(interface{ Len() int }); ok {
		s.EventsStored = ms.Len()
	}
	return s
}
