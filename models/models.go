// Package models holds the domain types shared across every stage of the
// ingestion pipeline: sources to crawl, items moving through the queue, and
// the event records that come out the other end.
package models

import (
	"errors"
	"time"
)

// Stage identifies where a QueueItem currently sits in the pipeline.
// Stages are monotone: an item only ever advances forward, it never
// regresses to an earlier stage (a failed item is retried in place or
// parked, never pushed backwards).
type Stage string

const (
	StageDiscover  Stage = "discover"
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageNormalize Stage = "normalize"
	StageEnrich    Stage = "enrich"
	StageDedup     Stage = "dedup"
	StageEmbed     Stage = "embed"
	StagePersist   Stage = "persist"
	StageDone      Stage = "done"
	// StageGeoIncomplete is a lateral stage from enrich: the hybrid
	// geocoder exhausted every provider without finding coordinates.
	// Recoverable by a geocoder retry sweep without re-fetching the page.
	StageGeoIncomplete Stage = "geo_incomplete"
	StageFailed        Stage = "failed"
)

// SourceTier controls scheduling cadence and trust defaults for a Source.
type SourceTier string

const (
	TierFlagship SourceTier = "flagship"
	TierStandard SourceTier = "standard"
	TierLongTail SourceTier = "long_tail"
)

// Source is a city, venue, or aggregator site registered for crawling.
type Source struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	StartURL        string     `json:"start_url"`
	AllowedDomains  []string   `json:"allowed_domains"`
	Tier            SourceTier `json:"tier"`
	// City and Country seed the geocoder's fuzzy-cache query variants for
	// every event this source produces.
	City            string     `json:"city,omitempty"`
	Country         string     `json:"country,omitempty"`
	// FetchStrategy is "auto" (empty), "static", or "dynamic". "dynamic"
	// skips the static-first failover ladder entirely, for sources known in
	// advance to render nothing without a browser.
	FetchStrategy   string     `json:"fetch_strategy,omitempty"`
	// MaxPageDepth bounds pagination recursion for this source's listing
	// pages; zero means the package default of one follow.
	MaxPageDepth    int        `json:"max_page_depth,omitempty"`
	RecipeName      string     `json:"recipe_name,omitempty"`
	Priority        int        `json:"priority"`
	Enabled         bool       `json:"enabled"`
	Quarantined     bool       `json:"quarantined"`
	CreatedAt       time.Time  `json:"created_at"`
	LastCrawledAt   time.Time  `json:"last_crawled_at,omitempty"`
	ScheduleWindow  string     `json:"schedule_window,omitempty"` // cron-like expression, empty = tier default
}

// QueueItem is a unit of work moving through the staged pipeline. Each item
// carries the payload relevant to its current stage; earlier-stage payloads
// are retained so later stages (and failure diagnostics) can see the chain.
type QueueItem struct {
	ID                 string    `json:"id"`
	SourceID            string    `json:"source_id"`
	Stage               Stage     `json:"stage"`
	URL                 string    `json:"url"`
	Priority            int       `json:"priority"`
	Attempts            int       `json:"attempts"`
	MaxAttempts         int       `json:"max_attempts"`
	CreatedAt           time.Time `json:"created_at"`
	NotBefore           time.Time `json:"not_before,omitzero"`
	ClaimedBy           string    `json:"claimed_by,omitempty"`
	ProcessingStartedAt time.Time `json:"processing_started_at,omitzero"`
	// LastClaimedAt persists across claims (unlike ProcessingStartedAt, which
	// clears on advance/fail): it is the claim-ordering tie-break key, oldest
	// first, falling back to CreatedAt for an item that was never claimed.
	LastClaimedAt time.Time `json:"last_claimed_at,omitzero"`
	LastError     string    `json:"last_error,omitempty"`

	// PageDepth counts how many pagination follows produced this item; a
	// source's root URL is depth zero. Bounded by Source.MaxPageDepth.
	PageDepth int `json:"page_depth,omitempty"`
	// FetchDuration is how long the fetch stage spent retrieving RawHTML,
	// carried forward so the extract stage's run insight can report it.
	FetchDuration time.Duration `json:"-"`

	RawHTML   string         `json:"raw_html,omitempty"`
	RawCard   *RawEventCard  `json:"raw_card,omitempty"`
	Candidate *Event         `json:"candidate,omitempty"`

	// DuplicateOf is set when the dedup stage resolves this item's
	// candidate against an existing golden record instead of inserting a
	// new one: the golden record's Event.ID.
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// RawEventCard is the strategy-agnostic output of the extraction waterfall:
// whichever strategy wins, it normalizes its findings into this shape before
// handing off to normalize/.
type RawEventCard struct {
	Title        string            `json:"title"`
	DescriptionHTML string         `json:"description_html,omitempty"`
	DateText     string            `json:"date_text,omitempty"`
	TimeText     string            `json:"time_text,omitempty"`
	VenueName    string            `json:"venue_name,omitempty"`
	Address      string            `json:"address,omitempty"`
	ImageURLs    []string          `json:"image_urls,omitempty"`
	CategoryText string            `json:"category_text,omitempty"`
	PriceText    string            `json:"price_text,omitempty"`
	SourceURL    string            `json:"source_url"`
	Strategy     string            `json:"strategy"`
	TrustLevel   int               `json:"trust_level"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Price bundles a listing's raw price text with the numeric bounds and
// currency parsed out of it, when parseable. A free event or an
// unparseable price string still carries Raw; Min/Max/Currency stay zero.
type Price struct {
	Raw      string  `json:"raw,omitempty"`
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

// Event is a fully normalized, enriched event record ready for dedup and
// persistence.
type Event struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`

	EventDate   time.Time `json:"event_date"`
	// EventTime is the wall-clock time of day as "HH:MM", or "TBD" when no
	// strategy or time-extraction ladder ever recognized one. EventDate
	// itself stays date-only (midnight UTC) in that case -- no fabricated
	// noon or other placeholder hour.
	EventTime string `json:"event_time"`
	TimeKnown bool   `json:"time_known"`

	VenueName   string  `json:"venue_name,omitempty"`
	Address     string  `json:"address,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	GeocodedBy  string  `json:"geocoded_by,omitempty"`

	ImageURL    string   `json:"image_url,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	PersonaTags []string `json:"persona_tags,omitempty"`

	Price       Price  `json:"price,omitempty"`
	Organizer   string `json:"organizer,omitempty"`
	Performer   string `json:"performer,omitempty"`
	TicketsURL  string `json:"tickets_url,omitempty"`

	SourceURL string `json:"source_url"`
	// ContentHash identifies an event across sources: sha256(title|event_date).
	ContentHash string `json:"content_hash"`
	// Fingerprint identifies an event within a single source:
	// sha256(title|event_date|source_id). Re-runs of the same source
	// collide on this even when ContentHash would too, but ContentHash
	// alone is what lets two different sources' listings of the same
	// show merge into one golden record.
	Fingerprint  string    `json:"event_fingerprint"`
	QualityScore float64   `json:"quality_score"`
	Embedding    []float32 `json:"embedding,omitempty"`

	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastHealedAt time.Time `json:"last_healed_at,omitzero"`
}

// InsertResult enumerates how a store write resolved against any existing
// record with the same fingerprint. Callers branch on this explicitly rather
// than inferring outcome from error type.
type InsertResult int

const (
	InsertResultInserted InsertResult = iota
	InsertResultMerged
	InsertResultDuplicateRace
)

func (r InsertResult) String() string {
	switch r {
	case InsertResultInserted:
		return "inserted"
	case InsertResultMerged:
		return "merged"
	case InsertResultDuplicateRace:
		return "duplicate_race"
	default:
		return "unknown"
	}
}

// FailureLevel classifies a recorded failure. Transient failures retry in
// place with backoff until the item's attempt budget runs out; permanent
// failures (dead DNS, 404, non-HTML payloads) go straight to StageFailed
// without consuming retry attempts.
type FailureLevel int

const (
	FailureTransient FailureLevel = iota
	FailurePermanent
)

// Sentinel errors shared across pipeline stages.
var (
	// ErrPermanentFailure marks an error as non-retryable; a stage handler
	// wraps it so the queue routes the item straight to StageFailed.
	ErrPermanentFailure = errors.New("permanent failure")

	ErrSourceDisabled     = errors.New("source is disabled")
	ErrSourceQuarantined  = errors.New("source is quarantined")
	ErrItemNotFound       = errors.New("queue item not found")
	ErrWrongStage         = errors.New("queue item is not in the expected stage")
	ErrAlreadyClaimed     = errors.New("queue item already claimed")
	ErrMaxAttemptsReached = errors.New("queue item exceeded max attempts")
	ErrNoExtractionWinner = errors.New("no extraction strategy produced a usable card")
	ErrNotProbableEvent   = errors.New("candidate failed the probable-event filter")
	ErrGeocodeExhausted   = errors.New("all geocode providers exhausted")
)

// StageError wraps an error with the stage and item it occurred in, so a
// failure surfaced far from its origin still names both.
type StageError struct {
	ItemID string
	Stage  Stage
	Err    error
}

func (e *StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error  { return e.Err }

func NewStageError(itemID string, stage Stage, err error) *StageError {
	return &StageError{ItemID: itemID, Stage: stage, Err: err}
}
