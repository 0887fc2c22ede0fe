// Package queue is the durable, pull-based work queue every pipeline stage
// claims items from: a mutex-guarded, stage-indexed store rather than a
// chain of channels, since channels cannot express reap-by-stall-cutoff or
// not-before-scheduled retries.
package queue

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventuary/pipeline/models"
)

// Config tunes queue behavior.
type Config struct {
	// StallTimeout is how long an item may sit claimed-but-unadvanced before
	// ReapStalled returns it to its stage, unclaimed, for another worker.
	StallTimeout time.Duration
	// DefaultMaxAttempts caps retries for items that don't specify their own.
	DefaultMaxAttempts int
}

func DefaultConfig() Config {
	return Config{StallTimeout: 2 * time.Minute, DefaultMaxAttempts: 5}
}

// Queue is a stage-indexed store of QueueItems. Each stage's backlog is kept
// in insertion order (a list) plus a map for O(1) lookup by ID, mirroring
// the LRU-plus-map structure the resource manager used for its page cache.
type Queue struct {
	cfg Config
	mu  sync.Mutex

	// backlog[stage] holds items eligible to be claimed, in insertion order;
	// ClaimForStage picks among them by age, then priority.
	backlog map[models.Stage]*list.List
	byID    map[string]*entry
}

type entry struct {
	item     *models.QueueItem
	elem     *list.Element // element in backlog[stage], nil when claimed
	inStage  models.Stage
}

// New builds an empty Queue.
func New(cfg Config) *Queue {
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 2 * time.Minute
	}
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = 5
	}
	return &Queue{
		cfg:     cfg,
		backlog: make(map[models.Stage]*list.List),
		byID:    make(map[string]*entry),
	}
}

// Enqueue adds a new item at StageDiscover (or whatever stage it already
// carries, for items re-entering the queue mid-pipeline).
func (q *Queue) Enqueue(item *models.QueueItem) *models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Stage == "" {
		item.Stage = models.StageDiscover
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = q.cfg.DefaultMaxAttempts
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	e := &entry{item: item, inStage: item.Stage}
	q.byID[item.ID] = e
	q.pushEligible(e)
	return item
}

// pushEligible appends e to its stage's backlog. Claim ordering is computed
// at claim time (see ClaimForStage), not maintained as insertion order, so
// this is a plain append.
func (q *Queue) pushEligible(e *entry) {
	l, ok := q.backlog[e.inStage]
	if !ok {
		l = list.New()
		q.backlog[e.inStage] = l
	}
	e.elem = l.PushBack(e)
}

// ClaimForStage pops up to limit eligible items for stage whose NotBefore
// has elapsed, marking each claimed by workerID. Eligible items are ordered
// oldest-claim-first (falling back to creation time for an item that was
// never claimed), tie-broken by highest priority when two items have the
// same age. The claim and the processing_started_at stamp happen in the
// same critical section: this queue IS the datastore, there is no separate
// trigger layer to set it.
func (q *Queue) ClaimForStage(stage models.Stage, workerID string, limit int) ([]*models.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 {
		limit = 1
	}
	l, ok := q.backlog[stage]
	if !ok {
		return nil, false
	}
	now := time.Now().UTC()
	var eligible []*entry
	for el := l.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !e.item.NotBefore.IsZero() && e.item.NotBefore.After(now) {
			continue
		}
		eligible = append(eligible, e)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		ai, aj := ageKey(eligible[i].item), ageKey(eligible[j].item)
		if !ai.Equal(aj) {
			return ai.Before(aj)
		}
		return eligible[i].item.Priority > eligible[j].item.Priority
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]*models.QueueItem, 0, len(eligible))
	for _, e := range eligible {
		q.backlog[stage].Remove(e.elem)
		e.elem = nil
		e.item.ClaimedBy = workerID
		e.item.ProcessingStartedAt = now
		e.item.LastClaimedAt = now
		claimed = append(claimed, e.item)
	}
	if len(claimed) == 0 {
		return nil, false
	}
	return claimed, true
}

// ageKey is the claim-ordering key for an item: its last claim time, or its
// creation time if it has never been claimed.
func ageKey(item *models.QueueItem) time.Time {
	if !item.LastClaimedAt.IsZero() {
		return item.LastClaimedAt
	}
	return item.CreatedAt
}

// AdvanceStage moves the item with itemID to the next stage, clearing its
// claim and resetting its attempts so it becomes eligible there (items moved
// to done or failed are not made eligible).
func (q *Queue) AdvanceStage(itemID string, next models.Stage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[itemID]
	if !ok {
		return models.ErrItemNotFound
	}
	e.item.Stage = next
	e.item.ClaimedBy = ""
	e.item.ProcessingStartedAt = time.Time{}
	e.item.Attempts = 0
	e.inStage = next
	if next != models.StageDone && next != models.StageFailed {
		q.pushEligible(e)
	}
	return nil
}

// RecordFailure records a failed attempt on a claimed item. A transient
// failure increments the attempt counter and, while attempts remain,
// reschedules the item into its current stage's backlog after backoff
// (not-before semantics); once the budget is spent it moves to StageFailed.
// A permanent failure skips the retry budget entirely and goes straight to
// StageFailed.
func (q *Queue) RecordFailure(itemID string, level models.FailureLevel, errMsg string, backoff time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[itemID]
	if !ok {
		return models.ErrItemNotFound
	}
	e.item.LastError = errMsg
	e.item.ClaimedBy = ""
	e.item.ProcessingStartedAt = time.Time{}
	if level == models.FailurePermanent {
		e.item.Stage = models.StageFailed
		e.inStage = models.StageFailed
		return nil
	}
	e.item.Attempts++
	if e.item.Attempts >= e.item.MaxAttempts {
		e.item.Stage = models.StageFailed
		e.inStage = models.StageFailed
		return nil
	}
	if backoff > 0 {
		e.item.NotBefore = time.Now().UTC().Add(backoff)
	}
	q.pushEligible(e)
	return nil
}

// ReapStalled scans every stage's claimed-but-not-returned items (those
// whose ProcessingStartedAt is older than the stall timeout and which are
// not present in any backlog list, i.e. currently claimed) and returns them
// unclaimed to their stage. Returns the number reaped.
func (q *Queue) ReapStalled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := time.Now().UTC().Add(-q.cfg.StallTimeout)
	reaped := 0
	for _, e := range q.byID {
		if e.elem != nil {
			continue // sitting in a backlog, not claimed
		}
		if e.item.Stage == models.StageDone || e.item.Stage == models.StageFailed {
			continue
		}
		if e.item.ProcessingStartedAt.IsZero() || e.item.ProcessingStartedAt.After(cutoff) {
			continue
		}
		e.item.ClaimedBy = ""
		e.item.ProcessingStartedAt = time.Time{}
		q.pushEligible(e)
		reaped++
	}
	return reaped
}

// Get returns the current snapshot of an item by ID.
func (q *Queue) Get(itemID string) (*models.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[itemID]
	if !ok {
		return nil, false
	}
	cp := *e.item
	return &cp, true
}

// Depths reports the backlog size per stage, for health probes and metrics.
func (q *Queue) Depths() map[models.Stage]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[models.Stage]int, len(q.backlog))
	for stage, l := range q.backlog {
		out[stage] = l.Len()
	}
	return out
}
