// Package coordinator mints discover-stage work on a schedule and fans a
// work-available signal out to stage workers whenever the queue gains new
// items at any stage.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eventuary/pipeline/insights"
	"github.com/eventuary/pipeline/models"
	"github.com/eventuary/pipeline/queue"
)

// SourceLister supplies the registered sources a run considers. Kept as an
// interface so the coordinator doesn't own source storage.
type SourceLister interface {
	Sources() []models.Source
}

// Config tunes scheduling cadence and backpressure.
type Config struct {
	// Interval is how often the coordinator considers minting new work.
	Interval time.Duration
	// BatchSize caps how many sources are minted per tick.
	BatchSize int
	// PersistBacklogHigh is the StagePersist queue depth above which the
	// mint batch size is halved, so a slow persister throttles intake
	// instead of growing an unbounded backlog.
	PersistBacklogHigh int
}

func DefaultConfig() Config {
	return Config{Interval: time.Minute, BatchSize: 10, PersistBacklogHigh: 500}
}

// tierWindow is the minimum spacing between crawls of a source in that tier,
// used when a Source carries no explicit ScheduleWindow.
var tierWindow = map[models.SourceTier]time.Duration{
	models.TierFlagship: 15 * time.Minute,
	models.TierStandard: time.Hour,
	models.TierLongTail: 6 * time.Hour,
}

// Broadcaster fans a work-available signal out to any number of listeners.
// Workers that idle out of ClaimForStage block on it until the next signal
// instead of busy-polling; everything stays in-process, no HTTP nudging
// between stages.
type Broadcaster struct {
	mu        sync.Mutex
	listeners []chan struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Listen registers a new listener channel. The channel buffers one signal;
// a listener that stops reading simply misses later wakeups. Listeners are
// never unregistered.
func (b *Broadcaster) Listen() <-chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.listeners = append(b.listeners, ch)
	b.mu.Unlock()
	return ch
}

// Signal wakes every listener. Sends are non-blocking: a listener that
// hasn't drained its previous signal simply misses a redundant wakeup.
func (b *Broadcaster) Signal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Coordinator mints discover-stage queue items on a schedule, in
// tier-then-staleness priority order, and signals stage workers whenever new
// work lands.
type Coordinator struct {
	cfg      Config
	q        *queue.Queue
	sources  SourceLister
	tracker  *insights.Tracker
	signal   *Broadcaster
	now      func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func New(cfg Config, q *queue.Queue, sources SourceLister, tracker *insights.Tracker) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Coordinator{
		cfg:     cfg,
		q:       q,
		sources: sources,
		tracker: tracker,
		signal:  NewBroadcaster(),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Signal exposes the coordinator's broadcaster so stage workers can block on
// Signal().Listen() instead of tight-polling ClaimForStage.
func (c *Coordinator) Signal() *Broadcaster { return c.signal }

// Start begins the scheduling loop in a background goroutine. Stop (or
// cancelling ctx) ends it.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Tick()
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the scheduling loop and waits for it to exit.
func (c *Coordinator) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Tick runs one scheduling pass: selects due, non-quarantined sources in
// priority order, mints a discover-stage queue item for each (up to the
// batch size, halved under persist backlog), and signals stage workers.
// Exported so tests and an admin trigger surface can drive it without
// waiting on the ticker.
func (c *Coordinator) Tick() []*models.QueueItem {
	batch := c.cfg.BatchSize
	if depths := c.q.Depths(); depths[models.StagePersist] > c.cfg.PersistBacklogHigh {
		batch = batch / 2
		if batch == 0 {
			batch = 1
		}
	}

	due := c.dueSources()
	if len(due) > batch {
		due = due[:batch]
	}

	minted := make([]*models.QueueItem, 0, len(due))
	for _, src := range due {
		item := c.q.Enqueue(&models.QueueItem{
			SourceID: src.ID,
			Stage:    models.StageDiscover,
			URL:      src.StartURL,
			Priority: priorityFor(src),
		})
		minted = append(minted, item)
	}
	if len(minted) > 0 {
		c.signal.Signal()
	}
	return minted
}

// dueSources returns enabled, non-quarantined sources whose schedule window
// has elapsed, ordered by tier (flagship first), then by the source's own
// Priority (highest first), and then by staleness (longest since last
// crawl first).
func (c *Coordinator) dueSources() []models.Source {
	all := c.sources.Sources()
	now := c.now()
	due := make([]models.Source, 0, len(all))
	for _, src := range all {
		if !src.Enabled || src.Quarantined {
			continue
		}
		if c.tracker != nil && c.tracker.State(src.ID).Quarantined {
			continue
		}
		if !src.LastCrawledAt.IsZero() && now.Sub(src.LastCrawledAt) < windowFor(src) {
			continue
		}
		due = append(due, src)
	}
	sort.SliceStable(due, func(i, j int) bool {
		ti, tj := tierRank(due[i].Tier), tierRank(due[j].Tier)
		if ti != tj {
			return ti < tj
		}
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].LastCrawledAt.Before(due[j].LastCrawledAt)
	})
	return due
}

func windowFor(src models.Source) time.Duration {
	if src.ScheduleWindow != "" {
		if d, err := time.ParseDuration(src.ScheduleWindow); err == nil {
			return d
		}
	}
	if d, ok := tierWindow[src.Tier]; ok {
		return d
	}
	return time.Hour
}

func tierRank(t models.SourceTier) int {
	switch t {
	case models.TierFlagship:
		return 0
	case models.TierStandard:
		return 1
	case models.TierLongTail:
		return 2
	default:
		return 3
	}
}

func priorityFor(src models.Source) int {
	base := src.Priority
	switch src.Tier {
	case models.TierFlagship:
		base += 200
	case models.TierStandard:
		base += 100
	}
	return base
}
