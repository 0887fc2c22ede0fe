// Package ratelimit provides a keyed, adaptive token-bucket limiter with a
// per-key circuit breaker. It is deliberately entity-agnostic: the fetch
// subsystem keys it by host, the geocode enricher keys it by provider name.
package ratelimit

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Acquire when the key's breaker has tripped
// and the cool-down window has not yet elapsed.
var ErrCircuitOpen = errors.New("ratelimit: circuit open")

// Config tunes the limiter. Zero values fall back to sane defaults in New.
type Config struct {
	Enabled bool

	InitialRate float64 // tokens/sec
	MinRate     float64
	MaxRate     float64
	Capacity    float64 // max tokens banked

	AIMDIncreaseFactor float64 // multiplicative increase on success
	AIMDDecreaseFactor float64 // multiplicative decrease on failure

	ConsecutiveFailThreshold int
	OpenDuration             time.Duration
	HalfOpenSuccessesToClose int

	KeyStateTTL time.Duration // idle keys are evicted after this long
	Shards      int           // must be a power of two; default 16
}

// DefaultConfig returns the tuning the fetch subsystem and geocode enricher
// both start from.
func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		InitialRate:              2.0,
		MinRate:                  0.1,
		MaxRate:                  8.0,
		Capacity:                 4.0,
		AIMDIncreaseFactor:       1.05,
		AIMDDecreaseFactor:       0.8,
		ConsecutiveFailThreshold: 5,
		OpenDuration:             15 * time.Second,
		HalfOpenSuccessesToClose: 3,
		KeyStateTTL:              2 * time.Minute,
		Shards:                   16,
	}
}

// Feedback reports the outcome of a request so the limiter can adapt.
type Feedback struct {
	StatusCode int
	Err        error
	RetryAfter time.Duration
}

func (f Feedback) failed() bool {
	return f.Err != nil || f.StatusCode >= 500 || f.StatusCode == 429
}

// Permit is returned by Acquire; callers release it when finished (currently
// a no-op hook reserved for future in-flight accounting, kept symmetric with
// the acquire/release shape the fetch worker pool already uses).
type Permit interface{ Release() }

type immediatePermit struct{}

func (immediatePermit) Release() {}

// KeySummary is a point-in-time view of one key's state, used for snapshots
// and health probes.
type KeySummary struct {
	Key          string
	Rate         float64
	CircuitState string
	LastActivity time.Time
}

// Snapshot aggregates limiter-wide counters plus the most recently active
// keys (bounded, to keep probe payloads small).
type Snapshot struct {
	TotalRequests    int64
	Throttled        int64
	Denied           int64
	OpenCircuits     int64
	HalfOpenCircuits int64
	Keys             []KeySummary
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

const (
	circuitClosed = iota
	circuitOpen
	circuitHalfOpen
)

type breakerState struct {
	state       int
	nextAttempt time.Time
	failures    int
	successes   int
}

type keyState struct {
	mu           sync.Mutex
	lastActivity time.Time
	rate         float64
	tokens       float64
	lastRefill   time.Time
	breaker      breakerState
}

type shard struct {
	mu   sync.RWMutex
	keys map[string]*keyState
}

// Limiter is the adaptive, keyed rate limiter.
type Limiter struct {
	cfg    Config
	clock  Clock
	shards []*shard
	mask   uint64

	metricsMu sync.Mutex
	metrics   Snapshot

	stopCh   chan struct{}
	stopOnce sync.Once
	evictWG  sync.WaitGroup
}

// New builds a Limiter, starting its background eviction loop.
func New(cfg Config) *Limiter {
	if cfg.Shards <= 0 || (cfg.Shards&(cfg.Shards-1)) != 0 {
		cfg.Shards = 16
	}
	if cfg.KeyStateTTL <= 0 {
		cfg.KeyStateTTL = 2 * time.Minute
	}
	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{keys: make(map[string]*keyState)}
	}
	l := &Limiter{cfg: cfg, clock: realClock{}, shards: shards, mask: uint64(cfg.Shards - 1), stopCh: make(chan struct{})}
	l.evictWG.Add(1)
	go l.evictLoop()
	return l
}

// WithClock overrides the clock, for tests.
func (l *Limiter) WithClock(c Clock) *Limiter {
	if c != nil {
		l.clock = c
	}
	return l
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[uint64(h.Sum32())&l.mask]
}

func (l *Limiter) getOrCreate(key string) *keyState {
	sh := l.shardFor(key)
	sh.mu.RLock()
	st := sh.keys[key]
	sh.mu.RUnlock()
	if st != nil {
		return st
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if st = sh.keys[key]; st == nil {
		now := l.clock.Now()
		st = &keyState{lastActivity: now, rate: l.cfg.InitialRate, tokens: l.cfg.Capacity, lastRefill: now}
		sh.keys[key] = st
	}
	return st
}

func (l *Limiter) withMetrics(f func(*Snapshot)) {
	l.metricsMu.Lock()
	f(&l.metrics)
	l.metricsMu.Unlock()
}

// Acquire blocks (respecting ctx) until a token for key is available, or
// returns ErrCircuitOpen if the key's breaker has tripped.
func (l *Limiter) Acquire(ctx context.Context, key string) (Permit, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.cfg.Enabled {
		return immediatePermit{}, nil
	}
	st := l.getOrCreate(key)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		wait, err := st.plan(l.cfg, l.clock.Now())
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) {
				l.withMetrics(func(m *Snapshot) { m.Denied++ })
			}
			return nil, err
		}
		if wait <= 0 {
			l.withMetrics(func(m *Snapshot) { m.TotalRequests++ })
			return immediatePermit{}, nil
		}
		l.withMetrics(func(m *Snapshot) { m.Throttled++ })
		if !sleepCtx(ctx, l.clock, wait) {
			return nil, ctx.Err()
		}
	}
}

// Feedback reports the outcome of a request made under key.
func (l *Limiter) Feedback(key string, fb Feedback) {
	if !l.cfg.Enabled {
		return
	}
	l.getOrCreate(key).applyFeedback(l.cfg, fb, l.clock.Now())
}

// Snapshot returns a point-in-time view across all keys.
func (l *Limiter) Snapshot() Snapshot {
	base := func() Snapshot { l.metricsMu.Lock(); defer l.metricsMu.Unlock(); return l.metrics }()
	var open, halfOpen int64
	var keys []KeySummary
	for _, sh := range l.shards {
		sh.mu.RLock()
		for k, st := range sh.keys {
			st.mu.Lock()
			cs := "closed"
			switch st.breaker.state {
			case circuitOpen:
				cs = "open"
				open++
			case circuitHalfOpen:
				cs = "half-open"
				halfOpen++
			}
			keys = append(keys, KeySummary{Key: k, Rate: st.rate, CircuitState: cs, LastActivity: st.lastActivity})
			st.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	base.Keys = keys
	base.OpenCircuits = open
	base.HalfOpenCircuits = halfOpen
	return base
}

// Close stops the eviction loop.
func (l *Limiter) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh); l.evictWG.Wait() })
	return nil
}

func (l *Limiter) evictLoop() {
	defer l.evictWG.Done()
	interval := l.cfg.KeyStateTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	now := l.clock.Now()
	for _, sh := range l.shards {
		sh.mu.Lock()
		for k, st := range sh.keys {
			st.mu.Lock()
			idle := now.Sub(st.lastActivity)
			st.mu.Unlock()
			if idle >= l.cfg.KeyStateTTL {
				delete(sh.keys, k)
			}
		}
		sh.mu.Unlock()
	}
}

func (st *keyState) plan(cfg Config, now time.Time) (time.Duration, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastActivity = now
	if st.breaker.state == circuitOpen {
		if now.After(st.breaker.nextAttempt) {
			st.breaker.state = circuitHalfOpen
		} else {
			return 0, ErrCircuitOpen
		}
	}
	elapsed := now.Sub(st.lastRefill).Seconds()
	if elapsed > 0 {
		st.tokens += elapsed * st.rate
		if st.tokens > cfg.Capacity {
			st.tokens = cfg.Capacity
		}
		st.lastRefill = now
	}
	if st.tokens >= 1 {
		st.tokens--
		return 0, nil
	}
	wait := (1 - st.tokens) / math.Max(st.rate, 0.05)
	return time.Duration(wait * float64(time.Second)), nil
}

func (st *keyState) applyFeedback(cfg Config, fb Feedback, now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastActivity = now
	if fb.failed() {
		st.rate *= cfg.AIMDDecreaseFactor
		if st.rate < cfg.MinRate {
			st.rate = cfg.MinRate
		}
		st.breaker.failures++
	} else {
		st.rate *= cfg.AIMDIncreaseFactor
		if st.rate > cfg.MaxRate {
			st.rate = cfg.MaxRate
		}
		if st.breaker.state == circuitHalfOpen {
			st.breaker.successes++
		}
		if st.breaker.state == circuitClosed {
			st.breaker.failures = 0
		}
	}
	switch st.breaker.state {
	case circuitHalfOpen:
		if st.breaker.successes >= cfg.HalfOpenSuccessesToClose {
			st.breaker = breakerState{state: circuitClosed}
		} else if st.breaker.failures > 0 {
			open := cfg.OpenDuration
			if fb.RetryAfter > open {
				open = fb.RetryAfter
			}
			st.breaker = breakerState{state: circuitOpen, nextAttempt: now.Add(open)}
		}
	case circuitClosed:
		if st.breaker.failures >= cfg.ConsecutiveFailThreshold {
			open := cfg.OpenDuration
			if fb.RetryAfter > open {
				open = fb.RetryAfter
			}
			st.breaker = breakerState{state: circuitOpen, nextAttempt: now.Add(open)}
		}
	}
}

func sleepCtx(ctx context.Context, clock Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
