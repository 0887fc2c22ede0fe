// Package insights tracks per-source health (consecutive failures,
// reliability, quarantine) and the per-run diagnostics (winning strategy,
// per-strategy counts, timings) the auto strategy selector and the
// operational dashboards both read.
package insights

import (
	"sync"
	"time"

	"github.com/eventuary/pipeline/models"
)

// Config tunes health/quarantine thresholds.
type Config struct {
	// HealThreshold is the consecutive-failure count that triggers a
	// self-healing attempt.
	HealThreshold int
	// QuarantineThreshold is the consecutive-failure count beyond which a
	// source stops being scheduled entirely until manually reinstated.
	QuarantineThreshold int
	// ReliabilityAlpha is the EMA smoothing factor applied to each terminal
	// outcome (0 < alpha <= 1; higher weights recent runs more heavily).
	ReliabilityAlpha float64
}

func DefaultConfig() Config {
	return Config{HealThreshold: 3, QuarantineThreshold: 10, ReliabilityAlpha: 0.3}
}

// SourceState is the point-in-time health record for one source.
type SourceState struct {
	SourceID            string
	ConsecutiveFailures int
	TotalExtracted      int64
	LastSuccessfulRun    time.Time
	Reliability          float64
	Quarantined          bool
	HealAttempted        bool // true once a heal has been dispatched for the current failure streak
	LastHealedAt         time.Time
}

// RunInsight records one extraction run's diagnostics, the per-source
// detail that feeds dashboards and the auto fetch-strategy selector.
type RunInsight struct {
	SourceID          string
	At                time.Time
	CMSLabel          string
	WinningStrategy   string
	StrategyCounts    map[string]int
	FetchDuration     time.Duration
	ParseDuration     time.Duration
	HTMLSizeBytes     int
}

// Alerter fires a notification for error/fatal severities only; info-level
// chatter never pages anyone. A nil Alerter is a valid, silent no-op -- the
// pipeline runs with zero optional providers.
type Alerter interface {
	Alert(severity, message string) error
}

// Tracker is the shared source-health ledger: one instance, injected
// across all pipeline workers, never a package-level singleton.
type Tracker struct {
	cfg Config

	mu     sync.Mutex
	states map[string]*SourceState
	runs   map[string][]RunInsight // bounded per source

	alerter Alerter
}

// New builds a Tracker. alerter may be nil.
func New(cfg Config, alerter Alerter) *Tracker {
	if cfg.HealThreshold <= 0 {
		cfg.HealThreshold = 3
	}
	if cfg.QuarantineThreshold <= 0 {
		cfg.QuarantineThreshold = 10
	}
	if cfg.ReliabilityAlpha <= 0 || cfg.ReliabilityAlpha > 1 {
		cfg.ReliabilityAlpha = 0.3
	}
	return &Tracker{cfg: cfg, states: make(map[string]*SourceState), runs: make(map[string][]RunInsight), alerter: alerter}
}

func (t *Tracker) stateFor(sourceID string) *SourceState {
	st, ok := t.states[sourceID]
	if !ok {
		st = &SourceState{SourceID: sourceID, Reliability: 1}
		t.states[sourceID] = st
	}
	return st
}

// RecordSuccess resets the consecutive-failure counter -- any successful
// extraction transition wipes the streak -- and nudges reliability up via
// EMA.
func (t *Tracker) RecordSuccess(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateFor(sourceID)
	st.ConsecutiveFailures = 0
	st.HealAttempted = false
	st.TotalExtracted++
	st.LastSuccessfulRun = time.Now().UTC()
	st.Reliability = ema(st.Reliability, 1, t.cfg.ReliabilityAlpha)
}

// RecordFailure increments the consecutive-failure counter, nudges
// reliability down, and quarantines the source once it crosses
// QuarantineThreshold. Returns the updated state so callers can decide
// whether to dispatch a healing attempt (ShouldHeal).
func (t *Tracker) RecordFailure(sourceID string) SourceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateFor(sourceID)
	st.ConsecutiveFailures++
	st.Reliability = ema(st.Reliability, 0, t.cfg.ReliabilityAlpha)
	if st.ConsecutiveFailures >= t.cfg.QuarantineThreshold && !st.Quarantined {
		st.Quarantined = true
		t.alert("error", "source "+sourceID+" quarantined after "+itoa(st.ConsecutiveFailures)+" consecutive failures")
	}
	return *st
}

// ShouldHeal reports whether sourceID has just crossed the healing
// threshold and hasn't already had a healing attempt dispatched for this
// failure streak. Calling it flips HealAttempted so a single streak only
// ever triggers one in-flight healing attempt per source at a time.
func (t *Tracker) ShouldHeal(sourceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateFor(sourceID)
	if st.Quarantined || st.HealAttempted {
		return false
	}
	if st.ConsecutiveFailures < t.cfg.HealThreshold {
		return false
	}
	st.HealAttempted = true
	return true
}

// ResetHealAttempt clears the in-flight healing marker without touching the
// failure streak, e.g. after a rejected or rate-limited healing attempt so
// a later consecutive failure can try again.
func (t *Tracker) ResetHealAttempt(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateFor(sourceID).HealAttempted = false
}

// MarkHealed stamps sourceID's last-healed time to now and clears the
// failure streak that triggered the heal, so the freshly repaired source
// gets a clean run before any further healing or quarantine decision.
func (t *Tracker) MarkHealed(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateFor(sourceID)
	st.LastHealedAt = time.Now().UTC()
	st.ConsecutiveFailures = 0
	st.HealAttempted = false
}

// HealedAt returns the last time sourceID was successfully healed, if ever.
func (t *Tracker) HealedAt(sourceID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateFor(sourceID)
	if st.LastHealedAt.IsZero() {
		return time.Time{}, false
	}
	return st.LastHealedAt, true
}

// Reinstate manually clears quarantine; a quarantined source is excluded
// from scheduling until an operator reinstates it.
func (t *Tracker) Reinstate(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateFor(sourceID)
	st.Quarantined = false
	st.ConsecutiveFailures = 0
	st.HealAttempted = false
}

// State returns a copy of the current health record for sourceID.
func (t *Tracker) State(sourceID string) SourceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.stateFor(sourceID)
}

// RecordRun appends a run insight, keeping only the most recent 50 per
// source to bound memory.
func (t *Tracker) RecordRun(ri RunInsight) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ri.At.IsZero() {
		ri.At = time.Now().UTC()
	}
	list := append(t.runs[ri.SourceID], ri)
	if len(list) > 50 {
		list = list[len(list)-50:]
	}
	t.runs[ri.SourceID] = list
}

// RecentRuns returns the bounded history of run insights for sourceID.
func (t *Tracker) RecentRuns(sourceID string) []RunInsight {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RunInsight(nil), t.runs[sourceID]...)
}

// PreferredStrategy inspects recent run history for sourceID and returns the
// most frequent winning strategy, feeding the fetch subsystem's `auto`
// strategy selector.
func (t *Tracker) PreferredStrategy(sourceID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	runs := t.runs[sourceID]
	if len(runs) == 0 {
		return "", false
	}
	counts := make(map[string]int)
	for _, r := range runs {
		counts[r.WinningStrategy]++
	}
	best, bestN := "", 0
	for s, n := range counts {
		if n > bestN {
			best, bestN = s, n
		}
	}
	return best, best != ""
}

// AlertTerminal fires an alert for a terminal taxonomy-level failure, per
// only error/fatal severities ever notify.
func (t *Tracker) AlertTerminal(sourceID, reason string) {
	t.alert("error", "source "+sourceID+" terminal failure: "+reason)
}

func (t *Tracker) alert(severity, message string) {
	if t.alerter == nil {
		return
	}
	_ = t.alerter.Alert(severity, message)
}

// ema computes one step of an exponential moving average toward sample,
// weighted by alpha.
func ema(current, sample, alpha float64) float64 {
	v := current + alpha*(sample-current)
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// QueueSnapshot pairs a full models.Source with the tracker's health record
// for it.
type QueueSnapshot struct {
	Source models.Source
	Health SourceState
}
