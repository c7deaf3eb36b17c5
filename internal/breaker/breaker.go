// Package breaker classifies agent runtime provider errors and tracks, per
// (provider, modelId), a sliding burst window that opens a circuit on too
// many classified failures in a short span, closing it again after a
// cooldown. Grounded on the mutex-guarded single-counter shape of the
// teacher's kanban.CircuitBreaker, generalized to a per-model map holding a
// timestamp window instead of one global consecutive-failure count.
package breaker

import (
	"regexp"
	"sync"
	"time"

	"github.com/patleeman/taskfactory/internal/core"
)

const (
	DefaultThreshold       = 3
	DefaultBurstWindow     = 120 * time.Second
	DefaultCooldown        = 300 * time.Second
)

var (
	authPattern = regexp.MustCompile(`(?i)\b(auth|unauthorized|forbidden|invalid api key|credential|login)\b`)
	quotaPattern = regexp.MustCompile(`(?i)\b(quota|insufficient quota|billing|credits|payment required)\b`)
	rateLimitPattern = regexp.MustCompile(`(?i)(429|rate limit|too many requests|overloaded|retry delay)`)
)

// Classify maps an error message onto a BreakerCategory. The zero value
// with ok=false means the error is unclassified and must not count toward
// a burst.
func Classify(message string) (category core.BreakerCategory, ok bool) {
	switch {
	case authPattern.MatchString(message):
		return core.BreakerCategoryAuth, true
	case quotaPattern.MatchString(message):
		return core.BreakerCategoryQuota, true
	case rateLimitPattern.MatchString(message):
		return core.BreakerCategoryRateLimit, true
	default:
		return "", false
	}
}

// tracker is the per-model sliding window state.
type tracker struct {
	failures []time.Time
	open     *core.OpenRecord
}

// Config tunes the breaker's thresholds, overridable via
// EXECUTION_BREAKER_THRESHOLD / EXECUTION_BREAKER_BURST_WINDOW_MS /
// EXECUTION_BREAKER_COOLDOWN_MS.
type Config struct {
	Threshold   int
	BurstWindow time.Duration
	Cooldown    time.Duration
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, BurstWindow: DefaultBurstWindow, Cooldown: DefaultCooldown}
}

// Breaker tracks failure bursts per (provider, modelId) for one workspace.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	trackers map[core.ModelKey]*tracker
}

// New constructs a breaker with cfg; zero-value fields fall back to
// defaults.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = DefaultBurstWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Breaker{cfg: cfg, trackers: make(map[core.ModelKey]*tracker)}
}

func (b *Breaker) trackerFor(key core.ModelKey) *tracker {
	t, ok := b.trackers[key]
	if !ok {
		t = &tracker{}
		b.trackers[key] = t
	}
	return t
}

// RecordFailure classifies message and, if classified, appends to the
// key's burst window, dropping entries older than BurstWindow. If the
// remaining count reaches Threshold, the breaker opens and the returned
// OpenRecord is non-nil. An unclassified error returns (nil, false).
func (b *Breaker) RecordFailure(key core.ModelKey, message string, now time.Time) (*core.OpenRecord, bool) {
	category, ok := Classify(message)
	if !ok {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.trackerFor(key)
	t.failures = append(t.failures, now)
	t.failures = dropOlderThan(t.failures, now, b.cfg.BurstWindow)

	if len(t.failures) >= b.cfg.Threshold && t.open == nil {
		rec := &core.OpenRecord{
			Category:     category,
			OpenedAt:     now,
			RetryAt:      now.Add(b.cfg.Cooldown),
			FailureCount: len(t.failures),
			ErrorMessage: message,
		}
		t.open = rec
		return rec, true
	}
	return nil, true
}

func dropOlderThan(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// RecordSuccess resets the burst window for key; a closed breaker's
// failure count does not need separate clearing.
func (b *Breaker) RecordSuccess(key core.ModelKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trackers[key]
	if !ok {
		return
	}
	t.failures = nil
}

// IsOpen reports whether key's breaker is currently open, auto-closing it
// first if its cooldown has elapsed. The second return indicates an
// auto-close just happened, so the caller can emit the auto-close event.
func (b *Breaker) IsOpen(key core.ModelKey, now time.Time) (open bool, justClosed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trackers[key]
	if !ok || t.open == nil {
		return false, false
	}
	if !now.Before(t.open.RetryAt) {
		t.open = nil
		t.failures = nil
		return false, true
	}
	return true, false
}

// OpenRecord returns the current open record for key, if any.
func (b *Breaker) OpenRecord(key core.ModelKey) (core.OpenRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trackers[key]
	if !ok || t.open == nil {
		return core.OpenRecord{}, false
	}
	return *t.open, true
}

// ResetAll clears every open breaker, used when the operator starts the
// queue (resume intent).
func (b *Breaker) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.trackers {
		t.open = nil
		t.failures = nil
	}
}

// OpenKeys returns the keys currently open, for status reporting.
func (b *Breaker) OpenKeys() []core.ModelKey {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []core.ModelKey
	for k, t := range b.trackers {
		if t.open != nil {
			keys = append(keys, k)
		}
	}
	return keys
}
