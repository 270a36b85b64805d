package rate

import (
	"context"
	"strconv"
	"time"

	"github.com/factorauth/admission/internal/kv"
)

// Tracker counts rule violations per entity and escalates to a timed penalty
// once the threshold is crossed. Counters and penalties live in the shared
// state store under their own namespaces; both expire with the penalty
// duration, giving a rolling failure window.
type Tracker struct {
	store     kv.Store
	threshold int
	duration  time.Duration
}

// NewTracker returns a tracker escalating after threshold violations to a
// penalty of the given duration.
func NewTracker(store kv.Store, threshold int, duration time.Duration) *Tracker {
	return &Tracker{store: store, threshold: threshold, duration: duration}
}

func violationsKey(entity string) string { return "violations:" + entity }
func penaltyKey(entity string) string    { return "penalty:" + entity }

// Penalized reports whether entity is inside an active penalty window.
func (t *Tracker) Penalized(ctx context.Context, entity string, nowMs int64) (bool, error) {
	raw, ok, err := t.store.Get(ctx, penaltyKey(entity))
	if err != nil || !ok {
		return false, err
	}

	until, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	return nowMs < until, nil
}

// RecordViolation increments the entity's violation counter and applies the
// penalty when the threshold is reached. It returns true when this call
// escalated the entity into a (new or extended) penalty window. An existing
// later deadline is never shortened.
func (t *Tracker) RecordViolation(ctx context.Context, entity string, nowMs int64) (bool, error) {
	count, err := t.store.Incr(ctx, violationsKey(entity), t.duration)
	if err != nil {
		return false, err
	}
	if count < int64(t.threshold) {
		return false, nil
	}

	until := nowMs + t.duration.Milliseconds()
	if raw, ok, err := t.store.Get(ctx, penaltyKey(entity)); err == nil && ok {
		if existing, perr := strconv.ParseInt(raw, 10, 64); perr == nil && existing >= until {
			return false, nil
		}
	}

	if err := t.store.Set(ctx, penaltyKey(entity), strconv.FormatInt(until, 10), t.duration); err != nil {
		return false, err
	}
	return true, nil
}

// Reset clears the violation counter and any active penalty for entity.
func (t *Tracker) Reset(ctx context.Context, entity string) error {
	return t.store.Del(ctx, violationsKey(entity), penaltyKey(entity))
}
