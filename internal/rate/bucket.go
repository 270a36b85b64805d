package rate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/factorauth/admission/internal/kv"
)

// bucketState is the decoded form of a "{tokens}:{lastRefillMs}" value.
type bucketState struct {
	tokens       float64
	lastRefillMs int64
}

func parseBucket(raw string) (bucketState, bool) {
	sep := strings.LastIndexByte(raw, ':')
	if sep <= 0 {
		return bucketState{}, false
	}

	tokens, err := strconv.ParseFloat(raw[:sep], 64)
	if err != nil || tokens < 0 {
		return bucketState{}, false
	}
	last, err := strconv.ParseInt(raw[sep+1:], 10, 64)
	if err != nil || last < 0 {
		return bucketState{}, false
	}

	return bucketState{tokens: tokens, lastRefillMs: last}, true
}

func (b bucketState) encode() string {
	return strconv.FormatFloat(b.tokens, 'f', -1, 64) + ":" + strconv.FormatInt(b.lastRefillMs, 10)
}

// refill advances the bucket to nowMs, adding elapsed-time tokens up to
// capacity. A clock that appears to run backwards adds nothing.
func (b bucketState) refill(capacity int, refillPerSecond float64, nowMs int64) bucketState {
	elapsedMs := nowMs - b.lastRefillMs
	if elapsedMs > 0 {
		b.tokens += float64(elapsedMs) / 1000 * refillPerSecond
		if max := float64(capacity); b.tokens > max {
			b.tokens = max
		}
	}
	b.lastRefillMs = nowMs
	return b
}

// takeToken refills the bucket at key lazily and consumes one token. A fresh
// entity starts with a full bucket. Denials do not mutate stored state.
func takeToken(ctx context.Context, store kv.Store, key string, capacity int, refillPerSecond float64, nowMs int64, ttl time.Duration) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}

	state := bucketState{tokens: float64(capacity), lastRefillMs: nowMs}
	if ok {
		if parsed, valid := parseBucket(raw); valid {
			state = parsed.refill(capacity, refillPerSecond, nowMs)
		}
	}

	if state.tokens < 1 {
		return false, nil
	}

	state.tokens--
	if err := store.Set(ctx, key, state.encode(), ttl); err != nil {
		return false, err
	}
	return true, nil
}
