package rate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/factorauth/admission/internal/kv"
)

func parseTimestamps(raw string) []int64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	stamps := make([]int64, 0, len(parts))
	for _, part := range parts {
		ts, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		stamps = append(stamps, ts)
	}
	return stamps
}

func encodeTimestamps(stamps []int64) string {
	var sb strings.Builder
	for i, ts := range stamps {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(ts, 10))
	}
	return sb.String()
}

// pruneTimestamps drops timestamps older than windowMs relative to nowMs.
// Arrival order is preserved.
func pruneTimestamps(stamps []int64, windowMs, nowMs int64) []int64 {
	live := stamps[:0]
	for _, ts := range stamps {
		if nowMs-ts <= windowMs {
			live = append(live, ts)
		}
	}
	return live
}

// slideWindow checks the sliding window at key: prune, then admit nowMs if
// fewer than maxRequests live timestamps remain. Denials do not write.
func slideWindow(ctx context.Context, store kv.Store, key string, windowMs int64, maxRequests int, nowMs int64, ttl time.Duration) (bool, error) {
	raw, _, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}

	stamps := pruneTimestamps(parseTimestamps(raw), windowMs, nowMs)
	if len(stamps) >= maxRequests {
		return false, nil
	}

	stamps = append(stamps, nowMs)
	if err := store.Set(ctx, key, encodeTimestamps(stamps), ttl); err != nil {
		return false, err
	}
	return true, nil
}

// liveCount reports how many timestamps at key are within windowMs of nowMs
// without mutating stored state.
func liveCount(ctx context.Context, store kv.Store, key string, windowMs, nowMs int64) (int, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}

	count := 0
	for _, ts := range parseTimestamps(raw) {
		if nowMs-ts <= windowMs {
			count++
		}
	}
	return count, nil
}
