package rate

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/factorauth/admission/internal/kv"
)

// Clock supplies wall-clock milliseconds for all window math.
type Clock interface {
	NowMs() int64
}

// Dimensions the limiter tracks. Entity keys are "{dim}:{id}", plus the
// literal "global" entity for the system-wide counter.
const (
	DimUser   = "user"
	DimDevice = "device"
	DimIP     = "ip"

	GlobalEntity = "global"
)

// Denial causes reported in a [Decision].
const (
	CausePenalty      = "penalty"
	CauseGlobal       = "global"
	CauseBucket       = "bucket"
	CauseHourlyWindow = "window_hour"
	CauseDailyWindow  = "window_day"
)

// DimensionLimits holds the per-dimension budget: burst capacity and refill
// rate for the token bucket, plus hourly and daily sliding-window maxima.
type DimensionLimits struct {
	BurstCapacity int
	RefillPerHour float64
	HourlyMax     int
	DailyMax      int
}

// Config holds limiter tuning parameters.
type Config struct {
	User   DimensionLimits
	Device DimensionLimits
	IP     DimensionLimits

	GlobalPerMinute    int
	ViolationThreshold int
	PenaltyDuration    time.Duration

	BucketTTL time.Duration
	WindowTTL time.Duration
}

// Decision is the outcome of one Allow pass.
type Decision struct {
	Allowed bool
	// Cause names the failed check on a denial.
	Cause string
	// Entity is the penalized entity key ("user:alice", "ip:10.0.0.9", "global").
	Entity string
	// Escalated is true when this denial pushed the entity into a penalty window.
	Escalated bool
	// Err carries the last store error swallowed during the pass, for logging.
	Err error
}

// Limiter applies penalty, global, token-bucket, and sliding-window checks
// across the user, device, and IP dimensions. It is the sole allow/deny
// decision point; checks that hit store errors fail open.
type Limiter struct {
	mu        sync.Mutex
	store     kv.Store
	clock     Clock
	cfg       Config
	penalties *Tracker
}

// NewLimiter builds a limiter over the given store. The caller validates cfg.
func NewLimiter(store kv.Store, clock Clock, cfg Config) *Limiter {
	return &Limiter{
		store:     store,
		clock:     clock,
		cfg:       cfg,
		penalties: NewTracker(store, cfg.ViolationThreshold, cfg.PenaltyDuration),
	}
}

const (
	hourMs = int64(time.Hour / time.Millisecond)
	dayMs  = 24 * hourMs
)

// Allow runs the full admission pipeline in order, short-circuiting on the
// first failed check. Device and IP checks run only when those identifiers
// were supplied.
func (l *Limiter) Allow(ctx context.Context, userID, deviceFingerprint, ipAddress string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	nowMs := l.clock.NowMs()
	var lastErr error

	// 1. Active penalties deny before any counting.
	for _, entity := range attemptEntities(userID, deviceFingerprint, ipAddress) {
		penalized, err := l.penalties.Penalized(ctx, entity, nowMs)
		if err != nil {
			lastErr = err
			continue
		}
		if penalized {
			return Decision{Cause: CausePenalty, Entity: entity, Err: lastErr}
		}
	}

	// 2. System-wide fixed window.
	if d, denied := l.checkGlobal(ctx, nowMs, &lastErr); denied {
		return d
	}

	// 3-5. Per-user bucket and windows.
	if d, denied := l.checkDimension(ctx, DimUser, userID, l.cfg.User, nowMs, &lastErr); denied {
		return d
	}

	// 6. Device, when fingerprinted.
	if deviceFingerprint != "" {
		if d, denied := l.checkDimension(ctx, DimDevice, deviceFingerprint, l.cfg.Device, nowMs, &lastErr); denied {
			return d
		}
	}

	// 7. IP, when known.
	if ipAddress != "" {
		if d, denied := l.checkDimension(ctx, DimIP, ipAddress, l.cfg.IP, nowMs, &lastErr); denied {
			return d
		}
	}

	return Decision{Allowed: true, Err: lastErr}
}

func attemptEntities(userID, deviceFingerprint, ipAddress string) []string {
	entities := []string{DimUser + ":" + userID}
	if deviceFingerprint != "" {
		entities = append(entities, DimDevice+":"+deviceFingerprint)
	}
	if ipAddress != "" {
		entities = append(entities, DimIP+":"+ipAddress)
	}
	return entities
}

func (l *Limiter) checkGlobal(ctx context.Context, nowMs int64, lastErr *error) (Decision, bool) {
	key := "window:global:" + strconv.FormatInt(nowMs/60_000, 10)
	count, err := l.store.Incr(ctx, key, 2*time.Minute)
	if err != nil {
		*lastErr = err
		return Decision{}, false
	}
	if count <= int64(l.cfg.GlobalPerMinute) {
		return Decision{}, false
	}

	escalated, err := l.penalties.RecordViolation(ctx, GlobalEntity, nowMs)
	if err != nil {
		*lastErr = err
	}
	return Decision{Cause: CauseGlobal, Entity: GlobalEntity, Escalated: escalated, Err: *lastErr}, true
}

func (l *Limiter) checkDimension(ctx context.Context, dim, id string, limits DimensionLimits, nowMs int64, lastErr *error) (Decision, bool) {
	entity := dim + ":" + id

	allowed, err := takeToken(ctx, l.store, "bucket:"+entity, limits.BurstCapacity, limits.RefillPerHour/3600, nowMs, l.cfg.BucketTTL)
	if err != nil {
		*lastErr = err
	} else if !allowed {
		return l.deny(ctx, CauseBucket, entity, nowMs, lastErr), true
	}

	allowed, err = slideWindow(ctx, l.store, "window:hour:"+entity, hourMs, limits.HourlyMax, nowMs, l.cfg.WindowTTL)
	if err != nil {
		*lastErr = err
	} else if !allowed {
		return l.deny(ctx, CauseHourlyWindow, entity, nowMs, lastErr), true
	}

	allowed, err = slideWindow(ctx, l.store, "window:day:"+entity, dayMs, limits.DailyMax, nowMs, l.cfg.WindowTTL)
	if err != nil {
		*lastErr = err
	} else if !allowed {
		return l.deny(ctx, CauseDailyWindow, entity, nowMs, lastErr), true
	}

	return Decision{}, false
}

func (l *Limiter) deny(ctx context.Context, cause, entity string, nowMs int64, lastErr *error) Decision {
	escalated, err := l.penalties.RecordViolation(ctx, entity, nowMs)
	if err != nil {
		*lastErr = err
	}
	return Decision{Cause: cause, Entity: entity, Escalated: escalated, Err: *lastErr}
}

// Remaining reports the headroom left in the entity's hourly user window
// without mutating any state. Unknown entities report the full quota.
func (l *Limiter) Remaining(ctx context.Context, entityID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	nowMs := l.clock.NowMs()
	count, err := liveCount(ctx, l.store, "window:hour:"+DimUser+":"+entityID, hourMs, nowMs)
	if err != nil {
		return l.cfg.User.HourlyMax
	}
	if remaining := l.cfg.User.HourlyMax - count; remaining > 0 {
		return remaining
	}
	return 0
}

// Reset clears bucket, window, violation, and penalty state for entityID
// across every dimension it can appear under. Administrative override.
func (l *Limiter) Reset(ctx context.Context, entityID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entities := []string{
		DimUser + ":" + entityID,
		DimDevice + ":" + entityID,
		DimIP + ":" + entityID,
	}
	if entityID == GlobalEntity {
		entities = append(entities, GlobalEntity)
	}

	keys := make([]string, 0, len(entities)*5)
	for _, entity := range entities {
		keys = append(keys,
			"bucket:"+entity,
			"window:hour:"+entity,
			"window:day:"+entity,
			violationsKey(entity),
			penaltyKey(entity),
		)
	}
	return l.store.Del(ctx, keys...)
}
