package admission

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/factorauth/admission/internal/kv"
	"github.com/factorauth/admission/internal/rate"
	"github.com/factorauth/admission/internal/risk"
)

// Builder assembles a [Gate]. Construction is allocation-only until Build;
// no I/O happens before the first Gate call.
type Builder struct {
	config    Config
	redis     *redis.Client
	auditSink AuditSink
	clock     Clock

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the distributed state backend. Without it the gate runs on
// process-local memory only.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the sink receiving audit events and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithClock replaces the time source. Intended for tests.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithReceiptKey sets the HS256 signing key for admission receipts.
func (b *Builder) WithReceiptKey(key []byte) *Builder {
	b.config.Receipt.SigningKey = append([]byte(nil), key...)
	return b
}

// Build validates the configuration and assembles the Gate. Configuration
// errors are fatal here, never at call time.
func (b *Builder) Build() (*Gate, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	cfg := cloneConfig(b.config)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}

	metrics := newMetrics(cfg.Metrics.Enabled)
	audit := newAuditDispatcher(cfg.Audit, b.auditSink)

	memory := kv.NewMemory()
	var store kv.Store = memory
	var failover *kv.Failover
	if b.redis != nil {
		failover = kv.NewFailover(
			kv.NewRedis(b.redis, cfg.Backend.KeyPrefix),
			memory,
			kv.FailoverConfig{
				ProbeInterval: cfg.Backend.ProbeInterval,
				OpTimeout:     cfg.Backend.OpTimeout,
				OnStateChange: func(healthy bool) {
					if healthy {
						metrics.Inc(MetricBackendRecovered)
						audit.Emit(context.Background(), AuditEvent{EventType: EventBackendRecovered})
						return
					}
					metrics.Inc(MetricBackendFailover)
					audit.Emit(context.Background(), AuditEvent{
						EventType: EventBackendFailover,
						Reason:    "primary state backend unreachable, serving from local fallback",
					})
				},
			},
		)
		store = failover
	}

	gate := &Gate{
		config:   cfg,
		clock:    clock,
		metrics:  metrics,
		audit:    audit,
		failover: failover,
		limiter: rate.NewLimiter(store, clock, rate.Config{
			User:               dimensionLimits(cfg.RateLimit.User),
			Device:             dimensionLimits(cfg.RateLimit.Device),
			IP:                 dimensionLimits(cfg.RateLimit.IP),
			GlobalPerMinute:    cfg.RateLimit.GlobalPerMinute,
			ViolationThreshold: cfg.Penalty.ViolationThreshold,
			PenaltyDuration:    cfg.Penalty.LockoutDuration,
			BucketTTL:          cfg.Backend.BucketTTL,
			WindowTTL:          cfg.Backend.WindowTTL,
		}),
		scorer: risk.NewScorer(clock, risk.Config{
			HighThreshold:     cfg.Risk.HighThreshold,
			MediumThreshold:   cfg.Risk.MediumThreshold,
			MaxLocations:      cfg.Risk.MaxLocationHistory,
			MaxTransactions:   cfg.Risk.MaxTransactionHistory,
			MaxSamples:        cfg.Risk.MaxBehavioralSamples,
			EnableNightWindow: cfg.Risk.EnableNightWindow,
		}),
		receipts: newReceiptIssuer(cfg.Receipt, clock),
	}

	b.built = true
	return gate, nil
}

func dimensionLimits(d DimensionConfig) rate.DimensionLimits {
	return rate.DimensionLimits{
		BurstCapacity: d.BurstCapacity,
		RefillPerHour: d.RefillPerHour,
		HourlyMax:     d.HourlyMax,
		DailyMax:      d.DailyMax,
	}
}
