package admission

import (
	"errors"
	"fmt"
	"time"
)

// Config defines the gate's tuning parameters. Instances are configured
// during initialization and treated as immutable after [Builder.Build].
// Invalid values are construction-time errors, never call-time failures.
type Config struct {
	RateLimit RateLimitConfig
	Penalty   PenaltyConfig
	Risk      RiskConfig
	Backend   BackendConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Receipt   ReceiptConfig
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// DimensionConfig is the budget for one limited dimension: a token bucket
// (burst capacity, continuous refill) plus hourly and daily sliding windows.
type DimensionConfig struct {
	BurstCapacity int
	RefillPerHour float64
	HourlyMax     int
	DailyMax      int
}

// RateLimitConfig holds the per-dimension budgets and the system-wide
// fixed-window ceiling.
type RateLimitConfig struct {
	User   DimensionConfig
	Device DimensionConfig
	IP     DimensionConfig

	GlobalPerMinute int
}

/*
====================================
PENALTY CONFIG
====================================
*/

// PenaltyConfig controls violation escalation: once ViolationThreshold
// rule violations accumulate for an entity, the entity is locked out for
// LockoutDuration.
type PenaltyConfig struct {
	ViolationThreshold int
	LockoutDuration    time.Duration
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig controls score classification and history bounds.
type RiskConfig struct {
	// HighThreshold and MediumThreshold split the 0..100 score into
	// LOW / MEDIUM / HIGH bands.
	HighThreshold   int
	MediumThreshold int

	MaxLocationHistory    int
	MaxTransactionHistory int
	MaxBehavioralSamples  int

	// EnableNightWindow turns on the absolute 2-5 AM UTC check. Off by
	// default: it is timezone-naive and systematically flags non-UTC users.
	EnableNightWindow bool
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig tunes the distributed state adapter.
type BackendConfig struct {
	// KeyPrefix namespaces every key written to the distributed backend.
	KeyPrefix string
	// ProbeInterval bounds how often an unhealthy backend is re-probed.
	ProbeInterval time.Duration
	// OpTimeout caps every backend call; a timeout degrades to the fallback.
	OpTimeout time.Duration

	// Natural lifetimes for stored state, applied as key TTLs so the
	// backend self-cleans.
	BucketTTL time.Duration
	WindowTTL time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
RECEIPT CONFIG
====================================
*/

// ReceiptConfig controls signed admission receipts. Receipts are disabled
// until a signing key of at least 32 bytes is supplied.
type ReceiptConfig struct {
	SigningKey []byte
	TTL        time.Duration
	Issuer     string
}

func defaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			User:            DimensionConfig{BurstCapacity: 3, RefillPerHour: 5, HourlyMax: 5, DailyMax: 20},
			Device:          DimensionConfig{BurstCapacity: 5, RefillPerHour: 10, HourlyMax: 10, DailyMax: 50},
			IP:              DimensionConfig{BurstCapacity: 10, RefillPerHour: 20, HourlyMax: 20, DailyMax: 100},
			GlobalPerMinute: 1000,
		},
		Penalty: PenaltyConfig{
			ViolationThreshold: 3,
			LockoutDuration:    30 * time.Minute,
		},
		Risk: RiskConfig{
			HighThreshold:         70,
			MediumThreshold:       30,
			MaxLocationHistory:    50,
			MaxTransactionHistory: 100,
			MaxBehavioralSamples:  50,
		},
		Backend: BackendConfig{
			KeyPrefix:     "adm:",
			ProbeInterval: 30 * time.Second,
			OpTimeout:     200 * time.Millisecond,
			BucketTTL:     time.Hour,
			WindowTTL:     24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
		Receipt: ReceiptConfig{
			TTL:    2 * time.Minute,
			Issuer: "admission",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Receipt.SigningKey != nil {
		out.Receipt.SigningKey = append([]byte(nil), cfg.Receipt.SigningKey...)
	}
	return out
}

func validateDimension(name string, d DimensionConfig) error {
	if d.BurstCapacity < 1 {
		return fmt.Errorf("%s burst capacity must be >= 1, got %d", name, d.BurstCapacity)
	}
	if d.RefillPerHour <= 0 {
		return fmt.Errorf("%s refill rate must be positive, got %g", name, d.RefillPerHour)
	}
	if d.HourlyMax < 1 {
		return fmt.Errorf("%s hourly max must be >= 1, got %d", name, d.HourlyMax)
	}
	if d.DailyMax < d.HourlyMax {
		return fmt.Errorf("%s daily max %d below hourly max %d", name, d.DailyMax, d.HourlyMax)
	}
	return nil
}

func validateConfig(cfg Config) error {
	var errs []error

	for _, dim := range []struct {
		name string
		d    DimensionConfig
	}{
		{"user", cfg.RateLimit.User},
		{"device", cfg.RateLimit.Device},
		{"ip", cfg.RateLimit.IP},
	} {
		if err := validateDimension(dim.name, dim.d); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.RateLimit.GlobalPerMinute < 1 {
		errs = append(errs, fmt.Errorf("global per-minute ceiling must be >= 1, got %d", cfg.RateLimit.GlobalPerMinute))
	}
	if cfg.Penalty.ViolationThreshold < 1 {
		errs = append(errs, fmt.Errorf("violation threshold must be >= 1, got %d", cfg.Penalty.ViolationThreshold))
	}
	if cfg.Penalty.LockoutDuration <= 0 {
		errs = append(errs, fmt.Errorf("lockout duration must be positive, got %v", cfg.Penalty.LockoutDuration))
	}

	if cfg.Risk.MediumThreshold < 1 || cfg.Risk.HighThreshold <= cfg.Risk.MediumThreshold || cfg.Risk.HighThreshold > 100 {
		errs = append(errs, fmt.Errorf("risk thresholds must satisfy 0 < medium < high <= 100, got medium=%d high=%d",
			cfg.Risk.MediumThreshold, cfg.Risk.HighThreshold))
	}
	if cfg.Risk.MaxLocationHistory < 1 || cfg.Risk.MaxTransactionHistory < 1 || cfg.Risk.MaxBehavioralSamples < 1 {
		errs = append(errs, errors.New("risk history caps must be >= 1"))
	}

	if cfg.Backend.ProbeInterval <= 0 {
		errs = append(errs, fmt.Errorf("probe interval must be positive, got %v", cfg.Backend.ProbeInterval))
	}
	if cfg.Backend.OpTimeout <= 0 {
		errs = append(errs, fmt.Errorf("backend op timeout must be positive, got %v", cfg.Backend.OpTimeout))
	}
	if cfg.Backend.BucketTTL <= 0 || cfg.Backend.WindowTTL <= 0 {
		errs = append(errs, errors.New("backend TTLs must be positive"))
	}

	if len(cfg.Receipt.SigningKey) > 0 {
		if len(cfg.Receipt.SigningKey) < 32 {
			errs = append(errs, fmt.Errorf("receipt signing key must be >= 32 bytes, got %d", len(cfg.Receipt.SigningKey)))
		}
		if cfg.Receipt.TTL <= 0 {
			errs = append(errs, fmt.Errorf("receipt TTL must be positive, got %v", cfg.Receipt.TTL))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
