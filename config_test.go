package admission

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := validateConfig(defaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero burst capacity", func(c *Config) { c.RateLimit.User.BurstCapacity = 0 }},
		{"negative refill", func(c *Config) { c.RateLimit.Device.RefillPerHour = -1 }},
		{"daily below hourly", func(c *Config) { c.RateLimit.IP.DailyMax = c.RateLimit.IP.HourlyMax - 1 }},
		{"zero global ceiling", func(c *Config) { c.RateLimit.GlobalPerMinute = 0 }},
		{"zero violation threshold", func(c *Config) { c.Penalty.ViolationThreshold = 0 }},
		{"zero lockout", func(c *Config) { c.Penalty.LockoutDuration = 0 }},
		{"inverted risk thresholds", func(c *Config) { c.Risk.HighThreshold = c.Risk.MediumThreshold }},
		{"risk threshold above 100", func(c *Config) { c.Risk.HighThreshold = 101 }},
		{"zero history cap", func(c *Config) { c.Risk.MaxLocationHistory = 0 }},
		{"zero probe interval", func(c *Config) { c.Backend.ProbeInterval = 0 }},
		{"zero op timeout", func(c *Config) { c.Backend.OpTimeout = 0 }},
		{"zero bucket ttl", func(c *Config) { c.Backend.BucketTTL = 0 }},
		{"short signing key", func(c *Config) { c.Receipt.SigningKey = []byte("too short") }},
		{"signing key without ttl", func(c *Config) {
			c.Receipt.SigningKey = make([]byte, 32)
			c.Receipt.TTL = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)

			_, err := New().WithConfig(cfg).Build()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("build error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestBuildCollectsAllConfigErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit.User.BurstCapacity = 0
	cfg.Penalty.LockoutDuration = -time.Minute

	err := validateConfig(cfg)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	msg := err.Error()
	for _, want := range []string{"burst capacity", "lockout duration"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %q", msg, want)
		}
	}
}

func TestBuilderRefusesDoubleBuild(t *testing.T) {
	b := New().WithClock(&fakeClock{ms: time.Now().UnixMilli()})

	gate, err := b.Build()
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	t.Cleanup(gate.Close)

	if _, err := b.Build(); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("second build error = %v, want ErrAlreadyBuilt", err)
	}
}

func TestConfigIsCopiedAtBuild(t *testing.T) {
	cfg := defaultConfig()
	cfg.Receipt.SigningKey = []byte("0123456789abcdef0123456789abcdef")

	b := New().WithConfig(cfg)

	// Mutating the caller's copy after WithConfig must not reach the gate.
	cfg.Receipt.SigningKey[0] = 'X'
	cfg.RateLimit.User.BurstCapacity = 0

	gate, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(gate.Close)

	if gate.config.Receipt.SigningKey[0] == 'X' {
		t.Fatal("signing key aliased to the caller's slice")
	}
}
