package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	ms int64
}

func (c *fakeClock) NowMs() int64 { return c.ms }

func (c *fakeClock) advance(d time.Duration) { c.ms += d.Milliseconds() }

func newTestGate(t *testing.T) (*Gate, *fakeClock) {
	t.Helper()

	clock := &fakeClock{ms: time.Now().UnixMilli()}
	gate, err := New().WithClock(clock).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(gate.Close)
	return gate, clock
}

func TestGate_BurstThenDenialAndPenalty(t *testing.T) {
	gate, clock := newTestGate(t)
	ctx := context.Background()

	attempt := Attempt{UserID: "alice", DeviceFingerprint: "fp-1", IPAddress: "203.0.113.5"}

	// Default user budget: burst capacity 3.
	allowed := 0
	for i := 0; i < 6; i++ {
		if gate.Allow(ctx, attempt) {
			allowed++
		}
		clock.advance(10 * time.Second)
	}
	if allowed != 3 {
		t.Fatalf("allowed %d of 6 rapid attempts, want the burst of 3", allowed)
	}

	// Three denials reach the violation threshold: the user is now locked
	// out even though the bucket would have refilled.
	clock.advance(20 * time.Minute)
	if gate.Allow(ctx, attempt) {
		t.Fatal("attempt during lockout allowed")
	}

	// The lockout expires on its own.
	clock.advance(15 * time.Minute)
	if !gate.Allow(ctx, attempt) {
		t.Fatal("attempt after lockout expiry denied")
	}

	snap := gate.MetricsSnapshot()
	if got := snap.Counters[MetricAllowGranted]; got != 4 {
		t.Fatalf("granted counter = %d, want 4", got)
	}
	if snap.Counters[MetricDenyBucket] == 0 {
		t.Fatal("bucket denials not counted")
	}
	if snap.Counters[MetricPenaltyEscalated] != 1 {
		t.Fatalf("escalations = %d, want 1", snap.Counters[MetricPenaltyEscalated])
	}
	if snap.Counters[MetricDenyPenalty] == 0 {
		t.Fatal("penalty denials not counted")
	}
}

func TestGate_AllowWithoutUserFailsOpen(t *testing.T) {
	gate, _ := newTestGate(t)

	if !gate.Allow(context.Background(), Attempt{}) {
		t.Fatal("attempt without user id denied")
	}
}

func TestGate_DenialEmitsAuditEvents(t *testing.T) {
	clock := &fakeClock{ms: time.Now().UnixMilli()}
	sink := NewChannelSink(32)
	gate, err := New().WithClock(clock).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	ctx := context.Background()
	attempt := Attempt{UserID: "bob"}
	for i := 0; i < 6; i++ {
		gate.Allow(ctx, attempt)
		clock.advance(time.Second)
	}
	gate.Close() // flushes the dispatcher

	var denied, escalated int
	for {
		select {
		case event := <-sink.Events():
			switch event.EventType {
			case EventAttemptDenied:
				denied++
				if event.UserID != "bob" || event.Entity != "user:bob" {
					t.Fatalf("denial event = %+v", event)
				}
				if event.ID == "" || event.Timestamp.IsZero() {
					t.Fatalf("event missing id or timestamp: %+v", event)
				}
			case EventPenaltyApplied:
				escalated++
			}
		default:
			if denied != 3 || escalated != 1 {
				t.Fatalf("got %d denial and %d penalty events, want 3 and 1", denied, escalated)
			}
			return
		}
	}
}

func TestGate_RemainingAndReset(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	if got := gate.RemainingAttempts(ctx, "carol"); got != 5 {
		t.Fatalf("fresh remaining = %d, want the hourly quota 5", got)
	}

	gate.Allow(ctx, Attempt{UserID: "carol"})
	gate.Allow(ctx, Attempt{UserID: "carol"})

	first := gate.RemainingAttempts(ctx, "carol")
	second := gate.RemainingAttempts(ctx, "carol")
	if first != 3 || second != first {
		t.Fatalf("remaining = %d then %d, want stable 3", first, second)
	}

	if err := gate.ResetLimits(ctx, "carol"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if got := gate.RemainingAttempts(ctx, "carol"); got != 5 {
		t.Fatalf("remaining after reset = %d, want 5", got)
	}
}

func TestGate_ScoreFreshUser(t *testing.T) {
	gate, _ := newTestGate(t)

	res := gate.Score(context.Background(), Attempt{UserID: "dave"})
	if res.Score != 0 || res.Level != RiskLow || !res.Legitimate {
		t.Fatalf("fresh user = %+v, want score 0 LOW", res)
	}

	snap := gate.MetricsSnapshot()
	if snap.Counters[MetricScoreLow] != 1 {
		t.Fatalf("low counter = %d, want 1", snap.Counters[MetricScoreLow])
	}
}

func TestGate_FraudReportLifecycle(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	if err := gate.ReportFraud(ctx, FraudReport{}); !errors.Is(err, ErrFraudReportEmpty) {
		t.Fatalf("empty report error = %v, want ErrFraudReportEmpty", err)
	}

	report := FraudReport{DeviceFingerprint: "fp-stolen", IPAddress: "203.0.113.9", Reason: "chargeback"}
	if err := gate.ReportFraud(ctx, report); err != nil {
		t.Fatalf("report failed: %v", err)
	}

	res := gate.Score(ctx, Attempt{UserID: "erin", DeviceFingerprint: "fp-stolen"})
	if res.Score != 100 || res.Level != RiskHigh || res.Legitimate {
		t.Fatalf("blacklisted score = %+v, want 100/HIGH", res)
	}

	entries := gate.FraudReports()
	if len(entries) != 2 {
		t.Fatalf("%d blacklist entries, want device and ip", len(entries))
	}
	for _, entry := range entries {
		if entry.Reason != "chargeback" || entry.AddedAt.IsZero() {
			t.Fatalf("entry = %+v", entry)
		}
	}

	if err := gate.ClearFraudReport(ctx, report); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	res = gate.Score(ctx, Attempt{UserID: "erin", DeviceFingerprint: "fp-stolen"})
	if res.Level == RiskHigh {
		t.Fatalf("score after clearing = %+v, still HIGH", res)
	}
	if len(gate.FraudReports()) != 0 {
		t.Fatal("blacklist entries survived clearing")
	}
}

func TestGate_HighRiskEmitsAuditEvent(t *testing.T) {
	clock := &fakeClock{ms: time.Now().UnixMilli()}
	sink := NewChannelSink(8)
	gate, err := New().WithClock(clock).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	ctx := context.Background()
	gate.ReportFraud(ctx, FraudReport{IPAddress: "198.51.100.1", Reason: "botnet"})
	gate.Score(ctx, Attempt{UserID: "frank", IPAddress: "198.51.100.1"})
	gate.Close()

	var sawHigh bool
	for {
		select {
		case event := <-sink.Events():
			if event.EventType == EventRiskHigh {
				sawHigh = true
				if event.RiskScore != 100 || event.RiskLevel != string(RiskHigh) || event.Reason == "" {
					t.Fatalf("risk event = %+v", event)
				}
			}
		default:
			if !sawHigh {
				t.Fatal("no risk.high audit event emitted")
			}
			return
		}
	}
}

func TestGate_DeadRedisFailsOpen(t *testing.T) {
	// Nothing listens here: every primary operation fails immediately.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	cfg := defaultConfig()
	cfg.Backend.OpTimeout = 50 * time.Millisecond
	cfg.Backend.ProbeInterval = time.Hour

	clock := &fakeClock{ms: time.Now().UnixMilli()}
	gate, err := New().WithConfig(cfg).WithRedis(client).WithClock(clock).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(gate.Close)

	ctx := context.Background()
	attempt := Attempt{UserID: "grace"}

	if !gate.Allow(ctx, attempt) {
		t.Fatal("first attempt during backend outage denied")
	}
	if gate.BackendHealthy() {
		t.Fatal("backend still reported healthy after a failed operation")
	}

	// Limits keep being enforced from the local fallback.
	allowed := 1
	for i := 0; i < 5; i++ {
		if gate.Allow(ctx, attempt) {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed %d attempts during outage, want the burst of 3", allowed)
	}

	snap := gate.MetricsSnapshot()
	if snap.Counters[MetricBackendFailover] != 1 {
		t.Fatalf("failover counter = %d, want 1", snap.Counters[MetricBackendFailover])
	}
}

func TestGate_RedisBackendRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{ms: time.Now().UnixMilli()}
	gate, err := New().WithRedis(client).WithClock(clock).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(gate.Close)

	ctx := context.Background()
	if !gate.Allow(ctx, Attempt{UserID: "alice"}) {
		t.Fatal("first attempt denied")
	}
	if !gate.BackendHealthy() {
		t.Fatal("backend unhealthy with a live server")
	}

	// Rate-limit state lands in Redis under the configured prefix.
	if !mr.Exists("adm:bucket:user:alice") {
		t.Fatal("bucket state not written to the backend")
	}
	if !mr.Exists("adm:window:hour:user:alice") {
		t.Fatal("hourly window not written to the backend")
	}

	// Killing the server degrades routing but keeps admitting.
	mr.Close()
	if !gate.Allow(ctx, Attempt{UserID: "alice"}) {
		t.Fatal("attempt after backend loss denied")
	}
	if gate.BackendHealthy() {
		t.Fatal("backend still reported healthy after server loss")
	}
}

func TestGate_MetricsDisabled(t *testing.T) {
	clock := &fakeClock{ms: time.Now().UnixMilli()}
	gate, err := New().WithClock(clock).WithMetricsEnabled(false).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(gate.Close)

	gate.Allow(context.Background(), Attempt{UserID: "heidi"})

	snap := gate.MetricsSnapshot()
	if len(snap.Counters) != 0 {
		t.Fatalf("disabled metrics reported counters: %v", snap.Counters)
	}
}

func TestGate_NilGateIsSafe(t *testing.T) {
	var gate *Gate

	if !gate.Allow(context.Background(), Attempt{UserID: "x"}) {
		t.Fatal("nil gate denied an attempt")
	}
	if res := gate.Score(context.Background(), Attempt{UserID: "x"}); res.Level != RiskLow {
		t.Fatalf("nil gate score = %+v", res)
	}
	if err := gate.ResetLimits(context.Background(), "x"); !errors.Is(err, ErrGateNotReady) {
		t.Fatalf("nil gate reset error = %v", err)
	}
	gate.Close()
}
