package admission

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/factorauth/admission/internal/kv"
	"github.com/factorauth/admission/internal/rate"
	"github.com/factorauth/admission/internal/risk"
)

// Gate is the admission-control decision point. One Gate per process; all
// methods are safe for concurrent use after [Builder.Build].
type Gate struct {
	config   Config
	clock    Clock
	limiter  *rate.Limiter
	scorer   *risk.Scorer
	failover *kv.Failover
	audit    *auditDispatcher
	metrics  *Metrics
	receipts *receiptIssuer
}

// Allow reports whether the attempt may proceed to factor verification. It
// never returns an error: internal faults fail open, because blocking all
// authentication during a transient fault is worse than under-limiting it.
//
// Checks run in order — active penalties, the global ceiling, then token
// bucket and hourly/daily windows per user, device, and IP — and
// short-circuit on the first denial. Every denial counts a violation against
// the offending entity; repeated violations escalate into a timed lockout.
func (g *Gate) Allow(ctx context.Context, attempt Attempt) bool {
	if g == nil || g.limiter == nil {
		return true
	}
	if attempt.UserID == "" {
		log.Print("admission: allow called without user id")
		return true
	}

	decision := g.limiter.Allow(ctx, attempt.UserID, attempt.DeviceFingerprint, attempt.IPAddress)
	if decision.Err != nil {
		log.Print("admission: state store degraded during allow check")
	}
	if decision.Allowed {
		g.metricInc(MetricAllowGranted)
		return true
	}

	switch decision.Cause {
	case rate.CausePenalty:
		g.metricInc(MetricDenyPenalty)
	case rate.CauseGlobal:
		g.metricInc(MetricDenyGlobal)
	case rate.CauseBucket:
		g.metricInc(MetricDenyBucket)
	default:
		g.metricInc(MetricDenyWindow)
	}

	g.audit.Emit(ctx, AuditEvent{
		EventType: EventAttemptDenied,
		UserID:    attempt.UserID,
		Entity:    decision.Entity,
		IP:        attempt.IPAddress,
		Reason:    decision.Cause,
	})
	if decision.Escalated {
		g.metricInc(MetricPenaltyEscalated)
		g.audit.Emit(ctx, AuditEvent{
			EventType: EventPenaltyApplied,
			UserID:    attempt.UserID,
			Entity:    decision.Entity,
			Reason:    "violation threshold reached",
		})
	}

	return false
}

// Score computes the attempt's fraud-risk classification. It never returns
// an error: a strategy that cannot evaluate contributes zero. Every call
// folds the attempt into history for subsequent scoring, whether or not
// optional signals were supplied.
func (g *Gate) Score(ctx context.Context, attempt Attempt) RiskResult {
	if g == nil || g.scorer == nil || attempt.UserID == "" {
		return RiskResult{Level: RiskLow, Legitimate: true, Strategies: map[string]int{}}
	}

	in := risk.Input{
		UserID:            attempt.UserID,
		DeviceFingerprint: attempt.DeviceFingerprint,
		IPAddress:         attempt.IPAddress,
		TransactionAmount: attempt.TransactionAmount,
	}
	if attempt.Location != nil {
		in.Location = &risk.Location{
			Lat:     attempt.Location.Lat,
			Lon:     attempt.Location.Lon,
			Country: attempt.Location.Country,
		}
	}
	if attempt.Behavioral != nil {
		in.Behavioral = &risk.Sample{
			CompletionMs: attempt.Behavioral.CompletionMs,
			MsPerChar:    attempt.Behavioral.MsPerChar,
		}
	}

	res := g.scorer.Score(in)

	result := RiskResult{
		Score:      res.Score,
		Level:      RiskLevel(res.Level),
		Legitimate: res.Legitimate,
		Reasons:    res.Reasons,
		Strategies: res.Strategies,
	}

	switch result.Level {
	case RiskHigh:
		g.metricInc(MetricScoreHigh)
		g.audit.Emit(ctx, AuditEvent{
			EventType: EventRiskHigh,
			UserID:    attempt.UserID,
			IP:        attempt.IPAddress,
			RiskScore: result.Score,
			RiskLevel: string(result.Level),
			Reason:    firstReason(result.Reasons),
			Metadata:  map[string]string{"strategies": strconv.Itoa(len(result.Strategies))},
		})
	case RiskMedium:
		g.metricInc(MetricScoreMedium)
	default:
		g.metricInc(MetricScoreLow)
	}

	return result
}

func firstReason(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return reasons[0]
}

// ResetLimits clears bucket, window, violation, and penalty state for the
// entity across every dimension it appears under. Administrative override.
func (g *Gate) ResetLimits(ctx context.Context, entityID string) error {
	if g == nil || g.limiter == nil {
		return ErrGateNotReady
	}
	if err := g.limiter.Reset(ctx, entityID); err != nil {
		return err
	}
	g.audit.Emit(ctx, AuditEvent{EventType: EventLimitsReset, Entity: entityID})
	return nil
}

// RemainingAttempts reports the headroom left in the entity's hourly user
// window without consuming anything. Unknown entities report the full quota.
func (g *Gate) RemainingAttempts(ctx context.Context, entityID string) int {
	if g == nil || g.limiter == nil {
		return 0
	}
	return g.limiter.Remaining(ctx, entityID)
}

// ReportFraud permanently blacklists the reported device fingerprint and/or
// IP address. Blacklist entries are independent of rate-limit penalties and
// survive until cleared.
func (g *Gate) ReportFraud(ctx context.Context, report FraudReport) error {
	if g == nil || g.scorer == nil {
		return ErrGateNotReady
	}
	if report.DeviceFingerprint == "" && report.IPAddress == "" {
		return ErrFraudReportEmpty
	}

	nowMs := g.clock.NowMs()
	blacklist := g.scorer.Blacklist()
	if report.DeviceFingerprint != "" {
		blacklist.Add("device:"+report.DeviceFingerprint, report.Reason, nowMs)
	}
	if report.IPAddress != "" {
		blacklist.Add("ip:"+report.IPAddress, report.Reason, nowMs)
	}

	g.metricInc(MetricFraudReported)
	g.audit.Emit(ctx, AuditEvent{
		EventType: EventFraudReported,
		IP:        report.IPAddress,
		Entity:    reportEntity(report),
		Reason:    report.Reason,
	})
	return nil
}

func reportEntity(report FraudReport) string {
	if report.DeviceFingerprint != "" {
		return "device:" + report.DeviceFingerprint
	}
	return "ip:" + report.IPAddress
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// ClearFraudReport removes blacklist entries for the named device and/or IP.
// Clearing an absent entry is a no-op.
func (g *Gate) ClearFraudReport(ctx context.Context, report FraudReport) error {
	if g == nil || g.scorer == nil {
		return ErrGateNotReady
	}
	if report.DeviceFingerprint == "" && report.IPAddress == "" {
		return ErrFraudReportEmpty
	}

	blacklist := g.scorer.Blacklist()
	if report.DeviceFingerprint != "" {
		blacklist.Remove("device:" + report.DeviceFingerprint)
	}
	if report.IPAddress != "" {
		blacklist.Remove("ip:" + report.IPAddress)
	}

	g.audit.Emit(ctx, AuditEvent{
		EventType: EventFraudCleared,
		IP:        report.IPAddress,
		Entity:    reportEntity(report),
	})
	return nil
}

// FraudReports returns a copy of all active blacklist entries.
func (g *Gate) FraudReports() []BlacklistEntry {
	if g == nil || g.scorer == nil {
		return nil
	}

	entries := g.scorer.Blacklist().Entries()
	out := make([]BlacklistEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, BlacklistEntry{
			Entity:  e.Entity,
			Reason:  e.Reason,
			AddedAt: msToTime(e.AddedAt),
		})
	}
	return out
}

// BackendHealthy reports whether state operations are currently served by
// the distributed backend. Memory-only gates always report true.
func (g *Gate) BackendHealthy() bool {
	if g == nil || g.failover == nil {
		return true
	}
	return g.failover.Healthy()
}

// MetricsSnapshot copies the gate's counters.
func (g *Gate) MetricsSnapshot() MetricsSnapshot {
	if g == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return g.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped by a full buffer.
func (g *Gate) AuditDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.audit.Dropped()
}

// Close stops the audit dispatcher and the backend health probe. The gate
// remains usable afterwards, pinned to whichever backend it last routed to.
func (g *Gate) Close() {
	if g == nil {
		return
	}
	if g.audit != nil {
		g.audit.Close()
	}
	if g.failover != nil {
		g.failover.Close()
	}
}

func (g *Gate) metricInc(id MetricID) {
	if g == nil || g.metrics == nil {
		return
	}
	g.metrics.Inc(id)
}
