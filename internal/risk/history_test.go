package risk

import (
	"fmt"
	"testing"
)

func TestHistory_AttemptPruning(t *testing.T) {
	h := newHistory(historyCaps{locations: 50, transactions: 100, samples: 50})

	h.recordAttempt("user:alice", 0)
	h.recordAttempt("user:alice", 1000)

	// An insert a day later evicts everything outside the trailing window.
	nowMs := attemptRetentionMs + 2000
	h.recordAttempt("user:alice", nowMs)

	if got := len(h.attemptTimes("user:alice")); got != 1 {
		t.Fatalf("retained %d attempts, want 1", got)
	}
	if got := h.attemptsWithin("user:alice", attemptRetentionMs, nowMs); got != 1 {
		t.Fatalf("attemptsWithin = %d, want 1", got)
	}
}

func TestHistory_LocationCapIsFIFO(t *testing.T) {
	h := newHistory(historyCaps{locations: 3, transactions: 100, samples: 50})

	for i := 0; i < 5; i++ {
		h.recordLocation("u", Location{Lat: float64(i), AtMs: int64(i)})
	}

	locs := h.locations["u"]
	if len(locs) != 3 {
		t.Fatalf("retained %d locations, want cap 3", len(locs))
	}
	// Oldest evicted first: entries 2, 3, 4 remain.
	if locs[0].Lat != 2 || locs[2].Lat != 4 {
		t.Fatalf("retained wrong entries: %+v", locs)
	}

	last, ok := h.lastLocation("u")
	if !ok || last.Lat != 4 {
		t.Fatalf("lastLocation = (%+v, %v), want newest", last, ok)
	}
}

func TestHistory_TransactionAndSampleCaps(t *testing.T) {
	h := newHistory(historyCaps{locations: 50, transactions: 4, samples: 2})

	for i := 0; i < 10; i++ {
		h.recordTransaction("u", Transaction{Amount: float64(i)})
		h.recordSample("u", Sample{CompletionMs: float64(i)})
	}

	if got := len(h.userTransactions("u")); got != 4 {
		t.Fatalf("retained %d transactions, want 4", got)
	}
	if got := len(h.userSamples("u")); got != 2 {
		t.Fatalf("retained %d samples, want 2", got)
	}
}

func TestHistory_DeviceAndIPAssociations(t *testing.T) {
	h := newHistory(historyCaps{locations: 50, transactions: 100, samples: 50})

	for i := 0; i < 7; i++ {
		h.recordDevice(fmt.Sprintf("user-%d", i), "fp")
		h.recordIPUser("1.2.3.4", fmt.Sprintf("user-%d", i))
	}
	h.recordDevice("user-0", "fp") // duplicates collapse

	if got := h.deviceUserCount("fp"); got != 7 {
		t.Fatalf("deviceUserCount = %d, want 7", got)
	}
	if got := h.ipUserCount("1.2.3.4"); got != 7 {
		t.Fatalf("ipUserCount = %d, want 7", got)
	}

	known, seen := h.knownDevice("user-0", "fp")
	if known != 1 || !seen {
		t.Fatalf("knownDevice = (%d, %v), want (1, true)", known, seen)
	}
	if _, seen := h.knownDevice("user-0", "other-fp"); seen {
		t.Fatal("unknown fingerprint reported as seen")
	}
}
