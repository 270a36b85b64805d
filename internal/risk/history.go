package risk

import "time"

// Location is one observed coordinate fix for a user.
type Location struct {
	Lat     float64
	Lon     float64
	Country string
	AtMs    int64
}

// Transaction is one observed payment amount for a user.
type Transaction struct {
	Amount float64
	AtMs   int64
}

// Sample is one behavioral-timing observation: how long the user took to
// complete the factor and their per-character typing pace.
type Sample struct {
	CompletionMs float64
	MsPerChar    float64
}

// historyCaps bounds the per-user lists; oldest entries are evicted first.
type historyCaps struct {
	locations    int
	transactions int
	samples      int
}

// history holds all per-entity observations the scorer reads. It is not
// self-synchronizing: the owning [Scorer] serializes access under its lock.
type history struct {
	caps historyCaps

	// attempts maps "user:x"/"device:y"/"ip:z" to arrival-ordered timestamps,
	// pruned to a trailing 24h window on each insert.
	attempts map[string][]int64

	userDevices map[string]map[string]struct{}
	deviceUsers map[string]map[string]struct{}
	ipUsers     map[string]map[string]struct{}

	locations    map[string][]Location
	transactions map[string][]Transaction
	samples      map[string][]Sample
}

func newHistory(caps historyCaps) *history {
	return &history{
		caps:         caps,
		attempts:     make(map[string][]int64),
		userDevices:  make(map[string]map[string]struct{}),
		deviceUsers:  make(map[string]map[string]struct{}),
		ipUsers:      make(map[string]map[string]struct{}),
		locations:    make(map[string][]Location),
		transactions: make(map[string][]Transaction),
		samples:      make(map[string][]Sample),
	}
}

const attemptRetentionMs = int64(24 * time.Hour / time.Millisecond)

func (h *history) recordAttempt(entity string, nowMs int64) {
	stamps := append(h.attempts[entity], nowMs)
	live := stamps[:0]
	for _, ts := range stamps {
		if nowMs-ts <= attemptRetentionMs {
			live = append(live, ts)
		}
	}
	h.attempts[entity] = live
}

func (h *history) attemptsWithin(entity string, windowMs, nowMs int64) int {
	count := 0
	for _, ts := range h.attempts[entity] {
		if nowMs-ts <= windowMs {
			count++
		}
	}
	return count
}

func (h *history) attemptTimes(entity string) []int64 {
	return h.attempts[entity]
}

func (h *history) recordDevice(userID, fingerprint string) {
	addMember(h.userDevices, userID, fingerprint)
	addMember(h.deviceUsers, fingerprint, userID)
}

func (h *history) recordIPUser(ip, userID string) {
	addMember(h.ipUsers, ip, userID)
}

// knownDevice reports how many fingerprints the user has on record and
// whether the given one is among them.
func (h *history) knownDevice(userID, fingerprint string) (int, bool) {
	devices := h.userDevices[userID]
	_, seen := devices[fingerprint]
	return len(devices), seen
}

func (h *history) deviceUserCount(fingerprint string) int {
	return len(h.deviceUsers[fingerprint])
}

func (h *history) ipUserCount(ip string) int {
	return len(h.ipUsers[ip])
}

func (h *history) lastLocation(userID string) (Location, bool) {
	locs := h.locations[userID]
	if len(locs) == 0 {
		return Location{}, false
	}
	return locs[len(locs)-1], true
}

func (h *history) recordLocation(userID string, loc Location) {
	h.locations[userID] = appendCapped(h.locations[userID], loc, h.caps.locations)
}

func (h *history) userTransactions(userID string) []Transaction {
	return h.transactions[userID]
}

func (h *history) recordTransaction(userID string, tx Transaction) {
	h.transactions[userID] = appendCapped(h.transactions[userID], tx, h.caps.transactions)
}

func (h *history) userSamples(userID string) []Sample {
	return h.samples[userID]
}

func (h *history) recordSample(userID string, sample Sample) {
	h.samples[userID] = appendCapped(h.samples[userID], sample, h.caps.samples)
}

func addMember(set map[string]map[string]struct{}, key, member string) {
	members := set[key]
	if members == nil {
		members = make(map[string]struct{})
		set[key] = members
	}
	members[member] = struct{}{}
}

// appendCapped appends and evicts from the front once past cap (FIFO, not
// time-based).
func appendCapped[T any](list []T, item T, cap int) []T {
	list = append(list, item)
	if cap > 0 && len(list) > cap {
		list = list[len(list)-cap:]
	}
	return list
}
