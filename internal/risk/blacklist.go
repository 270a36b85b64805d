package risk

import "sync"

// Entry is one permanent blacklist record for a device fingerprint or IP
// address. Entries survive until explicitly cleared and are independent of
// the rate limiter's penalty records.
type Entry struct {
	Entity  string // "device:{fingerprint}" or "ip:{address}"
	Reason  string
	AddedAt int64 // wall-clock ms
}

// Blacklist is a concurrency-safe set of fraud-reported entities.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]Entry)}
}

// Add records entity with the given reason. Re-reporting an entity keeps the
// original AddedAt and updates the reason.
func (b *Blacklist) Add(entity, reason string, nowMs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := Entry{Entity: entity, Reason: reason, AddedAt: nowMs}
	if existing, ok := b.entries[entity]; ok {
		entry.AddedAt = existing.AddedAt
	}
	b.entries[entity] = entry
}

// Remove clears entity. Removing an absent entity is a no-op.
func (b *Blacklist) Remove(entity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, entity)
}

// Get returns the entry for entity, if any.
func (b *Blacklist) Get(entity string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[entity]
	return entry, ok
}

// Entries returns a copy of all current entries, in no particular order.
func (b *Blacklist) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, len(b.entries))
	for _, entry := range b.entries {
		out = append(out, entry)
	}
	return out
}
