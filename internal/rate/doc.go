// Package rate implements the admission gate's rate-limiting pipeline:
// token buckets, sliding windows, a global fixed-window counter, and the
// violation/penalty tracker, all over the internal/kv state store.
//
// # Key layout
//
// Keys are namespaced by kind and expire with the data's natural lifetime:
//
//	bucket:{dim}:{id}            "{tokens}:{lastRefillMs}"        1h
//	window:hour:{dim}:{id}       comma-joined ms timestamps       24h
//	window:day:{dim}:{id}        comma-joined ms timestamps       24h
//	window:global:{minute}       integer counter                  2m
//	violations:{dim}:{id}        integer counter                  30m
//	penalty:{dim}:{id}           penalizedUntilMs                 30m
//
// # Window semantics
//
// Buckets refill lazily on access, never via a background timer. Sliding
// windows prune on every check and never mutate state on a denial. The global
// counter uses INCR + conditional expire on first hit.
//
// # What this package must NOT do
//
//   - Surface store errors to callers: every check fails open (allowed).
//   - Score risk or consult blacklists (internal/risk owns those).
//   - Be imported outside the admission module.
package rate
