// Package risk implements the behavioral fraud scorer: seven independent
// detection strategies over per-entity history, combined into one bounded
// score and classification.
//
// # Scoring model
//
// Each strategy contributes a non-negative delta and zero or more
// human-readable reasons. Deltas are additive and the total is clamped to
// [0,100]. Blacklisted devices and IPs short-circuit their strategy to 100.
// The current attempt is scored against history as it stood before the call;
// it is folded into history only after all strategies have run.
//
// # Failure direction
//
// A strategy that cannot evaluate (absent signal, malformed input, panic)
// contributes zero. Scoring never returns an error.
//
// # What this package must NOT do
//
//   - Deny attempts: classification is advisory, the caller decides policy.
//   - Share state with the rate limiter's penalty system.
//   - Be imported outside the admission module.
package risk
