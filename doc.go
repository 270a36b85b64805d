// Package admission is the admission-control core for a zero-knowledge
// multi-factor payment-authentication platform. Before a captured factor is
// compared against an enrolled digest, the attempt passes through two
// cooperating controls: a multi-dimensional rate-limit gate and a behavioral
// fraud-risk scorer.
//
// The package is designed for concurrent server workloads: one [Gate] per
// process, built through [Builder.Build], safe to call from many goroutines.
//
// # Architecture boundaries
//
// admission is the public surface. It exposes [Gate], [Builder], [Config],
// and value types (Attempt, RiskResult, MetricsSnapshot, AuditEvent). All
// internal coordination — keyed state storage, limiter pipeline, risk
// strategies — lives under internal/ and is never exported.
//
// # Failure direction
//
// [Gate.Allow] and [Gate.Score] are total functions: no internal error
// propagates to the caller. Rate-limit checks fail open (permit) and risk
// strategies fail toward zero, because falsely blocking legitimate payment
// attempts costs more than occasionally under-limiting or under-scoring
// during a transient fault.
//
// # What this package must NOT do
//
//   - Verify factor digests, enroll users, or talk to payment gateways;
//     those collaborators sit on the far side of the Gate boundary.
//   - Expose Redis clients, key layouts, or serialization in its public API.
//   - Perform I/O before Build or after Close.
package admission
