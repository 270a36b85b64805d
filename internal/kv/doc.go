// Package kv abstracts the gate's state storage behind a minimal key/value
// interface with per-key TTLs.
//
// Three implementations: Memory for single-node deployments and as the local
// fallback, Redis for shared state across gate instances, and Failover, which
// routes between the two on primary health.
//
// # Architecture boundaries
//
// This package knows nothing about buckets, windows, or penalties; key naming
// and value encoding belong to internal/rate. It must stay import-free of the
// rest of the module.
package kv
