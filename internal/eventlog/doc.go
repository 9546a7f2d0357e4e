// Package eventlog defines the append-only event log the tree is built on.
//
// The log is the only shared mutable resource. It assigns a strict total
// order (sequence numbers starting at 1) and evaluates append conditions
// atomically at commit time. That evaluation is what gives conflicting
// commands at-most-one-winner semantics without locks.
//
// Implementations:
//   - Memory (this package): process-local, for tests and the "memory" backend
//   - store.Store: SQLite
//   - redislog.Log: Redis, optimistic WATCH/MULTI
//
// Every implementation must pass logtest.RunContract.
package eventlog
