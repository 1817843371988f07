// Package store provides a SQLite-backed journal of engine transactions.
//
// The journal is an append-only audit trail with three tables:
//   - sessions: one row per engine run (program name, versions)
//   - transactions: one row per dispatch, completed with its outcome
//   - steps: one row per reduced message, with the state it produced
//
// It records what happened. Replay re-dispatches the journaled events into
// a fresh engine; stored states are never loaded back.
//
// # Ordering
//
// All ordering uses seq INTEGER from the engine's logical clock, never
// timestamps, so two runs of the same script yield identical journals apart
// from the session id. Transaction reads are built with package query, which
// always appends ORDER BY seq.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// OpenReadOnly skips the pragmas that write and never migrates; readers
// must see the schema version this build writes.
//
// Payloads and states are stored as canonical JSON (see ir.MarshalCanonical);
// state digests use ir.StateDigest.
package store
