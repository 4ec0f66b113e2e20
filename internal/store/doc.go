// Package store provides SQLite-backed host storage for particle data.
//
// An interpreter keeps no state between turns: the host must hand it the
// data it produced last time for the same particle. The store keeps that
// data per (peer, particle), an append-only log of turns and the call
// requests every turn emitted.
//
// # Tables
//
//   - particles: latest outgoing data, upserted after every successful turn
//   - turns: one row per turn, ordered by an autoincrement seq
//   - call_requests: requests keyed by (peer, particle, call id); the
//     interpreter never reuses a call id within a particle, so writes are
//     ON CONFLICT DO NOTHING
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Reads are ordered deterministically (seq, then call id) so traces
// printed from the store are stable across runs.
package store
