// Package store provides SQLite-backed persistence for machine state.
//
// Three tables are kept:
//   - machine_states: the current state of each machine
//   - properties: the last committed value of each property
//   - state_history: an append-only log of state changes
//
// All ordering uses seq INTEGER, a logical counter owned by the store. Wall
// time is never recorded, so two runs of the same scenario produce the same
// rows. Property values are stored as canonical JSON (see ir.MarshalValue).
//
// Recorder adapts a Store to machine.Persistence. The runtime never depends
// on persistence succeeding, so Recorder logs write failures and keeps going.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
