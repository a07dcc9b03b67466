// Package machine implements the clockwork machine-instance evaluation engine.
//
// A Registry owns every Instance and Class of one runtime. Instances are
// stored in an arena indexed by ID; listener and dependent relations are
// index sets, never owning pointers, so dependency cycles are harmless.
//
// ARCHITECTURE:
//
// Single Control Thread:
// All instance state is mutated by the goroutine that drives Idle and
// EvaluateStableState (normally engine.Runtime). The only cross-goroutine
// entry points are Mailbox.Enqueue (via a Dispatcher) and Trigger.Fire
// (via a Scheduler).
//
// Action Stack:
// Each instance serializes its work on a stack of actions. The top is the
// action receiving control; at most one action is Running. Actions live in
// a per-instance arena and are addressed by generation-checked ActionID
// handles, so a trigger that outlives its action can never fire into it.
//
// Stable States:
// Stable-state predicates are evaluated in declaration order and the first
// match wins. Timer clauses (TIMER > N) arm one live trigger per stable
// state; the trigger wakes the instance when the clause can next change.
//
// Propagation:
// A state or property change increments the needs-check counter of every
// dependent. Containers (LIST, REFERENCE) pass the increment on to their own
// dependents. Propagation is breadth-first with a visited set and never
// evaluates anything itself.
package machine
