// Package harness runs machine scenarios against the real runtime.
//
// A scenario compiles one or more CUE specs, loads the instances into a
// registry driven by a fake clock and a manual scheduler, and executes a
// list of steps. Every state change, property change, delivered message and
// operator command is recorded in a trace; assertions check the trace, the
// live registry and the in-memory store the run persisted to.
//
// # Scenario Format
//
//	name: valve_lamp
//	description: "Lamp follows the valve"
//	specs:
//	  - ../specs/plant.cue
//	steps:
//	  - set: {machine: valve, property: INPUT, value: 1}
//	  - send: {message: start, to: pump}
//	  - advance: 500ms
//	  - command: GET lamp
//	    expect: lit
//	  - poll: 2
//	assertions:
//	  - type: state
//	    machine: lamp
//	    state: lit
//	  - type: final_state
//	    table: machine_states
//	    where: {machine: lamp}
//	    expect: {state: lit}
//
// Every step but poll and advance is followed by one poll cycle. poll runs
// extra cycles. advance moves the clock, stopping at each due timer to fire
// it and poll, so timers armed by a firing are scheduled from the firing
// time.
//
// # Assertion Types
//
//   - state: a machine is in a state at the end of the run
//   - property: a property holds a value at the end of the run
//   - trace_contains: an event of a type appears in the trace
//   - trace_order: messages were delivered in the given order
//   - trace_count: an event appears exactly N times
//   - final_state: a row of a store table matches expected values
//
// # Deterministic Testing
//
// The clock starts at testutil.Epoch, package IDs are sequential and the
// store is an isolated in-memory SQLite database, so a scenario always
// produces the same trace. RunWithGolden compares the trace against
// testdata/golden/{name}.golden; regenerate with:
//
//	go test ./internal/harness -update
package harness
