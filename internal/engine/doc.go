// Package engine drives a machine registry: the outer polling loop.
//
// Each poll cycle runs passes over every instance. A pass first idles each
// instance (its action stack and mailbox), then evaluates the stable states
// of instances flagged dirty. Passes repeat until a pass finds nothing to
// do, which is the fixed point of the dependency propagation, or until the
// pass budget for the cycle is spent.
//
// All mutation of instance state happens on the goroutine that calls
// PollOnce or Run. Other goroutines reach the registry in two ways only:
// by delivering packages to mailboxes, and by submitting commands, which
// are queued and executed on the poll goroutine between cycles.
//
// Timer triggers are scheduled with a TimerScheduler. When one fires it
// enqueues a timer package and wakes Run, so a cycle runs without waiting
// for the next tick.
package engine
