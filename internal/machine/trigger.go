package machine

import (
	"sync/atomic"
)

// Trigger is a one-shot named latch. It fires once, either when a
// scheduled timer elapses or when an awaited message is observed.
//
// A trigger refers back to its owner instance and, when it belongs to an
// action, to that action's handle. These are weak references: the trigger
// never keeps either alive, and the owner checks the handle before acting
// on a fired trigger.
//
// Fire may be called from any goroutine.
type Trigger struct {
	name     string
	fired    atomic.Bool
	disabled atomic.Bool
	owner    ID
	action   ActionID
}

// NewTrigger creates an enabled, unfired trigger.
func NewTrigger(name string) *Trigger {
	return &Trigger{name: name}
}

// Name returns the event name the trigger waits for.
func (t *Trigger) Name() string { return t.name }

// Owner returns the owning instance ID, NoID when unowned.
func (t *Trigger) Owner() ID { return t.owner }

// Fire latches the trigger. It reports false when the trigger is disabled
// or has already fired.
func (t *Trigger) Fire() bool {
	if t.disabled.Load() {
		return false
	}
	return t.fired.CompareAndSwap(false, true)
}

// Fired reports whether the trigger has fired.
func (t *Trigger) Fired() bool { return t.fired.Load() }

// Enabled reports whether the trigger can still fire.
func (t *Trigger) Enabled() bool { return !t.disabled.Load() }

// Live reports whether the trigger is enabled and has not fired yet.
func (t *Trigger) Live() bool { return t.Enabled() && !t.Fired() }

// Disable prevents the trigger from firing. A trigger already scheduled
// stays allocated until its timer runs.
func (t *Trigger) Disable() { t.disabled.Store(true) }

// Matches reports whether event is the message this trigger waits for.
func (t *Trigger) Matches(event string) bool {
	return t.name == event
}
