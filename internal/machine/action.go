package machine

import "fmt"

// Work is the behaviour of one queued unit of work.
//
// Execute is called when the action is New or NeedsRetry and returns the
// action's next status. Work that must wait for an event returns Running
// and installs a trigger with Action.Await; it is then polled through
// CheckComplete if it implements Waiter.
type Work interface {
	Execute(a *Action) Status
	String() string
}

// Waiter is implemented by work that stays Running until an awaited event
// arrives or a child action completes.
type Waiter interface {
	CheckComplete(a *Action) Status
}

// Action is one entry on an instance's execution stack.
type Action struct {
	id        ActionID
	owner     *Instance
	work      Work
	status    Status
	saved     Status
	blockedBy ActionID
	trigger   *Trigger
	err       error
	released  bool
}

// ID returns the action's handle.
func (a *Action) ID() ActionID { return a.id }

// Owner returns the instance whose stack holds the action.
func (a *Action) Owner() *Instance { return a.owner }

// Status returns the current status.
func (a *Action) Status() Status { return a.status }

// Err returns the reason recorded by Fail.
func (a *Action) Err() error { return a.err }

// Trigger returns the trigger the action is waiting on, if any.
func (a *Action) Trigger() *Trigger { return a.trigger }

// Fail records the reason for a failure and returns StatusFailed.
func (a *Action) Fail(err error) Status {
	a.err = err
	return StatusFailed
}

// Await installs a fresh trigger named event, owned by this action.
// Any previous trigger is disabled first.
func (a *Action) Await(event string) *Trigger {
	if a.trigger != nil {
		a.trigger.Disable()
	}
	t := NewTrigger(event)
	t.owner = a.owner.id
	t.action = a.id
	a.trigger = t
	return t
}

func (a *Action) String() string {
	return fmt.Sprintf("%s (%s)", a.work, a.status)
}

// setStatus applies the single transition function.
func (a *Action) setStatus(to Status) error {
	if a.status == to {
		return nil
	}
	if err := transition(a.status, to); err != nil {
		return err
	}
	a.status = to
	return nil
}

// suspend parks a Running action; the saved status is restored on resume.
func (a *Action) suspend() error {
	if a.status != StatusRunning {
		return nil
	}
	a.saved = StatusRunning
	return a.setStatus(StatusSuspended)
}

// resume restores a suspended action.
func (a *Action) resume() error {
	if a.status != StatusSuspended {
		return NewDefectError(ErrCodeInvalidTransition,
			fmt.Sprintf("resume of %s action %s", a.status, a.work))
	}
	saved := a.saved
	a.saved = StatusNew
	if err := a.setStatus(StatusRunning); err != nil {
		return err
	}
	if saved == StatusNeedsRetry {
		return a.setStatus(StatusNeedsRetry)
	}
	return nil
}

// ActionInfo is a read-only snapshot of a stack entry.
type ActionInfo struct {
	ID          ActionID
	Description string
	Status      Status
	Waiting     string
}
