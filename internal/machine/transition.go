package machine

import (
	"fmt"

	"github.com/roach88/clockwork/internal/ir"
)

// SetState moves the instance to state. Setting the current state is a
// no-op. Unknown states are rejected before anything happens.
func (m *Instance) SetState(state string) error {
	if !m.class.HasState(state) {
		return newError(ErrCodeUnknownState, m.fullName, "%q is not a state of %s", state, m.class.Name)
	}
	if m.setState(state, false) == StatusFailed {
		return newError(ErrCodeInvalidValue, m.fullName, "cannot change state to %q", state)
	}
	return nil
}

// setState performs a state change:
//
//  1. the leave event goes to the instance's own handlers and to eligible
//     dependents
//  2. the elapsed-state timer restarts
//  3. the state is recorded and mirrored into the STATE property
//  4. timer triggers are re-armed
//  5. the enter event goes to the instance's handlers and dependents, and
//     dependents are flagged
//
// Own handlers are queued, leave first, and run after the change commits.
// With reenter set, setting the current state repeats the side effects.
func (m *Instance) setState(next string, reenter bool) Status {
	if !m.class.HasState(next) {
		m.log.Error("unknown state", "machine", m.fullName, "state", next)
		return StatusFailed
	}
	if m.errorState != 0 || m.removed {
		m.log.Warn("state change rejected", "machine", m.fullName, "state", next, "error_state", m.errorState)
		return StatusFailed
	}
	if next == m.state && !reenter {
		return StatusComplete
	}

	old := m.state
	var own []Work
	if old != "" {
		leave := ir.Qualify(m.name, old+"_leave")
		own = append(own, m.findHandler(leave, m, false)...)
		m.notifyDependents(leave)
	}

	now := m.reg.clock.Now()
	m.enteredAt = now
	m.disabledAt = now

	m.state = next
	m.props[PropState] = ir.String(next)

	for _, ss := range m.stable {
		if ss.tmpl.Name == next && next != old {
			for _, h := range ss.handlers {
				h.reset()
			}
		}
	}
	m.armTimers(true)

	enter := ir.Qualify(m.name, next+"_enter")
	own = append(own, m.findHandler(enter, m, false)...)
	m.notifyDependents(enter)

	m.needsCheck++
	m.reg.propagate(m)
	stateChangesTotal.Inc()

	m.reg.persist.MachineStateChanged(m.fullName, next)
	m.exportState(old, next)

	m.log.Debug("state changed", "machine", m.fullName, "from", old, "to", next)
	m.pushInOrder(own)
	return StatusComplete
}

// exportState publishes 1 for the entered state's address and 0 for the
// left state's address.
func (m *Instance) exportState(old, next string) {
	if addr, ok := m.exports[old]; ok && old != next {
		m.reg.export.ExportedValueChanged(addr, ir.Int(0))
	}
	if addr, ok := m.exports[next]; ok {
		m.reg.export.ExportedValueChanged(addr, ir.Int(1))
	}
	if addr, ok := m.exports[PropState]; ok {
		m.reg.export.ExportedValueChanged(addr, ir.String(next))
	}
}

// moveState is the move-to-state action.
type moveState struct {
	state   string
	reenter bool
}

func (w *moveState) Execute(a *Action) Status {
	if !a.owner.class.HasState(w.state) {
		return a.Fail(newError(ErrCodeUnknownState, a.owner.fullName, "%q is not a state", w.state))
	}
	return a.owner.setState(w.state, w.reenter)
}

func (w *moveState) String() string { return fmt.Sprintf("move to %s", w.state) }

// moveIfStable follows a transition command: it moves to state when the
// state's stable predicate already holds, or when the state has none.
// Otherwise stable-state evaluation decides later.
type moveIfStable struct {
	state string
}

func (w *moveIfStable) Execute(a *Action) Status {
	m := a.owner
	ss, ok := m.class.StableState(w.state)
	if !ok {
		return m.setState(w.state, false)
	}
	holds, err := m.evalBool(ss.Condition)
	if err != nil {
		m.log.Warn("stable state skipped", "machine", m.fullName, "state", w.state, "error", err)
		return StatusComplete
	}
	if !holds {
		return StatusComplete
	}
	return m.setState(w.state, false)
}

func (w *moveIfStable) String() string { return fmt.Sprintf("move to %s if stable", w.state) }
