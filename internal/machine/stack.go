package machine

import "slices"

// top returns the action receiving control.
func (m *Instance) top() *Action {
	for len(m.stack) > 0 {
		id := m.stack[len(m.stack)-1]
		if a, ok := m.arena.get(id); ok {
			return a
		}
		// A released handle on the stack is a broken invariant.
		m.reportDefect(NewDefectError(ErrCodeDoublePop, "released action "+id.String()+" found on stack"))
		m.stack = m.stack[:len(m.stack)-1]
	}
	return nil
}

// Push queues w on top of the stack. A Running top is suspended and
// blocked by the new action until it completes.
func (m *Instance) Push(w Work) ActionID {
	a := m.arena.alloc(m, w)
	if parent := m.top(); parent != nil {
		if err := parent.suspend(); err != nil {
			m.reportDefect(err)
		}
		parent.blockedBy = a.id
	}
	m.stack = append(m.stack, a.id)
	m.log.Debug("action pushed", "machine", m.fullName, "action", w.String(), "depth", len(m.stack))
	return a.id
}

// pushInOrder pushes works so that works[0] executes first.
func (m *Instance) pushInOrder(works []Work) {
	for i := len(works) - 1; i >= 0; i-- {
		m.Push(works[i])
	}
}

// pop removes a specific action, which need not be the top, and releases
// it exactly once. The action it was blocking is resumed once nothing is
// left above it.
func (m *Instance) pop(id ActionID) {
	i := slices.Index(m.stack, id)
	if i < 0 {
		m.reportDefect(NewDefectError(ErrCodeDoublePop, id.String()+" popped but not on stack"))
		return
	}
	m.stack = slices.Delete(m.stack, i, i+1)
	if err := m.arena.release(id); err != nil {
		m.reportDefect(err)
		return
	}
	for j, other := range m.stack {
		a, ok := m.arena.get(other)
		if !ok || a.blockedBy != id {
			continue
		}
		if j < len(m.stack)-1 {
			// Work queued by the popped action is still above; wait for it.
			a.blockedBy = m.stack[j+1]
			continue
		}
		a.blockedBy = ActionID{}
		if a.status == StatusSuspended {
			if err := a.resume(); err != nil {
				m.reportDefect(err)
			}
		}
	}
}

// finish records the result of running an action. Terminal results pop
// the action; a result reported while suspended is restored on resume.
func (m *Instance) finish(a *Action, result Status) {
	if result.Terminal() {
		if a.status == StatusSuspended {
			a.saved = StatusNew
		}
		if err := a.setStatus(result); err != nil {
			m.reportDefect(err)
		}
		if result == StatusFailed {
			actionFailuresTotal.Inc()
			m.log.Error("action failed",
				"machine", m.fullName,
				"action", a.work.String(),
				"error", a.err)
		}
		m.pop(a.id)
		return
	}
	if a.status == StatusSuspended {
		a.saved = result
		return
	}
	if err := a.setStatus(result); err != nil {
		m.reportDefect(err)
	}
}

// runStack drives the stack until the top action is waiting or the stack
// is empty. NeedsRetry actions run at most once per call.
func (m *Instance) runStack() {
	retried := map[ActionID]bool{}
	for {
		a := m.top()
		if a == nil {
			return
		}
		switch a.status {
		case StatusNew, StatusNeedsRetry:
			if a.status == StatusNeedsRetry && retried[a.id] {
				return
			}
			if err := a.setStatus(StatusRunning); err != nil {
				m.reportDefect(err)
				m.pop(a.id)
				continue
			}
			result := a.work.Execute(a)
			if a.released {
				// The work cleared the stack, for example by disabling
				// its own machine.
				continue
			}
			if result == StatusNeedsRetry {
				retried[a.id] = true
			}
			m.finish(a, result)
		case StatusRunning:
			w, ok := a.work.(Waiter)
			if !ok {
				return
			}
			result := w.CheckComplete(a)
			if a.released {
				continue
			}
			if result == StatusRunning {
				return
			}
			if result == StatusNeedsRetry {
				retried[a.id] = true
			}
			m.finish(a, result)
		case StatusComplete, StatusFailed:
			m.pop(a.id)
		default:
			// Suspended with nothing above it: wait for a resume.
			return
		}
	}
}

// clearActions empties the stack, disabling every trigger it holds.
func (m *Instance) clearActions() {
	for i := len(m.stack) - 1; i >= 0; i-- {
		id := m.stack[i]
		if err := m.arena.release(id); err != nil {
			m.reportDefect(err)
		}
	}
	m.stack = m.stack[:0]
}

// fireMatching latches every stack trigger waiting for event.
func (m *Instance) fireMatching(event string) int {
	fired := 0
	for _, id := range m.stack {
		a, ok := m.arena.get(id)
		if !ok || a.trigger == nil {
			continue
		}
		if a.trigger.Matches(event) && a.trigger.Fire() {
			m.log.Debug("trigger fired", "machine", m.fullName, "trigger", event, "action", a.work.String())
			fired++
		}
	}
	return fired
}

func (m *Instance) reportDefect(err error) {
	defectsTotal.Inc()
	m.log.Error("execution stack defect", "machine", m.fullName, "defect", true, "error", err)
}
