package machine

import "time"

// Enable starts the instance. The first enable binds it and enters the
// initial state; enabling a disabled instance resumes it where it was.
// Locals are enabled with their owner.
func (m *Instance) Enable() {
	if m.removed || m.enabled {
		return
	}
	if !m.bound {
		m.reg.Bind(m)
	}
	if m.state != "" {
		m.Resume()
		return
	}
	m.enabled = true
	m.log.Info("machine enabled", "machine", m.fullName, "state", m.class.Initial())
	for _, l := range m.Locals() {
		l.Enable()
	}
	m.setInitialState()
}

func (m *Instance) setInitialState() {
	initial := m.class.Initial()
	if !m.class.HasState(initial) {
		m.addConfigError(NewConfigError(ErrCodeUnknownState, m.fullName, "initial state "+initial+" is not a state"))
		return
	}
	m.setState(initial, true)
}

// Disable stops the instance: the action stack and mailbox are cleared,
// timer triggers are disabled and the elapsed-state timer stops. Locals
// are disabled with their owner.
func (m *Instance) Disable() {
	if !m.enabled {
		return
	}
	m.clearActions()
	for _, p := range m.mailbox.Clear() {
		if p.NeedsReply {
			m.log.Error("message to disabled machine", "machine", m.fullName, "message", p.Message,
				"sender", p.SenderName, "error", newError(ErrCodeReplyLost, m.fullName, "%q dropped on disable", p.Message))
		}
		packagesDropped.WithLabelValues("disabled").Inc()
	}
	m.retireTimers()
	m.disabledAt = m.reg.clock.Now()
	m.enabled = false
	for _, l := range m.Locals() {
		l.Disable()
	}
	m.log.Info("machine disabled", "machine", m.fullName, "state", m.state)
	m.reg.propagate(m)
}

// Resume re-enables a disabled instance in its current state. The state
// entry time moves forward by the time spent disabled, so timer
// predicates see no time pass while disabled. Enter effects do not run
// again.
func (m *Instance) Resume() {
	if m.removed || m.enabled {
		return
	}
	if m.state == "" {
		m.Enable()
		return
	}
	if !m.disabledAt.IsZero() {
		m.enteredAt = m.enteredAt.Add(m.reg.clock.Now().Sub(m.disabledAt))
	}
	m.disabledAt = time.Time{}
	m.enabled = true
	for _, l := range m.Locals() {
		l.Resume()
	}
	m.log.Info("machine resumed", "machine", m.fullName, "state", m.state)
	m.armTimers(true)
	m.needsCheck++
	m.reg.propagate(m)
}

// ResumeAt resumes the instance and then moves it to state.
func (m *Instance) ResumeAt(state string) error {
	if !m.class.HasState(state) {
		return newError(ErrCodeUnknownState, m.fullName, "%q is not a state of %s", state, m.class.Name)
	}
	m.Resume()
	return m.SetState(state)
}
