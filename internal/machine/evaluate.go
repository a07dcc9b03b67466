package machine

// EvaluateStableState decides which stable state the instance should be
// in and moves there. It reports whether an evaluation ran.
//
// Evaluation is skipped while the instance is disabled, has work on its
// stack or packages in its mailbox. The dirty counter is cleared first, so
// changes made during evaluation flag the instance again.
func (m *Instance) EvaluateStableState() bool {
	if !m.enabled || m.removed || m.Executing() || m.mailbox.Len() > 0 {
		return false
	}
	m.needsCheck = 0
	m.evaluations++
	evaluationsTotal.Inc()

	switch m.kind {
	case KindList:
		m.evaluateContainer(len(m.params) > 0, StateNonEmpty, StateEmpty)
	case KindReference:
		m.evaluateContainer(len(m.params) > 0, StateAssigned, StateUnset)
	case KindShadow, KindChannel:
		return true
	}
	if len(m.stable) == 0 {
		return true
	}

	winner := -1
	for i, ss := range m.stable {
		ok, err := m.evalBool(ss.tmpl.Condition)
		if err != nil {
			m.log.Warn("stable state skipped", "machine", m.fullName, "state", ss.tmpl.Name, "error", err)
			ss.lastResult = false
			continue
		}
		ss.lastResult = ok
		if ok {
			winner = i
			break
		}
	}

	for i, ss := range m.stable {
		if i == winner {
			continue
		}
		for _, h := range ss.handlers {
			if h.tmpl.Kind == HandlerFlag {
				m.setFlag(h, false)
			}
		}
	}

	if winner >= 0 {
		ss := m.stable[winner]
		if ss.tmpl.Name != m.state {
			for _, h := range ss.handlers {
				h.reset()
			}
			if m.setState(ss.tmpl.Name, false) == StatusFailed {
				m.log.Warn("stable state move failed", "machine", m.fullName, "state", ss.tmpl.Name)
			}
			return true
		}
		for _, h := range ss.handlers {
			m.checkHandler(h)
		}
	}

	m.armTimers(false)
	return true
}

func (m *Instance) evaluateContainer(full bool, fullState, emptyState string) {
	want := emptyState
	if full {
		want = fullState
	}
	if m.state != want && m.class.HasState(want) {
		m.setState(want, false)
	}
}

// checkHandler runs a subcondition of the current stable state. Flags
// follow their condition; commands run once per state entry, when the
// condition first holds.
func (m *Instance) checkHandler(h *conditionHandler) {
	ok, err := m.evalBool(h.tmpl.Condition)
	if err != nil {
		m.log.Warn("subcondition skipped", "machine", m.fullName, "state", m.state, "error", err)
		return
	}
	if h.tmpl.Kind == HandlerFlag {
		m.setFlag(h, ok)
		return
	}
	if !ok || h.triggered {
		return
	}
	h.triggered = true
	h.timer.retire()
	m.log.Debug("subcondition triggered", "machine", m.fullName, "state", m.state, "command", h.tmpl.Command)
	m.pushInOrder(m.findHandler(h.tmpl.Command, m, false))
}

func (m *Instance) setFlag(h *conditionHandler, on bool) {
	flag := m.lookup(h.tmpl.Flag)
	if flag == nil || flag == m {
		m.log.Warn("unknown flag", "machine", m.fullName, "flag", h.tmpl.Flag)
		return
	}
	want := StateOff
	if on {
		want = StateOn
	}
	if flag.state == want || !flag.class.HasState(want) {
		return
	}
	flag.setState(want, false)
}
