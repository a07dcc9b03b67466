package machine

import (
	"fmt"

	"github.com/roach88/clockwork/internal/ir"
)

// Idle drives the instance for one poll: it runs the action stack until
// the top is waiting, then hands queued packages, one at a time, to the
// message path. A package arriving while an action waits is pushed above
// it, so an awaited reply can reach the waiting action.
func (m *Instance) Idle() {
	if m.removed {
		return
	}
	if m.timerPending.Swap(false) {
		m.needsCheck++
	}
	if m.errorState == 0 {
		m.runStack()
	}
	n := m.mailbox.Len()
	for i := 0; i < n; i++ {
		p, ok := m.mailbox.TryDequeue()
		if !ok {
			return
		}
		m.handle(p)
		if m.errorState == 0 {
			m.runStack()
		}
	}
}

// handle accepts or drops one dequeued package.
func (m *Instance) handle(p Package) {
	if p.Kind == PackageTimer {
		m.needsCheck++
		return
	}
	if !m.enabled {
		if p.NeedsReply {
			err := newError(ErrCodeReplyLost, m.fullName, "%q from %s requires a reply but the machine is disabled", p.Message, p.SenderName)
			m.log.Error("message to disabled machine", "machine", m.fullName, "message", p.Message, "sender", p.SenderName, "error", err)
		} else {
			m.log.Debug("message to disabled machine dropped", "machine", m.fullName, "message", p.Message)
		}
		packagesDropped.WithLabelValues("disabled").Inc()
		return
	}

	if p.Kind == PackageSetState {
		m.Push(&moveState{state: p.Message})
		return
	}

	from := m.reg.Get(p.Sender)
	if !m.receives(p.Message, from) {
		m.log.Debug("message not accepted", "machine", m.fullName, "message", p.Message, "sender", p.SenderName)
		packagesDropped.WithLabelValues("not_accepted").Inc()
		return
	}
	m.Push(&handleMessage{pkg: p})
}

// receives reports whether a message from sender is accepted: the sender
// is the instance itself or one it listens to, or the message is a public
// command or transition trigger. A nil sender is an external source.
func (m *Instance) receives(msg string, sender *Instance) bool {
	if sender == m {
		return true
	}
	if sender != nil && m.listensTo.has(sender.id) {
		return true
	}
	if _, ok := m.class.Commands[msg]; ok {
		return true
	}
	for _, t := range m.transitions {
		if t.Trigger == msg {
			return true
		}
	}
	return false
}

// Receives reports receive eligibility for msg from sender.
func (m *Instance) Receives(msg string, sender *Instance) bool { return m.receives(msg, sender) }

// eventName qualifies an unqualified message with its sender's name, the
// form triggers wait for.
func eventName(msg string, sender *Instance) string {
	if _, _, dotted := ir.SplitName(msg); dotted || sender == nil {
		return msg
	}
	return ir.Qualify(sender.name, msg)
}

// observe fires triggers waiting for event without running any handler.
// Dependents observe leave and enter events as soon as they are sent.
func (m *Instance) observe(event string) {
	if m.enabled {
		m.fireMatching(event)
	}
}

// findHandler resolves the work for an accepted message, in execution
// order. Most specific first:
//
//  1. a transition for the message in the current state (or ANY) whose
//     guard holds; with a same-named command the command runs first and
//     the move follows only if the destination's stable state holds
//  2. a command of that name (unqualified messages only)
//  3. a receive handler for the full text, then for the short form
//
// A requested reply is sent after the rest of the work completes.
func (m *Instance) findHandler(msg string, sender *Instance, needsReply bool) []Work {
	short := ir.ShortName(msg)
	var works []Work
	reply := func(trigger string) {
		if needsReply && sender != nil && sender != m {
			works = append(works, &sendMessage{
				message: ir.Qualify(m.name, trigger) + "_done",
				target:  sender.id,
			})
		}
	}

	if sender == m || short == msg {
		for _, t := range m.transitions {
			if t.Trigger != short || !m.sourceMatches(t.Source) || !m.guard(t) {
				continue
			}
			if cmd, ok := m.class.Commands[t.Trigger]; ok {
				works = append(works, newCommandWork(cmd), &moveIfStable{state: t.Dest})
			} else {
				works = append(works, &moveState{state: t.Dest})
			}
			reply(t.Trigger)
			return works
		}
		if cmd, ok := m.class.Commands[short]; ok {
			works = append(works, newCommandWork(cmd))
			reply(short)
			return works
		}
	} else {
		for _, t := range m.transitions {
			if (t.Trigger == msg || t.Trigger == short) && m.sourceMatches(t.Source) && m.guard(t) {
				works = append(works, &moveState{state: t.Dest})
				reply(short)
				return works
			}
		}
	}

	if cmd, ok := m.receiveHandlers[msg]; ok {
		return append(works, newCommandWork(cmd))
	}
	if sender == m && short != msg {
		if cmd, ok := m.receiveHandlers[short]; ok {
			return append(works, newCommandWork(cmd))
		}
	}
	return nil
}

func (m *Instance) sourceMatches(source string) bool {
	return source == AnyState || source == m.state
}

func (m *Instance) guard(t Transition) bool {
	ok, err := m.evalBool(t.Condition)
	if err != nil {
		m.log.Warn("transition guard skipped", "machine", m.fullName, "trigger", t.Trigger, "error", err)
		return false
	}
	return ok
}

// Send delivers msg from this instance to target through the dispatcher.
func (m *Instance) Send(target *Instance, msg string, needsReply bool) {
	p := Package{
		Sender:     m.id,
		SenderName: m.fullName,
		Message:    msg,
		NeedsReply: needsReply,
	}
	if target == nil {
		p.Broadcast = true
	} else {
		p.Target = target.id
		p.TargetName = target.fullName
	}
	m.reg.send(p)
}

// notifyDependents lets every eligible dependent observe event at once
// and queues the event for their handlers.
func (m *Instance) notifyDependents(event string) {
	for _, dep := range m.Dependents() {
		if !dep.receives(event, m) {
			continue
		}
		dep.observe(event)
		m.Send(dep, event, false)
	}
}

// handleMessage is the work queued for an accepted package: it fires the
// triggers waiting for the message and queues the resolved handler.
type handleMessage struct {
	pkg Package
}

func (h *handleMessage) Execute(a *Action) Status {
	m := a.owner
	sender := m.reg.Get(h.pkg.Sender)
	event := eventName(h.pkg.Message, sender)
	m.fireMatching(event)
	if event != h.pkg.Message {
		m.fireMatching(h.pkg.Message)
	}
	works := m.findHandler(h.pkg.Message, sender, h.pkg.NeedsReply)
	if len(works) == 0 {
		m.log.Debug("no handler", "machine", m.fullName, "message", h.pkg.Message)
		if h.pkg.NeedsReply && sender != nil && sender != m {
			// The caller is still owed its reply.
			works = append(works, &sendMessage{
				message: ir.Qualify(m.name, ir.ShortName(h.pkg.Message)) + "_done",
				target:  sender.id,
			})
		} else {
			return StatusComplete
		}
	}
	m.pushInOrder(works)
	return StatusComplete
}

func (h *handleMessage) String() string {
	return fmt.Sprintf("handle %s", h.pkg.Message)
}

// Execute runs msg on the instance as if it had sent it to itself.
func (m *Instance) Execute(msg string) {
	m.pushInOrder(m.findHandler(msg, m, false))
}
