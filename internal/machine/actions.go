package machine

import (
	"fmt"
	"strings"
)

// sendMessage delivers one message; it is the reply queued for a caller
// that asked for one.
type sendMessage struct {
	message string
	target  ID
}

func (w *sendMessage) Execute(a *Action) Status {
	m := a.owner
	target := m.reg.Get(w.target)
	if target == nil {
		return a.Fail(newError(ErrCodeUnknownMachine, m.fullName, "reply %q: target is gone", w.message))
	}
	m.Send(target, w.message, false)
	return StatusComplete
}

func (w *sendMessage) String() string { return fmt.Sprintf("send %s", w.message) }

// commandWork runs the steps of a command in order. A step may finish at
// once, wait for a trigger, queue further actions above the command, or
// ask to be retried on the next poll.
type commandWork struct {
	cmd Command
	pc  int
}

func newCommandWork(cmd Command) *commandWork {
	return &commandWork{cmd: cmd}
}

func (w *commandWork) Execute(a *Action) Status {
	return w.advance(a)
}

// CheckComplete continues the command once the awaited trigger has fired
// or the actions queued by the previous step have completed.
func (w *commandWork) CheckComplete(a *Action) Status {
	if t := a.trigger; t != nil {
		if !t.Fired() {
			return StatusRunning
		}
		a.trigger = nil
		w.pc++
	}
	return w.advance(a)
}

func (w *commandWork) advance(a *Action) Status {
	m := a.owner
	for w.pc < len(w.cmd.Steps) {
		step := w.cmd.Steps[w.pc]
		result := step.run(a)
		if a.released {
			return StatusComplete
		}
		switch result {
		case StatusComplete:
			w.pc++
			if w.pc < len(w.cmd.Steps) && m.top() != a {
				return StatusRunning
			}
		case StatusRunning:
			if a.trigger == nil {
				// Queued work only; continue with the next step afterwards.
				w.pc++
			}
			return StatusRunning
		case StatusNeedsRetry:
			return StatusNeedsRetry
		case StatusFailed:
			if a.err == nil {
				a.err = fmt.Errorf("step %s failed", step)
			}
			return StatusFailed
		default:
			return a.Fail(NewDefectError(ErrCodeInvalidTransition, fmt.Sprintf("step %s returned %s", step, result)))
		}
	}
	return StatusComplete
}

func (w *commandWork) String() string {
	if w.pc < len(w.cmd.Steps) {
		return fmt.Sprintf("%s[%d] %s", w.cmd.Name, w.pc, w.cmd.Steps[w.pc])
	}
	return w.cmd.Name
}

// describeSteps renders a command body for Describe.
func describeSteps(steps []Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}
