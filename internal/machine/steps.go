package machine

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/clockwork/internal/ir"
)

// Step is one statement of a command. run returns Complete to continue
// with the next step, Running after installing a trigger with
// Action.Await, NeedsRetry to be run again on the next poll, or Failed.
type Step interface {
	run(a *Action) Status
	String() string
}

// stepTarget resolves a machine named by a step; an empty name is the
// command's own machine.
func stepTarget(a *Action, name string) (*Instance, error) {
	if name == "" {
		return a.owner, nil
	}
	t := a.owner.lookup(name)
	if t == nil {
		return nil, newError(ErrCodeUnknownMachine, a.owner.fullName, "no machine %q", name)
	}
	return t, nil
}

// SetStateStep moves a machine to State. For another machine a set-state
// package is sent and the step waits for "<machine>.<state>_enter".
type SetStateStep struct {
	Machine string
	State   string
}

func (s SetStateStep) run(a *Action) Status {
	m := a.owner
	target, err := stepTarget(a, s.Machine)
	if err != nil {
		return a.Fail(err)
	}
	if !target.class.HasState(s.State) {
		return a.Fail(newError(ErrCodeUnknownState, target.fullName, "%q is not a state of %s", s.State, target.class.Name))
	}
	if target == m {
		return m.setState(s.State, false)
	}
	if target.state == s.State {
		return StatusComplete
	}
	if !target.enabled {
		return a.Fail(newError(ErrCodeDisabled, m.fullName, "cannot set state of disabled machine %s", target.fullName))
	}
	m.reg.Link(m, target)
	a.Await(ir.Qualify(target.name, s.State+"_enter"))
	m.reg.send(Package{
		Kind:       PackageSetState,
		Sender:     m.id,
		SenderName: m.fullName,
		Target:     target.id,
		TargetName: target.fullName,
		Message:    s.State,
	})
	return StatusRunning
}

func (s SetStateStep) String() string {
	if s.Machine == "" {
		return "SET SELF TO " + s.State
	}
	return fmt.Sprintf("SET %s TO %s", s.Machine, s.State)
}

// SetValueStep assigns the value of an expression to a property.
type SetValueStep struct {
	Property string
	Value    Expr
}

func (s SetValueStep) run(a *Action) Status {
	v, err := a.owner.Eval(s.Value)
	if err != nil {
		return a.Fail(err)
	}
	if err := a.owner.SetValue(s.Property, v); err != nil {
		return a.Fail(err)
	}
	return StatusComplete
}

func (s SetValueStep) String() string { return fmt.Sprintf("SET %s TO %s", s.Property, s.Value) }

// SendStep sends a message without waiting. An empty Target broadcasts.
type SendStep struct {
	Message string
	Target  string
}

func (s SendStep) run(a *Action) Status {
	m := a.owner
	if s.Target == "" {
		m.Send(nil, s.Message, false)
		return StatusComplete
	}
	target, err := stepTarget(a, s.Target)
	if err != nil {
		return a.Fail(err)
	}
	m.Send(target, s.Message, false)
	return StatusComplete
}

func (s SendStep) String() string {
	if s.Target == "" {
		return "SEND " + s.Message
	}
	return fmt.Sprintf("SEND %s TO %s", s.Message, s.Target)
}

// CallStep sends a message that requires a reply and waits for
// "<target>.<message>_done". Calling a disabled machine fails at once.
type CallStep struct {
	Message string
	Target  string
}

func (s CallStep) run(a *Action) Status {
	m := a.owner
	target, err := stepTarget(a, s.Target)
	if err != nil {
		return a.Fail(err)
	}
	if target == m {
		m.Execute(s.Message)
		return StatusComplete
	}
	if !target.enabled {
		m.log.Warn("call to disabled machine", "machine", m.fullName, "target", target.fullName, "message", s.Message)
		return a.Fail(newError(ErrCodeDisabled, m.fullName, "call %s to disabled machine %s", s.Message, target.fullName))
	}
	m.reg.Link(m, target)
	a.Await(ir.Qualify(target.name, ir.ShortName(s.Message)) + "_done")
	m.Send(target, s.Message, true)
	return StatusRunning
}

func (s CallStep) String() string { return fmt.Sprintf("CALL %s ON %s", s.Message, s.Target) }

// WaitStep waits for a number of milliseconds.
type WaitStep struct {
	Millis Expr
}

func (s WaitStep) run(a *Action) Status {
	m := a.owner
	v, err := m.Eval(s.Millis)
	if err != nil {
		return a.Fail(err)
	}
	ms, ok := ir.AsInt(v)
	if !ok {
		return a.Fail(newError(ErrCodeNotNumeric, m.fullName, "wait time %q is not numeric", v))
	}
	if ms <= 0 {
		return StatusComplete
	}
	t := a.Await(ir.Qualify(m.name, "wait"))
	m.reg.scheduleTrigger(time.Duration(ms)*time.Millisecond, t)
	return StatusRunning
}

func (s WaitStep) String() string { return fmt.Sprintf("WAIT %s", s.Millis) }

// WaitForStep holds the command until Condition is true, re-checking it
// on every poll.
type WaitForStep struct {
	Condition Expr
}

func (s WaitForStep) run(a *Action) Status {
	ok, err := a.owner.evalBool(s.Condition)
	if err != nil {
		return a.Fail(err)
	}
	if ok {
		return StatusComplete
	}
	return StatusNeedsRetry
}

func (s WaitForStep) String() string { return fmt.Sprintf("WAITFOR %s", s.Condition) }

// EnableStep enables a machine.
type EnableStep struct{ Machine string }

func (s EnableStep) run(a *Action) Status {
	target, err := stepTarget(a, s.Machine)
	if err != nil {
		return a.Fail(err)
	}
	target.Enable()
	return StatusComplete
}

func (s EnableStep) String() string { return "ENABLE " + s.Machine }

// DisableStep disables a machine.
type DisableStep struct{ Machine string }

func (s DisableStep) run(a *Action) Status {
	target, err := stepTarget(a, s.Machine)
	if err != nil {
		return a.Fail(err)
	}
	target.Disable()
	return StatusComplete
}

func (s DisableStep) String() string { return "DISABLE " + s.Machine }

// ResumeStep resumes a machine, optionally in a given state.
type ResumeStep struct {
	Machine string
	State   string
}

func (s ResumeStep) run(a *Action) Status {
	target, err := stepTarget(a, s.Machine)
	if err != nil {
		return a.Fail(err)
	}
	if s.State == "" {
		target.Resume()
		return StatusComplete
	}
	if err := target.ResumeAt(s.State); err != nil {
		return a.Fail(err)
	}
	return StatusComplete
}

func (s ResumeStep) String() string {
	if s.State == "" {
		return "RESUME " + s.Machine
	}
	return fmt.Sprintf("RESUME %s AT %s", s.Machine, s.State)
}

// LogStep writes the value of an expression to the log.
type LogStep struct{ Value Expr }

func (s LogStep) run(a *Action) Status {
	m := a.owner
	v, err := m.Eval(s.Value)
	if err != nil {
		return a.Fail(err)
	}
	m.log.Info("machine log", "machine", m.fullName, "state", m.state, "text", v.String())
	return StatusComplete
}

func (s LogStep) String() string { return fmt.Sprintf("LOG %s", s.Value) }

// AppendStep adds an item to a list. A symbol naming a machine adds the
// machine itself.
type AppendStep struct {
	List string
	Item Expr
}

func (s AppendStep) run(a *Action) Status {
	m := a.owner
	list, err := containerTarget(a, s.List)
	if err != nil {
		return a.Fail(err)
	}
	if sym, ok := s.Item.(Sym); ok {
		if item := m.lookup(sym.Name); item != nil && item != m {
			list.AddMachine(item)
			return StatusComplete
		}
	}
	v, err := m.Eval(s.Item)
	if err != nil {
		return a.Fail(err)
	}
	list.AddParameter(v)
	return StatusComplete
}

func (s AppendStep) String() string { return fmt.Sprintf("APPEND %s TO %s", s.Item, s.List) }

// TakeStep removes the first or last item of a list into a property. An
// empty list stores null.
type TakeStep struct {
	List     string
	Property string
	Last     bool
}

func (s TakeStep) run(a *Action) Status {
	list, err := containerTarget(a, s.List)
	if err != nil {
		return a.Fail(err)
	}
	v, ok := list.Take(s.Last)
	if !ok {
		v = ir.Null{}
	}
	if err := a.owner.SetValue(s.Property, v); err != nil {
		return a.Fail(err)
	}
	return StatusComplete
}

func (s TakeStep) String() string {
	end := "FIRST"
	if s.Last {
		end = "LAST"
	}
	return fmt.Sprintf("TAKE %s FROM %s INTO %s", end, s.List, s.Property)
}

// IntersectStep replaces Dest with the items of the first source that are
// present in every other source.
type IntersectStep struct {
	Dest    string
	Sources []string
}

func (s IntersectStep) run(a *Action) Status {
	dest, err := containerTarget(a, s.Dest)
	if err != nil {
		return a.Fail(err)
	}
	var sources []*Instance
	for _, name := range s.Sources {
		src, err := containerTarget(a, name)
		if err != nil {
			return a.Fail(err)
		}
		sources = append(sources, src)
	}
	var keep []Parameter
	if len(sources) > 0 {
		for _, p := range sources[0].params {
			v := dest.reg.paramValue(p)
			in := true
			for _, src := range sources[1:] {
				if !src.Contains(v) {
					in = false
					break
				}
			}
			if in && !containsParam(keep, dest, v) {
				keep = append(keep, p)
			}
		}
	}
	dest.clearParams()
	for _, p := range keep {
		dest.params = append(dest.params, p)
		if item := dest.reg.Get(p.Machine); item != nil {
			dest.reg.Link(dest, item)
		}
	}
	dest.membershipChanged()
	return StatusComplete
}

func (s IntersectStep) String() string {
	return fmt.Sprintf("%s := INTERSECT %s", s.Dest, strings.Join(s.Sources, ", "))
}

func containsParam(ps []Parameter, m *Instance, v ir.Value) bool {
	for _, p := range ps {
		if ir.Equal(m.reg.paramValue(p), v) {
			return true
		}
	}
	return false
}

func containerTarget(a *Action, name string) (*Instance, error) {
	list, err := stepTarget(a, name)
	if err != nil {
		return nil, err
	}
	if !list.kind.container() {
		return nil, newError(ErrCodeInvalidValue, a.owner.fullName, "%s is not a list", list.fullName)
	}
	return list, nil
}
