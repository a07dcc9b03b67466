package machine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/clockwork/internal/ir"
)

func (r *Registry) machine(name string) (*Instance, error) {
	m := r.Lookup(name)
	if m == nil {
		return nil, newError(ErrCodeUnknownMachine, name, "no machine %q", name)
	}
	return m, nil
}

// GetMachineValue reads a property of a machine; an empty property reads
// its state.
func (r *Registry) GetMachineValue(name, property string) (ir.Value, error) {
	m, err := r.machine(name)
	if err != nil {
		return nil, err
	}
	if property == "" {
		return ir.String(m.state), nil
	}
	v, ok := m.GetValue(property)
	if !ok {
		return nil, newError(ErrCodeInvalidValue, m.fullName, "no property %q", property)
	}
	return v, nil
}

// SetMachineState moves a machine to state. A busy machine gets the
// change pushed as an action rather than applied in the middle of its
// current work.
func (r *Registry) SetMachineState(name, state string) error {
	m, err := r.machine(name)
	if err != nil {
		return err
	}
	if !m.class.HasState(state) {
		return newError(ErrCodeUnknownState, m.fullName, "%q is not a state of %s", state, m.class.Name)
	}
	if m.Executing() || m.mailbox.Len() > 0 {
		m.Push(&moveState{state: state})
		return nil
	}
	return m.SetState(state)
}

// SetProperty writes a property of a machine.
func (r *Registry) SetProperty(name, property string, v ir.Value) error {
	m, err := r.machine(name)
	if err != nil {
		return err
	}
	return m.SetValue(property, v)
}

// EnableMachine enables a machine by name.
func (r *Registry) EnableMachine(name string) error {
	m, err := r.machine(name)
	if err != nil {
		return err
	}
	m.Enable()
	return nil
}

// DisableMachine disables a machine by name.
func (r *Registry) DisableMachine(name string) error {
	m, err := r.machine(name)
	if err != nil {
		return err
	}
	m.Disable()
	return nil
}

// ResumeMachine resumes a machine, in state when it is not empty.
func (r *Registry) ResumeMachine(name, state string) error {
	m, err := r.machine(name)
	if err != nil {
		return err
	}
	if state == "" {
		m.Resume()
		return nil
	}
	return m.ResumeAt(state)
}

// AddMachineData appends values to a LIST machine.
func (r *Registry) AddMachineData(name string, values ...ir.Value) error {
	m, err := r.machine(name)
	if err != nil {
		return err
	}
	if m.kind != KindList {
		return newError(ErrCodeInvalidValue, m.fullName, "%s is not a list", m.fullName)
	}
	for _, v := range values {
		m.AddParameter(v)
	}
	return nil
}

// SendMachineMessage delivers msg to a machine from an external source.
// Only public messages (commands and transition triggers) are accepted.
func (r *Registry) SendMachineMessage(name, msg string) error {
	m, err := r.machine(name)
	if err != nil {
		return err
	}
	r.send(Package{
		Kind:       PackageMessage,
		Sender:     NoID,
		Target:     m.id,
		TargetName: m.fullName,
		Message:    msg,
	})
	return nil
}

// ToggleMachine flips a machine between on and off, through turnOn or
// turnOff when it receives them and by setting the state otherwise.
func (r *Registry) ToggleMachine(name string) error {
	m, err := r.machine(name)
	if err != nil {
		return err
	}
	if !m.enabled {
		return newError(ErrCodeDisabled, m.fullName, "%s is disabled", m.fullName)
	}
	var msg, state string
	switch m.state {
	case StateOn:
		msg, state = "turnOff", StateOff
	case StateOff:
		msg, state = "turnOn", StateOn
	default:
		return newError(ErrCodeInvalidValue, m.fullName, "%s is neither on nor off", m.fullName)
	}
	if m.receives(msg, nil) {
		return r.SendMachineMessage(m.fullName, msg)
	}
	return r.SetMachineState(m.fullName, state)
}

// DescribeMachine returns Instance.Describe for a machine.
func (r *Registry) DescribeMachine(name string) (string, error) {
	m, err := r.machine(name)
	if err != nil {
		return "", err
	}
	return m.Describe(), nil
}

// Command runs one operator command line:
//
//	GET m [property]
//	SET m TO state
//	SET m.property TO value
//	ENABLE m
//	DISABLE m
//	RESUME m [AT state]
//	DESCRIBE m
//	DATA list value...
//	SEND m.message
//	SEND message TO m
//	TOGGLE m
//
// Every command but GET and DESCRIBE answers "OK".
func (r *Registry) Command(line string) (string, error) {
	words := strings.Fields(line)
	if len(words) < 2 {
		return "", fmt.Errorf("command %q: missing machine", line)
	}
	verb, name := strings.ToUpper(words[0]), words[1]
	args := words[2:]

	switch verb {
	case "GET":
		prop := ""
		if len(args) > 0 {
			prop = args[0]
		}
		v, err := r.GetMachineValue(name, prop)
		if err != nil {
			return "", err
		}
		return v.String(), nil
	case "SET":
		if len(args) < 2 || !strings.EqualFold(args[0], "TO") {
			return "", fmt.Errorf("command %q: expected SET <machine> TO <value>", line)
		}
		value := strings.Join(args[1:], " ")
		if head, prop, ok := ir.SplitName(name); ok && r.Lookup(name) == nil {
			if err := r.SetProperty(head, prop, ParseValue(value)); err != nil {
				return "", err
			}
			return "OK", nil
		}
		if err := r.SetMachineState(name, value); err != nil {
			return "", err
		}
		return "OK", nil
	case "ENABLE":
		return okOr(r.EnableMachine(name))
	case "DISABLE":
		return okOr(r.DisableMachine(name))
	case "RESUME":
		state := ""
		if len(args) == 2 && strings.EqualFold(args[0], "AT") {
			state = args[1]
		} else if len(args) != 0 {
			return "", fmt.Errorf("command %q: expected RESUME <machine> [AT <state>]", line)
		}
		return okOr(r.ResumeMachine(name, state))
	case "DESCRIBE":
		return r.DescribeMachine(name)
	case "DATA":
		if len(args) == 0 {
			return "", fmt.Errorf("command %q: expected DATA <list> <value>...", line)
		}
		values := make([]ir.Value, len(args))
		for i, a := range args {
			values[i] = ParseValue(a)
		}
		return okOr(r.AddMachineData(name, values...))
	case "SEND":
		switch {
		case len(args) == 2 && strings.EqualFold(args[0], "TO"):
			return okOr(r.SendMachineMessage(args[1], name))
		case len(args) == 0:
			i := strings.LastIndex(name, ".")
			if i <= 0 || i == len(name)-1 {
				return "", fmt.Errorf("command %q: expected SEND <machine>.<message>", line)
			}
			return okOr(r.SendMachineMessage(name[:i], name[i+1:]))
		}
		return "", fmt.Errorf("command %q: expected SEND <machine>.<message> or SEND <message> TO <machine>", line)
	case "TOGGLE":
		return okOr(r.ToggleMachine(name))
	}
	return "", fmt.Errorf("unknown command %q", words[0])
}

func okOr(err error) (string, error) {
	if err != nil {
		return "", err
	}
	return "OK", nil
}

// ParseValue interprets operator text: integers, true and false, and
// quoted or bare strings.
func ParseValue(s string) ir.Value {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.Int(n)
	}
	switch s {
	case "true", "TRUE":
		return ir.Bool(true)
	case "false", "FALSE":
		return ir.Bool(false)
	case "null", "NULL":
		return ir.Null{}
	}
	if unq, err := strconv.Unquote(s); err == nil {
		return ir.String(unq)
	}
	return ir.String(s)
}
