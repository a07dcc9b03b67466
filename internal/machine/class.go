package machine

import (
	"fmt"
	"slices"

	"github.com/roach88/clockwork/internal/ir"
)

// State names with fixed meaning.
const (
	StateInit     = "INIT"
	StateOn       = "on"
	StateOff      = "off"
	StateEmpty    = "empty"
	StateNonEmpty = "nonempty"
	StateAssigned = "ASSIGNED"
	StateUnset    = "EMPTY"
	StateReady    = "ready"

	// AnyState as a transition source matches every state.
	AnyState = "ANY"

	// Reserved property names.
	PropState      = "STATE"
	PropValue      = "VALUE"
	PropPersistent = "PERSISTENT"
)

// Transition moves an instance from Source to Dest when Trigger arrives
// and Condition, if any, holds.
type Transition struct {
	Source    string
	Dest      string
	Trigger   string
	Condition Expr
}

// HandlerKind distinguishes subcondition handlers.
type HandlerKind int

const (
	// HandlerCommand runs a command once when its condition rises.
	HandlerCommand HandlerKind = iota
	// HandlerFlag drives a FLAG machine on or off with its condition.
	HandlerFlag
)

// ConditionHandler is a subcondition evaluated while its stable state is
// the current state.
type ConditionHandler struct {
	Kind      HandlerKind
	Condition Expr
	Command   string
	Flag      string
}

// StableState is a state the instance should hold whenever Condition is
// true. UsesTimer and TimerValue are derived from the condition's timer
// clauses when the class is defined.
type StableState struct {
	Name          string
	Condition     Expr
	UsesTimer     bool
	TimerValue    Expr
	Subconditions []ConditionHandler
}

// NewStableState builds a stable state and derives its timer fields.
func NewStableState(name string, cond Expr, subs ...ConditionHandler) StableState {
	ss := StableState{Name: name, Condition: cond, Subconditions: subs}
	if clauses := TimerClauses(cond); len(clauses) > 0 {
		ss.UsesTimer = true
		ss.TimerValue = clauses[0].Limit
	}
	return ss
}

// Command is a named sequence of steps.
type Command struct {
	Name  string
	Steps []Step
}

// ParameterSpec declares a positional parameter of a class.
type ParameterSpec struct {
	Name     string
	Defaults map[string]ir.Value
}

// LocalSpec declares an owned sub-instance.
type LocalSpec struct {
	Name   string
	Class  string
	Params []ir.Value
}

// Class is the immutable template shared by all instances of a kind.
// It is never mutated after Registry.DefineClass.
type Class struct {
	Name         string
	Kind         InstanceKind
	States       []string
	InitialState string
	Transitions  []Transition
	StableStates []StableState
	Commands     map[string]Command
	Receives     map[string]Command
	Parameters   []ParameterSpec
	Locals       []LocalSpec
	Options      map[string]ir.Value
	Exports      map[string]string
}

// HasState reports whether s is a legal state of the class.
func (c *Class) HasState(s string) bool {
	return slices.Contains(c.States, s)
}

// Initial returns the state entered on enable.
func (c *Class) Initial() string {
	if c.InitialState != "" {
		return c.InitialState
	}
	return StateInit
}

// StableState returns the stable state named s.
func (c *Class) StableState(s string) (*StableState, bool) {
	for i := range c.StableStates {
		if c.StableStates[i].Name == s {
			return &c.StableStates[i], true
		}
	}
	return nil, false
}

// normalize fills derived fields: the initial state and every stable
// state is a legal state.
func (c *Class) normalize() {
	add := func(s string) {
		if s != "" && !c.HasState(s) {
			c.States = append(c.States, s)
		}
	}
	add(c.Initial())
	for _, ss := range c.StableStates {
		add(ss.Name)
	}
	if c.Commands == nil {
		c.Commands = map[string]Command{}
	}
	if c.Receives == nil {
		c.Receives = map[string]Command{}
	}
	if c.Options == nil {
		c.Options = map[string]ir.Value{}
	}
	for i := range c.StableStates {
		ss := &c.StableStates[i]
		if clauses := TimerClauses(ss.Condition); len(clauses) > 0 && !ss.UsesTimer {
			ss.UsesTimer = true
			ss.TimerValue = clauses[0].Limit
		}
	}
}

// Validate checks the template for references to unknown states and
// duplicate declarations.
func (c *Class) Validate() []error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, NewConfigError(ErrCodeInvalidClass, c.Name, fmt.Sprintf(format, args...)))
	}
	if c.Name == "" {
		bad("class name is required")
	}
	seen := map[string]bool{}
	for _, s := range c.States {
		if seen[s] {
			bad("duplicate state %q", s)
		}
		seen[s] = true
	}
	for _, t := range c.Transitions {
		if t.Source != AnyState && !c.HasState(t.Source) {
			errs = append(errs, NewConfigError(ErrCodeUnknownState, c.Name,
				fmt.Sprintf("transition %q: unknown source state %q", t.Trigger, t.Source)))
		}
		if !c.HasState(t.Dest) {
			errs = append(errs, NewConfigError(ErrCodeUnknownState, c.Name,
				fmt.Sprintf("transition %q: unknown destination state %q", t.Trigger, t.Dest)))
		}
		if t.Trigger == "" {
			bad("transition %s -> %s has no trigger", t.Source, t.Dest)
		}
	}
	stable := map[string]bool{}
	for _, ss := range c.StableStates {
		if stable[ss.Name] {
			bad("duplicate stable state %q", ss.Name)
		}
		stable[ss.Name] = true
		if !c.HasState(ss.Name) {
			errs = append(errs, NewConfigError(ErrCodeUnknownState, c.Name,
				fmt.Sprintf("stable state %q is not a state", ss.Name)))
		}
		for _, h := range ss.Subconditions {
			if h.Kind == HandlerFlag && h.Flag == "" {
				bad("stable state %q: flag handler without a flag", ss.Name)
			}
			if h.Kind == HandlerCommand && h.Command == "" {
				bad("stable state %q: command handler without a command", ss.Name)
			}
		}
	}
	params := map[string]bool{}
	for _, p := range c.Parameters {
		if params[p.Name] {
			bad("duplicate parameter %q", p.Name)
		}
		params[p.Name] = true
	}
	return errs
}

// Built-in class names.
const (
	ClassList      = "LIST"
	ClassReference = "REFERENCE"
	ClassVariable  = "VARIABLE"
	ClassConstant  = "CONSTANT"
	ClassFlag      = "FLAG"
)

// BuiltinClasses returns fresh copies of the classes every registry knows.
func BuiltinClasses() []*Class {
	return []*Class{
		{
			Name:         ClassList,
			Kind:         KindList,
			States:       []string{StateEmpty, StateNonEmpty},
			InitialState: StateEmpty,
		},
		{
			Name:         ClassReference,
			Kind:         KindReference,
			States:       []string{StateUnset, StateAssigned},
			InitialState: StateUnset,
		},
		{
			Name:         ClassVariable,
			Kind:         KindVariable,
			States:       []string{StateReady},
			InitialState: StateReady,
			Options:      map[string]ir.Value{PropValue: ir.Int(0)},
		},
		{
			Name:         ClassConstant,
			Kind:         KindConstant,
			States:       []string{StateReady},
			InitialState: StateReady,
			Options:      map[string]ir.Value{PropValue: ir.Int(0)},
		},
		{
			Name:         ClassFlag,
			Kind:         KindMachine,
			States:       []string{StateOff, StateOn},
			InitialState: StateOff,
			Transitions: []Transition{
				{Source: StateOff, Dest: StateOn, Trigger: "turnOn"},
				{Source: StateOn, Dest: StateOff, Trigger: "turnOff"},
			},
		},
	}
}
