package machine

import (
	"log/slog"
	"maps"
	"sync/atomic"
	"time"

	"github.com/roach88/clockwork/internal/ir"
)

// Parameter is a positional instance parameter: a value and, when the
// value names a machine, that machine's ID.
type Parameter struct {
	Value   ir.Value
	Machine ID
}

// stableState is the per-instance working copy of a class stable state.
type stableState struct {
	tmpl       *StableState
	clauses    []TimerClause
	usesTimer  bool
	timer      timerSlot
	lastResult bool
	handlers   []*conditionHandler
}

type conditionHandler struct {
	tmpl      *ConditionHandler
	clauses   []TimerClause
	usesTimer bool
	timer     timerSlot
	triggered bool
}

func (h *conditionHandler) reset() {
	h.timer.retire()
	h.triggered = false
}

// Instance is one machine: identity, current state, dependency sets,
// action stack and mailbox.
//
// Except for its mailbox, an Instance is not safe for concurrent use; it
// belongs to the registry's control thread.
type Instance struct {
	id       ID
	name     string
	fullName string
	owner    ID
	kind     InstanceKind
	class    *Class
	reg      *Registry
	log      *slog.Logger

	state      string
	enteredAt  time.Time
	disabledAt time.Time
	enabled    bool
	errorState int
	bound      bool
	removed    bool

	params       []Parameter
	paramNames   map[string]int
	locals       []ID
	localNames   map[string]ID
	props        map[string]ir.Value
	configErrors []error

	listensTo  idSet
	dependents idSet
	needsCheck int

	evaluations int

	stable          []*stableState
	transitions     []Transition
	receiveHandlers map[string]Command
	exports         map[string]string

	arena   arena
	stack   []ActionID
	mailbox *Mailbox

	// timerPending latches a trigger that fired while the mailbox was full.
	timerPending atomic.Bool
}

func newInstance(reg *Registry, id ID, name, fullName string, class *Class, owner ID, params []ir.Value) *Instance {
	m := &Instance{
		id:              id,
		name:            name,
		fullName:        fullName,
		owner:           owner,
		kind:            class.Kind,
		class:           class,
		reg:             reg,
		log:             reg.log,
		paramNames:      map[string]int{},
		localNames:      map[string]ID{},
		props:           maps.Clone(class.Options),
		transitions:     append([]Transition(nil), class.Transitions...),
		receiveHandlers: maps.Clone(class.Receives),
		exports:         maps.Clone(class.Exports),
		mailbox:         NewMailbox(reg.mailboxCapacity),
	}
	if m.props == nil {
		m.props = map[string]ir.Value{}
	}
	if m.receiveHandlers == nil {
		m.receiveHandlers = map[string]Command{}
	}
	for i, p := range class.Parameters {
		m.paramNames[p.Name] = i
	}
	for _, v := range params {
		m.params = append(m.params, Parameter{Value: v})
	}
	for i := range class.StableStates {
		tmpl := &class.StableStates[i]
		ss := &stableState{
			tmpl:    tmpl,
			clauses: TimerClauses(tmpl.Condition),
		}
		ss.usesTimer = tmpl.UsesTimer || len(ss.clauses) > 0
		for j := range tmpl.Subconditions {
			h := &conditionHandler{
				tmpl:    &tmpl.Subconditions[j],
				clauses: TimerClauses(tmpl.Subconditions[j].Condition),
			}
			h.usesTimer = len(h.clauses) > 0
			ss.handlers = append(ss.handlers, h)
		}
		m.stable = append(m.stable, ss)
	}
	return m
}

// ID returns the registry ID.
func (m *Instance) ID() ID { return m.id }

// Name returns the local name used in message prefixes.
func (m *Instance) Name() string { return m.name }

// FullName returns the registry name; locals are "<owner>.<local>".
func (m *Instance) FullName() string { return m.fullName }

// Kind returns the instance kind.
func (m *Instance) Kind() InstanceKind { return m.kind }

// Class returns the shared class template.
func (m *Instance) Class() *Class { return m.class }

// Owner returns the enclosing instance, or nil.
func (m *Instance) Owner() *Instance { return m.reg.Get(m.owner) }

// State returns the current state name.
func (m *Instance) State() string { return m.state }

// Enabled reports whether the instance is enabled.
func (m *Instance) Enabled() bool { return m.enabled }

// ErrorState returns the error code, 0 when healthy.
func (m *Instance) ErrorState() int { return m.errorState }

// SetError puts the instance into an error state; a non-zero error
// stops Idle from running actions until cleared with SetError(0).
func (m *Instance) SetError(code int) { m.errorState = code }

// NeedsCheck returns the dirty counter.
func (m *Instance) NeedsCheck() int { return m.needsCheck }

// Evaluations returns how many stable-state evaluations have completed.
func (m *Instance) Evaluations() int { return m.evaluations }

// ConfigErrors returns configuration errors recorded while binding.
func (m *Instance) ConfigErrors() []error { return append([]error(nil), m.configErrors...) }

// Mailbox returns the instance mailbox.
func (m *Instance) Mailbox() *Mailbox { return m.mailbox }

// Parameters returns a copy of the positional parameters.
func (m *Instance) Parameters() []Parameter { return append([]Parameter(nil), m.params...) }

// Locals returns the owned sub-instances in declaration order.
func (m *Instance) Locals() []*Instance {
	out := make([]*Instance, 0, len(m.locals))
	for _, id := range m.locals {
		if l := m.reg.Get(id); l != nil {
			out = append(out, l)
		}
	}
	return out
}

// Dependents returns the instances notified of this instance's changes.
func (m *Instance) Dependents() []*Instance { return m.reg.resolve(m.dependents.list()) }

// ListensTo returns the instances whose messages this instance accepts.
func (m *Instance) ListensTo() []*Instance { return m.reg.resolve(m.listensTo.list()) }

// EnteredAt returns when the current state was entered, shifted forward
// by any disabled interval.
func (m *Instance) EnteredAt() time.Time { return m.enteredAt }

// Elapsed returns time spent in the current state, excluding time spent
// disabled. A disabled instance's timer stands still.
func (m *Instance) Elapsed() time.Duration {
	if m.enteredAt.IsZero() {
		return 0
	}
	now := m.reg.clock.Now()
	if !m.enabled && !m.disabledAt.IsZero() {
		now = m.disabledAt
	}
	return now.Sub(m.enteredAt)
}

// TimerMillis returns Elapsed in whole milliseconds.
func (m *Instance) TimerMillis() int64 {
	return m.Elapsed().Milliseconds()
}

// Executing reports whether the action stack is non-empty.
func (m *Instance) Executing() bool { return len(m.stack) > 0 }

// HasPendingWork reports whether the next Idle has something to do
// immediately: queued packages or a top action that has not started.
func (m *Instance) HasPendingWork() bool {
	if m.mailbox.Len() > 0 || m.timerPending.Load() {
		return true
	}
	if top := m.top(); top != nil {
		return top.status == StatusNew
	}
	return false
}

// NeedsEvaluation reports whether the poller should evaluate stable
// states this pass.
func (m *Instance) NeedsEvaluation() bool {
	if !m.enabled || !m.kind.locallyEvaluated() {
		return false
	}
	return m.needsCheck > 0 || m.kind == KindCondition
}

// Actions returns a snapshot of the stack, bottom first.
func (m *Instance) Actions() []ActionInfo {
	out := make([]ActionInfo, 0, len(m.stack))
	for _, id := range m.stack {
		a, ok := m.arena.get(id)
		if !ok {
			continue
		}
		info := ActionInfo{ID: id, Description: a.work.String(), Status: a.status}
		if a.trigger != nil && a.trigger.Live() {
			info.Waiting = a.trigger.Name()
		}
		out = append(out, info)
	}
	return out
}

// LiveActions returns the number of allocated actions. It always equals
// the stack depth.
func (m *Instance) LiveActions() int { return m.arena.Live() }

// TimerTriggers returns the live timer triggers per stable state.
func (m *Instance) TimerTriggers() map[string]*Trigger {
	out := map[string]*Trigger{}
	for _, ss := range m.stable {
		if ss.timer.live() {
			out[ss.tmpl.Name] = ss.timer.trigger
		}
	}
	return out
}

func (m *Instance) addConfigError(err error) {
	m.configErrors = append(m.configErrors, err)
	m.reg.recordConfigError(err)
}
