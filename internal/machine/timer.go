package machine

import (
	"strings"
	"time"

	"github.com/roach88/clockwork/internal/ir"
)

// TimerSymbol is the pseudo-property holding whole milliseconds since the
// current state was entered.
const TimerSymbol = "TIMER"

// TimerClause is a comparison between a machine's TIMER and a limit.
// Clauses are normalized so the timer is on the left: "5 < TIMER" becomes
// "TIMER > 5".
type TimerClause struct {
	Op      Op
	Machine string // empty for the evaluating instance
	Limit   Expr
}

// TimerClauses returns every timer comparison inside e.
func TimerClauses(e Expr) []TimerClause {
	var out []TimerClause
	walkExpr(e, func(x Expr) {
		b, ok := x.(Binary)
		if !ok || !b.Op.comparison() {
			return
		}
		if machine, ok := timerRef(b.L); ok {
			out = append(out, TimerClause{Op: b.Op, Machine: machine, Limit: b.R})
			return
		}
		if machine, ok := timerRef(b.R); ok {
			out = append(out, TimerClause{Op: flip(b.Op), Machine: machine, Limit: b.L})
		}
	})
	return out
}

func timerRef(e Expr) (string, bool) {
	s, ok := e.(Sym)
	if !ok {
		return "", false
	}
	if s.Name == TimerSymbol {
		return "", true
	}
	if machine, ok := strings.CutSuffix(s.Name, "."+TimerSymbol); ok {
		return machine, true
	}
	return "", false
}

func flip(op Op) Op {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return op
}

func walkExpr(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch x := e.(type) {
	case Unary:
		walkExpr(x.X, fn)
	case Binary:
		walkExpr(x.L, fn)
		walkExpr(x.R, fn)
	case Cast:
		walkExpr(x.X, fn)
	case ListQuery:
		walkExpr(x.Arg, fn)
	}
}

// Wakes returns the elapsed millisecond values at which the clause's truth
// value changes. This is the boundary rule for every timer path:
//
//	TIMER >  N  changes at N+1
//	TIMER >= N  changes at N
//	TIMER <  N  changes at N
//	TIMER <= N  changes at N+1
//	TIMER == N  changes at N and N+1 (so does !=)
//
// so "TIMER > N" is false at N and true at N+1, and the expiry of
// "TIMER < N" is visible from N onward.
func (c TimerClause) Wakes(limit int64) []int64 {
	switch c.Op {
	case OpGt, OpLe:
		return []int64{limit + 1}
	case OpGe, OpLt:
		return []int64{limit}
	case OpEq, OpNe:
		return []int64{limit, limit + 1}
	}
	return nil
}

// timerSlot holds the single live timer trigger of a stable state or a
// subcondition handler.
type timerSlot struct {
	trigger *Trigger
	due     time.Time
}

func (s *timerSlot) retire() {
	if s.trigger != nil {
		s.trigger.Disable()
	}
	s.trigger = nil
	s.due = time.Time{}
}

func (s *timerSlot) live() bool {
	return s.trigger != nil && s.trigger.Live()
}

// nextWake computes when the earliest clause can next change. It reports
// false when no clause changes in the future. A limit that is not numeric
// is an evaluation error.
func (m *Instance) nextWake(clauses []TimerClause) (time.Time, bool, error) {
	var (
		best  time.Time
		found bool
	)
	for _, c := range clauses {
		owner := m
		if c.Machine != "" {
			owner = m.lookup(c.Machine)
			if owner == nil {
				return time.Time{}, false, newError(ErrCodeUnknownMachine, m.fullName, "timer of unknown machine %q", c.Machine)
			}
		}
		v, err := c.Limit.eval(m)
		if err != nil {
			return time.Time{}, false, err
		}
		limit, ok := ir.AsInt(v)
		if !ok {
			return time.Time{}, false, newError(ErrCodeNotNumeric, m.fullName, "timer value %q is not numeric", v)
		}
		elapsed := owner.TimerMillis()
		for _, w := range c.Wakes(limit) {
			if w <= elapsed {
				continue
			}
			due := owner.enteredAt.Add(time.Duration(w) * time.Millisecond)
			if !found || due.Before(best) {
				best, found = due, true
			}
		}
	}
	return best, found, nil
}

// armSlot keeps at most one live trigger in slot, scheduled for the next
// change of clauses.
func (m *Instance) armSlot(slot *timerSlot, clauses []TimerClause, label string) {
	if len(clauses) == 0 || !m.enabled {
		slot.retire()
		return
	}
	due, ok, err := m.nextWake(clauses)
	if err != nil {
		m.log.Warn("timer skipped", "machine", m.fullName, "state", label, "error", err)
		slot.retire()
		return
	}
	if !ok {
		slot.retire()
		return
	}
	if slot.live() && slot.due.Equal(due) {
		return
	}
	slot.retire()

	t := NewTrigger(ir.Qualify(m.name, label+".timer"))
	t.owner = m.id
	slot.trigger = t
	slot.due = due

	delay := due.Sub(m.reg.clock.Now())
	if delay < 0 {
		delay = 0
	}
	m.reg.scheduleTrigger(delay, t)
}

// armTimers re-arms every timer trigger of the instance: one per stable
// state whose predicate uses the timer, and one per timed subcondition of
// the current state. With reset set, existing triggers are retired first.
func (m *Instance) armTimers(reset bool) {
	for _, ss := range m.stable {
		if reset {
			ss.timer.retire()
			for _, h := range ss.handlers {
				h.timer.retire()
			}
		}
		if ss.usesTimer {
			m.armSlot(&ss.timer, ss.clauses, ss.tmpl.Name)
		}
		for _, h := range ss.handlers {
			if ss.tmpl.Name != m.state || h.triggered {
				h.timer.retire()
				continue
			}
			if h.usesTimer {
				m.armSlot(&h.timer, h.clauses, ss.tmpl.Name+".sub")
			}
		}
	}
}

func (m *Instance) retireTimers() {
	for _, ss := range m.stable {
		ss.timer.retire()
		for _, h := range ss.handlers {
			h.timer.retire()
		}
	}
}
