package machine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/ir"
)

func TestTimerClauses_Normalized(t *testing.T) {
	clauses := TimerClauses(And(
		Cmp(OpLt, L(5), S("TIMER")),
		Cmp(OpGe, S("pump.TIMER"), S("delay")),
		Cmp(OpEq, S("x"), L(1)),
	))
	require.Len(t, clauses, 2)

	assert.Equal(t, OpGt, clauses[0].Op)
	assert.Equal(t, "", clauses[0].Machine)
	assert.Equal(t, L(5), clauses[0].Limit)

	assert.Equal(t, OpGe, clauses[1].Op)
	assert.Equal(t, "pump", clauses[1].Machine)
	assert.Equal(t, S("delay"), clauses[1].Limit)
}

func TestTimerClause_Wakes(t *testing.T) {
	tests := []struct {
		op   Op
		want []int64
	}{
		{OpGt, []int64{101}},
		{OpGe, []int64{100}},
		{OpLt, []int64{100}},
		{OpLe, []int64{101}},
		{OpEq, []int64{100, 101}},
		{OpNe, []int64{100, 101}},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.want, TimerClause{Op: tt.op}.Wakes(100))
		})
	}
}

func TestNewStableState_DerivesTimer(t *testing.T) {
	ss := NewStableState("expired", Cmp(OpGt, S("TIMER"), L(100)))
	assert.True(t, ss.UsesTimer)
	assert.Equal(t, L(100), ss.TimerValue)

	plain := NewStableState("on", Cmp(OpEq, S("x"), L(1)))
	assert.False(t, plain.UsesTimer)
}

// timerClass leaves "waiting" for "expired" once more than 100ms have
// passed.
func timerClass() *Class {
	return &Class{
		Name:         "Delay",
		InitialState: "waiting",
		States:       []string{"waiting"},
		StableStates: []StableState{
			NewStableState("expired", And(Is{Machine: "SELF", State: "waiting"}, Cmp(OpGt, S("TIMER"), L(100)))),
		},
	}
}

func TestTimer_GreaterThanBoundary(t *testing.T) {
	f := newFixture(t)
	f.define(timerClass())
	m := f.create("delay", "Delay")
	f.reg.EnableAll()
	f.poll()

	require.Equal(t, "waiting", m.State())
	require.Len(t, m.TimerTriggers(), 1)

	// TIMER > 100 is false at exactly 100ms.
	f.sched.Advance(100 * time.Millisecond)
	m.needsCheck++
	f.poll()
	assert.Equal(t, int64(100), m.TimerMillis())
	assert.Equal(t, "waiting", m.State())

	// ...and true at 101ms, when the armed trigger fires.
	f.sched.Advance(time.Millisecond)
	f.poll()
	assert.Equal(t, "expired", m.State())
	assert.Equal(t, int64(0), m.TimerMillis())
}

func TestTimer_FiresIntoFullMailbox(t *testing.T) {
	f := newFixture(t, WithMailboxCapacity(1))
	f.define(timerClass())
	m := f.create("delay", "Delay")
	f.reg.EnableAll()
	f.poll()
	require.Equal(t, "waiting", m.State())

	require.True(t, m.Mailbox().Enqueue(Package{
		Kind:       PackageMessage,
		Sender:     m.ID(),
		SenderName: m.FullName(),
		Target:     m.ID(),
		TargetName: m.FullName(),
		Message:    "noise",
	}))
	f.sched.Advance(101 * time.Millisecond)
	assert.Equal(t, 1, m.Mailbox().Len())
	assert.True(t, m.HasPendingWork())
	assert.Contains(t, f.logs.String(), "timer wake-up latched")

	f.poll()
	assert.Equal(t, "expired", m.State())
	assert.False(t, m.HasPendingWork())
}

func TestTimer_LessThanBoundary(t *testing.T) {
	f := newFixture(t)
	f.define(&Class{
		Name:         "Window",
		InitialState: "inside",
		States:       []string{"inside"},
		StableStates: []StableState{
			NewStableState("closed", Not(Cmp(OpLt, S("TIMER"), L(50)))),
		},
	})
	m := f.create("w", "Window")
	f.reg.EnableAll()
	f.poll()
	require.Equal(t, "inside", m.State())

	// TIMER < 50 still holds at 49ms.
	f.sched.Advance(49 * time.Millisecond)
	m.needsCheck++
	f.poll()
	assert.Equal(t, "inside", m.State())

	// From 50ms onward it no longer holds.
	f.sched.Advance(time.Millisecond)
	f.poll()
	assert.Equal(t, "closed", m.State())
}

func TestTimer_OneLiveTriggerPerStableState(t *testing.T) {
	f := newFixture(t)
	f.define(timerClass())
	m := f.create("delay", "Delay")
	f.reg.EnableAll()

	for i := 0; i < 5; i++ {
		m.needsCheck++
		f.poll()
		f.sched.Advance(10 * time.Millisecond)
	}
	live := 0
	for _, trig := range m.TimerTriggers() {
		if trig.Live() {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestTimer_NonNumericLimitSkipsState(t *testing.T) {
	f := newFixture(t)
	f.define(&Class{
		Name:         "Bad",
		InitialState: "idle",
		Options:      map[string]ir.Value{"LIMIT": ir.String("soon")},
		StableStates: []StableState{
			NewStableState("late", Cmp(OpGt, S("TIMER"), S("LIMIT"))),
			NewStableState("fallback", L(true)),
		},
	})
	m := f.create("bad", "Bad")
	f.reg.EnableAll()
	f.poll()

	assert.Equal(t, "fallback", m.State())
	assert.Contains(t, f.logs.String(), "stable state skipped")
}

func TestTimer_DisabledTimeIsExcluded(t *testing.T) {
	f := newFixture(t)
	f.define(timerClass())
	m := f.create("delay", "Delay")
	f.reg.EnableAll()
	f.poll()

	f.sched.Advance(40 * time.Millisecond)
	m.Disable()
	f.sched.Advance(time.Second)
	f.poll()
	assert.Equal(t, int64(40), m.TimerMillis(), "timer stands still while disabled")
	assert.Equal(t, "waiting", m.State())

	m.Resume()
	assert.Equal(t, int64(40), m.TimerMillis())

	f.sched.Advance(60 * time.Millisecond)
	f.poll()
	assert.Equal(t, "waiting", m.State())

	f.sched.Advance(time.Millisecond)
	f.poll()
	assert.Equal(t, "expired", m.State())
}
