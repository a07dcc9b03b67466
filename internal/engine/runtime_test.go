package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
	"github.com/roach88/clockwork/internal/testutil"
)

type rig struct {
	reg   *machine.Registry
	rt    *Runtime
	clock *testutil.FakeClock
	sched *testutil.ManualScheduler
}

func newRig(t *testing.T, classes []*machine.Class, opts ...Option) *rig {
	t.Helper()
	clock := testutil.NewFakeClock()
	sched := testutil.NewManualScheduler(clock)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := machine.NewRegistry(
		machine.WithClock(clock),
		machine.WithScheduler(sched),
		machine.WithIDGenerator(machine.NewSequentialGenerator("pkg")),
		machine.WithLogger(logger),
	)
	for _, c := range classes {
		require.NoError(t, reg.DefineClass(c))
	}
	opts = append([]Option{WithLogger(logger)}, opts...)
	return &rig{reg: reg, rt: New(reg, opts...), clock: clock, sched: sched}
}

func (r *rig) create(t *testing.T, name, class string, params ...ir.Value) *machine.Instance {
	t.Helper()
	m, err := r.reg.Create(name, class, params...)
	require.NoError(t, err)
	return m
}

func valveClass() *machine.Class {
	return &machine.Class{
		Name:         "Valve",
		InitialState: "closed",
		Options:      map[string]ir.Value{"INPUT": ir.Int(0)},
		StableStates: []machine.StableState{
			machine.NewStableState("open", machine.Cmp(machine.OpEq, machine.S("INPUT"), machine.L(1))),
			machine.NewStableState("closed", machine.L(true)),
		},
	}
}

func lampClass() *machine.Class {
	return &machine.Class{
		Name:         "Lamp",
		InitialState: "dark",
		Parameters:   []machine.ParameterSpec{{Name: "valve"}},
		StableStates: []machine.StableState{
			machine.NewStableState("lit", machine.Is{Machine: "valve", State: "open"}),
			machine.NewStableState("dark", machine.L(true)),
		},
	}
}

// blinkerClass never settles: each state's predicate holds in the other.
func blinkerClass() *machine.Class {
	return &machine.Class{
		Name:         "Blinker",
		InitialState: "a",
		StableStates: []machine.StableState{
			machine.NewStableState("a", machine.Is{Machine: "SELF", State: "b"}),
			machine.NewStableState("b", machine.Is{Machine: "SELF", State: "a"}),
		},
	}
}

func TestRuntime_Defaults(t *testing.T) {
	r := newRig(t, nil)
	assert.Equal(t, DefaultCycleDelay, r.rt.CycleDelay())
	assert.Equal(t, DefaultMaxPasses, r.rt.MaxPasses())

	r = newRig(t, nil, WithCycleDelay(5*time.Millisecond), WithMaxPasses(3), WithMaxPasses(0))
	assert.Equal(t, 5*time.Millisecond, r.rt.CycleDelay())
	assert.Equal(t, 3, r.rt.MaxPasses(), "non-positive values are ignored")
}

func TestRuntime_PollOncePropagatesWithinCycle(t *testing.T) {
	r := newRig(t, []*machine.Class{valveClass(), lampClass()})
	valve := r.create(t, "valve", "Valve")
	lamp := r.create(t, "lamp", "Lamp", ir.String("valve"))
	require.Equal(t, 0, r.rt.Start())

	res, err := r.rt.PollOnce()
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, "closed", valve.State())
	assert.Equal(t, "dark", lamp.State())

	require.NoError(t, valve.SetValue("INPUT", ir.Int(1)))
	res, err = r.rt.PollOnce()
	require.NoError(t, err)

	assert.True(t, res.Settled)
	assert.Greater(t, res.Passes, 1)
	assert.Equal(t, "open", valve.State())
	assert.Equal(t, "lit", lamp.State(), "dependent follows in the same cycle")
	assert.Equal(t, int64(2), res.Cycle)
	assert.Equal(t, int64(2), r.rt.Cycles())
}

func TestRuntime_SettledCycleIsQuiet(t *testing.T) {
	r := newRig(t, []*machine.Class{valveClass()})
	r.create(t, "valve", "Valve")
	r.rt.Start()
	_, err := r.rt.PollOnce()
	require.NoError(t, err)

	res, err := r.rt.PollOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passes)
	assert.Equal(t, 0, res.Evaluations)
}

func TestRuntime_BudgetStopsOscillation(t *testing.T) {
	r := newRig(t, []*machine.Class{blinkerClass()}, WithMaxPasses(4))
	r.create(t, "blink", "Blinker")
	r.rt.Start()

	res, err := r.rt.PollOnce()
	require.Error(t, err)
	assert.True(t, IsBudgetExceeded(err))
	assert.False(t, res.Settled)
	assert.Equal(t, 4, res.Passes)

	_, err = r.rt.PollOnce()
	assert.True(t, IsBudgetExceeded(err), "the next cycle picks the work up again")
}

func TestRuntime_ConditionEvaluatedEveryCycle(t *testing.T) {
	r := newRig(t, []*machine.Class{{
		Name:         "Always",
		Kind:         machine.KindCondition,
		InitialState: "yes",
		StableStates: []machine.StableState{machine.NewStableState("yes", machine.L(true))},
	}})
	cond := r.create(t, "cond", "Always")
	r.rt.Start()

	for i := 1; i <= 3; i++ {
		res, err := r.rt.PollOnce()
		require.NoError(t, err)
		assert.True(t, res.Settled)
		assert.Equal(t, i, cond.Evaluations())
	}
}

func TestRuntime_WaitingActionDoesNotSpendBudget(t *testing.T) {
	r := newRig(t, []*machine.Class{{
		Name:         "Timer",
		InitialState: "ready",
		Options:      map[string]ir.Value{"DONE": ir.Int(0)},
		Commands: map[string]machine.Command{"go": {Name: "go", Steps: []machine.Step{
			machine.WaitStep{Millis: machine.L(100)},
			machine.SetValueStep{Property: "DONE", Value: machine.L(1)},
		}}},
	}}, WithMaxPasses(3))
	m := r.create(t, "t", "Timer")
	r.rt.Start()
	_, err := r.rt.PollOnce()
	require.NoError(t, err)

	m.Execute("go")
	res, err := r.rt.PollOnce()
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.True(t, m.Executing())

	r.sched.Advance(100 * time.Millisecond)
	_, err = r.rt.PollOnce()
	require.NoError(t, err)
	assert.False(t, m.Executing())
	assert.Equal(t, ir.Int(1), m.Properties()["DONE"])
}

func TestRuntime_SubmitRunsOnPollGoroutine(t *testing.T) {
	r := newRig(t, []*machine.Class{valveClass(), lampClass()}, WithCycleDelay(time.Millisecond))
	r.create(t, "valve", "Valve")
	lamp := r.create(t, "lamp", "Lamp", ir.String("valve"))
	r.rt.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.rt.Run(ctx) }()

	out, err := r.rt.Submit(ctx, "GET valve")
	require.NoError(t, err)
	assert.Equal(t, "closed", out)

	out, err = r.rt.Submit(ctx, "SET valve.INPUT TO 1")
	require.NoError(t, err)
	assert.Equal(t, "OK", out)

	assert.Eventually(t, func() bool {
		got, err := r.rt.Submit(ctx, "GET lamp")
		return err == nil && got == "lit"
	}, 2*time.Second, time.Millisecond)

	_, err = r.rt.Submit(ctx, "FROB valve")
	assert.Error(t, err)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	_, err = r.rt.Submit(context.Background(), "GET valve")
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, "lit", lamp.State())
}
