package machine

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/testutil"
)

// recordingDispatcher records every package before delivering it locally.
type recordingDispatcher struct {
	mu    sync.Mutex
	inner Dispatcher
	sent  []Package
}

func (d *recordingDispatcher) Deliver(p Package) {
	d.mu.Lock()
	d.sent = append(d.sent, p)
	d.mu.Unlock()
	d.inner.Deliver(p)
}

// messages returns the messages sent by sender to target, in order.
func (d *recordingDispatcher) messages(sender, target string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, p := range d.sent {
		if p.SenderName == sender && p.TargetName == target {
			out = append(out, p.Message)
		}
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
}

type fixture struct {
	t     *testing.T
	reg   *Registry
	clock *testutil.FakeClock
	sched *testutil.ManualScheduler
	sent  *recordingDispatcher
	logs  *bytes.Buffer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := testutil.NewFakeClock()
	sched := testutil.NewManualScheduler(clock)
	logs := &bytes.Buffer{}
	base := []Option{
		WithClock(clock),
		WithScheduler(sched),
		WithIDGenerator(NewSequentialGenerator("pkg")),
		WithLogger(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	}
	reg := NewRegistry(append(base, opts...)...)
	rec := &recordingDispatcher{inner: reg.Dispatcher()}
	reg.SetDispatcher(rec)
	return &fixture{t: t, reg: reg, clock: clock, sched: sched, sent: rec, logs: logs}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fixture) define(c *Class) {
	f.t.Helper()
	require.NoError(f.t, f.reg.DefineClass(c))
}

func (f *fixture) create(name, class string, params ...any) *Instance {
	f.t.Helper()
	vals := make([]ir.Value, len(params))
	for i, p := range params {
		vals[i] = ir.MustFromAny(p)
	}
	m, err := f.reg.Create(name, class, vals...)
	require.NoError(f.t, err)
	return m
}

// poll drives every instance until nothing is left to do, the way the
// engine's poll cycle does. It returns the number of passes that did work.
func (f *fixture) poll() int {
	f.t.Helper()
	passes := 0
	for pass := 0; pass < 32; pass++ {
		busy := false
		for _, m := range f.reg.Instances() {
			if m.HasPendingWork() {
				busy = true
			}
			m.Idle()
		}
		for _, m := range f.reg.Instances() {
			if m.NeedsEvaluation() && m.EvaluateStableState() {
				busy = true
			}
		}
		f.checkStacks()
		if !busy {
			return passes
		}
		passes++
	}
	return passes
}

// checkStacks asserts the stack invariants of every instance.
func (f *fixture) checkStacks() {
	f.t.Helper()
	for _, m := range f.reg.Instances() {
		running := 0
		for _, a := range m.Actions() {
			if a.Status == StatusRunning {
				running++
			}
		}
		require.LessOrEqual(f.t, running, 1, "%s has %d running actions", m.FullName(), running)
		require.Equal(f.t, len(m.stack), m.LiveActions(), "%s stack holds a released action", m.FullName())
	}
}

// valveClass has two stable states driven by its INPUT property.
func valveClass() *Class {
	return &Class{
		Name:         "Valve",
		InitialState: "closed",
		Options:      map[string]ir.Value{"INPUT": ir.Int(0)},
		StableStates: []StableState{
			NewStableState("open", Cmp(OpEq, S("INPUT"), L(1))),
			NewStableState("closed", Cmp(OpEq, S("INPUT"), L(0))),
		},
	}
}

// watcherClass depends on one machine parameter.
func watcherClass() *Class {
	return &Class{
		Name:         "Watcher",
		InitialState: "idle",
		Parameters:   []ParameterSpec{{Name: "target"}},
	}
}
