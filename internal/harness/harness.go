package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/clockwork/internal/compiler"
	"github.com/roach88/clockwork/internal/engine"
	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
	"github.com/roach88/clockwork/internal/store"
	"github.com/roach88/clockwork/internal/testutil"
)

// Harness is the scenario execution engine. It owns a registry driven by a
// fake clock and a manual scheduler, so runs are deterministic.
type Harness struct {
	reg    *machine.Registry
	rt     *engine.Runtime
	store  *store.Store
	clock  *testutil.FakeClock
	sched  *testutil.ManualScheduler
	result *Result
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database:
//  1. compile and validate the specs
//  2. load classes and instances, restore persistent properties
//  3. enable every instance and settle
//  4. execute the steps, polling after each
//  5. evaluate the assertions
//
// An error is returned only when the scenario cannot run at all; step and
// assertion failures are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	prog, err := compiler.LoadFiles(scenario.Specs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load specs: %w", err)
	}
	if issues := compiler.Validate(prog); len(issues) > 0 {
		return nil, fmt.Errorf("invalid specs: %w", issues[0])
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewFakeClock()
	sched := testutil.NewManualScheduler(clock)
	result := NewResult()

	tr := &tracer{
		result:  result,
		persist: store.NewRecorder(st, store.WithRecorderLogger(logger)),
	}
	reg := machine.NewRegistry(
		machine.WithClock(clock),
		machine.WithScheduler(sched),
		machine.WithPersistence(tr),
		machine.WithExporter(tr),
		machine.WithIDGenerator(machine.NewSequentialGenerator("pkg")),
		machine.WithLogger(logger),
	)
	tr.next = machine.NewLocalDispatcher(reg)
	reg.SetDispatcher(tr)

	if err := prog.Load(reg); err != nil {
		return nil, fmt.Errorf("failed to load machines: %w", err)
	}
	ctx := context.Background()
	if _, err := st.RestorePersistent(ctx, reg); err != nil {
		return nil, fmt.Errorf("failed to restore properties: %w", err)
	}

	opts := []engine.Option{engine.WithLogger(logger)}
	if scenario.MaxPasses > 0 {
		opts = append(opts, engine.WithMaxPasses(scenario.MaxPasses))
	}
	h := &Harness{
		reg:    reg,
		rt:     engine.New(reg, opts...),
		store:  st,
		clock:  clock,
		sched:  sched,
		result: result,
		logger: logger,
	}

	if n := h.rt.Start(); n > 0 {
		return nil, fmt.Errorf("failed to start: %d configuration errors: %w", n, reg.ConfigErrors()[0])
	}
	if err := h.poll(); err != nil {
		result.AddError(fmt.Sprintf("start: %v", err))
	}

	for i, step := range scenario.Steps {
		if err := h.execute(step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
		}
	}

	for _, m := range reg.Instances() {
		result.States[m.FullName()] = m.State()
	}
	result.Cycles = h.rt.Cycles()

	actx := &AssertionContext{
		Registry: reg,
		Store:    st,
		Ctx:      ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// execute runs one step. Every step but poll and advance ends with a
// poll cycle.
func (h *Harness) execute(step Step) error {
	switch {
	case step.Poll > 0:
		for i := 0; i < step.Poll; i++ {
			if err := h.poll(); err != nil {
				return err
			}
		}
		return nil
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		return h.advance(d)
	case step.Set != nil:
		if err := h.set(step.Set); err != nil {
			return err
		}
	case step.Send != nil:
		target := h.reg.Lookup(step.Send.To)
		if target == nil {
			return fmt.Errorf("send: no machine %q", step.Send.To)
		}
		h.reg.Dispatcher().Deliver(machine.Package{
			Kind:       machine.PackageMessage,
			Target:     target.ID(),
			TargetName: target.FullName(),
			Message:    step.Send.Message,
		})
	case step.Command != "":
		out, err := h.reg.Command(step.Command)
		h.result.record(TraceEvent{Type: EventCommand, Message: step.Command, Output: commandOutput(out, err)})
		if err != nil {
			return fmt.Errorf("command %q: %w", step.Command, err)
		}
		if step.Expect != "" && out != step.Expect {
			return &AssertionError{
				Type:     "command",
				Expected: fmt.Sprintf("%q answers %q", step.Command, step.Expect),
				Actual:   fmt.Sprintf("%q", out),
				Trace:    h.result.Trace,
			}
		}
	}
	return h.poll()
}

func (h *Harness) set(s *SetStep) error {
	if s.State != "" {
		return h.reg.SetMachineState(s.Machine, s.State)
	}
	v, err := ir.FromAny(s.Value)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", s.Machine, s.Property, err)
	}
	return h.reg.SetProperty(s.Machine, s.Property, v)
}

// poll runs one cycle.
func (h *Harness) poll() error {
	res, err := h.rt.PollOnce()
	if err != nil {
		return err
	}
	h.logger.Debug("cycle", "cycle", res.Cycle, "passes", res.Passes)
	return nil
}

// advance moves the clock by d, stopping at every due timer to fire it and
// poll, then polls once at the end.
func (h *Harness) advance(d time.Duration) error {
	end := h.clock.Now().Add(d)
	for {
		due, ok := h.sched.NextDue()
		if !ok || due.After(end) {
			break
		}
		h.sched.Advance(due.Sub(h.clock.Now()))
		if err := h.poll(); err != nil {
			return err
		}
	}
	h.sched.Advance(end.Sub(h.clock.Now()))
	return h.poll()
}

func commandOutput(out string, err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return out
}

// tracer records registry effects into the result and forwards them.
type tracer struct {
	result  *Result
	persist machine.Persistence
	next    machine.Dispatcher
}

func (t *tracer) MachineStateChanged(name, state string) {
	t.result.record(TraceEvent{Type: EventState, Machine: name, State: state})
	t.persist.MachineStateChanged(name, state)
}

func (t *tracer) PropertyChanged(name, property string, v ir.Value) {
	t.result.record(TraceEvent{Type: EventProperty, Machine: name, Property: property, Value: canonical(v)})
	t.persist.PropertyChanged(name, property, v)
}

func (t *tracer) ExportedValueChanged(address string, v ir.Value) {
	t.result.record(TraceEvent{Type: EventExport, Target: address, Value: canonical(v)})
}

func (t *tracer) Deliver(p machine.Package) {
	if p.Kind == machine.PackageMessage {
		target := p.TargetName
		if p.Broadcast {
			target = "*"
		}
		t.result.record(TraceEvent{Type: EventMessage, Machine: p.SenderName, Target: target, Message: p.Message})
	}
	t.next.Deliver(p)
}

func canonical(v ir.Value) string {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return v.String()
	}
	return string(data)
}
