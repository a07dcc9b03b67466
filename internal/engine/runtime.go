package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/clockwork/internal/machine"
)

const (
	// DefaultCycleDelay is the tick between poll cycles when nothing wakes
	// the runtime earlier.
	DefaultCycleDelay = time.Millisecond

	// DefaultMaxPasses bounds the fixed-point passes of one cycle.
	DefaultMaxPasses = 16
)

// ErrStopped is returned for commands submitted to a runtime that is no
// longer running.
var ErrStopped = errors.New("runtime stopped")

// Runtime is the polling loop over one registry.
//
// PollOnce and Run must be called from one goroutine only; that goroutine
// owns all instance state. Submit is safe from any goroutine.
type Runtime struct {
	reg        *machine.Registry
	cycleDelay time.Duration
	maxPasses  int
	log        *slog.Logger
	cycles     *CycleCounter
	commands   *commandQueue
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithCycleDelay sets the tick between cycles.
func WithCycleDelay(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.cycleDelay = d
		}
	}
}

// WithMaxPasses sets the pass budget of each cycle.
func WithMaxPasses(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxPasses = n
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// WithCycleCounter sets the counter numbering cycles, for example to
// continue numbering across restarts.
func WithCycleCounter(c *CycleCounter) Option {
	return func(r *Runtime) { r.cycles = c }
}

// New creates a runtime over reg.
func New(reg *machine.Registry, opts ...Option) *Runtime {
	r := &Runtime{
		reg:        reg,
		cycleDelay: DefaultCycleDelay,
		maxPasses:  DefaultMaxPasses,
		log:        slog.Default(),
		cycles:     NewCycleCounter(),
		commands:   newCommandQueue(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry the runtime drives.
func (r *Runtime) Registry() *machine.Registry { return r.reg }

// CycleDelay returns the configured tick.
func (r *Runtime) CycleDelay() time.Duration { return r.cycleDelay }

// MaxPasses returns the configured pass budget.
func (r *Runtime) MaxPasses() int { return r.maxPasses }

// Cycles returns the number of cycles run so far.
func (r *Runtime) Cycles() int64 { return r.cycles.Current() }

// Start binds and enables every instance. It returns the number of
// configuration errors recorded; instances with errors stay usable.
func (r *Runtime) Start() int {
	r.reg.EnableAll()
	errs := r.reg.ErrorCount()
	r.log.Info("runtime started",
		"instances", len(r.reg.Instances()),
		"config_errors", errs,
	)
	return errs
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	Cycle       int64
	Passes      int
	Evaluations int
	Commands    int
	Settled     bool
}

// PollOnce runs one cycle: queued commands first, then passes until no
// instance has immediate work or a dirty flag it can act on. A cycle that
// spends its budget returns a BudgetExceededError; the remaining work is
// picked up by the next cycle.
func (r *Runtime) PollOnce() (CycleResult, error) {
	start := time.Now()
	cycle := r.cycles.Next()
	cyclesTotal.Inc()
	defer func() { cycleDuration.Observe(time.Since(start).Seconds()) }()

	res := CycleResult{Cycle: cycle}
	res.Commands = r.drainCommands()

	budget := NewPassBudget(r.maxPasses)
	for {
		if err := budget.Check(cycle); err != nil {
			budgetExhaustedTotal.Inc()
			r.log.Warn("poll cycle did not settle",
				"cycle", cycle,
				"passes", res.Passes,
				"error", err,
			)
			return res, err
		}
		res.Evaluations += r.pass(res.Passes == 0)
		res.Passes++
		passesTotal.Inc()
		if r.settled() {
			res.Settled = true
			break
		}
	}

	if res.Evaluations > 0 {
		r.log.Debug("poll cycle settled",
			"cycle", cycle,
			"passes", res.Passes,
			"evaluations", res.Evaluations,
		)
	}
	return res, nil
}

// pass idles every instance, then evaluates the ones that need it.
// Condition instances are evaluated on the first pass of every cycle and
// afterwards only when flagged.
func (r *Runtime) pass(first bool) int {
	instances := r.reg.Instances()
	for _, m := range instances {
		m.Idle()
	}
	evaluated := 0
	for _, m := range instances {
		if !evaluable(m, first) {
			continue
		}
		if m.EvaluateStableState() {
			evaluated++
		}
	}
	return evaluated
}

// settled reports whether another pass would find nothing to do. An
// instance waiting on a trigger is settled until the trigger delivers.
func (r *Runtime) settled() bool {
	for _, m := range r.reg.Instances() {
		if m.HasPendingWork() || evaluable(m, false) {
			return false
		}
	}
	return true
}

func evaluable(m *machine.Instance, first bool) bool {
	if !m.NeedsEvaluation() || m.Executing() {
		return false
	}
	if m.Kind() == machine.KindCondition && !first {
		return m.NeedsCheck() > 0
	}
	return true
}

// Run polls until ctx is cancelled. A cycle runs on every tick, and early
// when a package is delivered, a timer fires or a command is submitted.
func (r *Runtime) Run(ctx context.Context) error {
	r.log.Info("runtime running",
		"cycle_delay", r.cycleDelay,
		"max_passes", r.maxPasses,
	)
	ticker := time.NewTicker(r.cycleDelay)
	defer ticker.Stop()

	for {
		// A budget error is logged and the work carries over.
		_, _ = r.PollOnce()

		select {
		case <-ctx.Done():
			r.shutdown()
			r.log.Info("runtime stopping", "cycles", r.cycles.Current(), "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		case <-r.reg.Wake():
		case <-r.commands.Wait():
		}
	}
}

// Submit queues a registry command for the poll goroutine and waits for
// its answer.
func (r *Runtime) Submit(ctx context.Context, line string) (string, error) {
	reply := make(chan Reply, 1)
	if !r.commands.Enqueue(request{line: line, reply: reply}) {
		return "", ErrStopped
	}
	select {
	case rep := <-reply:
		return rep.Output, rep.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// drainCommands executes the commands queued since the last cycle.
func (r *Runtime) drainCommands() int {
	n := 0
	for {
		req, ok := r.commands.TryDequeue()
		if !ok {
			return n
		}
		n++
		out, err := r.reg.Command(req.line)
		if err != nil {
			commandsTotal.WithLabelValues("error").Inc()
			r.log.Warn("command failed", "command", req.line, "error", err)
		} else {
			commandsTotal.WithLabelValues("ok").Inc()
			r.log.Debug("command executed", "command", req.line)
		}
		req.reply <- Reply{Output: out, Err: err}
	}
}

func (r *Runtime) shutdown() {
	for _, req := range r.commands.Close() {
		req.reply <- Reply{Err: ErrStopped}
	}
}
