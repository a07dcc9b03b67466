package store

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clockwork_store_writes_total",
		Help: "Persistence writes by kind and result.",
	}, []string{"kind", "result"})
)

// Recorder adapts a Store to machine.Persistence.
type Recorder struct {
	store    *Store
	log      *slog.Logger
	failures int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger used for write failures.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRecorder returns a Recorder writing to s.
func NewRecorder(s *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: s, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ machine.Persistence = (*Recorder)(nil)

// MachineStateChanged implements machine.Persistence.
func (r *Recorder) MachineStateChanged(name, state string) {
	err := r.store.WriteMachineState(context.Background(), name, state)
	r.observe("state", err, "machine", name, "state", state)
}

// PropertyChanged implements machine.Persistence.
func (r *Recorder) PropertyChanged(name, property string, v ir.Value) {
	err := r.store.WriteProperty(context.Background(), name, property, v)
	r.observe("property", err, "machine", name, "property", property)
}

// Failures returns the number of writes that failed. Hooks are called on the
// poll goroutine only.
func (r *Recorder) Failures() int { return r.failures }

func (r *Recorder) observe(kind string, err error, args ...any) {
	if err == nil {
		writesTotal.WithLabelValues(kind, "ok").Inc()
		return
	}
	r.failures++
	writesTotal.WithLabelValues(kind, "error").Inc()
	r.log.Error("persistence write failed", append(args, "error", err)...)
}
