package machine

import (
	"time"

	"github.com/roach88/clockwork/internal/ir"
)

// Clock supplies wall time for state-entry timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler fires a callback once, after at least delay. There is no
// ordering guarantee between independently scheduled callbacks beyond
// their delays. The registry uses it to fire timer triggers.
type Scheduler interface {
	Schedule(delay time.Duration, fire func())
}

// AfterFuncScheduler schedules with time.AfterFunc.
type AfterFuncScheduler struct{}

// Schedule implements Scheduler.
func (AfterFuncScheduler) Schedule(delay time.Duration, fire func()) {
	time.AfterFunc(delay, fire)
}

// Dispatcher delivers packages asynchronously. Delivery is fire-and-forget;
// a reply, when requested, arrives later through the sender's mailbox.
type Dispatcher interface {
	Deliver(p Package)
}

// Persistence is notified on every committed state or property change.
// The runtime never depends on the outcome.
type Persistence interface {
	MachineStateChanged(machine, state string)
	PropertyChanged(machine, property string, value ir.Value)
}

// Exporter is notified when an externally addressable value changes.
type Exporter interface {
	ExportedValueChanged(address string, value ir.Value)
}

type nopPersistence struct{}

func (nopPersistence) MachineStateChanged(string, string) {}
func (nopPersistence) PropertyChanged(string, string, ir.Value) {}

type nopExporter struct{}

func (nopExporter) ExportedValueChanged(string, ir.Value) {}
