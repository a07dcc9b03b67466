package machine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/clockwork/internal/ir"
)

// Registry owns the classes and instances of one runtime. Several
// registries can coexist, for example one per test.
//
// Instance creation and removal happen on the control thread. Lookups take
// a read lock so dispatchers on other goroutines can resolve targets.
type Registry struct {
	mu        sync.RWMutex
	classes   map[string]*Class
	byName    map[string]ID
	instances []*Instance // index is the ID; slot 0 is unused

	clock    Clock
	sched    Scheduler
	dispatch Dispatcher
	persist  Persistence
	export   Exporter
	ids      IDGenerator
	seq      Sequence
	log      *slog.Logger

	mailboxCapacity int

	errMu      sync.Mutex
	configErrs []error

	wake chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for state-entry timestamps.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithScheduler sets the timer scheduler.
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) { r.sched = s }
}

// WithDispatcher sets the dispatcher. The default delivers locally.
func WithDispatcher(d Dispatcher) Option {
	return func(r *Registry) { r.dispatch = d }
}

// WithPersistence sets the state/property change hook.
func WithPersistence(p Persistence) Option {
	return func(r *Registry) { r.persist = p }
}

// WithExporter sets the fieldbus export hook.
func WithExporter(e Exporter) Option {
	return func(r *Registry) { r.export = e }
}

// WithIDGenerator sets the package ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Registry) { r.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithMailboxCapacity bounds every instance mailbox.
func WithMailboxCapacity(n int) Option {
	return func(r *Registry) { r.mailboxCapacity = n }
}

// NewRegistry creates a registry with the built-in classes defined.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		classes:   map[string]*Class{},
		byName:    map[string]ID{},
		instances: []*Instance{nil},
		clock:     SystemClock{},
		sched:     AfterFuncScheduler{},
		persist:   nopPersistence{},
		export:    nopExporter{},
		ids:       UUIDv7Generator{},
		log:       slog.Default(),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dispatch == nil {
		r.dispatch = NewLocalDispatcher(r)
	}
	for _, c := range BuiltinClasses() {
		c.normalize()
		r.classes[c.Name] = c
	}
	return r
}

// SetDispatcher replaces the dispatcher. Call it before any instance
// sends a package, typically to wrap the local dispatcher.
func (r *Registry) SetDispatcher(d Dispatcher) { r.dispatch = d }

// Dispatcher returns the configured dispatcher.
func (r *Registry) Dispatcher() Dispatcher { return r.dispatch }

// Clock returns the registry clock.
func (r *Registry) Clock() Clock { return r.clock }

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger { return r.log }

// DefineClass validates and registers a class. Validation problems are
// recorded as configuration errors; the class is registered anyway so the
// rest of the system keeps running.
func (r *Registry) DefineClass(c *Class) error {
	if c == nil || c.Name == "" {
		return NewConfigError(ErrCodeInvalidClass, "", "class name is required")
	}
	c.normalize()
	for _, err := range c.Validate() {
		r.recordConfigError(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	name := ir.NormalizeName(c.Name)
	if _, exists := r.classes[name]; exists {
		if _, builtin := builtinNames[name]; !builtin {
			return NewConfigError(ErrCodeDuplicateName, c.Name, "class already defined")
		}
	}
	r.classes[name] = c
	return nil
}

var builtinNames = map[string]struct{}{
	ClassList: {}, ClassReference: {}, ClassVariable: {}, ClassConstant: {}, ClassFlag: {},
}

// Class returns a registered class.
func (r *Registry) Class(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[ir.NormalizeName(name)]
	return c, ok
}

// Create instantiates a class under name. Parameters naming machines are
// resolved later by Bind, so instances may be created in any order.
func (r *Registry) Create(name, className string, params ...ir.Value) (*Instance, error) {
	return r.create(ir.NormalizeName(name), ir.NormalizeName(name), className, NoID, params)
}

func (r *Registry) create(name, fullName, className string, owner ID, params []ir.Value) (*Instance, error) {
	class, ok := r.Class(className)
	if !ok {
		err := NewConfigError(ErrCodeUnknownClass, fullName, fmt.Sprintf("unknown class %q", className))
		r.recordConfigError(err)
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.byName[fullName]; exists {
		r.mu.Unlock()
		return nil, NewConfigError(ErrCodeDuplicateName, fullName, "machine already exists")
	}
	id := ID(len(r.instances))
	m := newInstance(r, id, name, fullName, class, owner, params)
	r.instances = append(r.instances, m)
	r.byName[fullName] = id
	r.mu.Unlock()

	for _, l := range class.Locals {
		local, err := r.create(l.Name, fullName+"."+l.Name, l.Class, id, l.Params)
		if err != nil {
			m.addConfigError(fmt.Errorf("local %q: %w", l.Name, err))
			continue
		}
		m.locals = append(m.locals, local.id)
		m.localNames[l.Name] = local.id
		r.Link(m, local)
	}
	r.log.Debug("machine created", "machine", fullName, "class", class.Name, "kind", class.Kind.String())
	return m, nil
}

// Get returns the instance with id, or nil.
func (r *Registry) Get(id ID) *Instance {
	if id == NoID {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.instances) {
		return nil
	}
	return r.instances[id]
}

// Lookup returns the instance registered under a fully qualified name.
func (r *Registry) Lookup(name string) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[ir.NormalizeName(name)]
	if !ok {
		return nil
	}
	return r.instances[id]
}

// Instances returns every live instance in creation order.
func (r *Registry) Instances() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, m := range r.instances {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (r *Registry) resolve(ids []ID) []*Instance {
	out := make([]*Instance, 0, len(ids))
	for _, id := range ids {
		if m := r.Get(id); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Link makes listener listen to source and become one of its dependents.
// Cycles are permitted because propagation only sets flags; closing one is
// logged.
func (r *Registry) Link(listener, source *Instance) {
	if listener == nil || source == nil || listener == source {
		return
	}
	if source.dependsOn(listener) {
		r.log.Warn("dependency cycle", "listener", listener.fullName, "source", source.fullName)
	}
	listener.listensTo.add(source.id)
	source.dependents.add(listener.id)
}

// Unlink removes both relations added by Link.
func (r *Registry) Unlink(listener, source *Instance) {
	if listener == nil || source == nil {
		return
	}
	listener.listensTo.remove(source.id)
	source.dependents.remove(listener.id)
}

// dependsOn reports whether m transitively listens to other.
func (m *Instance) dependsOn(other *Instance) bool {
	seen := map[ID]bool{m.id: true}
	queue := m.listensTo.list()
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == other.id {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if next := m.reg.Get(id); next != nil {
			queue = append(queue, next.listensTo.list()...)
		}
	}
	return false
}

// Remove unregisters an instance and its locals, detaching them from
// every listener and dependent set before they are dropped.
func (r *Registry) Remove(m *Instance) {
	if m == nil || m.removed {
		return
	}
	for _, l := range m.Locals() {
		r.Remove(l)
	}
	m.clearActions()
	m.retireTimers()
	m.mailbox.Close()
	m.enabled = false
	m.removed = true

	for _, other := range r.Instances() {
		other.listensTo.remove(m.id)
		other.dependents.remove(m.id)
		for i := range other.params {
			if other.params[i].Machine == m.id {
				other.params[i].Machine = NoID
				other.needsCheck++
			}
		}
	}

	r.mu.Lock()
	delete(r.byName, m.fullName)
	r.instances[m.id] = nil
	r.mu.Unlock()
	r.log.Debug("machine removed", "machine", m.fullName)
}

// BindAll binds every unbound instance and returns the number of
// configuration errors recorded so far.
func (r *Registry) BindAll() int {
	for _, m := range r.Instances() {
		r.Bind(m)
	}
	return r.ErrorCount()
}

// Bind resolves parameters that name machines, applies parameter
// defaults, renames parameter-qualified transition triggers and receive
// handlers, and links the instance to what it depends on.
func (r *Registry) Bind(m *Instance) {
	if m.bound {
		return
	}
	m.bound = true

	declared := len(m.class.Parameters)
	if m.kind != KindList && declared != len(m.params) {
		m.addConfigError(NewConfigError(ErrCodeParameterMismatch, m.fullName,
			fmt.Sprintf("class %s declares %d parameters, %d supplied", m.class.Name, declared, len(m.params))))
	}

	for i := range m.params {
		p := &m.params[i]
		s, ok := p.Value.(ir.String)
		if !ok {
			continue
		}
		target := m.lookupScope(string(s), m.owner)
		if target == nil {
			if m.kind == KindList {
				continue
			}
			if i < declared {
				// A plain string is a valid parameter value; only warn.
				m.log.Debug("parameter is not a machine", "machine", m.fullName, "parameter", m.class.Parameters[i].Name, "value", string(s))
			}
			continue
		}
		p.Machine = target.id
		r.Link(m, target)
		if i < declared {
			for k, v := range m.class.Parameters[i].Defaults {
				if _, set := target.props[k]; !set {
					target.props[k] = v
				}
			}
		}
	}

	for i := range m.transitions {
		if renamed, ok := m.rename(m.transitions[i].Trigger); ok {
			m.transitions[i].Trigger = renamed
		}
	}
	for k, cmd := range m.class.Receives {
		if renamed, ok := m.rename(k); ok {
			delete(m.receiveHandlers, k)
			m.receiveHandlers[renamed] = cmd
		}
	}
}

// rename maps "param.event" to "<machine name>.event".
func (m *Instance) rename(trigger string) (string, bool) {
	head, rest, ok := ir.SplitName(trigger)
	if !ok {
		return "", false
	}
	idx, isParam := m.paramNames[head]
	if !isParam {
		return "", false
	}
	if idx >= len(m.params) {
		m.addConfigError(NewConfigError(ErrCodeUnknownMachine, m.fullName,
			fmt.Sprintf("%q refers to missing parameter %q", trigger, head)))
		return "", false
	}
	target := m.reg.Get(m.params[idx].Machine)
	if target == nil {
		m.addConfigError(NewConfigError(ErrCodeUnknownMachine, m.fullName,
			fmt.Sprintf("%q: parameter %q is not a machine", trigger, head)))
		return "", false
	}
	return ir.Qualify(target.name, rest), true
}

// EnableAll binds and enables every top-level instance in creation order.
func (r *Registry) EnableAll() {
	r.BindAll()
	for _, m := range r.Instances() {
		if m.owner == NoID {
			m.Enable()
		}
	}
}

func (r *Registry) recordConfigError(err error) {
	configErrorsTotal.Inc()
	r.errMu.Lock()
	r.configErrs = append(r.configErrs, err)
	r.errMu.Unlock()
	r.log.Error("configuration error", "error", err)
}

// ConfigErrors returns every configuration error recorded.
func (r *Registry) ConfigErrors() []error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return append([]error(nil), r.configErrs...)
}

// ErrorCount returns the number of configuration errors recorded.
func (r *Registry) ErrorCount() int {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return len(r.configErrs)
}

// propagate increments the needs-check counter of every dependent of
// changed. Containers pass the increment on to their own dependents. Each
// instance is flagged at most once per change; the count is returned.
func (r *Registry) propagate(changed *Instance) int {
	visited := map[ID]bool{changed.id: true}
	queue := []*Instance{changed}
	flagged := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, id := range cur.dependents.list() {
			if visited[id] {
				continue
			}
			visited[id] = true
			dep := r.Get(id)
			if dep == nil {
				continue
			}
			dep.needsCheck++
			flagged++
			if dep.kind.container() {
				queue = append(queue, dep)
			}
		}
	}
	dirtyFlagsTotal.Add(float64(flagged))
	return flagged
}

// scheduleTrigger arranges for t to fire after delay.
func (r *Registry) scheduleTrigger(delay time.Duration, t *Trigger) {
	r.sched.Schedule(delay, func() { r.fireTrigger(t) })
}

// fireTrigger latches t and wakes its owner through the mailbox. It may run
// on any goroutine.
func (r *Registry) fireTrigger(t *Trigger) {
	if !t.Fire() {
		return
	}
	owner := r.Get(t.owner)
	if owner == nil {
		defectsTotal.Inc()
		r.log.Error("execution stack defect", "defect", true,
			"error", NewDefectError(ErrCodeOrphanTrigger, fmt.Sprintf("trigger %q fired with no owner", t.name)))
		return
	}
	ok := owner.mailbox.Enqueue(Package{
		Kind:       PackageTimer,
		Sender:     owner.id,
		SenderName: owner.fullName,
		Target:     owner.id,
		TargetName: owner.fullName,
		Message:    t.name,
	})
	if !ok {
		owner.timerPending.Store(true)
		packagesDropped.WithLabelValues("mailbox_full").Inc()
		r.log.Warn("mailbox full, timer wake-up latched",
			"machine", owner.fullName,
			"trigger", t.name,
		)
	}
	r.signalWake()
}

// Wake returns a channel signalled whenever a package is delivered or a
// timer fires.
func (r *Registry) Wake() <-chan struct{} { return r.wake }

func (r *Registry) signalWake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// send stamps and delivers a package.
func (r *Registry) send(p Package) {
	p.ID = r.ids.Generate()
	p.Seq = r.seq.Next()
	r.dispatch.Deliver(p)
}

// paramValue returns the value of a parameter as seen by expressions: the
// machine name for machine parameters, the raw value otherwise.
func (r *Registry) paramValue(p Parameter) ir.Value {
	if m := r.Get(p.Machine); m != nil {
		return ir.String(m.name)
	}
	if p.Value == nil {
		return ir.Null{}
	}
	return p.Value
}
