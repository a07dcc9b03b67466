package machine

// LocalDispatcher delivers packages to instances of one registry by
// enqueueing into their mailboxes. It is safe for concurrent use.
type LocalDispatcher struct {
	reg *Registry
}

// NewLocalDispatcher creates a dispatcher for reg.
func NewLocalDispatcher(reg *Registry) *LocalDispatcher {
	return &LocalDispatcher{reg: reg}
}

// Deliver implements Dispatcher.
func (d *LocalDispatcher) Deliver(p Package) {
	if p.Broadcast {
		for _, inst := range d.reg.Instances() {
			if inst.id == p.Sender {
				continue
			}
			q := p
			q.Broadcast = false
			q.Target = inst.id
			q.TargetName = inst.fullName
			d.enqueue(inst, q)
		}
		d.reg.signalWake()
		return
	}

	target := d.reg.Get(p.Target)
	if target == nil && p.TargetName != "" {
		target = d.reg.Lookup(p.TargetName)
	}
	if target == nil {
		d.reg.log.Warn("package for unknown machine dropped",
			"target", p.TargetName,
			"message", p.Message,
			"sender", p.SenderName)
		packagesDropped.WithLabelValues("unknown_target").Inc()
		return
	}
	d.enqueue(target, p)
	d.reg.signalWake()
}

func (d *LocalDispatcher) enqueue(target *Instance, p Package) {
	if !target.mailbox.Enqueue(p) {
		err := newError(ErrCodeMailboxFull, target.fullName, "mailbox full, %q dropped", p.Message)
		d.reg.log.Error("package dropped", "machine", target.fullName, "message", p.Message, "error", err)
		packagesDropped.WithLabelValues("mailbox_full").Inc()
	}
}
