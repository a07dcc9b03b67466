package machine

import "sync"

// DefaultMailboxCapacity bounds an instance mailbox unless the registry is
// configured otherwise.
const DefaultMailboxCapacity = 256

// Mailbox is a bounded, thread-safe FIFO of inbound packages.
//
// Producers (dispatchers, timer callbacks) enqueue from any goroutine; the
// control thread drains it. The lock is held only for the enqueue or
// dequeue itself, never while a package is being handled.
//
// The signal channel coalesces wake-ups so a poller can select on it.
type Mailbox struct {
	mu       sync.Mutex
	items    []Package
	capacity int
	closed   bool
	signal   chan struct{} // buffered, size 1
}

// NewMailbox creates an empty mailbox. A capacity <= 0 uses
// DefaultMailboxCapacity.
func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	return &Mailbox{
		items:    make([]Package, 0, 8),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends a package. It never blocks; it returns false when the
// mailbox is full or closed.
func (m *Mailbox) Enqueue(p Package) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || len(m.items) >= m.capacity {
		return false
	}
	m.items = append(m.items, p)

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the oldest package without blocking.
func (m *Mailbox) TryDequeue() (Package, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return Package{}, false
	}
	p := m.items[0]
	m.items[0] = Package{}
	if len(m.items) == 1 {
		m.items = m.items[:0]
	} else {
		m.items = m.items[1:]
	}
	return p, true
}

// Len returns the number of queued packages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Clear drops every queued package and returns them.
func (m *Mailbox) Clear() []Package {
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := m.items
	m.items = make([]Package, 0, 8)
	return dropped
}

// Wait returns a channel that signals when packages may be available.
func (m *Mailbox) Wait() <-chan struct{} {
	return m.signal
}

// Close rejects further packages and wakes any waiter.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.signal)
}
