package engine

import "sync"

// request is a registry command submitted from outside the poll goroutine.
type request struct {
	line  string
	reply chan Reply
}

// Reply is the answer to a submitted command.
type Reply struct {
	Output string
	Err    error
}

// commandQueue is a FIFO of requests, safe for concurrent producers and
// drained only by the poll goroutine.
//
// The signal channel has a buffer of one so that any number of enqueues
// between two drains coalesce into one wake-up.
type commandQueue struct {
	mu     sync.Mutex
	items  []request
	closed bool
	signal chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		items:  make([]request, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds r to the back of the queue. It returns false once the
// queue is closed.
func (q *commandQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, r)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *commandQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return request{}, false
	}
	r := q.items[0]
	q.items[0] = request{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return r, true
}

// Wait returns a channel signalled when requests may be available. It is
// closed by Close.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued requests.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue accepting requests and returns the ones still
// queued, which the caller must answer.
func (q *commandQueue) Close() []request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)
	rest := q.items
	q.items = nil
	return rest
}
