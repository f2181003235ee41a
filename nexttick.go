package nbio

import (
	"sync"

	"github.com/eapache/queue"
)

// nextTickQueue defers zero-argument callbacks to run after the current
// stack unwinds and before the loop polls for I/O again. It is the one
// piece of loop state that can be touched from outside the loop thread —
// the address-resolution adapter posts its callback here from a background
// goroutine — so unlike the rest of the event loop it is guarded by a
// mutex.
//
// The FIFO discipline (append at the back, drain from the front) is exactly
// what github.com/eapache/queue provides, so ticks are stored there rather
// than in a hand-rolled slice.
type nextTickQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newNextTickQueue() *nextTickQueue {
	return &nextTickQueue{q: queue.New()}
}

// Post enqueues fn to run on the loop thread. Safe to call from any thread.
func (t *nextTickQueue) Post(fn func()) {
	t.mu.Lock()
	t.q.Add(fn)
	t.mu.Unlock()
}

func (t *nextTickQueue) len() int {
	t.mu.Lock()
	n := t.q.Length()
	t.mu.Unlock()
	return n
}

// drain runs every callback queued at the moment of the call, including
// ones a running callback enqueues, until the queue is empty — mirroring
// the guarantee that listeners attached immediately after a call still
// observe its next-tick emission.
func (t *nextTickQueue) drain() {
	for {
		t.mu.Lock()
		if t.q.Length() == 0 {
			t.mu.Unlock()
			return
		}
		fn := t.q.Remove().(func())
		t.mu.Unlock()
		fn()
	}
}
