package nbio

import "time"

// Timer is a repeating timer: Again arms or re-arms it with a new period
// (measured from the call, not from the previous deadline), Stop disarms
// it. It does not auto-repeat on its own — the callback is responsible for
// calling Again again if it wants to keep running, which is exactly what
// the idle-timeout bucket scan does when it re-arms for the precise
// remaining delta rather than the nominal period.
type Timer struct {
	loop     *EventLoop
	deadline int64 // wall-clock Unix nanoseconds (EventLoop.now); only meaningful while active
	active   bool
	cb       func()
}

// Again arms (or re-arms) the timer to fire after ms milliseconds.
func (t *Timer) Again(ms int64) {
	if ms < 0 {
		ms = 0
	}
	t.deadline = t.loop.now() + ms*int64(time.Millisecond)
	if !t.active {
		t.active = true
		t.loop.registerTimer(t)
	}
}

// Stop disarms the timer; its callback will not fire again until Again is
// called.
func (t *Timer) Stop() {
	t.active = false
}
