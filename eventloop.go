package nbio

import (
	"time"

	"github.com/fzft/nbio/log"
	"go.uber.org/zap"
)

// Direction bits for ioWatcher.dir / the abstract readiness mask. Platform
// pollers translate these to their own event bits (EPOLLIN/EPOLLOUT on
// Linux) at the boundary in *_unix.go, so everything above this point stays
// platform-neutral.
const (
	wantRead  uint32 = 1 << 0
	wantWrite uint32 = 1 << 1
)

// readyEvent is what a platform poller reports back from wait().
type readyEvent struct {
	fd                 int
	readable, writable bool
	errored            bool
}

// poller is the per-platform backend behind EventLoop: registration plumbing
// and the blocking wait call. This is the concrete side of the "event loop /
// IOWatcher" and "repeating timer" collaborator contracts; EventLoop itself
// is the platform-neutral orchestration built on top of it.
type poller interface {
	registerFD(fd int, mask uint32) error
	modifyFD(fd int, mask uint32) error
	deleteFD(fd int) error
	wait(timeoutMs int) ([]readyEvent, error)
	wake() error
	close() error
}

// ioWatcher is the opaque, free-list-allocated handle used for read/write
// readiness notification. It is reset and reused via FreeList rather than
// reallocated on every Stream lifecycle.
type ioWatcher struct {
	loop   *EventLoop
	fd     int
	dir    uint32 // wantRead or wantWrite — which half of the fd this is
	active bool
	cb     func()
}

// Start arms the watcher: its callback will fire the next time its
// direction becomes ready on its fd.
func (w *ioWatcher) Start() {
	if w.active {
		return
	}
	w.active = true
	w.loop.updateFD(w.fd)
}

// Stop disarms the watcher without releasing it back to the free list.
func (w *ioWatcher) Stop() {
	if !w.active {
		return
	}
	w.active = false
	w.loop.updateFD(w.fd)
}

type fdWatchers struct {
	readW, writeW *ioWatcher
}

// EventLoop is the single-threaded, cooperative runtime all Streams and
// Servers are driven by. One EventLoop owns one poller, one set of
// idle-timeout buckets worth of Timers, and one next-tick queue.
type EventLoop struct {
	p    poller
	fds  map[int]*fdWatchers
	mask map[int]uint32 // fd -> currently-registered epoll mask

	watcherFree *FreeList[*ioWatcher]

	timers []*Timer

	ticks *nextTickQueue

	running bool

	debug *DebugProbes

	// Pool, Idle, and Resolver are the shared collaborators every
	// Stream on this loop uses: one buffer pool, one set of idle-timeout
	// buckets, one address-resolution adapter. They live on the EventLoop
	// rather than as package globals so that more than one loop can
	// coexist in a process (e.g. in tests), while a single loop's Streams
	// still observe single-threaded sharing of this state.
	Pool     *BufferPool
	Idle     *IdleScheduler
	Resolver *Resolver
}

// NewEventLoop constructs an EventLoop backed by the host platform's poller.
func NewEventLoop() (*EventLoop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	l := &EventLoop{
		p:     p,
		fds:   make(map[int]*fdWatchers),
		mask:  make(map[int]uint32),
		ticks: newNextTickQueue(),
		debug: NewDebugProbes(),
	}
	l.watcherFree = NewFreeList(100, func() *ioWatcher { return &ioWatcher{} })
	l.debug.RegisterProbe("event_loop.watched_fds", func() any { return len(l.fds) })
	l.debug.RegisterProbe("event_loop.pending_ticks", func() any { return l.ticks.len() })

	l.Pool = NewBufferPool(0, 0)
	l.debug.RegisterProbe("buffer_pool.slab_used", func() any {
		if l.Pool.cur == nil {
			return 0
		}
		return l.Pool.cur.used
	})
	l.Idle = NewIdleScheduler(l)
	l.Resolver = NewResolver(l)
	return l, nil
}

// Debug exposes the loop's introspection probe registry.
func (l *EventLoop) Debug() *DebugProbes { return l.debug }

func (l *EventLoop) now() int64 { return time.Now().UnixNano() }

// watch allocates (from the free list) a watcher for fd's given direction
// and registers it as that fd's read or write slot.
func (l *EventLoop) watch(fd int, dir uint32, cb func()) *ioWatcher {
	w := l.watcherFree.Alloc()
	w.loop, w.fd, w.dir, w.active, w.cb = l, fd, dir, false, cb

	fw := l.fds[fd]
	if fw == nil {
		fw = &fdWatchers{}
		l.fds[fd] = fw
	}
	if dir == wantRead {
		fw.readW = w
	} else {
		fw.writeW = w
	}
	return w
}

// unwatch disarms and releases w back to the free list.
func (l *EventLoop) unwatch(w *ioWatcher) {
	if w == nil {
		return
	}
	w.Stop()
	if fw := l.fds[w.fd]; fw != nil {
		if fw.readW == w {
			fw.readW = nil
		}
		if fw.writeW == w {
			fw.writeW = nil
		}
		if fw.readW == nil && fw.writeW == nil {
			delete(l.fds, w.fd)
		}
	}
	w.cb = nil
	l.watcherFree.Free(w)
}

// updateFD recomputes the desired epoll mask for fd from its active
// watchers and issues the minimal add/mod/delete syscall, generalizing
// fzft-go-mock-redis's registerRead/registerWrite/deregisterWrite idiom
// (register_unix.go) to two independently-armable watchers per fd.
func (l *EventLoop) updateFD(fd int) {
	var desired uint32
	if fw := l.fds[fd]; fw != nil {
		if fw.readW != nil && fw.readW.active {
			desired |= wantRead
		}
		if fw.writeW != nil && fw.writeW.active {
			desired |= wantWrite
		}
	}

	cur, known := l.mask[fd]
	if known && cur == desired {
		return
	}

	var err error
	switch {
	case desired == 0:
		err = l.p.deleteFD(fd)
		delete(l.mask, fd)
	case !known:
		err = l.p.registerFD(fd, desired)
		l.mask[fd] = desired
	default:
		err = l.p.modifyFD(fd, desired)
		l.mask[fd] = desired
	}
	if err != nil {
		log.Logger.Error("event loop: failed to update fd registration", zap.Int("fd", fd), zap.Error(err))
	}
}

// registerTimer adds t to the loop's timer list the first time it is armed.
func (l *EventLoop) registerTimer(t *Timer) {
	for _, existing := range l.timers {
		if existing == t {
			return
		}
	}
	l.timers = append(l.timers, t)
}

// nextTimeout computes the epoll_wait timeout in ms: the smallest remaining
// delta across all armed timers, or -1 (block) if none are armed. Because
// the number of distinct timeout buckets in practice is tiny, a linear scan
// is simpler and cheaper than a heap.
func (l *EventLoop) nextTimeout() int {
	now := l.now()
	best := int64(-1)
	for _, t := range l.timers {
		if !t.active {
			continue
		}
		remaining := t.deadline - now
		if remaining < 0 {
			remaining = 0
		}
		if best < 0 || remaining < best {
			best = remaining
		}
	}
	if best < 0 {
		return -1
	}
	ms := best / int64(time.Millisecond)
	if ms > 1<<31-1 {
		ms = 1<<31 - 1
	}
	return int(ms)
}

func (l *EventLoop) scanTimers(now int64) {
	for _, t := range l.timers {
		if t.active && t.deadline <= now {
			t.active = false
			t.cb()
		}
	}
}

// NewTimer creates a repeating timer whose callback runs on the loop thread.
// It starts disarmed; call Again to arm it.
func (l *EventLoop) NewTimer(cb func()) *Timer {
	return &Timer{loop: l, cb: cb}
}

// NextTick defers fn to run after the current callback returns and before
// the loop polls for I/O again. Safe to call from any goroutine.
func (l *EventLoop) NextTick(fn func()) {
	l.ticks.Post(fn)
	_ = l.p.wake()
}

// Run drives the loop until Stop is called.
func (l *EventLoop) Run() {
	l.running = true
	for l.running {
		l.ticks.drain()
		if !l.running {
			break
		}

		timeout := l.nextTimeout()
		events, err := l.p.wait(timeout)
		if err != nil {
			log.Logger.Error("event loop: poll failed", zap.Error(err))
			continue
		}

		for _, ev := range events {
			l.dispatch(ev)
		}

		l.scanTimers(l.now())
	}
}

// Stop ends the loop after the current iteration.
func (l *EventLoop) Stop() {
	if !l.running {
		return
	}
	l.running = false
	_ = l.p.wake()
}

// Close releases the poller's own resources. Call after Run returns.
func (l *EventLoop) Close() error {
	return l.p.close()
}

func (l *EventLoop) dispatch(ev readyEvent) {
	fw := l.fds[ev.fd]
	if fw == nil {
		return
	}

	if ev.errored {
		switch {
		case fw.readW != nil && fw.readW.active:
			fw.readW.cb()
		case fw.writeW != nil && fw.writeW.active:
			fw.writeW.cb()
		}
		return
	}

	if ev.readable {
		if fw := l.fds[ev.fd]; fw != nil && fw.readW != nil && fw.readW.active {
			fw.readW.cb()
		}
	}
	if ev.writable {
		if fw := l.fds[ev.fd]; fw != nil && fw.writeW != nil && fw.writeW.active {
			fw.writeW.cb()
		}
	}
}
