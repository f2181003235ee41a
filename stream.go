package nbio

import "net"

// TransportKind distinguishes the two socket families a Stream can wrap.
type TransportKind int

const (
	TransportTCP TransportKind = iota
	TransportUnix
)

// ReadyState is the Stream's derived, observable status.
type ReadyState int

const (
	StateOpening ReadyState = iota
	StateOpen
	StateReadOnly
	StateWriteOnly
	StateClosed
)

func (r ReadyState) String() string {
	switch r {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateReadOnly:
		return "readOnly"
	case StateWriteOnly:
		return "writeOnly"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Encoding selects how inbound data is delivered to "data" listeners.
// EncodingNone (the zero value) delivers the raw []byte read from the OS.
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingUTF8
	EncodingASCII
)

// writeItem is one entry in a Stream's write queue: either a pending
// buffer — backed by a pool BufferView or a private []byte — carrying
// sent/used cursors, or the EOF sentinel requesting a shutdown-write once
// reached.
type writeItem struct {
	eof  bool
	pool BufferView // valid when pool.slab != nil; takes precedence over priv
	priv []byte     // valid when pool.slab == nil && !eof
	sent int
}

func (w *writeItem) bytes() []byte {
	if w.pool.slab != nil {
		return w.pool.Bytes()
	}
	return w.priv
}

func (w *writeItem) remaining() []byte { return w.bytes()[w.sent:] }

// Stream is a connection endpoint: the per-connection state machine covering
// non-blocking connect, pooled read buffers, write queueing with
// partial-write rescheduling, half-shutdown, and forced teardown. It has no
// direct equivalent in fzft-go-mock-redis's own shape — that repo's
// node/conn_unix.go connection type buffers outbound writes in a
// bytes.Buffer and re-registers EPOLLOUT wholesale on any short write, with
// no idle-timeout or pooled-read-buffer concept; Stream generalizes that
// idiom into the fuller state machine this package needs, reusing the same
// "register read, register write, deregister write once drained" epoll
// rhythm via the EventLoop's ioWatchers.
type Stream struct {
	EventEmitter

	loop *EventLoop
	kind TransportKind

	fd       int // -1 means closed/null
	readable bool
	writable bool
	resolving bool

	forceClosed bool // guards late async callbacks after forceClose

	readW  *ioWatcher
	writeW *ioWatcher

	queue       []writeItem
	writeClosed bool // true once the EOF sentinel has been enqueued

	encoding Encoding

	peerAddr net.Addr

	// ondata, if set, is invoked in lieu of a "data" event emission — an
	// optimisation for callers who don't need a retained slice per read. It
	// receives the full backing slab plus the [start,end) range just read,
	// letting a caller avoid a slice allocation per read when it does not
	// need retained ownership.
	ondata func(slab []byte, start, end int)

	// Idle-timeout linkage; owned and mutated
	// exclusively by IdleScheduler in idletimeout.go.
	idlePrev, idleNext *Stream
	idleBucket         *idleBucket
	idleStart          int64
	timeoutMs          int64
}

func newStream(loop *EventLoop, kind TransportKind) *Stream {
	return &Stream{loop: loop, kind: kind, fd: -1}
}

// Kind reports whether the stream is a TCP or UNIX-domain socket.
func (s *Stream) Kind() TransportKind { return s.kind }

// Fd exposes the underlying OS file descriptor, or -1 if closed.
func (s *Stream) Fd() int { return s.fd }

// newAcceptedStream wraps an already-connected fd handed back by a Server's
// accept-drain loop. Unlike connect(), accept() enters the "open" state
// directly: both directions are immediately usable, no write-readiness
// dance is needed to detect completion.
func newAcceptedStream(loop *EventLoop, fd int, kind TransportKind, peer net.Addr) *Stream {
	s := newStream(loop, kind)
	s.fd = fd
	s.peerAddr = peer
	s.readable = true
	s.writable = true
	s.readW = loop.watch(fd, wantRead, s.onReadable)
	s.writeW = loop.watch(fd, wantWrite, s.onWritable)
	s.readW.Start()
	return s
}

// DialTCP creates a Stream and begins a non-blocking TCP connect to
// host:port. If host is not already a literal address, resolution happens
// asynchronously via the loop's Resolver; readyState is StateOpening until
// the connect completes. An empty host defaults to the loopback address.
func DialTCP(loop *EventLoop, host string, port int) (*Stream, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	s := newStream(loop, TransportTCP)
	s.resolving = true
	loop.Resolver.Lookup(host, func(addr string, err error) {
		if s.forceClosed {
			return // a pending resolve cannot be cancelled; no-op on a closed Stream
		}
		s.resolving = false
		if err != nil {
			s.forceClose(err) // resolver errors are fatal to the caller of connect
			return
		}
		ip := net.ParseIP(addr)
		fd, derr := dialTCPSocket(ip, port)
		if derr != nil {
			s.forceClose(derr)
			return
		}
		s.fd = fd
		s.armConnectWatchers()
	})
	return s, nil
}

// DialUnix creates a Stream and begins a non-blocking connect to a
// UNIX-domain socket at path. There is no resolution step.
func DialUnix(loop *EventLoop, path string) (*Stream, error) {
	s := newStream(loop, TransportUnix)
	fd, err := dialUnixSocket(path)
	if err != nil {
		return nil, err
	}
	s.fd = fd
	s.armConnectWatchers()
	return s, nil
}

// armConnectWatchers arms the read watcher (left stopped until the connect
// completes) and the write watcher on its first-fire, connect-completion
// callback: the write watcher's readiness callback, on first fire, queries
// the socket error.
func (s *Stream) armConnectWatchers() {
	s.readW = s.loop.watch(s.fd, wantRead, s.onReadable)
	s.writeW = s.loop.watch(s.fd, wantWrite, s.onConnectWritable)
	s.writeW.Start()
}

func (s *Stream) onConnectWritable() {
	if s.forceClosed {
		return
	}
	connected, inProgress, err := socketConnectResult(s.fd)
	if err != nil {
		s.forceClose(err)
		return
	}
	if inProgress {
		return // still connecting; watcher stays armed for the next writable notification
	}
	if !connected {
		return
	}
	s.finishConnect()
}

// finishConnect transitions a successfully-connected Stream into the open
// state and swaps the write watcher's callback onto the regular flush
// routine: a zero SO_ERROR means connected, so we emit connect and swap
// the callback to the flush routine.
func (s *Stream) finishConnect() {
	s.readable = true
	s.writable = true
	s.emit(EventConnect)
	s.writeW.cb = s.onWritable
	s.writeW.Stop()
	s.readW.Start()
}

// ReadyState derives the Stream's observable status from (fd, resolving,
// readable, writable) as a pure function of that tuple. A transitional
// "connecting" state (post-resolve, pre-write-ready: not resolving, not
// readable, not writable) is not separately observable — it folds into
// StateOpening, keeping the observable set to five states.
func (s *Stream) ReadyState() ReadyState {
	switch {
	case s.resolving:
		return StateOpening
	case s.fd < 0:
		return StateClosed
	case s.readable && s.writable:
		return StateOpen
	case s.readable:
		return StateReadOnly
	case s.writable:
		return StateWriteOnly
	default:
		return StateOpening
	}
}

// Address returns the OS's view of the local endpoint.
func (s *Stream) Address() (net.Addr, error) {
	if s.fd < 0 {
		return nil, ErrStreamClosed
	}
	return getLocalAddr(s.fd)
}

// RemoteAddress returns the peer address attached at accept time, or nil for
// a Stream created via DialTCP/DialUnix.
func (s *Stream) RemoteAddress() net.Addr { return s.peerAddr }

// SetNoDelay toggles TCP_NODELAY. It is a caller error to call this on a
// UNIX-domain Stream.
func (s *Stream) SetNoDelay(on bool) error {
	if s.kind != TransportTCP {
		return ErrNotSupported
	}
	if s.fd < 0 {
		return ErrStreamClosed
	}
	return setNoDelay(s.fd, on)
}

// SetEncoding configures text decoding for subsequent "data" events. Passing
// EncodingNone (the default) delivers raw []byte slices instead.
func (s *Stream) SetEncoding(enc Encoding) { s.encoding = enc }

// SetTimeout delegates to the event loop's idle-timeout scheduler. ms <= 0
// disables the timeout.
func (s *Stream) SetTimeout(ms int64) { s.loop.Idle.Enroll(s, ms) }

// OnData installs the read-path optimisation callback: when set, it is
// invoked with the backing slab and [start,end) range of each successful
// read in lieu of a "data" event.
func (s *Stream) OnData(fn func(slab []byte, start, end int)) { s.ondata = fn }

// Pause stops the read watcher; Resume restarts it. Both are idempotent:
// pause(); pause(); resume() behaves the same as pause(); resume().
func (s *Stream) Pause() {
	if s.readW != nil {
		s.readW.Stop()
	}
}

func (s *Stream) Resume() error {
	if s.fd < 0 {
		return ErrStreamClosed
	}
	s.readW.Start()
	return nil
}

// Write queues or sends data, returning true iff every byte reached the OS
// synchronously. The slice must not be mutated by the caller until the
// Stream has finished sending it — forceClose or a later drain event are
// the signals that it is safe to reuse.
func (s *Stream) Write(data []byte) (bool, error) {
	return s.enqueue(writeItem{priv: data})
}

// WriteString is the fast-path write: for data short enough to fit the
// shared buffer pool's slab capacity, it is encoded directly into the pool
// rather than allocated as a private buffer.
func (s *Stream) WriteString(data string) (bool, error) {
	if s.writeClosed {
		return false, ErrClosedWrite
	}
	if !s.writable {
		return false, ErrNotWritable
	}
	if len(s.queue) > 0 {
		s.queue = append(s.queue, writeItem{priv: []byte(data)})
		return false, nil
	}
	n := len(data)
	var item writeItem
	if s.loop.Pool.Fits(n) {
		view := s.loop.Pool.ReservedWrite(n)
		copy(view.Bytes(), data)
		item = writeItem{pool: view}
	} else {
		item = writeItem{priv: []byte(data)}
	}
	return s.attemptWrite(item)
}

// enqueue implements the queue-or-send decision common to Write and
// WriteString: append behind an already-nonempty queue, or attempt the
// write immediately.
func (s *Stream) enqueue(item writeItem) (bool, error) {
	if s.writeClosed {
		return false, ErrClosedWrite
	}
	if !s.writable {
		return false, ErrNotWritable
	}
	if len(s.queue) > 0 {
		s.queue = append(s.queue, item)
		return false, nil
	}
	return s.attemptWrite(item)
}

// attemptWrite issues a single OS write of item's unsent tail. A full write
// releases any pool reservation and marks the stream active on the
// idle-timeout scheduler; a short write (including zero bytes, i.e.
// would-block) re-queues the residual at the front of the queue and arms
// the write watcher — never surfaced to the caller as an error; a partial
// write is recovered locally.
func (s *Stream) attemptWrite(item writeItem) (bool, error) {
	buf := item.remaining()
	n, err := writeFD(s.fd, buf)
	if err != nil {
		s.forceClose(err)
		return false, err
	}
	if n == len(buf) {
		if item.pool.slab != nil {
			s.loop.Pool.Rewind(item.pool)
		}
		s.loop.Idle.Active(s)
		return true, nil
	}
	item.sent += n
	s.queue = append([]writeItem{item}, s.queue...)
	s.writeW.Start()
	return false, nil
}

// onWritable is the write watcher's steady-state callback once a Stream is
// open (installed by finishConnect, or directly for accepted streams): it
// simply continues draining the queue.
func (s *Stream) onWritable() {
	if s.forceClosed {
		return
	}
	s.flush()
}

// Flush drains the write queue from the head, stopping at the first
// residual or at the EOF sentinel. It returns true iff the queue fully
// drained (including performing the shutdown-write if the drain reached
// the EOF sentinel).
func (s *Stream) Flush() bool { return s.flush() }

func (s *Stream) flush() bool {
	if len(s.queue) == 0 {
		if s.writeW != nil {
			s.writeW.Stop()
		}
		return true
	}
	for len(s.queue) > 0 {
		head := s.queue[0]
		if head.eof {
			s.queue = s.queue[1:]
			if err := shutdownWrite(s.fd); err != nil {
				s.forceClose(err)
				return false
			}
			s.writable = false
			if !s.readable {
				s.forceClose(nil)
			}
			return true
		}
		s.queue = s.queue[1:]
		ok, err := s.attemptWrite(head)
		if err != nil || !ok {
			return false
		}
	}
	s.writeW.Stop()
	s.emit(EventDrain)
	return true
}

// Close performs a graceful shutdown: it enqueues the EOF sentinel and
// triggers a flush, so the underlying shutdown(fd, SHUT_WR) happens once any
// already-queued bytes finish draining. Calling Close more than once is a
// no-op.
func (s *Stream) Close() {
	if s.writeClosed {
		return
	}
	s.writeClosed = true
	s.queue = append(s.queue, writeItem{eof: true})
	if len(s.queue) == 1 {
		s.flush()
	}
}

// ForceClose immediately tears the Stream down: both watchers are detached
// and freed, it is unenrolled from the idle-timeout scheduler, the fd is
// closed, and — on the event loop's next tick — an "error" event (if err is
// non-nil) followed by a "close" event fires.
func (s *Stream) ForceClose(err error) { s.forceClose(err) }

func (s *Stream) forceClose(err error) {
	if s.forceClosed {
		return
	}
	fd := s.fd
	s.fd = -1
	s.readable = false
	s.writable = false
	s.resolving = false
	s.forceClosed = true

	if s.readW != nil {
		s.loop.unwatch(s.readW)
		s.readW = nil
	}
	if s.writeW != nil {
		s.loop.unwatch(s.writeW)
		s.writeW = nil
	}
	s.loop.Idle.Unenroll(s)
	s.queue = nil

	if fd >= 0 {
		closeFD(fd)
	}

	hadError := err != nil
	s.loop.NextTick(func() {
		if err != nil {
			s.emit(EventError, err)
		}
		s.emit(EventClose, hadError)
	})
}

// onReadable is the read watcher's readiness callback.
func (s *Stream) onReadable() {
	view, dst := s.loop.Pool.Available()
	n, err := readFD(s.fd, dst)
	if err != nil {
		if err == errWouldBlock {
			return
		}
		s.forceClose(err)
		return
	}
	if n == 0 {
		s.readable = false
		s.readW.Stop()
		s.emit(EventEnd)
		if !s.writable {
			s.forceClose(nil)
		}
		return
	}

	bv := view(n)
	s.loop.Idle.Active(s)

	switch {
	case s.ondata != nil:
		s.ondata(bv.slab.buf, bv.offset, bv.offset+bv.length)
	case s.encoding != EncodingNone:
		s.emit(EventData, s.decode(bv.Bytes()))
	default:
		s.emit(EventData, bv.Bytes())
	}
}

func (s *Stream) decode(b []byte) string {
	if s.encoding == EncodingASCII {
		out := make([]byte, len(b))
		for i, c := range b {
			out[i] = c & 0x7f
		}
		return string(out)
	}
	return string(b)
}
