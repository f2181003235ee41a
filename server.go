package nbio

import "net"

// Server listens for and accepts inbound stream connections. It generalizes
// fzft-go-mock-redis's server.go/reactor.go accept loop — which hard-coded a
// single TCP listener feeding a fixed Redis client handler — into a
// transport-agnostic listener that hands back a Stream per connection and
// lets the caller decide what to do with it via the "connection" event.
type Server struct {
	EventEmitter

	loop *EventLoop
	kind TransportKind

	fd      int
	addr    net.Addr
	backlog int

	acceptW *ioWatcher

	closed bool
}

// NewServer creates an unbound, unlistening Server. Call ListenTCP or
// ListenUnix to bind and start accepting.
func NewServer(loop *EventLoop) *Server {
	return &Server{loop: loop, fd: -1, backlog: defaultListenBacklog}
}

// SetBacklog overrides the listen backlog; must be called before ListenTCP
// or ListenUnix.
func (srv *Server) SetBacklog(n int) {
	if n > 0 {
		srv.backlog = n
	}
}

// ListenTCP binds and listens on host:port. An empty host binds all
// interfaces. Emits "listening" once bound.
func (srv *Server) ListenTCP(host string, port int) error {
	if srv.fd >= 0 {
		return ErrAlreadyListening
	}
	fd, addr, err := listenTCPSocket(host, port, srv.backlog)
	if err != nil {
		return err
	}
	srv.kind = TransportTCP
	srv.bind(fd, addr)
	return nil
}

// ListenUnix binds and listens on a UNIX-domain socket at path. If a regular
// file already exists at path it is unlinked first; any other kind of entry
// there (a directory, a socket, a device) is refused with ErrUnixPathNotFile
// and left in place.
func (srv *Server) ListenUnix(path string) error {
	if srv.fd >= 0 {
		return ErrAlreadyListening
	}
	if fi, err := statPath(path); err == nil {
		if !fi.Mode().IsRegular() {
			return ErrUnixPathNotFile
		}
		if err := unlinkPath(path); err != nil {
			return err
		}
	}
	fd, addr, err := listenUnixSocket(path, srv.backlog)
	if err != nil {
		return err
	}
	srv.kind = TransportUnix
	srv.bind(fd, addr)
	return nil
}

func (srv *Server) bind(fd int, addr net.Addr) {
	srv.fd = fd
	srv.addr = addr
	srv.acceptW = srv.loop.watch(fd, wantRead, srv.onAcceptable)
	srv.acceptW.Start()
	srv.emit(EventListening)
}

// Address returns the server's bound local address, or nil if not
// listening.
func (srv *Server) Address() net.Addr { return srv.addr }

// onAcceptable drains every pending connection in one pass — repeating
// accept until it reports no more pending connections — emitting
// "connection" with a freshly wrapped Stream for each.
func (srv *Server) onAcceptable() {
	for {
		fd, peer, err := acceptSocket(srv.fd)
		if err != nil {
			srv.emit(EventError, err)
			return
		}
		if fd < 0 {
			return // no more pending connections right now
		}
		conn := newAcceptedStream(srv.loop, fd, srv.kind, peer)
		srv.emit(EventConnection, conn)
	}
}

// Close stops accepting and releases the listening socket — for UNIX
// listeners, unlinking the bound path so a later Listen on the same path
// does not find a stale socket file. Already-accepted Streams are
// unaffected — the caller owns their lifecycle.
func (srv *Server) Close() error {
	if srv.closed || srv.fd < 0 {
		return nil
	}
	srv.closed = true
	srv.loop.unwatch(srv.acceptW)
	srv.acceptW = nil
	fd := srv.fd
	srv.fd = -1

	var errs MultiError
	if err := closeFD(fd); err != nil {
		errs = append(errs, err)
	}
	if srv.kind == TransportUnix {
		if ua, ok := srv.addr.(*net.UnixAddr); ok {
			if err := unlinkPath(ua.Name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	var err error
	if len(errs) > 0 {
		err = errs
	}
	srv.loop.NextTick(func() { srv.emit(EventClose, err != nil) })
	return err
}
