package nbio

// This file is the small, stable call-in surface an application actually
// uses, sitting on top of the EventLoop/Stream/Server machinery underneath
// it: a couple of constructor functions covering both client and server
// roles, parameterized over an explicit *EventLoop rather than a single
// package-global reactor.

// ConnectOptions configures CreateConnection.
type ConnectOptions struct {
	// Host is the remote address or hostname (TCP) or filesystem path
	// (UNIX). Empty Host with Network "tcp" dials loopback.
	Host string
	// Port is the remote port. Ignored for Network "unix".
	Port int
	// Network selects the transport: "tcp" (default) or "unix".
	Network string
	// TimeoutMs, if > 0, enrolls the returned Stream with the idle-timeout
	// scheduler (via SetTimeout) before the connect attempt is even known to
	// have succeeded. The idle clock starts at the Stream's first read or
	// write.
	TimeoutMs int64
	// NoDelay disables Nagle's algorithm on TCP connections once open.
	NoDelay bool
}

// CreateConnection opens a client Stream per opts. The returned Stream
// starts in StateOpening; attach listeners
// before returning to the event loop to observe "connect", "error", and
// "close" reliably.
func CreateConnection(loop *EventLoop, opts ConnectOptions) (*Stream, error) {
	var s *Stream
	var err error

	switch opts.Network {
	case "unix":
		s, err = DialUnix(loop, opts.Host)
	default:
		s, err = DialTCP(loop, opts.Host, opts.Port)
	}
	if err != nil {
		return nil, err
	}

	if opts.TimeoutMs > 0 {
		s.SetTimeout(opts.TimeoutMs)
	}
	if opts.NoDelay {
		s.On(EventConnect, func(args ...any) { _ = s.SetNoDelay(true) })
	}
	return s, nil
}

// ListenOptions configures CreateServer.
type ListenOptions struct {
	Host    string
	Port    int
	Network string // "tcp" (default) or "unix"
	Backlog int
}

// CreateServer builds and binds a Server per opts. onConnection, if
// non-nil, is registered as the first "connection"
// listener — the common case of wanting to handle every accepted Stream the
// same way, without a separate On call at every call site.
func CreateServer(loop *EventLoop, opts ListenOptions, onConnection func(conn *Stream)) (*Server, error) {
	srv := NewServer(loop)
	if opts.Backlog > 0 {
		srv.SetBacklog(opts.Backlog)
	}
	if onConnection != nil {
		srv.On(EventConnection, func(args ...any) {
			if len(args) > 0 {
				if conn, ok := args[0].(*Stream); ok {
					onConnection(conn)
				}
			}
		})
	}

	var err error
	switch opts.Network {
	case "unix":
		err = srv.ListenUnix(opts.Host)
	default:
		err = srv.ListenTCP(opts.Host, opts.Port)
	}
	if err != nil {
		return nil, err
	}
	return srv, nil
}
