//go:build linux
// +build linux

package nbio

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// This file is the concrete side of the socket-syscall surface, grounded
// on fzft-go-mock-redis's accept/non-blocking idiom in poll_unix.go
// (`unix.Accept`, `unix.SetNonblock`) and register_unix.go
// (`os.NewSyscallError` wrapping of every epoll_ctl call), generalized to
// connect, listen, and shutdown. Every fd it hands out is already
// non-blocking and close-on-exec.

func tcpSockaddr(ip net.IP, port int) (unix.Sockaddr, error) {
	if ip4 := ip.To4(); ip4 != nil {
		var a [4]byte
		copy(a[:], ip4)
		return &unix.SockaddrInet4{Port: port, Addr: a}, nil
	}
	if ip6 := ip.To16(); ip6 != nil {
		var a [16]byte
		copy(a[:], ip6)
		return &unix.SockaddrInet6{Port: port, Addr: a}, nil
	}
	return nil, fmt.Errorf("nbio: %v is not a valid IPv4/IPv6 address", ip)
}

func familyForIP(ip net.IP) int {
	if ip.To4() != nil {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

// dialTCPSocket creates a non-blocking TCP socket and issues a non-blocking
// connect to (ip, port). EINPROGRESS is the expected outcome and is not
// surfaced as an error: the caller learns the real outcome from
// socketConnectResult once the write watcher fires.
func dialTCPSocket(ip net.IP, port int) (int, error) {
	fd, err := unix.Socket(familyForIP(ip), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, errnoException(err, "socket")
	}
	sa, err := tcpSockaddr(ip, port)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, errnoException(err, "connect")
	}
	return fd, nil
}

// dialUnixSocket is dialTCPSocket's UNIX-domain counterpart.
func dialUnixSocket(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, errnoException(err, "socket")
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, errnoException(err, "connect")
	}
	return fd, nil
}

// socketConnectResult queries SO_ERROR on a connecting socket and classifies
// it per the write-watcher-first-fire rule: zero means connected, EINPROGRESS
// means keep waiting, anything else is fatal.
func socketConnectResult(fd int) (connected, inProgress bool, err error) {
	errno, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		return false, false, errnoException(gerr, "getsockopt(SO_ERROR)")
	}
	switch unix.Errno(errno) {
	case 0:
		return true, false, nil
	case unix.EINPROGRESS:
		return false, true, nil
	default:
		return false, false, errnoException(unix.Errno(errno), "connect")
	}
}

const defaultListenBacklog = 128

func listenTCPSocket(host string, port int, backlog int) (int, net.Addr, error) {
	ip := net.IPv4zero
	if host != "" {
		parsed := net.ParseIP(host)
		if parsed == nil {
			return -1, nil, fmt.Errorf("nbio: listen host %q is not a literal IP address", host)
		}
		ip = parsed
	}
	fd, err := unix.Socket(familyForIP(ip), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, nil, errnoException(err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, nil, errnoException(err, "setsockopt(SO_REUSEADDR)")
	}
	sa, err := tcpSockaddr(ip, port)
	if err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, errnoException(err, "bind")
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, nil, errnoException(err, "listen")
	}
	addr, err := getLocalAddr(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, addr, nil
}

func listenUnixSocket(path string, backlog int) (int, net.Addr, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, nil, errnoException(err, "socket")
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, errnoException(err, "bind")
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, nil, errnoException(err, "listen")
	}
	return fd, &net.UnixAddr{Name: path, Net: "unix"}, nil
}

// acceptSocket drains one pending connection. A nil Addr with a nil error
// and fd -1 signals "no more connections to accept right now" — the OS
// would-block outcome, represented here as a null peer, which the Server's
// accept-drain loop uses to know when to stop.
func acceptSocket(fd int) (int, net.Addr, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return -1, nil, nil
		}
		return -1, nil, errnoException(err, "accept4")
	}
	return nfd, sockaddrToAddr(sa), nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Name: a.Name, Net: "unix"}
	default:
		return nil
	}
}

func getLocalAddr(fd int) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, errnoException(err, "getsockname")
	}
	return sockaddrToAddr(sa), nil
}

// readFD wraps a single non-blocking read. EAGAIN/EWOULDBLOCK is reported as
// errWouldBlock rather than a real error or an EOF, distinguishing "no data
// right now" (spurious readiness) from both outcomes the read path cares
// about.
func readFD(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, errWouldBlock
		}
		return 0, errnoException(err, "read")
	}
	return n, nil
}

// writeFD wraps a single non-blocking write. A would-block outcome is
// reported as (0, nil) — from the write path's perspective that is
// indistinguishable from a short write of zero bytes, which is handled the
// same way: queue the (whole) residual and re-arm.
func writeFD(fd int, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := unix.Write(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		return 0, errnoException(err, "write")
	}
	return n, nil
}

func shutdownWrite(fd int) error {
	return errnoException(unix.Shutdown(fd, unix.SHUT_WR), "shutdown")
}

func closeFD(fd int) error {
	return errnoException(unix.Close(fd), "close")
}

func setNoDelay(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return errnoException(unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v), "setsockopt(TCP_NODELAY)")
}

func statPath(path string) (os.FileInfo, error) { return os.Stat(path) }

func unlinkPath(path string) error { return os.Remove(path) }
