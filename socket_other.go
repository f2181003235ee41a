//go:build !linux
// +build !linux

package nbio

import (
	"net"
	"os"
)

// Non-Linux builds get the same "unsupported" treatment as the event loop
// itself (eventloop_other.go): this runtime's readiness and socket model is
// epoll-specific, as it is for fzft-go-mock-redis, the repo it is grounded
// on. These stubs exist only so Stream, Server, and the idle-timeout
// scheduler — which are themselves platform-neutral Go — still compile;
// every one of them fails at call time rather than at build time.

func dialTCPSocket(ip net.IP, port int) (int, error)        { return -1, ErrNotSupported }
func dialUnixSocket(path string) (int, error)               { return -1, ErrNotSupported }
func socketConnectResult(fd int) (bool, bool, error)        { return false, false, ErrNotSupported }
func listenTCPSocket(host string, port, backlog int) (int, net.Addr, error) {
	return -1, nil, ErrNotSupported
}
func listenUnixSocket(path string, backlog int) (int, net.Addr, error) {
	return -1, nil, ErrNotSupported
}
func acceptSocket(fd int) (int, net.Addr, error) { return -1, nil, ErrNotSupported }
func getLocalAddr(fd int) (net.Addr, error)      { return nil, ErrNotSupported }
func readFD(fd int, buf []byte) (int, error)     { return 0, ErrNotSupported }
func writeFD(fd int, buf []byte) (int, error)    { return 0, ErrNotSupported }
func shutdownWrite(fd int) error                 { return ErrNotSupported }
func closeFD(fd int) error                       { return ErrNotSupported }
func setNoDelay(fd int, on bool) error           { return ErrNotSupported }
func statPath(path string) (os.FileInfo, error)  { return nil, ErrNotSupported }
func unlinkPath(path string) error               { return ErrNotSupported }

const defaultListenBacklog = 128
