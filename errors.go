package nbio

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Caller-misuse errors: raised synchronously, state is left unchanged.
var (
	ErrAlreadyOpen      = errors.New("nbio: stream already open")
	ErrAlreadyListening = errors.New("nbio: server already listening")
	ErrClosedWrite      = errors.New("nbio: close already called")
	ErrNotWritable      = errors.New("nbio: stream is not writable")
	ErrNotReadable      = errors.New("nbio: stream is not readable")
	ErrStreamClosed     = errors.New("nbio: stream is closed")
	ErrUnixPathNotFile  = errors.New("nbio: unix socket path exists and is not a regular file")
	ErrNotSupported     = errors.New("nbio: operation not supported on this platform")
)

// errIdleTimeout is the synthetic error fabricated by the idle-timeout
// scheduler when it force-closes a stream.
var errIdleTimeout = errors.New("idle timeout")

// errWouldBlock signals a spurious readiness notification on the read path:
// the OS reported no data despite EPOLLIN firing. It never escapes this
// package — the read-readiness callback treats it as a no-op, not an error
// or an end-of-stream.
var errWouldBlock = errors.New("nbio: read would block")

// MultiError aggregates independent teardown failures (closing a listening
// socket and unlinking its UNIX path, closing the poller's eventfd and epoll
// fd) without losing any of them.
// Adapted from fzft-go-mock-redis's error.go.
type MultiError []error

func (m MultiError) Error() string {
	if len(m) == 0 {
		return "nbio: no error"
	}
	var b strings.Builder
	b.WriteString("nbio: multiple errors:")
	for _, err := range m {
		b.WriteString("\n- " + err.Error())
	}
	return b.String()
}

// errnoException translates a raw syscall error into the exported error
// shape this package's collaborator contract names `errnoException`. It never
// swallows the underlying errno so callers can still errors.Is/As through it.
func errnoException(err error, syscall string) error {
	if err == nil {
		return nil
	}
	return os.NewSyscallError(syscall, err)
}

func wrapf(syscall string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", syscall, err)
}
