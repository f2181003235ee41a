//go:build !linux
// +build !linux

package nbio

// newPoller has no non-Linux backend: the runtime's readiness model
// (epoll-based level-triggered watchers, eventfd wake) is Linux-specific, as
// it is for fzft-go-mock-redis, the repo this package is grounded on.
// Callers on other platforms get a clear error instead of a silently broken
// loop.
func newPoller() (poller, error) {
	return nil, ErrNotSupported
}
