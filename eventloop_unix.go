//go:build linux
// +build linux

package nbio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// epollPoller is the concrete Linux backend for poller, adapted from
// fzft-go-mock-redis's poll_unix.go/register_unix.go: an epoll instance plus
// an eventfd used to interrupt a blocked EpollWait, generalized from that
// repo's single "stop signal" use into a general wake primitive also used
// to unblock the loop when a cross-thread NextTick is posted.
type epollPoller struct {
	epfd int
	wfd  int // eventfd, level-triggered wake source

	events []unix.EpollEvent
}

const maxPollEvents = 256

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, wrapf("epoll_create1", err)
	}

	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, wrapf("eventfd", err)
	}

	p := &epollPoller{epfd: epfd, wfd: wfd, events: make([]unix.EpollEvent, maxPollEvents)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wfd, &unix.EpollEvent{Fd: int32(wfd), Events: unix.EPOLLIN}); err != nil {
		unix.Close(wfd)
		unix.Close(epfd)
		return nil, wrapf("epoll_ctl(wake)", err)
	}
	return p, nil
}

func epollEventsFor(mask uint32) uint32 {
	var ev uint32
	if mask&wantRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if mask&wantWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) registerFD(fd int, mask uint32) error {
	return errnoException(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollEventsFor(mask)}), "epoll_ctl_add")
}

func (p *epollPoller) modifyFD(fd int, mask uint32) error {
	return errnoException(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollEventsFor(mask)}), "epoll_ctl_mod")
}

func (p *epollPoller) deleteFD(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return errnoException(err, "epoll_ctl_del")
}

func (p *epollPoller) wait(timeoutMs int) ([]readyEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errnoException(err, "epoll_wait")
	}

	out := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		if int(ev.Fd) == p.wfd {
			p.drainWake()
			continue
		}
		re := readyEvent{fd: int(ev.Fd)}
		if ev.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
			re.readable = true
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			re.writable = true
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			re.errored = true
		}
		out = append(out, re)
	}
	return out, nil
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wfd, buf[:])
		if err != nil {
			return
		}
	}
}

func (p *epollPoller) wake() error {
	one := uint64(1)
	_, err := unix.Write(p.wfd, (*(*[8]byte)(unsafe.Pointer(&one)))[:])
	if err != nil && err != unix.EAGAIN {
		return errnoException(err, "eventfd_write")
	}
	return nil
}

func (p *epollPoller) close() error {
	var errs MultiError
	if err := unix.Close(p.wfd); err != nil {
		errs = append(errs, err)
	}
	if err := unix.Close(p.epfd); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
