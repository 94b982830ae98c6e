//go:build linux

package device

import (
	"time"

	"golang.org/x/sys/unix"
)

// EpollWaiter is the TUN/TAP readiness primitive: one epoll instance per
// queue, registered against that queue's fd, used by a worker to sleep
// between ticks instead of busy-polling Receive.
type EpollWaiter struct {
	epfds []int
}

// NewEpollWaiter creates one epoll fd per queue of t and registers its fd
// for readability.
func NewEpollWaiter(t *TunTap) (*EpollWaiter, error) {
	w := &EpollWaiter{epfds: make([]int, len(t.fds))}
	for i, fd := range t.fds {
		epfd, err := unix.EpollCreate1(0)
		if err != nil {
			w.Close()
			return nil, err
		}
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			unix.Close(epfd)
			w.Close()
			return nil, err
		}
		w.epfds[i] = epfd
	}
	return w, nil
}

// Wait blocks until queueID's fd is readable or timeout elapses. A spurious
// early return (including io/timer granularity) is legal; callers re-check
// device readiness regardless.
func (w *EpollWaiter) Wait(queueID int, timeout time.Duration) error {
	ms := int(timeout / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	events := make([]unix.EpollEvent, 1)
	for {
		_, err := unix.EpollWait(w.epfds[queueID], events, ms)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// Close releases every queue's epoll fd.
func (w *EpollWaiter) Close() error {
	var first error
	for _, fd := range w.epfds {
		if fd == 0 {
			continue
		}
		if err := unix.Close(fd); err != nil && first == nil {
			first = err
		}
	}
	return first
}
