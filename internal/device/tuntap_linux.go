//go:build linux

package device

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/packetlayer/netstack/internal/logging"
)

// TunTap drives a multiqueue Linux TUN device: one fd per queue, all bound
// to the same interface name via IFF_MULTI_QUEUE.
//
// Grounded on pymq-tailscale/net/tstun/tap_linux.go's createTAPLinux/
// openDevice (unix.Open("/dev/net/tun", ...), unix.NewIfreq,
// ifr.SetUint16(IFF_TAP|IFF_NO_PI), unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr))
// and on original_source/src/phy/tuntap_interface.rs, which opens one fd per
// queue against the same ifname. This implementation is IFF_TUN (IP medium,
// no Ethernet framing), whereas the tap_linux.go example opens a TAP device.
type TunTap struct {
	fds  []int
	name string
	mtu  int
	mu   []sync.Mutex
}

// OpenTunTap creates (or attaches to) the named TUN interface with
// queueCount independent fds.
func OpenTunTap(name string, queueCount, mtu int) (*TunTap, error) {
	if queueCount < 1 {
		queueCount = 1
	}
	t := &TunTap{
		fds:  make([]int, queueCount),
		name: name,
		mtu:  mtu,
		mu:   make([]sync.Mutex, queueCount),
	}
	for i := 0; i < queueCount; i++ {
		fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
		if err != nil {
			t.closeOpened(i)
			return nil, err
		}
		ifr, err := unix.NewIfreq(name)
		if err != nil {
			unix.Close(fd)
			t.closeOpened(i)
			return nil, err
		}
		ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI | unix.IFF_MULTI_QUEUE)
		if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
			unix.Close(fd)
			t.closeOpened(i)
			return nil, err
		}
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			t.closeOpened(i)
			return nil, err
		}
		t.fds[i] = fd
	}
	return t, nil
}

func (t *TunTap) closeOpened(n int) {
	for i := 0; i < n; i++ {
		unix.Close(t.fds[i])
	}
}

// Close releases every queue's fd.
func (t *TunTap) Close() error {
	var first error
	for _, fd := range t.fds {
		if err := unix.Close(fd); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *TunTap) Capabilities() Capabilities {
	return Capabilities{
		MaxTransmissionUnit: t.mtu,
		Medium:              MediumIp,
		Checksum:            DefaultChecksumPolicy,
		QueueCount:          len(t.fds),
	}
}

// Fd exposes the raw fd for queueID, for a Waiter to register with epoll.
func (t *TunTap) Fd(queueID int) int { return t.fds[queueID] }

type tunRx struct {
	frame []byte
}

func (r *tunRx) Consume(fn func(frame []byte) error) error {
	return fn(r.frame)
}

type tunTx struct {
	t       *TunTap
	queueID int
}

func (w *tunTx) Consume(length int, fn func(frame []byte) error) error {
	buf := make([]byte, length)
	if err := fn(buf); err != nil {
		return err
	}
	w.t.mu[w.queueID].Lock()
	_, err := unix.Write(w.t.fds[w.queueID], buf)
	w.t.mu[w.queueID].Unlock()
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		// Queue full: the frame is dropped and logged; Consume still
		// returns nil.
		logging.Default().Debugf("tuntap queue %d: transmit queue full, dropping %d-byte frame", w.queueID, length)
		return nil
	}
	return err
}

// Receive reads up to MTU bytes from queueID's fd, mapping EAGAIN to "no
// frame ready" per the device contract.
func (t *TunTap) Receive(now time.Time, queueID int) (RxToken, TxToken, bool) {
	buf := make([]byte, t.mtu)
	t.mu[queueID].Lock()
	n, err := unix.Read(t.fds[queueID], buf)
	t.mu[queueID].Unlock()
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return nil, nil, false
	}
	if err != nil || n <= 0 {
		return nil, nil, false
	}
	rx := &tunRx{frame: buf[:n]}
	tx := &tunTx{t: t, queueID: queueID}
	return rx, tx, true
}

func (t *TunTap) Transmit(now time.Time, queueID int) (TxToken, bool) {
	return &tunTx{t: t, queueID: queueID}, true
}
