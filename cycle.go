package netstack

import (
	"time"

	"github.com/packetlayer/netstack/internal/device"
	"github.com/packetlayer/netstack/internal/worker"
)

// boundCycle adapts an Interface plus a fixed SocketSet to worker.Cycle,
// since worker.Runner's loop (grounded on the teacher's ioLoop) has no
// notion of a socket registry — it only knows Poll/PollTx/PollAt by queue.
// This is the one seam between spec.md's explicit three-argument
// poll/poll_tx/poll_at API (§6) and the per-queue worker harness that
// drives it continuously.
type boundCycle struct {
	iface   *Interface
	sockets *SocketSet
}

// NewCycle binds iface and sockets into a worker.Cycle suitable for
// worker.NewPool.
func NewCycle(iface *Interface, sockets *SocketSet) worker.Cycle {
	return &boundCycle{iface: iface, sockets: sockets}
}

func (c *boundCycle) Poll(now time.Time, dev device.Device, queueID int) {
	c.iface.Poll(now, dev, c.sockets, queueID)
}

func (c *boundCycle) PollTx(now time.Time, dev device.Device, queueID int) {
	c.iface.PollTx(now, dev, c.sockets, queueID)
}

func (c *boundCycle) PollAt(now time.Time, queueID int) time.Duration {
	return c.iface.PollAt(now, c.sockets, queueID)
}

var _ worker.Cycle = (*boundCycle)(nil)
