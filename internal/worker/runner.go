// Package worker supervises one goroutine per device queue, each pinned to
// its own OS thread and alternating ingress and egress poll phases.
//
// Grounded on the teacher's internal/queue package: Runner keeps the same
// per-queue OS-thread pin, optional CPU affinity, and ctx.Done()-gated loop
// shape as ehrlich-b-go-ublk's ioLoop, generalized from ublk's FETCH_REQ/
// COMMIT_AND_FETCH_REQ request cycle to the poll/poll_tx/poll_at cycle
// spec.md §4.F describes.
package worker

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/packetlayer/netstack/internal/device"
	"github.com/packetlayer/netstack/internal/logging"
)

// Cycle is the per-tick work a Runner drives. Implemented by the stack's
// Interface: Poll drains ingress, PollTx drains egress for sockets affined
// to queueID, and PollAt reports how long the worker may sleep before the
// next deadline.
type Cycle interface {
	Poll(now time.Time, dev device.Device, queueID int)
	PollTx(now time.Time, dev device.Device, queueID int)
	PollAt(now time.Time, queueID int) time.Duration
}

// Config configures a single queue's Runner.
type Config struct {
	QueueID     int
	Device      device.Device
	Waiter      device.Waiter
	Cycle       Cycle
	Logger      *logging.Logger
	Observer    Observer
	CPUAffinity []int // optional; CPUAffinity[QueueID % len(CPUAffinity)] pins this queue
}

// Runner drives one device queue: alternating Poll/PollTx, then sleeping on
// the device's readiness primitive until the next deadline.
type Runner struct {
	queueID     int
	dev         device.Device
	waiter      device.Waiter
	cycle       Cycle
	logger      *logging.Logger
	observer    Observer
	cpuAffinity []int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a Runner for one queue. The returned Runner does not
// start its loop until Start is called.
func NewRunner(ctx context.Context, config Config) (*Runner, error) {
	runCtx, cancel := context.WithCancel(ctx)
	observer := config.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}
	return &Runner{
		queueID:     config.QueueID,
		dev:         config.Device,
		waiter:      config.Waiter,
		cycle:       config.Cycle,
		logger:      config.Logger,
		observer:    observer,
		cpuAffinity: config.CPUAffinity,
		ctx:         runCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}, nil
}

// Start launches the runner's I/O loop on its own goroutine and returns
// immediately, without waiting for the loop to begin.
func (r *Runner) Start() error {
	go r.ioLoop()
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (r *Runner) Stop() error {
	r.cancel()
	<-r.done
	return nil
}

func (r *Runner) ioLoop() {
	defer close(r.done)

	// Pin to OS thread so CPU affinity (if configured) is stable for the
	// lifetime of this queue.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if len(r.cpuAffinity) > 0 {
		cpuIdx := r.cpuAffinity[r.queueID%len(r.cpuAffinity)]
		var mask unix.CPUSet
		mask.Set(cpuIdx)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			if r.logger != nil {
				r.logger.Printf("queue %d: failed to set CPU affinity to CPU %d: %v", r.queueID, cpuIdx, err)
			}
		} else if r.logger != nil {
			r.logger.Debugf("queue %d: set CPU affinity to CPU %d", r.queueID, cpuIdx)
		}
	}

	if r.logger != nil {
		r.logger.Debugf("queue %d: starting poll loop (pinned to OS thread)", r.queueID)
	}

	for {
		select {
		case <-r.ctx.Done():
			if r.logger != nil {
				r.logger.Debugf("queue %d: poll loop stopping", r.queueID)
			}
			return
		default:
		}

		now := time.Now()
		pollStart := time.Now()
		r.cycle.Poll(now, r.dev, r.queueID)
		pollDur := time.Since(pollStart)

		pollTxStart := time.Now()
		r.cycle.PollTx(now, r.dev, r.queueID)
		pollTxDur := time.Since(pollTxStart)

		r.observer.ObserveTick(r.queueID, pollDur, pollTxDur)

		timeout := r.cycle.PollAt(now, r.queueID)
		err := r.waiter.Wait(r.queueID, timeout)
		r.observer.ObserveWait(r.queueID, timeout, err)
		if err != nil && r.logger != nil {
			r.logger.Printf("queue %d: wait error: %v", r.queueID, err)
		}
	}
}
