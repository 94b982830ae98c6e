package worker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/packetlayer/netstack/internal/device"
	"github.com/packetlayer/netstack/internal/logging"
)

// Pool supervises one Runner per queue of a device, starting them together
// and tearing all of them down if any one fails or the caller cancels.
//
// Replaces the teacher's CreateAndServe, which starts one Runner per queue
// in a loop and rolls back already-started queues on a later failure; Pool
// expresses the same all-or-nothing startup/shutdown with
// golang.org/x/sync/errgroup instead of a manual rollback loop.
type Pool struct {
	runners []*Runner
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewPool starts one Runner per queue of dev, all driven by the same Cycle.
// cpuAffinity, if non-empty, is shared across every queue's Config.
func NewPool(ctx context.Context, dev device.Device, waiter device.Waiter, cycle Cycle, logger *logging.Logger, observer Observer, cpuAffinity []int) (*Pool, error) {
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	queueCount := dev.Capabilities().QueueCount
	runners := make([]*Runner, 0, queueCount)
	for q := 0; q < queueCount; q++ {
		r, err := NewRunner(groupCtx, Config{
			QueueID:     q,
			Device:      dev,
			Waiter:      waiter,
			Cycle:       cycle,
			Logger:      logger,
			Observer:    observer,
			CPUAffinity: cpuAffinity,
		})
		if err != nil {
			cancel()
			return nil, err
		}
		runners = append(runners, r)
	}

	for _, r := range runners {
		r := r
		group.Go(func() error {
			return r.Start()
		})
	}

	return &Pool{runners: runners, cancel: cancel, group: group}, nil
}

// Stop cancels every queue's runner and waits for them all to exit,
// returning the first error (if any) a runner's startup reported.
func (p *Pool) Stop() error {
	for _, r := range p.runners {
		_ = r.Stop()
	}
	p.cancel()
	return p.group.Wait()
}

// QueueCount reports how many queues this pool is driving.
func (p *Pool) QueueCount() int { return len(p.runners) }
