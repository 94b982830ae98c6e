package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/packetlayer/netstack/internal/device"
)

// countingCycle records how many times each phase ran, for use across both
// Runner and Pool tests.
type countingCycle struct {
	polls   int64
	pollTxs int64
	pollAts int64
}

func (c *countingCycle) Poll(now time.Time, dev device.Device, queueID int) {
	atomic.AddInt64(&c.polls, 1)
}
func (c *countingCycle) PollTx(now time.Time, dev device.Device, queueID int) {
	atomic.AddInt64(&c.pollTxs, 1)
}
func (c *countingCycle) PollAt(now time.Time, queueID int) time.Duration {
	atomic.AddInt64(&c.pollAts, 1)
	return time.Millisecond
}

func TestRunnerDrivesCycleUntilStopped(t *testing.T) {
	dev := device.NewLoopback(1, 1500)
	cycle := &countingCycle{}
	r, err := NewRunner(context.Background(), Config{
		QueueID: 0,
		Device:  dev,
		Waiter:  device.TimerWaiter{},
		Cycle:   cycle,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt64(&cycle.polls) < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Poll to run at least 3 times")
		case <-time.After(time.Millisecond):
		}
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestPoolDrivesAllQueues(t *testing.T) {
	dev := device.NewLoopback(3, 1500)
	cycle := &countingCycle{}

	pool, err := NewPool(context.Background(), dev, device.TimerWaiter{}, cycle, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if pool.QueueCount() != 3 {
		t.Fatalf("QueueCount() = %d, want 3", pool.QueueCount())
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt64(&cycle.polls) < 6 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for queues to tick")
		case <-time.After(time.Millisecond):
		}
	}

	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
