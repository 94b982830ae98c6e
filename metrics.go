package netstack

import (
	"sync/atomic"
	"time"

	"github.com/packetlayer/netstack/internal/worker"
)

// TickLatencyBuckets are the histogram boundaries (nanoseconds) for one
// worker tick's combined Poll+PollTx duration, the same log-spaced shape as
// the teacher's I/O-latency buckets (metrics.go), repurposed from per-I/O
// latency to per-poll-tick latency.
var TickLatencyBuckets = []uint64{
	1_000,           // 1us
	10_000,          // 10us
	100_000,         // 100us
	1_000_000,       // 1ms
	10_000_000,      // 10ms
	100_000_000,     // 100ms
	1_000_000_000,   // 1s
}

const numTickBuckets = 7

// Metrics tracks operational statistics for the stack, in the shape of the
// teacher's metrics.go (atomic counters + a fixed latency histogram +
// pluggable Observer), with fields renamed to stack concerns. It also
// implements worker.Observer directly, so it can be handed straight to
// worker.NewPool as the tick/wait observer.
type Metrics struct {
	FramesRx             atomic.Uint64
	FramesTx             atomic.Uint64
	DecodeErrors         atomic.Uint64
	SocketsSteered       atomic.Uint64 // queue-affinity compare-swaps that changed the owner
	IgmpReports          atomic.Uint64 // IGMP messages sent: join/query reports and leaves
	RstSent              atomic.Uint64
	PortUnreachableSent  atomic.Uint64
	GroupTableFullErrors atomic.Uint64

	TotalPollNs   atomic.Uint64
	TotalPollTxNs atomic.Uint64
	TickCount     atomic.Uint64
	WaitErrors    atomic.Uint64

	// PollLatencyBuckets[i] is the cumulative count of ticks whose
	// combined Poll+PollTx duration was <= TickLatencyBuckets[i].
	PollLatencyBuckets [numTickBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics creates a zeroed Metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// ObserveTick implements worker.Observer: records one queue's tick latency.
func (m *Metrics) ObserveTick(queueID int, pollDur, pollTxDur time.Duration) {
	m.TickCount.Add(1)
	m.TotalPollNs.Add(uint64(pollDur))
	m.TotalPollTxNs.Add(uint64(pollTxDur))
	total := uint64(pollDur + pollTxDur)
	for i, bucket := range TickLatencyBuckets {
		if total <= bucket {
			m.PollLatencyBuckets[i].Add(1)
		}
	}
}

// ObserveWait implements worker.Observer: counts readiness-wait errors.
func (m *Metrics) ObserveWait(queueID int, timeout time.Duration, err error) {
	if err != nil {
		m.WaitErrors.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics' counters plus derived
// statistics, mirroring the teacher's Snapshot()/MetricsSnapshot shape.
type MetricsSnapshot struct {
	FramesRx             uint64
	FramesTx             uint64
	DecodeErrors         uint64
	SocketsSteered       uint64
	IgmpReports          uint64
	RstSent              uint64
	PortUnreachableSent  uint64
	GroupTableFullErrors uint64

	TickCount    uint64
	AvgPollNs    uint64
	AvgPollTxNs  uint64
	WaitErrors   uint64
	UptimeNs     uint64

	LatencyHistogram [numTickBuckets]uint64
}

// Snapshot copies every counter and computes derived averages.
func (m *Metrics) Snapshot() MetricsSnapshot {
	tickCount := m.TickCount.Load()
	snap := MetricsSnapshot{
		FramesRx:             m.FramesRx.Load(),
		FramesTx:             m.FramesTx.Load(),
		DecodeErrors:         m.DecodeErrors.Load(),
		SocketsSteered:       m.SocketsSteered.Load(),
		IgmpReports:          m.IgmpReports.Load(),
		RstSent:              m.RstSent.Load(),
		PortUnreachableSent:  m.PortUnreachableSent.Load(),
		GroupTableFullErrors: m.GroupTableFullErrors.Load(),
		TickCount:            tickCount,
		WaitErrors:           m.WaitErrors.Load(),
		UptimeNs:             uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}
	if tickCount > 0 {
		snap.AvgPollNs = m.TotalPollNs.Load() / tickCount
		snap.AvgPollTxNs = m.TotalPollTxNs.Load() / tickCount
	}
	for i := range snap.LatencyHistogram {
		snap.LatencyHistogram[i] = m.PollLatencyBuckets[i].Load()
	}
	return snap
}

var _ worker.Observer = (*Metrics)(nil)
