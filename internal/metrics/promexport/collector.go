// Package promexport adapts *netstack.Metrics to prometheus.Collector, so a
// host process can register it with its own prometheus.Registry without the
// core module depending on how (or whether) metrics are exposed.
//
// Grounded on the retrieval pack's penguintechinc-marchproxy, the one repo
// using github.com/prometheus/client_golang; that repo hand-builds a large
// CounterVec/GaugeVec/HistogramVec struct per subsystem, which does not fit
// here since netstack.Metrics already owns its counters as plain
// atomic.Uint64 fields — Collector is implemented directly against those
// fields with prometheus.MustNewConstMetric instead of mirroring a second
// copy of each counter in *Vec form.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/packetlayer/netstack"
)

// Collector exports a *netstack.Metrics snapshot as Prometheus metrics on
// every scrape (the Collector interface's Collect is called per-scrape, so
// readings are always current as of that call).
type Collector struct {
	source *netstack.Metrics

	framesRx             *prometheus.Desc
	framesTx             *prometheus.Desc
	decodeErrors         *prometheus.Desc
	socketsSteered       *prometheus.Desc
	igmpReports          *prometheus.Desc
	rstSent              *prometheus.Desc
	portUnreachableSent  *prometheus.Desc
	groupTableFullErrors *prometheus.Desc
	tickCount            *prometheus.Desc
	avgPollNs            *prometheus.Desc
	avgPollTxNs          *prometheus.Desc
	waitErrors           *prometheus.Desc
}

// New creates a Collector reading from source on every Collect call.
func New(source *netstack.Metrics) *Collector {
	ns := "netstack"
	return &Collector{
		source:               source,
		framesRx:             prometheus.NewDesc(ns+"_frames_received_total", "Total frames received across all queues.", nil, nil),
		framesTx:             prometheus.NewDesc(ns+"_frames_transmitted_total", "Total frames transmitted across all queues.", nil, nil),
		decodeErrors:         prometheus.NewDesc(ns+"_decode_errors_total", "Total malformed frames dropped during decode.", nil, nil),
		socketsSteered:       prometheus.NewDesc(ns+"_sockets_steered_total", "Total queue-affinity changes (a socket's owning queue actually changed).", nil, nil),
		igmpReports:          prometheus.NewDesc(ns+"_igmp_reports_total", "Total IGMP messages emitted (membership reports and leaves).", nil, nil),
		rstSent:              prometheus.NewDesc(ns+"_tcp_rst_sent_total", "Total synthesized TCP RST replies sent.", nil, nil),
		portUnreachableSent:  prometheus.NewDesc(ns+"_icmp_port_unreachable_sent_total", "Total synthesized ICMP port-unreachable replies sent.", nil, nil),
		groupTableFullErrors: prometheus.NewDesc(ns+"_multicast_group_table_full_total", "Total multicast joins rejected because the group table was at capacity.", nil, nil),
		tickCount:            prometheus.NewDesc(ns+"_worker_ticks_total", "Total Poll+PollTx ticks across all queues.", nil, nil),
		avgPollNs:            prometheus.NewDesc(ns+"_worker_poll_avg_nanoseconds", "Average Poll duration per tick, in nanoseconds.", nil, nil),
		avgPollTxNs:          prometheus.NewDesc(ns+"_worker_polltx_avg_nanoseconds", "Average PollTx duration per tick, in nanoseconds.", nil, nil),
		waitErrors:           prometheus.NewDesc(ns+"_worker_wait_errors_total", "Total errors returned by a queue's readiness wait.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesRx
	ch <- c.framesTx
	ch <- c.decodeErrors
	ch <- c.socketsSteered
	ch <- c.igmpReports
	ch <- c.rstSent
	ch <- c.portUnreachableSent
	ch <- c.groupTableFullErrors
	ch <- c.tickCount
	ch <- c.avgPollNs
	ch <- c.avgPollTxNs
	ch <- c.waitErrors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.framesRx, prometheus.CounterValue, float64(snap.FramesRx))
	ch <- prometheus.MustNewConstMetric(c.framesTx, prometheus.CounterValue, float64(snap.FramesTx))
	ch <- prometheus.MustNewConstMetric(c.decodeErrors, prometheus.CounterValue, float64(snap.DecodeErrors))
	ch <- prometheus.MustNewConstMetric(c.socketsSteered, prometheus.CounterValue, float64(snap.SocketsSteered))
	ch <- prometheus.MustNewConstMetric(c.igmpReports, prometheus.CounterValue, float64(snap.IgmpReports))
	ch <- prometheus.MustNewConstMetric(c.rstSent, prometheus.CounterValue, float64(snap.RstSent))
	ch <- prometheus.MustNewConstMetric(c.portUnreachableSent, prometheus.CounterValue, float64(snap.PortUnreachableSent))
	ch <- prometheus.MustNewConstMetric(c.groupTableFullErrors, prometheus.CounterValue, float64(snap.GroupTableFullErrors))
	ch <- prometheus.MustNewConstMetric(c.tickCount, prometheus.CounterValue, float64(snap.TickCount))
	ch <- prometheus.MustNewConstMetric(c.avgPollNs, prometheus.GaugeValue, float64(snap.AvgPollNs))
	ch <- prometheus.MustNewConstMetric(c.avgPollTxNs, prometheus.GaugeValue, float64(snap.AvgPollTxNs))
	ch <- prometheus.MustNewConstMetric(c.waitErrors, prometheus.CounterValue, float64(snap.WaitErrors))
}

var _ prometheus.Collector = (*Collector)(nil)
