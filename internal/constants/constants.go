// Package constants holds default tunables shared across the stack.
package constants

import "time"

// Queue defaults
const (
	// DefaultQueueCount is used when a caller does not specify a queue
	// count, matching a single-worker loopback setup.
	DefaultQueueCount = 1

	// MaxQueueCount bounds QUEUE_COUNT so queue_id fits comfortably in a
	// small fixed-size affinity array.
	MaxQueueCount = 256
)

// Device defaults
const (
	// DefaultEthernetMTU is the default MTU for an Ethernet-medium device.
	DefaultEthernetMTU = 1500

	// DefaultIpMTU is the default MTU for an IP-medium device (no
	// Ethernet framing, e.g. a point-to-point TUN device).
	DefaultIpMTU = 1500
)

// Multicast table
const (
	// DefaultMulticastTableCapacity bounds the number of concurrently
	// joined IPv4 multicast groups.
	DefaultMulticastTableCapacity = 4
)

// IGMP timing
const (
	// Igmpv1QueryInterval is the fixed per-group report interval used
	// when responding to an IGMPv1 general query (IGMPv1 carries no
	// max-response-time field).
	Igmpv1QueryInterval = 100 * time.Millisecond
)

// Fragmenter scratch buffer size classes, reused from the teacher's
// size-bucketed sync.Pool (originally sized for I/O overflow past a 64KB
// mmap'd region; here sized for fragmentation scratch past a single frame).
const (
	FragBucket4k  = 4 * 1024
	FragBucket16k = 16 * 1024
	FragBucket64k = 64 * 1024
)
