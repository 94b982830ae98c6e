// Package device defines the packet-in/packet-out contract that backends
// (loopback, TUN/TAP) implement, and that the worker pool drives.
//
// Grounded on the teacher's internal/interfaces package: the same narrow,
// composable-interface style (Backend/DiscardBackend there; Device/RxToken/
// TxToken here) replaces the teacher's block-I/O verbs with packet verbs.
package device

import "time"

// Medium is the link layer a device speaks.
type Medium uint8

const (
	MediumEthernet Medium = iota
	MediumIp
	MediumIeee802154
)

// ChecksumPolicy describes which checksums a device leaves to software and
// which it validates/fills in hardware. The stack reports it through
// Capabilities but does not consult it: internal/wire computes every
// checksum it serializes.
type ChecksumPolicy struct {
	// ComputeIpv4 marks the IPv4 header checksum as software-computed.
	ComputeIpv4 bool
	// ComputeUdp marks the UDP checksum as software-computed.
	ComputeUdp bool
	// ComputeTcp marks the TCP checksum as software-computed.
	ComputeTcp bool
}

// DefaultChecksumPolicy marks every checksum as software-computed; both
// backends in this package report it.
var DefaultChecksumPolicy = ChecksumPolicy{ComputeIpv4: true, ComputeUdp: true, ComputeTcp: true}

// Capabilities describes a device's fixed properties.
type Capabilities struct {
	MaxTransmissionUnit int
	Medium              Medium
	Checksum            ChecksumPolicy
	// QueueCount is the number of independent hardware queues this device
	// exposes; each is driven by exactly one worker.
	QueueCount int
}

// RxToken is a single-shot capability to consume one received frame. Consume
// must be called at most once; the buffer passed to fn is only valid for the
// duration of the call.
type RxToken interface {
	Consume(fn func(frame []byte) error) error
}

// TxToken reserves space for one outgoing frame of the given length. Consume
// commits the frame to the device iff fn returns nil.
type TxToken interface {
	Consume(length int, fn func(frame []byte) error) error
}

// Device is the abstract packet transport a worker drives. Implementations
// must be safe for concurrent use across distinct queue ids; per-queue state
// should not require cross-queue locking.
type Device interface {
	Capabilities() Capabilities

	// Receive is non-blocking. ok is false when no frame is ready on
	// queueID. The returned pair is atomic: Consume on rx must not require
	// polling the device again.
	Receive(now time.Time, queueID int) (rx RxToken, tx TxToken, ok bool)

	// Transmit is non-blocking. ok is false when the queue is full.
	Transmit(now time.Time, queueID int) (tx TxToken, ok bool)
}

// Waiter is the adapter-specific readiness primitive a worker sleeps on
// between ticks. Implementations may return early (spurious wakeup is
// legal); callers always re-check device readiness afterward.
type Waiter interface {
	Wait(queueID int, timeout time.Duration) error
}
