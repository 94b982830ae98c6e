package netstack

import "github.com/packetlayer/netstack/internal/constants"

// Re-export constants for public API.
const (
	DefaultQueueCount             = constants.DefaultQueueCount
	MaxQueueCount                 = constants.MaxQueueCount
	DefaultEthernetMTU            = constants.DefaultEthernetMTU
	DefaultIpMTU                  = constants.DefaultIpMTU
	DefaultMulticastTableCapacity = constants.DefaultMulticastTableCapacity
	Igmpv1QueryInterval           = constants.Igmpv1QueryInterval
)
