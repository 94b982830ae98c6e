package netstack

import (
	"sync"
	"time"

	"github.com/packetlayer/netstack/internal/wire"
)

// IgmpVersion is the IGMP host-compatibility version this stack is
// currently operating in, per-group reports and queries are tagged with.
type IgmpVersion uint8

const (
	IgmpV1 IgmpVersion = 1
	IgmpV2 IgmpVersion = 2
)

// igmpStateKind tags IgmpReportState's tagged union (spec.md §3).
type igmpStateKind uint8

const (
	igmpInactive igmpStateKind = iota
	igmpToGeneralQuery
	igmpToSpecificQuery
)

// IgmpReportState is the pending-response FSM for IGMP general and
// group-specific queries (spec.md §3/§4.G): Inactive, ToGeneralQuery{version,
// timeout, interval, next_index}, or ToSpecificQuery{version, timeout,
// group}. Guarded by a plain mutex (spec.md §9's design note: "a small state
// mutex suffices; critical sections are O(1)").
type IgmpReportState struct {
	mu sync.Mutex

	kind      igmpStateKind
	version   IgmpVersion
	timeout   time.Time
	interval  time.Duration
	nextIndex int
	group     [4]byte
}

// ProcessQuery applies the ingress transition for a decoded IGMP
// MembershipQuery, per spec.md §4.G. generalQuery is true when group_addr is
// unspecified and the destination is ALL_SYSTEMS (caller has already
// verified the destination); otherwise this is treated as a group-specific
// query against repr.GroupAddr, and the caller must have already verified
// we are a member of that group.
func (s *IgmpReportState) ProcessQuery(now time.Time, repr wire.IgmpRepr, generalQuery bool, table *MulticastTable) {
	version := IgmpV2
	if repr.IsV1() {
		version = IgmpV1
	}
	maxRespTime := time.Duration(repr.MaxRespTime) * 100 * time.Millisecond

	s.mu.Lock()
	defer s.mu.Unlock()

	if generalQuery {
		groups := table.Len()
		if groups == 0 {
			return
		}
		var interval time.Duration
		if version == IgmpV1 {
			interval = Igmpv1QueryInterval
		} else {
			interval = maxRespTime / time.Duration(groups+1)
		}
		s.kind = igmpToGeneralQuery
		s.version = version
		s.timeout = now.Add(interval)
		s.interval = interval
		s.nextIndex = 0
		return
	}

	s.kind = igmpToSpecificQuery
	s.version = version
	s.timeout = now.Add(maxRespTime / 4)
	s.group = repr.GroupAddr
}

// Egress drives the egress transition (spec.md §4.G), called by poll_tx.
// transmit attempts to actually send a report for (version, group) and
// reports whether a TxToken was available; it is only called once now has
// reached the pending deadline. The bool return mirrors the source's
// overloaded "work remaining" signal: true means a report was emitted this
// call, false means either nothing was due yet, the state went Inactive, or
// a TxToken was unavailable and the state was left pending for the next
// tick.
func (s *IgmpReportState) Egress(now time.Time, table *MulticastTable, transmit func(version IgmpVersion, group [4]byte) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.kind {
	case igmpToSpecificQuery:
		if now.Before(s.timeout) {
			return false
		}
		if !transmit(s.version, s.group) {
			return false
		}
		s.kind = igmpInactive
		return true

	case igmpToGeneralQuery:
		if now.Before(s.timeout) {
			return false
		}
		group, ok := table.At(s.nextIndex)
		if !ok {
			s.kind = igmpInactive
			return false
		}
		if !transmit(s.version, group) {
			return false
		}
		next := s.timeout.Add(s.interval)
		if next.Before(now) {
			next = now
		}
		s.timeout = next
		s.nextIndex++
		return true

	default:
		return false
	}
}

// NextDeadline reports the state's pending timeout, for poll_at's
// smallest-deadline computation. ok is false when Inactive.
func (s *IgmpReportState) NextDeadline() (deadline time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind == igmpInactive {
		return time.Time{}, false
	}
	return s.timeout, true
}

// Reset forces the state back to Inactive, whatever report is pending.
// leave_multicast_group does not call it; it uses ResetForGroup, which
// drains only a pending ToSpecificQuery for the group being left.
func (s *IgmpReportState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = igmpInactive
}

// ResetForGroup drains a pending ToSpecificQuery addressed at group, leaving
// any ToGeneralQuery (which is not keyed to a single group) untouched.
func (s *IgmpReportState) ResetForGroup(group [4]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind == igmpToSpecificQuery && s.group == group {
		s.kind = igmpInactive
	}
}

// reportKindFor returns the wire message type a spontaneous or
// query-triggered membership report uses for version.
func reportKindFor(version IgmpVersion) wire.IgmpKind {
	if version == IgmpV1 {
		return wire.IgmpV1Report
	}
	return wire.IgmpV2Report
}

// BuildIgmpReport constructs the wire representation of a membership report
// for group, tagged with version.
func BuildIgmpReport(version IgmpVersion, group [4]byte) wire.IgmpRepr {
	return wire.IgmpRepr{Kind: reportKindFor(version), GroupAddr: group}
}

// BuildIgmpLeave constructs the wire representation of an IGMPv2 leave
// message. IGMPv1 hosts never send Leave (spec.md §9 design note: hosts in
// v1 compatibility mode stay silent on departure).
func BuildIgmpLeave(group [4]byte) wire.IgmpRepr {
	return wire.IgmpRepr{Kind: wire.IgmpLeaveGroup, GroupAddr: group}
}
