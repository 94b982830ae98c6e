package netstack

import (
	"net"
	"testing"
	"time"

	"github.com/packetlayer/netstack/internal/wire"
)

// This file implements spec.md §8's six literal end-to-end scenarios, one
// test function per scenario, reusing the injection/inspection helpers
// (newTestInterface/pushFrame/popFrame/buildEthIpv4) defined in
// interface_test.go. Several of these scenarios are also exercised more
// narrowly as unit tests elsewhere (TestProcessFrameTcpUnmatchedGetsRst for
// scenario 5, TestProcessFrameUdpPortUnreachable for scenario 6,
// TestJoinMulticastGroupEmitsReport for scenario 3); the tests here follow
// the scenario's literal setup end to end instead of isolating one
// decoder call.

var (
	clientHW = wire.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x03}
	clientIP = [4]byte{192, 168, 1, 3}
)

// scenario 1: loopback echo. Two sockets listening on ports 1234 and 1235
// on the loopback device, one worker, QUEUE_COUNT=1. A client writes
// 1,000,000 zero bytes to 1235; an "echo" application forwards everything
// it reads off 1235 onto the 1234 connection; the client reads 1,000,000
// zero bytes back from 1234. processed == 1,000,000 on both sides.
//
// TCP's own transport state machine (retransmission, congestion control,
// flow-controlled buffering) is explicitly out of scope per spec.md §1, so
// this drives TcpSocket's minimal accepts/process/send contract directly
// rather than a real handshake + window-managed byte stream; the loopback
// device's per-queue FIFO is itself reliable and ordered, which is the
// only transport property this scenario needs.
func TestScenarioLoopbackEcho(t *testing.T) {
	ifc, dev := newTestInterface(t, 1)
	sockets := NewSocketSet(1)
	now := time.Unix(0, 0)

	upload := &TcpSocket{LocalPort: 1235, State: TcpStateListen}
	download := &TcpSocket{LocalPort: 1234, State: TcpStateListen}
	sockets.Add(upload)
	sockets.Add(download)

	// Client opens both connections (a bare SYN is enough to flip our
	// minimal TcpSocket from Listen to Established).
	for _, port := range []uint16{1235, 1234} {
		syn := wire.TcpRepr{SrcPort: 40000 + port, DstPort: port, SeqNumber: 0, Flags: wire.TcpFlagSyn}
		body := make([]byte, wire.TcpMinHeaderLen)
		if err := syn.Serialize(body, nil, clientIP, testIP); err != nil {
			t.Fatalf("syn.Serialize: %v", err)
		}
		ip := wire.Ipv4Repr{SrcAddr: clientIP, DstAddr: testIP, Protocol: wire.ProtocolTcp, Ttl: 64}
		pushFrame(t, dev, now, 0, buildEthIpv4(t, clientHW, testHW, ip, body))
		ifc.Poll(now, dev, sockets, 0)
	}
	if upload.State != TcpStateEstablished || download.State != TcpStateEstablished {
		t.Fatalf("expected both sockets established, got upload=%v download=%v", upload.State, download.State)
	}
	if upload.RemoteAddr != clientIP || download.RemoteAddr != clientIP {
		t.Fatalf("expected both sockets connected to the client")
	}

	const total = 1_000_000
	const chunk = 1000
	payload := make([]byte, chunk) // zero bytes, per the scenario

	clientSeq := uint32(1)
	uploaded := 0
	downloaded := 0

	for uploaded < total {
		seg := wire.TcpRepr{SrcPort: upload.RemotePort, DstPort: 1235, SeqNumber: clientSeq, Flags: wire.TcpFlagAck}
		body := make([]byte, wire.TcpMinHeaderLen+chunk)
		if err := seg.Serialize(body, payload, clientIP, testIP); err != nil {
			t.Fatalf("seg.Serialize: %v", err)
		}
		clientSeq += chunk
		ip := wire.Ipv4Repr{SrcAddr: clientIP, DstAddr: testIP, Protocol: wire.ProtocolTcp, Ttl: 64}
		pushFrame(t, dev, now, 0, buildEthIpv4(t, clientHW, testHW, ip, body))
		ifc.Poll(now, dev, sockets, 0)

		// The echo application: drain whatever the upload socket just
		// received and forward it out the download connection.
		for _, data := range upload.Inbox {
			uploaded += len(data)
			download.Send(data)
		}
		upload.Inbox = nil

		ifc.PollTx(now, dev, sockets, 0)

		// The client reads back whatever the stack just emitted on the
		// download connection.
		for dev.Len(0) > 0 {
			frame := popFrame(t, dev, now, 0)
			_, ipPayload, err := wire.ParseEthernet(frame)
			if err != nil {
				t.Fatalf("ParseEthernet: %v", err)
			}
			_, tcpPayload, err := wire.ParseIpv4(ipPayload)
			if err != nil {
				t.Fatalf("ParseIpv4: %v", err)
			}
			_, data, err := wire.ParseTcp(tcpPayload)
			if err != nil {
				t.Fatalf("ParseTcp: %v", err)
			}
			downloaded += len(data)
		}
	}

	if uploaded != total {
		t.Errorf("processed (upload) = %d, want %d", uploaded, total)
	}
	if downloaded != total {
		t.Errorf("processed (download) = %d, want %d", downloaded, total)
	}
}

// scenario 2: multi-queue steer. QUEUE_COUNT=2. Two clients connect to
// ports 1234 and 1236 (distinct sockets). First ingress of each lands on
// queues 0 and 1 respectively; after exchange, Item.queue_id reflects the
// last-seen queue.
func TestScenarioMultiQueueSteer(t *testing.T) {
	ifc, dev := newTestInterface(t, 2)
	sockets := NewSocketSet(2)
	now := time.Unix(0, 0)

	sockA := &TcpSocket{LocalPort: 1234, State: TcpStateListen}
	sockB := &TcpSocket{LocalPort: 1236, State: TcpStateListen}
	handleA := sockets.Add(sockA)
	handleB := sockets.Add(sockB)

	synFrame := func(dstPort uint16) []byte {
		syn := wire.TcpRepr{SrcPort: 50000, DstPort: dstPort, Flags: wire.TcpFlagSyn}
		body := make([]byte, wire.TcpMinHeaderLen)
		if err := syn.Serialize(body, nil, clientIP, testIP); err != nil {
			t.Fatalf("syn.Serialize: %v", err)
		}
		ip := wire.Ipv4Repr{SrcAddr: clientIP, DstAddr: testIP, Protocol: wire.ProtocolTcp, Ttl: 64}
		return buildEthIpv4(t, clientHW, testHW, ip, body)
	}

	// Client A's first segment arrives on queue 0; client B's on queue 1.
	pushFrame(t, dev, now, 0, synFrame(1234))
	ifc.Poll(now, dev, sockets, 0)
	pushFrame(t, dev, now, 1, synFrame(1236))
	ifc.Poll(now, dev, sockets, 1)

	itemA := sockets.GetMut(handleA)
	itemB := sockets.GetMut(handleB)
	if got := itemA.QueueID(); got != 0 {
		t.Errorf("socket 1234 queue after first ingress = %d, want 0", got)
	}
	if got := itemB.QueueID(); got != 1 {
		t.Errorf("socket 1236 queue after first ingress = %d, want 1", got)
	}

	// A later exchange for socket A arrives on queue 1 instead; affinity
	// follows the most recent ingress queue.
	pushFrame(t, dev, now, 1, synFrame(1234))
	ifc.Poll(now, dev, sockets, 1)
	if got := itemA.QueueID(); got != 1 {
		t.Errorf("socket 1234 queue after re-steering ingress on queue 1 = %d, want 1", got)
	}
	// Socket B's affinity is untouched by A's re-steering.
	if got := itemB.QueueID(); got != 1 {
		t.Errorf("socket 1236 queue = %d, want unchanged at 1", got)
	}
}

// scenario 3: IGMP join. join_multicast_group(224.0.0.22, t0) emits one
// IGMPv2 report via device.Transmit(t0, 0) and returns (true, nil).
// Repeating the same join returns (false, nil) and no transmit.
func TestScenarioIgmpJoin(t *testing.T) {
	ifc, dev := newTestInterface(t, 1)
	t0 := time.Unix(0, 0)

	changed, err := ifc.JoinMulticastGroup(dev, net.IPv4(224, 0, 0, 22), t0)
	if err != nil || !changed {
		t.Fatalf("JoinMulticastGroup = (%v, %v), want (true, nil)", changed, err)
	}
	if dev.Len(0) != 1 {
		t.Fatalf("dev.Len(0) = %d, want 1 (the membership report)", dev.Len(0))
	}
	frame := popFrame(t, dev, t0, 0)
	_, ipPayload, err := wire.ParseEthernet(frame)
	if err != nil {
		t.Fatalf("ParseEthernet: %v", err)
	}
	ip, igmpBody, err := wire.ParseIpv4(ipPayload)
	if err != nil {
		t.Fatalf("ParseIpv4: %v", err)
	}
	if ip.DstAddr != [4]byte{224, 0, 0, 22} {
		t.Errorf("report dst = %v, want 224.0.0.22", ip.DstAddr)
	}
	igmp, err := wire.ParseIgmp(igmpBody)
	if err != nil {
		t.Fatalf("ParseIgmp: %v", err)
	}
	if igmp.Kind != wire.IgmpV2Report || igmp.GroupAddr != [4]byte{224, 0, 0, 22} {
		t.Errorf("report = %+v, want an IGMPv2Report for 224.0.0.22", igmp)
	}

	changed, err = ifc.JoinMulticastGroup(dev, net.IPv4(224, 0, 0, 22), t0)
	if err != nil || changed {
		t.Errorf("repeat JoinMulticastGroup = (%v, %v), want (false, nil)", changed, err)
	}
	if dev.Len(0) != 0 {
		t.Errorf("dev.Len(0) = %d after repeat join, want 0 (no second report)", dev.Len(0))
	}
}

// scenario 4: IGMP general query response. While joined to 224.0.0.22 and
// 239.1.1.1, inject a general query with max_resp_time = 10000ms (v2).
// Call igmp_egress across three successive deadlines; expect reports for
// the two groups in table order, then Inactive.
func TestScenarioIgmpGeneralQueryResponse(t *testing.T) {
	ifc, dev := newTestInterface(t, 1)
	t0 := time.Unix(0, 0)

	firstGroup := [4]byte{224, 0, 0, 22}
	secondGroup := [4]byte{239, 1, 1, 1}
	if _, err := ifc.JoinMulticastGroup(dev, net.IPv4(224, 0, 0, 22), t0); err != nil {
		t.Fatalf("join 224.0.0.22: %v", err)
	}
	popFrame(t, dev, t0, 0) // drain the join report
	if _, err := ifc.JoinMulticastGroup(dev, net.IPv4(239, 1, 1, 1), t0); err != nil {
		t.Fatalf("join 239.1.1.1: %v", err)
	}
	popFrame(t, dev, t0, 0)

	// max_resp_time = 10000ms encoded in IGMP's 100ms units is 100.
	query := wire.IgmpRepr{Kind: wire.IgmpMembershipQuery, MaxRespTime: 100, GroupAddr: wire.Ipv4Unspecified}
	body := make([]byte, wire.IgmpHeaderLen)
	if err := query.Serialize(body); err != nil {
		t.Fatalf("query.Serialize: %v", err)
	}
	ip := wire.Ipv4Repr{SrcAddr: peerIP, DstAddr: allSystems, Protocol: wire.ProtocolIgmp, Ttl: 1}
	pushFrame(t, dev, t0, 0, buildEthIpv4(t, peerHW, testHW, ip, body))
	ifc.Poll(t0, dev, NewSocketSet(1), 0)

	deadline, ok := ifc.inner.igmp.NextDeadline()
	if !ok {
		t.Fatal("expected a pending ToGeneralQuery after the query")
	}
	interval := deadline.Sub(t0) // ~= 10000ms / (2 groups + 1) = 3333.33ms, per spec.md §4.G

	readIgmpReport := func(now time.Time) wire.IgmpRepr {
		t.Helper()
		if dev.Len(0) != 1 {
			t.Fatalf("dev.Len(0) = %d at %v, want 1 report", dev.Len(0), now.Sub(t0))
		}
		frame := popFrame(t, dev, now, 0)
		_, ipPayload, err := wire.ParseEthernet(frame)
		if err != nil {
			t.Fatalf("ParseEthernet: %v", err)
		}
		_, igmpBody, err := wire.ParseIpv4(ipPayload)
		if err != nil {
			t.Fatalf("ParseIpv4: %v", err)
		}
		igmp, err := wire.ParseIgmp(igmpBody)
		if err != nil {
			t.Fatalf("ParseIgmp: %v", err)
		}
		return igmp
	}

	t1 := t0.Add(interval)
	ifc.PollTx(t1, dev, NewSocketSet(1), 0)
	first := readIgmpReport(t1)
	if first.GroupAddr != firstGroup {
		t.Errorf("first report group = %v, want %v (table order)", first.GroupAddr, firstGroup)
	}

	t2 := t1.Add(interval)
	ifc.PollTx(t2, dev, NewSocketSet(1), 0)
	second := readIgmpReport(t2)
	if second.GroupAddr != secondGroup {
		t.Errorf("second report group = %v, want %v (table order)", second.GroupAddr, secondGroup)
	}

	t3 := t2.Add(interval)
	ifc.PollTx(t3, dev, NewSocketSet(1), 0)
	if dev.Len(0) != 0 {
		t.Errorf("dev.Len(0) = %d after the table is exhausted, want 0", dev.Len(0))
	}
	if _, ok := ifc.inner.igmp.NextDeadline(); ok {
		t.Error("expected ToGeneralQuery to have returned to Inactive")
	}
}

// scenario 5: RST fallback. A SYN delivered to a port with no listening
// socket gets a RST reply with swapped addresses and the appropriate
// sequence echo.
func TestScenarioRstFallback(t *testing.T) {
	ifc, dev := newTestInterface(t, 1)
	sockets := NewSocketSet(1)
	now := time.Unix(0, 0)

	syn := wire.TcpRepr{SrcPort: 9000, DstPort: 80, SeqNumber: 500, Flags: wire.TcpFlagSyn}
	body := make([]byte, wire.TcpMinHeaderLen)
	if err := syn.Serialize(body, nil, peerIP, testIP); err != nil {
		t.Fatalf("syn.Serialize: %v", err)
	}
	ip := wire.Ipv4Repr{SrcAddr: peerIP, DstAddr: testIP, Protocol: wire.ProtocolTcp, Ttl: 64}
	frame := buildEthIpv4(t, peerHW, testHW, ip, body)

	reply, ok := ifc.inner.ProcessFrame(now, 0, frame, sockets)
	if !ok || reply == nil {
		t.Fatal("expected a RST reply for a SYN to an unlistened port")
	}
	eth, ipPayload, err := wire.ParseEthernet(reply.Frame)
	if err != nil {
		t.Fatalf("ParseEthernet: %v", err)
	}
	if eth.DstAddr != peerHW {
		t.Errorf("reply eth dst = %v, want %v (swapped)", eth.DstAddr, peerHW)
	}
	replyIP, tcpPayload, err := wire.ParseIpv4(ipPayload)
	if err != nil {
		t.Fatalf("ParseIpv4: %v", err)
	}
	if replyIP.SrcAddr != testIP || replyIP.DstAddr != peerIP {
		t.Errorf("reply ip = %v -> %v, want %v -> %v (swapped)", replyIP.SrcAddr, replyIP.DstAddr, testIP, peerIP)
	}
	rst, _, err := wire.ParseTcp(tcpPayload)
	if err != nil {
		t.Fatalf("ParseTcp: %v", err)
	}
	if rst.SrcPort != 80 || rst.DstPort != 9000 {
		t.Errorf("reply ports = %d -> %d, want 80 -> 9000 (swapped)", rst.SrcPort, rst.DstPort)
	}
	if !rst.Flags.Has(wire.TcpFlagRst) {
		t.Errorf("reply flags = %v, want RST set", rst.Flags)
	}
	if rst.AckNumber != 501 { // SYN consumes one sequence number
		t.Errorf("reply ack = %d, want 501 (seq echo)", rst.AckNumber)
	}
}

// scenario 6: port unreachable. A UDP datagram delivered to a port with no
// socket, handled_by_raw_socket=false, over IPv4, gets an ICMPv4
// DstUnreachable/PortUnreachable whose data is the original IPv4 header
// plus payload, truncated to the IPv4 min-MTU ICMP budget.
func TestScenarioPortUnreachable(t *testing.T) {
	ifc, dev := newTestInterface(t, 1)
	sockets := NewSocketSet(1)
	now := time.Unix(0, 0)

	udp := wire.UdpRepr{SrcPort: 5000, DstPort: 9999}
	payload := make([]byte, 600) // large enough that truncation is exercised
	for i := range payload {
		payload[i] = byte(i)
	}
	body := make([]byte, wire.UdpHeaderLen+len(payload))
	if err := udp.Serialize(body, payload, peerIP, testIP); err != nil {
		t.Fatalf("udp.Serialize: %v", err)
	}
	ip := wire.Ipv4Repr{SrcAddr: peerIP, DstAddr: testIP, Protocol: wire.ProtocolUdp, Ttl: 64}
	frame := buildEthIpv4(t, peerHW, testHW, ip, body)

	reply, ok := ifc.inner.ProcessFrame(now, 0, frame, sockets)
	if !ok || reply == nil {
		t.Fatal("expected a port-unreachable reply")
	}
	_, ipPayload, err := wire.ParseEthernet(reply.Frame)
	if err != nil {
		t.Fatalf("ParseEthernet: %v", err)
	}
	replyIP, icmpBody, err := wire.ParseIpv4(ipPayload)
	if err != nil {
		t.Fatalf("ParseIpv4: %v", err)
	}
	if replyIP.SrcAddr != testIP || replyIP.DstAddr != peerIP {
		t.Errorf("reply ip = %v -> %v, want %v -> %v", replyIP.SrcAddr, replyIP.DstAddr, testIP, peerIP)
	}
	icmp, err := wire.ParseIcmpv4(icmpBody)
	if err != nil {
		t.Fatalf("ParseIcmpv4: %v", err)
	}
	if icmp.Kind != wire.Icmpv4DstUnreachable || icmp.Code != wire.Icmpv4CodePortUnreachable {
		t.Errorf("reply icmp = %+v, want DstUnreachable/PortUnreachable", icmp)
	}
	original := make([]byte, wire.Ipv4MinHeaderLen+len(body))
	originalIP := ip
	originalIP.PayloadLen = uint16(len(body))
	if err := originalIP.Serialize(original); err != nil {
		t.Fatalf("originalIP.Serialize: %v", err)
	}
	copy(original[wire.Ipv4MinHeaderLen:], body)
	want := wire.TruncatedOriginal(original)
	if len(icmp.Data) != len(want) {
		t.Errorf("reply data len = %d, want %d (truncated original)", len(icmp.Data), len(want))
	}
}
