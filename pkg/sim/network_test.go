// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

type recordingHandler struct {
	datagrams [][]byte
	sources   []netip.Addr

	accepted     []ConnID
	ready        map[ConnID]int
	data         map[ConnID][]byte
	delivered    map[ConnID]uint64
	remoteClosed map[ConnID]bool

	onReady func(ConnID)
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		ready:        make(map[ConnID]int),
		data:         make(map[ConnID][]byte),
		delivered:    make(map[ConnID]uint64),
		remoteClosed: make(map[ConnID]bool),
	}
}

func (h *recordingHandler) HandleDatagram(data []byte, src netip.Addr, _ uint16) {
	h.datagrams = append(h.datagrams, data)
	h.sources = append(h.sources, src)
}

func (h *recordingHandler) HandleAccept(conn ConnID, _ netip.Addr) {
	h.accepted = append(h.accepted, conn)
}

func (h *recordingHandler) HandleReady(conn ConnID) {
	h.ready[conn]++
	if h.onReady != nil {
		h.onReady(conn)
	}
}

func (h *recordingHandler) HandleData(conn ConnID, data []byte) {
	h.data[conn] = append(h.data[conn], data...)
}

func (h *recordingHandler) HandleDelivered(conn ConnID, total uint64) {
	h.delivered[conn] = total
}

func (h *recordingHandler) HandleRemoteClosed(conn ConnID) {
	h.remoteClosed[conn] = true
}

func newTestNetwork(t *testing.T, nodes int) (*Scheduler, *Network, []*Interface, []*recordingHandler) {
	s := NewScheduler(0)
	n := NewNetwork(s, NetworkConf{
		Latency:      10 * time.Millisecond,
		Bandwidth:    1000,
		MaxDatagram:  100,
		StreamBuffer: 50,
	})

	var ifaces []*Interface
	var handlers []*recordingHandler
	for i := 0; i < nodes; i++ {
		h := newRecordingHandler()
		iface, err := n.Attach(bundle.NodeID(i+1), h)
		if err != nil {
			t.Fatal(err)
		}
		ifaces = append(ifaces, iface)
		handlers = append(handlers, h)
	}
	return s, n, ifaces, handlers
}

func TestNetworkAddresses(t *testing.T) {
	_, n, ifaces, _ := newTestNetwork(t, 2)

	if addr := ifaces[0].Addr(); addr != netip.MustParseAddr("10.0.0.1") {
		t.Fatalf("Node 1 has address %v", addr)
	}
	if addr := AddrOf(0x010203); addr != netip.MustParseAddr("10.1.2.3") {
		t.Fatalf("Derived address %v", addr)
	}

	if addr, ok := n.Resolve(2); !ok || addr != ifaces[1].Addr() {
		t.Fatalf("Resolving node 2 returned %v, %t", addr, ok)
	}
	if _, ok := n.Resolve(3); ok {
		t.Fatal("Resolved an unknown node")
	}
	if node, ok := n.NodeOf(ifaces[1].Addr()); !ok || node != 2 {
		t.Fatalf("Reverse lookup returned %v, %t", node, ok)
	}

	if _, err := n.Attach(1, newRecordingHandler()); err == nil {
		t.Fatal("Attaching a node twice succeeded")
	}
}

func TestNetworkAddressesHighNodeIDs(t *testing.T) {
	_, n, ifaces, _ := newTestNetwork(t, 1)

	tests := []struct {
		node bundle.NodeID
		addr string
	}{
		{1<<24 - 1, "10.255.255.255"},
		{1<<24 + 1, "fd00::100:1"},
		{0xFFFFFFFE, "fd00::ffff:fffe"},
	}

	for _, test := range tests {
		if addr := AddrOf(test.node); addr != netip.MustParseAddr(test.addr) {
			t.Fatalf("AddrOf(%v) = %v, expected %s", test.node, addr, test.addr)
		}
	}

	iface, err := n.Attach(1<<24+1, newRecordingHandler())
	if err != nil {
		t.Fatal(err)
	}
	if iface.Addr() == ifaces[0].Addr() {
		t.Fatalf("Nodes 1 and %v share address %v", iface.node, iface.Addr())
	}

	for _, i := range []*Interface{ifaces[0], iface} {
		if node, ok := n.NodeOf(i.Addr()); !ok || node != i.node {
			t.Fatalf("Address %v resolved to %v, expected %v", i.Addr(), node, i.node)
		}
	}
}

func TestNetworkDatagram(t *testing.T) {
	s, n, ifaces, handlers := newTestNetwork(t, 3)

	if err := ifaces[0].SendDatagram([]byte("hello"), ifaces[1].Addr(), 4556, 0); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Sending without a link returned %v", err)
	}

	n.SetLink(1, 2, true)
	n.SetLink(1, 3, true)

	if err := ifaces[0].SendDatagram(make([]byte, 101), Broadcast, 4556, 0); !errors.Is(err, ErrDatagramTooLarge) {
		t.Fatalf("Oversize datagram returned %v", err)
	}

	if err := ifaces[0].SendDatagram([]byte("hello"), Broadcast, 4556, 0); err != nil {
		t.Fatal(err)
	}
	if err := ifaces[1].SendDatagram([]byte("back"), ifaces[0].Addr(), 4556, 0); err != nil {
		t.Fatal(err)
	}

	s.Run()

	for i := 1; i <= 2; i++ {
		if len(handlers[i].datagrams) != 1 || !bytes.Equal(handlers[i].datagrams[0], []byte("hello")) {
			t.Fatalf("Node %d received %v", i+1, handlers[i].datagrams)
		}
		if handlers[i].sources[0] != ifaces[0].Addr() {
			t.Fatalf("Node %d received from %v", i+1, handlers[i].sources[0])
		}
	}
	if len(handlers[0].datagrams) != 1 || string(handlers[0].datagrams[0]) != "back" {
		t.Fatalf("Node 1 received %v", handlers[0].datagrams)
	}
}

func TestNetworkDatagramLinkDownInFlight(t *testing.T) {
	s, n, ifaces, handlers := newTestNetwork(t, 2)

	n.SetLink(1, 2, true)
	if err := ifaces[0].SendDatagram([]byte("lost"), ifaces[1].Addr(), 4556, 0); err != nil {
		t.Fatal(err)
	}
	n.SetLink(1, 2, false)

	s.Run()
	if len(handlers[1].datagrams) != 0 {
		t.Fatalf("Datagram arrived over a broken link: %v", handlers[1].datagrams)
	}
}

func TestNetworkStream(t *testing.T) {
	s, n, ifaces, handlers := newTestNetwork(t, 2)
	n.SetLink(1, 2, true)

	if _, err := ifaces[0].Connect(ifaces[1].Addr(), 4557); !errors.Is(err, ErrNotListening) {
		t.Fatalf("Connecting without listener returned %v", err)
	}
	ifaces[1].Listen(4557)

	payload := make([]byte, 120)
	for i := range payload {
		payload[i] = byte(i)
	}

	var offset int
	handlers[0].onReady = func(c ConnID) {
		if offset < len(payload) {
			offset += ifaces[0].Send(c, payload[offset:])
		}
	}

	conn, err := ifaces[0].Connect(ifaces[1].Addr(), 4557)
	if err != nil {
		t.Fatal(err)
	}
	if h := ifaces[0].Headroom(conn); h != 0 {
		t.Fatalf("Headroom before establishing is %d", h)
	}

	s.Run()

	if len(handlers[1].accepted) != 1 {
		t.Fatalf("Accepted %d connections", len(handlers[1].accepted))
	}
	remote := handlers[1].accepted[0]

	if !bytes.Equal(handlers[1].data[remote], payload) {
		t.Fatalf("Received %d bytes, expected %d", len(handlers[1].data[remote]), len(payload))
	}
	if total := handlers[0].delivered[conn]; total != uint64(len(payload)) {
		t.Fatalf("Delivered %d bytes", total)
	}
	if h := ifaces[0].Headroom(conn); h != 50 {
		t.Fatalf("Headroom after draining is %d", h)
	}

	ifaces[0].Close(conn)
	s.Run()
	if !handlers[1].remoteClosed[remote] {
		t.Fatal("Remote close was not signaled")
	}
	if n.OpenConns() != 2 {
		t.Fatalf("%d connection ends are open", n.OpenConns())
	}

	ifaces[1].Close(remote)
	if n.OpenConns() != 0 {
		t.Fatalf("%d connection ends are open after both closed", n.OpenConns())
	}
}

func TestNetworkStreamAbort(t *testing.T) {
	s, n, ifaces, handlers := newTestNetwork(t, 2)
	n.SetLink(1, 2, true)
	ifaces[1].Listen(4557)

	conn, err := ifaces[0].Connect(ifaces[1].Addr(), 4557)
	if err != nil {
		t.Fatal(err)
	}
	s.Run()

	if sent := ifaces[0].Send(conn, make([]byte, 30)); sent != 30 {
		t.Fatalf("Sent %d bytes", sent)
	}
	n.SetLink(1, 2, false)
	s.Run()

	remote := handlers[1].accepted[0]
	if !handlers[0].remoteClosed[conn] || !handlers[1].remoteClosed[remote] {
		t.Fatal("Abort was not signaled to both ends")
	}
	if len(handlers[1].data[remote]) != 0 {
		t.Fatal("Data arrived after abort")
	}
	if sent := ifaces[0].Send(conn, []byte("x")); sent != 0 {
		t.Fatalf("Sending on an aborted connection accepted %d bytes", sent)
	}

	ifaces[0].Close(conn)
	ifaces[1].Close(remote)
	if n.OpenConns() != 0 {
		t.Fatalf("%d connection ends are open", n.OpenConns())
	}
}

func TestNetworkScheduleContact(t *testing.T) {
	s, n, _, _ := newTestNetwork(t, 2)
	n.ScheduleContact(1, 2, time.Second, 2*time.Second)

	s.RunUntil(500 * time.Millisecond)
	if n.LinkUp(1, 2) {
		t.Fatal("Link is up before contact")
	}

	s.RunUntil(1500 * time.Millisecond)
	if !n.LinkUp(2, 1) {
		t.Fatal("Link is down during contact")
	}
	if neighbors := n.Neighbors(1); len(neighbors) != 1 || neighbors[0] != 2 {
		t.Fatalf("Neighbors of 1: %v", neighbors)
	}

	s.RunUntil(3 * time.Second)
	if n.LinkUp(1, 2) {
		t.Fatal("Link is up after contact")
	}
}
