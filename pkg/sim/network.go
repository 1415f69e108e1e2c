// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

var (
	// ErrDatagramTooLarge is returned for datagrams exceeding the NetworkConf's MaxDatagram.
	ErrDatagramTooLarge = errors.New("datagram exceeds the maximum datagram size")

	// ErrUnreachable is returned if there is no up link towards an address.
	ErrUnreachable = errors.New("destination is unreachable")
)

// Broadcast is the destination address reaching all currently connected neighbors.
var Broadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// Handler receives the transport events of an attached node.
type Handler interface {
	// HandleDatagram delivers an incoming datagram.
	HandleDatagram(data []byte, src netip.Addr, port uint16)

	// HandleAccept announces an incoming stream connection.
	HandleAccept(conn ConnID, peer netip.Addr)

	// HandleReady signals that an outgoing connection is established or has send buffer headroom again.
	HandleReady(conn ConnID)

	// HandleData delivers stream bytes.
	HandleData(conn ConnID, data []byte)

	// HandleDelivered reports the cumulative amount of bytes the peer received on this connection.
	HandleDelivered(conn ConnID, total uint64)

	// HandleRemoteClosed signals that the peer closed or the connection was aborted.
	HandleRemoteClosed(conn ConnID)
}

// NetworkConf describes the links between nodes.
type NetworkConf struct {
	// Latency is the propagation delay of each transmission.
	Latency time.Duration

	// Bandwidth in bytes per second; zero is unlimited.
	Bandwidth uint64

	// MaxDatagram is the largest datagram accepted for sending.
	MaxDatagram int

	// StreamBuffer is each connection's send buffer size.
	StreamBuffer int
}

// DefaultNetworkConf is a 1 MB/s network with 10 ms latency.
func DefaultNetworkConf() NetworkConf {
	return NetworkConf{
		Latency:      10 * time.Millisecond,
		Bandwidth:    1 << 20,
		MaxDatagram:  65507,
		StreamBuffer: 64 * 1024,
	}
}

type linkKey struct {
	a, b bundle.NodeID
}

func newLinkKey(a, b bundle.NodeID) linkKey {
	if a > b {
		a, b = b, a
	}
	return linkKey{a, b}
}

// Network connects attached nodes by symmetric links which can go up and down over time.
type Network struct {
	sched *Scheduler
	conf  NetworkConf

	ifaces map[netip.Addr]*Interface
	nodes  map[bundle.NodeID]*Interface
	links  map[linkKey]bool

	conns    map[ConnID]*connEnd
	nextConn ConnID
}

// NewNetwork without any nodes or links.
func NewNetwork(sched *Scheduler, conf NetworkConf) *Network {
	return &Network{
		sched:  sched,
		conf:   conf,
		ifaces: make(map[netip.Addr]*Interface),
		nodes:  make(map[bundle.NodeID]*Interface),
		links:  make(map[linkKey]bool),
		conns:  make(map[ConnID]*connEnd),
	}
}

// Conf of this Network.
func (n *Network) Conf() NetworkConf {
	return n.conf
}

// AddrOf derives a node's address from its NodeID. NodeIDs below 2^24 map into 10.0.0.0/8, all
// others into the IPv6 ULA prefix fd00::/96.
func AddrOf(node bundle.NodeID) netip.Addr {
	if node < 1<<24 {
		return netip.AddrFrom4([4]byte{10, byte(node >> 16), byte(node >> 8), byte(node)})
	}

	var a [16]byte
	a[0] = 0xfd
	binary.BigEndian.PutUint32(a[12:], uint32(node))
	return netip.AddrFrom16(a)
}

// Interface is a node's attachment to the Network.
type Interface struct {
	net       *Network
	node      bundle.NodeID
	addr      netip.Addr
	handler   Handler
	listening map[uint16]bool
}

// Attach a node to this Network. Events for this node will be passed to its Handler.
func (n *Network) Attach(node bundle.NodeID, handler Handler) (*Interface, error) {
	if _, ok := n.nodes[node]; ok {
		return nil, fmt.Errorf("node %v is already attached", node)
	}

	addr := AddrOf(node)
	if other, ok := n.ifaces[addr]; ok {
		return nil, fmt.Errorf("address %v of node %v is already taken by node %v", addr, node, other.node)
	}

	iface := &Interface{
		net:       n,
		node:      node,
		addr:      addr,
		handler:   handler,
		listening: make(map[uint16]bool),
	}
	n.ifaces[iface.addr] = iface
	n.nodes[node] = iface

	log.WithFields(log.Fields{
		"node":    node,
		"address": iface.addr,
	}).Debug("Node attached to network")

	return iface, nil
}

// Detach a node, aborting all its connections.
func (n *Network) Detach(node bundle.NodeID) {
	iface, ok := n.nodes[node]
	if !ok {
		return
	}

	for _, end := range n.connsOf(node) {
		n.abort(end)
	}

	delete(n.ifaces, iface.addr)
	delete(n.nodes, node)
}

// Resolve a node's address. This fails for nodes not attached.
func (n *Network) Resolve(node bundle.NodeID) (netip.Addr, bool) {
	iface, ok := n.nodes[node]
	if !ok {
		return netip.Addr{}, false
	}
	return iface.addr, true
}

// NodeOf resolves an address back to the attached node.
func (n *Network) NodeOf(addr netip.Addr) (bundle.NodeID, bool) {
	iface, ok := n.ifaces[addr]
	if !ok {
		return 0, false
	}
	return iface.node, true
}

// LinkUp checks if two nodes are currently connected.
func (n *Network) LinkUp(a, b bundle.NodeID) bool {
	return a != b && n.links[newLinkKey(a, b)]
}

// Neighbors of a node with an up link, in ascending order.
func (n *Network) Neighbors(node bundle.NodeID) (neighbors []bundle.NodeID) {
	for other := range n.nodes {
		if n.LinkUp(node, other) {
			neighbors = append(neighbors, other)
		}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
	return
}

// SetLink brings the link between two nodes up or down. Taking a link down aborts its connections.
func (n *Network) SetLink(a, b bundle.NodeID, up bool) {
	key := newLinkKey(a, b)
	if n.links[key] == up {
		return
	}

	if up {
		n.links[key] = true
	} else {
		delete(n.links, key)

		for _, end := range n.connsOf(a) {
			if peer, ok := n.conns[end.peer]; ok && peer.owner.node == b {
				n.abort(end)
			}
		}
	}

	log.WithFields(log.Fields{
		"a":    a,
		"b":    b,
		"up":   up,
		"time": n.sched.Now(),
	}).Debug("Link changed")
}

// ScheduleContact brings a link up at start and down again at end.
func (n *Network) ScheduleContact(a, b bundle.NodeID, start, end time.Duration) {
	n.sched.At(start, func() { n.SetLink(a, b, true) })
	n.sched.At(end, func() { n.SetLink(a, b, false) })
}

// transmissionTime of size bytes on a link.
func (n *Network) transmissionTime(size int) time.Duration {
	if n.conf.Bandwidth == 0 {
		return 0
	}
	return time.Duration(uint64(size) * uint64(time.Second) / n.conf.Bandwidth)
}

// Node of this Interface.
func (i *Interface) Node() bundle.NodeID {
	return i.node
}

// Addr of this Interface.
func (i *Interface) Addr() netip.Addr {
	return i.addr
}

// Resolve another node's address.
func (i *Interface) Resolve(node bundle.NodeID) (netip.Addr, bool) {
	return i.net.Resolve(node)
}

// SendDatagram to an address or to Broadcast. The priority is accepted for API compatibility; delivery
// order only depends on the virtual time of arrival.
func (i *Interface) SendDatagram(data []byte, dst netip.Addr, port uint16, priority uint8) error {
	if len(data) > i.net.conf.MaxDatagram {
		return fmt.Errorf("%w: %d > %d bytes", ErrDatagramTooLarge, len(data), i.net.conf.MaxDatagram)
	}

	var peers []*Interface
	if dst == Broadcast {
		for _, node := range i.net.Neighbors(i.node) {
			peers = append(peers, i.net.nodes[node])
		}
	} else if peer, ok := i.net.ifaces[dst]; !ok || !i.net.LinkUp(i.node, peer.node) {
		return fmt.Errorf("%w: %v", ErrUnreachable, dst)
	} else {
		peers = append(peers, peer)
	}

	delay := i.net.conf.Latency + i.net.transmissionTime(len(data))
	for _, peer := range peers {
		peerAddr, src := peer.addr, i.addr
		buf := append([]byte(nil), data...)

		i.net.sched.After(delay, func() {
			dstIface, ok := i.net.ifaces[peerAddr]
			srcIface, srcOk := i.net.ifaces[src]
			if !ok || !srcOk || !i.net.LinkUp(srcIface.node, dstIface.node) {
				return
			}
			dstIface.handler.HandleDatagram(buf, src, port)
		})
	}
	return nil
}
