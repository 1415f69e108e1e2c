// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// ErrNotListening is returned when connecting to a port without a listener.
var ErrNotListening = errors.New("connection refused")

// ConnID identifies one end of a stream connection.
type ConnID uint64

// connEnd is one side of a bidirectional, reliable byte stream.
type connEnd struct {
	id    ConnID
	peer  ConnID
	owner *Interface

	open    bool
	closed  bool
	aborted bool

	buffered  int
	delivered uint64
	busyUntil time.Duration
}

func (n *Network) connsOf(node bundle.NodeID) (ends []*connEnd) {
	for _, end := range n.conns {
		if end.owner.node == node {
			ends = append(ends, end)
		}
	}
	return
}

// abort both ends of a connection; each open side is notified as if the remote closed.
func (n *Network) abort(end *connEnd) {
	for _, e := range []*connEnd{end, n.conns[end.peer]} {
		if e == nil || e.aborted {
			continue
		}

		e.aborted = true
		if !e.closed {
			id := e.id
			n.sched.After(0, func() {
				if e, ok := n.conns[id]; ok && !e.closed {
					e.owner.handler.HandleRemoteClosed(id)
				}
			})
		}
	}
}

// Listen for incoming stream connections on a port.
func (i *Interface) Listen(port uint16) {
	i.listening[port] = true
}

// Connect to a listening peer. The connection is usable after the Handler's HandleReady was called.
func (i *Interface) Connect(dst netip.Addr, port uint16) (ConnID, error) {
	peer, ok := i.net.ifaces[dst]
	if !ok || !i.net.LinkUp(i.node, peer.node) {
		return 0, fmt.Errorf("%w: %v", ErrUnreachable, dst)
	} else if !peer.listening[port] {
		return 0, fmt.Errorf("%w: %v:%d", ErrNotListening, dst, port)
	}

	local := &connEnd{id: i.net.nextConn, peer: i.net.nextConn + 1, owner: i}
	remote := &connEnd{id: i.net.nextConn + 1, peer: i.net.nextConn, owner: peer}
	i.net.nextConn += 2

	i.net.conns[local.id] = local
	i.net.conns[remote.id] = remote

	i.net.sched.After(i.net.conf.Latency, func() {
		l, lOk := i.net.conns[local.id]
		r, rOk := i.net.conns[remote.id]
		if !lOk || !rOk || l.aborted || l.closed || r.closed {
			return
		}

		r.open = true
		r.owner.handler.HandleAccept(r.id, l.owner.addr)

		l.open = true
		l.owner.handler.HandleReady(l.id)
	})

	return local.id, nil
}

// Headroom is the free send buffer of a connection.
func (i *Interface) Headroom(conn ConnID) int {
	end, ok := i.net.conns[conn]
	if !ok || !end.open || end.closed || end.aborted {
		return 0
	}
	return i.net.conf.StreamBuffer - end.buffered
}

// Send bytes on a connection. At most Headroom bytes are accepted; their amount is returned.
func (i *Interface) Send(conn ConnID, data []byte) int {
	end, ok := i.net.conns[conn]
	if !ok || end.owner != i {
		return 0
	}

	n := i.Headroom(conn)
	if n > len(data) {
		n = len(data)
	}
	if n <= 0 {
		return 0
	}

	chunk := append([]byte(nil), data[:n]...)
	end.buffered += n

	start := end.busyUntil
	if now := i.net.sched.Now(); start < now {
		start = now
	}
	end.busyUntil = start + i.net.transmissionTime(n)

	i.net.sched.At(end.busyUntil+i.net.conf.Latency, func() {
		e, ok := i.net.conns[conn]
		if !ok || e.aborted {
			return
		}

		e.buffered -= len(chunk)
		if p, ok := i.net.conns[e.peer]; ok && !p.closed {
			p.owner.handler.HandleData(p.id, chunk)
		}

		if !e.closed {
			e.delivered += uint64(len(chunk))
			e.owner.handler.HandleDelivered(e.id, e.delivered)
			e.owner.handler.HandleReady(e.id)
		}
	})

	return n
}

// Close this side of a connection. The peer will be notified; the connection vanishes after both
// sides were closed.
func (i *Interface) Close(conn ConnID) {
	end, ok := i.net.conns[conn]
	if !ok || end.closed {
		return
	}
	end.closed = true

	peer, peerOk := i.net.conns[end.peer]
	if !peerOk || peer.closed {
		delete(i.net.conns, end.id)
		delete(i.net.conns, end.peer)
		return
	}

	if !peer.aborted {
		peerId := peer.id
		i.net.sched.After(i.net.conf.Latency, func() {
			if p, ok := i.net.conns[peerId]; ok && !p.closed {
				p.owner.handler.HandleRemoteClosed(peerId)
			}
		})
	}
}

// OpenConns is the amount of connection ends not yet released.
func (n *Network) OpenConns() int {
	return len(n.conns)
}
