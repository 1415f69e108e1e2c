// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"fmt"
	"net/netip"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/sim"
)

// StreamTransport offers reliable byte streams, e.g., a sim.Interface.
type StreamTransport interface {
	Connect(dst netip.Addr, port uint16) (sim.ConnID, error)
	Send(conn sim.ConnID, data []byte) int
	Headroom(conn sim.ConnID) int
	Close(conn sim.ConnID)
}

// ConnState of a stream connection.
type ConnState int

const (
	// WaitingForEstablishing connections were initiated, but the transport has not signaled readiness.
	WaitingForEstablishing ConnState = iota

	// Established connections send and receive data.
	Established

	// WaitingForClosing connections were closed by the remote peer.
	WaitingForClosing

	// Closed connections were released.
	Closed
)

func (cs ConnState) String() string {
	switch cs {
	case WaitingForEstablishing:
		return "waiting for establishing"
	case Established:
		return "established"
	case WaitingForClosing:
		return "waiting for closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// queuedBundle is a bundle waiting in a connection's send queue.
type queuedBundle struct {
	id     bundle.ID
	header []byte

	// body is nil for virtual payloads, which are sent as size filler bytes.
	body []byte
	size int
}

func (qb queuedBundle) len() int {
	return len(qb.header) + qb.size
}

// streamConn is the per connection transfer state.
type streamConn struct {
	id       sim.ConnID
	peer     netip.Addr
	state    ConnState
	outgoing bool

	// queue is the current batch; pos and offset point to the next byte to send.
	queue  []queuedBundle
	pos    int
	offset int

	queued    uint64
	sent      uint64
	delivered uint64

	reassembler Reassembler
}

func (c *streamConn) busy() bool {
	return len(c.queue) > 0
}

// StreamEngine transfers bundles over one outgoing stream connection per destination. Only one batch
// is in flight per connection.
type StreamEngine struct {
	node      bundle.NodeID
	transport StreamTransport
	port      uint16
	receiver  Receiver
	logger    *log.Entry

	// peers maps destinations to their outgoing connection.
	peers map[netip.Addr]*streamConn
	conns map[sim.ConnID]*streamConn
}

// NewStreamEngine for a node, connecting to the given port of its peers.
func NewStreamEngine(node bundle.NodeID, transport StreamTransport, port uint16, receiver Receiver) *StreamEngine {
	return &StreamEngine{
		node:      node,
		transport: transport,
		port:      port,
		receiver:  receiver,
		logger:    log.WithField("node", node),
		peers:     make(map[netip.Addr]*streamConn),
		conns:     make(map[sim.ConnID]*streamConn),
	}
}

// SetLogger replaces the default logger.
func (e *StreamEngine) SetLogger(logger *log.Entry) {
	e.logger = logger
}

// Busy reports if the connection towards dst is still draining a batch.
func (e *StreamEngine) Busy(dst netip.Addr) bool {
	c, ok := e.peers[dst]
	return ok && c.busy()
}

// State of the outgoing connection towards dst, which is Closed if there is none.
func (e *StreamEngine) State(dst netip.Addr) ConnState {
	if c, ok := e.peers[dst]; ok {
		return c.state
	}
	return Closed
}

// Connections is the amount of tracked connections, incoming and outgoing.
func (e *StreamEngine) Connections() int {
	return len(e.conns)
}

// Transfer a batch to dst, connecting first if necessary.
func (e *StreamEngine) Transfer(dst netip.Addr, batch []Transmission) error {
	if len(batch) == 0 {
		return nil
	}

	c, ok := e.peers[dst]
	if ok && c.busy() {
		return ErrBusy
	}

	if !ok {
		id, err := e.transport.Connect(dst, e.port)
		if err != nil {
			return fmt.Errorf("connecting to %v failed: %w", dst, err)
		}

		c = &streamConn{id: id, peer: dst, state: WaitingForEstablishing, outgoing: true}
		e.peers[dst] = c
		e.conns[id] = c

		e.logger.WithFields(log.Fields{
			"peer": dst,
			"conn": id,
		}).Debug("Stream engine connects to peer")
	}

	for _, t := range batch {
		qb := queuedBundle{id: t.Header.ID, header: t.Header.Bytes(), size: int(t.Header.Size)}
		if uint32(len(t.Payload)) == t.Header.Size {
			qb.body = t.Payload
		}
		c.queue = append(c.queue, qb)
		c.queued += uint64(qb.len())
	}
	c.pos, c.offset = 0, 0

	e.logger.WithFields(log.Fields{
		"peer":    dst,
		"bundles": len(batch),
		"state":   c.state,
	}).Debug("Stream engine queued batch")

	if c.state == Established {
		e.drain(c)
	}
	return nil
}

// drain as many queued bytes as the transport accepts.
func (e *StreamEngine) drain(c *streamConn) {
	for c.pos < len(c.queue) {
		qb := c.queue[c.pos]

		var data []byte
		switch {
		case c.offset < len(qb.header):
			data = qb.header[c.offset:]
		case qb.body != nil:
			data = qb.body[c.offset-len(qb.header):]
		default:
			n := qb.len() - c.offset
			if headroom := e.transport.Headroom(c.id); n > headroom {
				n = headroom
			}
			data = make([]byte, n)
		}

		var n int
		if len(data) > 0 {
			n = e.transport.Send(c.id, data)
		}
		c.offset += n
		c.sent += uint64(n)

		if c.offset >= qb.len() {
			c.pos++
			c.offset = 0
		} else if n == 0 || n < len(data) {
			return
		}
	}
}

// HandleAccept registers an incoming connection.
func (e *StreamEngine) HandleAccept(conn sim.ConnID, peer netip.Addr) {
	e.conns[conn] = &streamConn{id: conn, peer: peer, state: Established}

	e.logger.WithFields(log.Fields{
		"peer": peer,
		"conn": conn,
	}).Debug("Stream engine accepted connection")
}

// HandleReady establishes a connection or continues draining it.
func (e *StreamEngine) HandleReady(conn sim.ConnID) {
	c, ok := e.conns[conn]
	if !ok {
		return
	}

	switch c.state {
	case WaitingForEstablishing:
		c.state = Established
		e.receiver.ReceiveStatus(NewConvergencePeerAppeared(e, c.peer))
		e.drain(c)

	case Established:
		e.drain(c)
	}
}

// HandleData feeds the connection's Reassembler and reports each completed bundle.
func (e *StreamEngine) HandleData(conn sim.ConnID, data []byte) {
	c, ok := e.conns[conn]
	if !ok {
		return
	}

	for _, r := range c.reassembler.Feed(data) {
		e.receiver.ReceiveStatus(NewConvergenceReceivedBundle(e, c.peer, r.Header, r.Payload))
	}
}

// HandleDelivered completes a batch once the peer received all of its bytes.
func (e *StreamEngine) HandleDelivered(conn sim.ConnID, total uint64) {
	c, ok := e.conns[conn]
	if !ok {
		return
	}

	c.delivered = total
	if c.busy() && c.delivered >= c.queued {
		e.logger.WithFields(log.Fields{
			"peer":    c.peer,
			"bundles": len(c.queue),
			"bytes":   c.delivered,
		}).Debug("Stream engine completed batch")

		c.queue, c.pos, c.offset = nil, 0, 0
		e.receiver.ReceiveStatus(NewConvergenceBatchCompleted(e, c.peer))
	}
}

// HandleRemoteClosed closes and releases the connection.
func (e *StreamEngine) HandleRemoteClosed(conn sim.ConnID) {
	c, ok := e.conns[conn]
	if !ok {
		return
	}

	c.state = WaitingForClosing
	e.release(c)

	if c.busy() {
		e.logger.WithFields(log.Fields{
			"peer":    c.peer,
			"pending": len(c.queue) - c.pos,
		}).Info("Stream engine lost connection while transferring")
	}

	if c.outgoing {
		e.receiver.ReceiveStatus(NewConvergencePeerDisappeared(e, c.peer))
	}
}

func (e *StreamEngine) release(c *streamConn) {
	e.transport.Close(c.id)
	c.state = Closed

	delete(e.conns, c.id)
	if c.outgoing && e.peers[c.peer] == c {
		delete(e.peers, c.peer)
	}
}

// Close all connections.
func (e *StreamEngine) Close() {
	for _, c := range e.conns {
		e.release(c)
	}
}

func (e *StreamEngine) String() string {
	return fmt.Sprintf("tcp://%v:%d", e.node, e.port)
}
