// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"fmt"
	"net/netip"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// DatagramTransport sends datagrams, e.g., a sim.Interface.
type DatagramTransport interface {
	SendDatagram(data []byte, dst netip.Addr, port uint16, priority uint8) error
}

// DatagramEngine transfers each bundle as a single BundleData datagram.
type DatagramEngine struct {
	node        bundle.NodeID
	transport   DatagramTransport
	port        uint16
	maxDatagram int
	receiver    Receiver
	logger      *log.Entry
}

// NewDatagramEngine for a node. Bundles larger than maxDatagram cannot be transferred.
func NewDatagramEngine(node bundle.NodeID, transport DatagramTransport, port uint16, maxDatagram int, receiver Receiver) *DatagramEngine {
	return &DatagramEngine{
		node:        node,
		transport:   transport,
		port:        port,
		maxDatagram: maxDatagram,
		receiver:    receiver,
		logger:      log.WithField("node", node),
	}
}

// SetLogger replaces the default logger.
func (e *DatagramEngine) SetLogger(logger *log.Entry) {
	e.logger = logger
}

// CheckSize returns ErrBundleTooLarge if a bundle of this size cannot be sent within one datagram.
func (e *DatagramEngine) CheckSize(size uint32) error {
	l := bundle.BundleDataPacketLen(size)
	if l > e.maxDatagram || l-bundle.ControlHeaderLen > bundle.MaxPayloadLen {
		return fmt.Errorf("%w: %d bytes bundle needs a %d bytes datagram, maximum is %d",
			ErrBundleTooLarge, size, l, e.maxDatagram)
	}
	return nil
}

// Busy is always false; datagrams are sent right away.
func (e *DatagramEngine) Busy(netip.Addr) bool {
	return false
}

// Transfer sends each bundle of the batch as its own datagram.
func (e *DatagramEngine) Transfer(dst netip.Addr, batch []Transmission) error {
	for _, t := range batch {
		if err := e.CheckSize(t.Header.Size); err != nil {
			return err
		}

		pkt, err := bundle.NewBundleDataPacket(e.node, t.Header, t.body())
		if err != nil {
			return err
		}

		if err := e.transport.SendDatagram(pkt, dst, e.port, 0); err != nil {
			return fmt.Errorf("sending bundle %v to %v failed: %w", t.Header.ID, dst, err)
		}

		e.logger.WithFields(log.Fields{
			"bundle": t.Header.ID,
			"peer":   dst,
			"bytes":  len(pkt),
		}).Debug("Datagram engine sent bundle")
	}
	return nil
}

// Receive a BundleData record of an incoming datagram.
func (e *DatagramEngine) Receive(src netip.Addr, msg bundle.Message) error {
	h, payload, err := msg.BundleData()
	if err != nil {
		return err
	}

	e.receiver.ReceiveStatus(NewConvergenceReceivedBundle(e, src, h, append([]byte(nil), payload...)))
	return nil
}

// Close is a no-op; datagrams are connectionless.
func (e *DatagramEngine) Close() {}

func (e *DatagramEngine) String() string {
	return fmt.Sprintf("udp://%v:%d", e.node, e.port)
}
