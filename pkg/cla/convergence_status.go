// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"fmt"
	"net/netip"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// ConvergenceMessageType indicates the kind of a ConvergenceStatus.
type ConvergenceMessageType uint

const (
	_ ConvergenceMessageType = iota

	// ReceivedBundle shows the reception of a bundle. The Message's type must be
	// a ConvergenceReceivedBundle struct.
	ReceivedBundle

	// PeerDisappeared shows that a connection to a peer was closed. The Message's
	// type must be a netip.Addr.
	PeerDisappeared

	// PeerAppeared shows an established connection to a peer. The Message's type
	// must be a netip.Addr.
	PeerAppeared

	// BatchCompleted shows that the peer received a whole batch and the
	// connection accepts a new one. The Message's type must be a netip.Addr.
	BatchCompleted
)

func (cms ConvergenceMessageType) String() string {
	switch cms {
	case ReceivedBundle:
		return "Received Bundle"
	case PeerDisappeared:
		return "Peer Disappeared"
	case PeerAppeared:
		return "Peer Appeared"
	case BatchCompleted:
		return "Batch Completed"
	default:
		return "Unknown Type"
	}
}

// ConvergenceStatus is reported by an engine to its Receiver.
type ConvergenceStatus struct {
	Sender      Convergence
	MessageType ConvergenceMessageType
	Message     interface{}
}

func (cs ConvergenceStatus) String() string {
	return fmt.Sprintf("%v-Convergence Status from %v", cs.MessageType, cs.Sender)
}

// Receiver consumes the ConvergenceStatus reports of engines.
type Receiver interface {
	ReceiveStatus(cs ConvergenceStatus)
}

// ConvergenceReceivedBundle is the Message content for a ConvergenceStatus of
// the ReceivedBundle MessageType.
type ConvergenceReceivedBundle struct {
	Peer    netip.Addr
	Header  bundle.Header
	Payload []byte
}

// NewConvergenceReceivedBundle creates a new ConvergenceStatus for a
// ReceivedBundle type, transmitting the peer's address and the bundle.
func NewConvergenceReceivedBundle(sender Convergence, peer netip.Addr, h bundle.Header, payload []byte) ConvergenceStatus {
	return ConvergenceStatus{
		Sender:      sender,
		MessageType: ReceivedBundle,
		Message: ConvergenceReceivedBundle{
			Peer:    peer,
			Header:  h,
			Payload: payload,
		},
	}
}

// NewConvergencePeerDisappeared creates a new ConvergenceStatus for a
// PeerDisappeared type, transmitting the peer's address.
func NewConvergencePeerDisappeared(sender Convergence, peer netip.Addr) ConvergenceStatus {
	return ConvergenceStatus{
		Sender:      sender,
		MessageType: PeerDisappeared,
		Message:     peer,
	}
}

// NewConvergencePeerAppeared creates a new ConvergenceStatus for a
// PeerAppeared type, transmitting the peer's address.
func NewConvergencePeerAppeared(sender Convergence, peer netip.Addr) ConvergenceStatus {
	return ConvergenceStatus{
		Sender:      sender,
		MessageType: PeerAppeared,
		Message:     peer,
	}
}

// NewConvergenceBatchCompleted creates a new ConvergenceStatus for a
// BatchCompleted type, transmitting the peer's address.
func NewConvergenceBatchCompleted(sender Convergence, peer netip.Addr) ConvergenceStatus {
	return ConvergenceStatus{
		Sender:      sender,
		MessageType: BatchCompleted,
		Message:     peer,
	}
}
