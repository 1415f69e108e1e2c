// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cla contains the convergence layer engines moving bundles between neighbors.
//
// Two engines exist: the DatagramEngine ships each bundle within a single datagram, while the
// StreamEngine multiplexes bundles over one reliable stream connection per peer and reassembles
// incoming streams back into bundles. Both report to a Receiver.
package cla

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

var (
	// ErrBundleTooLarge is returned if a bundle does not fit into a single datagram.
	ErrBundleTooLarge = errors.New("bundle exceeds the maximum datagram size")

	// ErrBusy is returned if a stream connection is still draining its previous batch.
	ErrBusy = errors.New("connection is still transferring a batch")
)

// Transmission is a bundle handed to an engine. A nil Payload is a virtual payload, replaced by filler.
type Transmission struct {
	Header  bundle.Header
	Payload []byte
}

// body of this Transmission as it goes on the wire.
func (t Transmission) body() []byte {
	if uint32(len(t.Payload)) == t.Header.Size {
		return t.Payload
	}
	return make([]byte, t.Header.Size)
}

// Convergence is an engine transferring bundles to neighbors.
type Convergence interface {
	// Busy reports if no new batch can be transferred to this destination right now.
	Busy(dst netip.Addr) bool

	// Transfer a batch of bundles, in order, to the destination.
	Transfer(dst netip.Addr, batch []Transmission) error

	// Close all connections.
	Close()

	fmt.Stringer
}

// Mode selects a Convergence.
type Mode int

const (
	// DatagramMode transfers each bundle as one datagram.
	DatagramMode Mode = iota

	// StreamMode transfers bundles over reliable stream connections.
	StreamMode
)

// ParseMode from its configuration name, "udp" or "tcp".
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "udp", "datagram", "":
		return DatagramMode, nil
	case "tcp", "stream":
		return StreamMode, nil
	default:
		return 0, fmt.Errorf("unknown transport mode %q", name)
	}
}

func (m Mode) String() string {
	switch m {
	case DatagramMode:
		return "udp"
	case StreamMode:
		return "tcp"
	default:
		return "unknown"
	}
}
