// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"time"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

type Message interface {
	// Recipients returns a list of nodes to which this message is addressed.
	// However, if this message is not addressed to some specific node, nil must be returned.
	Recipients() []bundle.NodeID
}

// BundleMessage is a bundle delivered at Node.
type BundleMessage struct {
	Node    bundle.NodeID
	Time    time.Duration
	Header  bundle.Header
	Payload []byte
}

func (bm BundleMessage) Recipients() []bundle.NodeID {
	return []bundle.NodeID{bm.Node}
}

// Latency between the bundle's creation and its delivery.
func (bm BundleMessage) Latency() time.Duration {
	return bm.Time - bm.Header.SendTime
}

// EventMessage wraps a trace Event which happened at the Event's node.
type EventMessage struct {
	Event trace.Event
}

func (em EventMessage) Recipients() []bundle.NodeID {
	return []bundle.NodeID{em.Event.Node}
}

type ShutdownMessage struct{}

func (sm ShutdownMessage) Recipients() []bundle.NodeID {
	return nil
}
