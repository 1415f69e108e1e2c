// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// Mailbox is an ApplicationAgent keeping all delivered bundles in memory, grouped by the receiving node.
type Mailbox struct {
	sync.Mutex

	endpoints []bundle.NodeID
	boxes     map[bundle.NodeID][]BundleMessage
	limit     int
}

// NewMailbox for the given nodes. Without nodes, the Mailbox answers to all nodes. A positive limit caps
// the amount of kept messages per node by dropping the oldest ones.
func NewMailbox(limit int, nodes ...bundle.NodeID) *Mailbox {
	if len(nodes) == 0 {
		nodes = []bundle.NodeID{bundle.AnyNode}
	}

	return &Mailbox{
		endpoints: nodes,
		boxes:     make(map[bundle.NodeID][]BundleMessage),
		limit:     limit,
	}
}

func (m *Mailbox) Endpoints() []bundle.NodeID {
	return m.endpoints
}

// Deliver stores BundleMessages and ignores all other Messages.
func (m *Mailbox) Deliver(msg Message) {
	bm, ok := msg.(BundleMessage)
	if !ok {
		return
	}

	m.Lock()
	defer m.Unlock()

	box := append(m.boxes[bm.Node], bm)
	if m.limit > 0 && len(box) > m.limit {
		box = box[len(box)-m.limit:]
	}
	m.boxes[bm.Node] = box

	log.WithFields(log.Fields{
		"node":   bm.Node,
		"bundle": bm.Header.ID,
	}).Debug("Mailbox stored delivered bundle")
}

// Messages delivered at a node, oldest first.
func (m *Mailbox) Messages(node bundle.NodeID) []BundleMessage {
	m.Lock()
	defer m.Unlock()

	return append([]BundleMessage(nil), m.boxes[node]...)
}

// Len is the amount of kept messages over all nodes.
func (m *Mailbox) Len() (n int) {
	m.Lock()
	defer m.Unlock()

	for _, box := range m.boxes {
		n += len(box)
	}
	return
}

// Fetch returns and removes all messages of a node.
func (m *Mailbox) Fetch(node bundle.NodeID) []BundleMessage {
	m.Lock()
	defer m.Unlock()

	box := m.boxes[node]
	delete(m.boxes, node)
	return box
}
