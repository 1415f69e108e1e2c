// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package simulation

import (
	"math"
	"time"

	"github.com/dtn7/dtn7-sim/pkg/agent"
	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/routing"
)

var _ agent.Inspector = (*Simulation)(nil)

// Now is the current virtual time.
func (s *Simulation) Now() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.sched.Now()
}

// Send a new bundle from a running node.
func (s *Simulation) Send(source, target bundle.NodeID, size uint32, payload []byte) (bundle.ID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.send(source, target, size, payload)
}

func restNode(c *routing.Core) agent.RestNode {
	store := c.Store()

	return agent.RestNode{
		Node:          c.NodeId.String(),
		Address:       c.Addr().String(),
		Routing:       c.Routing().String(),
		StoredBundles: store.Len(),
		StoredBytes:   store.Usage(),
		Capacity:      store.Capacity(),
		Delivered:     c.DeliveredCount(),
	}
}

// Nodes returns the state of all running nodes.
func (s *Simulation) Nodes() (nodes []agent.RestNode) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, node := range s.registry.Nodes() {
		if c, ok := s.registry.Lookup(node); ok {
			nodes = append(nodes, restNode(c))
		}
	}
	return
}

// Node returns a single node's state.
func (s *Simulation) Node(node bundle.NodeID) (agent.RestNode, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.registry.Lookup(node)
	if !ok {
		return agent.RestNode{}, false
	}
	return restNode(c), true
}

// Store lists a node's stored bundles. Costs are only reported for MaxProp, as of its last ordering.
func (s *Simulation) Store(node bundle.NodeID) (recs []agent.RestRecord, ok bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.registry.Lookup(node)
	if !ok {
		return nil, false
	}

	_, isMaxProp := c.Routing().(*routing.MaxProp)
	for _, rec := range c.Store().Records() {
		cost := math.NaN()
		if isMaxProp {
			cost = rec.Cost
		}
		recs = append(recs, agent.NewRestRecord(rec.Header, rec.RemainingCopies, cost))
	}
	return recs, true
}
