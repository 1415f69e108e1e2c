// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"sort"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// Registry knows all running Cores of a simulation by their NodeID.
//
// Scheduled callbacks only keep a node's ID and look the Core up when they fire. A callback for a
// closed Core finds nothing and does not run.
type Registry struct {
	cores map[bundle.NodeID]*Core
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cores: make(map[bundle.NodeID]*Core)}
}

func (r *Registry) add(c *Core) error {
	if _, ok := r.cores[c.NodeId]; ok {
		return fmt.Errorf("a node %v is already registered", c.NodeId)
	}
	r.cores[c.NodeId] = c
	return nil
}

func (r *Registry) remove(c *Core) {
	if r.cores[c.NodeId] == c {
		delete(r.cores, c.NodeId)
	}
}

// Lookup a running Core.
func (r *Registry) Lookup(node bundle.NodeID) (c *Core, ok bool) {
	c, ok = r.cores[node]
	return
}

// Nodes returns the IDs of all running Cores in ascending order.
func (r *Registry) Nodes() []bundle.NodeID {
	nodes := make([]bundle.NodeID, 0, len(r.cores))
	for node := range r.cores {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}
