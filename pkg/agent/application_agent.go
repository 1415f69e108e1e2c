// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import "github.com/dtn7/dtn7-sim/pkg/bundle"

// ApplicationAgent consumes Messages addressed to its nodes.
type ApplicationAgent interface {
	// Endpoints returns the nodes this ApplicationAgent answers to. bundle.AnyNode answers to all nodes.
	Endpoints() []bundle.NodeID

	// Deliver a Message to this ApplicationAgent. Deliver must not block.
	Deliver(msg Message)
}

func bagContainsEndpoint(bag []bundle.NodeID, nodes []bundle.NodeID) bool {
	for _, b := range bag {
		for _, node := range nodes {
			if b.Matches(node) {
				return true
			}
		}
	}
	return false
}

func bagHasEndpoint(bag []bundle.NodeID, node bundle.NodeID) bool {
	return bagContainsEndpoint(bag, []bundle.NodeID{node})
}

// AppAgentContainsEndpoint checks if an ApplicationAgent answers to at least one of the nodes.
func AppAgentContainsEndpoint(app ApplicationAgent, nodes []bundle.NodeID) bool {
	return bagContainsEndpoint(app.Endpoints(), nodes)
}

// AppAgentHasEndpoint checks if an ApplicationAgent answers to this node.
func AppAgentHasEndpoint(app ApplicationAgent, node bundle.NodeID) bool {
	return AppAgentContainsEndpoint(app, []bundle.NodeID{node})
}
