// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/agent"
	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// AgentManager is a proxy to connect different ApplicationAgents with a Core.
type AgentManager struct {
	core *Core

	mux *agent.MuxAgent
}

// NewAgentManager creates a new AgentManager to proxy different ApplicationAgents for a Core.
func NewAgentManager(core *Core) *AgentManager {
	return &AgentManager{
		core: core,
		mux:  agent.NewMuxAgent(),
	}
}

// Register a new ApplicationAgent.
func (manager *AgentManager) Register(appAgent agent.ApplicationAgent) {
	manager.mux.Register(appAgent)
}

// HasEndpoint checks if some ApplicationAgent answers to this node.
func (manager *AgentManager) HasEndpoint(node bundle.NodeID) bool {
	return agent.AppAgentHasEndpoint(manager.mux, node)
}

// Deliver a received bundle to the ApplicationAgents of this Core's node.
func (manager *AgentManager) Deliver(h bundle.Header, payload []byte) {
	msg := agent.BundleMessage{
		Node:    manager.core.NodeId,
		Time:    manager.core.sched.Now(),
		Header:  h,
		Payload: payload,
	}

	if !manager.HasEndpoint(msg.Node) {
		manager.core.logger.WithField("bundle", h.ID).Debug("AgentManager has no registered Agent for this Bundle")
		return
	}

	manager.core.logger.WithFields(log.Fields{
		"bundle":  h.ID,
		"latency": msg.Latency(),
	}).Debug("AgentManager delivers Bundle to client")
	manager.mux.Deliver(msg)
}

// Close detaches all ApplicationAgents. They might be shared between nodes and are not shut down.
func (manager *AgentManager) Close() {
	manager.mux = agent.NewMuxAgent()
}
