// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"sync"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// MuxAgent fans Messages out to all registered children answering to the Messages' recipients.
// Messages without recipients, like a ShutdownMessage, reach all children.
type MuxAgent struct {
	sync.Mutex

	children []ApplicationAgent
}

func NewMuxAgent() *MuxAgent {
	return &MuxAgent{}
}

// Register a child ApplicationAgent.
func (mux *MuxAgent) Register(agent ApplicationAgent) {
	mux.Lock()
	defer mux.Unlock()

	mux.children = append(mux.children, agent)
}

// Unregister a child ApplicationAgent.
func (mux *MuxAgent) Unregister(agent ApplicationAgent) {
	mux.Lock()
	defer mux.Unlock()

	for i, child := range mux.children {
		if child == agent {
			mux.children = append(mux.children[:i], mux.children[i+1:]...)
			break
		}
	}
}

// Deliver a Message to all matching children. A ShutdownMessage unregisters all children afterwards.
func (mux *MuxAgent) Deliver(msg Message) {
	mux.Lock()
	children := append([]ApplicationAgent(nil), mux.children...)
	if _, isShutdown := msg.(ShutdownMessage); isShutdown {
		mux.children = nil
	}
	mux.Unlock()

	for _, child := range children {
		if rec := msg.Recipients(); rec == nil || AppAgentContainsEndpoint(child, rec) {
			child.Deliver(msg)
		}
	}
}

func (mux *MuxAgent) Endpoints() (endpoints []bundle.NodeID) {
	mux.Lock()
	defer mux.Unlock()

	for _, child := range mux.children {
		endpoints = append(endpoints, child.Endpoints()...)
	}
	return
}
