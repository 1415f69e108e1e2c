// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"reflect"
	"sort"
	"testing"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

func TestMuxAgent(t *testing.T) {
	b1 := testBundle(1, 2, 0, []byte("hello world"))

	mux := NewMuxAgent()

	mock1 := newMockAgent([]bundle.NodeID{2})
	mock2 := newMockAgent([]bundle.NodeID{3})

	mux.Register(mock1)
	mux.Register(mock2)

	mux.Deliver(b1)

	for i, mock := range []*mockAgent{mock1, mock2} {
		if msgs := mock.inbox(); len(msgs) != 1-i {
			t.Fatalf("mock agent%d did not receive %d messages; msgs := %v", i+1, 1-i, msgs)
		} else if 1-i > 0 && !reflect.DeepEqual(msgs[0], b1) {
			t.Fatalf("message is not b1; %v %v", msgs[0], b1)
		}
	}

	mux.Unregister(mock1)

	b2 := testBundle(1, 3, 1, []byte("gumo world"))
	mux.Deliver(b1)
	mux.Deliver(b2)

	if msgs := mock1.inbox(); len(msgs) != 0 {
		t.Fatalf("unregistered mock agent1 received messages %v", msgs)
	}
	if msgs := mock2.inbox(); len(msgs) != 1 {
		t.Fatalf("mock agent2 did not receive messages; msgs := %v", msgs)
	} else if !reflect.DeepEqual(msgs[0], b2) {
		t.Fatalf("message is not b2; %v %v", msgs[0], b2)
	}

	mux.Deliver(ShutdownMessage{})

	if msgs := mock2.inbox(); len(msgs) != 1 {
		t.Fatalf("mock agent did not receive one message; msgs := %v", msgs)
	} else if !reflect.DeepEqual(msgs[0], ShutdownMessage{}) {
		t.Fatalf("expected %v, got %v", ShutdownMessage{}, msgs[0])
	}

	mux.Deliver(b2)
	if msgs := mock2.inbox(); len(msgs) != 0 {
		t.Fatalf("mock agent received messages after the shutdown: %v", msgs)
	}
}

func TestMuxAgentEndpoints(t *testing.T) {
	mux := NewMuxAgent()
	mux.Register(newMockAgent([]bundle.NodeID{4, 2}))
	mux.Register(newMockAgent([]bundle.NodeID{3}))

	endpoints := mux.Endpoints()
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i] < endpoints[j] })

	if !reflect.DeepEqual(endpoints, []bundle.NodeID{2, 3, 4}) {
		t.Fatalf("unexpected endpoints %v", endpoints)
	}
}

func TestMuxAgentEvents(t *testing.T) {
	mux := NewMuxAgent()
	mock := newMockAgent([]bundle.NodeID{2})
	mux.Register(mock)

	mux.Deliver(EventMessage{trace.Event{Kind: trace.Forwarded, Node: 1, Peer: 2}})
	mux.Deliver(EventMessage{trace.Event{Kind: trace.Received, Node: 2, Peer: 1}})

	if msgs := mock.inbox(); len(msgs) != 1 {
		t.Fatalf("expected one event, got %v", msgs)
	} else if em := msgs[0].(EventMessage); em.Event.Node != 2 || em.Event.Kind != trace.Received {
		t.Fatalf("unexpected event %v", em.Event)
	}
}
