// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// mockAgent is a trivial implementation of an ApplicationAgent, only used for testing.
type mockAgent struct {
	sync.Mutex

	endpoints []bundle.NodeID
	queue     []Message
}

// newMockAgent creates a mockAgent for the given nodes.
func newMockAgent(endpoints []bundle.NodeID) *mockAgent {
	return &mockAgent{endpoints: endpoints}
}

// inbox returns all received messages and cleans the internal message queue.
func (m *mockAgent) inbox() (msgs []Message) {
	m.Lock()
	defer m.Unlock()

	msgs = m.queue
	m.queue = nil
	return
}

func (m *mockAgent) Endpoints() []bundle.NodeID {
	return m.endpoints
}

func (m *mockAgent) Deliver(msg Message) {
	m.Lock()
	defer m.Unlock()

	m.queue = append(m.queue, msg)
}

// testBundle creates a BundleMessage from src to dst, delivered at dst after one second.
func testBundle(src, dst bundle.NodeID, seq uint32, payload []byte) BundleMessage {
	return BundleMessage{
		Node: dst,
		Time: time.Second,
		Header: bundle.Header{
			ID:         bundle.NewID(src, seq),
			Size:       uint32(len(payload)),
			Target:     dst,
			Expiration: time.Hour,
			NumCopies:  1,
			HopCount:   1,
		},
		Payload: payload,
	}
}

func TestMockAgent(t *testing.T) {
	b0 := testBundle(1, 2, 0, []byte("hello world"))
	b1 := testBundle(1, 2, 1, []byte("gumo world"))

	mock := newMockAgent([]bundle.NodeID{2})

	mock.Deliver(b0)
	mock.Deliver(b1)

	if msgs := mock.inbox(); len(msgs) != 2 {
		t.Fatalf("mock agent did not receive two messages; msgs := %v", msgs)
	} else if !reflect.DeepEqual(msgs[0], b0) {
		t.Fatalf("first message is not b0; %v %v", msgs[0], b0)
	} else if !reflect.DeepEqual(msgs[1], b1) {
		t.Fatalf("second message is not b1; %v %v", msgs[1], b1)
	}

	mock.Deliver(ShutdownMessage{})

	if msgs := mock.inbox(); len(msgs) != 1 {
		t.Fatalf("mock agent did not receive one message; msgs := %v", msgs)
	} else if !reflect.DeepEqual(msgs[0], ShutdownMessage{}) {
		t.Fatalf("expected %v, got %v", ShutdownMessage{}, msgs[0])
	}
}
