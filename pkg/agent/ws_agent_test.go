// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"bytes"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

func newWebSocketServer(t *testing.T, sender Sender) (*WebSocketAgent, *websocket.Conn) {
	t.Helper()

	ws := NewWebSocketAgent(sender, 0)
	server := httptest.NewServer(ws)
	t.Cleanup(server.Close)

	u := "ws" + strings.TrimPrefix(server.URL, "http")
	wsClient, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = wsClient.Close() })

	return ws, wsClient
}

func writeWam(t *testing.T, wsClient *websocket.Conn, wam webAgentMessage) {
	t.Helper()

	if w, err := wsClient.NextWriter(websocket.BinaryMessage); err != nil {
		t.Fatal(err)
	} else if err := marshalCbor(wam, w); err != nil {
		t.Fatal(err)
	} else if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func readWam(t *testing.T, wsClient *websocket.Conn, code uint64) webAgentMessage {
	t.Helper()

	_ = wsClient.SetReadDeadline(time.Now().Add(5 * time.Second))

	if mt, r, err := wsClient.NextReader(); err != nil {
		t.Fatal(err)
	} else if mt != websocket.BinaryMessage {
		t.Fatalf("expected message type %v, got %v", websocket.BinaryMessage, mt)
	} else if msg, err := unmarshalCbor(r); err != nil {
		t.Fatal(err)
	} else if msg.typeCode() != code {
		t.Fatalf("expected type code %d, got %d", code, msg.typeCode())
	} else {
		return msg
	}
	return nil
}

// awaitEndpoints waits until the WebSocketAgent's clients answer to the node.
func awaitEndpoints(t *testing.T, ws *WebSocketAgent, node bundle.NodeID) {
	t.Helper()

	for i := 0; i < 50; i++ {
		if AppAgentHasEndpoint(ws, node) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("WebSocketAgent does not answer to %v", node)
}

func TestWebAgentNew(t *testing.T) {
	sender := newFakeInspector()
	ws, wsClient := newWebSocketServer(t, sender)

	// Register client
	writeWam(t, wsClient, newRegisterMessage("2"))
	if msg := readWam(t, wsClient, wamStatusCode).(*wamStatus); msg.errorMsg != "" {
		t.Fatal(msg.errorMsg)
	}
	awaitEndpoints(t, ws, 2)

	// Send Bundle to client
	bm := testBundle(1, 2, 0, []byte("hello world"))
	ws.Deliver(bm)

	if msg := readWam(t, wsClient, wamBundleCode).(*wamBundle); msg.node != 2 || msg.time != bm.Time {
		t.Fatalf("unexpected delivery at %v, %v", msg.node, msg.time)
	} else if !reflect.DeepEqual(msg.header, bm.Header) || !bytes.Equal(msg.payload, bm.Payload) {
		t.Fatalf("expected %v, got %v", bm.Header, msg.header)
	}

	// Events of other nodes are not forwarded
	ws.Record(trace.Event{Time: time.Second, Kind: trace.Forwarded, Node: 1, Peer: 2, Bundle: bm.Header.ID})
	e := trace.Event{Time: 2 * time.Second, Kind: trace.Delivered, Node: 2, Peer: 1, Bundle: bm.Header.ID, Size: 11, HopCount: 1}
	ws.Record(e)

	if msg := readWam(t, wsClient, wamEventCode).(*wamEvent); msg.event != e {
		t.Fatalf("expected %v, got %v", e, msg.event)
	}

	// Send Bundle from client
	writeWam(t, wsClient, newSendMessage(3, 5, []byte("hello")))
	if msg := readWam(t, wsClient, wamStatusCode).(*wamStatus); msg.errorMsg != "" {
		t.Fatal(msg.errorMsg)
	}

	sender.Lock()
	sent := sender.sent
	sender.Unlock()
	if len(sent) != 1 || sent[0].ID.Source() != 2 || sent[0].Target != 3 || sent[0].Size != 5 {
		t.Fatalf("unexpected sent bundles %v", sent)
	}

	// A second registration is rejected
	writeWam(t, wsClient, newRegisterMessage("3"))
	if msg := readWam(t, wsClient, wamStatusCode).(*wamStatus); msg.errorMsg == "" {
		t.Fatal("expected error due to a second registration")
	}

	// Shutdown WebSocketAgent with all its clients
	if err := ws.Close(); err != nil {
		t.Fatal(err)
	}

	_ = wsClient.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := wsClient.NextReader(); err == nil {
		t.Fatal("connection is still open after closing the WebSocketAgent")
	}
}

func TestWebAgentIllegalEndpoint(t *testing.T) {
	ws, wsClient := newWebSocketServer(t, nil)

	// Register client with an illegal node id
	writeWam(t, wsClient, newRegisterMessage("uff"))
	if msg := readWam(t, wsClient, wamStatusCode).(*wamStatus); msg.errorMsg == "" {
		t.Fatal("expected error due to illegal node id")
	}

	// Sending requires a registration
	writeWam(t, wsClient, newSendMessage(3, 0, nil))
	if msg := readWam(t, wsClient, wamStatusCode).(*wamStatus); msg.errorMsg == "" {
		t.Fatal("expected error due to a missing registration")
	}

	if endpoints := ws.Endpoints(); len(endpoints) != 0 {
		t.Fatalf("unregistered client has endpoints %v", endpoints)
	}

	_ = ws.Close()
}

func TestWebAgentWildcard(t *testing.T) {
	ws, wsClient := newWebSocketServer(t, nil)

	writeWam(t, wsClient, newRegisterMessage("any"))
	if msg := readWam(t, wsClient, wamStatusCode).(*wamStatus); msg.errorMsg != "" {
		t.Fatal(msg.errorMsg)
	}
	awaitEndpoints(t, ws, 23)

	for node := bundle.NodeID(1); node <= 3; node++ {
		ws.Record(trace.Event{Kind: trace.Created, Node: node, Bundle: bundle.NewID(node, 0)})
	}

	for node := bundle.NodeID(1); node <= 3; node++ {
		if msg := readWam(t, wsClient, wamEventCode).(*wamEvent); msg.event.Node != node {
			t.Fatalf("expected event of %v, got %v", node, msg.event)
		}
	}

	// Without a Sender, bundles cannot be sent
	writeWam(t, wsClient, newSendMessage(3, 0, nil))
	if msg := readWam(t, wsClient, wamStatusCode).(*wamStatus); msg.errorMsg == "" {
		t.Fatal("expected error due to a missing sender")
	}

	_ = ws.Close()
}

func TestWamUnknownTypeCode(t *testing.T) {
	// An array of two elements with the unassigned type code 23.
	if _, err := unmarshalCbor(bytes.NewBuffer([]byte{0x82, 0x17, 0x00})); err == nil {
		t.Fatal("unknown type code did not fail")
	}
}

func TestWebAgentConnector(t *testing.T) {
	sender := newFakeInspector()
	ws := NewWebSocketAgent(sender, 0)
	server := httptest.NewServer(ws)
	defer server.Close()
	defer ws.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http")

	if _, err := NewWebSocketAgentConnector(u, "uff"); err == nil {
		t.Fatal("connector registered an illegal node id")
	}

	wac, err := NewWebSocketAgentConnector(u, "2")
	if err != nil {
		t.Fatal(err)
	}
	defer wac.Close()
	awaitEndpoints(t, ws, 2)

	if err := wac.Send(3, 5, []byte("hello"), 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := wac.Send(3, 6, []byte("hello"), 5*time.Second); err == nil {
		t.Fatal("mismatching payload size was accepted")
	}

	bm := testBundle(1, 2, 0, []byte("hello world"))
	ws.Deliver(bm)

	if recv, err := wac.ReadBundle(); err != nil {
		t.Fatal(err)
	} else if !reflect.DeepEqual(recv, bm) {
		t.Fatalf("expected %v, got %v", bm, recv)
	}

	e := trace.Event{Time: time.Second, Kind: trace.Delivered, Node: 2, Peer: 1, Bundle: bm.Header.ID}
	ws.Record(e)

	select {
	case recv := <-wac.Events():
		if recv != e {
			t.Fatalf("expected %v, got %v", e, recv)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event was received")
	}
}
