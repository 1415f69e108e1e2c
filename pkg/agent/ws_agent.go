// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

// WebSocketAgent is a WebSocket based ApplicationAgent. Each client registers for a node and receives
// the bundles delivered and the trace events happening there, encoded as CBOR.
//
// A WebSocketAgent is also a trace.Sink to be fed with the simulation's events.
type WebSocketAgent struct {
	clientMux *MuxAgent
	sender    Sender
	queueSize int

	upgrader websocket.Upgrader

	closeOnce sync.Once
}

// NewWebSocketAgent creates a WebSocketAgent. Bundles sent by clients are passed to the Sender, which
// might be nil to reject them. The ServeHTTP function must be bound to the HTTP server.
func NewWebSocketAgent(sender Sender, queueSize int) *WebSocketAgent {
	if queueSize <= 0 {
		queueSize = 256
	}

	return &WebSocketAgent{
		clientMux: NewMuxAgent(),
		sender:    sender,
		queueSize: queueSize,

		upgrader: websocket.Upgrader{},
	}
}

// ServeHTTP must be bound to a HTTP endpoint, e.g., to /ws by a http.ServeMux.
func (w *WebSocketAgent) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, connErr := w.upgrader.Upgrade(rw, r, nil)
	if connErr != nil {
		log.WithError(connErr).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	client := newWebAgentClient(conn, w.sender, w.queueSize)
	w.clientMux.Register(client)
	defer w.clientMux.Unregister(client)

	client.start()
}

// Endpoints of all currently connected clients.
func (w *WebSocketAgent) Endpoints() []bundle.NodeID {
	return w.clientMux.Endpoints()
}

// Deliver a Message to all connected clients answering to its recipients.
func (w *WebSocketAgent) Deliver(msg Message) {
	w.clientMux.Deliver(msg)
}

// Record passes a trace Event to all clients registered for the Event's node.
func (w *WebSocketAgent) Record(e trace.Event) {
	w.clientMux.Deliver(EventMessage{e})
}

// Close disconnects all clients.
func (w *WebSocketAgent) Close() error {
	w.closeOnce.Do(func() {
		log.Info("WebSocketAgent received a shutdown")
		w.clientMux.Deliver(ShutdownMessage{})
	})
	return nil
}
