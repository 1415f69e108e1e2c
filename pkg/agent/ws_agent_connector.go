// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

// WebSocketAgentConnector is the client side version of the WebSocketAgent.
type WebSocketAgentConnector struct {
	conn *websocket.Conn

	msgOutChan chan webAgentMessage
	msgOutErr  chan error

	msgInStatusChan chan error
	msgInBundleChan chan BundleMessage
	msgInEventChan  chan trace.Event

	closeSyn chan struct{}
	closeAck chan struct{}
}

// NewWebSocketAgentConnector creates a new WebSocketAgentConnector connection to a WebSocketAgent,
// registered for a node, e.g., "23" or "any".
func NewWebSocketAgentConnector(apiUrl, node string) (wac *WebSocketAgentConnector, err error) {
	var conn *websocket.Conn
	if conn, _, err = websocket.DefaultDialer.Dial(apiUrl, nil); err != nil {
		return
	}

	wac = &WebSocketAgentConnector{
		conn: conn,

		msgOutChan: make(chan webAgentMessage),
		msgOutErr:  make(chan error),

		msgInStatusChan: make(chan error, 1),
		msgInBundleChan: make(chan BundleMessage),
		msgInEventChan:  make(chan trace.Event, 64),

		closeSyn: make(chan struct{}),
		closeAck: make(chan struct{}),
	}

	if err = wac.registerEndpoint(node); err != nil {
		_ = conn.Close()
		wac = nil
		return
	}

	go wac.handler()
	go wac.handleReader()

	return
}

func (wac *WebSocketAgentConnector) writeMessage(msg webAgentMessage) error {
	wc, wcErr := wac.conn.NextWriter(websocket.BinaryMessage)
	if wcErr != nil {
		return wcErr
	}

	if cborErr := marshalCbor(msg, wc); cborErr != nil {
		return cborErr
	}

	return wc.Close()
}

func (wac *WebSocketAgentConnector) readMessage() (msg webAgentMessage, err error) {
	if mt, r, rErr := wac.conn.NextReader(); rErr != nil {
		err = rErr
		return
	} else if mt != websocket.BinaryMessage {
		err = fmt.Errorf("expected binary message, got %d", mt)
		return
	} else {
		msg, err = unmarshalCbor(r)
		return
	}
}

func statusErr(status *wamStatus) error {
	if status.errorMsg != "" {
		return fmt.Errorf("received non-empty error message: %s", status.errorMsg)
	}
	return nil
}

func (wac *WebSocketAgentConnector) registerEndpoint(node string) error {
	if err := wac.writeMessage(newRegisterMessage(node)); err != nil {
		return err
	}

	if msg, err := wac.readMessage(); err != nil {
		return err
	} else if status, ok := msg.(*wamStatus); !ok {
		return fmt.Errorf("expected wamStatus, got %T", msg)
	} else {
		return statusErr(status)
	}
}

func (wac *WebSocketAgentConnector) handleReader() {
	defer close(wac.msgInBundleChan)
	defer close(wac.msgInEventChan)
	defer close(wac.msgInStatusChan)

	for {
		msg, err := wac.readMessage()
		if err != nil {
			return
		}

		switch msg := msg.(type) {
		case *wamStatus:
			select {
			case wac.msgInStatusChan <- statusErr(msg):
			default:
			}

		case *wamBundle:
			wac.msgInBundleChan <- BundleMessage{
				Node:    msg.node,
				Time:    msg.time,
				Header:  msg.header,
				Payload: msg.payload,
			}

		case *wamEvent:
			// Events are dropped if nobody reads them.
			select {
			case wac.msgInEventChan <- msg.event:
			default:
			}
		}
	}
}

func (wac *WebSocketAgentConnector) handler() {
	defer func() {
		close(wac.closeAck)

		close(wac.msgOutChan)
		close(wac.msgOutErr)

		_ = wac.conn.Close()
	}()

	for {
		select {
		case <-wac.closeSyn:
			return

		case msg := <-wac.msgOutChan:
			wac.msgOutErr <- wac.writeMessage(msg)
		}
	}
}

// Send a new bundle from the registered node to a target. A nil payload creates a virtual bundle.
func (wac *WebSocketAgentConnector) Send(target bundle.NodeID, size uint32, payload []byte, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	wac.msgOutChan <- newSendMessage(target, size, payload)
	if err = <-wac.msgOutErr; err != nil {
		return
	}

	select {
	case sErr, ok := <-wac.msgInStatusChan:
		if !ok {
			return fmt.Errorf("connection was closed")
		}
		return sErr

	case <-time.After(timeout):
		return fmt.Errorf("status response timed out")
	}
}

// ReadBundle returns the next incoming BundleMessage. This method blocks.
func (wac *WebSocketAgentConnector) ReadBundle() (bm BundleMessage, err error) {
	bm, ok := <-wac.msgInBundleChan
	if !ok {
		err = fmt.Errorf("connection was closed")
	}
	return
}

// Events of the registered node. Events are dropped while the channel is not read.
func (wac *WebSocketAgentConnector) Events() <-chan trace.Event {
	return wac.msgInEventChan
}

// Close this WebSocketAgentConnector.
func (wac *WebSocketAgentConnector) Close() {
	defer func() {
		// channel is already closed
		_ = recover()
	}()

	close(wac.closeSyn)
	<-wac.closeAck
}
