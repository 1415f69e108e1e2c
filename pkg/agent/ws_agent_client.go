// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

type webAgentClient struct {
	sync.Mutex

	conn       *websocket.Conn
	endpoint   bundle.NodeID
	registered bool
	sender     Sender
	receiver   chan Message

	closeSyn     chan struct{}
	shutdownOnce sync.Once

	logger *log.Entry
}

func newWebAgentClient(conn *websocket.Conn, sender Sender, queueSize int) *webAgentClient {
	return &webAgentClient{
		conn:     conn,
		sender:   sender,
		receiver: make(chan Message, queueSize),
		closeSyn: make(chan struct{}),
		logger:   log.WithField("web agent client", conn.RemoteAddr().String()),
	}
}

func (client *webAgentClient) start() {
	go client.handleReceiver()
	client.handleConn()
}

func (client *webAgentClient) shutdown() {
	client.shutdownOnce.Do(func() {
		client.logger.Debug("Reached shutdown")

		close(client.closeSyn)
		_ = client.conn.Close()
	})
}

func (client *webAgentClient) handleReceiver() {
	defer client.shutdown()

	for {
		select {
		case <-client.closeSyn:
			return

		case msg := <-client.receiver:
			var wam webAgentMessage

			switch msg := msg.(type) {
			case BundleMessage:
				wam = newBundleMessage(msg)

			case EventMessage:
				wam = newEventMessage(msg.Event)

			default:
				client.logger.WithField("message", msg).Info("Received unknown / unsupported message")
				continue
			}

			if err := client.writeMessage(wam); err != nil {
				client.logger.WithError(err).Warn("Sending outgoing message errored")
				return
			}
		}
	}
}

func (client *webAgentClient) handleConn() {
	defer client.shutdown()

	for {
		if messageType, reader, err := client.conn.NextReader(); err != nil {
			if errors.Is(err, net.ErrClosed) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				client.logger.WithError(err).Debug("Reader errored due to closed network connection")
			} else {
				client.logger.WithError(err).Warn("Opening next Websocket Reader errored")
			}
			return
		} else if messageType != websocket.BinaryMessage {
			client.logger.WithField("message type", messageType).Warn("Websocket Reader's type is not binary")
			return
		} else if msg, err := unmarshalCbor(reader); err != nil {
			client.logger.WithError(err).Warn("Unmarshal CBOR errored")
			return
		} else {
			var handleErr error

			switch msg := msg.(type) {
			case *wamRegister:
				handleErr = client.handleIncomingRegister(msg)

			case *wamSend:
				handleErr = client.handleIncomingSend(msg)

			default:
				handleErr = fmt.Errorf("unsupported message type %d", msg.typeCode())
			}

			if err := client.writeMessage(newStatusMessage(handleErr)); err != nil {
				client.logger.WithError(err).Warn("Acknowledging message errored")
				return
			} else if handleErr != nil {
				client.logger.WithField("message", msg).WithError(handleErr).Info("Handling message errored")
			}
		}
	}
}

func (client *webAgentClient) handleIncomingRegister(m *wamRegister) error {
	client.Lock()
	defer client.Unlock()

	var logger = client.logger.WithField("message", m)

	if client.registered {
		return fmt.Errorf("register errored, the node %v is already present", client.endpoint)
	}

	if node, err := bundle.ParseNodeID(m.endpoint); err != nil {
		logger.WithError(err).Warn("Parsing node id errored")
		return err
	} else {
		logger.WithField("endpoint", node).Debug("Setting endpoint")
		client.endpoint, client.registered = node, true
		return nil
	}
}

func (client *webAgentClient) handleIncomingSend(m *wamSend) error {
	client.Lock()
	source, registered := client.endpoint, client.registered
	client.Unlock()

	switch {
	case client.sender == nil:
		return fmt.Errorf("sending bundles is not supported")
	case !registered || source == bundle.AnyNode:
		return fmt.Errorf("sending bundles requires a registered node")
	case m.payload != nil && uint32(len(m.payload)) != m.size:
		return fmt.Errorf("payload of %d bytes does not match the size %d", len(m.payload), m.size)
	}

	id, err := client.sender.Send(source, m.target, m.size, m.payload)
	if err == nil {
		client.logger.WithFields(log.Fields{
			"bundle": id,
			"target": m.target,
		}).Info("Client sent bundle")
	}
	return err
}

func (client *webAgentClient) writeMessage(msg webAgentMessage) error {
	client.Lock()
	defer client.Unlock()

	wc, wcErr := client.conn.NextWriter(websocket.BinaryMessage)
	if wcErr != nil {
		return wcErr
	}

	if cborErr := marshalCbor(msg, wc); cborErr != nil {
		return cborErr
	}

	return wc.Close()
}

func (client *webAgentClient) Endpoints() []bundle.NodeID {
	client.Lock()
	defer client.Unlock()

	if !client.registered {
		return nil
	} else {
		return []bundle.NodeID{client.endpoint}
	}
}

// Deliver queues a Message for this client. If the client cannot keep up, the Message is dropped.
func (client *webAgentClient) Deliver(msg Message) {
	if _, isShutdown := msg.(ShutdownMessage); isShutdown {
		client.shutdown()
		return
	}

	select {
	case client.receiver <- msg:
	default:
		client.logger.WithField("message", msg).Debug("Client's queue is full, dropping message")
	}
}
