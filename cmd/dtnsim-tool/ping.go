// SPDX-FileCopyrightText: 2021 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/agent"
	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// pinger sends ping bundles and shows the events at its node.
type pinger struct {
	target bundle.NodeID

	websocketConn *agent.WebSocketAgentConnector

	closeChan      chan os.Signal
	bundleReadChan chan agent.BundleMessage
}

var pingPayload = []byte("ping")

// handleBundleRead forwards received bundles to the main handle function.
func (p *pinger) handleBundleRead() {
	for {
		if bm, err := p.websocketConn.ReadBundle(); err != nil {
			log.WithError(err).Error("Reading bundle errored")

			close(p.bundleReadChan)
			return
		} else {
			p.bundleReadChan <- bm
		}
	}
}

// handle a pinger's task.
func (p *pinger) handle() {
	ticker := time.NewTicker(time.Second)

	defer p.websocketConn.Close()
	defer ticker.Stop()

	for {
		select {
		case <-p.closeChan:
			return

		case <-ticker.C:
			if err := p.websocketConn.Send(p.target, uint32(len(pingPayload)), pingPayload, time.Second); err != nil {
				log.WithError(err).Error("Cannot send ping bundle")
			} else {
				log.Info("Sent ping bundle")
			}

		case e, ok := <-p.websocketConn.Events():
			if !ok {
				log.Error("Event channel was closed")
				return
			}

			log.WithField("event", e).Info("Received event")

		case bm, ok := <-p.bundleReadChan:
			if !ok {
				log.Error("Bundle reader channel was closed")
				return
			}

			log.WithFields(log.Fields{
				"bundle":  bm.Header.ID,
				"latency": bm.Latency(),
				"hops":    bm.Header.HopCount,
			}).Info("Received bundle")
		}
	}
}

// ping another simulated node
func ping(args []string) {
	if len(args) != 3 {
		printUsage()
	}

	target, err := bundle.ParseNodeID(args[2])
	if err != nil {
		printFatal(err, "Parsing target errored")
	}

	p := pinger{
		target:         target,
		closeChan:      make(chan os.Signal, 1),
		bundleReadChan: make(chan agent.BundleMessage, 16),
	}

	if p.websocketConn, err = agent.NewWebSocketAgentConnector(args[0], args[1]); err != nil {
		printFatal(err, "Starting WebSocketAgentConnector errored")
	}

	signal.Notify(p.closeChan, os.Interrupt)

	go p.handleBundleRead()
	p.handle()
}
