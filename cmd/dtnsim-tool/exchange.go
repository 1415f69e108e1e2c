// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"math"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/agent"
	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// exchange bundles between an user and a running simulation over the filesystem.
type exchange struct {
	directory     string
	knownFiles    sync.Map
	websocketConn *agent.WebSocketAgentConnector
	watcher       *fsnotify.Watcher

	closeChan      chan os.Signal
	bundleReadChan chan agent.BundleMessage
}

// startExchange to exchange bundles between client and a simulation.
func startExchange(args []string) {
	if len(args) != 3 {
		printUsage()
	}

	var (
		websocketAddr = args[0]
		node          = args[1]
		directory     = args[2]

		err error
	)

	ex := &exchange{
		directory:      directory,
		closeChan:      make(chan os.Signal, 1),
		bundleReadChan: make(chan agent.BundleMessage, 16),
	}

	signal.Notify(ex.closeChan, os.Interrupt)

	if ex.websocketConn, err = agent.NewWebSocketAgentConnector(websocketAddr, node); err != nil {
		printFatal(err, "Starting WebSocketAgentConnector errored")
	}

	if ex.watcher, err = fsnotify.NewWatcher(); err != nil {
		printFatal(err, "Starting file watcher errored")
	}
	if err = ex.watcher.Add(directory); err != nil {
		printFatal(err, "Adding directory to file watcher errored")
	}

	go ex.handleBundleRead()
	ex.handler()
}

// cleanFilepath creates a relative path from the initial path to a new file's path.
func (ex *exchange) cleanFilepath(f string) string {
	if rel, err := filepath.Rel(ex.directory, f); err != nil {
		log.WithField("path", f).WithError(err).Fatal("Failed to clean file path")
		return ""
	} else {
		return rel
	}
}

// targetOf a dropped file is its name without any extension.
func targetOf(name string) (bundle.NodeID, error) {
	base := filepath.Base(name)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return bundle.ParseNodeID(base)
}

func (ex *exchange) handler() {
	defer func() {
		_ = ex.watcher.Close()
		ex.websocketConn.Close()
	}()

	for {
		select {
		case <-ex.closeChan:
			log.Info("Received interrupt signal")
			return

		case e, ok := <-ex.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if _, ok := ex.knownFiles.Load(ex.cleanFilepath(e.Name)); ok {
				log.WithField("file", e.Name).Debug("Skipping file; already known")
				continue
			}

			if e.Op&fsnotify.Create == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			ex.readNewFile(e)

		case err, ok := <-ex.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).Error("fsnotify errored")
			return

		case bm, ok := <-ex.bundleReadChan:
			if !ok {
				log.Error("Bundle reader channel was closed")
				return
			}

			filePath := path.Join(ex.directory, "bundle-"+bm.Header.ID.String())
			logger := log.WithFields(log.Fields{
				"bundle": bm.Header.ID,
				"file":   filePath,
			})

			// Virtual bundles result in an empty file.
			ex.knownFiles.Store(ex.cleanFilepath(filePath), struct{}{})
			if err := os.WriteFile(filePath, bm.Payload, 0644); err != nil {
				logger.WithError(err).Error("Writing file errored")
				return
			}

			logger.WithField("latency", bm.Latency()).Info("Saved received bundle")
		}
	}
}

func (ex *exchange) readNewFile(e fsnotify.Event) {
	target, err := targetOf(e.Name)
	if err != nil {
		log.WithError(err).WithField("file", e.Name).Warn("File is not named after a target node, ignoring")
		return
	}

	for i := 0; i < 5; i++ {
		if data, err := os.ReadFile(e.Name); err != nil {
			log.WithError(err).WithField("file", e.Name).Warn("Reading file errored, retrying..")
		} else if err := ex.websocketConn.Send(target, uint32(len(data)), data, 5*time.Second); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"file":   e.Name,
				"target": target,
			}).Error("Sending bundle errored")
			return
		} else {
			ex.knownFiles.Store(ex.cleanFilepath(e.Name), struct{}{})

			log.WithFields(log.Fields{
				"file":   e.Name,
				"target": target,
				"size":   len(data),
			}).Info("Sent bundle")
			return
		}

		time.Sleep(time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond)
	}

	log.WithField("file", e.Name).Error("Failed to process file, giving up.")
}

func (ex *exchange) handleBundleRead() {
	for {
		if bm, err := ex.websocketConn.ReadBundle(); err != nil {
			log.WithError(err).Error("Reading bundle errored")

			close(ex.bundleReadChan)
			return
		} else {
			ex.bundleReadChan <- bm
		}
	}
}
