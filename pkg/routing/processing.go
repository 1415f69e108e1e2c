// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"errors"
	"fmt"
	"net/netip"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/cla"
	"github.com/dtn7/dtn7-sim/pkg/storage"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

// ErrClosed is returned when sending from a closed Core.
var ErrClosed = errors.New("node is closed")

// Send creates a new bundle of the given size for a target. A nil payload is virtual and only its size
// matters. The bundle is either delivered locally or stored until it can be forwarded.
//
// Storage failures are counted and returned together with the allocated bundle ID.
func (c *Core) Send(target bundle.NodeID, size uint32, payload []byte) (bundle.ID, error) {
	if c.closed {
		return 0, fmt.Errorf("%w: %v", ErrClosed, c.NodeId)
	}

	if payload != nil && uint32(len(payload)) != size {
		return 0, fmt.Errorf("payload of %d bytes does not match the bundle size %d", len(payload), size)
	}

	if c.conf.Mode == cla.DatagramMode {
		if err := c.datagram.CheckSize(size); err != nil {
			return 0, err
		}
	}

	if c.conf.VirtualPayload {
		payload = nil
	}

	id, err := c.idKeeper.next(c.NodeId)
	if err != nil {
		return 0, err
	}

	now := c.now()
	h := bundle.Header{
		ID:         id,
		Size:       size,
		Target:     target,
		SendTime:   now,
		Expiration: bundle.ExpirationTime(now, c.conf.BundleLifetime),
		NumCopies:  c.routing.InitialCopies(),
	}

	c.stats.Created.Inc()
	c.trace(trace.Created, 0, h)

	c.logger.WithFields(log.Fields{
		"bundle": h.ID,
		"target": target,
		"size":   size,
	}).Info("Created bundle")

	if target == c.NodeId {
		c.deliver(c.NodeId, h, payload)
		return h.ID, nil
	}

	if err := c.store.Insert(storage.NewRecord(h, payload, h.NumCopies)); err != nil {
		c.stats.StorageDrops.Inc()
		c.trace(trace.Dropped, 0, h)

		c.logger.WithFields(log.Fields{
			"bundle": h.ID,
			"error":  err,
		}).Warn("Storing created bundle failed")
		return h.ID, err
	}

	c.stats.StoreBytes.Set(float64(c.store.Usage()))
	return h.ID, nil
}

// receive handles a bundle arriving from a peer.
func (c *Core) receive(peer netip.Addr, h bundle.Header, payload []byte) {
	h.HopCount++
	delete(c.outstanding, h.ID)

	sender, _ := c.network.NodeOf(peer)
	logger := c.logger.WithFields(log.Fields{
		"bundle": h.ID,
		"peer":   sender,
		"hops":   h.HopCount,
	})

	if c.conf.VirtualPayload {
		payload = nil
	}

	switch {
	case h.Expired(c.now()):
		c.stats.Expired.Inc()
		c.trace(trace.Expired, sender, h)
		logger.Debug("Dropping expired bundle")

	case c.Delivered(h.ID) || c.store.Has(h.ID):
		c.stats.Duplicates.Inc()
		c.trace(trace.Duplicate, sender, h)
		logger.Debug("Dropping duplicate bundle")

	case h.Target.Matches(c.NodeId):
		c.deliver(sender, h, payload)

	default:
		c.relay(sender, h, payload)
	}
}

// deliver a bundle addressed to this node to the ApplicationAgents.
func (c *Core) deliver(sender bundle.NodeID, h bundle.Header, payload []byte) {
	c.delivered[h.ID] = struct{}{}
	c.store.Remove(h.ID, storage.Removed)

	latency := c.now() - h.SendTime
	c.stats.ObserveDelivery(latency)
	c.trace(trace.Delivered, sender, h)

	c.logger.WithFields(log.Fields{
		"bundle":  h.ID,
		"peer":    sender,
		"latency": latency,
	}).Info("Delivered bundle")

	c.agentManager.Deliver(h, payload)
}

// relay stores a received bundle addressed to another node.
func (c *Core) relay(sender bundle.NodeID, h bundle.Header, payload []byte) {
	rec := storage.NewRecord(h, payload, c.routing.ReceivedCopies(h))
	if err := c.store.Insert(rec); err != nil {
		c.stats.StorageDrops.Inc()
		c.trace(trace.Dropped, sender, h)

		c.logger.WithFields(log.Fields{
			"bundle": h.ID,
			"peer":   sender,
			"error":  err,
		}).Warn("Storing received bundle failed")
		return
	}

	c.stats.RelayedIn.Inc()
	c.stats.StoreBytes.Set(float64(c.store.Usage()))
	c.trace(trace.Received, sender, h)

	c.logger.WithFields(log.Fields{
		"bundle": h.ID,
		"peer":   sender,
		"copies": rec.RemainingCopies,
	}).Debug("Stored received bundle")
}
