// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"errors"
	"net/netip"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/cla"
	"github.com/dtn7/dtn7-sim/pkg/sim"
	"github.com/dtn7/dtn7-sim/pkg/storage"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

const (
	dataPriority    uint8 = 0
	controlPriority uint8 = 1
)

func (c *Core) newPacker() *bundle.Packer {
	p, err := bundle.NewPacker(c.NodeId, c.conf.MaxControlPacket)
	if err != nil {
		// The packet size was validated in NewCore.
		panic(err)
	}
	return p
}

// sendPackets transmits control packets right away.
func (c *Core) sendPackets(mt bundle.MessageType, packets [][]byte, dst netip.Addr) {
	for _, pkt := range packets {
		if err := c.iface.SendDatagram(pkt, dst, c.conf.DataPort, controlPriority); err != nil {
			c.logger.WithFields(log.Fields{
				"type":  mt,
				"peer":  dst,
				"error": err,
			}).Debug("Sending control packet failed")
			continue
		}

		c.stats.ControlSent(mt, len(pkt))
	}
}

// sendJittered transmits control packets after a random delay of at most ControlJitter.
func (c *Core) sendJittered(mt bundle.MessageType, packets [][]byte, dst netip.Addr) {
	c.after(c.sched.Jitter(c.conf.ControlJitter), func(c *Core) {
		c.sendPackets(mt, packets, dst)
	})
}

// sendHello broadcasts all offerable bundle IDs. Without offerable bundles, an empty Hello is sent.
func (c *Core) sendHello() {
	p := c.newPacker()
	ids := c.store.Offerable()
	p.AddIDs(bundle.Hello, ids)

	c.logger.WithField("bundles", len(ids)).Debug("Broadcasting Hello")
	c.sendPackets(bundle.Hello, p.Packets(), sim.Broadcast)
}

// handleMessages of a single packet. All Hello records of a packet result in at most one Request and
// one Ack.
func (c *Core) handleMessages(src netip.Addr, msgs []bundle.Message) {
	var (
		requests, acks []bundle.ID
		helloFrom      bundle.NodeID
		hello          bool
	)

	for _, msg := range msgs {
		if msg.Sender == c.NodeId {
			continue
		}

		var err error
		switch msg.Type {
		case bundle.Hello:
			var ids []bundle.ID
			if ids, err = msg.IDs(); err == nil {
				req, ack := c.handleHello(ids)
				requests, acks = append(requests, req...), append(acks, ack...)
				helloFrom, hello = msg.Sender, true
			}

		case bundle.Request:
			var ids []bundle.ID
			if ids, err = msg.IDs(); err == nil {
				c.handleRequest(src, msg.Sender, ids)
			}

		case bundle.Ack:
			var ids []bundle.ID
			if ids, err = msg.IDs(); err == nil {
				c.handleAck(ids)
			}

		case bundle.EncounterProb:
			var er bundle.EncounterRecord
			if er, err = msg.Encounter(); err == nil {
				c.routing.EncounterReceived(er)
			}

		case bundle.BundleData:
			err = c.datagram.Receive(src, msg)
		}

		if err != nil {
			c.logger.WithFields(log.Fields{
				"peer":    src,
				"message": msg,
				"error":   err,
			}).Warn("Handling control message errored")
		}
	}

	if !hello {
		return
	}

	if len(requests) > 0 {
		p := c.newPacker()
		p.AddIDs(bundle.Request, requests)
		c.sendJittered(bundle.Request, p.Packets(), src)

		c.logger.WithFields(log.Fields{
			"peer":    helloFrom,
			"bundles": len(requests),
		}).Debug("Requesting advertised bundles")
	}

	if len(acks) > 0 {
		p := c.newPacker()
		p.AddIDs(bundle.Ack, acks)
		c.sendJittered(bundle.Ack, p.Packets(), sim.Broadcast)
	}

	c.routing.HelloProcessed(helloFrom, src)

	if ers := c.routing.Gossip(c.now()); len(ers) > 0 {
		p := c.newPacker()
		for _, er := range ers {
			if err := p.AddEncounter(er); err != nil {
				c.logger.WithError(err).Warn("Packing encounter record errored")
				return
			}
		}
		c.sendJittered(bundle.EncounterProb, p.Packets(), sim.Broadcast)
	}
}

// handleHello returns the advertised bundles to be requested and those to be acknowledged.
func (c *Core) handleHello(ids []bundle.ID) (requests, acks []bundle.ID) {
	now := c.now()

	for _, id := range ids {
		if c.Delivered(id) {
			if c.conf.AckEnabled {
				acks = append(acks, id)
			}
			continue
		}

		if c.store.Has(id) || id.Source() == c.NodeId {
			continue
		}

		if issued, ok := c.outstanding[id]; ok && now-issued < c.conf.ResendInterval {
			continue
		}

		c.outstanding[id] = now
		requests = append(requests, id)
	}
	return
}

// handleRequest serves a Request or defers it while the connection to the requester is busy.
func (c *Core) handleRequest(src netip.Addr, requester bundle.NodeID, ids []bundle.ID) {
	if !c.conv.Busy(src) {
		c.serveRequest(src, requester, ids)
		return
	}

	d := c.deferred[src]
	d.requester = requester

	known := make(map[bundle.ID]struct{}, len(d.ids))
	for _, id := range d.ids {
		known[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			d.ids = append(d.ids, id)
		}
	}
	c.deferred[src] = d

	c.logger.WithFields(log.Fields{
		"peer":    requester,
		"bundles": len(d.ids),
	}).Debug("Deferring request, connection is busy")
}

// resumeDeferred serves a deferred Request after the previous batch was completed.
func (c *Core) resumeDeferred(peer netip.Addr) {
	d, ok := c.deferred[peer]
	if !ok {
		return
	}
	delete(c.deferred, peer)

	c.serveRequest(peer, d.requester, d.ids)
}

// serveRequest hands all eligible requested bundles to the transfer engine, ordered by the routing
// Algorithm.
func (c *Core) serveRequest(src netip.Addr, requester bundle.NodeID, ids []bundle.ID) {
	now := c.now()

	var recs []*storage.Record
	for _, id := range ids {
		rec, ok := c.store.Lookup(id)
		if !ok || rec.Header.Expired(now) || !Eligible(rec, requester) {
			continue
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return
	}

	dst, ok := c.iface.Resolve(requester)
	if !ok {
		c.stats.Unreachable.Inc()
		c.logger.WithField("peer", requester).Debug("Requester cannot be resolved")
		return
	}
	if dst != src {
		c.logger.WithFields(log.Fields{
			"peer":    requester,
			"address": dst,
			"source":  src,
		}).Debug("Requester's address differs from the packet's source")
	}

	// Copies are only subtracted for a handoff over an up link; otherwise they stay for a later encounter.
	if !c.network.LinkUp(c.NodeId, requester) {
		c.stats.Unreachable.Inc()
		c.logger.WithFields(log.Fields{
			"peer":    requester,
			"bundles": len(recs),
		}).Debug("Requester is out of reach, keeping requested bundles")
		return
	}

	recs = c.routing.OrderRequested(recs, requester)

	var (
		batch = make([]cla.Transmission, 0, len(recs))
		bytes uint64
	)
	for _, rec := range recs {
		out := rec.Header
		c.routing.SubtractCopies(rec, &out)

		batch = append(batch, cla.Transmission{Header: out, Payload: rec.Payload})
		bytes += uint64(out.Size)

		c.stats.Forwarded.Inc()
		c.trace(trace.Forwarded, requester, out)
	}

	if err := c.conv.Transfer(dst, batch); err != nil {
		if errors.Is(err, sim.ErrUnreachable) {
			c.stats.Unreachable.Inc()
		}

		c.logger.WithFields(log.Fields{
			"peer":    requester,
			"bundles": len(batch),
			"error":   err,
		}).Warn("Transferring requested bundles failed")
	} else {
		c.logger.WithFields(log.Fields{
			"peer":    requester,
			"bundles": len(batch),
			"bytes":   bytes,
		}).Debug("Transferring requested bundles")
	}

	c.routing.RoundCompleted(bytes)
}

// handleAck marks bundles as delivered and purges them from the store.
func (c *Core) handleAck(ids []bundle.ID) {
	for _, id := range ids {
		c.delivered[id] = struct{}{}
		delete(c.outstanding, id)

		if c.store.Remove(id, storage.Acknowledged) {
			c.logger.WithField("bundle", id).Debug("Purged acknowledged bundle")
		}
	}
}
