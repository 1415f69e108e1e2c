// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"math"
	"net/netip"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/storage"
)

type MaxPropConfig struct {
	// GossipInterval is the minimum time between two broadcasts of the encounter records, e.g., "10s".
	// It defaults to the hello interval.
	GossipInterval string `toml:"gossip-interval"`
}

// MaxProp orders and evicts bundles by their estimated delivery cost. Each node keeps an encounter
// record of how often it meets its neighbors and gossips all known records. The cost of a bundle is
// the cheapest path towards its target within the graph of all records, where each edge weighs the
// probability of two nodes not meeting.
//
// Bundles with few hops get a head start: the first bytes of each contact, estimated by the average
// amount of bytes transferred per request, are reserved for them.
type MaxProp struct {
	c *Core

	// records contains all known encounter records, including this node's own.
	records map[bundle.NodeID]*bundle.EncounterRecord

	lastEncounter  map[bundle.NodeID]time.Duration
	encounterGap   time.Duration
	gossipInterval time.Duration
	lastGossip     time.Duration
	gossiped       bool

	avgBytes float64
	rounds   uint64
}

// NewMaxProp creates a new MaxProp Algorithm for a Core.
func NewMaxProp(c *Core, config MaxPropConfig) (*MaxProp, error) {
	gossipInterval := c.conf.HelloInterval
	if config.GossipInterval != "" {
		if dur, err := time.ParseDuration(config.GossipInterval); err != nil {
			return nil, fmt.Errorf("invalid maxprop gossip interval: %w", err)
		} else if dur <= 0 {
			return nil, fmt.Errorf("maxprop gossip interval %v must be positive", dur)
		} else {
			gossipInterval = dur
		}
	}

	own := bundle.NewEncounterRecord(c.NodeId, 0)

	c.logger.WithFields(log.Fields{
		"gossip_interval": gossipInterval,
	}).Debug("Initialised MaxProp")

	return &MaxProp{
		c:              c,
		records:        map[bundle.NodeID]*bundle.EncounterRecord{c.NodeId: &own},
		lastEncounter:  make(map[bundle.NodeID]time.Duration),
		encounterGap:   c.conf.HelloInterval / 2,
		gossipInterval: gossipInterval,
	}, nil
}

func (*MaxProp) String() string {
	return "maxprop"
}

// InitialCopies is Unbounded.
func (*MaxProp) InitialCopies() uint32 {
	return Unbounded
}

// ReceivedCopies is Unbounded.
func (*MaxProp) ReceivedCopies(bundle.Header) uint32 {
	return Unbounded
}

// SubtractCopies keeps the budget and marks the outgoing header with a single copy.
func (*MaxProp) SubtractCopies(_ *storage.Record, out *bundle.Header) {
	out.NumCopies = 1
}

// HelloProcessed updates the own encounter record: all probabilities are halved, and the neighbor's
// probability is raised by one half. Repeated Hellos of the same contact within half a hello interval
// are ignored.
func (m *MaxProp) HelloProcessed(neighbor bundle.NodeID, _ netip.Addr) {
	now := m.c.sched.Now()
	if last, ok := m.lastEncounter[neighbor]; ok && now-last < m.encounterGap {
		return
	}
	m.lastEncounter[neighbor] = now

	own := m.records[m.c.NodeId]
	for target := range own.Probabilities {
		own.Probabilities[target] *= 0.5
	}
	own.Probabilities[neighbor] += 0.5
	own.Timestamp = now

	m.c.logger.WithFields(log.Fields{
		"neighbor":    neighbor,
		"probability": own.Probabilities[neighbor],
	}).Debug("MaxProp updated encounter record")
}

// Gossip all non-empty encounter records, at most once per gossip interval.
func (m *MaxProp) Gossip(now time.Duration) (ers []bundle.EncounterRecord) {
	if m.gossiped && now-m.lastGossip < m.gossipInterval {
		return nil
	}
	m.gossiped, m.lastGossip = true, now

	for _, owner := range sortedOwners(m.records) {
		if er := m.records[owner]; len(er.Probabilities) > 0 {
			ers = append(ers, er.Copy())
		}
	}
	return
}

// EncounterReceived replaces a known record by a newer one. A record with the same timestamp is a
// continuation of the same snapshot and is merged. The own record is never replaced.
func (m *MaxProp) EncounterReceived(er bundle.EncounterRecord) {
	if er.Owner == m.c.NodeId {
		return
	}

	known, ok := m.records[er.Owner]
	switch {
	case !ok || er.Timestamp > known.Timestamp:
		cp := er.Copy()
		m.records[er.Owner] = &cp

	case er.Timestamp == known.Timestamp:
		for target, p := range er.Probabilities {
			known.Probabilities[target] = p
		}

	default:
		return
	}

	m.c.logger.WithFields(log.Fields{
		"owner":     er.Owner,
		"timestamp": er.Timestamp,
		"entries":   len(er.Probabilities),
	}).Debug("MaxProp merged encounter record")
}

// Records returns a copy of all known encounter records.
func (m *MaxProp) Records() map[bundle.NodeID]bundle.EncounterRecord {
	ers := make(map[bundle.NodeID]bundle.EncounterRecord, len(m.records))
	for owner, er := range m.records {
		ers[owner] = er.Copy()
	}
	return ers
}

// updateCosts assigns each Record its current delivery cost.
func (m *MaxProp) updateCosts(recs []*storage.Record) {
	cg := newCostGraph(m.c.NodeId, m.records)
	for _, rec := range recs {
		rec.Cost = cg.Cost(rec.Header.Target)
	}
}

// headStart calculates the hop count threshold. Bundles with a smaller hop count fill the first bytes
// of a contact; all others are ordered by their cost.
func (m *MaxProp) headStart(recs []*storage.Record) uint32 {
	budget := m.avgBytes
	if capacity := float64(m.c.store.Capacity()); capacity > 0 && budget >= capacity/2 {
		budget = math.Min(budget, capacity-budget)
	}

	byHops := append([]*storage.Record(nil), recs...)
	sort.SliceStable(byHops, func(i, j int) bool {
		return byHops[i].Header.HopCount < byHops[j].Header.HopCount
	})

	var acc float64
	for _, rec := range byHops {
		acc += float64(rec.Header.Size)
		if acc > budget {
			return rec.Header.HopCount
		}
	}
	return math.MaxUint32
}

// order Records by the head start threshold, hop count and cost. The sort is stable.
func order(recs []*storage.Record, threshold uint32) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Header, recs[j].Header
		aHead, bHead := a.HopCount < threshold, b.HopCount < threshold

		switch {
		case aHead != bHead:
			return aHead
		case aHead && a.HopCount != b.HopCount:
			return a.HopCount < b.HopCount
		case recs[i].Cost != recs[j].Cost:
			return recs[i].Cost < recs[j].Cost
		default:
			return a.HopCount < b.HopCount
		}
	})
}

// OrderRequested sorts the requested bundles by the head start and their costs.
func (m *MaxProp) OrderRequested(recs []*storage.Record, requester bundle.NodeID) []*storage.Record {
	stored := m.c.store.Records()
	m.updateCosts(stored)
	m.updateCosts(recs)
	threshold := m.headStart(stored)

	ordered := append([]*storage.Record(nil), recs...)
	order(ordered, threshold)

	m.c.logger.WithFields(log.Fields{
		"requester": requester,
		"bundles":   len(ordered),
		"threshold": threshold,
	}).Debug("MaxProp ordered requested bundles")
	return ordered
}

// RoundCompleted updates the running average of bytes per request.
func (m *MaxProp) RoundCompleted(bytes uint64) {
	m.rounds++
	m.avgBytes += (float64(bytes) - m.avgBytes) / float64(m.rounds)
}

// MakeRoom evicts the most expensive bundles, from the tail of the ordered store, until the incoming
// bundle fits.
func (m *MaxProp) MakeRoom(s *storage.Store, incoming uint32) {
	stored := s.Records()
	m.updateCosts(stored)
	order(stored, m.headStart(stored))

	for i := len(stored) - 1; i >= 0 && s.Capacity()-s.Usage() < uint64(incoming); i-- {
		m.c.logger.WithFields(log.Fields{
			"bundle": stored[i].ID(),
			"cost":   stored[i].Cost,
		}).Debug("MaxProp evicts bundle")

		s.Evict(stored[i].ID())
	}
}

func sortedOwners(records map[bundle.NodeID]*bundle.EncounterRecord) []bundle.NodeID {
	owners := make([]bundle.NodeID, 0, len(records))
	for owner := range records {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners
}
