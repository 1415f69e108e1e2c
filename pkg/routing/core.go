// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2019, 2020 Markus Sommer
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/agent"
	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/cla"
	"github.com/dtn7/dtn7-sim/pkg/sim"
	"github.com/dtn7/dtn7-sim/pkg/stats"
	"github.com/dtn7/dtn7-sim/pkg/storage"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

// Options are a Core's optional collaborators.
type Options struct {
	// Registry of all running Cores. A Core without a Registry gets a private one.
	Registry *Registry

	// Stats of this node, which are discarded if nil.
	Stats *stats.Node

	// Tracer receives this node's trace events, which are discarded if nil.
	Tracer trace.Sink
}

// deferredRequest is a Request which arrived while its requester's connection was still busy.
type deferredRequest struct {
	requester bundle.NodeID
	ids       []bundle.ID
}

// Core is the bundle relay of a single simulated node. It handles the control protocol, the
// transmission and reception of bundles and their storage.
//
// A Core is driven by the Scheduler's callbacks and must not be used concurrently.
type Core struct {
	NodeId bundle.NodeID

	conf     CoreConf
	sched    *sim.Scheduler
	network  *sim.Network
	iface    *sim.Interface
	registry *Registry

	agentManager *AgentManager
	cron         *Cron
	idKeeper     IdKeeper
	routing      Algorithm
	store        *storage.Store

	datagram *cla.DatagramEngine
	stream   *cla.StreamEngine
	conv     cla.Convergence

	// outstanding maps requested bundles to the time of their last Request.
	outstanding map[bundle.ID]time.Duration
	// delivered contains all bundles known to be delivered to their target.
	delivered map[bundle.ID]struct{}
	deferred  map[netip.Addr]deferredRequest

	stats  *stats.Node
	tracer trace.Sink
	logger *log.Entry

	closed bool
}

// NewCore creates a Core for a node, attaches it to the Network and starts its periodic Hello.
func NewCore(node bundle.NodeID, conf CoreConf, sched *sim.Scheduler, network *sim.Network, opts Options) (*Core, error) {
	if node == bundle.AnyNode {
		return nil, fmt.Errorf("node id %d is reserved for the wildcard", node)
	}

	conf = conf.withDefaults()
	maxDatagram := network.Conf().MaxDatagram
	if err := conf.Validate(maxDatagram); err != nil {
		return nil, fmt.Errorf("invalid configuration of node %v: %w", node, err)
	}
	if conf.MaxDatagram == 0 {
		conf.MaxDatagram = maxDatagram
	}

	var c = &Core{
		NodeId:      node,
		conf:        conf,
		sched:       sched,
		network:     network,
		registry:    opts.Registry,
		idKeeper:    NewIdKeeper(),
		outstanding: make(map[bundle.ID]time.Duration),
		delivered:   make(map[bundle.ID]struct{}),
		deferred:    make(map[netip.Addr]deferredRequest),
		stats:       opts.Stats,
		tracer:      opts.Tracer,
		logger:      log.WithField("node", node),
	}

	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.stats == nil {
		c.stats = stats.Discard(node)
	}
	if c.tracer == nil {
		c.tracer = trace.Discard
	}

	c.store = storage.NewStore(conf.StoreCapacity, sched.Now)
	c.store.SetLogger(c.logger)
	c.store.SetRemovalHandler(c.storeRemoval)

	if ra, raErr := conf.Routing.RoutingAlgorithm(c); raErr != nil {
		return nil, raErr
	} else {
		c.routing = ra
		c.store.SetEvictor(ra)
	}

	c.agentManager = NewAgentManager(c)

	c.cron = NewCron(sched)
	c.cron.SetLogger(c.logger)

	if err := c.registry.add(c); err != nil {
		return nil, err
	}

	if iface, err := network.Attach(node, c); err != nil {
		c.registry.remove(c)
		return nil, err
	} else {
		c.iface = iface
	}

	c.datagram = cla.NewDatagramEngine(node, c.iface, conf.DataPort, conf.MaxDatagram, c)
	c.datagram.SetLogger(c.logger)
	c.conv = c.datagram

	if conf.Mode == cla.StreamMode {
		c.iface.Listen(conf.StreamPort)
		c.stream = cla.NewStreamEngine(node, c.iface, conf.StreamPort, c)
		c.stream.SetLogger(c.logger)
		c.conv = c.stream
	}

	firstHello := sched.Now() + sched.Jitter(conf.HelloJitter)
	if err := c.cron.RegisterAt("hello", c.sendHello, conf.HelloInterval, firstHello); err != nil {
		c.logger.WithError(err).Warn("Failed to register hello at cron")
	}
	if err := c.cron.Register("clean_store", c.cleanStore, conf.ResendInterval); err != nil {
		c.logger.WithError(err).Warn("Failed to register clean_store at cron")
	}

	c.logger.WithFields(log.Fields{
		"routing":  c.routing,
		"mode":     conf.Mode,
		"capacity": conf.StoreCapacity,
		"address":  c.iface.Addr(),
	}).Info("Started node")

	return c, nil
}

// after schedules a callback on this Core. It does not run if the Core was closed in the meantime.
func (c *Core) after(d time.Duration, fn func(c *Core)) {
	node, registry := c.NodeId, c.registry
	c.sched.After(d, func() {
		if core, ok := registry.Lookup(node); ok {
			fn(core)
		}
	})
}

// now is the current virtual time.
func (c *Core) now() time.Duration {
	return c.sched.Now()
}

// trace records an event of this node.
func (c *Core) trace(kind trace.Kind, peer bundle.NodeID, h bundle.Header) {
	c.tracer.Record(trace.Event{
		Time:     c.now(),
		Kind:     kind,
		Node:     c.NodeId,
		Peer:     peer,
		Bundle:   h.ID,
		Size:     h.Size,
		HopCount: h.HopCount,
	})
}

// cleanStore purges expired bundles and forgets stale outstanding Requests.
func (c *Core) cleanStore() {
	c.store.PurgeExpired()

	for id, issued := range c.outstanding {
		if c.now()-issued >= c.conf.ResendInterval {
			delete(c.outstanding, id)
		}
	}
}

// storeRemoval accounts for bundles leaving the store.
func (c *Core) storeRemoval(rec *storage.Record, reason storage.RemovalReason) {
	c.stats.StoreBytes.Set(float64(c.store.Usage()))

	switch reason {
	case storage.Expired:
		c.stats.Expired.Inc()
		c.trace(trace.Expired, 0, rec.Header)

	case storage.Evicted:
		c.stats.Evicted.Inc()
		c.trace(trace.Evicted, 0, rec.Header)

	case storage.Acknowledged:
		c.stats.AckPurged.Inc()
		c.trace(trace.Acked, 0, rec.Header)
	}

	c.logger.WithFields(log.Fields{
		"bundle": rec.ID(),
		"reason": reason,
	}).Debug("Bundle left the store")
}

// HandleDatagram dispatches all records of an incoming packet.
func (c *Core) HandleDatagram(data []byte, src netip.Addr, _ uint16) {
	msgs, err := bundle.ParsePacket(data)
	if err != nil {
		c.logger.WithFields(log.Fields{
			"peer":  src,
			"error": err,
		}).Warn("Dropping malformed packet")
		// Records before the malformed one are still processed.
	}

	c.handleMessages(src, msgs)
}

func (c *Core) HandleAccept(conn sim.ConnID, peer netip.Addr) {
	if c.stream != nil {
		c.stream.HandleAccept(conn, peer)
	}
}

func (c *Core) HandleReady(conn sim.ConnID) {
	if c.stream != nil {
		c.stream.HandleReady(conn)
	}
}

func (c *Core) HandleData(conn sim.ConnID, data []byte) {
	if c.stream != nil {
		c.stream.HandleData(conn, data)
	}
}

func (c *Core) HandleDelivered(conn sim.ConnID, total uint64) {
	if c.stream != nil {
		c.stream.HandleDelivered(conn, total)
	}
}

func (c *Core) HandleRemoteClosed(conn sim.ConnID) {
	if c.stream != nil {
		c.stream.HandleRemoteClosed(conn)
	}
}

// ReceiveStatus handles the reports of the transfer engines.
func (c *Core) ReceiveStatus(cs cla.ConvergenceStatus) {
	switch cs.MessageType {
	case cla.ReceivedBundle:
		crb := cs.Message.(cla.ConvergenceReceivedBundle)
		c.receive(crb.Peer, crb.Header, crb.Payload)

	case cla.BatchCompleted:
		c.resumeDeferred(cs.Message.(netip.Addr))

	case cla.PeerAppeared:
		c.logger.WithField("peer", cs.Message).Debug("Peer appeared")

	case cla.PeerDisappeared:
		peer := cs.Message.(netip.Addr)
		delete(c.deferred, peer)
		c.logger.WithField("peer", peer).Debug("Peer disappeared")

	default:
		c.logger.WithFields(log.Fields{
			"cla":    cs.Sender,
			"type":   cs.MessageType,
			"status": cs,
		}).Warn("Received ConvergenceStatus with unknown type")
	}
}

// Close stops this Core. All pending callbacks become no-ops.
func (c *Core) Close() {
	if c.closed {
		return
	}
	c.closed = true

	c.cron.Stop()
	c.conv.Close()
	c.network.Detach(c.NodeId)
	c.registry.remove(c)
	c.agentManager.Close()

	c.logger.Info("Stopped node")
}

// RegisterApplicationAgent adds a new ApplicationAgent to this Core's list.
func (c *Core) RegisterApplicationAgent(app agent.ApplicationAgent) {
	c.agentManager.Register(app)
}

// Store of this node.
func (c *Core) Store() *storage.Store {
	return c.store
}

// Routing is the node's routing Algorithm.
func (c *Core) Routing() Algorithm {
	return c.routing
}

// Conf is the node's effective configuration.
func (c *Core) Conf() CoreConf {
	return c.conf
}

// Addr is the node's network address.
func (c *Core) Addr() netip.Addr {
	return c.iface.Addr()
}

// Delivered checks if a bundle is known to be delivered.
func (c *Core) Delivered(id bundle.ID) bool {
	_, ok := c.delivered[id]
	return ok
}

// DeliveredCount is the size of the delivered set.
func (c *Core) DeliveredCount() int {
	return len(c.delivered)
}

// Outstanding checks if a Request for a bundle is still unanswered.
func (c *Core) Outstanding(id bundle.ID) bool {
	_, ok := c.outstanding[id]
	return ok
}
