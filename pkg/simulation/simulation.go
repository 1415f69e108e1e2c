// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package simulation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/agent"
	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/routing"
	"github.com/dtn7/dtn7-sim/pkg/sim"
	"github.com/dtn7/dtn7-sim/pkg/stats"
	"github.com/dtn7/dtn7-sim/pkg/trace"
)

// runSlice is the virtual time simulated while holding the Simulation's lock.
const runSlice = 100 * time.Millisecond

// Simulation is a scenario of nodes, contacts and traffic on a shared virtual clock.
//
// The Scheduler runs on the goroutine calling Run. All exported methods are safe for concurrent use,
// e.g., from HTTP handlers.
type Simulation struct {
	mutex sync.Mutex

	duration time.Duration
	pace     float64

	sched    *sim.Scheduler
	network  *sim.Network
	registry *routing.Registry
	stats    *stats.Stats
	mailbox  *agent.Mailbox

	sinks  []trace.Sink
	counts map[trace.Kind]int

	closed bool
}

// New builds a Simulation from its Config. Nodes, contacts and traffic are set up, but nothing runs
// before Run is called.
func New(conf Config) (s *Simulation, err error) {
	var errs error

	s = &Simulation{
		pace:     conf.Pace,
		sched:    sim.NewScheduler(conf.Seed),
		registry: routing.NewRegistry(),
		mailbox:  agent.NewMailbox(0),
		counts:   make(map[trace.Kind]int),
	}

	s.duration = parseDuration("duration", conf.Duration, time.Hour, &errs)
	if s.duration == 0 {
		errs = multierror.Append(errs, fmt.Errorf("duration must be positive"))
	}
	if conf.Pace < 0 {
		errs = multierror.Append(errs, fmt.Errorf("pace %f must not be negative", conf.Pace))
	}

	networkConf := conf.Network.networkConf(&errs)
	if errs != nil {
		return nil, errs
	}

	s.network = sim.NewNetwork(s.sched, networkConf)

	if s.stats, err = stats.New(); err != nil {
		return nil, err
	}

	if err = s.openTraces(conf.Trace); err != nil {
		return nil, err
	}

	if err = s.addNodes(conf); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err = s.addContacts(conf.Contact); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err = s.addTraffic(conf.Traffic); err != nil {
		_ = s.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"nodes":    len(s.registry.Nodes()),
		"contacts": len(conf.Contact),
		"traffic":  len(conf.Traffic),
		"duration": s.duration,
		"seed":     conf.Seed,
	}).Info("Simulation is set up")

	return s, nil
}

func (s *Simulation) openTraces(conf traceConf) error {
	if conf.File != "" {
		w, err := trace.Create(conf.File)
		if err != nil {
			return fmt.Errorf("creating trace file: %w", err)
		}
		s.sinks = append(s.sinks, w)
	}

	if conf.Db != "" {
		db, err := trace.OpenDB(conf.Db)
		if err != nil {
			_ = trace.Multi(s.sinks...).Close()
			return fmt.Errorf("opening trace database: %w", err)
		}
		s.sinks = append(s.sinks, db)
	}
	return nil
}

func (s *Simulation) addNodes(conf Config) error {
	var errs error

	for _, nc := range conf.Node {
		nc = nc.merge(conf.Defaults)
		coreConf := nc.coreConf(&errs)
		if errs != nil {
			return errs
		}

		for _, node := range nc.nodes() {
			_, err := routing.NewCore(node, coreConf, s.sched, s.network, routing.Options{
				Registry: s.registry,
				Stats:    s.stats.Node(node),
				Tracer:   s,
			})
			if err != nil {
				return err
			}
		}
	}

	if len(s.registry.Nodes()) == 0 {
		return fmt.Errorf("scenario has no nodes")
	}

	s.registerApplicationAgent(s.mailbox)
	return nil
}

func (s *Simulation) addContacts(contacts []contactConf) error {
	var errs error

	for i, cc := range contacts {
		a, b := bundle.NodeID(cc.A), bundle.NodeID(cc.B)
		name := fmt.Sprintf("contact %d", i)

		for _, node := range []bundle.NodeID{a, b} {
			if _, ok := s.registry.Lookup(node); !ok {
				errs = multierror.Append(errs, fmt.Errorf("%s: unknown node %v", name, node))
			}
		}
		if a == b {
			errs = multierror.Append(errs, fmt.Errorf("%s: node %v cannot meet itself", name, a))
		}

		start := parseDuration(name+" start", cc.Start, 0, &errs)
		if cc.End == "" {
			s.sched.At(start, func() { s.network.SetLink(a, b, true) })
			continue
		}

		if end := parseDuration(name+" end", cc.End, 0, &errs); end <= start {
			errs = multierror.Append(errs, fmt.Errorf("%s: end %v is not after start %v", name, end, start))
		} else {
			s.network.ScheduleContact(a, b, start, end)
		}
	}
	return errs
}

func (s *Simulation) addTraffic(traffic []trafficConf) error {
	var errs error

	for i, tc := range traffic {
		name := fmt.Sprintf("traffic %d", i)

		from := bundle.NodeID(tc.From)
		if _, ok := s.registry.Lookup(from); !ok {
			errs = multierror.Append(errs, fmt.Errorf("%s: unknown node %v", name, from))
			continue
		}

		to, err := bundle.ParseNodeID(tc.To)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		start := parseDuration(name+" start", tc.Start, 0, &errs)
		interval := parseDuration(name+" interval", tc.Interval, time.Second, &errs)

		count := tc.Count
		if count <= 0 {
			count = 1
		}

		for n := 0; n < count; n++ {
			size, payload := tc.Size, []byte(nil)
			if tc.Payload {
				payload = trafficPayload(from, n, size)
			}

			s.sched.At(start+time.Duration(n)*interval, func() {
				if _, err := s.send(from, to, size, payload); err != nil {
					log.WithFields(log.Fields{
						"node":   from,
						"target": to,
						"error":  err,
					}).Debug("Scheduled bundle was not sent")
				}
			})
		}
	}
	return errs
}

// trafficPayload is a recognizable payload for the n-th bundle of a traffic source.
func trafficPayload(from bundle.NodeID, n int, size uint32) []byte {
	payload := make([]byte, size)
	pattern := []byte(fmt.Sprintf("%v:%d;", from, n))
	for i := range payload {
		payload[i] = pattern[i%len(pattern)]
	}
	return payload
}

// send a bundle from a node. The caller must hold the lock or run on the Scheduler.
func (s *Simulation) send(from, to bundle.NodeID, size uint32, payload []byte) (bundle.ID, error) {
	c, ok := s.registry.Lookup(from)
	if !ok {
		return 0, fmt.Errorf("unknown node %v", from)
	}
	return c.Send(to, size, payload)
}

func (s *Simulation) registerApplicationAgent(app agent.ApplicationAgent) {
	for _, node := range s.registry.Nodes() {
		if c, ok := s.registry.Lookup(node); ok {
			c.RegisterApplicationAgent(app)
		}
	}
}

// RegisterApplicationAgent at all nodes.
func (s *Simulation) RegisterApplicationAgent(app agent.ApplicationAgent) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.registerApplicationAgent(app)
}

// AddSink adds a trace Sink receiving all following Events. It is closed together with the Simulation.
func (s *Simulation) AddSink(sink trace.Sink) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sinks = append(s.sinks, sink)
}

// Record passes an Event to all trace Sinks. It is called by the nodes, holding the lock.
func (s *Simulation) Record(e trace.Event) {
	s.counts[e.Kind]++

	for _, sink := range s.sinks {
		sink.Record(e)
	}
}

// Run the Simulation until its duration elapsed or the context is done.
func (s *Simulation) Run(ctx context.Context) error {
	realStart := time.Now()
	log.WithField("pace", s.pace).Info("Simulation starts")

	for {
		s.mutex.Lock()
		now := s.sched.Now()
		if now >= s.duration || s.closed {
			s.mutex.Unlock()
			break
		}

		until := now + runSlice
		if until > s.duration {
			until = s.duration
		}
		s.sched.RunUntil(until)
		s.mutex.Unlock()

		if err := ctx.Err(); err != nil {
			return err
		}

		if s.pace > 0 {
			wait := time.Until(realStart.Add(time.Duration(float64(until) / s.pace)))
			if wait <= 0 {
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	log.WithFields(log.Fields{
		"virtual": s.Now(),
		"real":    time.Since(realStart),
	}).Info("Simulation finished")
	return nil
}

// Close stops all nodes and closes all trace Sinks.
func (s *Simulation) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, node := range s.registry.Nodes() {
		if c, ok := s.registry.Lookup(node); ok {
			c.Close()
		}
	}

	return trace.Multi(s.sinks...).Close()
}

// Stats of all nodes.
func (s *Simulation) Stats() *stats.Stats {
	return s.stats
}

// Mailbox contains all bundles delivered during the Simulation.
func (s *Simulation) Mailbox() *agent.Mailbox {
	return s.mailbox
}

// Summary describes a Simulation's outcome.
type Summary struct {
	Time          time.Duration
	Created       int
	Delivered     int
	DeliveryRatio float64
	Events        map[trace.Kind]int
}

// Summary of the events so far.
func (s *Simulation) Summary() Summary {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sum := Summary{
		Time:      s.sched.Now(),
		Created:   s.counts[trace.Created],
		Delivered: s.counts[trace.Delivered],
		Events:    make(map[trace.Kind]int, len(s.counts)),
	}
	for kind, n := range s.counts {
		sum.Events[kind] = n
	}
	if sum.Created > 0 {
		sum.DeliveryRatio = float64(sum.Delivered) / float64(sum.Created)
	}
	return sum
}

// Kinds of all counted Events in ascending order.
func (sum Summary) Kinds() []trace.Kind {
	kinds := make([]trace.Kind, 0, len(sum.Events))
	for kind := range sum.Events {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
