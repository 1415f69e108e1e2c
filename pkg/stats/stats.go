// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package stats collects per node counters of the bundle relay as Prometheus metrics.
package stats

import (
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

const (
	namespace = "dtnsim"

	labelNode = "node"
	labelType = "type"
)

// LatencyBuckets of the delivery latency histogram, 100ms up to about 14h.
var LatencyBuckets = prometheus.ExponentialBuckets(0.1, 2, 20)

// Stats holds all metric vectors of a simulation, partitioned by node.
type Stats struct {
	registry *prometheus.Registry

	created        *prometheus.CounterVec
	storageDrops   *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
	delivered      *prometheus.CounterVec
	relayedIn      *prometheus.CounterVec
	forwarded      *prometheus.CounterVec
	expired        *prometheus.CounterVec
	evicted        *prometheus.CounterVec
	ackPurged      *prometheus.CounterVec
	unreachable    *prometheus.CounterVec
	controlPackets *prometheus.CounterVec
	controlBytes   *prometheus.CounterVec
	storeBytes     *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      name,
			Help:      help,
		},
		append([]string{labelNode}, labels...),
	)
}

// New Stats, registered at a fresh registry.
func New() (*Stats, error) {
	s := &Stats{
		registry: prometheus.NewRegistry(),

		created:        newCounterVec("created_total", "Number of bundles created by the local application."),
		storageDrops:   newCounterVec("storage_drops_total", "Number of bundles discarded due to a full store."),
		duplicates:     newCounterVec("duplicates_total", "Number of received duplicate bundles."),
		delivered:      newCounterVec("delivered_total", "Number of bundles delivered to their target."),
		relayedIn:      newCounterVec("relayed_in_total", "Number of bundles stored as relay copies."),
		forwarded:      newCounterVec("forwarded_total", "Number of bundles handed to the transfer engine."),
		expired:        newCounterVec("expired_total", "Number of bundles dropped due to expiration."),
		evicted:        newCounterVec("evicted_total", "Number of bundles evicted for storage capacity."),
		ackPurged:      newCounterVec("ack_purged_total", "Number of stored bundles purged by an acknowledgment."),
		unreachable:    newCounterVec("unreachable_total", "Number of transfers abandoned for unresolvable peers."),
		controlPackets: newCounterVec("control_packets_total", "Number of sent control packets.", labelType),
		controlBytes:   newCounterVec("control_bytes_total", "Number of sent control packet bytes.", labelType),

		storeBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "usage_bytes",
				Help:      "Currently stored bundle bytes.",
			},
			[]string{labelNode},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bundle",
				Name:      "delivery_latency_seconds",
				Help:      "Virtual time between a bundle's creation and its delivery.",
				Buckets:   LatencyBuckets,
			},
			[]string{labelNode},
		),
	}

	var errs error
	for _, c := range []prometheus.Collector{
		s.created, s.storageDrops, s.duplicates, s.delivered, s.relayedIn, s.forwarded, s.expired,
		s.evicted, s.ackPurged, s.unreachable, s.controlPackets, s.controlBytes, s.storeBytes, s.latency,
	} {
		if err := s.registry.Register(c); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}
	return s, nil
}

// Gatherer exposes all metrics, e.g., for promhttp.
func (s *Stats) Gatherer() prometheus.Gatherer {
	return s.registry
}

// Node returns the metrics of one node.
func (s *Stats) Node(node bundle.NodeID) *Node {
	l := prometheus.Labels{labelNode: strconv.FormatUint(uint64(node), 10)}
	return &Node{
		Created:      s.created.With(l),
		StorageDrops: s.storageDrops.With(l),
		Duplicates:   s.duplicates.With(l),
		Delivered:    s.delivered.With(l),
		RelayedIn:    s.relayedIn.With(l),
		Forwarded:    s.forwarded.With(l),
		Expired:      s.expired.With(l),
		Evicted:      s.evicted.With(l),
		AckPurged:    s.ackPurged.With(l),
		Unreachable:  s.unreachable.With(l),
		StoreBytes:   s.storeBytes.With(l),
		Latency:      s.latency.With(l),

		controlPackets: s.controlPackets.MustCurryWith(l),
		controlBytes:   s.controlBytes.MustCurryWith(l),
	}
}
