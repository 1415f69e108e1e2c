// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// Node are the metrics of a single node.
type Node struct {
	Created      prometheus.Counter
	StorageDrops prometheus.Counter
	Duplicates   prometheus.Counter
	Delivered    prometheus.Counter
	RelayedIn    prometheus.Counter
	Forwarded    prometheus.Counter
	Expired      prometheus.Counter
	Evicted      prometheus.Counter
	AckPurged    prometheus.Counter
	Unreachable  prometheus.Counter
	StoreBytes   prometheus.Gauge
	Latency      prometheus.Observer

	controlPackets *prometheus.CounterVec
	controlBytes   *prometheus.CounterVec
}

// ControlSent counts a sent control packet of the given type.
func (n *Node) ControlSent(mt bundle.MessageType, size int) {
	l := prometheus.Labels{labelType: mt.String()}
	n.controlPackets.With(l).Inc()
	n.controlBytes.With(l).Add(float64(size))
}

// ControlPackets is the counter of sent control packets of the given type.
func (n *Node) ControlPackets(mt bundle.MessageType) prometheus.Counter {
	return n.controlPackets.With(prometheus.Labels{labelType: mt.String()})
}

// ObserveDelivery of a bundle after the given virtual latency.
func (n *Node) ObserveDelivery(latency time.Duration) {
	n.Delivered.Inc()
	n.Latency.Observe(latency.Seconds())
}

// Discard returns metrics of a node which are not exported anywhere.
func Discard(node bundle.NodeID) *Node {
	s, err := New()
	if err != nil {
		// Registering on a fresh registry never conflicts.
		panic(err)
	}
	return s.Node(node)
}
