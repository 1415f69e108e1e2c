// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"math"

	"github.com/RyanCarrier/dijkstra"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// costScale converts float edge weights into the integer distances of the dijkstra package.
const costScale = 1e6

// costGraph is a snapshot of all known encounter records as a weighted, directed graph. An edge from
// a to b weighs 1 - p, the probability of a not meeting b.
type costGraph struct {
	graph  *dijkstra.Graph
	vertex map[bundle.NodeID]int
	source bundle.NodeID
	cache  map[bundle.NodeID]float64
	usable bool
}

func newCostGraph(source bundle.NodeID, records map[bundle.NodeID]*bundle.EncounterRecord) *costGraph {
	cg := &costGraph{
		graph:  dijkstra.NewGraph(),
		vertex: make(map[bundle.NodeID]int),
		source: source,
		cache:  make(map[bundle.NodeID]float64),
		usable: true,
	}

	cg.addVertex(source)
	for _, owner := range sortedOwners(records) {
		cg.addVertex(owner)
		for _, target := range records[owner].Targets() {
			cg.addVertex(target)
		}
	}

	for _, owner := range sortedOwners(records) {
		er := records[owner]
		for _, target := range er.Targets() {
			if target == owner {
				continue
			}

			weight := int64(math.Round((1 - er.Probabilities[target]) * costScale))
			if err := cg.graph.AddArc(cg.vertex[owner], cg.vertex[target], weight); err != nil {
				cg.usable = false
			}
		}
	}
	return cg
}

func (cg *costGraph) addVertex(node bundle.NodeID) {
	if _, ok := cg.vertex[node]; ok {
		return
	}

	idx := len(cg.vertex)
	cg.vertex[node] = idx
	cg.graph.AddVertex(idx)
}

// Cost of the cheapest path from the source to target. Unknown or unreachable targets cost +Inf, the
// source itself and the wildcard cost nothing.
func (cg *costGraph) Cost(target bundle.NodeID) float64 {
	if target == cg.source || target == bundle.AnyNode {
		return 0
	}
	if cost, ok := cg.cache[target]; ok {
		return cost
	}

	cost := math.Inf(1)
	if dst, ok := cg.vertex[target]; ok && cg.usable {
		if best, err := cg.graph.Shortest(cg.vertex[cg.source], dst); err == nil {
			cost = float64(best.Distance) / costScale
		}
	}

	cg.cache[target] = cost
	return cost
}
