// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NodeID identifies a node within the simulated network.
type NodeID uint32

// AnyNode is the wildcard target. A bundle addressed to AnyNode is delivered at the first node receiving it.
const AnyNode NodeID = math.MaxUint32

// ParseNodeID from its decimal representation or "any" for the AnyNode wildcard.
func ParseNodeID(s string) (NodeID, error) {
	if strings.EqualFold(s, "any") || s == "*" {
		return AnyNode, nil
	}

	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	} else if NodeID(n) == AnyNode {
		return 0, fmt.Errorf("node id %d is reserved for the wildcard", n)
	}

	return NodeID(n), nil
}

// Matches checks if a bundle addressed to this NodeID is destined for the given node.
func (n NodeID) Matches(node NodeID) bool {
	return n == AnyNode || n == node
}

func (n NodeID) String() string {
	if n == AnyNode {
		return "any"
	}
	return strconv.FormatUint(uint64(n), 10)
}
