// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"fmt"
	"strconv"
	"strings"
)

// IDLen is the length of a serialized ID.
const IDLen = 8

// ID identifies a bundle network-wide. It is the concatenation of the originating node's NodeID in the
// upper 32 bits and this node's sequence number in the lower 32 bits.
type ID uint64

// NewID for a bundle created at source with the given sequence number.
func NewID(source NodeID, sequence uint32) ID {
	return ID(uint64(source)<<32 | uint64(sequence))
}

// Source node which created this bundle.
func (id ID) Source() NodeID {
	return NodeID(id >> 32)
}

// Sequence number of this bundle at its source node.
func (id ID) Sequence() uint32 {
	return uint32(id)
}

func (id ID) String() string {
	return fmt.Sprintf("%v-%d", id.Source(), id.Sequence())
}

// ParseID from its string representation "source-sequence", e.g., "23-42".
func ParseID(s string) (ID, error) {
	src, seq, ok := strings.Cut(s, "-")
	if !ok {
		return 0, fmt.Errorf("bundle id %q lacks a separator", s)
	}

	node, err := ParseNodeID(src)
	if err != nil {
		return 0, err
	} else if node == AnyNode {
		return 0, fmt.Errorf("bundle id %q has the wildcard as its source", s)
	}

	n, err := strconv.ParseUint(seq, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bundle id %q has an invalid sequence number: %w", s, err)
	}
	return NewID(node, uint32(n)), nil
}
