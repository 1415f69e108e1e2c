// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"errors"
	"fmt"
	"math"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
)

// ErrSequenceExhausted is returned if a source has used up all sequence numbers.
var ErrSequenceExhausted = errors.New("all sequence numbers are used up")

// IdKeeper keeps track of the sequence numbers for outgoing bundles, one counter per source node.
type IdKeeper struct {
	data map[bundle.NodeID]uint64
}

// NewIdKeeper creates a new, empty IdKeeper.
func NewIdKeeper() IdKeeper {
	return IdKeeper{
		data: make(map[bundle.NodeID]uint64),
	}
}

// next returns a fresh bundle ID for this source. Sequence numbers start at zero and never wrap.
func (idk *IdKeeper) next(source bundle.NodeID) (bundle.ID, error) {
	seq := idk.data[source]
	if seq > math.MaxUint32 {
		return 0, fmt.Errorf("%w: source %v", ErrSequenceExhausted, source)
	}
	idk.data[source] = seq + 1

	return bundle.NewID(source, uint32(seq)), nil
}

// sent is the amount of IDs handed out for this source.
func (idk *IdKeeper) sent(source bundle.NodeID) uint64 {
	return idk.data[source]
}
