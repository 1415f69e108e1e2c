// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/storage"
)

// DirectDelivery only hands a bundle to its target. The single copy is used up by the first transfer.
type DirectDelivery struct {
	noopHooks
	c *Core
}

// NewDirectDelivery creates a new DirectDelivery Algorithm.
func NewDirectDelivery(c *Core) *DirectDelivery {
	c.logger.Debug("Initialised direct delivery")

	return &DirectDelivery{c: c}
}

func (*DirectDelivery) String() string {
	return "direct"
}

// InitialCopies is one.
func (*DirectDelivery) InitialCopies() uint32 {
	return 1
}

// ReceivedCopies is the header's copy count.
func (*DirectDelivery) ReceivedCopies(h bundle.Header) uint32 {
	return h.NumCopies
}

// SubtractCopies exhausts the budget.
func (*DirectDelivery) SubtractCopies(rec *storage.Record, out *bundle.Header) {
	out.NumCopies = 1
	if rec.RemainingCopies > 0 {
		rec.RemainingCopies--
	}
}
