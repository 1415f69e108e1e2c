// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2019, 2021 Markus Sommer
// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-sim/pkg/bundle"
	"github.com/dtn7/dtn7-sim/pkg/storage"
)

type SprayConfig struct {
	// Multiplicity is the number of copies of a bundle which are sprayed
	Multiplicity uint32 `toml:"multiplicity"`

	// Binary halves the copies at each handoff instead of handing out single copies
	Binary bool `toml:"binary"`
}

// SprayAndWait implements the Spray and Wait routing protocol.
//
// In the vanilla mode, each handoff gives one copy to the peer until the holder is left with its
// last copy, which is only handed to the bundle's target. In the binary mode, the peer gets half of
// the remaining copies, rounded up.
type SprayAndWait struct {
	noopHooks
	c *Core

	// l is the number of copies of a bundle which are sprayed
	l      uint32
	binary bool
}

// NewSprayAndWait creates new instance of SprayAndWait
func NewSprayAndWait(c *Core, config SprayConfig) (*SprayAndWait, error) {
	if config.Multiplicity == 0 {
		return nil, fmt.Errorf("spray and wait requires a multiplicity of at least one")
	}

	c.logger.WithFields(log.Fields{
		"multiplicity": config.Multiplicity,
		"binary":       config.Binary,
	}).Debug("Initialised SprayAndWait")

	return &SprayAndWait{
		c:      c,
		l:      config.Multiplicity,
		binary: config.Binary,
	}, nil
}

func (sw *SprayAndWait) String() string {
	if sw.binary {
		return fmt.Sprintf("binary_spray(%d)", sw.l)
	}
	return fmt.Sprintf("spray(%d)", sw.l)
}

// InitialCopies is the configured multiplicity.
func (sw *SprayAndWait) InitialCopies() uint32 {
	return sw.l
}

// ReceivedCopies is the amount of copies handed over by the previous holder.
func (*SprayAndWait) ReceivedCopies(h bundle.Header) uint32 {
	return h.NumCopies
}

// SubtractCopies splits the copy budget between holder and peer.
func (sw *SprayAndWait) SubtractCopies(rec *storage.Record, out *bundle.Header) {
	remaining := rec.RemainingCopies

	var handed uint32
	switch {
	case remaining <= 1:
		// Wait phase: the last copy only travels to the target.
		handed = remaining
	case sw.binary:
		handed = (remaining + 1) / 2
	default:
		handed = 1
	}

	rec.RemainingCopies = remaining - handed
	out.NumCopies = handed

	sw.c.logger.WithFields(log.Fields{
		"bundle": rec.ID(),
		"handed": handed,
		"kept":   rec.RemainingCopies,
	}).Debug("SprayAndWait split copies")
}
